package engine

import (
	"context"
	"fmt"
	"sort"

	"obraline/internal/domain"
)

// FeedItem is one entry of a user's notification feed. Invitation and
// assigned-task entries are derived at read time; cambio_fecha entries come
// from stored notification rows.
type FeedItem struct {
	Kind         string      `json:"kind" enum:"invitacion,tarea_asignada,cambio_fecha"`
	ID           string      `json:"id"`
	ProjectID    string      `json:"project_id,omitempty"`
	ProjectName  string      `json:"project_name,omitempty"`
	TaskID       string      `json:"task_id,omitempty"`
	MembershipID string      `json:"membership_id,omitempty"`
	Message      string      `json:"message"`
	Read         bool        `json:"read"`
	CreatedAt    string      `json:"created_at" format:"date-time"`
	Role         domain.Role `json:"role,omitempty"`
}

// Feed joins pending invitations, open assigned tasks and unread due-date
// changes for a user, newest first.
func (e Engine) Feed(ctx context.Context, userID string) ([]FeedItem, error) {
	user, err := e.Repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	var items []FeedItem

	invitations, err := e.Repo.ListPendingInvitations(ctx, user.Email)
	if err != nil {
		return nil, err
	}
	for _, inv := range invitations {
		item := FeedItem{
			Kind:         "invitacion",
			ID:           inv.ID,
			ProjectID:    inv.ProjectID,
			MembershipID: inv.ID,
			Role:         inv.Role,
			CreatedAt:    inv.InvitedAt,
		}
		if p, err := e.Repo.GetProject(ctx, inv.ProjectID); err == nil {
			item.ProjectName = p.Name
			item.Message = fmt.Sprintf("Invitación a %q como %s", p.Name, inv.Role)
		} else {
			item.Message = fmt.Sprintf("Invitación como %s", inv.Role)
		}
		items = append(items, item)
	}

	tasks, err := e.Repo.ListOpenTasksForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, t := range tasks {
		items = append(items, FeedItem{
			Kind:      "tarea_asignada",
			ID:        t.ID,
			ProjectID: t.ProjectID,
			TaskID:    t.ID,
			Message:   fmt.Sprintf("Tarea asignada: %s (vence %s)", t.Title, t.DueDate),
			CreatedAt: t.CreatedAt,
		})
	}

	stored, err := e.Repo.ListNotifications(ctx, userID, true)
	if err != nil {
		return nil, err
	}
	for _, n := range stored {
		items = append(items, FeedItem{
			Kind:      n.Type,
			ID:        n.ID,
			ProjectID: n.ProjectID,
			TaskID:    n.TaskID,
			Message:   n.Message,
			Read:      n.Read,
			CreatedAt: n.CreatedAt,
		})
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt > items[j].CreatedAt })
	return items, nil
}

// MarkNotificationRead flags a stored notification as read for its owner.
func (e Engine) MarkNotificationRead(ctx context.Context, notificationID, userID string) (domain.Notification, error) {
	now := e.nowRFC3339()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Notification{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.MarkNotificationRead(ctx, tx, notificationID, userID, now); err != nil {
		return domain.Notification{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Notification{}, err
	}
	return e.Repo.GetNotification(ctx, notificationID)
}
