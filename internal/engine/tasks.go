package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"obraline/internal/access"
	"obraline/internal/dates"
	"obraline/internal/domain"
	"obraline/internal/events"
	"obraline/internal/repo"
)

// MaterialRequest asks for units of a project material at task creation.
type MaterialRequest struct {
	MaterialID string
	Quantity   int
}

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	ProjectID   string
	Title       string
	Description string
	AssigneeID  string
	Priority    domain.Priority
	DueDate     string
	Materials   []MaterialRequest
	ActorID     string
}

// validateDueDate enforces the creation rules: strictly after today and, when
// the project has an end date, no later than it. Equal to the end date is
// accepted.
func (e Engine) validateDueDate(raw string, p domain.Project) (dates.Date, error) {
	due, err := dates.Parse(raw)
	if err != nil {
		return dates.Date{}, validationf("due date: %v", err)
	}
	if !due.After(e.today()) {
		return dates.Date{}, validationf("due date must be after today")
	}
	if p.EndDate != "" {
		end, err := dates.Parse(p.EndDate)
		if err == nil && due.After(end) {
			return dates.Date{}, validationf("due date exceeds project end date %s", end.Display())
		}
	}
	return due, nil
}

// CreateTask creates a task and consumes its material allocation. Stock is
// decremented in the same transaction as the task insert and is never given
// back.
func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	if err := e.Access.Require(ctx, opts.ProjectID, opts.ActorID, access.ActionCrearTarea); err != nil {
		return domain.Task{}, err
	}
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Task{}, validationf("title is required")
	}
	if opts.AssigneeID == "" {
		return domain.Task{}, validationf("assignee is required")
	}
	if opts.Priority == "" {
		opts.Priority = domain.PriorityMedia
	}
	if !opts.Priority.Valid() {
		return domain.Task{}, validationf("unknown priority %q", opts.Priority)
	}
	p, err := e.Repo.GetProject(ctx, opts.ProjectID)
	if err != nil {
		return domain.Task{}, err
	}
	due, err := e.validateDueDate(opts.DueDate, p)
	if err != nil {
		return domain.Task{}, err
	}
	if _, err := e.Repo.GetAcceptedMembership(ctx, opts.ProjectID, opts.AssigneeID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Task{}, validationf("assignee is not a member of the project")
		}
		return domain.Task{}, err
	}
	for _, mr := range opts.Materials {
		if mr.Quantity <= 0 {
			return domain.Task{}, validationf("material quantity must be positive")
		}
	}
	now := e.nowRFC3339()
	t := domain.Task{
		ID:          newID(),
		ProjectID:   opts.ProjectID,
		Title:       strings.TrimSpace(opts.Title),
		Description: opts.Description,
		AssigneeID:  opts.AssigneeID,
		Priority:    opts.Priority,
		DueDate:     due.String(),
		Status:      domain.TaskPendiente,
		CreatedBy:   opts.ActorID,
		CreatedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}
	for _, mr := range opts.Materials {
		mat, err := e.Repo.GetMaterialTx(ctx, tx, mr.MaterialID)
		if err != nil {
			return domain.Task{}, fmt.Errorf("material %s: %w", mr.MaterialID, err)
		}
		if mat.ProjectID != opts.ProjectID {
			return domain.Task{}, validationf("material %s belongs to another project", mr.MaterialID)
		}
		if mat.Quantity < mr.Quantity {
			return domain.Task{}, validationf("material %s: requested %d, available %d", mat.Name, mr.Quantity, mat.Quantity)
		}
		if err := e.Repo.DecrementMaterial(ctx, tx, mat.ID, mr.Quantity, now); err != nil {
			return domain.Task{}, err
		}
		alloc := domain.MaterialAllocation{MaterialID: mat.ID, Name: mat.Name, Quantity: mr.Quantity}
		if err := e.Repo.InsertTaskMaterial(ctx, tx, t.ID, alloc); err != nil {
			return domain.Task{}, err
		}
		t.Materials = append(t.Materials, alloc)
	}
	if err := e.Events.Append(ctx, tx, "task.created", t.ProjectID, "task", t.ID, opts.ActorID, events.EventPayload{
		"title": t.Title, "assignee_id": t.AssigneeID, "due_date": t.DueDate,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// TaskListOptions filter a project task listing.
type TaskListOptions struct {
	ProjectID  string
	Priority   domain.Priority
	AssigneeID string
	UserID     string
}

// TaskList is the classified listing plus its summary.
type TaskList struct {
	Buckets    Buckets    `json:"buckets"`
	Statistics Statistics `json:"statistics"`
}

// ListTasks returns the tasks visible to the user, classified as of today.
func (e Engine) ListTasks(ctx context.Context, opts TaskListOptions) (TaskList, error) {
	if err := e.Access.Require(ctx, opts.ProjectID, opts.UserID, access.ActionVerTareas); err != nil {
		return TaskList{}, err
	}
	tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{
		ProjectID:  opts.ProjectID,
		Priority:   opts.Priority,
		AssigneeID: opts.AssigneeID,
	})
	if err != nil {
		return TaskList{}, err
	}
	members, err := e.Repo.ListMembers(ctx, opts.ProjectID)
	if err != nil {
		return TaskList{}, err
	}
	tasks = VisibleTasks(e.viewerRole(opts.UserID, members), opts.UserID, members, tasks)
	asOf := e.today()
	return TaskList{
		Buckets:    Classify(tasks, asOf),
		Statistics: ComputeStatistics(tasks, asOf),
	}, nil
}

// viewerRole finds the user's role among the members. A viewer with no
// membership (a finalized project open to reads) sees everything.
func (e Engine) viewerRole(userID string, members []domain.Membership) domain.Role {
	for _, m := range members {
		if m.UserID == userID {
			return m.Role
		}
	}
	return domain.RoleGerente
}

// GetTask returns a task visible to the user, with materials and due-date
// history attached.
func (e Engine) GetTask(ctx context.Context, taskID, userID string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if err := e.Access.Require(ctx, t.ProjectID, userID, access.ActionVerTareas); err != nil {
		return domain.Task{}, err
	}
	members, err := e.Repo.ListMembers(ctx, t.ProjectID)
	if err != nil {
		return domain.Task{}, err
	}
	role := e.viewerRole(userID, members)
	roleByUser := make(map[string]domain.Role, len(members))
	for _, m := range members {
		if m.UserID != "" {
			roleByUser[m.UserID] = m.Role
		}
	}
	if !taskVisible(role, userID, roleByUser, t) {
		return domain.Task{}, access.ForbiddenError{Action: access.ActionVerTareas, UserID: userID}
	}
	return t, nil
}

// requireManage checks gestionar_tarea plus the role-scoped reach: an
// Empleado manages only their own tasks, a Supervisor their own and those of
// Empleados.
func (e Engine) requireManage(ctx context.Context, t domain.Task, actorID string) error {
	if err := e.Access.Require(ctx, t.ProjectID, actorID, access.ActionGestionarTarea); err != nil {
		return err
	}
	members, err := e.Repo.ListMembers(ctx, t.ProjectID)
	if err != nil {
		return err
	}
	roleByUser := make(map[string]domain.Role, len(members))
	for _, m := range members {
		if m.UserID != "" {
			roleByUser[m.UserID] = m.Role
		}
	}
	if !taskVisible(roleByUser[actorID], actorID, roleByUser, t) {
		return access.ForbiddenError{Action: access.ActionGestionarTarea, UserID: actorID}
	}
	return nil
}

// CompleteTask closes a task. A completion comment and an evidence image URL
// are both required; completed tasks are immutable afterwards.
func (e Engine) CompleteTask(ctx context.Context, taskID, actorID, comment, evidenceURL string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if err := e.requireManage(ctx, t, actorID); err != nil {
		return domain.Task{}, err
	}
	if t.Status == domain.TaskCompletada {
		return domain.Task{}, validationf("task already completed")
	}
	if strings.TrimSpace(comment) == "" {
		return domain.Task{}, validationf("completion comment is required")
	}
	if strings.TrimSpace(evidenceURL) == "" {
		return domain.Task{}, validationf("evidence image is required")
	}
	now := e.nowRFC3339()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.CompleteTask(ctx, tx, t.ID, comment, evidenceURL, now); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.completed", t.ProjectID, "task", t.ID, actorID, events.EventPayload{"evidence_url": evidenceURL}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	t.Status = domain.TaskCompletada
	t.CompletionComment = comment
	t.EvidenceURL = evidenceURL
	t.CompletedAt = &now
	return t, nil
}

// StartTask moves a pending task to En Progreso. Completion goes through
// CompleteTask only.
func (e Engine) StartTask(ctx context.Context, taskID, actorID string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if err := e.requireManage(ctx, t, actorID); err != nil {
		return domain.Task{}, err
	}
	if t.Status != domain.TaskPendiente {
		return domain.Task{}, validationf("task is %s, expected %s", t.Status, domain.TaskPendiente)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateTaskStatus(ctx, tx, t.ID, domain.TaskEnProgreso); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.started", t.ProjectID, "task", t.ID, actorID, nil); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	t.Status = domain.TaskEnProgreso
	return t, nil
}

// ChangeDueDate moves a task's due date. Only a Gerente may do this; the new
// date obeys the creation rules, the change is appended to the task history
// and the assignee gets a cambio_fecha notification.
func (e Engine) ChangeDueDate(ctx context.Context, taskID, actorID, newDate, reason string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if err := e.Access.Require(ctx, t.ProjectID, actorID, access.ActionCambiarFecha); err != nil {
		return domain.Task{}, err
	}
	if t.Status == domain.TaskCompletada {
		return domain.Task{}, validationf("task already completed")
	}
	p, err := e.Repo.GetProject(ctx, t.ProjectID)
	if err != nil {
		return domain.Task{}, err
	}
	due, err := e.validateDueDate(newDate, p)
	if err != nil {
		return domain.Task{}, err
	}
	now := e.nowRFC3339()
	change := domain.DueDateChange{
		PreviousDate: t.DueDate,
		NewDate:      due.String(),
		Reason:       reason,
		ActorID:      actorID,
		ChangedAt:    now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateTaskDueDate(ctx, tx, t.ID, due.String()); err != nil {
		return domain.Task{}, err
	}
	if err := e.Repo.InsertDueDateChange(ctx, tx, t.ID, change); err != nil {
		return domain.Task{}, err
	}
	n := domain.Notification{
		ID:        newID(),
		UserID:    t.AssigneeID,
		Type:      "cambio_fecha",
		ProjectID: t.ProjectID,
		TaskID:    t.ID,
		Message:   fmt.Sprintf("La fecha de %q cambió de %s a %s", t.Title, t.DueDate, due.String()),
		CreatedAt: now,
	}
	if err := e.Repo.InsertNotification(ctx, tx, n); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.due_date_changed", t.ProjectID, "task", t.ID, actorID, events.EventPayload{
		"previous": t.DueDate, "new": due.String(), "reason": reason,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	t.DueDate = due.String()
	t.DueDateHistory = append(t.DueDateHistory, change)
	return t, nil
}
