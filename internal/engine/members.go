package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"obraline/internal/access"
	"obraline/internal/domain"
	"obraline/internal/events"
	"obraline/internal/repo"
)

// Invite creates a pending membership for an email address. The inviter's
// role bounds the role it may grant.
func (e Engine) Invite(ctx context.Context, projectID, email string, role domain.Role, actorID string) (domain.Membership, error) {
	if err := e.Access.Require(ctx, projectID, actorID, access.ActionInvitar); err != nil {
		return domain.Membership{}, err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return domain.Membership{}, validationf("invalid email %q", email)
	}
	if !role.Valid() {
		return domain.Membership{}, validationf("unknown role %q", role)
	}
	inviter, err := e.Repo.GetAcceptedMembership(ctx, projectID, actorID)
	if err != nil {
		return domain.Membership{}, err
	}
	if !access.InviteRoleAllowed(inviter.Role, role) {
		return domain.Membership{}, access.ForbiddenError{Action: access.ActionInvitar, UserID: actorID}
	}
	if _, err := e.Repo.GetMembershipByEmail(ctx, projectID, email); err == nil {
		return domain.Membership{}, validationf("%s is already invited to this project", email)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Membership{}, err
	}
	m := domain.Membership{
		ID:        newID(),
		ProjectID: projectID,
		Email:     email,
		Role:      role,
		Status:    domain.MembershipPendiente,
		InvitedAt: e.nowRFC3339(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Membership{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertMembership(ctx, tx, m); err != nil {
		return domain.Membership{}, fmt.Errorf("insert membership: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "member.invited", projectID, "membership", m.ID, actorID, events.EventPayload{"email": email, "role": role}); err != nil {
		return domain.Membership{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Membership{}, err
	}
	return m, nil
}

// AcceptInvitation binds a pending invitation to the acting user. The
// invitation email must match the user's email.
func (e Engine) AcceptInvitation(ctx context.Context, membershipID, actorID string) (domain.Membership, error) {
	m, err := e.Repo.GetMembership(ctx, membershipID)
	if err != nil {
		return domain.Membership{}, err
	}
	if m.Status != domain.MembershipPendiente {
		return domain.Membership{}, validationf("invitation already handled")
	}
	p, err := e.Repo.GetProject(ctx, m.ProjectID)
	if err != nil {
		return domain.Membership{}, err
	}
	if p.State == domain.ProjectFinalizado {
		return domain.Membership{}, access.ProjectFinalizedError{ProjectID: p.ID}
	}
	user, err := e.Repo.GetUser(ctx, actorID)
	if err != nil {
		return domain.Membership{}, err
	}
	if !strings.EqualFold(user.Email, m.Email) {
		return domain.Membership{}, fmt.Errorf("invitation addressed to %s", m.Email)
	}
	now := e.nowRFC3339()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Membership{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.AcceptMembership(ctx, tx, m.ID, user.ID, now); err != nil {
		return domain.Membership{}, err
	}
	if err := e.Events.Append(ctx, tx, "member.accepted", m.ProjectID, "membership", m.ID, actorID, events.EventPayload{"role": m.Role}); err != nil {
		return domain.Membership{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Membership{}, err
	}
	m.UserID = user.ID
	m.Status = domain.MembershipAceptado
	m.AcceptedAt = &now
	return m, nil
}

// RejectInvitation discards a pending invitation addressed to the user.
func (e Engine) RejectInvitation(ctx context.Context, membershipID, actorID string) error {
	m, err := e.Repo.GetMembership(ctx, membershipID)
	if err != nil {
		return err
	}
	if m.Status != domain.MembershipPendiente {
		return validationf("invitation already handled")
	}
	user, err := e.Repo.GetUser(ctx, actorID)
	if err != nil {
		return err
	}
	if !strings.EqualFold(user.Email, m.Email) {
		return fmt.Errorf("invitation addressed to %s", m.Email)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.DeleteMembership(ctx, tx, m.ID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "member.rejected", m.ProjectID, "membership", m.ID, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// RemoveMember deletes a membership. The project manager cannot be removed.
func (e Engine) RemoveMember(ctx context.Context, projectID, membershipID, actorID string) error {
	if err := e.Access.Require(ctx, projectID, actorID, access.ActionEliminarMiembro); err != nil {
		return err
	}
	m, err := e.Repo.GetMembership(ctx, membershipID)
	if err != nil {
		return err
	}
	if m.ProjectID != projectID {
		return repo.ErrNotFound
	}
	if m.Role == domain.RoleGerente {
		return validationf("the project manager cannot be removed")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.DeleteMembership(ctx, tx, m.ID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "member.removed", projectID, "membership", m.ID, actorID, events.EventPayload{"email": m.Email}); err != nil {
		return err
	}
	return tx.Commit()
}

// ListMembers returns the accepted members of a project.
func (e Engine) ListMembers(ctx context.Context, projectID, userID string) ([]domain.Membership, error) {
	if err := e.Access.Require(ctx, projectID, userID, access.ActionVerProyecto); err != nil {
		return nil, err
	}
	return e.Repo.ListMembers(ctx, projectID)
}
