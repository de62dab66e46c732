package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"obraline/internal/access"
	"obraline/internal/config"
	"obraline/internal/dates"
	"obraline/internal/domain"
	"obraline/internal/events"
	"obraline/internal/repo"
)

// Engine owns all mutations. Each one runs in a transaction that also
// appends to the event log.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Access access.Service
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	r := repo.Repo{DB: db}
	return Engine{
		DB:     db,
		Repo:   r,
		Events: events.Writer{DB: db},
		Access: access.Service{Repo: r},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowRFC3339() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) today() dates.Date {
	return dates.FromTime(e.now())
}

func newID() string {
	return uuid.NewString()
}

// ValidationError marks rejected input or a violated domain rule.
type ValidationError struct {
	Msg string
}

func (e ValidationError) Error() string { return e.Msg }

func validationf(format string, args ...any) error {
	return ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// ProjectCreateOptions are parameters for creating a project.
type ProjectCreateOptions struct {
	Name        string
	Client      string
	Location    string
	Description string
	StartDate   string
	EndDate     string
	ActorID     string
}

// CreateProject creates a project in state Activo and makes the creator its
// Gerente member in the same transaction.
func (e Engine) CreateProject(ctx context.Context, opts ProjectCreateOptions) (domain.Project, error) {
	if strings.TrimSpace(opts.Name) == "" {
		return domain.Project{}, validationf("name is required")
	}
	creator, err := e.Repo.GetUser(ctx, opts.ActorID)
	if err != nil {
		return domain.Project{}, fmt.Errorf("creator: %w", err)
	}
	var start, end dates.Date
	if opts.StartDate != "" {
		if start, err = dates.Parse(opts.StartDate); err != nil {
			return domain.Project{}, validationf("start date: %v", err)
		}
	}
	if opts.EndDate != "" {
		if end, err = dates.Parse(opts.EndDate); err != nil {
			return domain.Project{}, validationf("end date: %v", err)
		}
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return domain.Project{}, validationf("end date before start date")
	}
	now := e.nowRFC3339()
	p := domain.Project{
		ID:          newID(),
		Name:        strings.TrimSpace(opts.Name),
		Client:      opts.Client,
		Location:    opts.Location,
		Description: opts.Description,
		State:       domain.ProjectActivo,
		ManagerID:   creator.ID,
		CreatedAt:   now,
	}
	if !start.IsZero() {
		p.StartDate = start.String()
	}
	if !end.IsZero() {
		p.EndDate = end.String()
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	m := domain.Membership{
		ID:         newID(),
		ProjectID:  p.ID,
		UserID:     creator.ID,
		Email:      creator.Email,
		Role:       domain.RoleGerente,
		Status:     domain.MembershipAceptado,
		InvitedAt:  now,
		AcceptedAt: &now,
	}
	if err := e.Repo.InsertMembership(ctx, tx, m); err != nil {
		return domain.Project{}, fmt.Errorf("insert membership: %w", err)
	}
	if err := e.Repo.UpsertProjectConfigTx(ctx, tx, p.ID, config.Default(p.ID)); err != nil {
		return domain.Project{}, fmt.Errorf("insert project config: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "project.created", p.ID, "project", p.ID, creator.ID, events.EventPayload{"name": p.Name}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// ListProjects returns the projects the user belongs to.
func (e Engine) ListProjects(ctx context.Context, userID string, state domain.ProjectState) ([]domain.Project, error) {
	return e.Repo.ListProjectsForUser(ctx, userID, state)
}

// GetProject returns a project the user may view.
func (e Engine) GetProject(ctx context.Context, projectID, userID string) (domain.Project, error) {
	if err := e.Access.Require(ctx, projectID, userID, access.ActionVerProyecto); err != nil {
		return domain.Project{}, err
	}
	return e.Repo.GetProject(ctx, projectID)
}

// FinalizeProject moves a project to Finalizado. The state is terminal;
// finalizing twice fails.
func (e Engine) FinalizeProject(ctx context.Context, projectID, actorID string) (domain.Project, error) {
	if err := e.Access.Require(ctx, projectID, actorID, access.ActionFinalizarProyecto); err != nil {
		return domain.Project{}, err
	}
	now := e.nowRFC3339()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	p, err := e.Repo.GetProjectTx(ctx, tx, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	if p.State == domain.ProjectFinalizado {
		return domain.Project{}, access.ProjectFinalizedError{ProjectID: projectID}
	}
	if err := e.Repo.FinalizeProject(ctx, tx, projectID, now); err != nil {
		return domain.Project{}, err
	}
	if err := e.Events.Append(ctx, tx, "project.finalized", projectID, "project", projectID, actorID, nil); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	p.State = domain.ProjectFinalizado
	p.FinalizedAt = &now
	return p, nil
}

// DeleteProject removes a project and its dependents.
func (e Engine) DeleteProject(ctx context.Context, projectID, actorID string) error {
	if err := e.Access.Require(ctx, projectID, actorID, access.ActionEliminarProyecto); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.DeleteProject(ctx, tx, projectID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "project.deleted", projectID, "project", projectID, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// Permissions returns the capability snapshot for a user on a project.
func (e Engine) Permissions(ctx context.Context, projectID, userID string) (access.Snapshot, error) {
	return e.Access.Permissions(ctx, projectID, userID)
}
