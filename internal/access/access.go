// Package access resolves whether a user may perform an action on a project.
// Decisions depend only on the project state and the user's accepted
// membership role.
package access

import (
	"context"
	"errors"
	"fmt"

	"obraline/internal/domain"
	"obraline/internal/repo"
)

// Action identifies a project-scoped capability.
type Action string

const (
	ActionVerProyecto       Action = "ver_proyecto"
	ActionVerTareas         Action = "ver_tareas"
	ActionInvitar           Action = "invitar"
	ActionCrearTarea        Action = "crear_tarea"
	ActionGestionarTarea    Action = "gestionar_tarea"
	ActionEliminarMiembro   Action = "eliminar_miembro"
	ActionFinalizarProyecto Action = "finalizar_proyecto"
	ActionEliminarProyecto  Action = "eliminar_proyecto"
	ActionCambiarFecha      Action = "cambiar_fecha_vencimiento"
)

// Per-role capability table. Gerente is handled separately and gets
// everything. Unknown actions resolve to false.
var rolePermissions = map[domain.Role]map[Action]bool{
	domain.RoleSupervisor: {
		ActionVerProyecto:    true,
		ActionVerTareas:      true,
		ActionInvitar:        true,
		ActionCrearTarea:     true,
		ActionGestionarTarea: true,
	},
	domain.RoleEmpleado: {
		ActionVerProyecto:    true,
		ActionVerTareas:      true,
		ActionGestionarTarea: true,
	},
}

// ForbiddenError marks a denied action for a user that is otherwise known.
type ForbiddenError struct {
	Action Action
	UserID string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("user %s may not %s", e.UserID, e.Action)
}

// ProjectFinalizedError marks a mutation attempted on a finalized project.
type ProjectFinalizedError struct {
	ProjectID string
}

func (e ProjectFinalizedError) Error() string {
	return fmt.Sprintf("project %s is finalized", e.ProjectID)
}

// Service answers permission questions against the membership store.
type Service struct {
	Repo repo.Repo
}

func isView(action Action) bool {
	return action == ActionVerProyecto || action == ActionVerTareas
}

// Can resolves whether the user may perform action on the project. A missing
// project is an error; a missing membership is simply false. Finalized
// projects allow only the view actions and short-circuit before any
// membership lookup.
func (s Service) Can(ctx context.Context, projectID, userID string, action Action) (bool, error) {
	p, err := s.Repo.GetProject(ctx, projectID)
	if err != nil {
		return false, err
	}
	return s.canOn(ctx, p, userID, action)
}

func (s Service) canOn(ctx context.Context, p domain.Project, userID string, action Action) (bool, error) {
	if p.State == domain.ProjectFinalizado {
		return isView(action), nil
	}
	m, err := s.Repo.GetAcceptedMembership(ctx, p.ID, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if m.Role == domain.RoleGerente {
		return true, nil
	}
	return rolePermissions[m.Role][action], nil
}

// Require resolves the action and converts a denial into a typed error:
// ProjectFinalizedError when the project is finalized and the action is a
// mutation, ForbiddenError otherwise.
func (s Service) Require(ctx context.Context, projectID, userID string, action Action) error {
	p, err := s.Repo.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	if p.State == domain.ProjectFinalizado && !isView(action) {
		return ProjectFinalizedError{ProjectID: projectID}
	}
	ok, err := s.canOn(ctx, p, userID, action)
	if err != nil {
		return err
	}
	if !ok {
		return ForbiddenError{Action: action, UserID: userID}
	}
	return nil
}

// InviteRoleAllowed reports whether an inviter role may grant the invitee
// role. Gerente may invite anyone; Supervisor only Empleado.
func InviteRoleAllowed(inviter, invitee domain.Role) bool {
	switch inviter {
	case domain.RoleGerente:
		return invitee.Valid()
	case domain.RoleSupervisor:
		return invitee == domain.RoleEmpleado
	}
	return false
}

// Snapshot is the precomputed capability set the UI asks for in one call.
type Snapshot struct {
	Role                   domain.Role `json:"role,omitempty"`
	PuedeInvitar           bool        `json:"puede_invitar"`
	PuedeEliminarMiembros  bool        `json:"puede_eliminar_miembros"`
	PuedeCrearTareas       bool        `json:"puede_crear_tareas"`
	PuedeFinalizarProyecto bool        `json:"puede_finalizar_proyecto"`
}

// Permissions computes the capability snapshot for a user on a project.
func (s Service) Permissions(ctx context.Context, projectID, userID string) (Snapshot, error) {
	p, err := s.Repo.GetProject(ctx, projectID)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if p.State == domain.ProjectFinalizado {
		return snap, nil
	}
	m, err := s.Repo.GetAcceptedMembership(ctx, projectID, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return snap, nil
	}
	if err != nil {
		return Snapshot{}, err
	}
	snap.Role = m.Role
	if m.Role == domain.RoleGerente {
		snap.PuedeInvitar = true
		snap.PuedeEliminarMiembros = true
		snap.PuedeCrearTareas = true
		snap.PuedeFinalizarProyecto = true
		return snap, nil
	}
	perms := rolePermissions[m.Role]
	snap.PuedeInvitar = perms[ActionInvitar]
	snap.PuedeCrearTareas = perms[ActionCrearTarea]
	return snap, nil
}
