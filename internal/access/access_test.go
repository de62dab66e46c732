package access_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"obraline/internal/access"
	"obraline/internal/config"
	"obraline/internal/db"
	"obraline/internal/domain"
	"obraline/internal/engine"
	"obraline/internal/migrate"
	"obraline/internal/repo"
)

type fixture struct {
	eng        engine.Engine
	svc        access.Service
	ctx        context.Context
	project    domain.Project
	gerente    domain.User
	supervisor domain.User
	empleado   domain.User
	outsider   domain.User
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default("proj-1"))
	eng.Now = func() time.Time { return time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	signup := func(email, name string) domain.User {
		u, err := eng.SignUp(ctx, email, name, "secreto123")
		if err != nil {
			t.Fatalf("signup %s: %v", email, err)
		}
		return u
	}
	gerente := signup("gerente@obra.mx", "Gerente")
	supervisor := signup("super@obra.mx", "Super")
	empleado := signup("emp@obra.mx", "Emp")
	outsider := signup("fuera@obra.mx", "Fuera")

	p, err := eng.CreateProject(ctx, engine.ProjectCreateOptions{Name: "Obra", EndDate: "2026-12-31", ActorID: gerente.ID})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	join := func(u domain.User, role domain.Role) {
		m, err := eng.Invite(ctx, p.ID, u.Email, role, gerente.ID)
		if err != nil {
			t.Fatalf("invite %s: %v", u.Email, err)
		}
		if _, err := eng.AcceptInvitation(ctx, m.ID, u.ID); err != nil {
			t.Fatalf("accept %s: %v", u.Email, err)
		}
	}
	join(supervisor, domain.RoleSupervisor)
	join(empleado, domain.RoleEmpleado)

	return fixture{
		eng: eng, svc: eng.Access, ctx: ctx, project: p,
		gerente: gerente, supervisor: supervisor, empleado: empleado, outsider: outsider,
	}
}

func TestResolutionTable(t *testing.T) {
	f := newFixture(t)
	all := []access.Action{
		access.ActionVerProyecto, access.ActionVerTareas, access.ActionInvitar,
		access.ActionCrearTarea, access.ActionGestionarTarea, access.ActionEliminarMiembro,
		access.ActionFinalizarProyecto, access.ActionEliminarProyecto, access.ActionCambiarFecha,
	}
	allowed := map[string]map[access.Action]bool{
		f.gerente.ID: {
			access.ActionVerProyecto: true, access.ActionVerTareas: true, access.ActionInvitar: true,
			access.ActionCrearTarea: true, access.ActionGestionarTarea: true, access.ActionEliminarMiembro: true,
			access.ActionFinalizarProyecto: true, access.ActionEliminarProyecto: true, access.ActionCambiarFecha: true,
		},
		f.supervisor.ID: {
			access.ActionVerProyecto: true, access.ActionVerTareas: true, access.ActionInvitar: true,
			access.ActionCrearTarea: true, access.ActionGestionarTarea: true,
		},
		f.empleado.ID: {
			access.ActionVerProyecto: true, access.ActionVerTareas: true, access.ActionGestionarTarea: true,
		},
		f.outsider.ID: {},
	}
	for userID, perms := range allowed {
		for _, action := range all {
			got, err := f.svc.Can(f.ctx, f.project.ID, userID, action)
			if err != nil {
				t.Fatalf("Can(%s,%s): %v", userID, action, err)
			}
			if got != perms[action] {
				t.Errorf("Can(%s, %s) = %v, want %v", userID, action, got, perms[action])
			}
		}
	}
}

func TestUnknownActionIsDenied(t *testing.T) {
	f := newFixture(t)
	got, err := f.svc.Can(f.ctx, f.project.ID, f.supervisor.ID, access.Action("volar"))
	if err != nil || got {
		t.Fatalf("Can(volar) = %v, %v", got, err)
	}
}

func TestMissingProjectIsAnError(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Can(f.ctx, "nope", f.gerente.ID, access.ActionVerProyecto)
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestFinalizedProjectAllowsOnlyViews(t *testing.T) {
	f := newFixture(t)
	if _, err := f.eng.FinalizeProject(f.ctx, f.project.ID, f.gerente.ID); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	// views stay open for everyone, even non-members
	for _, userID := range []string{f.gerente.ID, f.empleado.ID, f.outsider.ID} {
		for _, action := range []access.Action{access.ActionVerProyecto, access.ActionVerTareas} {
			if got, err := f.svc.Can(f.ctx, f.project.ID, userID, action); err != nil || !got {
				t.Fatalf("Can(%s,%s) on finalized = %v, %v", userID, action, got, err)
			}
		}
	}
	// everything else is closed, the gerente included
	for _, action := range []access.Action{access.ActionInvitar, access.ActionCrearTarea, access.ActionFinalizarProyecto, access.ActionEliminarProyecto} {
		if got, _ := f.svc.Can(f.ctx, f.project.ID, f.gerente.ID, action); got {
			t.Fatalf("Can(gerente, %s) on finalized = true", action)
		}
	}
	var pfe access.ProjectFinalizedError
	if err := f.svc.Require(f.ctx, f.project.ID, f.gerente.ID, access.ActionCrearTarea); !errors.As(err, &pfe) {
		t.Fatalf("Require on finalized err = %v", err)
	}
	if err := f.svc.Require(f.ctx, f.project.ID, f.outsider.ID, access.ActionVerTareas); err != nil {
		t.Fatalf("Require view on finalized: %v", err)
	}
}

func TestRequireWrapsDenialInForbidden(t *testing.T) {
	f := newFixture(t)
	var fe access.ForbiddenError
	err := f.svc.Require(f.ctx, f.project.ID, f.empleado.ID, access.ActionInvitar)
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v", err)
	}
	if fe.Action != access.ActionInvitar {
		t.Fatalf("action = %s", fe.Action)
	}
}

func TestInviteRoleAllowed(t *testing.T) {
	cases := []struct {
		inviter, invitee domain.Role
		want             bool
	}{
		{domain.RoleGerente, domain.RoleGerente, true},
		{domain.RoleGerente, domain.RoleSupervisor, true},
		{domain.RoleGerente, domain.RoleEmpleado, true},
		{domain.RoleSupervisor, domain.RoleEmpleado, true},
		{domain.RoleSupervisor, domain.RoleSupervisor, false},
		{domain.RoleSupervisor, domain.RoleGerente, false},
		{domain.RoleEmpleado, domain.RoleEmpleado, false},
		{domain.RoleGerente, domain.Role("Becario"), false},
	}
	for _, c := range cases {
		if got := access.InviteRoleAllowed(c.inviter, c.invitee); got != c.want {
			t.Errorf("InviteRoleAllowed(%s, %s) = %v, want %v", c.inviter, c.invitee, got, c.want)
		}
	}
}

func TestPermissionsSnapshot(t *testing.T) {
	f := newFixture(t)
	snap, err := f.svc.Permissions(f.ctx, f.project.ID, f.supervisor.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := access.Snapshot{Role: domain.RoleSupervisor, PuedeInvitar: true, PuedeCrearTareas: true}
	if snap != want {
		t.Fatalf("snapshot = %+v, want %+v", snap, want)
	}
	snap, err = f.svc.Permissions(f.ctx, f.project.ID, f.outsider.ID)
	if err != nil || snap != (access.Snapshot{}) {
		t.Fatalf("outsider snapshot = %+v, %v", snap, err)
	}
}
