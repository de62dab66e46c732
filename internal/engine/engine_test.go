package engine_test

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
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("proj-1")
	cfg.Auth.JWTSecret = "test-secret"
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func (env testEnv) signup(t *testing.T, email, username string) domain.User {
	t.Helper()
	u, err := env.Engine.SignUp(env.Ctx, email, username, "secreto123")
	if err != nil {
		t.Fatalf("signup %s: %v", email, err)
	}
	return u
}

func (env testEnv) project(t *testing.T, manager domain.User) domain.Project {
	t.Helper()
	p, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{
		Name:      "Torre Norte",
		Client:    "Constructora Sol",
		StartDate: "2026-01-10",
		EndDate:   "2026-06-30",
		ActorID:   manager.ID,
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return p
}

func (env testEnv) member(t *testing.T, projectID string, inviter domain.User, email, username string, role domain.Role) domain.User {
	t.Helper()
	u := env.signup(t, email, username)
	m, err := env.Engine.Invite(env.Ctx, projectID, email, role, inviter.ID)
	if err != nil {
		t.Fatalf("invite %s: %v", email, err)
	}
	if _, err := env.Engine.AcceptInvitation(env.Ctx, m.ID, u.ID); err != nil {
		t.Fatalf("accept %s: %v", email, err)
	}
	return u
}

func TestProjectCreationSeedsManagerMembership(t *testing.T) {
	env := newTestEnv(t)
	gerente := env.signup(t, "gerente@obra.mx", "Gerente")
	p := env.project(t, gerente)

	if p.State != domain.ProjectActivo {
		t.Fatalf("state = %s", p.State)
	}
	members, err := env.Engine.ListMembers(env.Ctx, p.ID, gerente.ID)
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(members) != 1 || members[0].Role != domain.RoleGerente || members[0].UserID != gerente.ID {
		t.Fatalf("members = %+v", members)
	}
	snap, err := env.Engine.Permissions(env.Ctx, p.ID, gerente.ID)
	if err != nil {
		t.Fatalf("permissions: %v", err)
	}
	if !snap.PuedeInvitar || !snap.PuedeFinalizarProyecto || !snap.PuedeCrearTareas || !snap.PuedeEliminarMiembros {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestFinalizeIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	gerente := env.signup(t, "gerente@obra.mx", "Gerente")
	p := env.project(t, gerente)

	fin, err := env.Engine.FinalizeProject(env.Ctx, p.ID, gerente.ID)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if fin.State != domain.ProjectFinalizado || fin.FinalizedAt == nil {
		t.Fatalf("finalized = %+v", fin)
	}
	var pfe access.ProjectFinalizedError
	if _, err := env.Engine.FinalizeProject(env.Ctx, p.ID, gerente.ID); !errors.As(err, &pfe) {
		t.Fatalf("second finalize err = %v", err)
	}
	// mutations are rejected, reads keep working
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		ProjectID: p.ID, Title: "x", AssigneeID: gerente.ID, DueDate: "2026-02-01", ActorID: gerente.ID,
	}); !errors.As(err, &pfe) {
		t.Fatalf("create task on finalized err = %v", err)
	}
	if _, err := env.Engine.GetProject(env.Ctx, p.ID, gerente.ID); err != nil {
		t.Fatalf("get finalized project: %v", err)
	}
}

func TestInvitationFlow(t *testing.T) {
	env := newTestEnv(t)
	gerente := env.signup(t, "gerente@obra.mx", "Gerente")
	p := env.project(t, gerente)

	m, err := env.Engine.Invite(env.Ctx, p.ID, "empleado@obra.mx", domain.RoleEmpleado, gerente.ID)
	if err != nil {
		t.Fatalf("invite: %v", err)
	}
	if m.Status != domain.MembershipPendiente || m.UserID != "" {
		t.Fatalf("membership = %+v", m)
	}

	// duplicate invite by email is rejected
	var ve engine.ValidationError
	if _, err := env.Engine.Invite(env.Ctx, p.ID, "empleado@obra.mx", domain.RoleEmpleado, gerente.ID); !errors.As(err, &ve) {
		t.Fatalf("duplicate invite err = %v", err)
	}

	// only the addressed user may accept
	otro := env.signup(t, "otro@obra.mx", "Otro")
	if _, err := env.Engine.AcceptInvitation(env.Ctx, m.ID, otro.ID); err == nil {
		t.Fatal("accept by wrong user succeeded")
	}

	empleado := env.signup(t, "empleado@obra.mx", "Empleado")
	accepted, err := env.Engine.AcceptInvitation(env.Ctx, m.ID, empleado.ID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if accepted.Status != domain.MembershipAceptado || accepted.UserID != empleado.ID {
		t.Fatalf("accepted = %+v", accepted)
	}
	if _, err := env.Engine.AcceptInvitation(env.Ctx, m.ID, empleado.ID); err == nil {
		t.Fatal("double accept succeeded")
	}
}

func TestSupervisorMayOnlyInviteEmpleados(t *testing.T) {
	env := newTestEnv(t)
	gerente := env.signup(t, "gerente@obra.mx", "Gerente")
	p := env.project(t, gerente)
	supervisor := env.member(t, p.ID, gerente, "super@obra.mx", "Super", domain.RoleSupervisor)

	if _, err := env.Engine.Invite(env.Ctx, p.ID, "peon@obra.mx", domain.RoleEmpleado, supervisor.ID); err != nil {
		t.Fatalf("supervisor inviting empleado: %v", err)
	}
	var fe access.ForbiddenError
	if _, err := env.Engine.Invite(env.Ctx, p.ID, "jefe2@obra.mx", domain.RoleSupervisor, supervisor.ID); !errors.As(err, &fe) {
		t.Fatalf("supervisor inviting supervisor err = %v", err)
	}
	if _, err := env.Engine.Invite(env.Ctx, p.ID, "jefe3@obra.mx", domain.RoleGerente, supervisor.ID); !errors.As(err, &fe) {
		t.Fatalf("supervisor inviting gerente err = %v", err)
	}

	empleado := env.member(t, p.ID, gerente, "emp@obra.mx", "Emp", domain.RoleEmpleado)
	if _, err := env.Engine.Invite(env.Ctx, p.ID, "amigo@obra.mx", domain.RoleEmpleado, empleado.ID); !errors.As(err, &fe) {
		t.Fatalf("empleado inviting err = %v", err)
	}
}

func TestRemoveMember(t *testing.T) {
	env := newTestEnv(t)
	gerente := env.signup(t, "gerente@obra.mx", "Gerente")
	p := env.project(t, gerente)
	env.member(t, p.ID, gerente, "emp@obra.mx", "Emp", domain.RoleEmpleado)

	members, _ := env.Engine.ListMembers(env.Ctx, p.ID, gerente.ID)
	var target, manager domain.Membership
	for _, m := range members {
		if m.Role == domain.RoleGerente {
			manager = m
		} else {
			target = m
		}
	}
	if err := env.Engine.RemoveMember(env.Ctx, p.ID, manager.ID, gerente.ID); err == nil {
		t.Fatal("removing the manager succeeded")
	}
	if err := env.Engine.RemoveMember(env.Ctx, p.ID, target.ID, gerente.ID); err != nil {
		t.Fatalf("remove member: %v", err)
	}
	members, _ = env.Engine.ListMembers(env.Ctx, p.ID, gerente.ID)
	if len(members) != 1 {
		t.Fatalf("members after removal = %d", len(members))
	}
}

func TestCreateTaskDueDateRules(t *testing.T) {
	env := newTestEnv(t)
	gerente := env.signup(t, "gerente@obra.mx", "Gerente")
	p := env.project(t, gerente)

	base := engine.TaskCreateOptions{ProjectID: p.ID, Title: "Cimentación", AssigneeID: gerente.ID, ActorID: gerente.ID}
	var ve engine.ValidationError

	for _, due := range []string{"2026-01-15", "2026-01-14", "2026-07-01", "ayer"} {
		opts := base
		opts.DueDate = due
		if _, err := env.Engine.CreateTask(env.Ctx, opts); !errors.As(err, &ve) {
			t.Fatalf("due %s: err = %v, want validation error", due, err)
		}
	}

	// tomorrow and the project end date itself are both fine
	for _, due := range []string{"2026-01-16", "30-06-2026"} {
		opts := base
		opts.DueDate = due
		if _, err := env.Engine.CreateTask(env.Ctx, opts); err != nil {
			t.Fatalf("due %s: %v", due, err)
		}
	}
}

func TestCreateTaskRequiresMemberAssignee(t *testing.T) {
	env := newTestEnv(t)
	gerente := env.signup(t, "gerente@obra.mx", "Gerente")
	p := env.project(t, gerente)
	outsider := env.signup(t, "fuera@obra.mx", "Fuera")

	var ve engine.ValidationError
	_, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		ProjectID: p.ID, Title: "x", AssigneeID: outsider.ID, DueDate: "2026-02-01", ActorID: gerente.ID,
	})
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestMaterialConsumptionIsTransactional(t *testing.T) {
	env := newTestEnv(t)
	gerente := env.signup(t, "gerente@obra.mx", "Gerente")
	p := env.project(t, gerente)

	mat, err := env.Engine.CreateMaterial(env.Ctx, engine.MaterialCreateOptions{
		ProjectID: p.ID, Name: "Cemento", Unit: "sacos", Quantity: 10, ActorID: gerente.ID,
	})
	if err != nil {
		t.Fatalf("create material: %v", err)
	}

	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		ProjectID: p.ID, Title: "Colado", AssigneeID: gerente.ID, DueDate: "2026-02-01", ActorID: gerente.ID,
		Materials: []engine.MaterialRequest{{MaterialID: mat.ID, Quantity: 4}},
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if len(task.Materials) != 1 || task.Materials[0].Quantity != 4 {
		t.Fatalf("allocations = %+v", task.Materials)
	}
	after, _ := env.Engine.Repo.GetMaterial(env.Ctx, mat.ID)
	if after.Quantity != 6 {
		t.Fatalf("stock = %d, want 6", after.Quantity)
	}

	// over-allocation fails and leaves no partial writes behind
	_, err = env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		ProjectID: p.ID, Title: "Colado 2", AssigneeID: gerente.ID, DueDate: "2026-02-01", ActorID: gerente.ID,
		Materials: []engine.MaterialRequest{{MaterialID: mat.ID, Quantity: 7}},
	})
	if err == nil {
		t.Fatal("over-allocation succeeded")
	}
	after, _ = env.Engine.Repo.GetMaterial(env.Ctx, mat.ID)
	if after.Quantity != 6 {
		t.Fatalf("stock after failed task = %d, want 6", after.Quantity)
	}
	list, err := env.Engine.ListTasks(env.Ctx, engine.TaskListOptions{ProjectID: p.ID, UserID: gerente.ID})
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if list.Statistics.Total != 1 {
		t.Fatalf("tasks = %d, want 1", list.Statistics.Total)
	}
}

func TestCompleteTaskRequiresCommentAndEvidence(t *testing.T) {
	env := newTestEnv(t)
	gerente := env.signup(t, "gerente@obra.mx", "Gerente")
	p := env.project(t, gerente)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		ProjectID: p.ID, Title: "Muro", AssigneeID: gerente.ID, DueDate: "2026-02-01", ActorID: gerente.ID,
	})
	if err != nil {
		t.Fatal(err)
	}

	var ve engine.ValidationError
	if _, err := env.Engine.CompleteTask(env.Ctx, task.ID, gerente.ID, "", "https://cdn/x.jpg"); !errors.As(err, &ve) {
		t.Fatalf("missing comment err = %v", err)
	}
	if _, err := env.Engine.CompleteTask(env.Ctx, task.ID, gerente.ID, "listo", ""); !errors.As(err, &ve) {
		t.Fatalf("missing evidence err = %v", err)
	}
	done, err := env.Engine.CompleteTask(env.Ctx, task.ID, gerente.ID, "listo", "https://cdn/x.jpg")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != domain.TaskCompletada || done.CompletedAt == nil {
		t.Fatalf("done = %+v", done)
	}
	if _, err := env.Engine.CompleteTask(env.Ctx, task.ID, gerente.ID, "otra vez", "https://cdn/y.jpg"); !errors.As(err, &ve) {
		t.Fatalf("re-complete err = %v", err)
	}
	if _, err := env.Engine.StartTask(env.Ctx, task.ID, gerente.ID); err == nil {
		t.Fatal("starting a completed task succeeded")
	}
}

func TestRoleScopedTaskReach(t *testing.T) {
	env := newTestEnv(t)
	gerente := env.signup(t, "gerente@obra.mx", "Gerente")
	p := env.project(t, gerente)
	supervisor := env.member(t, p.ID, gerente, "super@obra.mx", "Super", domain.RoleSupervisor)
	emp1 := env.member(t, p.ID, gerente, "emp1@obra.mx", "Emp1", domain.RoleEmpleado)
	emp2 := env.member(t, p.ID, gerente, "emp2@obra.mx", "Emp2", domain.RoleEmpleado)

	mk := func(assignee domain.User, title string) domain.Task {
		task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
			ProjectID: p.ID, Title: title, AssigneeID: assignee.ID, DueDate: "2026-02-01", ActorID: gerente.ID,
		})
		if err != nil {
			t.Fatalf("create %s: %v", title, err)
		}
		return task
	}
	tSup := mk(supervisor, "de super")
	tEmp1 := mk(emp1, "de emp1")
	tEmp2 := mk(emp2, "de emp2")
	tGer := mk(gerente, "de gerente")

	count := func(userID string) int {
		list, err := env.Engine.ListTasks(env.Ctx, engine.TaskListOptions{ProjectID: p.ID, UserID: userID})
		if err != nil {
			t.Fatalf("list for %s: %v", userID, err)
		}
		return list.Statistics.Total
	}
	if got := count(gerente.ID); got != 4 {
		t.Fatalf("gerente sees %d", got)
	}
	if got := count(supervisor.ID); got != 3 { // own plus both empleados, not the gerente's
		t.Fatalf("supervisor sees %d", got)
	}
	if got := count(emp1.ID); got != 1 {
		t.Fatalf("emp1 sees %d", got)
	}

	// reach on mutations follows the same scope
	var fe access.ForbiddenError
	if _, err := env.Engine.StartTask(env.Ctx, tEmp2.ID, emp1.ID); !errors.As(err, &fe) {
		t.Fatalf("emp1 starting emp2 task err = %v", err)
	}
	if _, err := env.Engine.StartTask(env.Ctx, tEmp1.ID, supervisor.ID); err != nil {
		t.Fatalf("supervisor starting empleado task: %v", err)
	}
	if _, err := env.Engine.StartTask(env.Ctx, tGer.ID, supervisor.ID); !errors.As(err, &fe) {
		t.Fatalf("supervisor starting gerente task err = %v", err)
	}
	if _, err := env.Engine.GetTask(env.Ctx, tSup.ID, emp1.ID); !errors.As(err, &fe) {
		t.Fatalf("emp1 reading supervisor task err = %v", err)
	}
}

func TestChangeDueDateIsManagerOnlyAndNotifies(t *testing.T) {
	env := newTestEnv(t)
	gerente := env.signup(t, "gerente@obra.mx", "Gerente")
	p := env.project(t, gerente)
	supervisor := env.member(t, p.ID, gerente, "super@obra.mx", "Super", domain.RoleSupervisor)
	emp := env.member(t, p.ID, gerente, "emp@obra.mx", "Emp", domain.RoleEmpleado)

	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		ProjectID: p.ID, Title: "Losa", AssigneeID: emp.ID, DueDate: "2026-02-01", ActorID: gerente.ID,
	})
	if err != nil {
		t.Fatal(err)
	}

	var fe access.ForbiddenError
	if _, err := env.Engine.ChangeDueDate(env.Ctx, task.ID, supervisor.ID, "2026-03-01", "retraso"); !errors.As(err, &fe) {
		t.Fatalf("supervisor change err = %v", err)
	}

	changed, err := env.Engine.ChangeDueDate(env.Ctx, task.ID, gerente.ID, "2026-03-01", "retraso de obra")
	if err != nil {
		t.Fatalf("change: %v", err)
	}
	if changed.DueDate != "2026-03-01" {
		t.Fatalf("due = %s", changed.DueDate)
	}
	got, err := env.Engine.GetTask(env.Ctx, task.ID, gerente.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.DueDateHistory) != 1 || got.DueDateHistory[0].PreviousDate != "2026-02-01" || got.DueDateHistory[0].NewDate != "2026-03-01" {
		t.Fatalf("history = %+v", got.DueDateHistory)
	}

	feed, err := env.Engine.Feed(env.Ctx, emp.ID)
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	var change *engine.FeedItem
	for i := range feed {
		if feed[i].Kind == "cambio_fecha" {
			change = &feed[i]
		}
	}
	if change == nil {
		t.Fatalf("no cambio_fecha in feed: %+v", feed)
	}
	if _, err := env.Engine.MarkNotificationRead(env.Ctx, change.ID, emp.ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	feed, _ = env.Engine.Feed(env.Ctx, emp.ID)
	for _, item := range feed {
		if item.Kind == "cambio_fecha" {
			t.Fatalf("read notification still in feed: %+v", item)
		}
	}
}

func TestFeedShowsInvitationsAndAssignedTasks(t *testing.T) {
	env := newTestEnv(t)
	gerente := env.signup(t, "gerente@obra.mx", "Gerente")
	p := env.project(t, gerente)
	emp := env.signup(t, "emp@obra.mx", "Emp")

	if _, err := env.Engine.Invite(env.Ctx, p.ID, emp.Email, domain.RoleEmpleado, gerente.ID); err != nil {
		t.Fatal(err)
	}
	feed, err := env.Engine.Feed(env.Ctx, emp.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(feed) != 1 || feed[0].Kind != "invitacion" || feed[0].ProjectName != "Torre Norte" {
		t.Fatalf("feed = %+v", feed)
	}

	if _, err := env.Engine.AcceptInvitation(env.Ctx, feed[0].MembershipID, emp.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		ProjectID: p.ID, Title: "Zanja", AssigneeID: emp.ID, DueDate: "2026-02-01", ActorID: gerente.ID,
	}); err != nil {
		t.Fatal(err)
	}
	feed, _ = env.Engine.Feed(env.Ctx, emp.ID)
	if len(feed) != 1 || feed[0].Kind != "tarea_asignada" {
		t.Fatalf("feed = %+v", feed)
	}
}

func TestSignInAndChangePassword(t *testing.T) {
	env := newTestEnv(t)
	u := env.signup(t, "ana@obra.mx", "Ana")

	token, got, err := env.Engine.SignIn(env.Ctx, "ana@obra.mx", "secreto123")
	if err != nil || token == "" || got.ID != u.ID {
		t.Fatalf("signin: %q %v %v", token, got, err)
	}
	if _, _, err := env.Engine.SignIn(env.Ctx, "ana@obra.mx", "equivocada"); !engine.IsInvalidCredentials(err) {
		t.Fatalf("wrong password err = %v", err)
	}
	if err := env.Engine.ChangePassword(env.Ctx, u.ID, "equivocada", "nuevo-secreto"); !engine.IsInvalidCredentials(err) {
		t.Fatalf("change with wrong current err = %v", err)
	}
	if err := env.Engine.ChangePassword(env.Ctx, u.ID, "secreto123", "nuevo-secreto"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if _, _, err := env.Engine.SignIn(env.Ctx, "ana@obra.mx", "nuevo-secreto"); err != nil {
		t.Fatalf("signin after change: %v", err)
	}
}
