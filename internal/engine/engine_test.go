package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Paulygold/task-flow-manager/internal/db"
	"github.com/Paulygold/task-flow-manager/internal/domain"
	"github.com/Paulygold/task-flow-manager/internal/engine"
	"github.com/Paulygold/task-flow-manager/internal/events"
	"github.com/Paulygold/task-flow-manager/internal/migrate"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	clock  *time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	if err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	env := &testEnv{Ctx: ctx, clock: &clock}
	eng := engine.New(conn, nil)
	eng.Now = func() time.Time { return *env.clock }
	env.Engine = eng
	return env
}

func (env *testEnv) tick() {
	*env.clock = env.clock.Add(time.Minute)
}

// account inserts an actor the way sign-up does and returns its id.
func (env *testEnv) account(t *testing.T, email string) string {
	t.Helper()
	id := "actor-" + email
	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	a := domain.Actor{ID: id, Email: email, CreatedAt: env.clock.Format(time.RFC3339)}
	if err := env.Engine.Repo.InsertActor(env.Ctx, tx, a, ""); err != nil {
		t.Fatalf("insert actor: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	return id
}

func (env *testEnv) accountWithRole(t *testing.T, email string, role domain.Role) string {
	t.Helper()
	id := env.account(t, email)
	if role == domain.RoleEmployee {
		return id
	}
	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	if err := env.Engine.Repo.ReplaceRole(env.Ctx, tx, id, role, env.clock.Format(time.RFC3339)); err != nil {
		t.Fatalf("set role: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	return id
}

func ptr(s string) *string { return &s }

func TestAccountCreationYieldsProfileAndEmployeeRole(t *testing.T) {
	env := newTestEnv(t)
	id := env.account(t, "new@example.com")
	me, err := env.Engine.Me(env.Ctx, id)
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	if me.Profile.ID != id || me.Profile.Email != "new@example.com" {
		t.Fatalf("unexpected profile %+v", me.Profile)
	}
	if me.Role != domain.RoleEmployee {
		t.Fatalf("expected employee, got %s", me.Role)
	}
	roles, err := env.Engine.ListRoles(env.Ctx, id)
	if err != nil {
		t.Fatalf("list roles: %v", err)
	}
	if len(roles) != 1 || roles[0].Role != domain.RoleEmployee {
		t.Fatalf("expected exactly one employee row, got %+v", roles)
	}
}

func TestUnknownActorIsUnauthenticated(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.ListProjects(env.Ctx, "ghost", engine.ProjectFilter{}); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
	if _, err := env.Engine.ListTasks(env.Ctx, "", engine.TaskListOptions{}); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
}

func TestProjectScenario(t *testing.T) {
	env := newTestEnv(t)
	admin := env.accountWithRole(t, "admin@example.com", domain.RoleAdmin)
	head := env.accountWithRole(t, "head@example.com", domain.RoleDepartmentHead)
	emp := env.account(t, "emp@example.com")

	p, err := env.Engine.CreateProject(env.Ctx, admin, engine.ProjectCreateOptions{Name: "Launch"})
	if err != nil {
		t.Fatalf("admin create: %v", err)
	}
	if p.CreatedBy == nil || *p.CreatedBy != admin {
		t.Fatalf("created_by not recorded: %+v", p)
	}
	list, err := env.Engine.ListProjects(env.Ctx, head, engine.ProjectFilter{})
	if err != nil || len(list) != 1 || list[0].Name != "Launch" {
		t.Fatalf("head list: %v %+v", err, list)
	}
	if _, err := env.Engine.CreateProject(env.Ctx, emp, engine.ProjectCreateOptions{Name: "X"}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("employee create should be forbidden, got %v", err)
	}
	if _, err := env.Engine.UpdateProject(env.Ctx, emp, p.ID, engine.ProjectPatch{Name: ptr("Y")}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("employee update should be forbidden, got %v", err)
	}
	if err := env.Engine.DeleteProject(env.Ctx, head, p.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("head delete should be forbidden, got %v", err)
	}
	updated, err := env.Engine.UpdateProject(env.Ctx, head, p.ID, engine.ProjectPatch{Description: ptr("q3")})
	if err != nil || updated.Description != "q3" {
		t.Fatalf("head update: %v %+v", err, updated)
	}
	if _, err := env.Engine.CreateProject(env.Ctx, head, engine.ProjectCreateOptions{Name: "  "}); !errors.As(err, new(domain.ValidationError)) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := env.Engine.DeleteProject(env.Ctx, admin, p.ID); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	if _, err := env.Engine.GetProject(env.Ctx, emp, p.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestTaskScenario(t *testing.T) {
	env := newTestEnv(t)
	head := env.accountWithRole(t, "head@example.com", domain.RoleDepartmentHead)
	a := env.account(t, "a@example.com")
	b := env.account(t, "b@example.com")

	task, err := env.Engine.CreateTask(env.Ctx, head, engine.TaskCreateOptions{Title: "Review", AssignedTo: a})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.Status != domain.StatusPending || task.Priority != domain.PriorityMedium {
		t.Fatalf("unexpected defaults %+v", task)
	}

	listA, err := env.Engine.ListTasks(env.Ctx, a, engine.TaskListOptions{})
	if err != nil || len(listA) != 1 || listA[0].ID != task.ID {
		t.Fatalf("assignee list: %v %+v", err, listA)
	}
	listB, err := env.Engine.ListTasks(env.Ctx, b, engine.TaskListOptions{})
	if err != nil || len(listB) != 0 {
		t.Fatalf("other employee should see nothing: %v %+v", err, listB)
	}
	if _, err := env.Engine.GetTask(env.Ctx, b, task.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("hidden task should read as not found, got %v", err)
	}
	if _, err := env.Engine.UpdateTask(env.Ctx, b, task.ID, engine.TaskPatch{Status: ptr("completed")}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("other employee update should be forbidden, got %v", err)
	}

	env.tick()
	done, err := env.Engine.UpdateTask(env.Ctx, a, task.ID, engine.TaskPatch{Status: ptr("completed")})
	if err != nil {
		t.Fatalf("assignee complete: %v", err)
	}
	if done.Status != domain.StatusCompleted || done.CompletedAt == nil || *done.CompletedAt != "2024-01-01T00:01:00Z" {
		t.Fatalf("completed_at not set: %+v", done)
	}

	if err := env.Engine.DeleteTask(env.Ctx, a, task.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("employee delete should be forbidden, got %v", err)
	}
	if err := env.Engine.DeleteTask(env.Ctx, head, task.ID); err != nil {
		t.Fatalf("head delete: %v", err)
	}
}

func TestEmployeeCannotReassignOwnTask(t *testing.T) {
	env := newTestEnv(t)
	head := env.accountWithRole(t, "head@example.com", domain.RoleDepartmentHead)
	a := env.account(t, "a@example.com")
	b := env.account(t, "b@example.com")
	task, err := env.Engine.CreateTask(env.Ctx, head, engine.TaskCreateOptions{Title: "Mine", AssignedTo: a})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := env.Engine.UpdateTask(env.Ctx, a, task.ID, engine.TaskPatch{AssignedTo: ptr(b)}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("reassign should be forbidden, got %v", err)
	}
	if _, err := env.Engine.UpdateTask(env.Ctx, a, task.ID, engine.TaskPatch{AssignedTo: ptr("")}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("unassign should be forbidden, got %v", err)
	}
	got, err := env.Engine.GetTask(env.Ctx, a, task.ID)
	if err != nil || got.AssignedTo == nil || *got.AssignedTo != a {
		t.Fatalf("assignment changed: %v %+v", err, got)
	}
}

func TestCompletionTransitions(t *testing.T) {
	env := newTestEnv(t)
	head := env.accountWithRole(t, "head@example.com", domain.RoleDepartmentHead)
	task, err := env.Engine.CreateTask(env.Ctx, head, engine.TaskCreateOptions{Title: "Flow", Status: "in_progress"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.CompletedAt != nil {
		t.Fatalf("in_progress task has completed_at")
	}
	first, err := env.Engine.UpdateTask(env.Ctx, head, task.ID, engine.TaskPatch{Status: ptr("completed")})
	if err != nil || first.CompletedAt == nil {
		t.Fatalf("complete: %v %+v", err, first)
	}
	env.tick()
	again, err := env.Engine.UpdateTask(env.Ctx, head, task.ID, engine.TaskPatch{Status: ptr("completed"), Priority: ptr("high")})
	if err != nil {
		t.Fatalf("complete again: %v", err)
	}
	if *again.CompletedAt != *first.CompletedAt {
		t.Fatalf("completed_at moved: %s -> %s", *first.CompletedAt, *again.CompletedAt)
	}
	reopened, err := env.Engine.UpdateTask(env.Ctx, head, task.ID, engine.TaskPatch{Status: ptr("pending")})
	if err != nil || reopened.CompletedAt != nil {
		t.Fatalf("reopen should clear completed_at: %v %+v", err, reopened)
	}
	created, err := env.Engine.CreateTask(env.Ctx, head, engine.TaskCreateOptions{Title: "Born done", Status: "completed"})
	if err != nil || created.CompletedAt == nil {
		t.Fatalf("create completed: %v %+v", err, created)
	}
}

func TestIdempotentTaskUpdate(t *testing.T) {
	env := newTestEnv(t)
	head := env.accountWithRole(t, "head@example.com", domain.RoleDepartmentHead)
	task, err := env.Engine.CreateTask(env.Ctx, head, engine.TaskCreateOptions{Title: "Same"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	patch := engine.TaskPatch{Title: ptr("Same twice"), Priority: ptr("urgent")}
	env.tick()
	first, err := env.Engine.UpdateTask(env.Ctx, head, task.ID, patch)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	env.tick()
	second, err := env.Engine.UpdateTask(env.Ctx, head, task.ID, patch)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first.UpdatedAt != second.UpdatedAt || first.Title != second.Title || first.Priority != second.Priority {
		t.Fatalf("second apply changed the row:\n%+v\n%+v", first, second)
	}
	evts, err := events.List(env.Ctx, env.Engine.DB, "task", task.ID, 0)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(evts) != 2 || evts[0].Type != "task.update" || evts[1].Type != "task.create" {
		t.Fatalf("expected create + one update event, got %+v", evts)
	}
}

func TestEventsUseEngineClock(t *testing.T) {
	env := newTestEnv(t)
	head := env.accountWithRole(t, "head@example.com", domain.RoleDepartmentHead)
	env.tick()
	want := env.clock.Format(time.RFC3339)
	p, err := env.Engine.CreateProject(env.Ctx, head, engine.ProjectCreateOptions{Name: "Clocked"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	evts, err := events.List(env.Ctx, env.Engine.DB, "project", p.ID, 0)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(evts) != 1 || evts[0].TS != want || p.CreatedAt != want {
		t.Fatalf("expected event and row stamped %s, got %+v / %s", want, evts, p.CreatedAt)
	}
}

func TestTaskValidation(t *testing.T) {
	env := newTestEnv(t)
	head := env.accountWithRole(t, "head@example.com", domain.RoleDepartmentHead)
	cases := []engine.TaskCreateOptions{
		{Title: ""},
		{Title: "x", Priority: "critical"},
		{Title: "x", Status: "done"},
		{Title: "x", ProjectID: "nope"},
		{Title: "x", AssignedTo: "nobody"},
		{Title: "x", DueDate: "next week"},
	}
	for _, opts := range cases {
		var verr domain.ValidationError
		if _, err := env.Engine.CreateTask(env.Ctx, head, opts); !errors.As(err, &verr) {
			t.Fatalf("%+v: expected validation error, got %v", opts, err)
		}
	}
	task, err := env.Engine.CreateTask(env.Ctx, head, engine.TaskCreateOptions{Title: "dated", DueDate: "2024-02-01"})
	if err != nil || task.DueDate == nil || *task.DueDate != "2024-02-01" {
		t.Fatalf("due date: %v %+v", err, task)
	}
}

func TestNotFoundVersusForbidden(t *testing.T) {
	env := newTestEnv(t)
	head := env.accountWithRole(t, "head@example.com", domain.RoleDepartmentHead)
	emp := env.account(t, "emp@example.com")
	if _, err := env.Engine.GetTask(env.Ctx, head, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("head read missing: %v", err)
	}
	if _, err := env.Engine.UpdateTask(env.Ctx, head, "missing", engine.TaskPatch{Title: ptr("x")}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("head update missing: %v", err)
	}
	if _, err := env.Engine.GetTask(env.Ctx, emp, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("employee read missing: %v", err)
	}
	if _, err := env.Engine.UpdateTask(env.Ctx, emp, "missing", engine.TaskPatch{Title: ptr("x")}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("employee update missing should be forbidden, got %v", err)
	}
	if _, err := env.Engine.UpdateProject(env.Ctx, emp, "missing", engine.ProjectPatch{Name: ptr("x")}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("employee project update missing should be forbidden, got %v", err)
	}
}

func TestProfileUpdateIsSelfOnlyAndRoleless(t *testing.T) {
	env := newTestEnv(t)
	admin := env.accountWithRole(t, "admin@example.com", domain.RoleAdmin)
	emp := env.account(t, "emp@example.com")

	p, err := env.Engine.UpdateProfile(env.Ctx, emp, emp, engine.ProfilePatch{FullName: ptr("Emma")})
	if err != nil || p.FullName != "Emma" {
		t.Fatalf("self update: %v %+v", err, p)
	}
	if _, err := env.Engine.UpdateProfile(env.Ctx, admin, emp, engine.ProfilePatch{FullName: ptr("X")}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("admin updating another profile should be forbidden, got %v", err)
	}
	if _, err := env.Engine.SetRole(env.Ctx, emp, emp, "admin"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("self role escalation should be forbidden, got %v", err)
	}
	me, err := env.Engine.Me(env.Ctx, emp)
	if err != nil || me.Role != domain.RoleEmployee {
		t.Fatalf("role changed: %v %+v", err, me)
	}
	profiles, err := env.Engine.ListProfiles(env.Ctx, emp)
	if err != nil || len(profiles) != 2 {
		t.Fatalf("profiles readable by everyone: %v %+v", err, profiles)
	}
}

func TestRoleAdministration(t *testing.T) {
	env := newTestEnv(t)
	admin := env.accountWithRole(t, "admin@example.com", domain.RoleAdmin)
	emp := env.account(t, "emp@example.com")
	other := env.account(t, "other@example.com")

	if _, err := env.Engine.GetRole(env.Ctx, emp, other); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("employee reading another role should be not found, got %v", err)
	}
	own, err := env.Engine.GetRole(env.Ctx, emp, emp)
	if err != nil || own.Role != domain.RoleEmployee {
		t.Fatalf("own role: %v %+v", err, own)
	}
	list, err := env.Engine.ListRoles(env.Ctx, emp)
	if err != nil || len(list) != 1 || list[0].ActorID != emp {
		t.Fatalf("employee list narrowed to self: %v %+v", err, list)
	}
	all, err := env.Engine.ListRoles(env.Ctx, admin)
	if err != nil || len(all) != 3 {
		t.Fatalf("admin list: %v %+v", err, all)
	}

	ra, err := env.Engine.SetRole(env.Ctx, admin, emp, "department_head")
	if err != nil || ra.Role != domain.RoleDepartmentHead {
		t.Fatalf("set role: %v %+v", err, ra)
	}
	if _, err := env.Engine.SetRole(env.Ctx, admin, emp, "owner"); !errors.As(err, new(domain.ValidationError)) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := env.Engine.SetRole(env.Ctx, admin, "ghost", "admin"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := env.Engine.CreateRole(env.Ctx, admin, emp, "admin"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	reset, err := env.Engine.DeleteRole(env.Ctx, admin, emp)
	if err != nil || reset.Role != domain.RoleEmployee {
		t.Fatalf("delete role: %v %+v", err, reset)
	}
	if _, err := env.Engine.DeleteRole(env.Ctx, emp, other); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("employee delete role should be forbidden, got %v", err)
	}
}

func TestBootstrapAdminOnlyOnce(t *testing.T) {
	env := newTestEnv(t)
	first := env.account(t, "first@example.com")
	second := env.account(t, "second@example.com")
	ra, err := env.Engine.BootstrapAdmin(env.Ctx, first)
	if err != nil || ra.Role != domain.RoleAdmin {
		t.Fatalf("bootstrap: %v %+v", err, ra)
	}
	if _, err := env.Engine.BootstrapAdmin(env.Ctx, second); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("second bootstrap should be forbidden, got %v", err)
	}
}

func TestDeletingProjectKeepsTasks(t *testing.T) {
	env := newTestEnv(t)
	admin := env.accountWithRole(t, "admin@example.com", domain.RoleAdmin)
	p, err := env.Engine.CreateProject(env.Ctx, admin, engine.ProjectCreateOptions{Name: "Temp"})
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	task, err := env.Engine.CreateTask(env.Ctx, admin, engine.TaskCreateOptions{Title: "orphan", ProjectID: p.ID})
	if err != nil {
		t.Fatalf("task: %v", err)
	}
	sum, err := env.Engine.SummarizeProject(env.Ctx, admin, p.ID)
	if err != nil || sum.Counts[domain.StatusPending] != 1 {
		t.Fatalf("summary: %v %+v", err, sum)
	}
	if err := env.Engine.DeleteProject(env.Ctx, admin, p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err := env.Engine.GetTask(env.Ctx, admin, task.ID)
	if err != nil || got.ProjectID != nil {
		t.Fatalf("task should survive with project cleared: %v %+v", err, got)
	}
}

func TestSummaryCountsOnlyReadableTasks(t *testing.T) {
	env := newTestEnv(t)
	head := env.accountWithRole(t, "head@example.com", domain.RoleDepartmentHead)
	emp := env.account(t, "emp@example.com")
	other := env.account(t, "other@example.com")
	p, err := env.Engine.CreateProject(env.Ctx, head, engine.ProjectCreateOptions{Name: "Counted"})
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	for _, opts := range []engine.TaskCreateOptions{
		{Title: "mine open", ProjectID: p.ID, AssignedTo: emp},
		{Title: "mine done", ProjectID: p.ID, AssignedTo: emp, Status: "completed"},
		{Title: "theirs", ProjectID: p.ID, AssignedTo: other},
		{Title: "nobody", ProjectID: p.ID},
	} {
		if _, err := env.Engine.CreateTask(env.Ctx, head, opts); err != nil {
			t.Fatalf("create %s: %v", opts.Title, err)
		}
	}
	mine, err := env.Engine.SummarizeProject(env.Ctx, emp, p.ID)
	if err != nil {
		t.Fatalf("employee summary: %v", err)
	}
	if mine.Counts[domain.StatusPending] != 1 || mine.Counts[domain.StatusCompleted] != 1 || len(mine.Counts) != 2 {
		t.Fatalf("employee should count only own tasks, got %+v", mine.Counts)
	}
	all, err := env.Engine.SummarizeProject(env.Ctx, head, p.ID)
	if err != nil {
		t.Fatalf("head summary: %v", err)
	}
	if all.Counts[domain.StatusPending] != 3 || all.Counts[domain.StatusCompleted] != 1 {
		t.Fatalf("head should count every task, got %+v", all.Counts)
	}
}

func TestListTasksFilters(t *testing.T) {
	env := newTestEnv(t)
	head := env.accountWithRole(t, "head@example.com", domain.RoleDepartmentHead)
	a := env.account(t, "a@example.com")
	b := env.account(t, "b@example.com")
	for _, opts := range []engine.TaskCreateOptions{
		{Title: "a1", AssignedTo: a, Priority: "high"},
		{Title: "a2", AssignedTo: a, Status: "completed"},
		{Title: "b1", AssignedTo: b},
	} {
		if _, err := env.Engine.CreateTask(env.Ctx, head, opts); err != nil {
			t.Fatalf("create %s: %v", opts.Title, err)
		}
	}
	all, err := env.Engine.ListTasks(env.Ctx, head, engine.TaskListOptions{})
	if err != nil || len(all) != 3 {
		t.Fatalf("head sees all: %v %d", err, len(all))
	}
	high, err := env.Engine.ListTasks(env.Ctx, head, engine.TaskListOptions{Priority: "high"})
	if err != nil || len(high) != 1 || high[0].Title != "a1" {
		t.Fatalf("priority filter: %v %+v", err, high)
	}
	spy, err := env.Engine.ListTasks(env.Ctx, a, engine.TaskListOptions{AssignedTo: b})
	if err != nil || len(spy) != 0 {
		t.Fatalf("employee filtering by another assignee: %v %+v", err, spy)
	}
	done, err := env.Engine.ListTasks(env.Ctx, a, engine.TaskListOptions{Status: "completed"})
	if err != nil || len(done) != 1 || done[0].Title != "a2" {
		t.Fatalf("status filter: %v %+v", err, done)
	}
	if _, err := env.Engine.ListTasks(env.Ctx, a, engine.TaskListOptions{Status: "bogus"}); !errors.As(err, new(domain.ValidationError)) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
