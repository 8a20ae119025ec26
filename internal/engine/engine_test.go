package engine_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"hrline/internal/config"
	"hrline/internal/db"
	"hrline/internal/engine"
	"hrline/internal/migrate"
	"hrline/internal/repo"
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
	cfg := config.Default("org-1")
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if _, err := eng.InitOrg(ctx, "org-1", "Test Org", "tester"); err != nil {
		t.Fatalf("init org: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func seedEmployee(t *testing.T, env testEnv, id, role string) {
	t.Helper()
	_, err := env.Engine.CreateEmployee(env.Ctx, engine.EmployeeCreateOptions{
		ID:        id,
		OrgID:     "org-1",
		FirstName: "First",
		LastName:  id,
		Email:     id + "@example.com",
		Roles:     []string{role},
		ActorID:   "tester",
	})
	if err != nil {
		t.Fatalf("seed employee %s: %v", id, err)
	}
}

func seedStandardCast(t *testing.T, env testEnv) {
	t.Helper()
	seedEmployee(t, env, "mgr-1", "hr_manager")
	seedEmployee(t, env, "fin-1", "finance_manager")
	seedEmployee(t, env, "emp-1", "employee")
}

func TestCreateApprovalChain(t *testing.T) {
	env := newTestEnv(t)
	seedStandardCast(t, env)
	a, err := env.Engine.CreateApproval(env.Ctx, engine.ApprovalCreateOptions{
		EntityType:  "expense_claim",
		EntityID:    "exp-1",
		RequesterID: "emp-1",
		ApproverIDs: []string{"mgr-1", "fin-1"},
		ActorID:     "tester",
	})
	if err != nil {
		t.Fatalf("create approval: %v", err)
	}
	if a.Status != "pending" || a.TotalSteps != 2 || a.CurrentStep != 1 {
		t.Fatalf("unexpected record: %+v", a)
	}
	if len(a.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(a.Steps))
	}
	for i, s := range a.Steps {
		if s.StepNumber != i+1 || s.Status != "pending" {
			t.Fatalf("unexpected step %d: %+v", i, s)
		}
	}
	if a.Steps[0].ApproverID != "mgr-1" || a.Steps[1].ApproverID != "fin-1" {
		t.Fatalf("steps out of order: %+v", a.Steps)
	}

	// same entity again is a duplicate
	_, err = env.Engine.CreateApproval(env.Ctx, engine.ApprovalCreateOptions{
		EntityType:  "expense_claim",
		EntityID:    "exp-1",
		RequesterID: "emp-1",
		ApproverIDs: []string{"mgr-1"},
		ActorID:     "tester",
	})
	var dup engine.DuplicateApprovalError
	if !errors.As(err, &dup) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestCreateApprovalUnknownEmployee(t *testing.T) {
	env := newTestEnv(t)
	seedStandardCast(t, env)
	_, err := env.Engine.CreateApproval(env.Ctx, engine.ApprovalCreateOptions{
		EntityType:  "expense_claim",
		EntityID:    "exp-2",
		RequesterID: "emp-1",
		ApproverIDs: []string{"ghost"},
		ActorID:     "tester",
	})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSequentialApproval(t *testing.T) {
	env := newTestEnv(t)
	seedStandardCast(t, env)
	a, err := env.Engine.CreateApproval(env.Ctx, engine.ApprovalCreateOptions{
		EntityType:  "expense_claim",
		EntityID:    "exp-1",
		RequesterID: "emp-1",
		ApproverIDs: []string{"mgr-1", "fin-1"},
		ActorID:     "tester",
	})
	if err != nil {
		t.Fatal(err)
	}

	// second approver cannot act before the first
	_, err = env.Engine.ApproveStep(env.Ctx, a.ID, "fin-1", "")
	var wrong engine.WrongApproverError
	if !errors.As(err, &wrong) {
		t.Fatalf("expected wrong approver, got %v", err)
	}

	a, err = env.Engine.ApproveStep(env.Ctx, a.ID, "mgr-1", "looks fine")
	if err != nil {
		t.Fatalf("step 1: %v", err)
	}
	if a.Status != "pending" || a.CurrentStep != 2 {
		t.Fatalf("expected advance to step 2, got %+v", a)
	}
	if a.Steps[0].Status != "approved" || a.Steps[1].Status != "pending" {
		t.Fatalf("unexpected step statuses: %+v", a.Steps)
	}

	a, err = env.Engine.ApproveStep(env.Ctx, a.ID, "fin-1", "ok")
	if err != nil {
		t.Fatalf("step 2: %v", err)
	}
	if a.Status != "approved" {
		t.Fatalf("expected approved, got %s", a.Status)
	}
	if a.CurrentStep != a.TotalSteps {
		t.Fatalf("current step must stay at the last step after finalization, got %d of %d", a.CurrentStep, a.TotalSteps)
	}
	if a.ApproverID == nil || *a.ApproverID != "fin-1" {
		t.Fatalf("expected final approver fin-1, got %+v", a.ApproverID)
	}
	if a.ApprovedAt == nil {
		t.Fatalf("expected approved_at set")
	}

	// finished records never reopen
	_, err = env.Engine.ApproveStep(env.Ctx, a.ID, "fin-1", "")
	var invalid engine.InvalidStateError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestRejectionShortCircuits(t *testing.T) {
	env := newTestEnv(t)
	seedStandardCast(t, env)
	a, err := env.Engine.CreateApproval(env.Ctx, engine.ApprovalCreateOptions{
		EntityType:  "expense_claim",
		EntityID:    "exp-1",
		RequesterID: "emp-1",
		ApproverIDs: []string{"mgr-1", "fin-1"},
		ActorID:     "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	a, err = env.Engine.RejectApproval(env.Ctx, a.ID, "mgr-1", "no")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if a.Status != "rejected" {
		t.Fatalf("expected rejected, got %s", a.Status)
	}
	if a.Steps[0].Status != "rejected" {
		t.Fatalf("expected step 1 rejected, got %s", a.Steps[0].Status)
	}
	if a.Steps[1].Status != "pending" {
		t.Fatalf("later steps must stay pending, got %s", a.Steps[1].Status)
	}
	// the never-reached approver cannot act on a closed record
	_, err = env.Engine.ApproveStep(env.Ctx, a.ID, "fin-1", "")
	var invalid engine.InvalidStateError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestRejectionAtLaterStepKeepsEarlierApprovals(t *testing.T) {
	env := newTestEnv(t)
	seedStandardCast(t, env)
	a, err := env.Engine.CreateApproval(env.Ctx, engine.ApprovalCreateOptions{
		EntityType:  "expense_claim",
		EntityID:    "exp-1",
		RequesterID: "emp-1",
		ApproverIDs: []string{"mgr-1", "fin-1"},
		ActorID:     "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.ApproveStep(env.Ctx, a.ID, "mgr-1", "fine by me"); err != nil {
		t.Fatalf("step 1: %v", err)
	}
	a, err = env.Engine.RejectApproval(env.Ctx, a.ID, "fin-1", "over budget")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if a.Status != "rejected" {
		t.Fatalf("expected rejected, got %s", a.Status)
	}
	if a.Steps[0].Status != "approved" {
		t.Fatalf("step 1 decision must survive a later rejection, got %s", a.Steps[0].Status)
	}
	if a.Steps[0].Comments == nil || *a.Steps[0].Comments != "fine by me" {
		t.Fatalf("step 1 comment must survive, got %+v", a.Steps[0].Comments)
	}
	if a.Steps[1].Status != "rejected" {
		t.Fatalf("expected step 2 rejected, got %s", a.Steps[1].Status)
	}
}

func TestDecisionWithoutCommentKeepsRequestComment(t *testing.T) {
	env := newTestEnv(t)
	seedStandardCast(t, env)
	a, err := env.Engine.CreateApproval(env.Ctx, engine.ApprovalCreateOptions{
		EntityType:  "expense_claim",
		EntityID:    "exp-1",
		RequesterID: "emp-1",
		ApproverIDs: []string{"mgr-1"},
		Comments:    "replacement laptop",
		ActorID:     "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	a, err = env.Engine.ApproveStep(env.Ctx, a.ID, "mgr-1", "")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if a.Status != "approved" {
		t.Fatalf("expected approved, got %s", a.Status)
	}
	if a.Comments == nil || *a.Comments != "replacement laptop" {
		t.Fatalf("request comment must survive a silent approval, got %+v", a.Comments)
	}
}

func TestReplaceOnlyAfterRejection(t *testing.T) {
	env := newTestEnv(t)
	seedStandardCast(t, env)
	a, err := env.Engine.CreateApproval(env.Ctx, engine.ApprovalCreateOptions{
		EntityType:  "expense_claim",
		EntityID:    "exp-1",
		RequesterID: "emp-1",
		ApproverIDs: []string{"mgr-1"},
		ActorID:     "tester",
	})
	if err != nil {
		t.Fatal(err)
	}

	// replace of a pending record is refused
	_, err = env.Engine.CreateApproval(env.Ctx, engine.ApprovalCreateOptions{
		EntityType:  "expense_claim",
		EntityID:    "exp-1",
		RequesterID: "emp-1",
		ApproverIDs: []string{"mgr-1"},
		Replace:     true,
		ActorID:     "tester",
	})
	var invalid engine.InvalidStateError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected invalid state, got %v", err)
	}

	if _, err := env.Engine.RejectApproval(env.Ctx, a.ID, "mgr-1", ""); err != nil {
		t.Fatalf("reject: %v", err)
	}
	b, err := env.Engine.CreateApproval(env.Ctx, engine.ApprovalCreateOptions{
		EntityType:  "expense_claim",
		EntityID:    "exp-1",
		RequesterID: "emp-1",
		ApproverIDs: []string{"mgr-1", "fin-1"},
		Replace:     true,
		ActorID:     "tester",
	})
	if err != nil {
		t.Fatalf("replace after rejection: %v", err)
	}
	if b.ID == a.ID || b.Status != "pending" || b.CurrentStep != 1 || b.TotalSteps != 2 {
		t.Fatalf("expected fresh record, got %+v", b)
	}
}

func TestConcurrentApprovalSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	seedStandardCast(t, env)
	a, err := env.Engine.CreateApproval(env.Ctx, engine.ApprovalCreateOptions{
		EntityType:  "expense_claim",
		EntityID:    "exp-1",
		RequesterID: "emp-1",
		ApproverIDs: []string{"mgr-1"},
		ActorID:     "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.Engine.ApproveStep(env.Ctx, a.ID, "mgr-1", "")
		}(i)
	}
	wg.Wait()
	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d (errs: %v)", wins, errs)
	}
	got, err := env.Engine.GetApproval(env.Ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "approved" {
		t.Fatalf("expected approved, got %s", got.Status)
	}
}

func TestPendingOnlyForCurrentStep(t *testing.T) {
	env := newTestEnv(t)
	seedStandardCast(t, env)
	a, err := env.Engine.CreateApproval(env.Ctx, engine.ApprovalCreateOptions{
		EntityType:  "expense_claim",
		EntityID:    "exp-1",
		RequesterID: "emp-1",
		ApproverIDs: []string{"mgr-1", "fin-1"},
		ActorID:     "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	forMgr, err := env.Engine.PendingApprovalsForApprover(env.Ctx, "mgr-1")
	if err != nil || len(forMgr) != 1 {
		t.Fatalf("expected 1 pending for mgr, got %d (%v)", len(forMgr), err)
	}
	forFin, err := env.Engine.PendingApprovalsForApprover(env.Ctx, "fin-1")
	if err != nil || len(forFin) != 0 {
		t.Fatalf("later step must not surface yet, got %d (%v)", len(forFin), err)
	}
	if _, err := env.Engine.ApproveStep(env.Ctx, a.ID, "mgr-1", ""); err != nil {
		t.Fatal(err)
	}
	forMgr, _ = env.Engine.PendingApprovalsForApprover(env.Ctx, "mgr-1")
	forFin, _ = env.Engine.PendingApprovalsForApprover(env.Ctx, "fin-1")
	if len(forMgr) != 0 || len(forFin) != 1 {
		t.Fatalf("expected queue handoff, mgr=%d fin=%d", len(forMgr), len(forFin))
	}
}

func TestListApprovalsPagination(t *testing.T) {
	env := newTestEnv(t)
	seedStandardCast(t, env)
	for i := 0; i < 3; i++ {
		_, err := env.Engine.CreateApproval(env.Ctx, engine.ApprovalCreateOptions{
			EntityType:  "expense_claim",
			EntityID:    fmt.Sprintf("exp-%d", i),
			RequesterID: "emp-1",
			ApproverIDs: []string{"mgr-1"},
			ActorID:     "tester",
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	page, total, err := env.Engine.ListApprovals(env.Ctx, repo.ApprovalFilters{Take: 2})
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || len(page) != 2 {
		t.Fatalf("expected total 3 page 2, got total %d page %d", total, len(page))
	}
	rest, total, err := env.Engine.ListApprovals(env.Ctx, repo.ApprovalFilters{Skip: 2, Take: 2})
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || len(rest) != 1 {
		t.Fatalf("expected total 3 rest 1, got total %d rest %d", total, len(rest))
	}
	byRequester, _, err := env.Engine.ListApprovals(env.Ctx, repo.ApprovalFilters{RequesterID: "ghost"})
	if err != nil || len(byRequester) != 0 {
		t.Fatalf("expected empty filter result, got %d (%v)", len(byRequester), err)
	}
}

func TestLeaveRequestLifecycle(t *testing.T) {
	env := newTestEnv(t)
	seedStandardCast(t, env)
	l, a, err := env.Engine.SubmitLeaveRequest(env.Ctx, engine.LeaveSubmitOptions{
		EmployeeID: "emp-1",
		LeaveType:  "annual",
		StartDate:  "2024-03-04",
		EndDate:    "2024-03-06",
		ActorID:    "emp-1",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if l.Status != "pending" || l.Days != 3 {
		t.Fatalf("unexpected leave: %+v", l)
	}
	if a.EntityType != "leave_request" || a.EntityID != l.ID {
		t.Fatalf("approval not bound to leave: %+v", a)
	}
	if a.Steps[0].ApproverID != "mgr-1" {
		t.Fatalf("chain should resolve hr_manager, got %s", a.Steps[0].ApproverID)
	}

	// days reserved up front
	bal, err := env.Engine.Repo.GetLeaveBalance(env.Ctx, "emp-1", "annual", 2024)
	if err != nil {
		t.Fatal(err)
	}
	if bal.Used != 3 {
		t.Fatalf("expected 3 days reserved, got %d", bal.Used)
	}

	a, err = env.Engine.ApproveStep(env.Ctx, a.ID, "mgr-1", "")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if a.Status != "approved" {
		t.Fatalf("expected approved, got %s", a.Status)
	}
	l, err = env.Engine.GetLeaveRequest(env.Ctx, l.ID)
	if err != nil {
		t.Fatal(err)
	}
	if l.Status != "approved" || l.DecidedBy == nil || *l.DecidedBy != "mgr-1" {
		t.Fatalf("leave not reconciled: %+v", l)
	}
}

func TestLeaveRejectionReleasesBalance(t *testing.T) {
	env := newTestEnv(t)
	seedStandardCast(t, env)
	l, a, err := env.Engine.SubmitLeaveRequest(env.Ctx, engine.LeaveSubmitOptions{
		EmployeeID: "emp-1",
		LeaveType:  "annual",
		StartDate:  "2024-03-04",
		EndDate:    "2024-03-08",
		ActorID:    "emp-1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.RejectApproval(env.Ctx, a.ID, "mgr-1", "coverage gap"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	l, err = env.Engine.GetLeaveRequest(env.Ctx, l.ID)
	if err != nil {
		t.Fatal(err)
	}
	if l.Status != "rejected" {
		t.Fatalf("expected rejected, got %s", l.Status)
	}
	bal, err := env.Engine.Repo.GetLeaveBalance(env.Ctx, "emp-1", "annual", 2024)
	if err != nil {
		t.Fatal(err)
	}
	if bal.Used != 0 {
		t.Fatalf("expected reservation released, got %d", bal.Used)
	}

	// resubmission reopens through a fresh chain and reserves again
	l2, a2, err := env.Engine.ResubmitLeaveRequest(env.Ctx, l.ID, "emp-1")
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if l2.Status != "pending" || a2.ID == a.ID || a2.Status != "pending" {
		t.Fatalf("unexpected resubmit state: leave=%+v approval=%+v", l2, a2)
	}
	bal, _ = env.Engine.Repo.GetLeaveBalance(env.Ctx, "emp-1", "annual", 2024)
	if bal.Used != 5 {
		t.Fatalf("expected re-reservation of 5 days, got %d", bal.Used)
	}
}

func TestLeaveInsufficientBalance(t *testing.T) {
	env := newTestEnv(t)
	seedStandardCast(t, env)
	_, _, err := env.Engine.SubmitLeaveRequest(env.Ctx, engine.LeaveSubmitOptions{
		EmployeeID: "emp-1",
		LeaveType:  "annual",
		StartDate:  "2024-03-01",
		EndDate:    "2024-03-26",
		ActorID:    "emp-1",
	})
	var invalid engine.InvalidStateError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected invalid state for 26 of 25 days, got %v", err)
	}
	// unpaid has no allowance and never blocks
	_, _, err = env.Engine.SubmitLeaveRequest(env.Ctx, engine.LeaveSubmitOptions{
		EmployeeID: "emp-1",
		LeaveType:  "unpaid",
		StartDate:  "2024-03-01",
		EndDate:    "2024-04-30",
		ActorID:    "emp-1",
	})
	if err != nil {
		t.Fatalf("unpaid leave should not be capped: %v", err)
	}
}

func TestLeaveBalancesMaterializeConfiguredTypes(t *testing.T) {
	env := newTestEnv(t)
	seedStandardCast(t, env)
	balances, err := env.Engine.LeaveBalances(env.Ctx, "emp-1", 2024)
	if err != nil {
		t.Fatal(err)
	}
	if len(balances) != 3 {
		t.Fatalf("expected 3 configured types, got %d", len(balances))
	}
	byType := map[string]int{}
	for _, b := range balances {
		byType[b.LeaveType] = b.Allocated
	}
	if byType["annual"] != 25 || byType["sick"] != 10 || byType["unpaid"] != 0 {
		t.Fatalf("unexpected allocations: %v", byType)
	}
}

func TestAttendanceCheckInOut(t *testing.T) {
	env := newTestEnv(t)
	seedStandardCast(t, env)
	a, err := env.Engine.CheckIn(env.Ctx, "emp-1", "emp-1")
	if err != nil {
		t.Fatalf("checkin: %v", err)
	}
	if a.Status != "present" || a.CheckIn == nil {
		t.Fatalf("unexpected attendance: %+v", a)
	}
	_, err = env.Engine.CheckIn(env.Ctx, "emp-1", "emp-1")
	var invalid engine.InvalidStateError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected double checkin error, got %v", err)
	}
	a, err = env.Engine.CheckOut(env.Ctx, "emp-1", "emp-1")
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if a.CheckOut == nil {
		t.Fatalf("expected checkout timestamp")
	}
	_, err = env.Engine.CheckOut(env.Ctx, "emp-1", "emp-1")
	if !errors.As(err, &invalid) {
		t.Fatalf("expected double checkout error, got %v", err)
	}
}

func TestMarkAbsentees(t *testing.T) {
	env := newTestEnv(t)
	seedStandardCast(t, env)
	if _, err := env.Engine.CheckIn(env.Ctx, "emp-1", "emp-1"); err != nil {
		t.Fatal(err)
	}
	marked, err := env.Engine.MarkAbsentees(env.Ctx, "2024-01-01", "tester")
	if err != nil {
		t.Fatalf("mark absent: %v", err)
	}
	if len(marked) != 2 {
		t.Fatalf("expected 2 absentees, got %v", marked)
	}
	for _, id := range marked {
		if id == "emp-1" {
			t.Fatalf("checked-in employee must not be marked absent")
		}
	}
	// second sweep finds nothing new
	marked, err = env.Engine.MarkAbsentees(env.Ctx, "2024-01-01", "tester")
	if err != nil || len(marked) != 0 {
		t.Fatalf("expected idempotent sweep, got %v (%v)", marked, err)
	}
}

func TestWhoAmIRolesAndPermissions(t *testing.T) {
	env := newTestEnv(t)
	seedStandardCast(t, env)
	who, err := env.Engine.WhoAmI(env.Ctx, "mgr-1")
	if err != nil {
		t.Fatal(err)
	}
	hasRole := false
	for _, r := range who.Roles {
		if r == "hr_manager" {
			hasRole = true
		}
	}
	if !hasRole {
		t.Fatalf("expected hr_manager role, got %v", who.Roles)
	}
	hasDecide := false
	for _, p := range who.Permissions {
		if p == "approval.decide" {
			hasDecide = true
		}
	}
	if !hasDecide {
		t.Fatalf("expected approval.decide permission, got %v", who.Permissions)
	}

	if err := env.Engine.RevokeRole(env.Ctx, "mgr-1", "hr_manager", "tester"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	who, err = env.Engine.WhoAmI(env.Ctx, "mgr-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(who.Roles) != 0 {
		t.Fatalf("expected no roles after revoke, got %v", who.Roles)
	}
}

func TestEventAppendOnDecisions(t *testing.T) {
	env := newTestEnv(t)
	seedStandardCast(t, env)
	a, err := env.Engine.CreateApproval(env.Ctx, engine.ApprovalCreateOptions{
		EntityType:  "expense_claim",
		EntityID:    "exp-1",
		RequesterID: "emp-1",
		ApproverIDs: []string{"mgr-1"},
		ActorID:     "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.ApproveStep(env.Ctx, a.ID, "mgr-1", ""); err != nil {
		t.Fatal(err)
	}
	rows, err := env.Engine.DB.QueryContext(env.Ctx, `SELECT type FROM events WHERE entity_id=?`, a.ID)
	if err != nil {
		t.Fatalf("query events: %v", err)
	}
	defer rows.Close()
	types := map[string]bool{}
	for rows.Next() {
		var typ string
		rows.Scan(&typ)
		types[typ] = true
	}
	if !types["approval.created"] || !types["approval.step.approved"] || !types["approval.approved"] {
		t.Fatalf("expected full event trail, got %v", types)
	}
}
