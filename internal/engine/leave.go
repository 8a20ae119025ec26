package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"hrline/internal/domain"
	"hrline/internal/events"
	"hrline/internal/repo"
)

// LeaveSubmitOptions are parameters for submitting a leave request.
type LeaveSubmitOptions struct {
	ID         string
	EmployeeID string
	LeaveType  string
	StartDate  string
	EndDate    string
	Reason     string
	ActorID    string
}

// SubmitLeaveRequest creates the leave row and its approval chain in a single
// transaction. The chain comes from the configured approver roles for
// leave_request; each role resolves to the first active employee holding it.
// Resubmitting after a rejection replaces the old chain.
func (e Engine) SubmitLeaveRequest(ctx context.Context, opts LeaveSubmitOptions) (domain.LeaveRequest, domain.ApprovalRecord, error) {
	if e.Config == nil {
		return domain.LeaveRequest{}, domain.ApprovalRecord{}, errors.New("config not loaded")
	}
	if opts.EmployeeID == "" {
		return domain.LeaveRequest{}, domain.ApprovalRecord{}, errors.New("employee is required")
	}
	if opts.LeaveType == "" {
		return domain.LeaveRequest{}, domain.ApprovalRecord{}, errors.New("leave type is required")
	}
	if len(e.Config.Leave.Types) > 0 {
		if _, ok := e.Config.Leave.Types[opts.LeaveType]; !ok {
			return domain.LeaveRequest{}, domain.ApprovalRecord{}, fmt.Errorf("unknown leave type %s", opts.LeaveType)
		}
	}
	start, err := time.Parse("2006-01-02", opts.StartDate)
	if err != nil {
		return domain.LeaveRequest{}, domain.ApprovalRecord{}, fmt.Errorf("invalid start date: %w", err)
	}
	end, err := time.Parse("2006-01-02", opts.EndDate)
	if err != nil {
		return domain.LeaveRequest{}, domain.ApprovalRecord{}, fmt.Errorf("invalid end date: %w", err)
	}
	if end.Before(start) {
		return domain.LeaveRequest{}, domain.ApprovalRecord{}, errors.New("end date before start date")
	}
	days := int(end.Sub(start).Hours()/24) + 1

	emp, err := e.Repo.GetEmployee(ctx, opts.EmployeeID)
	if err != nil {
		return domain.LeaveRequest{}, domain.ApprovalRecord{}, fmt.Errorf("employee %s: %w", opts.EmployeeID, err)
	}
	if emp.Status == "terminated" {
		return domain.LeaveRequest{}, domain.ApprovalRecord{}, InvalidStateError{Reason: fmt.Sprintf("employee %s is terminated", emp.ID)}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.LeaveRequest{}, domain.ApprovalRecord{}, err
	}
	defer tx.Rollback()

	approverIDs, err := e.resolveChainTx(ctx, tx, "leave_request")
	if err != nil {
		return domain.LeaveRequest{}, domain.ApprovalRecord{}, err
	}

	now := e.now().UTC().Format(time.RFC3339)
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	allowance := e.Config.AllowanceFor(opts.LeaveType)
	year := start.Year()
	if allowance > 0 {
		if err := e.Repo.EnsureLeaveBalanceTx(ctx, tx, emp.ID, opts.LeaveType, year, allowance); err != nil {
			return domain.LeaveRequest{}, domain.ApprovalRecord{}, err
		}
		var used int
		if err := tx.QueryRowContext(ctx, `SELECT used FROM leave_balances WHERE employee_id=? AND leave_type=? AND year=?`,
			emp.ID, opts.LeaveType, year).Scan(&used); err != nil {
			return domain.LeaveRequest{}, domain.ApprovalRecord{}, err
		}
		if used+days > allowance {
			return domain.LeaveRequest{}, domain.ApprovalRecord{}, InvalidStateError{Reason: fmt.Sprintf("insufficient %s balance: %d of %d days used, %d requested", opts.LeaveType, used, allowance, days)}
		}
		// Days are reserved at submission and released again on rejection.
		if err := e.Repo.AddLeaveUsageTx(ctx, tx, emp.ID, opts.LeaveType, year, days); err != nil {
			return domain.LeaveRequest{}, domain.ApprovalRecord{}, err
		}
	}

	l := domain.LeaveRequest{
		ID:         id,
		EmployeeID: emp.ID,
		LeaveType:  opts.LeaveType,
		StartDate:  opts.StartDate,
		EndDate:    opts.EndDate,
		Days:       days,
		Reason:     opts.Reason,
		Status:     "pending",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := e.Repo.InsertLeaveRequestTx(ctx, tx, l); err != nil {
		return domain.LeaveRequest{}, domain.ApprovalRecord{}, fmt.Errorf("insert leave request: %w", err)
	}
	a, err := e.createApprovalTx(ctx, tx, ApprovalCreateOptions{
		EntityType:  "leave_request",
		EntityID:    l.ID,
		RequesterID: emp.ID,
		ApproverIDs: approverIDs,
		ActorID:     opts.ActorID,
	})
	if err != nil {
		return domain.LeaveRequest{}, domain.ApprovalRecord{}, err
	}
	if err := e.Events.Append(ctx, tx, "leave.submitted", "leave_request", l.ID, opts.ActorID, events.EventPayload{
		"leave_type": l.LeaveType,
		"start_date": l.StartDate,
		"end_date":   l.EndDate,
		"days":       l.Days,
	}); err != nil {
		return domain.LeaveRequest{}, domain.ApprovalRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.LeaveRequest{}, domain.ApprovalRecord{}, err
	}
	return l, a, nil
}

// resolveChainTx maps the configured approver roles for an entity type to
// concrete employees.
func (e Engine) resolveChainTx(ctx context.Context, tx *sql.Tx, entityType string) ([]string, error) {
	roles := e.Config.ChainFor(entityType)
	var ids []string
	for _, roleID := range roles {
		emp, err := e.Repo.FirstEmployeeWithRole(ctx, tx, roleID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, fmt.Errorf("no active employee holds approver role %s", roleID)
			}
			return nil, err
		}
		ids = append(ids, emp.ID)
	}
	return ids, nil
}

// finalizeLeave reconciles the leave row after its approval record reaches a
// terminal status. Runs inside the decision's transaction.
func (e Engine) finalizeLeave(ctx context.Context, tx *sql.Tx, leaveID, status, deciderID, now string) error {
	l, err := e.Repo.GetLeaveRequestTx(ctx, tx, leaveID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return InconsistencyError{Reason: fmt.Sprintf("leave request %s missing for its approval record", leaveID)}
		}
		return err
	}
	if err := e.Repo.SetLeaveDecisionTx(ctx, tx, leaveID, status, deciderID, now); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return InconsistencyError{Reason: fmt.Sprintf("leave request %s already %s", leaveID, l.Status)}
		}
		return err
	}
	if status == "rejected" && e.Config != nil {
		allowance := e.Config.AllowanceFor(l.LeaveType)
		if allowance > 0 {
			start, err := time.Parse("2006-01-02", l.StartDate)
			if err != nil {
				return err
			}
			if err := e.Repo.AddLeaveUsageTx(ctx, tx, l.EmployeeID, l.LeaveType, start.Year(), -l.Days); err != nil {
				return err
			}
		}
	}
	return e.Events.Append(ctx, tx, "leave."+status, "leave_request", leaveID, deciderID, events.EventPayload{})
}

// ResubmitLeaveRequest reopens a rejected leave request with a fresh chain.
func (e Engine) ResubmitLeaveRequest(ctx context.Context, leaveID, actorID string) (domain.LeaveRequest, domain.ApprovalRecord, error) {
	if e.Config == nil {
		return domain.LeaveRequest{}, domain.ApprovalRecord{}, errors.New("config not loaded")
	}
	l, err := e.Repo.GetLeaveRequest(ctx, leaveID)
	if err != nil {
		return domain.LeaveRequest{}, domain.ApprovalRecord{}, err
	}
	if l.Status != "rejected" {
		return domain.LeaveRequest{}, domain.ApprovalRecord{}, InvalidStateError{Reason: fmt.Sprintf("leave request %s is %s; only rejected requests can be resubmitted", l.ID, l.Status)}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.LeaveRequest{}, domain.ApprovalRecord{}, err
	}
	defer tx.Rollback()

	approverIDs, err := e.resolveChainTx(ctx, tx, "leave_request")
	if err != nil {
		return domain.LeaveRequest{}, domain.ApprovalRecord{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	allowance := e.Config.AllowanceFor(l.LeaveType)
	if allowance > 0 {
		start, err := time.Parse("2006-01-02", l.StartDate)
		if err != nil {
			return domain.LeaveRequest{}, domain.ApprovalRecord{}, err
		}
		if err := e.Repo.AddLeaveUsageTx(ctx, tx, l.EmployeeID, l.LeaveType, start.Year(), l.Days); err != nil {
			return domain.LeaveRequest{}, domain.ApprovalRecord{}, err
		}
	}
	if err := e.Repo.ResetLeaveTx(ctx, tx, l.ID, now); err != nil {
		return domain.LeaveRequest{}, domain.ApprovalRecord{}, err
	}
	a, err := e.createApprovalTx(ctx, tx, ApprovalCreateOptions{
		EntityType:  "leave_request",
		EntityID:    l.ID,
		RequesterID: l.EmployeeID,
		ApproverIDs: approverIDs,
		Replace:     true,
		ActorID:     actorID,
	})
	if err != nil {
		return domain.LeaveRequest{}, domain.ApprovalRecord{}, err
	}
	if err := e.Events.Append(ctx, tx, "leave.resubmitted", "leave_request", l.ID, actorID, events.EventPayload{}); err != nil {
		return domain.LeaveRequest{}, domain.ApprovalRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.LeaveRequest{}, domain.ApprovalRecord{}, err
	}
	lr, err := e.Repo.GetLeaveRequest(ctx, l.ID)
	if err != nil {
		return domain.LeaveRequest{}, domain.ApprovalRecord{}, err
	}
	return lr, a, nil
}

func (e Engine) GetLeaveRequest(ctx context.Context, id string) (domain.LeaveRequest, error) {
	return e.Repo.GetLeaveRequest(ctx, id)
}

func (e Engine) ListLeaveRequests(ctx context.Context, f repo.LeaveFilters) ([]domain.LeaveRequest, int, error) {
	if f.Skip < 0 {
		f.Skip = 0
	}
	if f.Take <= 0 {
		f.Take = 50
	}
	if f.Take > 200 {
		f.Take = 200
	}
	return e.Repo.ListLeaveRequests(ctx, f)
}

// LeaveBalances returns the year's balances for an employee, materializing
// rows for configured types that have no balance row yet.
func (e Engine) LeaveBalances(ctx context.Context, employeeID string, year int) ([]domain.LeaveBalance, error) {
	if year == 0 {
		year = e.now().UTC().Year()
	}
	if _, err := e.Repo.GetEmployee(ctx, employeeID); err != nil {
		return nil, err
	}
	balances, err := e.Repo.ListLeaveBalances(ctx, employeeID, year)
	if err != nil {
		return nil, err
	}
	if e.Config == nil {
		return balances, nil
	}
	have := map[string]bool{}
	for _, b := range balances {
		have[b.LeaveType] = true
	}
	for name, lt := range e.Config.Leave.Types {
		if !have[name] {
			balances = append(balances, domain.LeaveBalance{
				EmployeeID: employeeID,
				LeaveType:  name,
				Year:       year,
				Allocated:  lt.AnnualAllowance,
				Used:       0,
			})
		}
	}
	sort.Slice(balances, func(i, j int) bool { return balances[i].LeaveType < balances[j].LeaveType })
	return balances, nil
}
