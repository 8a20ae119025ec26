package repo

import (
	"context"
	"database/sql"
	"strings"

	"hrline/internal/domain"
)

const leaveColumns = `id,employee_id,leave_type,start_date,end_date,days,reason,status,decided_by,decided_at,created_at,updated_at`

func scanLeave(scan func(...any) error) (domain.LeaveRequest, error) {
	var l domain.LeaveRequest
	var reason, decidedBy, decidedAt sql.NullString
	err := scan(&l.ID, &l.EmployeeID, &l.LeaveType, &l.StartDate, &l.EndDate, &l.Days, &reason, &l.Status, &decidedBy, &decidedAt, &l.CreatedAt, &l.UpdatedAt)
	if err == sql.ErrNoRows {
		return l, ErrNotFound
	}
	if err != nil {
		return l, err
	}
	if reason.Valid {
		l.Reason = reason.String
	}
	if decidedBy.Valid {
		l.DecidedBy = &decidedBy.String
	}
	if decidedAt.Valid {
		l.DecidedAt = &decidedAt.String
	}
	return l, nil
}

func (r Repo) InsertLeaveRequestTx(ctx context.Context, tx *sql.Tx, l domain.LeaveRequest) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO leave_requests(id,employee_id,leave_type,start_date,end_date,days,reason,status,decided_by,decided_at,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		l.ID, l.EmployeeID, l.LeaveType, l.StartDate, l.EndDate, l.Days, nullable(l.Reason), l.Status,
		nullableStringPtr(l.DecidedBy), nullableStringPtr(l.DecidedAt), l.CreatedAt, l.UpdatedAt)
	return err
}

func (r Repo) GetLeaveRequest(ctx context.Context, id string) (domain.LeaveRequest, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+leaveColumns+` FROM leave_requests WHERE id=?`, id)
	return scanLeave(row.Scan)
}

func (r Repo) GetLeaveRequestTx(ctx context.Context, tx *sql.Tx, id string) (domain.LeaveRequest, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+leaveColumns+` FROM leave_requests WHERE id=?`, id)
	return scanLeave(row.Scan)
}

type LeaveFilters struct {
	EmployeeID string
	Status     string
	LeaveType  string
	Skip       int
	Take       int
}

func (r Repo) ListLeaveRequests(ctx context.Context, f LeaveFilters) ([]domain.LeaveRequest, int, error) {
	var clauses []string
	var args []any
	if f.EmployeeID != "" {
		clauses = append(clauses, "employee_id=?")
		args = append(args, f.EmployeeID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.LeaveType != "" {
		clauses = append(clauses, "leave_type=?")
		args = append(args, f.LeaveType)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM leave_requests `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + leaveColumns + ` FROM leave_requests ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Take > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Take, f.Skip)
	} else if f.Skip > 0 {
		query += " LIMIT -1 OFFSET ?"
		args = append(args, f.Skip)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var res []domain.LeaveRequest
	for rows.Next() {
		l, err := scanLeave(rows.Scan)
		if err != nil {
			return nil, 0, err
		}
		res = append(res, l)
	}
	return res, total, rows.Err()
}

// SetLeaveDecisionTx reconciles a leave row after its approval record is
// finalized. Guarded on pending so a replayed decision cannot flip a row.
func (r Repo) SetLeaveDecisionTx(ctx context.Context, tx *sql.Tx, id, status, decidedBy, decidedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE leave_requests SET status=?, decided_by=?, decided_at=?, updated_at=? WHERE id=? AND status='pending'`,
		status, decidedBy, decidedAt, decidedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetLeaveTx returns a decided leave row to pending for resubmission.
func (r Repo) ResetLeaveTx(ctx context.Context, tx *sql.Tx, id, updatedAt string) error {
	_, err := tx.ExecContext(ctx, `UPDATE leave_requests SET status='pending', decided_by=NULL, decided_at=NULL, updated_at=? WHERE id=?`, updatedAt, id)
	return err
}

func (r Repo) GetLeaveBalance(ctx context.Context, employeeID, leaveType string, year int) (domain.LeaveBalance, error) {
	var b domain.LeaveBalance
	err := r.DB.QueryRowContext(ctx, `SELECT employee_id,leave_type,year,allocated,used FROM leave_balances WHERE employee_id=? AND leave_type=? AND year=?`,
		employeeID, leaveType, year).Scan(&b.EmployeeID, &b.LeaveType, &b.Year, &b.Allocated, &b.Used)
	if err == sql.ErrNoRows {
		return b, ErrNotFound
	}
	return b, err
}

func (r Repo) ListLeaveBalances(ctx context.Context, employeeID string, year int) ([]domain.LeaveBalance, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT employee_id,leave_type,year,allocated,used FROM leave_balances WHERE employee_id=? AND year=? ORDER BY leave_type ASC`,
		employeeID, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.LeaveBalance
	for rows.Next() {
		var b domain.LeaveBalance
		if err := rows.Scan(&b.EmployeeID, &b.LeaveType, &b.Year, &b.Allocated, &b.Used); err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}

// EnsureLeaveBalanceTx creates the year's balance row if missing.
func (r Repo) EnsureLeaveBalanceTx(ctx context.Context, tx *sql.Tx, employeeID, leaveType string, year, allocated int) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO leave_balances(employee_id,leave_type,year,allocated,used) VALUES (?,?,?,?,0)`,
		employeeID, leaveType, year, allocated)
	return err
}

// AddLeaveUsageTx adjusts used days. Pass a negative delta to release days
// when a request is rejected or canceled.
func (r Repo) AddLeaveUsageTx(ctx context.Context, tx *sql.Tx, employeeID, leaveType string, year, delta int) error {
	res, err := tx.ExecContext(ctx, `UPDATE leave_balances SET used=used+? WHERE employee_id=? AND leave_type=? AND year=?`,
		delta, employeeID, leaveType, year)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
