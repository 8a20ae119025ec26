package repo

import (
	"context"
	"database/sql"
	"strings"

	"hrline/internal/domain"
)

func scanAttendance(scan func(...any) error) (domain.Attendance, error) {
	var a domain.Attendance
	var checkIn, checkOut sql.NullString
	err := scan(&a.ID, &a.EmployeeID, &a.Day, &checkIn, &checkOut, &a.Status)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if checkIn.Valid {
		a.CheckIn = &checkIn.String
	}
	if checkOut.Valid {
		a.CheckOut = &checkOut.String
	}
	return a, nil
}

func (r Repo) InsertAttendanceTx(ctx context.Context, tx *sql.Tx, a domain.Attendance) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO attendance(id,employee_id,day,check_in,check_out,status) VALUES (?,?,?,?,?,?)`,
		a.ID, a.EmployeeID, a.Day, nullableStringPtr(a.CheckIn), nullableStringPtr(a.CheckOut), a.Status)
	return err
}

func (r Repo) GetAttendanceTx(ctx context.Context, tx *sql.Tx, employeeID, day string) (domain.Attendance, error) {
	row := tx.QueryRowContext(ctx, `SELECT id,employee_id,day,check_in,check_out,status FROM attendance WHERE employee_id=? AND day=?`, employeeID, day)
	return scanAttendance(row.Scan)
}

func (r Repo) GetAttendance(ctx context.Context, employeeID, day string) (domain.Attendance, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,employee_id,day,check_in,check_out,status FROM attendance WHERE employee_id=? AND day=?`, employeeID, day)
	return scanAttendance(row.Scan)
}

// SetCheckOutTx stamps the check-out time on an open attendance row.
func (r Repo) SetCheckOutTx(ctx context.Context, tx *sql.Tx, id, checkOut string) error {
	res, err := tx.ExecContext(ctx, `UPDATE attendance SET check_out=? WHERE id=? AND check_out IS NULL`, checkOut, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type AttendanceFilters struct {
	EmployeeID string
	From       string
	To         string
	Status     string
}

func (r Repo) ListAttendance(ctx context.Context, f AttendanceFilters) ([]domain.Attendance, error) {
	var clauses []string
	var args []any
	if f.EmployeeID != "" {
		clauses = append(clauses, "employee_id=?")
		args = append(args, f.EmployeeID)
	}
	if f.From != "" {
		clauses = append(clauses, "day>=?")
		args = append(args, f.From)
	}
	if f.To != "" {
		clauses = append(clauses, "day<=?")
		args = append(args, f.To)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,employee_id,day,check_in,check_out,status FROM attendance `+where+` ORDER BY day DESC, employee_id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Attendance
	for rows.Next() {
		a, err := scanAttendance(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// EmployeesWithoutAttendance returns active employees with no attendance row
// for the given day and no approved leave covering it.
func (r Repo) EmployeesWithoutAttendance(ctx context.Context, tx *sql.Tx, day string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT e.id FROM employees e
WHERE e.status='active'
AND NOT EXISTS (SELECT 1 FROM attendance a WHERE a.employee_id=e.id AND a.day=?)
AND NOT EXISTS (SELECT 1 FROM leave_requests l WHERE l.employee_id=e.id AND l.status='approved' AND l.start_date<=? AND l.end_date>=?)
ORDER BY e.id ASC`, day, day, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
