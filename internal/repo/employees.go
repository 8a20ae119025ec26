package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"hrline/internal/domain"
)

const employeeColumns = `id,org_id,department_id,first_name,last_name,email,title,status,hired_at,created_at,updated_at`

func scanEmployee(scan func(...any) error) (domain.Employee, error) {
	var e domain.Employee
	var deptID, title, hiredAt sql.NullString
	err := scan(&e.ID, &e.OrgID, &deptID, &e.FirstName, &e.LastName, &e.Email, &title, &e.Status, &hiredAt, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	if deptID.Valid {
		e.DepartmentID = &deptID.String
	}
	if title.Valid {
		e.Title = title.String
	}
	if hiredAt.Valid {
		e.HiredAt = &hiredAt.String
	}
	return e, nil
}

func (r Repo) InsertEmployee(ctx context.Context, tx *sql.Tx, e domain.Employee) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO employees(id,org_id,department_id,first_name,last_name,email,title,status,hired_at,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.OrgID, nullableStringPtr(e.DepartmentID), e.FirstName, e.LastName, e.Email, nullable(e.Title), e.Status,
		nullableStringPtr(e.HiredAt), e.CreatedAt, e.UpdatedAt)
	return err
}

func (r Repo) GetEmployee(ctx context.Context, id string) (domain.Employee, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id=?`, id)
	return scanEmployee(row.Scan)
}

func (r Repo) GetEmployeeTx(ctx context.Context, tx *sql.Tx, id string) (domain.Employee, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id=?`, id)
	return scanEmployee(row.Scan)
}

func (r Repo) GetEmployeeByEmail(ctx context.Context, email string) (domain.Employee, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+employeeColumns+` FROM employees WHERE email=?`, email)
	return scanEmployee(row.Scan)
}

type EmployeeFilters struct {
	DepartmentID string
	Status       string
	Search       string
	Skip         int
	Take         int
}

func (r Repo) ListEmployees(ctx context.Context, f EmployeeFilters) ([]domain.Employee, int, error) {
	var clauses []string
	var args []any
	if f.DepartmentID != "" {
		clauses = append(clauses, "department_id=?")
		args = append(args, f.DepartmentID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Search != "" {
		clauses = append(clauses, "(first_name LIKE ? OR last_name LIKE ? OR email LIKE ?)")
		pat := "%" + f.Search + "%"
		args = append(args, pat, pat, pat)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM employees `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + employeeColumns + ` FROM employees ` + where + ` ORDER BY last_name ASC, first_name ASC, id ASC`
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
	var res []domain.Employee
	for rows.Next() {
		e, err := scanEmployee(rows.Scan)
		if err != nil {
			return nil, 0, err
		}
		res = append(res, e)
	}
	return res, total, rows.Err()
}

func (r Repo) UpdateEmployee(ctx context.Context, tx *sql.Tx, id string, fields map[string]any, updatedAt string) error {
	if len(fields) == 0 {
		return nil
	}
	var sets []string
	var args []any
	for _, col := range []string{"department_id", "first_name", "last_name", "email", "title", "status", "hired_at"} {
		if v, ok := fields[col]; ok {
			sets = append(sets, col+"=?")
			args = append(args, v)
		}
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at=?")
	args = append(args, updatedAt, id)
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE employees SET %s WHERE id=?`, strings.Join(sets, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// FirstEmployeeWithRole resolves a role to the first active employee holding
// it. Used when building approval chains from configured role lists.
func (r Repo) FirstEmployeeWithRole(ctx context.Context, tx *sql.Tx, roleID string) (domain.Employee, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+prefixedEmployeeColumns("e")+` FROM employees e
JOIN employee_roles er ON er.employee_id=e.id
WHERE er.role_id=? AND e.status='active'
ORDER BY e.created_at ASC, e.id ASC LIMIT 1`, roleID)
	return scanEmployee(row.Scan)
}

func prefixedEmployeeColumns(alias string) string {
	cols := strings.Split(employeeColumns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ",")
}

func (r Repo) InsertDepartment(ctx context.Context, d domain.Department) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO departments(id,org_id,name,description,created_at) VALUES (?,?,?,?,?)`,
		d.ID, d.OrgID, d.Name, nullable(d.Description), d.CreatedAt)
	return err
}

func (r Repo) GetDepartment(ctx context.Context, id string) (domain.Department, error) {
	var d domain.Department
	var desc sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,org_id,name,description,created_at FROM departments WHERE id=?`, id).
		Scan(&d.ID, &d.OrgID, &d.Name, &desc, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	if desc.Valid {
		d.Description = desc.String
	}
	return d, err
}

func (r Repo) ListDepartments(ctx context.Context) ([]domain.Department, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,org_id,name,description,created_at FROM departments ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Department
	for rows.Next() {
		var d domain.Department
		var desc sql.NullString
		if err := rows.Scan(&d.ID, &d.OrgID, &d.Name, &desc, &d.CreatedAt); err != nil {
			return nil, err
		}
		if desc.Valid {
			d.Description = desc.String
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func (r Repo) DeleteDepartment(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM departments WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
