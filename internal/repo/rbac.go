package repo

import (
	"context"
	"database/sql"
)

func (r Repo) InsertRole(ctx context.Context, tx *sql.Tx, id, desc string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO roles(id, description) VALUES (?,?)`, id, desc)
	return err
}

func (r Repo) InsertPermission(ctx context.Context, tx *sql.Tx, id, desc string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO permissions(id, description) VALUES (?,?)`, id, desc)
	return err
}

func (r Repo) AddRolePermission(ctx context.Context, tx *sql.Tx, roleID, permID string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO role_permissions(role_id, permission_id) VALUES (?,?)`, roleID, permID)
	return err
}

func (r Repo) AssignRole(ctx context.Context, tx *sql.Tx, employeeID, roleID string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO employee_roles(employee_id, role_id) VALUES (?,?)`, employeeID, roleID)
	return err
}

func (r Repo) RevokeRole(ctx context.Context, tx *sql.Tx, employeeID, roleID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM employee_roles WHERE employee_id=? AND role_id=?`, employeeID, roleID)
	return err
}

func (r Repo) EmployeeRoles(ctx context.Context, employeeID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT role_id FROM employee_roles WHERE employee_id=? ORDER BY role_id ASC`, employeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (r Repo) EmployeePermissions(ctx context.Context, employeeID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT DISTINCT rp.permission_id FROM employee_roles er
JOIN role_permissions rp ON rp.role_id=er.role_id
WHERE er.employee_id=? ORDER BY rp.permission_id ASC`, employeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}
