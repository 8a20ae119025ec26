package auth

import (
	"context"
	"database/sql"
	"fmt"
)

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required", e.Permission)
}

// Service provides RBAC helpers backed by SQL.
type Service struct {
	DB *sql.DB
}

func (s Service) HasPermission(ctx context.Context, tx *sql.Tx, employeeID, perm string) (bool, error) {
	row := tx.QueryRowContext(ctx, `
SELECT 1 FROM employee_roles er
JOIN role_permissions rp ON rp.role_id=er.role_id
WHERE er.employee_id=? AND rp.permission_id IN (?, '*') LIMIT 1`,
		employeeID, perm)
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (s Service) Roles(ctx context.Context, tx *sql.Tx, employeeID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT role_id FROM employee_roles WHERE employee_id=?`, employeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []string
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return roles, nil
}

func (s Service) Permissions(ctx context.Context, tx *sql.Tx, employeeID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `
SELECT DISTINCT rp.permission_id
FROM employee_roles er
JOIN role_permissions rp ON rp.role_id=er.role_id
WHERE er.employee_id=?`, employeeID)
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
	return perms, nil
}
