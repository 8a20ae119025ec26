package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"hrline/internal/config"
	"hrline/internal/domain"
	"hrline/internal/events"
	"hrline/internal/repo"
)

// SyncRBAC writes the configured roles and permissions into the database so
// SQL permission checks see the same picture as hrline.yml.
func (e Engine) SyncRBAC(ctx context.Context, cfg *config.Config) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.syncRBACTx(ctx, tx, cfg); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) syncRBACTx(ctx context.Context, tx *sql.Tx, cfg *config.Config) error {
	if cfg == nil {
		return errors.New("config nil")
	}
	for roleID, role := range cfg.RBAC.Roles {
		if err := e.Repo.InsertRole(ctx, tx, roleID, role.Description); err != nil {
			return err
		}
		for _, perm := range role.Permissions {
			if err := e.Repo.InsertPermission(ctx, tx, perm, ""); err != nil {
				return err
			}
			if err := e.Repo.AddRolePermission(ctx, tx, roleID, perm); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e Engine) GrantRole(ctx context.Context, employeeID, roleID, actorID string) error {
	if _, err := e.Repo.GetEmployee(ctx, employeeID); err != nil {
		return fmt.Errorf("employee %s: %w", employeeID, err)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertRole(ctx, tx, roleID, ""); err != nil {
		return err
	}
	if err := e.Repo.AssignRole(ctx, tx, employeeID, roleID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "rbac.role.granted", "employee", employeeID, actorID, events.EventPayload{"role": roleID}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) RevokeRole(ctx context.Context, employeeID, roleID, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.RevokeRole(ctx, tx, employeeID, roleID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "rbac.role.revoked", "employee", employeeID, actorID, events.EventPayload{"role": roleID}); err != nil {
		return err
	}
	return tx.Commit()
}

// WhoAmI returns the roles and permissions for an employee.
func (e Engine) WhoAmI(ctx context.Context, employeeID string) (domain.EmployeeProfile, error) {
	if employeeID == "" {
		return domain.EmployeeProfile{}, errors.New("employee is required")
	}
	roles, err := e.Repo.EmployeeRoles(ctx, employeeID)
	if err != nil {
		return domain.EmployeeProfile{}, err
	}
	perms, err := e.Repo.EmployeePermissions(ctx, employeeID)
	if err != nil {
		return domain.EmployeeProfile{}, err
	}
	return domain.EmployeeProfile{EmployeeID: employeeID, Roles: roles, Permissions: perms}, nil
}

// CreateAPIKey mints a key for an employee and returns the plaintext once.
func (e Engine) CreateAPIKey(ctx context.Context, employeeID, name, actorID string) (domain.APIKey, string, error) {
	if _, err := e.Repo.GetEmployee(ctx, employeeID); err != nil {
		return domain.APIKey{}, "", fmt.Errorf("employee %s: %w", employeeID, err)
	}
	plaintext := uuid.NewString() + uuid.NewString()
	key := domain.APIKey{
		ID:         uuid.NewString(),
		EmployeeID: employeeID,
		Name:       name,
		KeyHash:    repo.HashAPIKey(plaintext),
		CreatedAt:  e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.APIKey{}, "", err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := e.Events.Append(ctx, tx, "apikey.created", "employee", employeeID, actorID, events.EventPayload{"key_id": key.ID}); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := tx.Commit(); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, plaintext, nil
}
