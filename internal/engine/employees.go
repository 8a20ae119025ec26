package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"hrline/internal/config"
	"hrline/internal/domain"
	"hrline/internal/events"
	"hrline/internal/repo"
)

// InitOrg initializes a new org with migrations already run.
func (e Engine) InitOrg(ctx context.Context, orgID, name, actorID string) (domain.Org, error) {
	if orgID == "" {
		return domain.Org{}, errors.New("org id is required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Org{}, err
	}
	defer tx.Rollback()

	o := domain.Org{
		ID:        orgID,
		Name:      name,
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	if o.Name == "" {
		o.Name = orgID
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO orgs(id,name,created_at) VALUES (?,?,?)`, o.ID, o.Name, o.CreatedAt); err != nil {
		return domain.Org{}, fmt.Errorf("insert org: %w", err)
	}
	if err := e.Repo.UpsertOrgConfigTx(ctx, tx, o.ID, config.Default(o.ID)); err != nil {
		return domain.Org{}, fmt.Errorf("insert org config: %w", err)
	}
	if err := e.syncRBACTx(ctx, tx, config.Default(o.ID)); err != nil {
		return domain.Org{}, err
	}
	if err := e.Events.Append(ctx, tx, "org.init", "org", o.ID, actorID, events.EventPayload{"name": o.Name}); err != nil {
		return domain.Org{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Org{}, err
	}
	return o, nil
}

// EmployeeCreateOptions are parameters for creating an employee.
type EmployeeCreateOptions struct {
	ID           string
	OrgID        string
	DepartmentID string
	FirstName    string
	LastName     string
	Email        string
	Title        string
	HiredAt      string
	Roles        []string
	ActorID      string
}

func (e Engine) CreateEmployee(ctx context.Context, opts EmployeeCreateOptions) (domain.Employee, error) {
	if opts.FirstName == "" || opts.LastName == "" {
		return domain.Employee{}, errors.New("first and last name are required")
	}
	if opts.Email == "" || !strings.Contains(opts.Email, "@") {
		return domain.Employee{}, errors.New("valid email is required")
	}
	if opts.OrgID == "" {
		return domain.Employee{}, errors.New("org is required")
	}
	if opts.DepartmentID != "" {
		if _, err := e.Repo.GetDepartment(ctx, opts.DepartmentID); err != nil {
			return domain.Employee{}, fmt.Errorf("department %s: %w", opts.DepartmentID, err)
		}
	}
	now := e.now().UTC().Format(time.RFC3339)
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	emp := domain.Employee{
		ID:           id,
		OrgID:        opts.OrgID,
		DepartmentID: optionalString(opts.DepartmentID),
		FirstName:    opts.FirstName,
		LastName:     opts.LastName,
		Email:        opts.Email,
		Title:        opts.Title,
		Status:       "active",
		HiredAt:      optionalString(opts.HiredAt),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Employee{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertEmployee(ctx, tx, emp); err != nil {
		return domain.Employee{}, fmt.Errorf("insert employee: %w", err)
	}
	for _, roleID := range opts.Roles {
		if err := e.Repo.AssignRole(ctx, tx, emp.ID, roleID); err != nil {
			return domain.Employee{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, "employee.created", "employee", emp.ID, opts.ActorID, events.EventPayload{
		"email": emp.Email,
		"roles": opts.Roles,
	}); err != nil {
		return domain.Employee{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Employee{}, err
	}
	return emp, nil
}

// EmployeeUpdateOptions carries optional field updates; nil leaves a field as is.
type EmployeeUpdateOptions struct {
	DepartmentID *string
	FirstName    *string
	LastName     *string
	Email        *string
	Title        *string
	Status       *string
	ActorID      string
}

func (e Engine) UpdateEmployee(ctx context.Context, id string, opts EmployeeUpdateOptions) (domain.Employee, error) {
	if _, err := e.Repo.GetEmployee(ctx, id); err != nil {
		return domain.Employee{}, err
	}
	fields := map[string]any{}
	if opts.DepartmentID != nil {
		if *opts.DepartmentID != "" {
			if _, err := e.Repo.GetDepartment(ctx, *opts.DepartmentID); err != nil {
				return domain.Employee{}, fmt.Errorf("department %s: %w", *opts.DepartmentID, err)
			}
		}
		fields["department_id"] = nullable(*opts.DepartmentID)
	}
	if opts.FirstName != nil {
		if *opts.FirstName == "" {
			return domain.Employee{}, errors.New("first name must not be empty")
		}
		fields["first_name"] = *opts.FirstName
	}
	if opts.LastName != nil {
		if *opts.LastName == "" {
			return domain.Employee{}, errors.New("last name must not be empty")
		}
		fields["last_name"] = *opts.LastName
	}
	if opts.Email != nil {
		if !strings.Contains(*opts.Email, "@") {
			return domain.Employee{}, errors.New("valid email is required")
		}
		fields["email"] = *opts.Email
	}
	if opts.Title != nil {
		fields["title"] = nullable(*opts.Title)
	}
	if opts.Status != nil {
		switch *opts.Status {
		case "active", "on_leave", "terminated":
		default:
			return domain.Employee{}, fmt.Errorf("invalid status %s", *opts.Status)
		}
		fields["status"] = *opts.Status
	}
	now := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Employee{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateEmployee(ctx, tx, id, fields, now); err != nil {
		return domain.Employee{}, err
	}
	if err := e.Events.Append(ctx, tx, "employee.updated", "employee", id, opts.ActorID, events.EventPayload{}); err != nil {
		return domain.Employee{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Employee{}, err
	}
	return e.Repo.GetEmployee(ctx, id)
}

func (e Engine) GetEmployee(ctx context.Context, id string) (domain.Employee, error) {
	return e.Repo.GetEmployee(ctx, id)
}

func (e Engine) ListEmployees(ctx context.Context, f repo.EmployeeFilters) ([]domain.Employee, int, error) {
	if f.Skip < 0 {
		f.Skip = 0
	}
	if f.Take <= 0 {
		f.Take = 50
	}
	if f.Take > 200 {
		f.Take = 200
	}
	return e.Repo.ListEmployees(ctx, f)
}

func (e Engine) CreateDepartment(ctx context.Context, orgID, name, description, actorID string) (domain.Department, error) {
	if name == "" {
		return domain.Department{}, errors.New("name is required")
	}
	if orgID == "" {
		return domain.Department{}, errors.New("org is required")
	}
	d := domain.Department{
		ID:          uuid.NewString(),
		OrgID:       orgID,
		Name:        name,
		Description: description,
		CreatedAt:   e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Department{}, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO departments(id,org_id,name,description,created_at) VALUES (?,?,?,?,?)`,
		d.ID, d.OrgID, d.Name, nullable(d.Description), d.CreatedAt); err != nil {
		return domain.Department{}, fmt.Errorf("insert department: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "department.created", "department", d.ID, actorID, events.EventPayload{"name": d.Name}); err != nil {
		return domain.Department{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Department{}, err
	}
	return d, nil
}

func (e Engine) ListDepartments(ctx context.Context) ([]domain.Department, error) {
	return e.Repo.ListDepartments(ctx)
}

func (e Engine) GetDepartment(ctx context.Context, id string) (domain.Department, error) {
	return e.Repo.GetDepartment(ctx, id)
}
