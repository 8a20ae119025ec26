package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"hrline/internal/config"
	"hrline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const approvalColumns = `id,entity_type,entity_id,requester_id,approver_id,total_steps,current_step,status,comments,approved_at,created_at,updated_at`

func scanApproval(scan func(...any) error) (domain.ApprovalRecord, error) {
	var a domain.ApprovalRecord
	var approverID, comments, approvedAt sql.NullString
	err := scan(&a.ID, &a.EntityType, &a.EntityID, &a.RequesterID, &approverID, &a.TotalSteps, &a.CurrentStep, &a.Status, &comments, &approvedAt, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if approverID.Valid {
		a.ApproverID = &approverID.String
	}
	if comments.Valid {
		a.Comments = &comments.String
	}
	if approvedAt.Valid {
		a.ApprovedAt = &approvedAt.String
	}
	return a, nil
}

func (r Repo) InsertApprovalTx(ctx context.Context, tx *sql.Tx, a domain.ApprovalRecord) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO approval_records(id,entity_type,entity_id,requester_id,approver_id,total_steps,current_step,status,comments,approved_at,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.EntityType, a.EntityID, a.RequesterID, nullableStringPtr(a.ApproverID), a.TotalSteps, a.CurrentStep, a.Status,
		nullableStringPtr(a.Comments), nullableStringPtr(a.ApprovedAt), a.CreatedAt, a.UpdatedAt)
	return err
}

func (r Repo) InsertStepTx(ctx context.Context, tx *sql.Tx, s domain.ApprovalStep) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO approval_steps(id,approval_id,step_number,approver_id,status,comments,approved_at,created_at)
VALUES (?,?,?,?,?,?,?,?)`,
		s.ID, s.ApprovalID, s.StepNumber, s.ApproverID, s.Status, nullableStringPtr(s.Comments), nullableStringPtr(s.ApprovedAt), s.CreatedAt)
	return err
}

func (r Repo) GetApproval(ctx context.Context, id string) (domain.ApprovalRecord, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+approvalColumns+` FROM approval_records WHERE id=?`, id)
	a, err := scanApproval(row.Scan)
	if err != nil {
		return a, err
	}
	steps, err := r.listSteps(ctx, r.DB.QueryContext, a.ID)
	if err != nil {
		return a, err
	}
	a.Steps = steps
	return a, nil
}

func (r Repo) GetApprovalTx(ctx context.Context, tx *sql.Tx, id string) (domain.ApprovalRecord, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+approvalColumns+` FROM approval_records WHERE id=?`, id)
	a, err := scanApproval(row.Scan)
	if err != nil {
		return a, err
	}
	steps, err := r.listSteps(ctx, tx.QueryContext, a.ID)
	if err != nil {
		return a, err
	}
	a.Steps = steps
	return a, nil
}

func (r Repo) GetApprovalByEntity(ctx context.Context, entityType, entityID string) (domain.ApprovalRecord, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+approvalColumns+` FROM approval_records WHERE entity_type=? AND entity_id=?`, entityType, entityID)
	a, err := scanApproval(row.Scan)
	if err != nil {
		return a, err
	}
	steps, err := r.listSteps(ctx, r.DB.QueryContext, a.ID)
	if err != nil {
		return a, err
	}
	a.Steps = steps
	return a, nil
}

func (r Repo) GetApprovalByEntityTx(ctx context.Context, tx *sql.Tx, entityType, entityID string) (domain.ApprovalRecord, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+approvalColumns+` FROM approval_records WHERE entity_type=? AND entity_id=?`, entityType, entityID)
	a, err := scanApproval(row.Scan)
	if err != nil {
		return a, err
	}
	steps, err := r.listSteps(ctx, tx.QueryContext, a.ID)
	if err != nil {
		return a, err
	}
	a.Steps = steps
	return a, nil
}

type queryFunc func(ctx context.Context, query string, args ...any) (*sql.Rows, error)

func (r Repo) listSteps(ctx context.Context, query queryFunc, approvalID string) ([]domain.ApprovalStep, error) {
	rows, err := query(ctx, `SELECT id,approval_id,step_number,approver_id,status,comments,approved_at,created_at FROM approval_steps WHERE approval_id=? ORDER BY step_number ASC`, approvalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ApprovalStep
	for rows.Next() {
		var s domain.ApprovalStep
		var comments, approvedAt sql.NullString
		if err := rows.Scan(&s.ID, &s.ApprovalID, &s.StepNumber, &s.ApproverID, &s.Status, &comments, &approvedAt, &s.CreatedAt); err != nil {
			return nil, err
		}
		if comments.Valid {
			s.Comments = &comments.String
		}
		if approvedAt.Valid {
			s.ApprovedAt = &approvedAt.String
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// UpdateStepDecisionTx records an approver's decision on a step that is still
// pending. Returns ErrNotFound when the step row was already decided.
func (r Repo) UpdateStepDecisionTx(ctx context.Context, tx *sql.Tx, stepID, status string, comments *string, decidedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE approval_steps SET status=?, comments=?, approved_at=? WHERE id=? AND status='pending'`,
		status, nullableStringPtr(comments), decidedAt, stepID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AdvanceRecordTx moves a pending record from step fromStep to fromStep+1.
// The WHERE clause doubles as a compare-and-swap: a concurrent decider that
// already advanced or finalized the record makes this report zero rows.
func (r Repo) AdvanceRecordTx(ctx context.Context, tx *sql.Tx, id string, fromStep int, updatedAt string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE approval_records SET current_step=current_step+1, updated_at=? WHERE id=? AND status='pending' AND current_step=?`,
		updatedAt, id, fromStep)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// FinalizeRecordTx sets the terminal status on a pending record, guarded by
// the same compare-and-swap as AdvanceRecordTx. The requester's creation
// comment survives a decision made without one.
func (r Repo) FinalizeRecordTx(ctx context.Context, tx *sql.Tx, id string, fromStep int, status, approverID string, comments *string, decidedAt string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE approval_records SET status=?, approver_id=?, comments=COALESCE(?, comments), approved_at=?, updated_at=? WHERE id=? AND status='pending' AND current_step=?`,
		status, approverID, nullableStringPtr(comments), decidedAt, decidedAt, id, fromStep)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DeleteApprovalForEntityTx removes an entity's approval record along with
// its steps (cascade). Used when a rejected request is resubmitted.
func (r Repo) DeleteApprovalForEntityTx(ctx context.Context, tx *sql.Tx, entityType, entityID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM approval_records WHERE entity_type=? AND entity_id=?`, entityType, entityID)
	return err
}

type ApprovalFilters struct {
	RequesterID string
	ApproverID  string
	Status      string
	EntityType  string
	Skip        int
	Take        int
}

// ListApprovals returns a page of approval records plus the total count of
// records matching the filters. ApproverID matches records where the employee
// holds any step, current or not.
func (r Repo) ListApprovals(ctx context.Context, f ApprovalFilters) ([]domain.ApprovalRecord, int, error) {
	var clauses []string
	var args []any
	if f.RequesterID != "" {
		clauses = append(clauses, "requester_id=?")
		args = append(args, f.RequesterID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.EntityType != "" {
		clauses = append(clauses, "entity_type=?")
		args = append(args, f.EntityType)
	}
	if f.ApproverID != "" {
		clauses = append(clauses, "EXISTS (SELECT 1 FROM approval_steps s WHERE s.approval_id=approval_records.id AND s.approver_id=?)")
		args = append(args, f.ApproverID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM approval_records `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + approvalColumns + ` FROM approval_records ` + where + ` ORDER BY created_at DESC, id DESC`
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
	var res []domain.ApprovalRecord
	for rows.Next() {
		a, err := scanApproval(rows.Scan)
		if err != nil {
			return nil, 0, err
		}
		res = append(res, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	for i := range res {
		steps, err := r.listSteps(ctx, r.DB.QueryContext, res[i].ID)
		if err != nil {
			return nil, 0, err
		}
		res[i].Steps = steps
	}
	return res, total, nil
}

// PendingForApprover returns pending records whose current step is assigned
// to the given employee, oldest first.
func (r Repo) PendingForApprover(ctx context.Context, approverID string) ([]domain.ApprovalRecord, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+prefixedApprovalColumns("r")+` FROM approval_records r
JOIN approval_steps s ON s.approval_id=r.id AND s.step_number=r.current_step
WHERE r.status='pending' AND s.status='pending' AND s.approver_id=?
ORDER BY r.created_at ASC, r.id ASC`, approverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ApprovalRecord
	for rows.Next() {
		a, err := scanApproval(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		steps, err := r.listSteps(ctx, r.DB.QueryContext, res[i].ID)
		if err != nil {
			return nil, err
		}
		res[i].Steps = steps
	}
	return res, nil
}

func prefixedApprovalColumns(alias string) string {
	cols := strings.Split(approvalColumns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ",")
}

func (r Repo) UpsertOrgConfig(ctx context.Context, orgID string, cfg *config.Config) error {
	return upsertOrgConfig(ctx, r.DB, nil, orgID, cfg)
}

func (r Repo) UpsertOrgConfigTx(ctx context.Context, tx *sql.Tx, orgID string, cfg *config.Config) error {
	return upsertOrgConfig(ctx, nil, tx, orgID, cfg)
}

func upsertOrgConfig(ctx context.Context, db *sql.DB, tx *sql.Tx, orgID string, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	cfg.Org.ID = orgID
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return db.ExecContext(ctx, query, args...)
	}
	_, err = exec(`INSERT INTO org_configs(org_id,config_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(org_id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, orgID, string(payload), now, now)
	return err
}

func (r Repo) GetOrgConfig(ctx context.Context, orgID string) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM org_configs WHERE org_id=?`, orgID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	if cfg.Org.ID == "" {
		cfg.Org.ID = orgID
	}
	return &cfg, cfg.Validate()
}

func (r Repo) InsertOrg(ctx context.Context, o domain.Org) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO orgs(id,name,created_at) VALUES (?,?,?)`, o.ID, o.Name, o.CreatedAt)
	return err
}

func (r Repo) EnsureOrg(ctx context.Context, tx *sql.Tx, orgID, name, now string) error {
	if name == "" {
		name = orgID
	}
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO orgs(id,name,created_at) VALUES (?,?,?)`, orgID, name, now)
	return err
}

func (r Repo) GetOrg(ctx context.Context, id string) (domain.Org, error) {
	var o domain.Org
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,created_at FROM orgs WHERE id=?`, id).Scan(&o.ID, &o.Name, &o.CreatedAt)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	return o, err
}

func (r Repo) SingleOrg(ctx context.Context) (domain.Org, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,created_at FROM orgs`)
	if err != nil {
		return domain.Org{}, err
	}
	defer rows.Close()
	var orgs []domain.Org
	for rows.Next() {
		var o domain.Org
		if err := rows.Scan(&o.ID, &o.Name, &o.CreatedAt); err != nil {
			return domain.Org{}, err
		}
		orgs = append(orgs, o)
	}
	if len(orgs) == 0 {
		return domain.Org{}, ErrNotFound
	}
	if len(orgs) > 1 {
		return domain.Org{}, fmt.Errorf("multiple orgs exist; specify --org")
	}
	return orgs[0], nil
}

func (r Repo) LatestEvents(ctx context.Context, limit int, evtType, entityKind, entityID string) ([]domain.Event, error) {
	return r.LatestEventsFrom(ctx, limit, 0, evtType, entityKind, entityID)
}

func (r Repo) LatestEventsFrom(ctx context.Context, limit int, cursor int64, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var entID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &entID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if entID.Valid {
			e.EntityID = entID.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id,ts,type,entity_kind,entity_id,actor_id,payload_json FROM events WHERE id>? ORDER BY id ASC LIMIT ?`
	rows, err := r.DB.QueryContext(ctx, query, cursor, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var entID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &entID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if entID.Valid {
			e.EntityID = entID.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEventID returns the most recent event ID.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
