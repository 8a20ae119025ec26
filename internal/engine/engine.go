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
	"hrline/internal/engine/auth"
	"hrline/internal/events"
	"hrline/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Auth   auth.Service
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Auth:   auth.Service{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// DuplicateApprovalError indicates an entity that already has a live approval.
type DuplicateApprovalError struct {
	EntityType string
	EntityID   string
}

func (e DuplicateApprovalError) Error() string {
	return fmt.Sprintf("approval already exists for %s %s", e.EntityType, e.EntityID)
}

// InvalidStateError indicates a decision attempted against a record that is
// not in the state the caller assumed, including records finalized by a
// concurrent decider.
type InvalidStateError struct {
	Reason string
}

func (e InvalidStateError) Error() string {
	return e.Reason
}

// WrongApproverError indicates an employee acting on a step that is not theirs.
type WrongApproverError struct {
	ApprovalID string
	ApproverID string
}

func (e WrongApproverError) Error() string {
	return fmt.Sprintf("employee %s is not the current approver for approval %s", e.ApproverID, e.ApprovalID)
}

// InconsistencyError indicates stored approval data violating structural
// invariants, such as a missing step row for the current step.
type InconsistencyError struct {
	Reason string
}

func (e InconsistencyError) Error() string {
	return "approval data inconsistent: " + e.Reason
}

// ApprovalCreateOptions are parameters for creating an approval chain.
type ApprovalCreateOptions struct {
	ID          string
	EntityType  string
	EntityID    string
	RequesterID string
	ApproverIDs []string
	Comments    string
	// Replace deletes a previously rejected record for the same entity so
	// the request can go through a fresh chain.
	Replace bool
	ActorID string
}

// CreateApproval creates a pending approval record plus one step per approver,
// in the order given, all in one transaction.
func (e Engine) CreateApproval(ctx context.Context, opts ApprovalCreateOptions) (domain.ApprovalRecord, error) {
	if opts.EntityType == "" {
		return domain.ApprovalRecord{}, errors.New("entity_type is required")
	}
	if opts.EntityID == "" {
		return domain.ApprovalRecord{}, errors.New("entity_id is required")
	}
	if opts.RequesterID == "" {
		return domain.ApprovalRecord{}, errors.New("requester is required")
	}
	if len(opts.ApproverIDs) == 0 {
		return domain.ApprovalRecord{}, errors.New("at least one approver is required")
	}
	seen := map[string]bool{}
	for _, id := range opts.ApproverIDs {
		if id == "" {
			return domain.ApprovalRecord{}, errors.New("approver id must not be empty")
		}
		if seen[id] {
			return domain.ApprovalRecord{}, fmt.Errorf("approver %s listed twice", id)
		}
		seen[id] = true
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ApprovalRecord{}, err
	}
	defer tx.Rollback()

	a, err := e.createApprovalTx(ctx, tx, opts)
	if err != nil {
		return domain.ApprovalRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ApprovalRecord{}, err
	}
	return a, nil
}

func (e Engine) createApprovalTx(ctx context.Context, tx *sql.Tx, opts ApprovalCreateOptions) (domain.ApprovalRecord, error) {
	if _, err := e.Repo.GetEmployeeTx(ctx, tx, opts.RequesterID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.ApprovalRecord{}, fmt.Errorf("requester %s: %w", opts.RequesterID, err)
		}
		return domain.ApprovalRecord{}, err
	}
	for _, approverID := range opts.ApproverIDs {
		if _, err := e.Repo.GetEmployeeTx(ctx, tx, approverID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return domain.ApprovalRecord{}, fmt.Errorf("approver %s: %w", approverID, err)
			}
			return domain.ApprovalRecord{}, err
		}
	}

	existing, err := e.Repo.GetApprovalByEntityTx(ctx, tx, opts.EntityType, opts.EntityID)
	switch {
	case err == nil:
		if !opts.Replace {
			return domain.ApprovalRecord{}, DuplicateApprovalError{EntityType: opts.EntityType, EntityID: opts.EntityID}
		}
		if existing.Status != "rejected" {
			return domain.ApprovalRecord{}, InvalidStateError{Reason: fmt.Sprintf("approval for %s %s is %s; only rejected approvals can be replaced", opts.EntityType, opts.EntityID, existing.Status)}
		}
		if err := e.Repo.DeleteApprovalForEntityTx(ctx, tx, opts.EntityType, opts.EntityID); err != nil {
			return domain.ApprovalRecord{}, err
		}
	case errors.Is(err, repo.ErrNotFound):
	default:
		return domain.ApprovalRecord{}, err
	}

	now := e.now().UTC().Format(time.RFC3339)
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	a := domain.ApprovalRecord{
		ID:          id,
		EntityType:  opts.EntityType,
		EntityID:    opts.EntityID,
		RequesterID: opts.RequesterID,
		TotalSteps:  len(opts.ApproverIDs),
		CurrentStep: 1,
		Status:      "pending",
		Comments:    optionalString(opts.Comments),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.Repo.InsertApprovalTx(ctx, tx, a); err != nil {
		return domain.ApprovalRecord{}, fmt.Errorf("insert approval: %w", err)
	}
	for i, approverID := range opts.ApproverIDs {
		s := domain.ApprovalStep{
			ID:         uuid.NewString(),
			ApprovalID: a.ID,
			StepNumber: i + 1,
			ApproverID: approverID,
			Status:     "pending",
			CreatedAt:  now,
		}
		if err := e.Repo.InsertStepTx(ctx, tx, s); err != nil {
			return domain.ApprovalRecord{}, fmt.Errorf("insert step %d: %w", i+1, err)
		}
		a.Steps = append(a.Steps, s)
	}
	if err := e.Events.Append(ctx, tx, "approval.created", "approval", a.ID, opts.ActorID, events.EventPayload{
		"entity_type": a.EntityType,
		"entity_id":   a.EntityID,
		"total_steps": a.TotalSteps,
		"replaced":    opts.Replace,
	}); err != nil {
		return domain.ApprovalRecord{}, err
	}
	return a, nil
}

// ApproveStep records the current step's approval and either advances the
// chain or finalizes the record when the last step approves. The record
// update is guarded on (status, current_step) so of N concurrent calls only
// one lands; the rest get InvalidStateError.
func (e Engine) ApproveStep(ctx context.Context, approvalID, approverID, comments string) (domain.ApprovalRecord, error) {
	if approverID == "" {
		return domain.ApprovalRecord{}, errors.New("approver is required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ApprovalRecord{}, err
	}
	defer tx.Rollback()

	a, step, err := e.currentStepTx(ctx, tx, approvalID, approverID)
	if err != nil {
		return domain.ApprovalRecord{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateStepDecisionTx(ctx, tx, step.ID, "approved", optionalString(comments), now); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.ApprovalRecord{}, InvalidStateError{Reason: fmt.Sprintf("step %d of approval %s already decided", step.StepNumber, a.ID)}
		}
		return domain.ApprovalRecord{}, err
	}

	final := a.CurrentStep == a.TotalSteps
	if final {
		ok, err := e.Repo.FinalizeRecordTx(ctx, tx, a.ID, a.CurrentStep, "approved", approverID, optionalString(comments), now)
		if err != nil {
			return domain.ApprovalRecord{}, err
		}
		if !ok {
			return domain.ApprovalRecord{}, InvalidStateError{Reason: fmt.Sprintf("approval %s was modified concurrently", a.ID)}
		}
		if err := e.finalizeEntity(ctx, tx, a, "approved", approverID, now); err != nil {
			return domain.ApprovalRecord{}, err
		}
	} else {
		ok, err := e.Repo.AdvanceRecordTx(ctx, tx, a.ID, a.CurrentStep, now)
		if err != nil {
			return domain.ApprovalRecord{}, err
		}
		if !ok {
			return domain.ApprovalRecord{}, InvalidStateError{Reason: fmt.Sprintf("approval %s was modified concurrently", a.ID)}
		}
	}

	if err := e.Events.Append(ctx, tx, "approval.step.approved", "approval", a.ID, approverID, events.EventPayload{
		"step":  a.CurrentStep,
		"total": a.TotalSteps,
	}); err != nil {
		return domain.ApprovalRecord{}, err
	}
	if final {
		if err := e.Events.Append(ctx, tx, "approval.approved", "approval", a.ID, approverID, events.EventPayload{
			"entity_type": a.EntityType,
			"entity_id":   a.EntityID,
		}); err != nil {
			return domain.ApprovalRecord{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.ApprovalRecord{}, err
	}
	return e.Repo.GetApproval(ctx, a.ID)
}

// RejectApproval rejects the whole record at the current step. Later steps
// stay pending and never become actionable.
func (e Engine) RejectApproval(ctx context.Context, approvalID, approverID, comments string) (domain.ApprovalRecord, error) {
	if approverID == "" {
		return domain.ApprovalRecord{}, errors.New("approver is required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ApprovalRecord{}, err
	}
	defer tx.Rollback()

	a, step, err := e.currentStepTx(ctx, tx, approvalID, approverID)
	if err != nil {
		return domain.ApprovalRecord{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateStepDecisionTx(ctx, tx, step.ID, "rejected", optionalString(comments), now); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.ApprovalRecord{}, InvalidStateError{Reason: fmt.Sprintf("step %d of approval %s already decided", step.StepNumber, a.ID)}
		}
		return domain.ApprovalRecord{}, err
	}
	ok, err := e.Repo.FinalizeRecordTx(ctx, tx, a.ID, a.CurrentStep, "rejected", approverID, optionalString(comments), now)
	if err != nil {
		return domain.ApprovalRecord{}, err
	}
	if !ok {
		return domain.ApprovalRecord{}, InvalidStateError{Reason: fmt.Sprintf("approval %s was modified concurrently", a.ID)}
	}
	if err := e.finalizeEntity(ctx, tx, a, "rejected", approverID, now); err != nil {
		return domain.ApprovalRecord{}, err
	}
	if err := e.Events.Append(ctx, tx, "approval.rejected", "approval", a.ID, approverID, events.EventPayload{
		"entity_type": a.EntityType,
		"entity_id":   a.EntityID,
		"step":        a.CurrentStep,
	}); err != nil {
		return domain.ApprovalRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ApprovalRecord{}, err
	}
	return e.Repo.GetApproval(ctx, a.ID)
}

// currentStepTx loads the record, checks it is still decidable and that the
// caller owns the current step.
func (e Engine) currentStepTx(ctx context.Context, tx *sql.Tx, approvalID, approverID string) (domain.ApprovalRecord, domain.ApprovalStep, error) {
	a, err := e.Repo.GetApprovalTx(ctx, tx, approvalID)
	if err != nil {
		return a, domain.ApprovalStep{}, err
	}
	if a.Status != "pending" {
		return a, domain.ApprovalStep{}, InvalidStateError{Reason: fmt.Sprintf("approval %s is already %s", a.ID, a.Status)}
	}
	if a.TotalSteps < 1 || a.CurrentStep < 1 || a.CurrentStep > a.TotalSteps {
		return a, domain.ApprovalStep{}, InconsistencyError{Reason: fmt.Sprintf("approval %s has current_step %d of %d", a.ID, a.CurrentStep, a.TotalSteps)}
	}
	if len(a.Steps) != a.TotalSteps {
		return a, domain.ApprovalStep{}, InconsistencyError{Reason: fmt.Sprintf("approval %s has %d step rows, expected %d", a.ID, len(a.Steps), a.TotalSteps)}
	}
	var step domain.ApprovalStep
	found := false
	for _, s := range a.Steps {
		if s.StepNumber == a.CurrentStep {
			step = s
			found = true
			break
		}
	}
	if !found {
		return a, step, InconsistencyError{Reason: fmt.Sprintf("approval %s missing step row %d", a.ID, a.CurrentStep)}
	}
	if step.Status != "pending" {
		return a, step, InconsistencyError{Reason: fmt.Sprintf("approval %s is pending but step %d is %s", a.ID, step.StepNumber, step.Status)}
	}
	if step.ApproverID != approverID {
		return a, step, WrongApproverError{ApprovalID: a.ID, ApproverID: approverID}
	}
	return a, step, nil
}

// finalizeEntity reconciles the business entity behind a finalized record,
// inside the same transaction as the decision.
func (e Engine) finalizeEntity(ctx context.Context, tx *sql.Tx, a domain.ApprovalRecord, status, deciderID, now string) error {
	switch a.EntityType {
	case "leave_request":
		return e.finalizeLeave(ctx, tx, a.EntityID, status, deciderID, now)
	default:
		return nil
	}
}

func (e Engine) GetApproval(ctx context.Context, id string) (domain.ApprovalRecord, error) {
	return e.Repo.GetApproval(ctx, id)
}

// ListApprovals returns a page of approvals and the total match count. Take
// defaults to 50 and is capped at 200; Skip below zero is treated as zero.
func (e Engine) ListApprovals(ctx context.Context, f repo.ApprovalFilters) ([]domain.ApprovalRecord, int, error) {
	if f.Skip < 0 {
		f.Skip = 0
	}
	if f.Take <= 0 {
		f.Take = 50
	}
	if f.Take > 200 {
		f.Take = 200
	}
	return e.Repo.ListApprovals(ctx, f)
}

// PendingApprovalsForApprover returns pending records waiting on the given
// employee right now. Steps beyond the current one do not count.
func (e Engine) PendingApprovalsForApprover(ctx context.Context, approverID string) ([]domain.ApprovalRecord, error) {
	if approverID == "" {
		return nil, errors.New("approver is required")
	}
	return e.Repo.PendingForApprover(ctx, approverID)
}

// ApprovalHistory returns the full record with its step trail for an entity.
func (e Engine) ApprovalHistory(ctx context.Context, entityType, entityID string) (domain.ApprovalRecord, error) {
	if entityType == "" || entityID == "" {
		return domain.ApprovalRecord{}, errors.New("entity type and id are required")
	}
	return e.Repo.GetApprovalByEntity(ctx, entityType, entityID)
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
