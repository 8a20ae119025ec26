package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"hrline/internal/domain"
	"hrline/internal/events"
	"hrline/internal/repo"
)

// CheckIn opens today's attendance row for an employee. One row per employee
// per day.
func (e Engine) CheckIn(ctx context.Context, employeeID, actorID string) (domain.Attendance, error) {
	emp, err := e.Repo.GetEmployee(ctx, employeeID)
	if err != nil {
		return domain.Attendance{}, fmt.Errorf("employee %s: %w", employeeID, err)
	}
	if emp.Status == "terminated" {
		return domain.Attendance{}, InvalidStateError{Reason: fmt.Sprintf("employee %s is terminated", emp.ID)}
	}
	now := e.now().UTC()
	day := now.Format("2006-01-02")
	ts := now.Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Attendance{}, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetAttendanceTx(ctx, tx, emp.ID, day); err == nil {
		return domain.Attendance{}, InvalidStateError{Reason: fmt.Sprintf("employee %s already checked in on %s", emp.ID, day)}
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Attendance{}, err
	}
	a := domain.Attendance{
		ID:         uuid.NewString(),
		EmployeeID: emp.ID,
		Day:        day,
		CheckIn:    &ts,
		Status:     "present",
	}
	if err := e.Repo.InsertAttendanceTx(ctx, tx, a); err != nil {
		return domain.Attendance{}, err
	}
	if err := e.Events.Append(ctx, tx, "attendance.checkin", "attendance", a.ID, actorID, events.EventPayload{"day": day}); err != nil {
		return domain.Attendance{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Attendance{}, err
	}
	return a, nil
}

// CheckOut stamps the check-out time on today's open row.
func (e Engine) CheckOut(ctx context.Context, employeeID, actorID string) (domain.Attendance, error) {
	now := e.now().UTC()
	day := now.Format("2006-01-02")
	ts := now.Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Attendance{}, err
	}
	defer tx.Rollback()

	a, err := e.Repo.GetAttendanceTx(ctx, tx, employeeID, day)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Attendance{}, InvalidStateError{Reason: fmt.Sprintf("employee %s has not checked in on %s", employeeID, day)}
		}
		return domain.Attendance{}, err
	}
	if err := e.Repo.SetCheckOutTx(ctx, tx, a.ID, ts); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Attendance{}, InvalidStateError{Reason: fmt.Sprintf("employee %s already checked out on %s", employeeID, day)}
		}
		return domain.Attendance{}, err
	}
	if err := e.Events.Append(ctx, tx, "attendance.checkout", "attendance", a.ID, actorID, events.EventPayload{"day": day}); err != nil {
		return domain.Attendance{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Attendance{}, err
	}
	a.CheckOut = &ts
	return a, nil
}

// MarkAbsentees writes absent rows for active employees with no attendance
// and no approved leave on the given day. Day defaults to today. Returns the
// IDs marked.
func (e Engine) MarkAbsentees(ctx context.Context, day, actorID string) ([]string, error) {
	if day == "" {
		day = e.now().UTC().Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", day); err != nil {
		return nil, fmt.Errorf("invalid day: %w", err)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	ids, err := e.Repo.EmployeesWithoutAttendance(ctx, tx, day)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		a := domain.Attendance{
			ID:         uuid.NewString(),
			EmployeeID: id,
			Day:        day,
			Status:     "absent",
		}
		if err := e.Repo.InsertAttendanceTx(ctx, tx, a); err != nil {
			return nil, err
		}
	}
	if len(ids) > 0 {
		if err := e.Events.Append(ctx, tx, "attendance.absent.marked", "attendance", "", actorID, events.EventPayload{
			"day":   day,
			"count": len(ids),
		}); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (e Engine) ListAttendance(ctx context.Context, f repo.AttendanceFilters) ([]domain.Attendance, error) {
	return e.Repo.ListAttendance(ctx, f)
}
