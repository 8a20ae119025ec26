package server

import (
	"encoding/json"

	"hrline/internal/domain"
)

// Request payloads

type CreateDepartmentRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

type CreateEmployeeRequest struct {
	ID           *string  `json:"id,omitempty"`
	DepartmentID *string  `json:"department_id,omitempty"`
	FirstName    string   `json:"first_name"`
	LastName     string   `json:"last_name"`
	Email        string   `json:"email" format:"email"`
	Title        *string  `json:"title,omitempty"`
	HiredAt      *string  `json:"hired_at,omitempty" format:"date-time"`
	Roles        []string `json:"roles,omitempty"`
}

type UpdateEmployeeRequest struct {
	DepartmentID *string `json:"department_id,omitempty"`
	FirstName    *string `json:"first_name,omitempty"`
	LastName     *string `json:"last_name,omitempty"`
	Email        *string `json:"email,omitempty" format:"email"`
	Title        *string `json:"title,omitempty"`
	Status       *string `json:"status,omitempty" enum:"active,on_leave,terminated"`
}

type CreateApprovalRequest struct {
	EntityType  string   `json:"entity_type"`
	EntityID    string   `json:"entity_id"`
	RequesterID string   `json:"requester_id"`
	ApproverIDs []string `json:"approver_ids"`
	Comments    *string  `json:"comments,omitempty"`
	Replace     bool     `json:"replace,omitempty"`
}

type ApprovalDecisionRequest struct {
	Comments *string `json:"comments,omitempty"`
}

type SubmitLeaveRequest struct {
	EmployeeID string  `json:"employee_id,omitempty"`
	LeaveType  string  `json:"leave_type"`
	StartDate  string  `json:"start_date" format:"date"`
	EndDate    string  `json:"end_date" format:"date"`
	Reason     *string `json:"reason,omitempty"`
}

type MarkAbsentRequest struct {
	Day *string `json:"day,omitempty" format:"date"`
}

type GrantRoleRequest struct {
	RoleID string `json:"role_id"`
}

type DevLoginRequest struct {
	EmployeeID  string   `json:"employee_id"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// Response payloads

type DepartmentResponse struct {
	ID          string `json:"id"`
	OrgID       string `json:"org_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type EmployeeResponse struct {
	ID           string  `json:"id"`
	OrgID        string  `json:"org_id"`
	DepartmentID *string `json:"department_id,omitempty"`
	FirstName    string  `json:"first_name"`
	LastName     string  `json:"last_name"`
	Email        string  `json:"email"`
	Title        string  `json:"title,omitempty"`
	Status       string  `json:"status" enum:"active,on_leave,terminated"`
	HiredAt      *string `json:"hired_at,omitempty" format:"date-time"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
	UpdatedAt    string  `json:"updated_at" format:"date-time"`
}

type ApprovalStepResponse struct {
	ID         string  `json:"id"`
	StepNumber int     `json:"step_number"`
	ApproverID string  `json:"approver_id"`
	Status     string  `json:"status" enum:"pending,approved,rejected"`
	Comments   *string `json:"comments,omitempty"`
	ApprovedAt *string `json:"approved_at,omitempty" format:"date-time"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
}

type ApprovalResponse struct {
	ID          string                 `json:"id"`
	EntityType  string                 `json:"entity_type"`
	EntityID    string                 `json:"entity_id"`
	RequesterID string                 `json:"requester_id"`
	ApproverID  *string                `json:"approver_id,omitempty"`
	TotalSteps  int                    `json:"total_steps"`
	CurrentStep int                    `json:"current_step"`
	Status      string                 `json:"status" enum:"pending,approved,rejected"`
	Comments    *string                `json:"comments,omitempty"`
	ApprovedAt  *string                `json:"approved_at,omitempty" format:"date-time"`
	CreatedAt   string                 `json:"created_at" format:"date-time"`
	UpdatedAt   string                 `json:"updated_at" format:"date-time"`
	Steps       []ApprovalStepResponse `json:"steps"`
}

type ApprovalPageResponse struct {
	Items []ApprovalResponse `json:"items"`
	Total int                `json:"total"`
	Skip  int                `json:"skip"`
	Take  int                `json:"take"`
}

type EmployeePageResponse struct {
	Items []EmployeeResponse `json:"items"`
	Total int                `json:"total"`
	Skip  int                `json:"skip"`
	Take  int                `json:"take"`
}

type LeaveResponse struct {
	ID         string  `json:"id"`
	EmployeeID string  `json:"employee_id"`
	LeaveType  string  `json:"leave_type"`
	StartDate  string  `json:"start_date" format:"date"`
	EndDate    string  `json:"end_date" format:"date"`
	Days       int     `json:"days"`
	Reason     string  `json:"reason,omitempty"`
	Status     string  `json:"status" enum:"pending,approved,rejected,canceled"`
	DecidedBy  *string `json:"decided_by,omitempty"`
	DecidedAt  *string `json:"decided_at,omitempty" format:"date-time"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
	UpdatedAt  string  `json:"updated_at" format:"date-time"`
}

type LeaveSubmitResponse struct {
	Leave    LeaveResponse    `json:"leave"`
	Approval ApprovalResponse `json:"approval"`
}

type LeavePageResponse struct {
	Items []LeaveResponse `json:"items"`
	Total int             `json:"total"`
	Skip  int             `json:"skip"`
	Take  int             `json:"take"`
}

type LeaveBalanceResponse struct {
	LeaveType string `json:"leave_type"`
	Year      int    `json:"year"`
	Allocated int    `json:"allocated"`
	Used      int    `json:"used"`
	Remaining int    `json:"remaining"`
}

type AttendanceResponse struct {
	ID         string  `json:"id"`
	EmployeeID string  `json:"employee_id"`
	Day        string  `json:"day" format:"date"`
	CheckIn    *string `json:"check_in,omitempty" format:"date-time"`
	CheckOut   *string `json:"check_out,omitempty" format:"date-time"`
	Status     string  `json:"status" enum:"present,absent,on_leave"`
}

type MarkAbsentResponse struct {
	Day    string   `json:"day" format:"date"`
	Marked []string `json:"marked"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type WhoAmIResponse struct {
	EmployeeID  string   `json:"employee_id"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type APIKeyResponse struct {
	ID         string `json:"id"`
	EmployeeID string `json:"employee_id"`
	Name       string `json:"name,omitempty"`
	Key        string `json:"key,omitempty"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

// Mappers

func departmentResponse(d domain.Department) DepartmentResponse {
	return DepartmentResponse{
		ID:          d.ID,
		OrgID:       d.OrgID,
		Name:        d.Name,
		Description: d.Description,
		CreatedAt:   d.CreatedAt,
	}
}

func employeeResponse(e domain.Employee) EmployeeResponse {
	return EmployeeResponse{
		ID:           e.ID,
		OrgID:        e.OrgID,
		DepartmentID: e.DepartmentID,
		FirstName:    e.FirstName,
		LastName:     e.LastName,
		Email:        e.Email,
		Title:        e.Title,
		Status:       e.Status,
		HiredAt:      e.HiredAt,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}

func approvalResponse(a domain.ApprovalRecord) ApprovalResponse {
	steps := make([]ApprovalStepResponse, 0, len(a.Steps))
	for _, s := range a.Steps {
		steps = append(steps, ApprovalStepResponse{
			ID:         s.ID,
			StepNumber: s.StepNumber,
			ApproverID: s.ApproverID,
			Status:     s.Status,
			Comments:   s.Comments,
			ApprovedAt: s.ApprovedAt,
			CreatedAt:  s.CreatedAt,
		})
	}
	return ApprovalResponse{
		ID:          a.ID,
		EntityType:  a.EntityType,
		EntityID:    a.EntityID,
		RequesterID: a.RequesterID,
		ApproverID:  a.ApproverID,
		TotalSteps:  a.TotalSteps,
		CurrentStep: a.CurrentStep,
		Status:      a.Status,
		Comments:    a.Comments,
		ApprovedAt:  a.ApprovedAt,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
		Steps:       steps,
	}
}

func mapApprovals(items []domain.ApprovalRecord) []ApprovalResponse {
	res := make([]ApprovalResponse, 0, len(items))
	for _, a := range items {
		res = append(res, approvalResponse(a))
	}
	return res
}

func mapEmployees(items []domain.Employee) []EmployeeResponse {
	res := make([]EmployeeResponse, 0, len(items))
	for _, e := range items {
		res = append(res, employeeResponse(e))
	}
	return res
}

func leaveResponse(l domain.LeaveRequest) LeaveResponse {
	return LeaveResponse{
		ID:         l.ID,
		EmployeeID: l.EmployeeID,
		LeaveType:  l.LeaveType,
		StartDate:  l.StartDate,
		EndDate:    l.EndDate,
		Days:       l.Days,
		Reason:     l.Reason,
		Status:     l.Status,
		DecidedBy:  l.DecidedBy,
		DecidedAt:  l.DecidedAt,
		CreatedAt:  l.CreatedAt,
		UpdatedAt:  l.UpdatedAt,
	}
}

func mapLeaves(items []domain.LeaveRequest) []LeaveResponse {
	res := make([]LeaveResponse, 0, len(items))
	for _, l := range items {
		res = append(res, leaveResponse(l))
	}
	return res
}

func attendanceResponse(a domain.Attendance) AttendanceResponse {
	return AttendanceResponse{
		ID:         a.ID,
		EmployeeID: a.EmployeeID,
		Day:        a.Day,
		CheckIn:    a.CheckIn,
		CheckOut:   a.CheckOut,
		Status:     a.Status,
	}
}

func mapAttendance(items []domain.Attendance) []AttendanceResponse {
	res := make([]AttendanceResponse, 0, len(items))
	for _, a := range items {
		res = append(res, attendanceResponse(a))
	}
	return res
}

func mapBalances(items []domain.LeaveBalance) []LeaveBalanceResponse {
	res := make([]LeaveBalanceResponse, 0, len(items))
	for _, b := range items {
		res = append(res, LeaveBalanceResponse{
			LeaveType: b.LeaveType,
			Year:      b.Year,
			Allocated: b.Allocated,
			Used:      b.Used,
			Remaining: b.Allocated - b.Used,
		})
	}
	return res
}

func mapEvents(items []domain.Event) []EventResponse {
	res := make([]EventResponse, 0, len(items))
	for _, ev := range items {
		payload := map[string]any{}
		if ev.Payload != "" {
			_ = json.Unmarshal([]byte(ev.Payload), &payload)
		}
		res = append(res, EventResponse{
			ID:         ev.ID,
			TS:         ev.TS,
			Type:       ev.Type,
			EntityKind: ev.EntityKind,
			EntityID:   ev.EntityID,
			ActorID:    ev.ActorID,
			Payload:    payload,
		})
	}
	return res
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
