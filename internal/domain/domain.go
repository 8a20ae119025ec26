package domain

type Org struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Department struct {
	ID          string `json:"id"`
	OrgID       string `json:"org_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type Employee struct {
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

// ApprovalRecord is one approval process instance bound to a single business
// entity identified by the (EntityType, EntityID) pair. ApproverID records who
// gave the decisive approval or rejection; it stays nil while pending.
type ApprovalRecord struct {
	ID          string         `json:"id"`
	EntityType  string         `json:"entity_type"`
	EntityID    string         `json:"entity_id"`
	RequesterID string         `json:"requester_id"`
	ApproverID  *string        `json:"approver_id,omitempty"`
	TotalSteps  int            `json:"total_steps"`
	CurrentStep int            `json:"current_step"`
	Status      string         `json:"status" enum:"pending,approved,rejected"`
	Comments    *string        `json:"comments,omitempty"`
	ApprovedAt  *string        `json:"approved_at,omitempty" format:"date-time"`
	CreatedAt   string         `json:"created_at" format:"date-time"`
	UpdatedAt   string         `json:"updated_at" format:"date-time"`
	Steps       []ApprovalStep `json:"steps,omitempty"`
}

// ApprovalStep is a single approver's decision slot within a record's chain.
// Step numbers are contiguous 1..TotalSteps in the order approvers were given.
type ApprovalStep struct {
	ID         string  `json:"id"`
	ApprovalID string  `json:"approval_id"`
	StepNumber int     `json:"step_number"`
	ApproverID string  `json:"approver_id"`
	Status     string  `json:"status" enum:"pending,approved,rejected"`
	Comments   *string `json:"comments,omitempty"`
	ApprovedAt *string `json:"approved_at,omitempty" format:"date-time"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
}

type LeaveRequest struct {
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

type LeaveBalance struct {
	EmployeeID string `json:"employee_id"`
	LeaveType  string `json:"leave_type"`
	Year       int    `json:"year"`
	Allocated  int    `json:"allocated"`
	Used       int    `json:"used"`
}

type Attendance struct {
	ID         string  `json:"id"`
	EmployeeID string  `json:"employee_id"`
	Day        string  `json:"day" format:"date"`
	CheckIn    *string `json:"check_in,omitempty" format:"date-time"`
	CheckOut   *string `json:"check_out,omitempty" format:"date-time"`
	Status     string  `json:"status" enum:"present,absent,on_leave"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID         string `json:"id"`
	EmployeeID string `json:"employee_id"`
	Name       string `json:"name,omitempty"`
	KeyHash    string `json:"key_hash"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type EmployeeProfile struct {
	EmployeeID  string   `json:"employee_id"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}
