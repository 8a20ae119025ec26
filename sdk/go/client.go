package hrlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal HRLine HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// ApprovalStep is one step of an approval chain.
type ApprovalStep struct {
	ID         string  `json:"id"`
	StepNumber int     `json:"step_number"`
	ApproverID string  `json:"approver_id"`
	Status     string  `json:"status"`
	Comments   *string `json:"comments,omitempty"`
	ApprovedAt *string `json:"approved_at,omitempty"`
}

// Approval represents an approval record with its chain.
type Approval struct {
	ID          string         `json:"id"`
	EntityType  string         `json:"entity_type"`
	EntityID    string         `json:"entity_id"`
	RequesterID string         `json:"requester_id"`
	TotalSteps  int            `json:"total_steps"`
	CurrentStep int            `json:"current_step"`
	Status      string         `json:"status"`
	Steps       []ApprovalStep `json:"steps"`
}

// Leave represents a leave request.
type Leave struct {
	ID         string `json:"id"`
	EmployeeID string `json:"employee_id"`
	LeaveType  string `json:"leave_type"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
	Days       int    `json:"days"`
	Status     string `json:"status"`
}

// LeaveSubmission pairs a leave request with its approval chain.
type LeaveSubmission struct {
	Leave    Leave    `json:"leave"`
	Approval Approval `json:"approval"`
}

// Employee represents the API employee model (partial).
type Employee struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Status    string `json:"status"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
}

// CreateApproval creates an approval chain for an entity.
func (c *Client) CreateApproval(ctx context.Context, entityType, entityID, requesterID string, approverIDs []string) (Approval, error) {
	body := map[string]any{
		"entity_type":  entityType,
		"entity_id":    entityID,
		"requester_id": requesterID,
		"approver_ids": approverIDs,
	}
	var resp Approval
	err := c.do(ctx, http.MethodPost, "v1/approvals", body, &resp)
	return resp, err
}

// GetApproval fetches an approval by id.
func (c *Client) GetApproval(ctx context.Context, id string) (Approval, error) {
	var resp Approval
	err := c.do(ctx, http.MethodGet, "v1/approvals/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// Approve approves the current step of an approval.
func (c *Client) Approve(ctx context.Context, id, comments string) (Approval, error) {
	var resp Approval
	err := c.do(ctx, http.MethodPost, "v1/approvals/"+url.PathEscape(id)+"/approve", decisionBody(comments), &resp)
	return resp, err
}

// Reject rejects an approval at its current step.
func (c *Client) Reject(ctx context.Context, id, comments string) (Approval, error) {
	var resp Approval
	err := c.do(ctx, http.MethodPost, "v1/approvals/"+url.PathEscape(id)+"/reject", decisionBody(comments), &resp)
	return resp, err
}

// PendingApprovals lists approvals waiting on an employee.
func (c *Client) PendingApprovals(ctx context.Context, employeeID string) ([]Approval, error) {
	var resp []Approval
	err := c.do(ctx, http.MethodGet, "v1/approvals/pending/"+url.PathEscape(employeeID), nil, &resp)
	return resp, err
}

// ApprovalHistory fetches the approval record for an entity.
func (c *Client) ApprovalHistory(ctx context.Context, entityType, entityID string) (Approval, error) {
	var resp Approval
	endpoint := fmt.Sprintf("v1/approvals/history/%s/%s", url.PathEscape(entityType), url.PathEscape(entityID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// SubmitLeave submits a leave request for the authenticated employee.
func (c *Client) SubmitLeave(ctx context.Context, leaveType, startDate, endDate, reason string) (LeaveSubmission, error) {
	body := map[string]any{
		"leave_type": leaveType,
		"start_date": startDate,
		"end_date":   endDate,
	}
	if reason != "" {
		body["reason"] = reason
	}
	var resp LeaveSubmission
	err := c.do(ctx, http.MethodPost, "v1/leave-requests", body, &resp)
	return resp, err
}

// ResubmitLeave opens a fresh approval chain for a rejected leave request.
func (c *Client) ResubmitLeave(ctx context.Context, leaveID string) (LeaveSubmission, error) {
	var resp LeaveSubmission
	err := c.do(ctx, http.MethodPost, "v1/leave-requests/"+url.PathEscape(leaveID)+"/resubmit", nil, &resp)
	return resp, err
}

// GetEmployee fetches an employee by id.
func (c *Client) GetEmployee(ctx context.Context, id string) (Employee, error) {
	var resp Employee
	err := c.do(ctx, http.MethodGet, "v1/employees/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "v1/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func decisionBody(comments string) map[string]any {
	body := map[string]any{}
	if comments != "" {
		body["comments"] = comments
	}
	return body
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.Unmarshal(b, &envelope)
		apiErr := &APIError{StatusCode: resp.StatusCode, Code: envelope.Error.Code, Message: envelope.Error.Message}
		if apiErr.Message == "" {
			apiErr.Message = string(b)
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
