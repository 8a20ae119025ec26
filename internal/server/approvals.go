package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"hrline/internal/engine"
	"hrline/internal/repo"
)

func registerApprovals(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-approval",
		Method:        http.MethodPost,
		Path:          "/approvals",
		Summary:       "Create approval chain",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateApprovalRequest `json:"body"`
	}) (*struct {
		Body ApprovalResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requirePermission(ctx, e, "approval.create"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.CreateApproval(ctx, engine.ApprovalCreateOptions{
			EntityType:  input.Body.EntityType,
			EntityID:    input.Body.EntityID,
			RequesterID: input.Body.RequesterID,
			ApproverIDs: input.Body.ApproverIDs,
			Comments:    stringOrEmpty(input.Body.Comments),
			Replace:     input.Body.Replace,
			ActorID:     actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ApprovalResponse `json:"body"`
		}{Body: approvalResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-approvals",
		Method:      http.MethodGet,
		Path:        "/approvals",
		Summary:     "List approvals",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		RequesterID string `query:"requester_id"`
		ApproverID  string `query:"approver_id"`
		Status      string `query:"status" enum:"pending,approved,rejected,"`
		EntityType  string `query:"entity_type"`
		Skip        int    `query:"skip"`
		Take        int    `query:"take"`
	}) (*struct {
		Body ApprovalPageResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, "approval.read"); err != nil {
			return nil, handleError(err)
		}
		items, total, err := e.ListApprovals(ctx, repo.ApprovalFilters{
			RequesterID: input.RequesterID,
			ApproverID:  input.ApproverID,
			Status:      input.Status,
			EntityType:  input.EntityType,
			Skip:        input.Skip,
			Take:        input.Take,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ApprovalPageResponse `json:"body"`
		}{Body: ApprovalPageResponse{
			Items: mapApprovals(items),
			Total: total,
			Skip:  input.Skip,
			Take:  normalizeLimit(input.Take),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-approval",
		Method:      http.MethodGet,
		Path:        "/approvals/{approval_id}",
		Summary:     "Get approval",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ApprovalID string `path:"approval_id"`
	}) (*struct {
		Body ApprovalResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, "approval.read"); err != nil {
			return nil, handleError(err)
		}
		a, err := e.GetApproval(ctx, input.ApprovalID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ApprovalResponse `json:"body"`
		}{Body: approvalResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "approve-step",
		Method:      http.MethodPost,
		Path:        "/approvals/{approval_id}/approve",
		Summary:     "Approve current step",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ApprovalID string                  `path:"approval_id"`
		Body       ApprovalDecisionRequest `json:"body"`
	}) (*struct {
		Body ApprovalResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, "approval.decide"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.ApproveStep(ctx, input.ApprovalID, actorID, stringOrEmpty(input.Body.Comments))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ApprovalResponse `json:"body"`
		}{Body: approvalResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reject-approval",
		Method:      http.MethodPost,
		Path:        "/approvals/{approval_id}/reject",
		Summary:     "Reject approval at current step",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ApprovalID string                  `path:"approval_id"`
		Body       ApprovalDecisionRequest `json:"body"`
	}) (*struct {
		Body ApprovalResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, "approval.decide"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.RejectApproval(ctx, input.ApprovalID, actorID, stringOrEmpty(input.Body.Comments))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ApprovalResponse `json:"body"`
		}{Body: approvalResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "pending-approvals",
		Method:      http.MethodGet,
		Path:        "/approvals/pending/{employee_id}",
		Summary:     "Approvals waiting on an employee",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		EmployeeID string `path:"employee_id"`
	}) (*struct {
		Body []ApprovalResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, "approval.read"); err != nil {
			return nil, handleError(err)
		}
		items, err := e.PendingApprovalsForApprover(ctx, input.EmployeeID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ApprovalResponse `json:"body"`
		}{Body: mapApprovals(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "approval-history",
		Method:      http.MethodGet,
		Path:        "/approvals/history/{entity_type}/{entity_id}",
		Summary:     "Approval history for an entity",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		EntityType string `path:"entity_type"`
		EntityID   string `path:"entity_id"`
	}) (*struct {
		Body ApprovalResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, "approval.read"); err != nil {
			return nil, handleError(err)
		}
		a, err := e.ApprovalHistory(ctx, input.EntityType, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ApprovalResponse `json:"body"`
		}{Body: approvalResponse(a)}, nil
	})
}
