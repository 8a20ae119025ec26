package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"hrline/internal/engine"
	"hrline/internal/repo"
)

func registerDepartments(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-department",
		Method:        http.MethodPost,
		Path:          "/departments",
		Summary:       "Create department",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateDepartmentRequest `json:"body"`
	}) (*struct {
		Body DepartmentResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requirePermission(ctx, e, "department.write"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		orgID := ""
		if e.Config != nil {
			orgID = e.Config.Org.ID
		}
		d, err := e.CreateDepartment(ctx, orgID, input.Body.Name, stringOrEmpty(input.Body.Description), actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DepartmentResponse `json:"body"`
		}{Body: departmentResponse(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-departments",
		Method:      http.MethodGet,
		Path:        "/departments",
		Summary:     "List departments",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []DepartmentResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, "employee.read"); err != nil {
			return nil, handleError(err)
		}
		items, err := e.ListDepartments(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]DepartmentResponse, 0, len(items))
		for _, d := range items {
			res = append(res, departmentResponse(d))
		}
		return &struct {
			Body []DepartmentResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-department",
		Method:      http.MethodGet,
		Path:        "/departments/{department_id}",
		Summary:     "Get department",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		DepartmentID string `path:"department_id"`
	}) (*struct {
		Body DepartmentResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, "employee.read"); err != nil {
			return nil, handleError(err)
		}
		d, err := e.GetDepartment(ctx, input.DepartmentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DepartmentResponse `json:"body"`
		}{Body: departmentResponse(d)}, nil
	})
}

func registerEmployees(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-employee",
		Method:        http.MethodPost,
		Path:          "/employees",
		Summary:       "Create employee",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateEmployeeRequest `json:"body"`
	}) (*struct {
		Body EmployeeResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requirePermission(ctx, e, "employee.write"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		orgID := ""
		if e.Config != nil {
			orgID = e.Config.Org.ID
		}
		emp, err := e.CreateEmployee(ctx, engine.EmployeeCreateOptions{
			ID:           stringOrEmpty(input.Body.ID),
			OrgID:        orgID,
			DepartmentID: stringOrEmpty(input.Body.DepartmentID),
			FirstName:    input.Body.FirstName,
			LastName:     input.Body.LastName,
			Email:        input.Body.Email,
			Title:        stringOrEmpty(input.Body.Title),
			HiredAt:      stringOrEmpty(input.Body.HiredAt),
			Roles:        input.Body.Roles,
			ActorID:      actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EmployeeResponse `json:"body"`
		}{Body: employeeResponse(emp)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-employees",
		Method:      http.MethodGet,
		Path:        "/employees",
		Summary:     "List employees",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		DepartmentID string `query:"department_id"`
		Status       string `query:"status" enum:"active,on_leave,terminated,"`
		Search       string `query:"search"`
		Skip         int    `query:"skip"`
		Take         int    `query:"take"`
	}) (*struct {
		Body EmployeePageResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, "employee.read"); err != nil {
			return nil, handleError(err)
		}
		items, total, err := e.ListEmployees(ctx, repo.EmployeeFilters{
			DepartmentID: input.DepartmentID,
			Status:       input.Status,
			Search:       input.Search,
			Skip:         input.Skip,
			Take:         input.Take,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EmployeePageResponse `json:"body"`
		}{Body: EmployeePageResponse{
			Items: mapEmployees(items),
			Total: total,
			Skip:  input.Skip,
			Take:  normalizeLimit(input.Take),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-employee",
		Method:      http.MethodGet,
		Path:        "/employees/{employee_id}",
		Summary:     "Get employee",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		EmployeeID string `path:"employee_id"`
	}) (*struct {
		Body EmployeeResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, "employee.read"); err != nil {
			return nil, handleError(err)
		}
		emp, err := e.GetEmployee(ctx, input.EmployeeID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EmployeeResponse `json:"body"`
		}{Body: employeeResponse(emp)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-employee",
		Method:      http.MethodPatch,
		Path:        "/employees/{employee_id}",
		Summary:     "Update employee",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		EmployeeID string                `path:"employee_id"`
		Body       UpdateEmployeeRequest `json:"body"`
	}) (*struct {
		Body EmployeeResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requirePermission(ctx, e, "employee.write"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		emp, err := e.UpdateEmployee(ctx, input.EmployeeID, engine.EmployeeUpdateOptions{
			DepartmentID: input.Body.DepartmentID,
			FirstName:    input.Body.FirstName,
			LastName:     input.Body.LastName,
			Email:        input.Body.Email,
			Title:        input.Body.Title,
			Status:       input.Body.Status,
			ActorID:      actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EmployeeResponse `json:"body"`
		}{Body: employeeResponse(emp)}, nil
	})
}

func registerLeave(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "submit-leave",
		Method:        http.MethodPost,
		Path:          "/leave-requests",
		Summary:       "Submit leave request",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body SubmitLeaveRequest `json:"body"`
	}) (*struct {
		Body LeaveSubmitResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requirePermission(ctx, e, "leave.submit"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		employeeID := input.Body.EmployeeID
		if employeeID == "" {
			employeeID = actorID
		}
		l, a, err := e.SubmitLeaveRequest(ctx, engine.LeaveSubmitOptions{
			EmployeeID: employeeID,
			LeaveType:  input.Body.LeaveType,
			StartDate:  input.Body.StartDate,
			EndDate:    input.Body.EndDate,
			Reason:     stringOrEmpty(input.Body.Reason),
			ActorID:    actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LeaveSubmitResponse `json:"body"`
		}{Body: LeaveSubmitResponse{Leave: leaveResponse(l), Approval: approvalResponse(a)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-leave",
		Method:      http.MethodGet,
		Path:        "/leave-requests",
		Summary:     "List leave requests",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		EmployeeID string `query:"employee_id"`
		Status     string `query:"status" enum:"pending,approved,rejected,canceled,"`
		LeaveType  string `query:"leave_type"`
		Skip       int    `query:"skip"`
		Take       int    `query:"take"`
	}) (*struct {
		Body LeavePageResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, "leave.read"); err != nil {
			return nil, handleError(err)
		}
		items, total, err := e.ListLeaveRequests(ctx, repo.LeaveFilters{
			EmployeeID: input.EmployeeID,
			Status:     input.Status,
			LeaveType:  input.LeaveType,
			Skip:       input.Skip,
			Take:       input.Take,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LeavePageResponse `json:"body"`
		}{Body: LeavePageResponse{
			Items: mapLeaves(items),
			Total: total,
			Skip:  input.Skip,
			Take:  normalizeLimit(input.Take),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-leave",
		Method:      http.MethodGet,
		Path:        "/leave-requests/{leave_id}",
		Summary:     "Get leave request",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		LeaveID string `path:"leave_id"`
	}) (*struct {
		Body LeaveResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, "leave.read"); err != nil {
			return nil, handleError(err)
		}
		l, err := e.GetLeaveRequest(ctx, input.LeaveID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LeaveResponse `json:"body"`
		}{Body: leaveResponse(l)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resubmit-leave",
		Method:      http.MethodPost,
		Path:        "/leave-requests/{leave_id}/resubmit",
		Summary:     "Resubmit a rejected leave request",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		LeaveID string `path:"leave_id"`
	}) (*struct {
		Body LeaveSubmitResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, "leave.submit"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		l, a, err := e.ResubmitLeaveRequest(ctx, input.LeaveID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LeaveSubmitResponse `json:"body"`
		}{Body: LeaveSubmitResponse{Leave: leaveResponse(l), Approval: approvalResponse(a)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "leave-balances",
		Method:      http.MethodGet,
		Path:        "/employees/{employee_id}/leave-balances",
		Summary:     "Leave balances for an employee",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		EmployeeID string `path:"employee_id"`
		Year       int    `query:"year"`
	}) (*struct {
		Body []LeaveBalanceResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, "leave.read"); err != nil {
			return nil, handleError(err)
		}
		items, err := e.LeaveBalances(ctx, input.EmployeeID, input.Year)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []LeaveBalanceResponse `json:"body"`
		}{Body: mapBalances(items)}, nil
	})
}

func registerAttendance(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "check-in",
		Method:      http.MethodPost,
		Path:        "/attendance/check-in",
		Summary:     "Check in for today",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body AttendanceResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, "attendance.write"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.CheckIn(ctx, actorID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AttendanceResponse `json:"body"`
		}{Body: attendanceResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "check-out",
		Method:      http.MethodPost,
		Path:        "/attendance/check-out",
		Summary:     "Check out for today",
		Errors: []int{
			http.StatusForbidden,
			http.StatusConflict,
		},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body AttendanceResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, "attendance.write"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.CheckOut(ctx, actorID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AttendanceResponse `json:"body"`
		}{Body: attendanceResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-attendance",
		Method:      http.MethodGet,
		Path:        "/attendance",
		Summary:     "List attendance records",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		EmployeeID string `query:"employee_id"`
		From       string `query:"from"`
		To         string `query:"to"`
		Status     string `query:"status" enum:"present,absent,on_leave,"`
	}) (*struct {
		Body []AttendanceResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, "attendance.read"); err != nil {
			return nil, handleError(err)
		}
		items, err := e.ListAttendance(ctx, repo.AttendanceFilters{
			EmployeeID: input.EmployeeID,
			From:       input.From,
			To:         input.To,
			Status:     input.Status,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []AttendanceResponse `json:"body"`
		}{Body: mapAttendance(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "mark-absent",
		Method:      http.MethodPost,
		Path:        "/attendance/mark-absent",
		Summary:     "Mark absentees for a day",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, input *struct {
		Body MarkAbsentRequest `json:"body"`
	}) (*struct {
		Body MarkAbsentResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, "attendance.admin"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		day := stringOrEmpty(input.Body.Day)
		if day == "" {
			day = time.Now().UTC().Format("2006-01-02")
		}
		marked, err := e.MarkAbsentees(ctx, day, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MarkAbsentResponse `json:"body"`
		}{Body: MarkAbsentResponse{Day: day, Marked: nonNilSlice(marked)}}, nil
	})
}

func registerRBAC(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "grant-role",
		Method:      http.MethodPost,
		Path:        "/employees/{employee_id}/roles",
		Summary:     "Grant role to employee",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		EmployeeID string           `path:"employee_id"`
		Body       GrantRoleRequest `json:"body"`
	}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.RoleID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "role_id is required", nil)
		}
		if err := requirePermission(ctx, e, "rbac.manage"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.GrantRole(ctx, input.EmployeeID, input.Body.RoleID, actorID); err != nil {
			return nil, handleError(err)
		}
		who, err := e.WhoAmI(ctx, input.EmployeeID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{
			EmployeeID:  who.EmployeeID,
			Roles:       nonNilSlice(who.Roles),
			Permissions: nonNilSlice(who.Permissions),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "revoke-role",
		Method:      http.MethodDelete,
		Path:        "/employees/{employee_id}/roles/{role_id}",
		Summary:     "Revoke role from employee",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		EmployeeID string `path:"employee_id"`
		RoleID     string `path:"role_id"`
	}) (*struct{}, error) {
		if err := requirePermission(ctx, e, "rbac.manage"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RevokeRole(ctx, input.EmployeeID, input.RoleID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/employees/{employee_id}/api-keys",
		Summary:       "Create API key for employee",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		EmployeeID string `path:"employee_id"`
		Body       struct {
			Name string `json:"name,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body APIKeyResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, "rbac.manage"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		key, plaintext, err := e.CreateAPIKey(ctx, input.EmployeeID, input.Body.Name, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body APIKeyResponse `json:"body"`
		}{Body: APIKeyResponse{
			ID:         key.ID,
			EmployeeID: key.EmployeeID,
			Name:       key.Name,
			Key:        plaintext,
			CreatedAt:  key.CreatedAt,
		}}, nil
	})
}
