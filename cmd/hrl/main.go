package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"hrline/internal/app"
	"hrline/internal/config"
	"hrline/internal/db"
	"hrline/internal/engine"
	"hrline/internal/migrate"
	"hrline/internal/repo"
	"hrline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "hrl",
	Short: "HRLine CLI",
	Long: `HRLine manages employees, leave, and attendance with sequential approval chains.
Core concepts:
- Workspace: your .hrline directory holding the database; config lives in the DB and can be imported from hrline.yml.
- Org: the company that owns departments, employees, and all HR records.
- Approvals: every sensitive change flows through an ordered chain of approvers; each step must be approved in sequence, and a single rejection closes the whole request.
- Leave: employees submit leave requests that reserve balance up front and go through the configured approval chain.
- Attendance: daily check-in/check-out plus an absentee sweep for employees with no record and no approved leave.
- RBAC: roles from config map to permissions; grant roles to employees, issue API keys for automation.
- Event log: diary of changes, view with 'hrl log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("HRLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("org", "", "org id (overrides config default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("org", rootCmd.PersistentFlags().Lookup("org"))
}

func registerCommands() {
	rootCmd.AddCommand(orgCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(departmentCmd())
	rootCmd.AddCommand(employeeCmd())
	rootCmd.AddCommand(approvalCmd())
	rootCmd.AddCommand(leaveCmd())
	rootCmd.AddCommand(attendanceCmd())
	rootCmd.AddCommand(rbacCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func orgCmd() *cobra.Command {
	org := &cobra.Command{Use: "org", Short: "Manage the org"}
	org.AddCommand(orgInitCmd())
	org.AddCommand(orgShowCmd())
	return org
}

func orgInitCmd() *cobra.Command {
	var id, name string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize an org with default config and roles",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--id required")
			}
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg := config.Default(id)
			if name != "" {
				cfg.Org.Name = name
			}
			e := engine.New(conn, cfg)
			o, err := e.InitOrg(cmd.Context(), id, name, viper.GetString("actor-id"))
			if err != nil {
				return err
			}
			return printJSONOrTable(o)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "org id")
	cmd.Flags().StringVar(&name, "name", "", "org name")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func orgShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the org",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.Repo.GetOrg(ctx, e.Config.Org.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect org config",
		Long:  "Config is the rulebook (stored in DB): approval chains per entity type, leave types and allowances, RBAC roles. Import from hrline.yml if desired.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configImportCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
	return cmd
}

func configImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import org config from YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(filePath)
			if err != nil {
				return err
			}
			cfg, err := config.FromYAML(data)
			if err != nil {
				return err
			}
			orgID := cfg.Org.ID
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if orgID == "" {
					orgID = e.Config.Org.ID
				}
				if err := e.Repo.UpsertOrgConfig(ctx, orgID, cfg); err != nil {
					return err
				}
				if err := e.SyncRBAC(ctx, cfg); err != nil {
					return err
				}
				return printJSONOrTable(cfg)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate stored config",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Config.Validate()
			})
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

func departmentCmd() *cobra.Command {
	dep := &cobra.Command{Use: "department", Short: "Manage departments"}
	dep.AddCommand(departmentCreateCmd())
	dep.AddCommand(departmentListCmd())
	dep.AddCommand(departmentGetCmd())
	return dep
}

func departmentGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get department",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.GetDepartment(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	return cmd
}

func departmentCreateCmd() *cobra.Command {
	var name, description string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create department",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.CreateDepartment(ctx, e.Config.Org.ID, name, description, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "department name")
	cmd.Flags().StringVar(&description, "description", "", "description")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func departmentListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List departments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListDepartments(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func employeeCmd() *cobra.Command {
	emp := &cobra.Command{Use: "employee", Short: "Manage employees"}
	emp.AddCommand(employeeCreateCmd())
	emp.AddCommand(employeeListCmd())
	emp.AddCommand(employeeGetCmd())
	emp.AddCommand(employeeUpdateCmd())
	return emp
}

func employeeCreateCmd() *cobra.Command {
	var opts engine.EmployeeCreateOptions
	var roles []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an employee",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Roles = roles
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if opts.OrgID == "" {
					opts.OrgID = e.Config.Org.ID
				}
				emp, err := e.CreateEmployee(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(emp)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "employee id (optional, UUID if omitted)")
	cmd.Flags().StringVar(&opts.DepartmentID, "department", "", "department id")
	cmd.Flags().StringVar(&opts.FirstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&opts.LastName, "last-name", "", "last name")
	cmd.Flags().StringVar(&opts.Email, "email", "", "email address")
	cmd.Flags().StringVar(&opts.Title, "title", "", "job title")
	cmd.Flags().StringVar(&opts.HiredAt, "hired-at", "", "hire date (RFC3339)")
	cmd.Flags().StringArrayVar(&roles, "role", []string{}, "role to assign (repeatable)")
	_ = cmd.MarkFlagRequired("first-name")
	_ = cmd.MarkFlagRequired("last-name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func employeeListCmd() *cobra.Command {
	var f repo.EmployeeFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List employees",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, total, err := e.ListEmployees(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"items": items, "total": total})
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Email", "Title", "Status"})
				for _, emp := range items {
					tw.AppendRow(table.Row{emp.ID, emp.FirstName + " " + emp.LastName, emp.Email, emp.Title, emp.Status})
				}
				tw.Render()
				fmt.Printf("total: %d\n", total)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.DepartmentID, "department", "", "department filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Search, "search", "", "search name or email")
	cmd.Flags().IntVar(&f.Skip, "skip", 0, "rows to skip")
	cmd.Flags().IntVar(&f.Take, "take", 50, "rows to return")
	return cmd
}

func employeeGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get employee",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				emp, err := e.GetEmployee(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(emp)
			})
		},
	}
	return cmd
}

func employeeUpdateCmd() *cobra.Command {
	var department, firstName, lastName, email, title, status string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update employee",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			opts := engine.EmployeeUpdateOptions{ActorID: viper.GetString("actor-id")}
			if cmd.Flags().Changed("department") {
				opts.DepartmentID = &department
			}
			if cmd.Flags().Changed("first-name") {
				opts.FirstName = &firstName
			}
			if cmd.Flags().Changed("last-name") {
				opts.LastName = &lastName
			}
			if cmd.Flags().Changed("email") {
				opts.Email = &email
			}
			if cmd.Flags().Changed("title") {
				opts.Title = &title
			}
			if cmd.Flags().Changed("status") {
				opts.Status = &status
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				emp, err := e.UpdateEmployee(ctx, id, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(emp)
			})
		},
	}
	cmd.Flags().StringVar(&department, "department", "", "department id (empty clears)")
	cmd.Flags().StringVar(&firstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&lastName, "last-name", "", "last name")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&title, "title", "", "job title")
	cmd.Flags().StringVar(&status, "status", "", "status (active, on_leave, terminated)")
	return cmd
}

func approvalCmd() *cobra.Command {
	apr := &cobra.Command{
		Use:   "approval",
		Short: "Manage approval chains",
		Long:  "Approvals are ordered chains of sign-offs. Step 1 must decide before step 2 is asked, one rejection closes the whole request, and a finished record never reopens.",
	}
	apr.AddCommand(approvalCreateCmd())
	apr.AddCommand(approvalListCmd())
	apr.AddCommand(approvalGetCmd())
	apr.AddCommand(approvalApproveCmd())
	apr.AddCommand(approvalRejectCmd())
	apr.AddCommand(approvalPendingCmd())
	apr.AddCommand(approvalHistoryCmd())
	return apr
}

func approvalCreateCmd() *cobra.Command {
	var opts engine.ApprovalCreateOptions
	var approvers []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an approval chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ApproverIDs = approvers
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.CreateApproval(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "approval id (optional, UUID if omitted)")
	cmd.Flags().StringVar(&opts.EntityType, "entity-type", "", "entity type (e.g. leave_request)")
	cmd.Flags().StringVar(&opts.EntityID, "entity-id", "", "entity id")
	cmd.Flags().StringVar(&opts.RequesterID, "requester", "", "requesting employee id")
	cmd.Flags().StringArrayVar(&approvers, "approver", []string{}, "approver employee id, in chain order (repeatable)")
	cmd.Flags().StringVar(&opts.Comments, "comments", "", "comments")
	cmd.Flags().BoolVar(&opts.Replace, "replace", false, "replace a previously rejected record for the same entity")
	_ = cmd.MarkFlagRequired("entity-type")
	_ = cmd.MarkFlagRequired("entity-id")
	_ = cmd.MarkFlagRequired("requester")
	return cmd
}

func approvalListCmd() *cobra.Command {
	var f repo.ApprovalFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List approvals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, total, err := e.ListApprovals(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"items": items, "total": total})
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Entity", "Requester", "Step", "Status"})
				for _, a := range items {
					tw.AppendRow(table.Row{a.ID, a.EntityType + "/" + a.EntityID, a.RequesterID, fmt.Sprintf("%d/%d", a.CurrentStep, a.TotalSteps), a.Status})
				}
				tw.Render()
				fmt.Printf("total: %d\n", total)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.RequesterID, "requester", "", "requester filter")
	cmd.Flags().StringVar(&f.ApproverID, "approver", "", "approver filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.EntityType, "entity-type", "", "entity type filter")
	cmd.Flags().IntVar(&f.Skip, "skip", 0, "rows to skip")
	cmd.Flags().IntVar(&f.Take, "take", 50, "rows to return")
	return cmd
}

func approvalGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get approval with steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.GetApproval(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func approvalApproveCmd() *cobra.Command {
	var comments string
	cmd := &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve the current step as the acting employee",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.ApproveStep(ctx, id, viper.GetString("actor-id"), comments)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&comments, "comments", "", "comments")
	return cmd
}

func approvalRejectCmd() *cobra.Command {
	var comments string
	cmd := &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject the approval as the acting employee",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.RejectApproval(ctx, id, viper.GetString("actor-id"), comments)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&comments, "comments", "", "comments")
	return cmd
}

func approvalPendingCmd() *cobra.Command {
	var employeeID string
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List approvals waiting on an employee right now",
		RunE: func(cmd *cobra.Command, args []string) error {
			if employeeID == "" {
				employeeID = viper.GetString("actor-id")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.PendingApprovalsForApprover(ctx, employeeID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&employeeID, "employee", "", "employee id (defaults to actor)")
	return cmd
}

func approvalHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <entity-type> <entity-id>",
		Short: "Show the approval record for an entity with all step decisions",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.ApprovalHistory(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func leaveCmd() *cobra.Command {
	l := &cobra.Command{
		Use:   "leave",
		Short: "Manage leave requests",
		Long:  "Leave requests reserve balance on submission, flow through the configured approval chain, and release the days again if rejected.",
	}
	l.AddCommand(leaveSubmitCmd())
	l.AddCommand(leaveListCmd())
	l.AddCommand(leaveGetCmd())
	l.AddCommand(leaveResubmitCmd())
	l.AddCommand(leaveBalancesCmd())
	return l
}

func leaveSubmitCmd() *cobra.Command {
	var opts engine.LeaveSubmitOptions
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a leave request",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			if opts.EmployeeID == "" {
				opts.EmployeeID = opts.ActorID
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				l, a, err := e.SubmitLeaveRequest(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"leave": l, "approval": a})
			})
		},
	}
	cmd.Flags().StringVar(&opts.EmployeeID, "employee", "", "employee id (defaults to actor)")
	cmd.Flags().StringVar(&opts.LeaveType, "type", "", "leave type (annual, sick, unpaid, ...)")
	cmd.Flags().StringVar(&opts.StartDate, "from", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.EndDate, "to", "", "end date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.Reason, "reason", "", "reason")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func leaveListCmd() *cobra.Command {
	var f repo.LeaveFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List leave requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, total, err := e.ListLeaveRequests(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"items": items, "total": total})
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Employee", "Type", "From", "To", "Days", "Status"})
				for _, l := range items {
					tw.AppendRow(table.Row{l.ID, l.EmployeeID, l.LeaveType, l.StartDate, l.EndDate, l.Days, l.Status})
				}
				tw.Render()
				fmt.Printf("total: %d\n", total)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.EmployeeID, "employee", "", "employee filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.LeaveType, "type", "", "leave type filter")
	cmd.Flags().IntVar(&f.Skip, "skip", 0, "rows to skip")
	cmd.Flags().IntVar(&f.Take, "take", 50, "rows to return")
	return cmd
}

func leaveGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get leave request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				l, err := e.GetLeaveRequest(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(l)
			})
		},
	}
	return cmd
}

func leaveResubmitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resubmit <id>",
		Short: "Resubmit a rejected leave request through a fresh chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				l, a, err := e.ResubmitLeaveRequest(ctx, id, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"leave": l, "approval": a})
			})
		},
	}
	return cmd
}

func leaveBalancesCmd() *cobra.Command {
	var employeeID string
	var year int
	cmd := &cobra.Command{
		Use:   "balances",
		Short: "Show leave balances for an employee",
		RunE: func(cmd *cobra.Command, args []string) error {
			if employeeID == "" {
				employeeID = viper.GetString("actor-id")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.LeaveBalances(ctx, employeeID, year)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&employeeID, "employee", "", "employee id (defaults to actor)")
	cmd.Flags().IntVar(&year, "year", 0, "year (defaults to current)")
	return cmd
}

func attendanceCmd() *cobra.Command {
	att := &cobra.Command{Use: "attendance", Short: "Track attendance"}
	att.AddCommand(attendanceCheckInCmd())
	att.AddCommand(attendanceCheckOutCmd())
	att.AddCommand(attendanceListCmd())
	att.AddCommand(attendanceMarkAbsentCmd())
	return att
}

func attendanceCheckInCmd() *cobra.Command {
	var employeeID string
	cmd := &cobra.Command{
		Use:   "checkin",
		Short: "Check in for today",
		RunE: func(cmd *cobra.Command, args []string) error {
			if employeeID == "" {
				employeeID = viper.GetString("actor-id")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.CheckIn(ctx, employeeID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&employeeID, "employee", "", "employee id (defaults to actor)")
	return cmd
}

func attendanceCheckOutCmd() *cobra.Command {
	var employeeID string
	cmd := &cobra.Command{
		Use:   "checkout",
		Short: "Check out for today",
		RunE: func(cmd *cobra.Command, args []string) error {
			if employeeID == "" {
				employeeID = viper.GetString("actor-id")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.CheckOut(ctx, employeeID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&employeeID, "employee", "", "employee id (defaults to actor)")
	return cmd
}

func attendanceListCmd() *cobra.Command {
	var f repo.AttendanceFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List attendance records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListAttendance(ctx, f)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&f.EmployeeID, "employee", "", "employee filter")
	cmd.Flags().StringVar(&f.From, "from", "", "start day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.To, "to", "", "end day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	return cmd
}

func attendanceMarkAbsentCmd() *cobra.Command {
	var day string
	cmd := &cobra.Command{
		Use:   "mark-absent",
		Short: "Mark absent every active employee with no record and no approved leave",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				marked, err := e.MarkAbsentees(ctx, day, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"marked": marked})
			})
		},
	}
	cmd.Flags().StringVar(&day, "day", "", "day (YYYY-MM-DD, defaults to today)")
	return cmd
}

func rbacCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rbac",
		Short: "RBAC management",
	}
	cmd.AddCommand(rbacWhoamiCmd())
	cmd.AddCommand(rbacGrantCmd())
	cmd.AddCommand(rbacRevokeCmd())
	cmd.AddCommand(rbacSyncCmd())
	return cmd
}

func rbacWhoamiCmd() *cobra.Command {
	var employeeID string
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show roles and permissions for an employee",
		RunE: func(cmd *cobra.Command, args []string) error {
			if employeeID == "" {
				employeeID = viper.GetString("actor-id")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				who, err := e.WhoAmI(ctx, employeeID)
				if err != nil {
					return err
				}
				return printJSONOrTable(who)
			})
		},
	}
	cmd.Flags().StringVar(&employeeID, "employee", "", "employee id (defaults to actor)")
	return cmd
}

func rbacGrantCmd() *cobra.Command {
	var target, role string
	cmd := &cobra.Command{
		Use:   "grant-role",
		Short: "Grant role to employee",
		RunE: func(cmd *cobra.Command, args []string) error {
			if target == "" || role == "" {
				return fmt.Errorf("--employee and --role required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.GrantRole(ctx, target, role, viper.GetString("actor-id"))
			})
		},
	}
	cmd.Flags().StringVar(&target, "employee", "", "employee id")
	cmd.Flags().StringVar(&role, "role", "", "role id")
	return cmd
}

func rbacRevokeCmd() *cobra.Command {
	var target, role string
	cmd := &cobra.Command{
		Use:   "revoke-role",
		Short: "Revoke role from employee",
		RunE: func(cmd *cobra.Command, args []string) error {
			if target == "" || role == "" {
				return fmt.Errorf("--employee and --role required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.RevokeRole(ctx, target, role, viper.GetString("actor-id"))
			})
		},
	}
	cmd.Flags().StringVar(&target, "employee", "", "employee id")
	cmd.Flags().StringVar(&role, "role", "", "role id")
	return cmd
}

func rbacSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync roles and permissions from config into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.SyncRBAC(ctx, e.Config); err != nil {
					return err
				}
				if !viper.GetBool("json") {
					fmt.Println("rbac synced")
				}
				return nil
			})
		},
	}
	return cmd
}

func apikeyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	cmd.AddCommand(apikeyCreateCmd())
	cmd.AddCommand(apikeyListCmd())
	cmd.AddCommand(apikeyDeleteCmd())
	return cmd
}

func apikeyCreateCmd() *cobra.Command {
	var employeeID, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (plaintext shown once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if employeeID == "" {
				employeeID = viper.GetString("actor-id")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				key, plaintext, err := e.CreateAPIKey(ctx, employeeID, name, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"id":          key.ID,
					"employee_id": key.EmployeeID,
					"name":        key.Name,
					"key":         plaintext,
					"created_at":  key.CreatedAt,
				})
			})
		},
	}
	cmd.Flags().StringVar(&employeeID, "employee", "", "employee id (defaults to actor)")
	cmd.Flags().StringVar(&name, "name", "", "key name")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var employeeID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAPIKeys(ctx, employeeID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&employeeID, "employee", "", "employee filter")
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: approvals, leave, attendance, role grants, and more.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowLegacyActor bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			_, cfg, err := app.ResolveOrgAndConfig(cmd.Context(), workspace, viper.GetString("org"), r)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			if err := e.SyncRBAC(cmd.Context(), cfg); err != nil {
				return err
			}
			authCfg := server.AuthConfig{
				JWTSecret:              os.Getenv("HRLINE_JWT_SECRET"),
				AllowLegacyActorHeader: allowLegacyActor,
			}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("HRLINE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving HRLine API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&allowLegacyActor, "allow-legacy-actor", false, "accept X-Actor-Id header without auth (dev only)")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	_, cfg, err := app.ResolveOrgAndConfig(ctx, workspace, viper.GetString("org"), r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	return fn(ctx, r)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
