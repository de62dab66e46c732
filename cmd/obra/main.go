package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"obraline/internal/app"
	"obraline/internal/config"
	"obraline/internal/db"
	"obraline/internal/domain"
	"obraline/internal/engine"
	"obraline/internal/evidence"
	"obraline/internal/migrate"
	"obraline/internal/repo"
	"obraline/internal/server"
	"obraline/internal/weather"
)

var rootCmd = &cobra.Command{
	Use:   "obra",
	Short: "Obraline CLI",
	Long: `Obraline runs field-service teams on construction projects.
- Workspace: the .obraline directory holding the database; obraline.yml holds settings.
- Projects: each obra with its dates, members and inventory; finalizing freezes it read-only.
- Roles: Gerente runs the project, Supervisor coordinates, Empleado executes assigned tasks.
- Tasks: dated work items; creating one consumes material stock, completing one needs a comment and photo evidence.
- Notifications: pending invitations, open assignments and due-date changes, via 'obra notification list'.
- Weather: 'obra weather' says whether conditions allow outdoor work at the site.`,
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
	viper.SetEnvPrefix("OBRALINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor", "", "acting user email")
	rootCmd.PersistentFlags().String("project", "", "project id")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor", rootCmd.PersistentFlags().Lookup("actor"))
	_ = viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))
}

func registerCommands() {
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(memberCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(materialCmd())
	rootCmd.AddCommand(notificationCmd())
	rootCmd.AddCommand(weatherCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show workspace status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				version, err := migrate.Version(r.DB)
				if err != nil {
					return err
				}
				workspace := viper.GetString("workspace")
				return printJSONOrTable(map[string]any{
					"workspace":      workspace,
					"database":       db.Path(workspace),
					"schema_version": version,
				})
			})
		},
	}
	return cmd
}

// --- user ---

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage users"}
	user.AddCommand(userSignupCmd())
	user.AddCommand(userLoginCmd())
	user.AddCommand(userPasswdCmd())
	user.AddCommand(userUpdateCmd())
	user.AddCommand(userAPIKeyCmd())
	return user
}

func userUpdateCmd() *cobra.Command {
	var username, image string
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update the acting user's profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actorID, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				u, err := e.UpdateProfile(ctx, actorID, username, image)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "display name")
	cmd.Flags().StringVar(&image, "profile-image", "", "profile image URL")
	return cmd
}

func userSignupCmd() *cobra.Command {
	var email, username, password string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Register a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.SignUp(ctx, email, username, password)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email")
	cmd.Flags().StringVar(&username, "username", "", "display name")
	cmd.Flags().StringVar(&password, "password", "", "password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func userLoginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Exchange credentials for a bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				token, u, err := e.SignIn(ctx, email, password)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"token": token, "user": u})
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email")
	cmd.Flags().StringVar(&password, "password", "", "password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func userPasswdCmd() *cobra.Command {
	var current, next string
	cmd := &cobra.Command{
		Use:   "passwd",
		Short: "Change the acting user's password",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actorID, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				return e.ChangePassword(ctx, actorID, current, next)
			})
		},
	}
	cmd.Flags().StringVar(&current, "current", "", "current password")
	cmd.Flags().StringVar(&next, "new", "", "new password")
	_ = cmd.MarkFlagRequired("current")
	_ = cmd.MarkFlagRequired("new")
	return cmd
}

func userAPIKeyCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Issue an API key for the acting user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actorID, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				raw, key, err := e.CreateAPIKey(ctx, actorID, name)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"id": key.ID, "key": raw, "name": key.Name})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

// --- project ---

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectFinalizeCmd())
	prj.AddCommand(projectDeleteCmd())
	prj.AddCommand(projectPermissionsCmd())
	prj.AddCommand(projectStatsCmd())
	prj.AddCommand(projectConfigCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var opts engine.ProjectCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actorID, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				opts.ActorID = actorID
				p, err := e.CreateProject(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "project name")
	cmd.Flags().StringVar(&opts.Client, "client", "", "client name")
	cmd.Flags().StringVar(&opts.Location, "location", "", "site location")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.StartDate, "start-date", "", "start date (YYYY-MM-DD or DD-MM-YYYY)")
	cmd.Flags().StringVar(&opts.EndDate, "end-date", "", "end date (YYYY-MM-DD or DD-MM-YYYY)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func projectListCmd() *cobra.Command {
	var state string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the acting user's projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actorID, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				projects, err := e.ListProjects(ctx, actorID, domain.ProjectState(state))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(projects)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "State", "Start", "End"})
				for _, p := range projects {
					tw.AppendRow(table.Row{p.ID, p.Name, p.State, p.StartDate, p.EndDate})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "state filter (Activo, Pendiente, Finalizado)")
	return cmd
}

func projectShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actorID, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				p, err := e.GetProject(ctx, args[0], actorID)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func projectFinalizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "finalize <id>",
		Short: "Finalize a project (irreversible)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actorID, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				p, err := e.FinalizeProject(ctx, args[0], actorID)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actorID, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				return e.DeleteProject(ctx, args[0], actorID)
			})
		},
	}
	return cmd
}

func projectPermissionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "permissions <id>",
		Short: "Show the acting user's capabilities on a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actorID, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				snap, err := e.Permissions(ctx, args[0], actorID)
				if err != nil {
					return err
				}
				return printJSONOrTable(snap)
			})
		},
	}
	return cmd
}

func projectStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats <id>",
		Short: "Task completion summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actorID, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				list, err := e.ListTasks(ctx, engine.TaskListOptions{ProjectID: args[0], UserID: actorID})
				if err != nil {
					return err
				}
				return printJSONOrTable(list.Statistics)
			})
		},
	}
	return cmd
}

func projectConfigCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage workspace config"}
	cfg.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default obraline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			projectID := viper.GetString("project")
			if projectID == "" {
				projectID = filepath.Base(mustAbs(workspace))
			}
			return os.WriteFile(path, []byte(config.GenerateDefault(projectID)), 0o644)
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				c, err := app.ResolveConfig(ctx, viper.GetString("workspace"), viper.GetString("project"), r)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	})
	return cfg
}

// --- member ---

func memberCmd() *cobra.Command {
	mem := &cobra.Command{Use: "member", Short: "Manage project members"}
	mem.AddCommand(memberInviteCmd())
	mem.AddCommand(memberListCmd())
	mem.AddCommand(memberAcceptCmd())
	mem.AddCommand(memberRejectCmd())
	mem.AddCommand(memberRemoveCmd())
	return mem
}

func memberInviteCmd() *cobra.Command {
	var email, role string
	cmd := &cobra.Command{
		Use:   "invite <project-id>",
		Short: "Invite a user by email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actorID, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				m, err := e.Invite(ctx, args[0], email, domain.Role(role), actorID)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "invitee email")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleEmpleado), "role (Gerente, Supervisor, Empleado)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func memberListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <project-id>",
		Short: "List accepted members",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actorID, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				members, err := e.ListMembers(ctx, args[0], actorID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(members)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Email", "Username", "Role"})
				for _, m := range members {
					tw.AppendRow(table.Row{m.ID, m.Email, m.Username, m.Role})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func memberAcceptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accept <membership-id>",
		Short: "Accept a pending invitation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actorID, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				m, err := e.AcceptInvitation(ctx, args[0], actorID)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	return cmd
}

func memberRejectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reject <membership-id>",
		Short: "Reject a pending invitation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actorID, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				return e.RejectInvitation(ctx, args[0], actorID)
			})
		},
	}
	return cmd
}

func memberRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <project-id> <membership-id>",
		Short: "Remove a member",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actorID, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				return e.RemoveMember(ctx, args[0], args[1], actorID)
			})
		},
	}
	return cmd
}

// --- task ---

func taskCmd() *cobra.Command {
	tsk := &cobra.Command{Use: "task", Short: "Manage tasks"}
	tsk.AddCommand(taskCreateCmd())
	tsk.AddCommand(taskListCmd())
	tsk.AddCommand(taskGetCmd())
	tsk.AddCommand(taskStartCmd())
	tsk.AddCommand(taskCompleteCmd())
	tsk.AddCommand(taskDueDateCmd())
	return tsk
}

func taskCreateCmd() *cobra.Command {
	var opts engine.TaskCreateOptions
	var priority string
	var materials []string
	cmd := &cobra.Command{
		Use:   "create <project-id>",
		Short: "Create a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actorID, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				opts.ProjectID = args[0]
				opts.ActorID = actorID
				opts.Priority = domain.Priority(priority)
				opts.Materials, err = parseMaterialFlags(materials)
				if err != nil {
					return err
				}
				t, err := e.CreateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.AssigneeID, "assignee-id", "", "assignee user id")
	cmd.Flags().StringVar(&priority, "priority", "", "priority (alta, media, baja)")
	cmd.Flags().StringVar(&opts.DueDate, "due-date", "", "due date (YYYY-MM-DD or DD-MM-YYYY)")
	cmd.Flags().StringArrayVar(&materials, "material", []string{}, "material allocation id:quantity (repeatable)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("assignee-id")
	_ = cmd.MarkFlagRequired("due-date")
	return cmd
}

// parseMaterialFlags turns id:quantity pairs into allocation requests.
func parseMaterialFlags(raw []string) ([]engine.MaterialRequest, error) {
	var out []engine.MaterialRequest
	for _, item := range raw {
		parts := strings.SplitN(item, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid --material %q; expected id:quantity", item)
		}
		qty, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid --material quantity %q", parts[1])
		}
		out = append(out, engine.MaterialRequest{MaterialID: parts[0], Quantity: qty})
	}
	return out, nil
}

func taskListCmd() *cobra.Command {
	var priority, assignee string
	cmd := &cobra.Command{
		Use:   "list <project-id>",
		Short: "List tasks classified by due date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actorID, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				list, err := e.ListTasks(ctx, engine.TaskListOptions{
					ProjectID:  args[0],
					Priority:   domain.Priority(priority),
					AssigneeID: assignee,
					UserID:     actorID,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(list)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Bucket", "ID", "Title", "Status", "Priority", "Due", "Assignee"})
				appendBucket := func(name string, tasks []domain.Task) {
					for _, t := range tasks {
						tw.AppendRow(table.Row{name, t.ID, t.Title, t.Status, t.Priority, t.DueDate, t.AssigneeName})
					}
				}
				appendBucket("vencida", list.Buckets.Overdue)
				appendBucket("activa", list.Buckets.Active)
				appendBucket("completada", list.Buckets.Completed)
				tw.Render()
				s := list.Statistics
				fmt.Printf("total %d, completadas %d, en progreso %d, vencidas %d\n", s.Total, s.Completadas, s.EnProgreso, s.Vencidas)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&priority, "priority", "", "priority filter")
	cmd.Flags().StringVar(&assignee, "assignee-id", "", "assignee filter")
	return cmd
}

func taskGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get a task with materials and date history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actorID, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				t, err := e.GetTask(ctx, args[0], actorID)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start <id>",
		Short: "Move a pending task to in progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actorID, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				t, err := e.StartTask(ctx, args[0], actorID)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskCompleteCmd() *cobra.Command {
	var comment, evidenceURL, evidenceFile string
	cmd := &cobra.Command{
		Use:   "complete <id>",
		Short: "Complete a task with comment and evidence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actorID, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				if evidenceFile != "" {
					evidenceURL, err = uploadEvidence(ctx, e, evidenceFile)
					if err != nil {
						return err
					}
				}
				t, err := e.CompleteTask(ctx, args[0], actorID, comment, evidenceURL)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&comment, "comment", "", "completion comment")
	cmd.Flags().StringVar(&evidenceURL, "evidence-url", "", "evidence photo URL")
	cmd.Flags().StringVar(&evidenceFile, "evidence-file", "", "local photo to upload as evidence")
	_ = cmd.MarkFlagRequired("comment")
	return cmd
}

func uploadEvidence(ctx context.Context, e engine.Engine, path string) (string, error) {
	if e.Config == nil {
		return "", fmt.Errorf("upload not configured; set upload.url in obraline.yml")
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	up := evidence.Uploader{
		URL:    e.Config.Upload.URL,
		Preset: e.Config.Upload.Preset,
		Folder: e.Config.Upload.Folder,
	}
	return up.Upload(ctx, filepath.Base(path), f)
}

func taskDueDateCmd() *cobra.Command {
	var due, reason string
	cmd := &cobra.Command{
		Use:   "due-date <id>",
		Short: "Reschedule a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actorID, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				t, err := e.ChangeDueDate(ctx, args[0], actorID, due, reason)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&due, "date", "", "new due date")
	cmd.Flags().StringVar(&reason, "reason", "", "reason for the change")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

// --- material ---

func materialCmd() *cobra.Command {
	mat := &cobra.Command{Use: "material", Short: "Manage material inventory"}
	mat.AddCommand(materialCreateCmd())
	mat.AddCommand(materialListCmd())
	mat.AddCommand(materialStockCmd())
	return mat
}

func materialCreateCmd() *cobra.Command {
	var opts engine.MaterialCreateOptions
	cmd := &cobra.Command{
		Use:   "create <project-id>",
		Short: "Register a material",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actorID, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				opts.ProjectID = args[0]
				opts.ActorID = actorID
				m, err := e.CreateMaterial(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "material name")
	cmd.Flags().StringVar(&opts.Unit, "unit", "", "unit of measure")
	cmd.Flags().IntVar(&opts.Quantity, "quantity", 0, "initial stock")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func materialListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <project-id>",
		Short: "List material inventory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actorID, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				materials, err := e.ListMaterials(ctx, args[0], actorID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(materials)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Unit", "Stock"})
				for _, m := range materials {
					tw.AppendRow(table.Row{m.ID, m.Name, m.Unit, m.Quantity})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func materialStockCmd() *cobra.Command {
	var quantity int
	cmd := &cobra.Command{
		Use:   "stock <material-id>",
		Short: "Set material stock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actorID, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				m, err := e.SetMaterialQuantity(ctx, args[0], quantity, actorID)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().IntVar(&quantity, "quantity", 0, "new stock quantity")
	_ = cmd.MarkFlagRequired("quantity")
	return cmd
}

// --- notification ---

func notificationCmd() *cobra.Command {
	not := &cobra.Command{Use: "notification", Short: "Notification feed"}
	not.AddCommand(notificationListCmd())
	not.AddCommand(notificationReadCmd())
	return not
}

func notificationListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Pending invitations, open tasks and unread notices",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actorID, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				feed, err := e.Feed(ctx, actorID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(feed)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Kind", "ID", "Project", "Message", "When"})
				for _, item := range feed {
					tw.AppendRow(table.Row{item.Kind, item.ID, item.ProjectName, item.Message, item.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func notificationReadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read <id>",
		Short: "Mark a notification as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actorID, err := currentActor(ctx, e)
				if err != nil {
					return err
				}
				n, err := e.MarkNotificationRead(ctx, args[0], actorID)
				if err != nil {
					return err
				}
				return printJSONOrTable(n)
			})
		},
	}
	return cmd
}

// --- weather ---

func weatherCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "weather",
		Short: "Site weather and work advisory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if e.Config == nil || e.Config.Weather.APIKey == "" {
					return fmt.Errorf("weather not configured; set weather.api_key in obraline.yml")
				}
				wcfg := e.Config.Weather
				client := weather.Client{BaseURL: wcfg.BaseURL, APIKey: wcfg.APIKey, Lat: wcfg.Lat, Lon: wcfg.Lon}
				obs, err := client.Current(ctx)
				if err != nil {
					return err
				}
				favorable, reasons := weather.Favorable(obs)
				return printJSONOrTable(map[string]any{
					"observation": obs,
					"favorable":   favorable,
					"reasons":     reasons,
				})
			})
		},
	}
	return cmd
}

// --- log ---

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Event log"}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType string
	cmd := &cobra.Command{
		Use:   "tail <project-id>",
		Short: "Tail project events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, n, args[0], evtType)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	return cmd
}

// --- serve ---

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			cfg, err := app.ResolveConfig(cmd.Context(), workspace, viper.GetString("project"), r)
			if err != nil {
				return err
			}
			if secret := os.Getenv("OBRALINE_JWT_SECRET"); secret != "" {
				cfg.Auth.JWTSecret = secret
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("a JWT secret is required; set auth.jwt_secret or OBRALINE_JWT_SECRET")
			}
			e := engine.New(conn, cfg)
			handler := server.New(server.Config{Engine: e, BasePath: basePath, Auth: server.AuthConfig{JWTSecret: cfg.Auth.JWTSecret}})
			server.StartWebhookDispatcher(e)
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Obraline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at %s/docs)\n", addr, basePath, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	return withRepo(ctx, func(ctx context.Context, r repo.Repo) error {
		cfg, err := app.ResolveConfig(ctx, viper.GetString("workspace"), viper.GetString("project"), r)
		if err != nil {
			return err
		}
		if secret := os.Getenv("OBRALINE_JWT_SECRET"); secret != "" && cfg.Auth.JWTSecret == "" {
			cfg.Auth.JWTSecret = secret
		}
		return fn(ctx, engine.New(r.DB, cfg))
	})
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
	return fn(ctx, repo.Repo{DB: conn})
}

func currentActor(ctx context.Context, e engine.Engine) (string, error) {
	return app.ResolveActor(ctx, e.Repo, viper.GetString("actor"))
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

func mustAbs(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
