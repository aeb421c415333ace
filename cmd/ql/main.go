package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"questlog/internal/app"
	"questlog/internal/config"
	"questlog/internal/db"
	"questlog/internal/domain"
	"questlog/internal/engine"
	"questlog/internal/migrate"
	"questlog/internal/repo"
	"questlog/internal/report"
	"questlog/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "ql",
	Short: "Questlog CLI",
	Long: `Questlog runs the report and quest lifecycle of a mentorship workspace.
- Workspace: the .questlog directory with the database; config lives in the DB and is imported explicitly.
- Daily reports: submitted each morning (3-5 goals), completed once in the evening with per-goal outcomes.
- Weekly reports: one reflection per ISO week, accepted only inside the configured window (Wednesday/Thursday by default).
- Quests: tasks assigned to members; owners move them forward only (todo -> in-progress -> completed), mentors and admins may move them anywhere.
- Comments: append-only discussion threads on an assignment, kept even across revoke and reassign.
- Dashboard: weekly rollup with streaks, mood delta, time variance, and the struggling flag.
- Event log: diary of everything, view with 'ql log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		dir := viper.GetString("dir")
		if _, err := db.EnsureWorkspace(dir); err != nil {
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
	viper.SetEnvPrefix("QUESTLOG")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("dir", "d", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().StringP("workspace", "w", "", "workspace id (overrides the single-workspace default)")
	_ = viper.BindPFlag("dir", rootCmd.PersistentFlags().Lookup("dir"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
}

func registerCommands() {
	rootCmd.AddCommand(workspaceCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(memberCmd())
	rootCmd.AddCommand(inviteCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(questCmd())
	rootCmd.AddCommand(dashboardCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(versionCmd())
}

func workspaceCmd() *cobra.Command {
	ws := &cobra.Command{Use: "workspace", Short: "Manage workspaces"}
	ws.AddCommand(workspaceInitCmd())
	ws.AddCommand(workspaceListCmd())
	ws.AddCommand(workspaceShowCmd())
	return ws
}

func workspaceInitCmd() *cobra.Command {
	var id, name, desc string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a workspace with the caller as founding admin",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--id required")
			}
			dir := viper.GetString("dir")
			conn, err := db.Open(db.Config{Workspace: dir})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg := config.Default(id)
			e := engine.New(conn, cfg)
			w, err := e.InitWorkspace(cmd.Context(), id, name, desc, viper.GetString("actor-id"))
			if err != nil {
				return err
			}
			return printJSONOrTable(w)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "workspace id")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func workspaceListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workspaces",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListWorkspaces(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func workspaceShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the active workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.Repo.GetWorkspace(ctx, e.Config.Workspace.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "Config is the rulebook stored in the DB: goal counts, mood bounds, the weekly window, quest categories, roles, and webhooks. Import from questlog.yml if desired.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	cfg.AddCommand(configImportCmd())
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

func configImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import workspace config from YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(filePath)
			if err != nil {
				return err
			}
			cfg, err := config.FromYAML(data)
			if err != nil {
				return err
			}
			workspaceID := cfg.Workspace.ID
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if workspaceID == "" {
					workspaceID = e.Config.Workspace.ID
				}
				if err := e.Repo.UpsertWorkspaceConfig(ctx, workspaceID, cfg); err != nil {
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

func memberCmd() *cobra.Command {
	m := &cobra.Command{Use: "member", Short: "Manage workspace members"}
	m.AddCommand(memberAddCmd())
	m.AddCommand(memberListCmd())
	return m
}

func memberAddCmd() *cobra.Command {
	var actor, role, position string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a member directly (admin only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if actor == "" {
				return fmt.Errorf("--actor required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.AddMember(ctx, e.Config.Workspace.ID, actor, role, position, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "actor id")
	cmd.Flags().StringVar(&role, "role", "member", "role (member, mentor, admin)")
	cmd.Flags().StringVar(&position, "position", "", "position, e.g. backend")
	return cmd
}

func memberListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListMemberships(ctx, e.Config.Workspace.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Actor", "Role", "Position", "Joined"})
				for _, m := range items {
					tw.AppendRow(table.Row{m.ActorID, m.Role, m.Position, m.JoinedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func inviteCmd() *cobra.Command {
	inv := &cobra.Command{
		Use:   "invite",
		Short: "Manage invitations",
		Long:  "Invitations carry a role and position and expire after the configured TTL. Accepting one creates the membership.",
	}
	inv.AddCommand(inviteCreateCmd())
	inv.AddCommand(inviteAcceptCmd())
	inv.AddCommand(inviteCancelCmd())
	inv.AddCommand(inviteListCmd())
	inv.AddCommand(inviteSweepCmd())
	return inv
}

func inviteCreateCmd() *cobra.Command {
	var email, role, position string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Invite a future member (admin only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" {
				return fmt.Errorf("--email required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				inv, err := e.CreateInvitation(ctx, e.Config.Workspace.ID, email, role, position, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(inv)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "invitee email")
	cmd.Flags().StringVar(&role, "role", "member", "role (member, mentor, admin)")
	cmd.Flags().StringVar(&position, "position", "", "position")
	return cmd
}

func inviteAcceptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accept <invitation-id>",
		Short: "Accept an invitation as the current actor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.AcceptInvitation(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	return cmd
}

func inviteCancelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <invitation-id>",
		Short: "Cancel a pending invitation (admin only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.CancelInvitation(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func inviteListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List invitations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListInvitations(ctx, e.Config.Workspace.ID, status)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter (pending, accepted, cancelled, expired)")
	return cmd
}

func inviteSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Expire pending invitations past their TTL",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				n, err := e.SweepExpiredInvitations(ctx, e.Config.Workspace.ID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"expired": n})
				}
				fmt.Printf("expired %d invitation(s)\n", n)
				return nil
			})
		},
	}
	return cmd
}

func reportCmd() *cobra.Command {
	rep := &cobra.Command{
		Use:   "report",
		Short: "Submit and inspect reports",
		Long:  "Daily reports gate on one-per-day, end-of-day updates gate on the morning report, weekly reports gate on the configured window and one-per-ISO-week.",
	}
	rep.AddCommand(reportDailyCmd())
	rep.AddCommand(reportCompleteCmd())
	rep.AddCommand(reportWeeklyCmd())
	rep.AddCommand(reportStatusCmd())
	rep.AddCommand(reportHistoryCmd())
	return rep
}

func reportDailyCmd() *cobra.Command {
	var wakeUp, routine string
	var mood int
	var goals []string
	var expected []string
	cmd := &cobra.Command{
		Use:   "daily",
		Short: "Submit the morning report",
		RunE: func(cmd *cobra.Command, args []string) error {
			acts, err := parseActivities(expected)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rep, err := e.SubmitDaily(ctx, e.Config.Workspace.ID, report.DailyInput{
					UserID:             viper.GetString("actor-id"),
					WakeUpTime:         wakeUp,
					MorningMood:        mood,
					MorningRoutine:     routine,
					Goals:              goals,
					ExpectedActivities: acts,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(rep)
			})
		},
	}
	cmd.Flags().StringVar(&wakeUp, "wake-up", "", "wake up time HH:MM")
	cmd.Flags().IntVar(&mood, "mood", 0, "morning mood")
	cmd.Flags().StringVar(&routine, "routine", "", "morning routine notes")
	cmd.Flags().StringArrayVar(&goals, "goal", []string{}, "goal description (repeatable)")
	cmd.Flags().StringArrayVar(&expected, "expect", []string{}, "expected activity as category=minutes (repeatable)")
	_ = cmd.MarkFlagRequired("wake-up")
	_ = cmd.MarkFlagRequired("mood")
	return cmd
}

func reportCompleteCmd() *cobra.Command {
	var mood int
	var insights string
	var done []string
	var actual []string
	cmd := &cobra.Command{
		Use:   "complete",
		Short: "Submit the end-of-day update",
		Long:  "Every goal of today's report must be covered: --done <goal-id>[=minutes] marks it completed, --missed <goal-id> marks it incomplete.",
		RunE: func(cmd *cobra.Command, args []string) error {
			missed, err := cmd.Flags().GetStringArray("missed")
			if err != nil {
				return err
			}
			completions, err := parseCompletions(done, missed)
			if err != nil {
				return err
			}
			acts, err := parseActivities(actual)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rep, err := e.SubmitEndOfDay(ctx, e.Config.Workspace.ID, viper.GetString("actor-id"), report.EndOfDayInput{
					EveningMood:      mood,
					Completions:      completions,
					ActualActivities: acts,
					Insights:         insights,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rep)
				}
				rate := report.CompletionRate(rep)
				color.New(color.FgGreen).Printf("day %s completed: %.0f%% of goals\n", rep.Day, rate)
				return printJSONOrTable(rep)
			})
		},
	}
	cmd.Flags().IntVar(&mood, "mood", 0, "evening mood")
	cmd.Flags().StringVar(&insights, "insights", "", "free-form insights")
	cmd.Flags().StringArrayVar(&done, "done", []string{}, "completed goal id, optionally id=minutes (repeatable)")
	cmd.Flags().StringArray("missed", []string{}, "incomplete goal id (repeatable)")
	cmd.Flags().StringArrayVar(&actual, "actual", []string{}, "actual activity as category=minutes (repeatable)")
	_ = cmd.MarkFlagRequired("mood")
	return cmd
}

func reportWeeklyCmd() *cobra.Command {
	var in report.WeeklyInput
	var achieved []string
	cmd := &cobra.Command{
		Use:   "weekly",
		Short: "Submit the weekly reflection",
		RunE: func(cmd *cobra.Command, args []string) error {
			in.UserID = viper.GetString("actor-id")
			in.AchievedGoals = achieved
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rep, err := e.SubmitWeekly(ctx, e.Config.Workspace.ID, in)
				if err != nil {
					return err
				}
				return printJSONOrTable(rep)
			})
		},
	}
	cmd.Flags().IntVar(&in.Mood, "mood", 0, "overall mood for the week")
	cmd.Flags().StringVar(&in.MoodDetails, "mood-details", "", "mood details")
	cmd.Flags().StringVar(&in.Learnings, "learnings", "", "what was learned")
	cmd.Flags().StringVar(&in.Growth, "growth", "", "personal growth notes")
	cmd.Flags().BoolVar(&in.RoutineMaintained, "routine-maintained", false, "morning routine held up")
	cmd.Flags().StringVar(&in.RoutineDetails, "routine-details", "", "routine details")
	cmd.Flags().StringArrayVar(&achieved, "achieved", []string{}, "achieved goal (repeatable)")
	cmd.Flags().BoolVar(&in.GoalsShared, "goals-shared", false, "weekly goals were shared")
	cmd.Flags().BoolVar(&in.FreeTime, "free-time", false, "had free time")
	cmd.Flags().StringVar(&in.FreeTimeDetails, "free-time-details", "", "free time details")
	cmd.Flags().BoolVar(&in.LearningGoalMet, "learning-goal-met", false, "learning goal met")
	cmd.Flags().StringVar(&in.LearningGoalDetails, "learning-goal-details", "", "learning goal details")
	cmd.Flags().BoolVar(&in.MentorInteraction, "mentor-interaction", false, "interacted with mentor")
	cmd.Flags().StringVar(&in.MentorDetails, "mentor-details", "", "mentor interaction details")
	cmd.Flags().BoolVar(&in.SupportInteraction, "support-interaction", false, "interacted with support")
	cmd.Flags().StringVar(&in.SupportDetails, "support-details", "", "support details")
	cmd.Flags().StringVar(&in.AdditionalSupport, "additional-support", "", "support still needed")
	cmd.Flags().StringVar(&in.OpenQuestions, "open-questions", "", "open questions")
	_ = cmd.MarkFlagRequired("mood")
	return cmd
}

func reportStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show today's eligibility for daily, end-of-day, and weekly submissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				userID := viper.GetString("actor-id")
				workspaceID := e.Config.Workspace.ID
				daily, err := e.ResolveDaily(ctx, workspaceID, userID)
				if err != nil {
					return err
				}
				eod, err := e.ResolveEndOfDay(ctx, workspaceID, userID)
				if err != nil {
					return err
				}
				weekly, err := e.ResolveWeekly(ctx, workspaceID, userID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"daily": daily, "end_of_day": eod, "weekly": weekly})
				}
				printDecision("daily", daily.Allowed, string(daily.Reason), "")
				printDecision("end-of-day", eod.Allowed, string(eod.Reason), "")
				next := ""
				if weekly.NextEligible != nil {
					next = weekly.NextEligible.Format("2006-01-02")
				}
				printDecision("weekly", weekly.Allowed, string(weekly.Reason), next)
				return nil
			})
		},
	}
	return cmd
}

func reportHistoryCmd() *cobra.Command {
	var userID, from, to string
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past daily reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				target := userID
				if target == "" {
					target = viper.GetString("actor-id")
				}
				items, err := e.ReportHistory(ctx, e.Config.Workspace.ID, repo.DailyReportFilters{
					UserID:  target,
					FromDay: from,
					ToDay:   to,
					Limit:   limit,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Day", "Goals", "Completed", "Rate", "Mood Delta"})
				for _, rep := range items {
					completed := 0
					for _, g := range rep.Goals {
						if g.Completed {
							completed++
						}
					}
					delta := ""
					if rep.EndOfDayDone() {
						delta = fmt.Sprintf("%+d", report.MoodDelta(rep))
					}
					tw.AppendRow(table.Row{rep.Day, len(rep.Goals), completed, fmt.Sprintf("%.0f%%", report.CompletionRate(rep)), delta})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (defaults to the current actor)")
	cmd.Flags().StringVar(&from, "from", "", "start day YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "end day YYYY-MM-DD")
	cmd.Flags().IntVar(&limit, "n", 30, "max reports")
	return cmd
}

func questCmd() *cobra.Command {
	q := &cobra.Command{
		Use:   "quest",
		Short: "Manage quest tasks and assignments",
		Long:  "Quest tasks are created by mentors or admins, assigned to members, and move todo -> in-progress -> completed. Owners move forward only; oversight roles move anywhere.",
	}
	q.AddCommand(questCreateCmd())
	q.AddCommand(questTasksCmd())
	q.AddCommand(questAssignCmd())
	q.AddCommand(questRevokeCmd())
	q.AddCommand(questListCmd())
	q.AddCommand(questSetStatusCmd())
	q.AddCommand(questCommentCmd())
	return q
}

func questCreateCmd() *cobra.Command {
	var title, category string
	var reward int
	var positions []string
	var global bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a quest task (mentor or admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CreateTask(ctx, engine.TaskCreateOptions{
					WorkspaceID: e.Config.Workspace.ID,
					Title:       title,
					Category:    category,
					Reward:      reward,
					Positions:   positions,
					Global:      global,
					ActorID:     viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&category, "category", "", "category from the config catalog")
	cmd.Flags().IntVar(&reward, "reward", 0, "reward points")
	cmd.Flags().StringArrayVar(&positions, "position", []string{}, "target position (repeatable, empty means all)")
	cmd.Flags().BoolVar(&global, "global", false, "auto-assign to all matching members")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func questTasksCmd() *cobra.Command {
	var global bool
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List quest tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListQuestTasks(ctx, e.Config.Workspace.ID, global)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Category", "Reward", "Global"})
				for _, t := range items {
					tw.AppendRow(table.Row{t.ID, t.Title, t.Category, t.Reward, t.Global})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&global, "global", false, "only global tasks")
	return cmd
}

func questAssignCmd() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "assign <task-id>",
		Short: "Assign a task to a member (mentor or admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if user == "" {
				return fmt.Errorf("--user required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.AssignTask(ctx, e.Config.Workspace.ID, user, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "member to assign")
	return cmd
}

func questRevokeCmd() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "revoke <task-id>",
		Short: "Revoke an assignment, keeping its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if user == "" {
				return fmt.Errorf("--user required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.RevokeAssignment(ctx, e.Config.Workspace.ID, user, args[0], viper.GetString("actor-id"))
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "member whose assignment to revoke")
	return cmd
}

func questListCmd() *cobra.Command {
	var user string
	var includeRevoked bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a member's quest assignments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				target := user
				if target == "" {
					target = viper.GetString("actor-id")
				}
				items, err := e.UserQuests(ctx, e.Config.Workspace.ID, target, includeRevoked)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Task", "Status", "Comments", "Assigned", "Revoked"})
				for _, a := range items {
					revoked := ""
					if a.RevokedAt != nil {
						revoked = *a.RevokedAt
					}
					tw.AppendRow(table.Row{a.TaskID, a.Status, len(a.Comments), a.AssignedAt, revoked})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id (defaults to the current actor)")
	cmd.Flags().BoolVar(&includeRevoked, "include-revoked", false, "include revoked assignments")
	return cmd
}

func questSetStatusCmd() *cobra.Command {
	var user, status string
	cmd := &cobra.Command{
		Use:   "set-status <task-id>",
		Short: "Move an assignment to a new status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				target := user
				if target == "" {
					target = viper.GetString("actor-id")
				}
				a, err := e.ChangeTaskStatus(ctx, e.Config.Workspace.ID, target, args[0], status, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "assignment owner (defaults to the current actor)")
	cmd.Flags().StringVar(&status, "status", "", "todo, in-progress, or completed")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func questCommentCmd() *cobra.Command {
	var user, text string
	cmd := &cobra.Command{
		Use:   "comment <task-id>",
		Short: "Append a comment to an assignment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				target := user
				if target == "" {
					target = viper.GetString("actor-id")
				}
				c, err := e.AddTaskComment(ctx, e.Config.Workspace.ID, target, args[0], text, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "assignment owner (defaults to the current actor)")
	cmd.Flags().StringVar(&text, "text", "", "comment text")
	_ = cmd.MarkFlagRequired("text")
	return cmd
}

func dashboardCmd() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show the weekly progress dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				target := user
				if target == "" {
					target = viper.GetString("actor-id")
				}
				d, err := e.UserDashboard(ctx, e.Config.Workspace.ID, target)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(d)
				}
				r := d.Rollup
				fmt.Printf("User: %s   Week: %s\n", d.UserID, r.ISOWeek)
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendRow(table.Row{"Reports", r.ReportCount})
				tw.AppendRow(table.Row{"Streak days", r.StreakDays})
				tw.AppendRow(table.Row{"Goals", fmt.Sprintf("%d/%d (%.0f%%)", r.CompletedGoals, r.TotalGoals, r.CompletionRate)})
				tw.AppendRow(table.Row{"Minutes", fmt.Sprintf("%d planned / %d actual (%.0f%%)", r.PlannedMinutes, r.ActualMinutes, r.EfficiencyPercentage)})
				tw.AppendRow(table.Row{"Avg mood delta", fmt.Sprintf("%+.1f", r.AverageMoodDelta)})
				tw.AppendRow(table.Row{"Quests", fmt.Sprintf("%d todo / %d in progress / %d completed", r.Tasks.Todo, r.Tasks.InProgress, r.Tasks.Completed)})
				tw.Render()
				if d.Struggling {
					color.New(color.FgRed, color.Bold).Println("struggling: quest progress is below the workspace threshold")
				} else {
					color.New(color.FgGreen).Println("on track")
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id (defaults to the current actor)")
	return cmd
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: reports, quest moves, invitations, and more.",
	}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, e.Config.Workspace.ID, evtType, entityKind, entityID)
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

func apikeyCmd() *cobra.Command {
	ak := &cobra.Command{Use: "apikey", Short: "Manage API keys for the HTTP server"}
	ak.AddCommand(apikeyCreateCmd())
	ak.AddCommand(apikeyListCmd())
	ak.AddCommand(apikeyDeleteCmd())
	return ak
}

func apikeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Mint an API key for the current actor",
		Long:  "The plaintext key is printed once; only its hash is stored.",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := make([]byte, 32)
			if _, err := rand.Read(raw); err != nil {
				return err
			}
			plain := "qlk_" + hex.EncodeToString(raw)
			key := domain.APIKey{
				ID:        uuid.NewString(),
				ActorID:   viper.GetString("actor-id"),
				Name:      name,
				KeyHash:   repo.HashAPIKey(plain),
				CreatedAt: time.Now().UTC().Format(time.RFC3339),
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if err := r.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"id": key.ID, "key": plain})
				}
				fmt.Printf("id:  %s\nkey: %s\n", key.ID, plain)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys for the current actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAPIKeys(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
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

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowLegacyHeader, devLogin bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := viper.GetString("dir")
			conn, err := db.Open(db.Config{Workspace: dir})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			_, cfg, err := app.ResolveWorkspaceAndConfig(cmd.Context(), viper.GetString("workspace"), viper.GetString("actor-id"), r)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{
				JWTSecret:              os.Getenv("QUESTLOG_JWT_SECRET"),
				AllowLegacyActorHeader: allowLegacyHeader,
				EnableDevLogin:         devLogin,
			}
			if authCfg.JWTSecret == "" && !allowLegacyHeader {
				return fmt.Errorf("QUESTLOG_JWT_SECRET is required for bearer auth")
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
			fmt.Printf("Serving Questlog API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowLegacyHeader, "allow-actor-header", false, "accept X-Actor-Id without a token (local use)")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "enable POST /auth/dev/login")
	return cmd
}

func versionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				v, err := migrate.Version(r.DB)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"schema_version": v})
				}
				fmt.Printf("schema version %d\n", v)
				return nil
			})
		},
	}
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	dir := viper.GetString("dir")
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	_, cfg, err := app.ResolveWorkspaceAndConfig(ctx, viper.GetString("workspace"), viper.GetString("actor-id"), r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	dir := viper.GetString("dir")
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
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

func printDecision(kind string, allowed bool, reason, next string) {
	if allowed {
		color.New(color.FgGreen).Printf("%-12s allowed\n", kind)
		return
	}
	line := fmt.Sprintf("%-12s blocked (%s)", kind, reason)
	if next != "" {
		line += " next eligible " + next
	}
	color.New(color.FgYellow).Println(line)
}

// parseActivities parses category=minutes pairs.
func parseActivities(pairs []string) ([]domain.Activity, error) {
	var out []domain.Activity
	for _, p := range pairs {
		category, minutes, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("activity %q must be category=minutes", p)
		}
		var m int
		if _, err := fmt.Sscanf(minutes, "%d", &m); err != nil {
			return nil, fmt.Errorf("activity %q: minutes must be a number", p)
		}
		out = append(out, domain.Activity{Category: category, Minutes: m})
	}
	return out, nil
}

// parseCompletions builds the per-goal completion list from --done and
// --missed flags. A --done value may carry minutes as id=minutes.
func parseCompletions(done, missed []string) ([]report.GoalCompletion, error) {
	var out []report.GoalCompletion
	for _, d := range done {
		id, minutes, hasMinutes := strings.Cut(d, "=")
		c := report.GoalCompletion{GoalID: id, Completed: true}
		if hasMinutes {
			var m int
			if _, err := fmt.Sscanf(minutes, "%d", &m); err != nil {
				return nil, fmt.Errorf("completion %q: minutes must be a number", d)
			}
			c.CompletionMinutes = &m
		}
		out = append(out, c)
	}
	for _, id := range missed {
		out = append(out, report.GoalCompletion{GoalID: id, Completed: false})
	}
	return out, nil
}
