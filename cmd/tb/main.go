package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"taskboard/internal/app"
	"taskboard/internal/config"
	"taskboard/internal/dates"
	"taskboard/internal/db"
	"taskboard/internal/engine"
	"taskboard/internal/migrate"
	"taskboard/internal/notify"
	"taskboard/internal/recurrence"
	"taskboard/internal/reindex"
	"taskboard/internal/repo"
	taskboardsdk "taskboard/sdk/go"
)

var rootCmd = &cobra.Command{
	Use:   "tb",
	Short: "Taskboard CLI",
	Long: `Taskboard is a shared daily task board for a small crew.
- Board: one column per worker plus UNASSIGNED, for one day at a time.
- Priority: tasks in a column are ranked 1..n; shift, set, or move them between columns and days.
- Recurring: saving a task as recurring creates a template; opening a day materializes its instances.
- End recurring now: drops the template and every instance from that day on, keeping history.
- Notifications: assigning a task to a worker emails them through the relay.
- Gate: a shared passphrase keeps casual visitors off the web board. It is not a security control.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
	SilenceUsage: true,
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
	envFiles := []string{".env"}
	if ws := viper.GetString("workspace"); ws != "" && ws != "." {
		envFiles = append(envFiles, filepath.Join(ws, ".env"))
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			log.Printf("env: %s not loaded: %v", f, err)
		}
	}
	viper.SetEnvPrefix("TASKBOARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	// Secrets also answer to the names the hosted relay used.
	_ = viper.BindEnv("resend-api-key", "TASKBOARD_RESEND_API_KEY", "RESEND_API_KEY")
	_ = viper.BindEnv("mail-from", "TASKBOARD_MAIL_FROM", "MAIL_FROM")
	_ = viper.BindEnv("passphrase", "TASKBOARD_PASSPHRASE", "ACCESS_CODE")
	_ = viper.BindEnv("jwt-secret", "TASKBOARD_JWT_SECRET")
	_ = viper.BindEnv("telegram-token", "TASKBOARD_TELEGRAM_TOKEN", "TELEGRAM_BOT_TOKEN")
	_ = viper.BindEnv("redis-addr", "TASKBOARD_REDIS_ADDR", "REDIS_ADDR")
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "cli", "name recorded on changes")
	rootCmd.PersistentFlags().String("board", "Taskboard", "board name used when seeding defaults")
	rootCmd.PersistentFlags().String("server", "http://127.0.0.1:8080", "API base URL for remote commands")
	rootCmd.PersistentFlags().String("passphrase", "", "board passphrase")
	for _, name := range []string{"workspace", "json", "actor-id", "board", "server", "passphrase"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(boardCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(templateCmd())
	rootCmd.AddCommand(materializeCmd())
	rootCmd.AddCommand(workerCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(notifyCmd())
	rootCmd.AddCommand(serveCmd())
}

func boardCmd() *cobra.Command {
	var hide []string
	var counts bool
	cmd := &cobra.Command{
		Use:   "board [date]",
		Short: "Show the board for a day (default today)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				date := ""
				if len(args) == 1 {
					date = args[0]
				}
				if counts {
					if date == "" {
						date = e.Today()
					}
					return printCounts(ctx, e, date)
				}
				opts := engine.BoardOptions{HideCompleted: map[string]bool{}}
				for _, h := range hide {
					opts.HideCompleted[strings.ToUpper(h)] = true
				}
				board, err := e.ViewDay(ctx, date, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(board)
				}
				fmt.Printf("%s (%s)\n", board.Date, board.Weekday)
				for _, col := range board.Columns {
					tw := table.NewWriter()
					tw.SetOutputMirror(os.Stdout)
					tw.SetTitle(fmt.Sprintf("%s (%d)", col.Title, len(col.Tasks)))
					tw.AppendHeader(table.Row{"#", "Title", "Done", "Due", "ID"})
					for _, t := range col.Tasks {
						tw.AppendRow(table.Row{rank(t.Priority), t.Title, check(t.Completed), stringOrEmpty(t.DueDate), t.ID})
					}
					if col.Hidden > 0 {
						tw.AppendFooter(table.Row{"", fmt.Sprintf("%d completed hidden", col.Hidden)})
					}
					tw.Render()
				}
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&hide, "hide", nil, "assignees whose completed tasks are hidden")
	cmd.Flags().BoolVar(&counts, "counts", false, "only print task counts per column, without materializing")
	return cmd
}

func printCounts(ctx context.Context, e engine.Engine, date string) error {
	if !dates.Valid(date) {
		return fmt.Errorf("invalid date %q: expected YYYY-MM-DD", date)
	}
	n, err := e.Repo.CountTasksByDate(ctx, date)
	if err != nil {
		return err
	}
	if viper.GetBool("json") {
		return printJSON(n)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Column", "Tasks"})
	for _, a := range e.Config.Assignees() {
		tw.AppendRow(table.Row{e.Config.ColumnTitle(a), n[a]})
	}
	tw.Render()
	return nil
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage tasks"}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskGetCmd())
	task.AddCommand(taskSaveCmd())
	task.AddCommand(taskDeleteCmd())
	task.AddCommand(taskToggleCmd())
	task.AddCommand(taskAssignCmd())
	task.AddCommand(taskMoveCmd())
	task.AddCommand(taskShiftCmd())
	task.AddCommand(taskPriorityCmd())
	task.AddCommand(taskEndRecurringCmd())
	return task
}

func taskCreateCmd() *cobra.Command {
	var opts engine.TaskCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if opts.WorkDate == "" {
					opts.WorkDate = e.Today()
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
	cmd.Flags().StringVar(&opts.Assignee, "assignee", "", "worker id (empty for UNASSIGNED)")
	cmd.Flags().StringVar(&opts.WorkDate, "date", "", "work date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&opts.DueDate, "due", "", "due date YYYY-MM-DD")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "notes")
	cmd.Flags().IntVar(&opts.Priority, "priority", 0, "1-based position (default last)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskListCmd() *cobra.Command {
	var f repo.TaskFilters
	var completed string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks across dates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				f.Assignee = strings.ToUpper(f.Assignee)
				if completed != "" {
					done, err := strconv.ParseBool(completed)
					if err != nil {
						return fmt.Errorf("--completed must be true or false")
					}
					f.Completed = &done
				}
				tasks, err := e.Repo.ListTasks(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Date", "Assignee", "#", "Title", "Done", "Recurring"})
				for _, t := range tasks {
					tw.AppendRow(table.Row{t.ID, t.WorkDate, t.Assignee, rank(t.Priority), t.Title, check(t.Completed), check(t.RecurTemplateID != nil)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.From, "from", "", "first date")
	cmd.Flags().StringVar(&f.To, "to", "", "last date")
	cmd.Flags().StringVar(&f.Assignee, "assignee", "", "assignee filter")
	cmd.Flags().StringVar(&completed, "completed", "", "true or false")
	cmd.Flags().IntVar(&f.Limit, "limit", 100, "max rows")
	return cmd
}

func taskGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func taskSaveCmd() *cobra.Command {
	var (
		title, assignee, date, due, notes, ruleType, recurEnd string
		completed, recurring                                  bool
		priority, dayOfMonth                                  int
		daysOfWeek                                            []int
	)
	cmd := &cobra.Command{
		Use:   "save <id>",
		Short: "Save task fields; only flags given are changed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var p engine.TaskPatch
			flags := cmd.Flags()
			if flags.Changed("title") {
				p.Title = &title
			}
			if flags.Changed("assignee") {
				p.Assignee = &assignee
			}
			if flags.Changed("date") {
				p.WorkDate = &date
			}
			if flags.Changed("due") {
				p.DueDate = &due
			}
			if flags.Changed("notes") {
				p.Notes = &notes
			}
			if flags.Changed("completed") {
				p.Completed = &completed
			}
			if flags.Changed("priority") {
				p.Priority = &priority
			}
			if flags.Changed("recurring") {
				p.Recurring = &recurring
			}
			if flags.Changed("rule") {
				p.RecurRule = &recurrence.Rule{Type: recurrence.Type(ruleType), DaysOfWeek: daysOfWeek, DayOfMonth: dayOfMonth}
			}
			if flags.Changed("recur-end") {
				p.RecurEnd = &recurEnd
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.SaveTask(ctx, args[0], p)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&assignee, "assignee", "", "worker id or UNASSIGNED")
	cmd.Flags().StringVar(&date, "date", "", "work date")
	cmd.Flags().StringVar(&due, "due", "", "due date (empty clears)")
	cmd.Flags().StringVar(&notes, "notes", "", "notes")
	cmd.Flags().BoolVar(&completed, "completed", false, "completed")
	cmd.Flags().IntVar(&priority, "priority", 0, "1-based position")
	cmd.Flags().BoolVar(&recurring, "recurring", false, "make the task recurring (false removes the template)")
	cmd.Flags().StringVar(&ruleType, "rule", "", "daily, weekdays, weekdays_set, first_of_month, last_of_month, day_of_month")
	cmd.Flags().IntSliceVar(&daysOfWeek, "days", nil, "weekdays for weekdays_set, 0=Sunday")
	cmd.Flags().IntVar(&dayOfMonth, "day-of-month", 0, "day for day_of_month")
	cmd.Flags().StringVar(&recurEnd, "recur-end", "", "last day of the recurrence (empty clears)")
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteTask(ctx, args[0]); err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"deleted": args[0]})
			})
		},
	}
}

func taskToggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <id>",
		Short: "Flip completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.ToggleCompleted(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func taskAssignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assign <id> <worker>",
		Short: "Move a task to another column",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.AssignTask(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func taskMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move <id> <date>",
		Short: "Move a task to another day",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.MoveDate(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func taskShiftCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "shift <id> up|down",
		Short:     "Swap a task with its neighbour",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{string(reindex.Up), string(reindex.Down)},
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := reindex.Direction(strings.ToLower(args[1]))
			if dir != reindex.Up && dir != reindex.Down {
				return fmt.Errorf("direction must be up or down")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.ShiftTask(ctx, args[0], dir)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func taskPriorityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "priority <id> <n>",
		Short: "Move a task to position n (0 or less puts it last)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("priority must be a number")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.SetPriority(ctx, args[0], n)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func taskEndRecurringCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "end-recurring <id>",
		Short: "Delete the recurrence and its instances from this task's date on",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes && !confirm(fmt.Sprintf("End recurrence for %s and delete future instances?", args[0])) {
				return fmt.Errorf("aborted")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.EndRecurringNow(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")
	return cmd
}

func templateCmd() *cobra.Command {
	tpl := &cobra.Command{Use: "template", Short: "Inspect recurring templates"}
	tpl.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListTemplates(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Assignee", "Rule", "From", "Until"})
				for _, t := range items {
					tw.AppendRow(table.Row{t.ID, t.Title, t.Assignee, describeRule(t.Rule), t.StartFrom, stringOrEmpty(t.RecurEnd)})
				}
				tw.Render()
				return nil
			})
		},
	})
	return tpl
}

func materializeCmd() *cobra.Command {
	var from string
	var days int
	cmd := &cobra.Command{
		Use:   "materialize",
		Short: "Create recurring instances for a range of days",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if from == "" {
					from = e.Today()
				}
				res, err := e.MaterializeRange(ctx, from, days)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				for _, d := range res {
					fmt.Printf("%s: %d created\n", d.Date, len(d.Created))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first day (default today)")
	cmd.Flags().IntVar(&days, "days", 0, "additional days after --from")
	return cmd
}

func workerCmd() *cobra.Command {
	w := &cobra.Command{Use: "worker", Short: "Inspect workers"}
	w.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if viper.GetBool("json") {
					return printJSON(e.Config.Workers)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Email", "Telegram"})
				for _, wk := range e.Config.Workers {
					chat := ""
					if wk.TelegramChatID != 0 {
						chat = strconv.FormatInt(wk.TelegramChatID, 10)
					}
					tw.AppendRow(table.Row{wk.ID, wk.Name, wk.Email, chat})
				}
				tw.Render()
				return nil
			})
		},
	})
	return w
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect board config",
		Long:  "Config holds the board name, timezone, workers, gate, notification and schedule settings. taskboard.yml in the workspace wins over the copy stored in the database.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configImportCmd())
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check taskboard.yml in the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				version, err := migrate.Current(r.DB)
				if err != nil {
					return err
				}
				fmt.Printf("%s ok: %d workers, database %s (schema v%d)\n", config.Path(workspace), len(cfg.Workers), db.Path(workspace), version)
				return nil
			})
		},
	}
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the active config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				shown := *e.Config
				if shown.Gate.Passphrase != "" {
					shown.Gate.Passphrase = "********"
				}
				return printJSONOrTable(shown)
			})
		},
	}
}

func configImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Store a YAML config in the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromFile(args[0])
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if err := r.UpsertBoardConfig(ctx, cfg); err != nil {
					return err
				}
				fmt.Printf("imported %d workers for %s\n", len(cfg.Workers), cfg.Board.Name)
				return nil
			})
		},
	}
}

func configInitCmd() *cobra.Command {
	var force bool
	var apiKey, from string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default taskboard.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(viper.GetString("board"))), 0o644); err != nil {
				return err
			}
			envPath := filepath.Join(workspace, ".env")
			if apiKey != "" {
				if err := setEnvValue(envPath, "RESEND_API_KEY", apiKey); err != nil {
					return err
				}
			}
			if from != "" {
				if err := setEnvValue(envPath, "MAIL_FROM", from); err != nil {
					return err
				}
			}
			fmt.Printf("wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cmd.Flags().StringVar(&apiKey, "resend-api-key", "", "store the email API key in .env")
	cmd.Flags().StringVar(&from, "mail-from", "", "store the sender address in .env")
	return cmd
}

func logCmd() *cobra.Command {
	l := &cobra.Command{Use: "log", Short: "Inspect the change log"}
	l.AddCommand(logTailCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var n int
	var kind string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the newest changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				changes, err := r.LatestEvents(ctx, n, kind)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(changes)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Entity", "Date", "Actor"})
				for _, c := range changes {
					tw.AppendRow(table.Row{c.ID, c.TS, c.Type, c.EntityID, c.WorkDate, c.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of changes")
	cmd.Flags().StringVar(&kind, "entity-kind", "", "task or template")
	return cmd
}

func auditCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the running server's audit log",
		Long:  "The audit log lives in the server's memory, so this asks the server at --server.",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := taskboardsdk.New(viper.GetString("server"))
			client.Passphrase = viper.GetString("passphrase")
			entries, err := client.Audit(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(entries)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"At", "Action", "Details"})
			for _, en := range entries {
				details, _ := json.Marshal(en.Details)
				tw.AppendRow(table.Row{en.At, en.Action, string(details)})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "number of entries")
	return cmd
}

func notifyCmd() *cobra.Command {
	n := &cobra.Command{Use: "notify", Short: "Send notifications"}
	var a notify.Assignment
	send := &cobra.Command{
		Use:   "send",
		Short: "Send an assignment notice directly",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if a.Date == "" {
					a.Date = e.Today()
				}
				a.Version = notify.Version
				res, err := newRelay(e.Config).NotifyAssignment(ctx, a)
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	send.Flags().StringVar(&a.Assignee, "assignee", "", "worker id")
	send.Flags().StringVar(&a.Title, "title", "", "task title")
	send.Flags().StringVar(&a.Date, "date", "", "assigned date (default today)")
	n.AddCommand(send)
	return n
}

// --- helpers ---

func newRelay(cfg *config.Config) *notify.Relay {
	return notify.NewRelay(cfg, notify.Settings{
		APIKey:        viper.GetString("resend-api-key"),
		From:          viper.GetString("mail-from"),
		TelegramToken: viper.GetString("telegram-token"),
		Recipients:    notify.RecipientsFromEnv(cfg, os.Getenv),
	})
}

func openEngine(ctx context.Context) (engine.Engine, func(), error) {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return engine.Engine{}, nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return engine.Engine{}, nil, err
	}
	r := repo.Repo{DB: conn}
	cfg, err := app.ResolveBoardConfig(ctx, workspace, viper.GetString("board"), r)
	if err != nil {
		conn.Close()
		return engine.Engine{}, nil, err
	}
	e := engine.New(conn, cfg)
	if viper.GetString("resend-api-key") != "" || viper.GetString("telegram-token") != "" {
		e.Notifier = newRelay(cfg)
	}
	return e, func() { conn.Close() }, nil
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	e, closeFn, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(engine.WithActor(ctx, viper.GetString("actor-id")), e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	if ctx == nil {
		ctx = context.Background()
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

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N] ", prompt)
	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	line = strings.ToLower(strings.TrimSpace(line))
	return line == "y" || line == "yes"
}

func setEnvValue(path, key, value string) error {
	var lines []string
	seen := false
	f, err := os.Open(path)
	if err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, key+"=") {
				lines = append(lines, fmt.Sprintf("%s=%s", key, value))
				seen = true
			} else {
				lines = append(lines, line)
			}
		}
		if err := scanner.Err(); err != nil {
			f.Close()
			return err
		}
		f.Close()
	} else if !os.IsNotExist(err) {
		return err
	}
	if !seen {
		lines = append(lines, fmt.Sprintf("%s=%s", key, value))
	}
	content := strings.Join(lines, "\n")
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return os.WriteFile(path, []byte(content), 0o600)
}

func rank(p *int) string {
	if p == nil || *p >= reindex.Sentinel {
		return "-"
	}
	return strconv.Itoa(*p)
}

func check(b bool) string {
	if b {
		return "x"
	}
	return ""
}

func stringOrEmpty(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func describeRule(r recurrence.Rule) string {
	switch r.Type {
	case recurrence.WeekdaysSet:
		names := make([]string, 0, len(r.DaysOfWeek))
		for _, d := range r.DaysOfWeek {
			names = append(names, time.Weekday(d).String()[:3])
		}
		return string(r.Type) + " " + strings.Join(names, ",")
	case recurrence.DayOfMonth:
		return fmt.Sprintf("%s %d", r.Type, r.DayOfMonth)
	}
	return string(r.Type)
}
