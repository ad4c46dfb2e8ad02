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
	"go.uber.org/zap"

	"taskmaster/internal/config"
	"taskmaster/internal/db"
	"taskmaster/internal/domain"
	"taskmaster/internal/engine"
	"taskmaster/internal/llm"
	"taskmaster/internal/migrate"
	"taskmaster/internal/server"
	"taskmaster/internal/worker"
)

var rootCmd = &cobra.Command{
	Use:   "tm",
	Short: "Taskmaster CLI",
	Long: `Taskmaster is a capture-first task keeper with background model enrichment.
How it works:
- Capture: 'tm capture <anything>' saves instantly, no waiting on a model.
- Enrichment: a background pass (or 'tm process') asks the configured model to
  clean up the text, score priority 0-1, pick a category, and flag life-critical
  or quick-win items. Model failures never lose a note; tasks fall back to
  sensible defaults.
- Suggestions and chat: 'tm suggest' and 'tm chat' read your active tasks and
  talk them through with the model. They never change state.
- Workspace: everything lives in .taskmaster/ next to where you run tm.`,
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
	viper.SetEnvPrefix("TASKMASTER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(captureCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(processCmd())
	rootCmd.AddCommand(suggestCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(organizeCmd())
	rootCmd.AddCommand(assessCmd())
	rootCmd.AddCommand(interpretCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func captureCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capture <text...>",
		Short: "Capture a raw note instantly",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := strings.TrimSpace(strings.Join(args, " "))
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.Capture(ctx, raw)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(t)
				}
				fmt.Printf("Captured %s\n", t.ID)
				return nil
			})
		},
	}
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
		Long:  "Tasks start as 'captured', become 'active' once enriched, then move to 'done' or 'archived'. Priority is a 0-1 score; 0.7 and above counts as high.",
	}
	task.AddCommand(taskListCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskUpdateCmd())
	task.AddCommand(taskDeleteCmd())
	task.AddCommand(taskReprocessCmd())
	return task
}

func taskListCmd() *cobra.Command {
	var status string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tasks, err := e.ListTasks(ctx, status, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Text", "Status", "Priority", "Category", "Flags"})
				for _, t := range tasks {
					tw.AppendRow(table.Row{shortID(t.ID), clip(t.Text(), 60), t.Status, fmt.Sprintf("%.2f", t.PriorityScore), derefOr(t.Category, ""), taskFlags(t)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter (captured, processing, active, done, archived)")
	cmd.Flags().IntVar(&limit, "limit", 50, "max tasks to list")
	return cmd
}

func taskShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
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
	return cmd
}

func taskUpdateCmd() *cobra.Command {
	var status, category, notes, dueBy, recurringPattern string
	var priority float64
	var pinned, recurring bool
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts engine.TaskUpdateOptions
			if cmd.Flags().Changed("status") {
				opts.Status = &status
			}
			if cmd.Flags().Changed("priority") {
				opts.PriorityScore = &priority
			}
			if cmd.Flags().Changed("category") {
				opts.Category = &category
			}
			if cmd.Flags().Changed("notes") {
				opts.Notes = &notes
			}
			if cmd.Flags().Changed("due-by") {
				opts.DueBy = &dueBy
			}
			if cmd.Flags().Changed("pinned") {
				opts.Pinned = &pinned
			}
			if cmd.Flags().Changed("recurring") {
				opts.Recurring = &recurring
			}
			if cmd.Flags().Changed("recurring-pattern") {
				opts.RecurringPattern = &recurringPattern
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.UpdateTask(ctx, args[0], opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "new status (active, done, archived)")
	cmd.Flags().Float64Var(&priority, "priority", 0.5, "priority score 0-1")
	cmd.Flags().StringVar(&category, "category", "", "category")
	cmd.Flags().StringVar(&notes, "notes", "", "notes")
	cmd.Flags().StringVar(&dueBy, "due-by", "", "due date (RFC3339)")
	cmd.Flags().BoolVar(&pinned, "pinned", false, "pin to keep in suggestion context")
	cmd.Flags().BoolVar(&recurring, "recurring", false, "mark recurring")
	cmd.Flags().StringVar(&recurringPattern, "recurring-pattern", "", "recurrence pattern (e.g. weekly)")
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteTask(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("deleted")
				return nil
			})
		},
	}
	return cmd
}

func taskReprocessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reprocess <id>",
		Short: "Re-enrich a single task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.Reprocess(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func processCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Enrich captured tasks now",
		Long:  "Runs one enrichment pass immediately instead of waiting for the background interval. Safe to run while 'tm serve' is up; each captured task is claimed before processing so it is only enriched once.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				count, err := e.ProcessCaptured(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]int{"processed": count})
				}
				fmt.Printf("processed %d task(s)\n", count)
				return nil
			})
		},
	}
	return cmd
}

func suggestCmd() *cobra.Command {
	var state string
	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Ask what to do next",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				out, err := e.Suggest(ctx, state)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"suggestions": out})
				}
				fmt.Println(out)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "how you're doing right now (e.g. tired, focused)")
	return cmd
}

func chatCmd() *cobra.Command {
	var noContext bool
	cmd := &cobra.Command{
		Use:   "chat <message...>",
		Short: "Chat about your tasks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message := strings.Join(args, " ")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				reply, included, err := e.Chat(ctx, message, !noContext)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"reply": reply, "context_tasks": included})
				}
				fmt.Println(reply)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&noContext, "no-context", false, "chat without loading active tasks")
	return cmd
}

func organizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "organize",
		Short: "Ask the organizer role to group active tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tasks, err := e.ListTasks(ctx, domain.StatusActive, 0)
				if err != nil {
					return err
				}
				org := llm.Organizer{Sender: roleSender(e, "organizer")}
				fmt.Println(org.Categorize(ctx, tasks))
				return nil
			})
		},
	}
	return cmd
}

func assessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assess <id>",
		Short: "Ask the prioritizer role to re-score one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				pri := llm.Prioritizer{Sender: roleSender(e, "prioritizer")}
				score := pri.Assess(ctx, t)
				if viper.GetBool("json") {
					return printJSON(map[string]any{"id": t.ID, "priority_score": score})
				}
				fmt.Printf("%s: %.2f\n", shortID(t.ID), score)
				return nil
			})
		},
	}
	return cmd
}

func interpretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "interpret <text...>",
		Short: "Ask the secretary role to interpret a note without saving it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := strings.Join(args, " ")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				sec := llm.Secretary{Sender: roleSender(e, "secretary")}
				return printJSONOrTable(sec.Interpret(ctx, raw))
			})
		},
	}
	return cmd
}

func statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show task counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				stats, err := e.Stats(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(stats)
				}
				fmt.Printf("Total: %d\n", stats.Total)
				for status, c := range stats.ByStatus {
					fmt.Printf("  %s: %d\n", status, c)
				}
				fmt.Printf("Life critical (active): %d\n", stats.LifeCriticalActive)
				fmt.Printf("Quick wins: %d\n", stats.QuickWins)
				fmt.Printf("High priority: %d\n", stats.HighPriority)
				return nil
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var taskID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, taskID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&taskID, "task", "", "task id filter")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect and bootstrap config",
		Long:  "Config lives in taskmaster.yml: the default model endpoint, optional per-role overrides (secretary, organizer, prioritizer), and worker/server settings. All keys are optional; built-in defaults target a local Ollama.",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default taskmaster.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err == nil {
				err = cfg.Validate()
			}
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

func serveCmd() *cobra.Command {
	var addr, basePath string
	var noWorker bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and background worker",
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
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("addr") && cfg.Server.Addr != "" {
				addr = cfg.Server.Addr
			}
			if !cmd.Flags().Changed("base-path") && cfg.Server.BasePath != "" {
				basePath = cfg.Server.BasePath
			}
			logger, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer logger.Sync()

			client := llm.NewClient(cfg.Role("processor"), logger)
			processor := llm.NewProcessor(client, logger)
			e := engine.New(conn, cfg, processor, logger)

			secret := cfg.Server.AuthSecret
			if env := os.Getenv("TASKMASTER_JWT_SECRET"); env != "" {
				secret = env
			}
			handler, err := server.New(server.Config{
				Engine:   e,
				BasePath: basePath,
				Auth:     server.AuthConfig{JWTSecret: secret, Logger: logger},
			})
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			workerDone := make(chan struct{})
			if noWorker {
				close(workerDone)
			} else {
				sched := worker.New(e, time.Duration(cfg.Worker.IntervalSeconds)*time.Second, logger)
				go func() {
					defer close(workerDone)
					sched.Run(ctx)
				}()
			}

			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-ctx.Done()
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				srv.Shutdown(shutdownCtx)
			}()
			logger.Info("serving", zap.String("addr", addr), zap.String("base_path", basePath))
			fmt.Printf("Serving Taskmaster API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			cancel()
			<-workerDone
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/api", "API base path")
	cmd.Flags().BoolVar(&noWorker, "no-worker", false, "disable the background enrichment worker")
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
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	logger := zap.NewNop()
	client := llm.NewClient(cfg.Role("processor"), logger)
	processor := llm.NewProcessor(client, logger)
	e := engine.New(conn, cfg, processor, logger)
	return fn(ctx, e)
}

func roleSender(e engine.Engine, role string) llm.Sender {
	return llm.NewClient(e.Config.Role(role), e.Logger)
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

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

func taskFlags(t domain.Task) string {
	var flags []string
	if t.IsLifeCritical {
		flags = append(flags, "critical")
	}
	if t.IsQuickWin {
		flags = append(flags, "quick")
	}
	if t.Pinned {
		flags = append(flags, "pinned")
	}
	if t.Recurring {
		flags = append(flags, "recurring")
	}
	return strings.Join(flags, ",")
}
