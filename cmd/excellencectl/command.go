package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prima-scholar/scholar-hub/config"
	"github.com/prima-scholar/scholar-hub/internal/app"
	"github.com/prima-scholar/scholar-hub/internal/application/command"
	"github.com/prima-scholar/scholar-hub/internal/application/query"
	"github.com/prima-scholar/scholar-hub/internal/infrastructure/persistence/postgres"
	"github.com/prima-scholar/scholar-hub/pkg/logger"
	"github.com/prima-scholar/scholar-hub/pkg/metrics"
)

var stdout io.Writer = os.Stdout

type ExcellenceCommand struct {
	Score        ScoreCommand        `command:"score"        description:"Compute and record the excellence score of a student."`
	Predict      PredictCommand      `command:"predict"      description:"Predict the probability of a student earning a distinction."`
	Distinctions DistinctionsCommand `command:"distinctions" description:"List the configured distinctions and their requirements."`
	Migrate      MigrateCommand      `command:"migrate"      description:"Apply, roll back or inspect database migrations."`
}

// ──────────────────────────────────────────────────────────────────────────────

type ScoreCommand struct {
	StudentID string        `short:"s" long:"student" required:"true" description:"Student ID"`
	Timeout   time.Duration `long:"timeout" default:"30s" description:"Overall command timeout"`
}

func (cmd *ScoreCommand) Execute([]string) error {
	return withApp(cmd.Timeout, func(ctx context.Context, a *app.App) error {
		result, err := a.Calculate.Handle(ctx, command.CalculateExcellenceScoreCommand{StudentID: cmd.StudentID})
		if err != nil {
			return err
		}

		out := map[string]any{"score": result.Score}
		if result.Degraded() {
			out["warning"] = result.DurabilityWarning.Error()
		}
		return printJSON(out)
	})
}

// ──────────────────────────────────────────────────────────────────────────────

type PredictCommand struct {
	StudentID   string        `short:"s" long:"student"     required:"true" description:"Student ID"`
	Distinction string        `short:"d" long:"distinction" required:"true" description:"Distinction name, e.g. Dean_List"`
	NoCache     bool          `long:"no-cache" description:"Bypass the prediction cache"`
	Timeout     time.Duration `long:"timeout" default:"30s" description:"Overall command timeout"`
}

func (cmd *PredictCommand) Execute([]string) error {
	return withApp(cmd.Timeout, func(ctx context.Context, a *app.App) error {
		result, err := a.Predict.Handle(ctx, query.PredictDistinctionQuery{
			StudentID:   cmd.StudentID,
			Distinction: cmd.Distinction,
			BypassCache: cmd.NoCache,
		})
		if err != nil {
			return err
		}

		warnings := make([]string, 0, len(result.Warnings))
		for _, w := range result.Warnings {
			warnings = append(warnings, w.Error())
		}
		return printJSON(map[string]any{
			"prediction": result.Prediction,
			"cached":     result.Cached,
			"warnings":   warnings,
		})
	})
}

// ──────────────────────────────────────────────────────────────────────────────

type DistinctionsCommand struct {
	TablesFile string `long:"tables" env:"ENGINE_TABLES_FILE" description:"YAML file overriding the engine tables"`
}

func (cmd *DistinctionsCommand) Execute([]string) error {
	engine, err := config.LoadEngine(config.EngineConfig{TablesFile: cmd.TablesFile})
	if err != nil {
		return err
	}
	return printJSON(query.NewListDistinctionsHandler(engine.Requirements).Handle(context.Background()))
}

// ──────────────────────────────────────────────────────────────────────────────

type MigrateCommand struct {
	Rollback bool          `long:"rollback" description:"Revert the most recently applied migration"`
	Status   bool          `long:"status"   description:"Print the state of every migration"`
	Timeout  time.Duration `long:"timeout" default:"5m" description:"Overall command timeout"`
}

type migrationView struct {
	Version   int        `json:"version"`
	Name      string     `json:"name"`
	Applied   bool       `json:"applied"`
	AppliedAt *time.Time `json:"applied_at,omitempty"`
}

func (cmd *MigrateCommand) Execute([]string) error {
	if cmd.Rollback && cmd.Status {
		return errors.New("--rollback and --status are mutually exclusive")
	}

	return withApp(cmd.Timeout, func(ctx context.Context, a *app.App) error {
		migrator := postgres.NewMigrator(a.DB)

		switch {
		case cmd.Rollback:
			return migrator.Rollback(ctx)
		case cmd.Status:
			migs, err := migrator.Status(ctx)
			if err != nil {
				return err
			}
			views := make([]migrationView, 0, len(migs))
			for _, m := range migs {
				v := migrationView{Version: m.Version, Name: m.Name, Applied: m.IsApplied}
				if m.IsApplied {
					at := m.AppliedAt
					v.AppliedAt = &at
				}
				views = append(views, v)
			}
			return printJSON(views)
		default:
			applied, err := migrator.Migrate(ctx)
			if err != nil {
				return err
			}
			return printJSON(map[string]int{"applied": applied})
		}
	})
}

// ──────────────────────────────────────────────────────────────────────────────

// withApp loads the configuration, wires the engine and runs fn under a
// signal-aware context. Logs go to stderr so stdout stays machine-readable.
func withApp(timeout time.Duration, fn func(context.Context, *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Options{
		Output: os.Stderr,
		Level:  logger.ParseLevel(cfg.Observability.LogLevel),
		Format: logger.FormatText,
	})
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	a, err := app.Build(ctx, cfg, log, metrics.New())
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

func printJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
