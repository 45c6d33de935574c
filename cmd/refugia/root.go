package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jengzang/refugia-backend-go/internal/config"
	"github.com/jengzang/refugia-backend-go/internal/database"
	"github.com/jengzang/refugia-backend-go/internal/logger"
	"github.com/jengzang/refugia-backend-go/internal/pipeline"
	"github.com/jengzang/refugia-backend-go/internal/repository"
	"github.com/jengzang/refugia-backend-go/internal/service"
)

// env carries what every subcommand needs once the root has loaded it
type env struct {
	configPath string
	dbPath     string
	cfg        *config.Config
	log        *zap.Logger
}

func newRootCommand() *cobra.Command {
	e := &env{}

	root := &cobra.Command{
		Use:           "refugia",
		Short:         "Thermal refugia detection from animal telemetry",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(e.configPath)
			if err != nil {
				return err
			}
			if e.dbPath != "" {
				cfg.DBPath = e.dbPath
			}
			log, err := logger.New(cfg.Log.Level, cfg.Log.Format, "refugia-cli")
			if err != nil {
				return err
			}
			e.cfg, e.log = cfg, log
			zap.ReplaceGlobals(log)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if e.log != nil {
				_ = e.log.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&e.configPath, "config", "", "Path to a YAML configuration file")
	root.PersistentFlags().StringVar(&e.dbPath, "db", "", "SQLite database path, overrides db_path")

	root.AddCommand(runCommand(e), migrateCommand(e))
	return root
}

func (e *env) openDB(ctx context.Context) (*sql.DB, error) {
	conn, err := database.Open(e.cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx, conn, e.log); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func migrateCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := e.openDB(cmd.Context())
			if err != nil {
				return err
			}
			return conn.Close()
		},
	}
}

func runCommand(e *env) *cobra.Command {
	var trajectoryPath, climatePath, user string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the refugia pipeline over trajectory and climate CSV files",
		Long: `Run cleans the trajectory, aligns it with the climate grid, segments heat
events, clusters refugia and labels heat-event points. Artifacts are stored
in the SQLite database and the run summary is printed as JSON.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			trajectory, err := os.Open(trajectoryPath)
			if err != nil {
				return fmt.Errorf("failed to open trajectory: %w", err)
			}
			defer trajectory.Close()
			climate, err := os.Open(climatePath)
			if err != nil {
				return fmt.Errorf("failed to open climate: %w", err)
			}
			defer climate.Close()

			conn, err := e.openDB(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()

			runRepo := repository.NewRunRepository(conn)
			runner := pipeline.NewRunner(e.cfg.Pipeline,
				pipeline.WithStore(repository.NewResultRepository(conn)),
				pipeline.WithTracker(runRepo),
				pipeline.WithLogger(e.log))
			runs := service.NewRunService(ctx, runRepo, runner, e.cfg.Pipeline, e.log)

			run, _, err := runs.ExecuteRun(ctx, service.Upload{
				Trajectory: trajectory,
				Climate:    climate,
				CreatedBy:  user,
			})
			if run != nil {
				if perr := printRun(cmd.OutOrStdout(), run.ID, run.Status, run.ResultSummary); perr != nil {
					return perr
				}
			}
			return err
		},
	}

	cmd.Flags().StringVar(&trajectoryPath, "trajectory", "", "Trajectory CSV file")
	cmd.Flags().StringVar(&climatePath, "climate", "", "Climate CSV file")
	cmd.Flags().StringVar(&user, "user", "cli", "Name recorded as the run creator")
	_ = cmd.MarkFlagRequired("trajectory")
	_ = cmd.MarkFlagRequired("climate")
	return cmd
}

func printRun(w io.Writer, id, status, summary string) error {
	out := map[string]interface{}{"run_id": id, "status": status}
	if summary != "" {
		out["summary"] = json.RawMessage(summary)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
