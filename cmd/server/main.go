package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/jengzang/refugia-backend-go/internal/api"
	"github.com/jengzang/refugia-backend-go/internal/config"
	"github.com/jengzang/refugia-backend-go/internal/database"
	"github.com/jengzang/refugia-backend-go/internal/logger"
	"github.com/jengzang/refugia-backend-go/internal/metrics"
	"github.com/jengzang/refugia-backend-go/internal/pipeline"
	"github.com/jengzang/refugia-backend-go/internal/repository"
	"github.com/jengzang/refugia-backend-go/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	// REFUGIA_CONFIG names an optional YAML file
	cfg, err := config.Load(os.Getenv(config.EnvPrefix + "_CONFIG"))
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, "refugia-server")
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck
	zap.ReplaceGlobals(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := database.Init(database.Config{Path: cfg.DBPath}); err != nil {
		return err
	}
	defer database.Close()
	conn := database.GetDB()
	if err := database.Migrate(ctx, conn, log); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.NewPipelineMetrics(reg)
	if err != nil {
		return err
	}

	runRepo := repository.NewRunRepository(conn)
	resultRepo := repository.NewResultRepository(conn)
	runner := pipeline.NewRunner(cfg.Pipeline,
		pipeline.WithStore(resultRepo),
		pipeline.WithTracker(runRepo),
		pipeline.WithMetrics(m),
		pipeline.WithLogger(log))
	runs := service.NewRunService(ctx, runRepo, runner, cfg.Pipeline, log)

	router := api.SetupRouter(api.Deps{
		Config:   cfg,
		Logger:   log,
		Gatherer: reg,
		Runs:     runs,
		Results:  service.NewResultService(runRepo, resultRepo),
	})

	srv := &http.Server{
		Addr:              cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("addr", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", zap.Error(err))
	}
	// Background runs observe the cancelled context and record their failure
	runs.Wait()
	return nil
}
