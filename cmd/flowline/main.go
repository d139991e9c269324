// Command flowline boots the workflow execution core: storage, the graph
// runner, the background execution manager, and the cron scheduler. The API
// surface attaches to these components from the outside.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	appengine "github.com/flowline-ai/flowline/internal/application/engine"
	"github.com/flowline-ai/flowline/internal/application/scheduler"
	"github.com/flowline-ai/flowline/internal/config"
	"github.com/flowline-ai/flowline/internal/infrastructure/logger"
	"github.com/flowline-ai/flowline/internal/infrastructure/storage"
	"github.com/flowline-ai/flowline/pkg/engine"
	"github.com/flowline-ai/flowline/pkg/executor/builtin"
	"github.com/flowline-ai/flowline/pkg/provider"
)

func main() {
	log := logger.New("flowline")

	cfg, err := config.Load()
	if err != nil {
		log.Error("configuration error", "error", err)
		os.Exit(1)
	}

	db, err := storage.NewDB(&storage.Config{DSN: cfg.DatabaseDSN}, log)
	if err != nil {
		log.Error("database error", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	workflows := storage.NewWorkflowRepository(db)
	executions := storage.NewExecutionRepository(db)
	schedules := storage.NewScheduleRepository(db)
	checkpoints := storage.NewCheckpointRepository(db)

	resolver := provider.NewResolver(cfg, nil)
	executors, err := builtin.NewManager(builtin.Deps{Providers: resolver, Log: log})
	if err != nil {
		log.Error("executor registry error", "error", err)
		os.Exit(1)
	}
	mockExecutors, err := builtin.NewMockManager()
	if err != nil {
		log.Error("mock registry error", "error", err)
		os.Exit(1)
	}

	manager := appengine.NewManager()
	runner := engine.NewRunner(executors, mockExecutors, checkpoints,
		engine.WithNotifier(manager),
		engine.WithLogger(log),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sched *scheduler.Scheduler
	if cfg.SchedulerEnabled {
		sched = scheduler.New(schedules, workflows, executions, manager, runner, scheduler.WithLogger(log))
		if err := sched.Start(ctx); err != nil {
			log.Error("scheduler error", "error", err)
			os.Exit(1)
		}
	}

	log.Info("flowline core started")
	<-ctx.Done()

	log.Info("shutting down")
	if sched != nil {
		sched.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	manager.Shutdown(shutdownCtx)
}
