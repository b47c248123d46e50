package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"

	nr "github.com/newrelic/go-agent/v3/newrelic"

	"peopleops/webhook-outbox-relay/config"
	"peopleops/webhook-outbox-relay/job"
	"peopleops/webhook-outbox-relay/log"
	"peopleops/webhook-outbox-relay/newrelic"
	"peopleops/webhook-outbox-relay/notifier"
	"peopleops/webhook-outbox-relay/notifier/breaker"
	"peopleops/webhook-outbox-relay/outbox"
	"peopleops/webhook-outbox-relay/outbox/data"
	"peopleops/webhook-outbox-relay/outbox/dispatcher"
	"peopleops/webhook-outbox-relay/prometheus"
)

func main() {
	nrApp, stopAgent := newrelic.StartAgent()
	defer stopAgent()

	ctx, cancel := context.WithCancel(context.Background())
	cfg, err := config.NewConfig()
	if err != nil {
		log.Logger.Fatalf("unable to create configuration: %s", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		cancel()
	}()

	db, dbClose := data.NewDB(cfg)
	defer dbClose()

	repo := outbox.NewRepository(db, cfg)

	var exitCode int
	switch {
	case cfg.RunCleanup:
		exitCode = job.RunCleanup(ctx, repo, cfg)
	case cfg.RunOptimize:
		exitCode = job.RunOptimize(ctx, db, cfg)
	default:
		runMainApp(ctx, nrApp, db, repo, cfg)
	}

	if exitCode > 0 {
		dbClose() // we call this manually because os.Exit() does not respect defer
		os.Exit(exitCode)
	}
}

func runMainApp(ctx context.Context, nrApp *nr.Application, db *sql.DB, repo outbox.Repository, cfg *config.Config) {
	breakers := breaker.NewRegistry(cfg.BreakerThreshold, cfg.GetBreakerCooldown())
	n := notifier.NewBreaking(notifier.New(cfg), breakers)

	coordinator := dispatcher.New(cfg, repo, n, outbox.SystemClock())
	scheduler := dispatcher.NewScheduler(coordinator, cfg.GetDispatchInterval(), nrApp)

	go scheduler.Run(ctx)
	go job.StartSweeper(ctx, repo, cfg, nrApp)
	go prometheus.ObservePendingSize(repo, ctx)
	go prometheus.ObserveTotalSize(repo, ctx)

	prometheus.StartHttpServer(cfg, db)
}
