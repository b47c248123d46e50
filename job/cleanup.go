package job

import (
	"context"
	"net/http"
	"time"

	nr "github.com/newrelic/go-agent/v3/newrelic"

	"peopleops/webhook-outbox-relay/config"
	"peopleops/webhook-outbox-relay/log"
	"peopleops/webhook-outbox-relay/newrelic"
	"peopleops/webhook-outbox-relay/outbox"
)

type TerminalDeleter interface {
	DeleteTerminal(ctx context.Context, olderThan time.Time) (int64, error)
}

type cleanup struct {
	td        TerminalDeleter
	retention time.Duration
	clock     outbox.Clock
	SidecarQuitter
}

// RunCleanup executes one sweep of terminal outbox entries and returns a
// process exit code, for running the relay binary as a cron job.
func RunCleanup(ctx context.Context, repo TerminalDeleter, cfg *config.Config) int {
	if cfg.CleanupDisabled() {
		log.Logger.Info("cleanup is disabled by a non-positive retention, nothing to do")
		return 0
	}

	j := newCleanupWithDefaultClient(repo, cfg)
	if cfg.SidecarProxyUrl != "" {
		j.EnableSideCarProxyQuit(cfg.SidecarProxyUrl)
	}

	_, err := j.Execute(ctx)
	if err != nil {
		return 1
	}

	return 0
}

// StartSweeper runs the cleanup on its own cadence, independent of the
// dispatch loop, until the context is cancelled.
func StartSweeper(ctx context.Context, repo TerminalDeleter, cfg *config.Config, nrApp *nr.Application) {
	if cfg.CleanupDisabled() {
		log.Logger.Info("cleanup is disabled by a non-positive retention, not starting the sweeper")
		return
	}

	log.Logger.Infof("starting cleanup sweeper with an interval of %s", cfg.GetCleanupInterval())

	j := newCleanupWithDefaultClient(repo, cfg)
	ticker := time.NewTicker(cfg.GetCleanupInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepCtx, txn := newrelic.ContextWithTxn(ctx, "job: cleanup.Execute()", nrApp)
			if _, err := j.Execute(sweepCtx); err != nil {
				txn.NoticeError(err)
			}
			txn.End()
		}
	}
}

func newCleanupWithDefaultClient(td TerminalDeleter, cfg *config.Config) *cleanup {
	return newCleanup(td, cfg, http.DefaultClient, outbox.SystemClock())
}

func newCleanup(td TerminalDeleter, cfg *config.Config, cl httpPoster, clock outbox.Clock) *cleanup {
	return &cleanup{
		td:        td,
		retention: cfg.GetCleanupRetention(),
		clock:     clock,
		SidecarQuitter: SidecarQuitter{
			Client: cl,
		},
	}
}

// Execute deletes COMPLETED and FAILED entries whose last update is older
// than the retention window. PENDING and PROCESSING entries are never
// touched here, regardless of age.
func (c *cleanup) Execute(ctx context.Context) (int64, error) {
	rows, err := c.td.DeleteTerminal(ctx, c.clock.Now().Add(-c.retention))
	if err != nil {
		log.Logger.WithError(err).Error("an error occurred whilst deleting terminal outbox entries")
		return 0, err
	}

	log.Logger.Infof("deleted %d terminal outbox entries", rows)

	if c.QuitSidecar {
		err = c.Quit()
		if err != nil {
			return 0, err
		}
	}

	return rows, nil
}
