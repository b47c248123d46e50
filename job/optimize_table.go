package job

import (
	"context"
	"database/sql"
	"net/http"

	"peopleops/webhook-outbox-relay/config"
	"peopleops/webhook-outbox-relay/log"
)

type Optimizer interface {
	Execute(ctx context.Context) error
	EnableSideCarProxyQuit(proxyUrl string)
}

// RunOptimize reclaims space from the outbox and dead letter tables, which
// churn rows constantly; it is intended to run as a scheduled job.
func RunOptimize(ctx context.Context, db *sql.DB, cfg *config.Config) int {
	j := newOptimizeTablesWithDefaultClient(db, cfg)
	if j == nil {
		log.Logger.WithField("config", cfg).Fatalf("unable to determine the database driver")
		return 1
	}

	if cfg.SidecarProxyUrl != "" {
		j.EnableSideCarProxyQuit(cfg.SidecarProxyUrl)
	}

	err := j.Execute(ctx)
	if err != nil {
		return 1
	}

	return 0
}

func newOptimizeTablesWithDefaultClient(db *sql.DB, cfg *config.Config) Optimizer {
	return newOptimizeTables(db, cfg, http.DefaultClient)
}

func newOptimizeTables(db *sql.DB, cfg *config.Config, cl httpPoster) Optimizer {
	sc := SidecarQuitter{Client: cl}
	tables := []string{cfg.DBOutboxTable, cfg.DBDeadLetterTable}

	switch true {
	case cfg.DBDriver.MySQL():
		return &mysqlOptimizeTables{
			Db:             db,
			TableNames:     tables,
			SidecarQuitter: sc,
		}
	case cfg.DBDriver.Postgres():
		return &postgresOptimizeTables{
			Db:             db,
			TableNames:     tables,
			SidecarQuitter: sc,
		}
	}
	return nil
}
