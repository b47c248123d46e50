package job

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/newrelic/go-agent/v3/newrelic"

	"peopleops/webhook-outbox-relay/log"
)

type postgresOptimizeTables struct {
	Db         *sql.DB
	TableNames []string
	SidecarQuitter
}

func (o *postgresOptimizeTables) Execute(ctx context.Context) error {
	var err error
	for _, table := range o.TableNames {
		seg := o.newRelicSegment(ctx, table, "VACUUM")
		_, err = o.Db.ExecContext(ctx, fmt.Sprintf("VACUUM %s;", table))
		seg.End()

		if err == nil {
			log.Logger.Infof("vacuumed Postgres table %s successfully", table)
		} else {
			log.Logger.WithError(err).Errorf("an error occurred vacuuming the Postgres table %s", table)
			break
		}
	}

	if o.QuitSidecar {
		if qErr := o.Quit(); qErr != nil {
			return qErr
		}
	}

	return err
}

func (o *postgresOptimizeTables) newRelicSegment(ctx context.Context, table, operation string) *newrelic.DatastoreSegment {
	return &newrelic.DatastoreSegment{
		Product:    newrelic.DatastorePostgres,
		Collection: table,
		Operation:  operation,
		StartTime:  newrelic.FromContext(ctx).StartSegmentNow(),
	}
}
