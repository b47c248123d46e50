package job

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/newrelic/go-agent/v3/newrelic"

	"peopleops/webhook-outbox-relay/log"
)

type mysqlOptimizeTables struct {
	Db         *sql.DB
	TableNames []string
	SidecarQuitter
}

func (o *mysqlOptimizeTables) Execute(ctx context.Context) error {
	var err error
	for _, table := range o.TableNames {
		seg := o.newRelicSegment(ctx, table, "OPTIMIZE TABLE")
		_, err = o.Db.ExecContext(ctx, fmt.Sprintf("OPTIMIZE TABLE %s;", table))
		seg.End()

		if err == nil {
			log.Logger.Infof("optimized MySQL table %s successfully", table)
		} else {
			log.Logger.WithError(err).Errorf("an error occurred optimizing the MySQL table %s", table)
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

func (o *mysqlOptimizeTables) newRelicSegment(ctx context.Context, table, operation string) *newrelic.DatastoreSegment {
	return &newrelic.DatastoreSegment{
		Product:    newrelic.DatastoreMySQL,
		Collection: table,
		Operation:  operation,
		StartTime:  newrelic.FromContext(ctx).StartSegmentNow(),
	}
}
