package sql

import (
	"fmt"
	"strings"
)

type PostgresQueryProvider struct {
	Table           string
	DeadLetterTable string
	Columns         []string
}

func (p PostgresQueryProvider) InsertEntrySql() string {
	q := `INSERT INTO %s (id, tenant_id, event_type, destination, payload, status, attempts, next_attempt_at, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	return fmt.Sprintf(q, p.Table)
}

func (p PostgresQueryProvider) ReleaseExpiredClaimsSql() string {
	q := `UPDATE %s SET status = $1, claimed_at = NULL, claimed_by = NULL, updated_at = $2 WHERE status = $3 AND claimed_at < $4`

	return fmt.Sprintf(q, p.Table)
}

func (p PostgresQueryProvider) FetchDueSql(batchSize int) string {
	q := `SELECT %s FROM %s WHERE status = $1 AND next_attempt_at <= $2 ORDER BY next_attempt_at ASC LIMIT %d`

	return fmt.Sprintf(q, strings.Join(p.Columns, ", "), p.Table, batchSize)
}

func (p PostgresQueryProvider) ClaimEntrySql() string {
	q := `UPDATE %s SET status = $1, claimed_at = $2, claimed_by = $3, updated_at = $4 WHERE id = $5 AND tenant_id = $6 AND status = $7 AND claimed_at IS NULL AND claimed_by IS NULL`

	return fmt.Sprintf(q, p.Table)
}

func (p PostgresQueryProvider) MarkCompletedSql() string {
	q := `UPDATE %s SET status = $1, delivered_at = $2, next_attempt_at = NULL, claimed_at = NULL, claimed_by = NULL, last_error = '', updated_at = $3 WHERE id = $4 AND tenant_id = $5 AND status = $6 AND claimed_by = $7`

	return fmt.Sprintf(q, p.Table)
}

func (p PostgresQueryProvider) RescheduleSql() string {
	q := `UPDATE %s SET status = $1, attempts = $2, next_attempt_at = $3, last_error = $4, claimed_at = NULL, claimed_by = NULL, updated_at = $5 WHERE id = $6 AND tenant_id = $7 AND claimed_by = $8`

	return fmt.Sprintf(q, p.Table)
}

func (p PostgresQueryProvider) MarkFailedSql() string {
	q := `UPDATE %s SET status = $1, attempts = $2, last_error = $3, claimed_at = NULL, claimed_by = NULL, updated_at = $4 WHERE id = $5 AND tenant_id = $6`

	return fmt.Sprintf(q, p.Table)
}

func (p PostgresQueryProvider) InsertDeadLetterSql() string {
	q := `INSERT INTO %s (id, tenant_id, event_type, destination, payload, attempts, last_error, failed_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	return fmt.Sprintf(q, p.DeadLetterTable)
}

func (p PostgresQueryProvider) DeleteEntrySql() string {
	return fmt.Sprintf(`DELETE FROM %s WHERE id = $1 AND tenant_id = $2`, p.Table)
}

func (p PostgresQueryProvider) DeleteTerminalSql() string {
	return fmt.Sprintf(`DELETE FROM %s WHERE status IN ($1, $2) AND updated_at <= $3`, p.Table)
}

func (p PostgresQueryProvider) PendingCountSql() string {
	return fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE status IN ($1, $2)`, p.Table)
}

func (p PostgresQueryProvider) TotalCountSql() string {
	return fmt.Sprintf(`SELECT COUNT(*) FROM %s`, p.Table)
}
