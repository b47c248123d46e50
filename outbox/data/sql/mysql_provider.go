package sql

import (
	"fmt"
	"strings"
)

type MysqlQueryProvider struct {
	Table           string
	DeadLetterTable string
	Columns         []string
}

func (m MysqlQueryProvider) InsertEntrySql() string {
	q := `INSERT INTO %s (id, tenant_id, event_type, destination, payload, status, attempts, next_attempt_at, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	return fmt.Sprintf(q, m.Table)
}

func (m MysqlQueryProvider) ReleaseExpiredClaimsSql() string {
	q := `UPDATE %s SET status = ?, claimed_at = NULL, claimed_by = NULL, updated_at = ? WHERE status = ? AND claimed_at < ?`

	return fmt.Sprintf(q, m.Table)
}

func (m MysqlQueryProvider) FetchDueSql(batchSize int) string {
	q := `SELECT %s FROM %s WHERE status = ? AND next_attempt_at <= ? ORDER BY next_attempt_at ASC LIMIT %d`

	return fmt.Sprintf(q, strings.Join(m.Columns, ", "), m.Table, batchSize)
}

func (m MysqlQueryProvider) ClaimEntrySql() string {
	q := `UPDATE %s SET status = ?, claimed_at = ?, claimed_by = ?, updated_at = ? WHERE id = ? AND tenant_id = ? AND status = ? AND claimed_at IS NULL AND claimed_by IS NULL`

	return fmt.Sprintf(q, m.Table)
}

func (m MysqlQueryProvider) MarkCompletedSql() string {
	q := `UPDATE %s SET status = ?, delivered_at = ?, next_attempt_at = NULL, claimed_at = NULL, claimed_by = NULL, last_error = '', updated_at = ? WHERE id = ? AND tenant_id = ? AND status = ? AND claimed_by = ?`

	return fmt.Sprintf(q, m.Table)
}

func (m MysqlQueryProvider) RescheduleSql() string {
	q := `UPDATE %s SET status = ?, attempts = ?, next_attempt_at = ?, last_error = ?, claimed_at = NULL, claimed_by = NULL, updated_at = ? WHERE id = ? AND tenant_id = ? AND claimed_by = ?`

	return fmt.Sprintf(q, m.Table)
}

func (m MysqlQueryProvider) MarkFailedSql() string {
	q := `UPDATE %s SET status = ?, attempts = ?, last_error = ?, claimed_at = NULL, claimed_by = NULL, updated_at = ? WHERE id = ? AND tenant_id = ?`

	return fmt.Sprintf(q, m.Table)
}

func (m MysqlQueryProvider) InsertDeadLetterSql() string {
	q := `INSERT INTO %s (id, tenant_id, event_type, destination, payload, attempts, last_error, failed_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	return fmt.Sprintf(q, m.DeadLetterTable)
}

func (m MysqlQueryProvider) DeleteEntrySql() string {
	return fmt.Sprintf(`DELETE FROM %s WHERE id = ? AND tenant_id = ?`, m.Table)
}

func (m MysqlQueryProvider) DeleteTerminalSql() string {
	return fmt.Sprintf(`DELETE FROM %s WHERE status IN (?, ?) AND updated_at <= ?`, m.Table)
}

func (m MysqlQueryProvider) PendingCountSql() string {
	return fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE status IN (?, ?)`, m.Table)
}

func (m MysqlQueryProvider) TotalCountSql() string {
	return fmt.Sprintf(`SELECT COUNT(*) FROM %s`, m.Table)
}
