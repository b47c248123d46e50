//go:build integration
// +build integration

package integration

import (
	"context"
	"database/sql"
	"fmt"
	"net/http/httptest"
	"os"
	"time"

	"peopleops/webhook-outbox-relay/config"
	h "peopleops/webhook-outbox-relay/integration/http"
	"peopleops/webhook-outbox-relay/notifier"
	"peopleops/webhook-outbox-relay/notifier/breaker"
	"peopleops/webhook-outbox-relay/outbox"
	"peopleops/webhook-outbox-relay/outbox/data"
	"peopleops/webhook-outbox-relay/outbox/dispatcher"
)

const (
	testModeDocker = "docker"
	testSecret     = "integration-secret"
)

var (
	cfg    *config.Config
	db     *sql.DB
	repo   outbox.Repository
	server *httptest.Server
)

func init() {
	server = httptest.NewServer(h.GetHttpTestHandlerFunc())
	setupConfig()

	db, _ = data.NewDB(cfg)
	purgeOutboxTables()

	repo = outbox.NewRepository(db, cfg)
}

func setupConfig() *config.Config {
	var runInDocker bool
	if os.Getenv("GO_TEST_MODE") == testModeDocker {
		runInDocker = true
	}

	c := &config.Config{
		DBUser:            "webhook-outbox-relay",
		DBPass:            "webhook-outbox-relay",
		DBSchema:          "webhook-outbox-relay",
		DBOutboxTable:     "outbox",
		DBDeadLetterTable: "outbox_dead_letter",
		DestinationsJson: fmt.Sprintf(
			`{"crm": {"url": "%s/hooks/crm", "secret": "%s"}, "payroll": {"url": "%s/hooks/payroll"}}`,
			server.URL, testSecret, server.URL,
		),
		MaxAttempts:        5,
		RetryBaseDelayMs:   1000,
		ClaimTTLMs:         600000,
		BatchSize:          250,
		DispatchWorkers:    4,
		ParallelDispatch:   true,
		DispatchTimeoutMs:  5000,
		CleanupRetentionMs: 3600000,
		SidecarProxyUrl:    server.URL,
	}

	if os.Getenv("DB_DRIVER") == string(config.MySQL) {
		c.DBDriver = config.MySQL
		c.DBPort = 13306
	} else {
		c.DBDriver = config.Postgres
		c.DBPort = 15432
	}

	if runInDocker {
		c.DBHost = c.DBDriver.String()
		c.DBPort = c.DBPort - 10000
	} else {
		c.DBHost = "localhost"
	}

	var err error
	cfg, err = config.NewConfigFromValues(c)
	if err != nil {
		panic(fmt.Sprintf("invalid integration test configuration: %s", err))
	}

	return cfg
}

func runDispatchPass(c *config.Config) {
	breakers := breaker.NewRegistry(c.BreakerThreshold, c.GetBreakerCooldown())
	n := notifier.NewBreaking(notifier.New(c), breakers)

	coordinator := dispatcher.New(c, repo, n, outbox.SystemClock())
	if err := coordinator.RunPass(context.Background()); err != nil {
		panic(fmt.Sprintf("dispatch pass failed: %s", err))
	}
}

func encodeTestEnvelope(body string) []byte {
	payload, err := outbox.NewEnvelope([]byte(body), "", nil).Encode()
	if err != nil {
		panic(fmt.Sprintf("error encoding test envelope: %s", err))
	}

	return payload
}

func dueNow() sql.NullTime {
	return sql.NullTime{Time: time.Now().Add(-time.Second), Valid: true}
}

func inOneHour() sql.NullTime {
	return sql.NullTime{Time: time.Now().Add(time.Hour), Valid: true}
}
