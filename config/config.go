package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"peopleops/webhook-outbox-relay/log"

	"github.com/alexflint/go-arg"
)

const (
	MySQL    DbDriver = "mysql"
	Postgres DbDriver = "postgres"
)

type DbDriver string

var supportedDbTypes = map[DbDriver]bool{
	Postgres: true,
	MySQL:    true,
}

// Destination is the resolved connection detail for one logical
// webhook target named by outbox entries.
type Destination struct {
	URL     string            `json:"url"`
	Secret  string            `json:"secret"`
	Headers map[string]string `json:"headers"`
}

type Config struct {
	SkipMigrations      bool     `arg:"--skip-migrations,env:SKIP_MIGRATIONS"`
	DBHost              string   `arg:"--db-host,env:DB_HOST,required"`
	DBPort              uint32   `arg:"--db-port,env:DB_PORT,required"`
	DBUser              string   `arg:"--db-user,env:DB_USER,required"`
	DBPass              string   `arg:"--db-pass,env:DB_PASS,required"`
	DBSchema            string   `arg:"--db-schema,env:DB_SCHEMA,required"`
	DBDriver            DbDriver `arg:"--db-driver,env:DB_DRIVER,required"`
	DBOutboxTable       string   `arg:"--db-outbox-table,env:DB_OUTBOX_TABLE"`
	DBDeadLetterTable   string   `arg:"--db-dead-letter-table,env:DB_DEAD_LETTER_TABLE"`
	TLSEnable           bool     `arg:"--db-tls,env:TLS_ENABLE"`
	TLSSkipVerifyPeer   bool     `arg:"--db-tls-skip-verify-peer,env:TLS_SKIP_VERIFY_PEER"`
	DestinationsJson    string   `arg:"--destinations,env:DESTINATIONS,required"`
	MaxAttempts         int      `arg:"--max-attempts,env:MAX_ATTEMPTS"`
	RetryBaseDelayMs    int      `arg:"--retry-base-delay-ms,env:RETRY_BASE_DELAY_MS"`
	ClaimTTLMs          int      `arg:"--claim-ttl-ms,env:CLAIM_TTL_MS"`
	BatchSize           int      `arg:"--batch-size,env:BATCH_SIZE"`
	DispatchWorkers     int      `arg:"--dispatch-workers,env:DISPATCH_WORKERS"`
	ParallelDispatch    bool     `arg:"--parallel-dispatch,env:PARALLEL_DISPATCH"`
	DispatchIntervalMs  int      `arg:"--dispatch-interval-ms,env:DISPATCH_INTERVAL_MS"`
	DispatchTimeoutMs   int      `arg:"--dispatch-timeout-ms,env:DISPATCH_TIMEOUT_MS"`
	EnqueueMaxAttempts  int      `arg:"--enqueue-max-attempts,env:ENQUEUE_MAX_ATTEMPTS"`
	EnqueueRetryDelayMs int      `arg:"--enqueue-retry-delay-ms,env:ENQUEUE_RETRY_DELAY_MS"`
	BreakerThreshold    uint32   `arg:"--breaker-threshold,env:BREAKER_THRESHOLD"`
	BreakerCooldownMs   int      `arg:"--breaker-cooldown-ms,env:BREAKER_COOLDOWN_MS"`
	CleanupRetentionMs  int      `arg:"--cleanup-retention-ms,env:CLEANUP_RETENTION_MS"`
	CleanupIntervalMs   int      `arg:"--cleanup-interval-ms,env:CLEANUP_INTERVAL_MS"`
	RunCleanup          bool     `arg:"--cleanup,env:RUN_CLEANUP"`
	RunOptimize         bool     `arg:"--optimize,env:RUN_OPTIMIZE"`
	SidecarProxyUrl     string   `arg:"--sidecar-proxy-url,env:SIDECAR_PROXY_URL"`
	MetricsPort         int      `arg:"--metrics-port,env:METRICS_PORT"`

	destinations map[string]Destination `arg:"-"`
}

func NewConfig() (*Config, error) {
	c := newWithDefaults()
	arg.MustParse(c)

	return finalize(c)
}

// NewConfigFromValues builds a config without consulting the process
// environment; it is used by tests and the integration harness.
func NewConfigFromValues(c *Config) (*Config, error) {
	return finalize(c)
}

func newWithDefaults() *Config {
	return &Config{
		DBOutboxTable:       "outbox",
		DBDeadLetterTable:   "outbox_dead_letter",
		MaxAttempts:         5,
		RetryBaseDelayMs:    1000,
		ClaimTTLMs:          600000,
		BatchSize:           250,
		DispatchWorkers:     4,
		ParallelDispatch:    true,
		DispatchIntervalMs:  30000,
		DispatchTimeoutMs:   5000,
		EnqueueMaxAttempts:  3,
		EnqueueRetryDelayMs: 100,
		BreakerThreshold:    5,
		BreakerCooldownMs:   30000,
		CleanupRetentionMs:  86400000,
		CleanupIntervalMs:   3600000,
		MetricsPort:         80,
	}
}

func finalize(c *Config) (*Config, error) {
	if !supportedDbTypes[c.DBDriver] {
		return nil, fmt.Errorf("the DB_DRIVER provided (%s) is not supported", c.DBDriver)
	}

	dests := map[string]Destination{}
	if c.DestinationsJson != "" {
		if err := json.Unmarshal([]byte(c.DestinationsJson), &dests); err != nil {
			return nil, fmt.Errorf("unable to parse the DESTINATIONS value: %s", err)
		}
	}
	for name, d := range dests {
		if d.URL == "" {
			return nil, fmt.Errorf("destination %q has no url configured", name)
		}
	}
	c.destinations = dests

	return c, nil
}

// Destination resolves a logical destination name to its connection details.
func (c *Config) Destination(name string) (Destination, bool) {
	d, ok := c.destinations[name]
	return d, ok
}

// DestinationHosts returns the host:port of every configured destination,
// for readiness probing.
func (c *Config) DestinationHosts() []string {
	var hosts []string
	for _, d := range c.destinations {
		u, err := url.Parse(d.URL)
		if err != nil || u.Host == "" {
			continue
		}
		host := u.Host
		if u.Port() == "" {
			switch u.Scheme {
			case "https":
				host += ":443"
			default:
				host += ":80"
			}
		}
		hosts = append(hosts, host)
	}
	return hosts
}

func (c *Config) GetDispatchInterval() time.Duration {
	return time.Duration(c.DispatchIntervalMs) * time.Millisecond
}

func (c *Config) GetDispatchTimeout() time.Duration {
	return time.Duration(c.DispatchTimeoutMs) * time.Millisecond
}

func (c *Config) GetRetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMs) * time.Millisecond
}

func (c *Config) GetClaimTTL() time.Duration {
	return time.Duration(c.ClaimTTLMs) * time.Millisecond
}

func (c *Config) GetEnqueueRetryDelay() time.Duration {
	return time.Duration(c.EnqueueRetryDelayMs) * time.Millisecond
}

func (c *Config) GetBreakerCooldown() time.Duration {
	return time.Duration(c.BreakerCooldownMs) * time.Millisecond
}

func (c *Config) GetCleanupRetention() time.Duration {
	return time.Duration(c.CleanupRetentionMs) * time.Millisecond
}

func (c *Config) GetCleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalMs) * time.Millisecond
}

// CleanupDisabled reports whether terminal records should be retained forever.
func (c *Config) CleanupDisabled() bool {
	return c.CleanupRetentionMs <= 0
}

// WorkerCount is the effective dispatch pool size, honouring the
// parallel-dispatch switch.
func (c *Config) WorkerCount() int {
	if !c.ParallelDispatch || c.DispatchWorkers < 1 {
		return 1
	}
	return c.DispatchWorkers
}

func (c *Config) GetDSN() string {
	switch c.DBDriver {
	case MySQL:
		tls := "false"
		if c.TLSEnable {
			if c.TLSSkipVerifyPeer {
				tls = "skip-verify"
			} else {
				tls = "true"
			}
		}
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&tls=%s&multiStatements=true", c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBSchema, tls)
	case Postgres:
		sslMode := "disable"
		if c.TLSEnable {
			if c.TLSSkipVerifyPeer {
				sslMode = "require"
			} else {
				sslMode = "verify-full"
			}
		}
		return fmt.Sprintf("%s://%s@%s:%d/%s?sslmode=%s", c.DBDriver, url.UserPassword(c.DBUser, c.DBPass), c.DBHost, c.DBPort, c.DBSchema, sslMode)
	default:
		log.Logger.Fatalf("the DB driver configured (%s) is not supported", c.DBDriver)
		return ""
	}
}

func (c Config) MarshalJSON() ([]byte, error) {
	destNames := make([]string, 0, len(c.destinations))
	for name := range c.destinations {
		destNames = append(destNames, name)
	}

	return json.Marshal(map[string]interface{}{
		"SkipMigrations":      c.SkipMigrations,
		"DBHost":              c.DBHost,
		"DBPort":              c.DBPort,
		"DBUser":              c.DBUser,
		"DBPass":              "xxxxx",
		"DBSchema":            c.DBSchema,
		"DBDriver":            c.DBDriver,
		"DBOutboxTable":       c.DBOutboxTable,
		"DBDeadLetterTable":   c.DBDeadLetterTable,
		"Destinations":        destNames,
		"MaxAttempts":         c.MaxAttempts,
		"RetryBaseDelayMs":    c.RetryBaseDelayMs,
		"ClaimTTLMs":          c.ClaimTTLMs,
		"BatchSize":           c.BatchSize,
		"DispatchWorkers":     c.DispatchWorkers,
		"ParallelDispatch":    c.ParallelDispatch,
		"DispatchIntervalMs":  c.DispatchIntervalMs,
		"DispatchTimeoutMs":   c.DispatchTimeoutMs,
		"EnqueueMaxAttempts":  c.EnqueueMaxAttempts,
		"EnqueueRetryDelayMs": c.EnqueueRetryDelayMs,
		"BreakerThreshold":    c.BreakerThreshold,
		"BreakerCooldownMs":   c.BreakerCooldownMs,
		"CleanupRetentionMs":  c.CleanupRetentionMs,
		"CleanupIntervalMs":   c.CleanupIntervalMs,
		"RunCleanup":          c.RunCleanup,
		"RunOptimize":         c.RunOptimize,
		"SidecarProxyUrl":     c.SidecarProxyUrl,
		"MetricsPort":         c.MetricsPort,
	})
}

func (d DbDriver) MySQL() bool {
	return d == MySQL
}

func (d DbDriver) Postgres() bool {
	return d == Postgres
}

func (d DbDriver) String() string {
	return string(d)
}
