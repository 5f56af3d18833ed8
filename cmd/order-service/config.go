package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/orderflow/internal/app"
)

const (
	envGRPCAddr            = "ORDERFLOW_GRPC_ADDR"
	envMetricsAddr         = "ORDERFLOW_METRICS_ADDR"
	envStorageDriver       = "ORDERFLOW_STORAGE_DRIVER"
	envPostgresDSN         = "ORDERFLOW_POSTGRES_DSN"
	envPostgresAutoMigrate = "ORDERFLOW_POSTGRES_AUTO_MIGRATE"
	envSeedDemoData        = "ORDERFLOW_SEED_DEMO_DATA"
	envKafkaBrokers        = "KAFKA_BROKERS"
	envEventsViaKafka      = "ORDERFLOW_EVENTS_VIA_KAFKA"
	envOutboxPollInterval  = "ORDERFLOW_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize     = "ORDERFLOW_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts   = "ORDERFLOW_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay    = "ORDERFLOW_OUTBOX_RETRY_DELAY"
	envOutboxMaxPending    = "ORDERFLOW_OUTBOX_MAX_PENDING"
	envOutboxParallelism   = "ORDERFLOW_OUTBOX_PARALLELISM"
	envNotifyWorkers       = "ORDERFLOW_NOTIFY_WORKERS"
	envNotifyQueue         = "ORDERFLOW_NOTIFY_QUEUE"
	envNotifyMaxAttempts   = "ORDERFLOW_NOTIFY_MAX_ATTEMPTS"
	envNotifyBaseDelay     = "ORDERFLOW_NOTIFY_BASE_DELAY"
	envAdminName           = "ORDERFLOW_ADMIN_NAME"
	envAdminEmail          = "ORDERFLOW_ADMIN_EMAIL"
	envAdminPhone          = "ORDERFLOW_ADMIN_PHONE"
	envEventsAsync         = "ORDERFLOW_EVENTS_ASYNC"
	envOTLPEndpoint        = "OTEL_EXPORTER_OTLP_ENDPOINT"
	envLogFormat           = "ORDERFLOW_LOG_FORMAT"
	envLogLevel            = "ORDERFLOW_LOG_LEVEL"
)

// envLookup совместим с os.LookupEnv.
type envLookup func(key string) (string, bool)

// readConfigFromEnv накладывает переменные окружения на конфигурацию по умолчанию.
// Некорректные значения не применяются и возвращаются предупреждениями.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string

	warn := func(key, value string, err error) {
		warnings = append(warnings, fmt.Sprintf("%s=%q ignored: %v", key, value, err))
	}
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	boolean := func(key string, dst *bool) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseBool(v)
		if err != nil {
			warn(key, v, err)
			return
		}
		*dst = parsed
	}
	integer := func(key string, dst *int, valid func(int) bool, rule string) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseInt(v, valid, rule)
		if err != nil {
			warn(key, v, err)
			return
		}
		*dst = parsed
	}
	duration := func(key string, dst *time.Duration, valid func(time.Duration) bool, rule string) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseDuration(v, valid, rule)
		if err != nil {
			warn(key, v, err)
			return
		}
		*dst = parsed
	}

	positive := func(v int) bool { return v > 0 }
	nonNegative := func(v int) bool { return v >= 0 }
	positiveDuration := func(v time.Duration) bool { return v > 0 }
	nonNegativeDuration := func(v time.Duration) bool { return v >= 0 }

	str(envGRPCAddr, &cfg.GRPCAddr)
	str(envMetricsAddr, &cfg.MetricsAddr)
	str(envStorageDriver, &cfg.StorageDriver)
	cfg.StorageDriver = strings.ToLower(cfg.StorageDriver)
	str(envPostgresDSN, &cfg.PostgresDSN)
	boolean(envPostgresAutoMigrate, &cfg.PostgresAutoMigrate)
	boolean(envSeedDemoData, &cfg.SeedDemoData)

	str(envKafkaBrokers, &cfg.KafkaBrokers)
	boolean(envEventsViaKafka, &cfg.EventsViaKafka)

	duration(envOutboxPollInterval, &cfg.OutboxPollInterval, positiveDuration, "must be > 0")
	integer(envOutboxBatchSize, &cfg.OutboxBatchSize, positive, "must be > 0")
	integer(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts, positive, "must be > 0")
	duration(envOutboxRetryDelay, &cfg.OutboxRetryDelay, nonNegativeDuration, "must be >= 0")
	integer(envOutboxMaxPending, &cfg.OutboxMaxPending, nonNegative, "must be >= 0")
	integer(envOutboxParallelism, &cfg.OutboxParallelism, positive, "must be > 0")

	integer(envNotifyWorkers, &cfg.NotifyWorkers, positive, "must be > 0")
	integer(envNotifyQueue, &cfg.NotifyQueue, positive, "must be > 0")
	integer(envNotifyMaxAttempts, &cfg.NotifyMaxAttempts, positive, "must be > 0")
	duration(envNotifyBaseDelay, &cfg.NotifyBaseDelay, nonNegativeDuration, "must be >= 0")

	str(envAdminName, &cfg.AdminName)
	str(envAdminEmail, &cfg.AdminEmail)
	str(envAdminPhone, &cfg.AdminPhone)

	boolean(envEventsAsync, &cfg.EventsAsync)
	str(envOTLPEndpoint, &cfg.OTLPEndpoint)

	return cfg, warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q: %w", raw, err)
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("value %d %s", value, rule)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("value %s %s", value, rule)
	}
	return value, nil
}
