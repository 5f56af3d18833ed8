package app

import (
	"fmt"
	"strings"
	"time"
)

// Драйверы хранилища.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Config описывает настройки запуска сервиса. Значение сравнимо через ==.
type Config struct {
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool
	SeedDemoData        bool

	// KafkaBrokers — список брокеров через запятую; пусто отключает Kafka.
	KafkaBrokers string
	// EventsViaKafka доставляет события наблюдателям через outbox и Kafka
	// вместо прямого вызова после коммита.
	EventsViaKafka bool

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	OutboxMaxPending   int
	// OutboxParallelism — сколько заказов outbox публикует одновременно.
	OutboxParallelism int

	NotifyWorkers     int
	NotifyQueue       int
	NotifyMaxAttempts int
	NotifyBaseDelay   time.Duration

	AdminName  string
	AdminEmail string
	AdminPhone string

	EventsAsync  bool
	OTLPEndpoint string
}

// DefaultConfig возвращает конфигурацию для локального запуска.
func DefaultConfig() Config {
	return Config{
		GRPCAddr:            ":50051",
		MetricsAddr:         ":9090",
		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		SeedDemoData:        true,
		OutboxPollInterval:  time.Second,
		OutboxBatchSize:     100,
		OutboxMaxAttempts:   3,
		OutboxRetryDelay:    100 * time.Millisecond,
		OutboxMaxPending:    10000,
		OutboxParallelism:   4,
		NotifyWorkers:       3,
		NotifyQueue:         100,
		NotifyMaxAttempts:   3,
		NotifyBaseDelay:     100 * time.Millisecond,
		AdminName:           "Admin",
		EventsAsync:         true,
	}
}

// Brokers возвращает список брокеров Kafka без пустых элементов.
func (c Config) Brokers() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return fmt.Errorf("postgres storage driver requires ORDERFLOW_POSTGRES_DSN")
		}
	default:
		return fmt.Errorf("unsupported storage driver %q (use %s|%s)", c.StorageDriver, StorageDriverMemory, StorageDriverPostgres)
	}
	if c.EventsViaKafka && len(c.Brokers()) == 0 {
		return fmt.Errorf("events via kafka require KAFKA_BROKERS")
	}
	return nil
}
