package notification

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
	"github.com/vladislavdragonenkov/orderflow/internal/metrics"
)

// RetryConfig конфигурация для retry логики.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig возвращает конфигурацию по умолчанию.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
	}
}

func (c RetryConfig) normalized() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.InitialDelay < 0 {
		c.InitialDelay = 0
	}
	if c.BackoffFactor < 1 {
		c.BackoffFactor = 1
	}
	if c.MaxDelay > 0 && c.MaxDelay < c.InitialDelay {
		c.MaxDelay = c.InitialDelay
	}
	return c
}

// Delay возвращает паузу перед попыткой attempt+1 (attempt считается с 1).
// Последовательность пауз не убывает и ограничена MaxDelay.
func (c RetryConfig) Delay(attempt int) time.Duration {
	c = c.normalized()
	delay := c.InitialDelay
	for i := 1; i < attempt; i++ {
		next := time.Duration(float64(delay) * c.BackoffFactor)
		if next < delay { // переполнение
			next = delay
		}
		delay = next
		if c.MaxDelay > 0 && delay >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	if c.MaxDelay > 0 && delay > c.MaxDelay {
		return c.MaxDelay
	}
	return delay
}

// SleepFunc ждёт d или отмены контекста.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type retrySender struct {
	next    Sender
	config  RetryConfig
	sleep   SleepFunc
	logger  *log.Entry
	metrics *metrics.NotificationMetrics
}

// RetryOption настраивает retry-обёртку.
type RetryOption func(*retrySender)

// WithSleep подменяет ожидание между попытками (используется в тестах).
func WithSleep(sleep SleepFunc) RetryOption {
	return func(s *retrySender) {
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

// WithRetryLogger задаёт logger.
func WithRetryLogger(logger *log.Entry) RetryOption {
	return func(s *retrySender) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRetryMetrics задаёт метрики повторов.
func WithRetryMetrics(m *metrics.NotificationMetrics) RetryOption {
	return func(s *retrySender) { s.metrics = m }
}

// WithRetry повторяет неудачную доставку до MaxAttempts раз с экспоненциальной паузой.
// Если все попытки неудачны, результат помечается Exhausted.
func WithRetry(next Sender, config RetryConfig, opts ...RetryOption) Sender {
	s := &retrySender{
		next:   next,
		config: config.normalized(),
		sleep:  sleepContext,
		logger: log.New().WithField("component", "notification-retry"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *retrySender) Channel() domain.Channel { return s.next.Channel() }

func (s *retrySender) Send(ctx context.Context, req domain.NotificationRequest) domain.NotificationResult {
	var last domain.NotificationResult
	attempts := 0

	for attempt := 1; attempt <= s.config.MaxAttempts; attempt++ {
		attempts = attempt
		last = s.next.Send(ctx, req)
		if last.Success {
			if attempt > 1 {
				s.logger.WithFields(log.Fields{
					"channel":  s.next.Channel(),
					"attempt":  attempt,
					"order_id": req.OrderID,
				}).Info("Notification succeeded after retry")
			}
			last.Attempts = attempt
			return last
		}

		if attempt == s.config.MaxAttempts {
			break
		}

		delay := s.config.Delay(attempt)
		s.logger.WithFields(log.Fields{
			"channel": s.next.Channel(),
			"attempt": attempt,
			"delay":   delay,
			"error":   last.Message,
		}).Warn("Notification failed, retrying")
		s.metrics.RecordRetry(string(s.next.Channel()))

		if err := s.sleep(ctx, delay); err != nil {
			last.Message = fmt.Sprintf("%s (retry abandoned: %v)", last.Message, err)
			break
		}
	}

	s.logger.WithFields(log.Fields{
		"channel":      s.next.Channel(),
		"max_attempts": s.config.MaxAttempts,
		"error":        last.Message,
	}).Error("Notification failed after all retry attempts")

	last.Success = false
	last.Exhausted = true
	last.Attempts = attempts
	last.Message = fmt.Sprintf("failed after %d attempts: %s", attempts, last.Message)
	return last
}
