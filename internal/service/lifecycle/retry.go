package lifecycle

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

// RetryConfig — повторы транзакции перехода при конфликте версий заказа.
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
		InitialDelay:  10 * time.Millisecond,
		MaxDelay:      200 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

// withRetry повторяет fn только при ErrOrderVersionConflict: отказы бизнес-логики
// и прочие ошибки возвращаются сразу.
func (m *Manager) withRetry(ctx context.Context, orderID string, fn func() error) error {
	attempts := m.retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := m.retry.InitialDelay

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil || !domain.IsVersionConflict(err) || attempt == attempts {
			return err
		}

		m.logger.WithFields(log.Fields{
			"order_id": orderID,
			"attempt":  attempt,
			"delay":    delay,
		}).Warn("version conflict detected, retrying")

		if sleepErr := m.sleep(ctx, delay); sleepErr != nil {
			return sleepErr
		}
		delay = time.Duration(float64(delay) * m.retry.BackoffFactor)
		if m.retry.MaxDelay > 0 && delay > m.retry.MaxDelay {
			delay = m.retry.MaxDelay
		}
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
