package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

// CircuitState — состояние circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// CircuitBreaker размыкает канал после maxFailures подряд и пробует снова через resetTimeout.
type CircuitBreaker struct {
	mu           sync.Mutex
	maxFailures  int
	resetTimeout time.Duration
	now          func() time.Time

	failures    int
	lastFailure time.Time
	state       CircuitState
	logger      *log.Entry
}

// NewCircuitBreaker создаёт новый circuit breaker.
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration, logger *log.Entry) *CircuitBreaker {
	if logger == nil {
		logger = log.New().WithField("component", "circuit-breaker")
	}
	if maxFailures <= 0 {
		maxFailures = 5
	}

	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		now:          time.Now,
		state:        CircuitClosed,
		logger:       logger,
	}
}

// State возвращает текущее состояние.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// allow решает, можно ли выполнить вызов.
func (cb *CircuitBreaker) allow(operation string) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != CircuitOpen {
		return true
	}
	if cb.now().Sub(cb.lastFailure) > cb.resetTimeout {
		cb.state = CircuitHalfOpen
		cb.logger.WithField("operation", operation).Info("Circuit breaker half-open")
		return true
	}
	return false
}

func (cb *CircuitBreaker) record(operation string, success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !success {
		cb.failures++
		cb.lastFailure = cb.now()

		if cb.state == CircuitHalfOpen || cb.failures >= cb.maxFailures {
			if cb.state != CircuitOpen {
				cb.logger.WithFields(log.Fields{
					"operation": operation,
					"failures":  cb.failures,
				}).Warn("Circuit breaker opened")
			}
			cb.state = CircuitOpen
		}
		return
	}

	if cb.state == CircuitHalfOpen {
		cb.logger.WithField("operation", operation).Info("Circuit breaker closed")
	}
	cb.state = CircuitClosed
	cb.failures = 0
}

type breakerSender struct {
	next    Sender
	breaker *CircuitBreaker
}

// WithBreaker защищает отправитель circuit breaker. При разомкнутой цепи канал не вызывается.
func WithBreaker(next Sender, breaker *CircuitBreaker) Sender {
	if breaker == nil {
		return next
	}
	return &breakerSender{next: next, breaker: breaker}
}

func (s *breakerSender) Channel() domain.Channel { return s.next.Channel() }

func (s *breakerSender) Send(ctx context.Context, req domain.NotificationRequest) domain.NotificationResult {
	op := string(s.next.Channel())
	if !s.breaker.allow(op) {
		return domain.NotificationResult{
			Channel:   s.next.Channel(),
			Recipient: req.Recipient,
			Message:   fmt.Sprintf("%s failed: circuit breaker is open", op),
			Timestamp: time.Now().UTC(),
			Attempts:  1,
		}
	}
	res := s.next.Send(ctx, req)
	s.breaker.record(op, res.Success)
	return res
}
