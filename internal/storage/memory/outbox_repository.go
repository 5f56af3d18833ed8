package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

const (
	outboxStatusPending = "pending"
	outboxStatusSent    = "sent"
	outboxStatusFailed  = "failed"
	outboxStatusDropped = "dropped"
)

// outboxRecord хранит сообщение и служебные поля для in-memory реализации.
type outboxRecord struct {
	msg        domain.OutboxMessage
	status     string
	attemptCnt int
	createdAt  time.Time
	updatedAt  time.Time
}

// outboxLog — in-memory transactional outbox в порядке добавления.
// Если pending-записей больше maxPending, самые старые помечаются dropped.
type outboxLog struct {
	mu         sync.RWMutex
	records    []*outboxRecord
	index      map[string]*outboxRecord
	maxPending int
	dropped    int
	logger     *log.Entry
}

func newOutboxLog(maxPending int) *outboxLog {
	return &outboxLog{
		index:      make(map[string]*outboxRecord),
		maxPending: maxPending,
		logger:     log.New().WithField("component", "memory-outbox"),
	}
}

func withOutboxID(msg domain.OutboxMessage) domain.OutboxMessage {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	return msg
}

// Enqueue сохраняет событие со статусом `pending` и возвращает его идентификатор.
func (r *outboxLog) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	msg = withOutboxID(msg)
	r.enqueue(msg)
	return msg, nil
}

func (r *outboxLog) enqueue(msg domain.OutboxMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	record := &outboxRecord{msg: msg, status: outboxStatusPending, createdAt: now, updatedAt: now}
	r.records = append(r.records, record)
	r.index[msg.ID] = record
	r.trimLocked()
}

func (r *outboxLog) trimLocked() {
	pending := 0
	for _, rec := range r.records {
		if rec.status == outboxStatusPending {
			pending++
		}
	}
	for _, rec := range r.records {
		if pending <= r.maxPending {
			break
		}
		if rec.status == outboxStatusPending {
			rec.status = outboxStatusDropped
			r.dropped++
			pending--
			r.logger.WithFields(log.Fields{
				"outbox_id":   rec.msg.ID,
				"event_type":  rec.msg.EventType,
				"max_pending": r.maxPending,
			}).Warn("outbox backlog limit reached, dropping oldest pending message")
		}
	}

	// Завершённые записи больше не нужны.
	kept := r.records[:0]
	for _, rec := range r.records {
		if rec.status == outboxStatusPending {
			kept = append(kept, rec)
			continue
		}
		delete(r.index, rec.msg.ID)
	}
	r.records = kept
}

// PullPending возвращает до limit сообщений со статусом `pending` в порядке добавления.
func (r *outboxLog) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	result := make([]domain.OutboxMessage, 0, limit)
	for _, rec := range r.records {
		if rec.status != outboxStatusPending {
			continue
		}
		result = append(result, rec.msg)
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

// Stats возвращает размер backlog и возраст самой старой записи.
func (r *outboxLog) Stats(_ context.Context) (domain.OutboxStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stats domain.OutboxStats
	for _, rec := range r.records {
		if rec.status != outboxStatusPending {
			continue
		}
		stats.PendingCount++
		if stats.OldestPendingAt.IsZero() || rec.createdAt.Before(stats.OldestPendingAt) {
			stats.OldestPendingAt = rec.createdAt
		}
	}
	return stats, nil
}

// MarkSent обновляет статус события после успешной публикации.
func (r *outboxLog) MarkSent(_ context.Context, id string) error {
	return r.mark(id, outboxStatusSent)
}

// MarkFailed фиксирует ошибку публикации.
func (r *outboxLog) MarkFailed(_ context.Context, id string) error {
	return r.mark(id, outboxStatusFailed)
}

func (r *outboxLog) mark(id, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.index[id]
	if !ok {
		return domain.ErrOutboxPublish
	}
	record.status = status
	record.attemptCnt++
	record.updatedAt = time.Now().UTC()
	r.trimLocked()
	return nil
}

// Dropped возвращает число pending-сообщений, вытесненных из-за лимита.
func (r *outboxLog) Dropped() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dropped
}

var _ domain.OutboxRepository = (*outboxLog)(nil)
