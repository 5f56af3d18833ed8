package notification

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderflow/internal/metrics"
)

const (
	defaultPoolWorkers = 3
	defaultPoolQueue   = 100
)

// Pool — ограниченный пул горутин для доставки уведомлений.
// Если очередь заполнена, задача выполняется в горутине вызывающего.
type Pool struct {
	tasks   chan func()
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	logger  *log.Entry
	metrics *metrics.NotificationMetrics
}

// NewPool запускает workers воркеров с очередью queueSize.
func NewPool(workers, queueSize int, logger *log.Entry, m *metrics.NotificationMetrics) *Pool {
	if workers <= 0 {
		workers = defaultPoolWorkers
	}
	if queueSize < 0 {
		queueSize = defaultPoolQueue
	}
	if logger == nil {
		logger = log.New().WithField("component", "notification-pool")
	}

	p := &Pool{
		tasks:   make(chan func(), queueSize),
		logger:  logger,
		metrics: m,
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		p.metrics.SetQueueDepth(len(p.tasks))
		p.run(task)
	}
}

// Submit ставит задачу в очередь. При переполненной очереди или закрытом пуле
// задача выполняется синхронно.
func (p *Pool) Submit(task func()) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		p.run(task)
		return
	}

	select {
	case p.tasks <- task:
		p.mu.RUnlock()
		p.metrics.SetQueueDepth(len(p.tasks))
	default:
		p.mu.RUnlock()
		p.logger.Warn("Notification queue full, processing synchronously")
		p.metrics.RecordCallerRun()
		p.run(task)
	}
}

func (p *Pool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.WithField("panic", r).Error("notification task panicked")
		}
	}()
	task()
}

// Close перестаёт принимать задачи и дожидается выполнения очереди.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("Notification pool stopped")
}
