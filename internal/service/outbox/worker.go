package outbox

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
	"github.com/vladislavdragonenkov/orderflow/internal/metrics"
)

const (
	defaultPollInterval   = 1 * time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
	defaultParallelism    = 4
)

const (
	resultSent      = "sent"
	resultRetry     = "retry_error"
	resultFailed    = "failed"
	resultDLQFailed = "dlq_failed"
	resultHeldBack  = "held_back"
)

// FailurePublisher — DLQ-паблишер, умеющий передать причину сбоя вместе с исходным событием.
type FailurePublisher interface {
	PublishFailure(ctx context.Context, event domain.OutboxMessage, reason string) error
}

// WorkerOptions задаёт параметры outbox worker.
type WorkerOptions struct {
	Logger         *log.Entry
	Metrics        *metrics.OutboxMetrics
	DLQPublisher   domain.OutboxPublisher
	PollInterval   time.Duration
	BatchSize      int
	MaxAttempts    int
	RetryBaseDelay time.Duration
	Parallelism    int
}

// Option настраивает Worker.
type Option func(*WorkerOptions)

// WithLogger задаёт logger для воркера.
func WithLogger(logger *log.Entry) Option {
	return func(opts *WorkerOptions) {
		opts.Logger = logger
	}
}

// WithMetrics задаёт метрики публикации и backlog.
func WithMetrics(m *metrics.OutboxMetrics) Option {
	return func(opts *WorkerOptions) {
		opts.Metrics = m
	}
}

// WithDLQPublisher задаёт publisher для отправки в DLQ после исчерпания retry.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(opts *WorkerOptions) {
		opts.DLQPublisher = publisher
	}
}

// WithPollInterval задаёт частоту опроса outbox.
func WithPollInterval(interval time.Duration) Option {
	return func(opts *WorkerOptions) {
		opts.PollInterval = interval
	}
}

// WithBatchSize задаёт размер батча из outbox.
func WithBatchSize(batchSize int) Option {
	return func(opts *WorkerOptions) {
		opts.BatchSize = batchSize
	}
}

// WithMaxAttempts задаёт число попыток публикации перед failed/DLQ.
func WithMaxAttempts(maxAttempts int) Option {
	return func(opts *WorkerOptions) {
		opts.MaxAttempts = maxAttempts
	}
}

// WithRetryBaseDelay задаёт базовый delay для exponential backoff.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(opts *WorkerOptions) {
		opts.RetryBaseDelay = delay
	}
}

// WithParallelism задаёт число агрегатов, публикуемых одновременно.
// События одного агрегата всегда уходят последовательно.
func WithParallelism(n int) Option {
	return func(opts *WorkerOptions) {
		opts.Parallelism = n
	}
}

// Worker публикует pending-сообщения из outbox в брокер.
type Worker struct {
	repo           domain.OutboxRepository
	publisher      domain.OutboxPublisher
	dlqPublisher   domain.OutboxPublisher
	logger         *log.Entry
	metrics        *metrics.OutboxMetrics
	pollInterval   time.Duration
	batchSize      int
	maxAttempts    int
	retryBaseDelay time.Duration
	parallelism    int
}

// NewWorker создаёт outbox worker.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) *Worker {
	opts := WorkerOptions{
		PollInterval:   defaultPollInterval,
		BatchSize:      defaultBatchSize,
		MaxAttempts:    defaultMaxAttempts,
		RetryBaseDelay: defaultRetryBaseDelay,
		Parallelism:    defaultParallelism,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New().WithField("component", "outbox-worker")
	}

	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.RetryBaseDelay < 0 {
		opts.RetryBaseDelay = 0
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = defaultParallelism
	}

	return &Worker{
		repo:           repo,
		publisher:      publisher,
		dlqPublisher:   opts.DLQPublisher,
		logger:         logger,
		metrics:        opts.Metrics,
		pollInterval:   opts.PollInterval,
		batchSize:      opts.BatchSize,
		maxAttempts:    opts.MaxAttempts,
		retryBaseDelay: opts.RetryBaseDelay,
		parallelism:    opts.Parallelism,
	}
}

// Run запускает периодический polling outbox до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox worker is disabled: repo or publisher is nil")
		return
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.ProcessOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.ProcessOnce(ctx)
		}
	}
}

// ProcessOnce выполняет один polling-цикл. Батч делится по агрегатам: разные заказы
// публикуются параллельно, события одного заказа строго в порядке outbox.
func (w *Worker) ProcessOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	w.refreshBacklogMetrics(ctx)

	events, err := w.repo.PullPending(ctx, w.batchSize)
	if err != nil {
		w.logger.WithError(err).Warn("failed to pull pending outbox messages")
		return
	}
	if len(events) == 0 {
		return
	}

	var g errgroup.Group
	g.SetLimit(w.parallelism)
	for _, stream := range groupByAggregate(events) {
		g.Go(func() error {
			w.publishStream(ctx, stream)
			return nil
		})
	}
	_ = g.Wait()

	w.refreshBacklogMetrics(ctx)
}

// groupByAggregate сохраняет порядок первого появления агрегата и порядок событий внутри него.
func groupByAggregate(events []domain.OutboxMessage) [][]domain.OutboxMessage {
	index := make(map[string]int, len(events))
	var streams [][]domain.OutboxMessage
	for _, event := range events {
		key := aggregateKey(event)
		i, ok := index[key]
		if !ok {
			i = len(streams)
			index[key] = i
			streams = append(streams, nil)
		}
		streams[i] = append(streams[i], event)
	}
	return streams
}

func aggregateKey(event domain.OutboxMessage) string {
	if event.AggregateID != "" {
		return event.AggregateType + "/" + event.AggregateID
	}
	return "message/" + event.ID
}

// publishStream публикует события одного агрегата. После сбоя оставшиеся события
// не публикуются, а уходят в DLQ следом: потребитель не увидит статус в обход пропущенного.
func (w *Worker) publishStream(ctx context.Context, stream []domain.OutboxMessage) {
	var blockedBy string
	for _, event := range stream {
		if ctx.Err() != nil {
			return
		}
		logger := w.logger.WithFields(log.Fields{
			"outbox_id":    event.ID,
			"aggregate_id": event.AggregateID,
			"event_type":   event.EventType,
		})

		if blockedBy != "" {
			logger.WithField("blocked_by", blockedBy).Warn("outbox message held back behind failed event")
			w.metrics.RecordAttempt(resultHeldBack)
			w.deadLetter(ctx, logger, event, fmt.Sprintf("preceding event %s of aggregate failed", blockedBy))
			continue
		}

		if err := w.publishWithRetry(ctx, event); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.WithError(err).Error("outbox publish failed after retries")
			w.metrics.RecordAttempt(resultFailed)
			w.deadLetter(ctx, logger, event, err.Error())
			blockedBy = event.ID
			continue
		}

		if err := w.repo.MarkSent(ctx, event.ID); err != nil {
			logger.WithError(err).Warn("failed to mark outbox as sent")
		}
	}
}

func (w *Worker) deadLetter(ctx context.Context, logger *log.Entry, event domain.OutboxMessage, reason string) {
	if err := w.publishToDLQ(ctx, event, reason); err != nil {
		logger.WithError(err).Warn("failed to publish to DLQ")
		w.metrics.RecordAttempt(resultDLQFailed)
	}
	if err := w.repo.MarkFailed(ctx, event.ID); err != nil {
		logger.WithError(err).Warn("failed to mark outbox as failed")
	}
}

func (w *Worker) publishWithRetry(ctx context.Context, event domain.OutboxMessage) error {
	var lastErr error

	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		err := w.publisher.Publish(ctx, event)
		if err == nil {
			w.metrics.RecordAttempt(resultSent)
			return nil
		}
		lastErr = err
		w.metrics.RecordAttempt(resultRetry)

		if attempt >= w.maxAttempts {
			break
		}

		delay := w.retryBackoff(attempt)
		if delay <= 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("publish failed after %d attempts: %w", w.maxAttempts, lastErr)
}

func (w *Worker) refreshBacklogMetrics(ctx context.Context) {
	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("failed to collect outbox backlog stats")
		return
	}
	w.metrics.SetBacklog(stats.PendingCount, stats.OldestPendingAt)
}

func (w *Worker) retryBackoff(attempt int) time.Duration {
	if w.retryBaseDelay <= 0 {
		return 0
	}
	if attempt <= 1 {
		return w.retryBaseDelay
	}

	const maxDuration = time.Duration(1<<63 - 1)
	delay := w.retryBaseDelay
	for i := 1; i < attempt; i++ {
		if delay > maxDuration/2 {
			return maxDuration
		}
		delay *= 2
	}
	return delay
}

// publishToDLQ отправляет событие без изменений, чтобы повторная публикация из DLQ
// давала потребителям тот же конверт. Причина уходит отдельно, если паблишер это умеет.
func (w *Worker) publishToDLQ(ctx context.Context, event domain.OutboxMessage, reason string) error {
	if w.dlqPublisher == nil {
		return nil
	}

	var err error
	if fp, ok := w.dlqPublisher.(FailurePublisher); ok {
		err = fp.PublishFailure(ctx, event, reason)
	} else {
		err = w.dlqPublisher.Publish(ctx, event)
	}
	if err != nil {
		return fmt.Errorf("publish to dlq: %w", err)
	}
	return nil
}
