package events

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

// securityRelevant — статусы, смена на которые дублируется в security-канал.
var securityRelevant = map[domain.OrderStatus]bool{
	domain.OrderStatusPending:   true,
	domain.OrderStatusConfirmed: true,
	domain.OrderStatusShipping:  true,
	domain.OrderStatusDelivered: true,
	domain.OrderStatusCompleted: true,
	domain.OrderStatusCancelled: true,
}

// AuditLogger пишет каждый переход в business-лог, а значимые ещё и в security-лог.
type AuditLogger struct {
	logger *log.Entry
	now    func() time.Time
}

// NewAuditLogger создаёт наблюдателя аудита.
func NewAuditLogger(logger *log.Entry) *AuditLogger {
	if logger == nil {
		logger = log.New().WithField("component", "audit")
	}
	return &AuditLogger{logger: logger, now: time.Now}
}

func (o *AuditLogger) Name() string { return "audit-logger" }

func (o *AuditLogger) Handle(_ context.Context, event domain.OrderStatusChangedEvent) error {
	fields := log.Fields{
		"entity_type": "Order",
		"entity_id":   event.OrderID,
		"customer_id": event.CustomerID,
		"old_status":  event.OldStatus,
		"new_status":  event.NewStatus,
		"reason":      event.Reason,
		"order_total": event.OrderTotal.String(),
	}

	o.logger.WithFields(fields).WithField("business_event", "ORDER_STATUS_CHANGED").Info("order status changed")

	if IsSecurityRelevant(event) {
		o.logger.WithFields(fields).WithField("security_event", "ORDER_STATUS_SECURITY").Warn("security relevant status change")
	}

	if !event.Timestamp.IsZero() {
		o.logger.WithFields(log.Fields{
			"operation":   "orderStatusChange",
			"entity_id":   event.OrderID,
			"duration_ms": o.now().Sub(event.Timestamp).Milliseconds(),
		}).Debug("status change dispatch latency")
	}
	return nil
}

// IsSecurityRelevant сообщает, нужно ли дублировать переход в security-лог.
func IsSecurityRelevant(event domain.OrderStatusChangedEvent) bool {
	if event.OldStatus == domain.OrderStatusNew || event.OldStatus == "" {
		return securityRelevant[event.NewStatus] && event.NewStatus != domain.OrderStatusCancelled
	}
	return securityRelevant[event.NewStatus]
}
