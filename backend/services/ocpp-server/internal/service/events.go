package service

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"evgrid/backend/libs/queue"
	"evgrid/backend/services/ocpp-server/internal/metrics"
)

// Lifecycle event subjects, relative to the configured prefix.
const (
	SubjectTransactionStarted     = "transaction.started"
	SubjectTransactionUpdated     = "transaction.updated"
	SubjectTransactionEnded       = "transaction.ended"
	SubjectTransactionCostUpdated = "transaction.cost_updated"
)

// TransactionLifecycleEvent is published for downstream billing and session consumers.
type TransactionLifecycleEvent struct {
	StationID     string    `json:"stationId"`
	TenantID      string    `json:"tenantId"`
	TransactionID string    `json:"transactionId"`
	EventType     string    `json:"eventType,omitempty"`
	TriggerReason string    `json:"triggerReason,omitempty"`
	SeqNo         int       `json:"seqNo,omitempty"`
	IsActive      bool      `json:"isActive"`
	TotalKwh      *float64  `json:"totalKwh,omitempty"`
	TotalCost     *float64  `json:"totalCost,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// EventPublisher sends lifecycle events through a circuit breaker. Publishing is best effort.
type EventPublisher struct {
	queue   queue.MessageQueue
	prefix  string
	breaker *gobreaker.CircuitBreaker
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewEventPublisher(q queue.MessageQueue, prefix string, m *metrics.Metrics, logger *zap.Logger) *EventPublisher {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "event-publisher",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("event publisher breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &EventPublisher{
		queue:   q,
		prefix:  strings.Trim(prefix, "."),
		breaker: breaker,
		metrics: m,
		logger:  logger,
	}
}

// Subject returns the fully qualified subject for name.
func (p *EventPublisher) Subject(name string) string {
	if p.prefix == "" {
		return name
	}
	return p.prefix + "." + name
}

// Publish sends event under name. Failures are logged and counted, never returned.
func (p *EventPublisher) Publish(name string, event TransactionLifecycleEvent) {
	if p == nil {
		return
	}
	subject := p.Subject(name)

	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("encode lifecycle event failed", zap.String("subject", subject), zap.Error(err))
		return
	}

	_, err = p.breaker.Execute(func() (interface{}, error) {
		return nil, p.queue.Publish(subject, data)
	})
	if err != nil {
		p.metrics.PublishFailure(subject)
		p.logger.Warn("publish lifecycle event failed",
			zap.String("subject", subject),
			zap.String("station_id", event.StationID),
			zap.String("transaction_id", event.TransactionID),
			zap.Error(err),
		)
	}
}
