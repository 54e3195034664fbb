package queue

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Supported broker drivers.
const (
	DriverNone     = "none"
	DriverNATS     = "nats"
	DriverRabbitMQ = "rabbitmq"
)

// MessageQueue publishes opaque payloads to a named subject (NATS) or exchange (RabbitMQ).
type MessageQueue interface {
	Publish(subject string, data []byte) error
	Close() error
}

// New connects to the broker selected by driver.
func New(driver, url string, log *zap.Logger) (MessageQueue, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverNone:
		return Noop{}, nil
	case DriverNATS:
		q, err := NewNATSQueue(url, log)
		if err != nil {
			return nil, err
		}
		return q, nil
	case DriverRabbitMQ:
		q, err := NewRabbitMQQueue(url, log)
		if err != nil {
			return nil, err
		}
		return q, nil
	default:
		return nil, fmt.Errorf("queue: unknown driver %q", driver)
	}
}

// Noop discards everything.
type Noop struct{}

func (Noop) Publish(string, []byte) error { return nil }

func (Noop) Close() error { return nil }
