package queue

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSQueue publishes to core NATS subjects.
type NATSQueue struct {
	conn *nats.Conn
	log  *zap.Logger
}

func NewNATSQueue(url string, log *zap.Logger) (*NATSQueue, error) {
	nc, err := nats.Connect(url,
		nats.Name("evgrid-ocpp-server"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("queue: connect nats: %w", err)
	}

	log.Info("connected to nats", zap.String("url", url))
	return &NATSQueue{conn: nc, log: log}, nil
}

func (q *NATSQueue) Publish(subject string, data []byte) error {
	return q.conn.Publish(subject, data)
}

// Close flushes buffered messages before closing the connection.
func (q *NATSQueue) Close() error {
	if err := q.conn.Drain(); err != nil {
		q.conn.Close()
		return err
	}
	return nil
}
