package queue

import (
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const rabbitReconnectDelay = 5 * time.Second

// RabbitMQQueue publishes to durable fanout exchanges named after the subject.
type RabbitMQQueue struct {
	url  string
	log  *zap.Logger
	done chan struct{}

	mu       sync.RWMutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	declared map[string]struct{}
}

func NewRabbitMQQueue(url string, log *zap.Logger) (*RabbitMQQueue, error) {
	q := &RabbitMQQueue{
		url:      url,
		log:      log,
		done:     make(chan struct{}),
		declared: make(map[string]struct{}),
	}
	if err := q.connect(); err != nil {
		return nil, err
	}

	go q.monitorConnection()

	log.Info("connected to rabbitmq")
	return q, nil
}

func (q *RabbitMQQueue) connect() error {
	conn, err := amqp.Dial(q.url)
	if err != nil {
		return fmt.Errorf("queue: connect rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("queue: open rabbitmq channel: %w", err)
	}

	q.mu.Lock()
	q.conn = conn
	q.channel = ch
	q.declared = make(map[string]struct{})
	q.mu.Unlock()
	return nil
}

func (q *RabbitMQQueue) Publish(subject string, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.channel == nil {
		return errors.New("queue: rabbitmq channel not available")
	}

	if _, ok := q.declared[subject]; !ok {
		if err := q.channel.ExchangeDeclare(subject, "fanout", true, false, false, false, nil); err != nil {
			return fmt.Errorf("queue: declare exchange: %w", err)
		}
		q.declared[subject] = struct{}{}
	}

	err := q.channel.Publish(subject, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         data,
		Timestamp:    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("queue: publish: %w", err)
	}
	return nil
}

func (q *RabbitMQQueue) Close() error {
	close(q.done)

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.channel != nil {
		_ = q.channel.Close()
		q.channel = nil
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

func (q *RabbitMQQueue) monitorConnection() {
	for {
		q.mu.RLock()
		conn := q.conn
		q.mu.RUnlock()

		closed := conn.NotifyClose(make(chan *amqp.Error, 1))
		select {
		case <-q.done:
			return
		case reason, ok := <-closed:
			if !ok || reason == nil {
				return
			}
			q.log.Warn("rabbitmq connection lost", zap.String("reason", reason.Reason))
		}

		q.mu.Lock()
		q.channel = nil
		q.mu.Unlock()

		for {
			select {
			case <-q.done:
				return
			case <-time.After(rabbitReconnectDelay):
			}
			if err := q.connect(); err != nil {
				q.log.Error("rabbitmq reconnect failed", zap.Error(err))
				continue
			}
			q.log.Info("rabbitmq reconnected")
			break
		}
	}
}
