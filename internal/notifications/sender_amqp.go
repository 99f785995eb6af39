package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPSender hands the multicast to a downstream notification service
// through a durable RabbitMQ queue. The broker accepting the message counts
// as success for every token; per-token results are the consumer's concern.
type AMQPSender struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
	logger  *slog.Logger

	mu sync.Mutex // serializes publishes on the shared channel
}

// NewAMQPSender dials url and declares queue.
func NewAMQPSender(url, queue string, logger *slog.Logger) (*AMQPSender, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(
		queue, // queue name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	logger.Info("Connected to RabbitMQ", "queue", queue)
	return &AMQPSender{conn: conn, channel: ch, queue: queue, logger: logger}, nil
}

func (s *AMQPSender) SendMulticast(ctx context.Context, msg Multicast) (*BatchReport, error) {
	if len(msg.Tokens) == 0 {
		return nil, ErrNoTokens
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal multicast: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	err = s.channel.PublishWithContext(
		ctx,
		"",      // exchange
		s.queue, // routing key (queue name)
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
			Type:         notificationType,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("publish multicast: %w", err)
	}
	return &BatchReport{SuccessCount: len(msg.Tokens)}, nil
}

// Close closes the channel and the connection.
func (s *AMQPSender) Close() error {
	if err := s.channel.Close(); err != nil {
		s.logger.Error("failed to close RabbitMQ channel", "error", err)
	}
	return s.conn.Close()
}
