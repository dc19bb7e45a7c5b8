package errorsink

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher is the part of *amqp.Channel used by AMQPSink
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPSink publishes diverted records to a RabbitMQ exchange
type AMQPSink struct {
	publisher  Publisher
	exchange   string
	routingKey string
	conn       *amqp.Connection
}

func NewAMQPSink(publisher Publisher, exchange, routingKey string) *AMQPSink {
	return &AMQPSink{
		publisher:  publisher,
		exchange:   exchange,
		routingKey: routingKey,
	}
}

// DialAMQP connects to the broker at url and declares a durable queue, which diverted records are
// published to through the default exchange
func DialAMQP(url, queue string) (*AMQPSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // arguments
	); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}
	s := NewAMQPSink(ch, "", queue)
	s.conn = conn
	return s, nil
}

func (s *AMQPSink) Emit(ctx context.Context, entry Entry) error {
	body, err := MarshalEntry(entry)
	if err != nil {
		return err
	}
	err = s.publisher.PublishWithContext(ctx,
		s.exchange,
		s.routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.NewString(),
			Timestamp:    entry.Time,
			Type:         string(entry.Reason),
			Body:         body,
		},
	)
	if err != nil {
		slog.Error("errorsink.AMQPSink publish failed", "exchange", s.exchange, "key", s.routingKey, "error", err)
		return fmt.Errorf("failed to publish diverted record: %w", err)
	}
	return nil
}

func (s *AMQPSink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
