package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hibiken/asynq"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
)

// Enqueuer is the subset of *asynq.Client used by AsynqSink.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqSink enqueues each event as a task whose type is the event topic.
type AsynqSink struct {
	client Enqueuer
	queue  string
}

func NewAsynqSink(client Enqueuer, queue string) *AsynqSink {
	return &AsynqSink{client: client, queue: queue}
}

func (s *AsynqSink) Publish(ctx context.Context, evt Event) error {
	payload, err := evt.Encode()
	if err != nil {
		return backoff.Permanent(err)
	}
	opts := []asynq.Option{asynq.TaskID(evt.ID), asynq.MaxRetry(10)}
	if s.queue != "" {
		opts = append(opts, asynq.Queue(s.queue))
	}
	_, err = s.client.EnqueueContext(ctx, asynq.NewTask(evt.Topic, payload), opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("events: enqueue %s: %w", evt.Topic, err)
	}
	return nil
}

// RedisSink publishes events on a Redis pub/sub channel named after the topic.
type RedisSink struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisSink(client redis.UniversalClient, prefix string) *RedisSink {
	return &RedisSink{client: client, prefix: prefix}
}

// Channel returns the pub/sub channel used for topic.
func (s *RedisSink) Channel(topic string) string {
	return s.prefix + topic
}

func (s *RedisSink) Publish(ctx context.Context, evt Event) error {
	payload, err := evt.Encode()
	if err != nil {
		return backoff.Permanent(err)
	}
	if err := s.client.Publish(ctx, s.Channel(evt.Topic), payload).Err(); err != nil {
		return fmt.Errorf("events: redis publish %s: %w", evt.Topic, err)
	}
	return nil
}

// AMQPChannel is the subset of *amqp.Channel used by AMQPSink.
type AMQPChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPSink publishes events to a topic exchange using the event topic as routing key.
type AMQPSink struct {
	channel  AMQPChannel
	exchange string
}

func NewAMQPSink(channel AMQPChannel, exchange string) *AMQPSink {
	return &AMQPSink{channel: channel, exchange: exchange}
}

func (s *AMQPSink) Publish(ctx context.Context, evt Event) error {
	payload, err := evt.Encode()
	if err != nil {
		return backoff.Permanent(err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    evt.ID,
		Timestamp:    evt.OccurredAt,
		Type:         evt.Topic,
		Body:         payload,
	}
	if err := s.channel.PublishWithContext(ctx, s.exchange, evt.Topic, false, false, msg); err != nil {
		return fmt.Errorf("events: amqp publish %s: %w", evt.Topic, err)
	}
	return nil
}

// AMQPConnection owns the broker connection behind an AMQPSink.
type AMQPConnection struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// DialAMQP connects to the broker and declares a durable topic exchange.
func DialAMQP(uri, exchange string) (*AMQPConnection, error) {
	conn, err := amqp.DialConfig(uri, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(3 * time.Second),
	})
	if err != nil {
		return nil, fmt.Errorf("events: dial amqp: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("events: open amqp channel: %w", err)
	}
	if err := channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("events: declare exchange %s: %w", exchange, err)
	}
	return &AMQPConnection{conn: conn, channel: channel}, nil
}

// Channel exposes the publishing channel.
func (c *AMQPConnection) Channel() AMQPChannel {
	return c.channel
}

func (c *AMQPConnection) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
