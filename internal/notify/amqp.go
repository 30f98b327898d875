package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"pys-backend/internal/components/assert"
	"pys-backend/internal/pull"

	amqp "github.com/rabbitmq/amqp091-go"
)

type AmqpConfig struct {
	Url      string `json:"url" validate:"required"`
	Exchange string `json:"exchange" validate:"required"`
}

// Channel is the part of *amqp.Channel the publisher uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Event is the message body published for every finished pull.
type Event struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"`
	Forced     bool      `json:"forced"`
	Types      int       `json:"types"`
	Segments   int       `json:"segments"`
	Families   int       `json:"families"`
	Classes    int       `json:"classes"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Error      string    `json:"error,omitempty"`
}

func EventOf(result pull.Result) Event {
	return Event{
		ID:         result.ID.String(),
		Status:     string(result.Status),
		Forced:     result.Forced,
		Types:      result.Stats.Types,
		Segments:   result.Stats.Segments,
		Families:   result.Stats.Families,
		Classes:    result.Stats.Classes,
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
		Error:      result.Error,
	}
}

// AmqpPublisher publishes an Event to a durable fanout exchange.
type AmqpPublisher struct {
	ch       Channel
	exchange string
	close    func() error
}

func NewAmqpPublisher(ch Channel, exchange string) (*AmqpPublisher, error) {
	assert.NotNil(ch, "channel")
	assert.NotEmptyStr(exchange, "exchange")

	err := ch.ExchangeDeclare(
		exchange,
		amqp.ExchangeFanout,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &AmqpPublisher{
		ch:       ch,
		exchange: exchange,
		close:    func() error { return nil },
	}, nil
}

// DialAmqp connects to the broker and declares the exchange.
func DialAmqp(cfg AmqpConfig) (*AmqpPublisher, error) {
	conn, err := amqp.Dial(cfg.Url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	publisher, err := NewAmqpPublisher(ch, cfg.Exchange)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	publisher.close = func() error {
		ch.Close()
		return conn.Close()
	}
	return publisher, nil
}

func (p *AmqpPublisher) PullFinished(ctx context.Context, result pull.Result) error {
	body, err := json.Marshal(EventOf(result))
	if err != nil {
		return err
	}
	err = p.ch.PublishWithContext(ctx, p.exchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    result.ID.String(),
		Timestamp:    result.FinishedAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish pull %s: %w", result.ID, err)
	}
	return nil
}

func (p *AmqpPublisher) Close() error {
	return p.close()
}
