// Package queue_publisher publishes booking events to RabbitMQ.  Callers
// publish after the change is stored and treat failures as non-fatal.
package queue_publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/labstack/gommon/log"
	amqp "github.com/rabbitmq/amqp091-go"

	q "github.com/iliyamo/playspot/internal/queue"
)

// Publisher dials the broker for every message.  Booking traffic is low
// enough that a long-lived channel with its own reconnect logic is not
// worth carrying.
type Publisher struct {
	URL    string
	logger *log.Logger
}

func New(url string) *Publisher {
	return &Publisher{URL: url, logger: log.New("publisher")}
}

func (p *Publisher) PublishBookingConfirmed(ctx context.Context, ev q.BookingConfirmedEvent) error {
	return p.publish(ctx, q.BookingConfirmedQueue, ev)
}

func (p *Publisher) PublishBookingCancelled(ctx context.Context, ev q.BookingCancelledEvent) error {
	return p.publish(ctx, q.BookingCancelledQueue, ev)
}

func (p *Publisher) publish(ctx context.Context, queue string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	conn, err := amqp.Dial(p.URL)
	if err != nil {
		p.logger.Warnf("dial failed: %v", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", queue, err)
	}
	err = ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		p.logger.Warnf("publish to %s failed: %v", queue, err)
		return err
	}
	return nil
}
