package amqp

import (
	"context"
	"fmt"
	"time"

	"github.com/klokku/budgetly/internal/event_bus"
	"github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"
)

const (
	overspendingRoutingKey = "budget_category.overspent"
	publishTimeout         = 5 * time.Second
)

// Channel is the part of *amqp091.Channel the publisher needs.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// Publisher forwards overspending alerts to a topic exchange.
type Publisher struct {
	conn     *amqp091.Connection
	channel  Channel
	exchange string
}

// NewPublisher dials the broker and declares a durable topic exchange.
func NewPublisher(url, exchange string) (*Publisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	err = channel.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &Publisher{conn: conn, channel: channel, exchange: exchange}, nil
}

// NewPublisherWithChannel publishes through an already open channel.
func NewPublisherWithChannel(channel Channel, exchange string) *Publisher {
	return &Publisher{channel: channel, exchange: exchange}
}

func (p *Publisher) PublishOverspending(ctx context.Context, alert OverspendingAlert) error {
	body, err := alert.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		overspendingRoutingKey,
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    alert.Timestamp,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	log.WithFields(log.Fields{
		"subBudgetId": alert.SubBudgetId,
		"category":    alert.Category,
		"exchange":    p.exchange,
	}).Debug("published overspending alert")
	return nil
}

// Forward subscribes the publisher to overspending events of the bus. The returned func unsubscribes.
func (p *Publisher) Forward(bus *event_bus.EventBus) func() {
	return event_bus.SubscribeTyped(bus, event_bus.BudgetCategoryOverspentType, func(e event_bus.EventT[event_bus.BudgetCategoryOverspent]) error {
		return p.PublishOverspending(e.Context(), NewOverspendingAlert(e.Data, e.Timestamp))
	})
}

func (p *Publisher) Close() error {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
