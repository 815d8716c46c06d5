package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// AMQPPublisher publishes domain events to RabbitMQ. Each subject maps to a
// durable fanout exchange, so any number of collaborators (notifications,
// reports, dashboards) can bind their own queues without coordinating with
// this service.
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	declared map[string]bool
	log      zerolog.Logger
}

func NewAMQPPublisher(url string, log zerolog.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open RabbitMQ channel: %w", err)
	}

	log.Info().Str("url", url).Msg("connected to RabbitMQ")
	return &AMQPPublisher{
		conn:     conn,
		channel:  ch,
		declared: make(map[string]bool),
		log:      log,
	}, nil
}

func (p *AMQPPublisher) Publish(subject string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("amqp: marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel == nil {
		return fmt.Errorf("amqp: channel not available")
	}
	if !p.declared[subject] {
		if err := p.channel.ExchangeDeclare(subject, "fanout", true, false, false, false, nil); err != nil {
			return fmt.Errorf("amqp: declare exchange %s: %w", subject, err)
		}
		p.declared[subject] = true
	}

	err = p.channel.Publish(subject, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        data,
		Timestamp:   time.Now(),
	})
	if err != nil {
		return fmt.Errorf("amqp: publish to %s: %w", subject, err)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			p.log.Warn().Err(err).Msg("error closing RabbitMQ channel")
		}
		p.channel = nil
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			return err
		}
		p.conn = nil
	}
	return nil
}
