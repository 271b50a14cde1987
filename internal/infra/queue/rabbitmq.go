package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"news-publisher/internal/domain"
	"news-publisher/internal/infra/metrics"
)

// RabbitEventPublisher публикует события конвейера в topic exchange. Ключ маршрутизации — имя события.
type RabbitEventPublisher struct {
	url      string
	exchange string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewRabbitEventPublisher подключается к брокеру и объявляет exchange.
func NewRabbitEventPublisher(amqpURL, exchange string) (*RabbitEventPublisher, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if exchange == "" {
		return nil, errors.New("exchange name is empty")
	}
	p := &RabbitEventPublisher{url: amqpURL, exchange: exchange}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *RabbitEventPublisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return fmt.Errorf("declare exchange: %w", err)
	}
	p.conn = conn
	p.ch = ch
	return nil
}

// PublishEvent реализует domain.EventPublisher. При разорванном соединении переподключается один раз.
func (p *RabbitEventPublisher) PublishEvent(ctx context.Context, event domain.PublishEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    event.OccurredAt,
		Type:         event.Event,
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	start := time.Now()
	if p.conn == nil || p.conn.IsClosed() {
		if err := p.connect(); err != nil {
			metrics.ObserveNetworkRequest("rabbitmq", "publish", p.exchange, start, err)
			return err
		}
	}
	err = p.ch.PublishWithContext(ctx, p.exchange, event.Event, false, false, msg)
	metrics.ObserveNetworkRequest("rabbitmq", "publish", p.exchange, start, err)
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Close закрывает соединение.
func (p *RabbitEventPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}
