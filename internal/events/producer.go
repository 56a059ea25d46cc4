// internal/events/producer.go
//
// RabbitMQ 事件發送端。連不上 RabbitMQ（或沒設定 RABBITMQ_URL）時改用 Fallback，
// ATM 交易本身不受影響，只是不發事件。
package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// Publisher is the interface implemented by types that can publish events.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body any) error
	Close()
}

// Producer holds the RabbitMQ connection and channel for publishing messages.
// amqp091 的 Channel 不能同時被多個 goroutine 發送，所以以 mu 序列化。
type Producer struct {
	mu       sync.Mutex
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	declared map[string]bool
	log      *slog.Logger
}

// Fallback is a no-op publisher used when RabbitMQ is unavailable at startup.
type Fallback struct {
	Log *slog.Logger
}

func (f *Fallback) Publish(ctx context.Context, exchange, routingKey string, body any) error {
	if f.Log != nil {
		f.Log.DebugContext(ctx, "publish skipped", "mode", "fallback", "exchange", exchange, "routing_key", routingKey)
	}
	return nil
}

func (f *Fallback) Close() {}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewProducer dials RabbitMQ with a bounded timeout and opens a channel.
func NewProducer(amqpURL string, logger *slog.Logger) (*Producer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}
	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{
		conn:     conn,
		channel:  ch,
		declared: make(map[string]bool),
		log:      logger.With("component", "rabbitmq_producer"),
	}, nil
}

// Publish 將 body 以 JSON 發到 topic exchange；失敗時重開 channel 再試一次。
func (p *Producer) Publish(ctx context.Context, exchange, routingKey string, body any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return err
	}
	msg := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		Body:         jsonBody,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.publishLocked(ctx, exchange, routingKey, msg)
	if err == nil {
		return nil
	}
	p.log.WarnContext(ctx, "publish failed, reopening channel", "exchange", exchange, "routing_key", routingKey, "err", err)
	if rerr := p.reopenLocked(); rerr != nil {
		return errors.Join(err, rerr)
	}
	return p.publishLocked(ctx, exchange, routingKey, msg)
}

func (p *Producer) publishLocked(ctx context.Context, exchange, routingKey string, msg amqp091.Publishing) error {
	if !p.declared[exchange] {
		if err := p.channel.ExchangeDeclare(
			exchange, // name
			"topic",  // type
			true,     // durable
			false,    // autoDelete
			false,    // internal
			false,    // noWait
			nil,      // args
		); err != nil {
			return err
		}
		p.declared[exchange] = true
	}
	return p.channel.PublishWithContext(ctx, exchange, routingKey, false, false, msg)
}

func (p *Producer) reopenLocked() error {
	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	if p.channel != nil {
		p.channel.Close()
	}
	p.channel = ch
	clear(p.declared)
	return nil
}

// Close gracefully closes the channel and connection to RabbitMQ.
func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
