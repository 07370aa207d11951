package rabbitmq

import (
	"context"
	"encoding/json"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"audio-isolator/config"
)

type Publisher interface {
	Publish(ctx context.Context, topology Topology, message interface{}) error
	Close() error
}

// publisher shares one channel between callers. amqp channels are not safe
// for concurrent publishes, so every publish holds the mutex.
type publisher struct {
	mu       sync.Mutex
	ch       *amqp.Channel
	cfg      *config.RabbitMQ
	declared map[string]bool
}

func NewPublisher(conn *amqp.Connection, cfg *config.RabbitMQ) (Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	return &publisher{ch: ch, cfg: cfg, declared: map[string]bool{}}, nil
}

func (p *publisher) Publish(ctx context.Context, topology Topology, message interface{}) error {
	body, err := json.Marshal(message)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.declared[topology.Queue] {
		if err := topology.declare(ctx, p.ch, p.cfg.Kind); err != nil {
			return err
		}
		p.declared[topology.Queue] = true
	}

	err = p.ch.PublishWithContext(ctx, topology.Exchange, topology.RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("exchange", topology.Exchange).Str("routing_key", topology.RoutingKey).Msg("failed to publish message")
		return err
	}
	return nil
}

func (p *publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.Close()
}
