package rabbitmq

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Topology names the exchange, queue and dead letter route for one job type.
type Topology struct {
	Exchange      string
	Queue         string
	RoutingKey    string
	DLX           string
	DLQ           string
	DLQRoutingKey string
}

var (
	IngestTopology = Topology{
		Exchange:      "audio_exchange",
		Queue:         "audio_ingest_queue",
		RoutingKey:    "audio.ingest.request",
		DLX:           "audio_exchange_dlx",
		DLQ:           "audio_ingest_queue_dlq",
		DLQRoutingKey: "dlq.audio.ingest.request",
	}
	TransformTopology = Topology{
		Exchange:      "audio_exchange",
		Queue:         "audio_transform_queue",
		RoutingKey:    "audio.transform.request",
		DLX:           "audio_exchange_dlx",
		DLQ:           "audio_transform_queue_dlq",
		DLQRoutingKey: "dlq.audio.transform.request",
	}
)

// declare sets up the exchange, the dead letter exchange and queue, and the
// work queue bound to the routing key.
func (t Topology) declare(ctx context.Context, ch *amqp.Channel, kind string) error {
	err := ch.ExchangeDeclare(t.Exchange, kind, true, false, false, false, nil)
	if err != nil {
		zerolog.Ctx(ctx).Error().Str("exchange", t.Exchange).Msg("failed to declare exchange")
		return err
	}

	err = ch.ExchangeDeclare(t.DLX, kind, true, false, false, false, nil)
	if err != nil {
		zerolog.Ctx(ctx).Error().Str("exchange", t.DLX).Msg("failed to declare dlx")
		return err
	}

	dlq, err := ch.QueueDeclare(t.DLQ, true, false, false, false, nil)
	if err != nil {
		zerolog.Ctx(ctx).Error().Str("queue", t.DLQ).Msg("failed to declare dlq")
		return err
	}

	err = ch.QueueBind(dlq.Name, t.DLQRoutingKey, t.DLX, false, nil)
	if err != nil {
		zerolog.Ctx(ctx).Error().Str("queue", t.DLQ).Msg("failed to bind dlq")
		return err
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    t.DLX,
		"x-dead-letter-routing-key": t.DLQRoutingKey,
	}
	q, err := ch.QueueDeclare(t.Queue, true, false, false, false, args)
	if err != nil {
		zerolog.Ctx(ctx).Error().Str("queue", t.Queue).Msg("failed to declare queue")
		return err
	}

	err = ch.QueueBind(q.Name, t.RoutingKey, t.Exchange, false, nil)
	if err != nil {
		zerolog.Ctx(ctx).Error().Str("queue", t.Queue).Msg("failed to bind queue")
		return err
	}
	return nil
}
