package handler

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/cenkalti/backoff/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"audio-isolator/dto"
	"audio-isolator/service"
)

type ServiceDependencies struct {
	Orchestrator service.Orchestrator
}

// IngestHandler runs an ingest delivered over the queue. Malformed messages
// and unknown uploads are permanent failures and go straight to the DLQ.
func IngestHandler(ctx context.Context, msg amqp.Delivery, deps ServiceDependencies) error {
	var ingest dto.IngestMessage
	if err := json.Unmarshal(msg.Body, &ingest); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to unmarshal ingest message")
		return backoff.Permanent(err)
	}

	zerolog.Ctx(ctx).Info().Str("upload_id", ingest.UploadID).Msg("received ingest message")
	return permanentIfNotFound(deps.Orchestrator.RunIngest(ctx, ingest.UploadID, ingest.FilePath))
}

func TransformHandler(ctx context.Context, msg amqp.Delivery, deps ServiceDependencies) error {
	var transform dto.TransformMessage
	if err := json.Unmarshal(msg.Body, &transform); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to unmarshal transform message")
		return backoff.Permanent(err)
	}

	zerolog.Ctx(ctx).Info().
		Str("output_id", transform.OutputID).
		Str("upload_id", transform.UploadID).
		Msg("received transform message")
	return permanentIfNotFound(deps.Orchestrator.RunTransform(ctx, transform.OutputID))
}

func permanentIfNotFound(err error) error {
	if errors.Is(err, service.ErrNotFound) {
		return backoff.Permanent(err)
	}
	return err
}
