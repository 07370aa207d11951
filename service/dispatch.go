package service

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"audio-isolator/dto"
	"audio-isolator/pkg/rabbitmq"
)

// Dispatcher hands an accepted job to whatever runs the pipelines.
type Dispatcher interface {
	DispatchIngest(ctx context.Context, msg dto.IngestMessage) error
	DispatchTransform(ctx context.Context, msg dto.TransformMessage) error
	// Close releases the dispatcher once no more jobs will be submitted.
	Close() error
}

// LocalDispatcher runs each job on its own goroutine under the server's root
// context, so jobs outlive the request that submitted them.
type LocalDispatcher struct {
	root         context.Context
	orchestrator Orchestrator
	wg           sync.WaitGroup
}

func NewLocalDispatcher(root context.Context, orchestrator Orchestrator) *LocalDispatcher {
	return &LocalDispatcher{root: root, orchestrator: orchestrator}
}

func (d *LocalDispatcher) DispatchIngest(_ context.Context, msg dto.IngestMessage) error {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.orchestrator.RunIngest(d.root, msg.UploadID, msg.FilePath); err != nil {
			zerolog.Ctx(d.root).Error().Err(err).Str("upload_id", msg.UploadID).Msg("ingest run failed")
		}
	}()
	return nil
}

func (d *LocalDispatcher) DispatchTransform(_ context.Context, msg dto.TransformMessage) error {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.orchestrator.RunTransform(d.root, msg.OutputID); err != nil {
			zerolog.Ctx(d.root).Error().Err(err).Str("output_id", msg.OutputID).Msg("transform run failed")
		}
	}()
	return nil
}

// Wait blocks until every dispatched job has returned.
func (d *LocalDispatcher) Wait() {
	d.wg.Wait()
}

// Close waits for running jobs.
func (d *LocalDispatcher) Close() error {
	d.Wait()
	return nil
}

type queueDispatcher struct {
	publisher rabbitmq.Publisher
}

// NewQueueDispatcher publishes jobs to RabbitMQ for the consumer workers.
func NewQueueDispatcher(publisher rabbitmq.Publisher) Dispatcher {
	return &queueDispatcher{publisher: publisher}
}

func (d *queueDispatcher) DispatchIngest(ctx context.Context, msg dto.IngestMessage) error {
	return d.publisher.Publish(ctx, rabbitmq.IngestTopology, msg)
}

func (d *queueDispatcher) DispatchTransform(ctx context.Context, msg dto.TransformMessage) error {
	return d.publisher.Publish(ctx, rabbitmq.TransformTopology, msg)
}

func (d *queueDispatcher) Close() error {
	return d.publisher.Close()
}
