package service

import (
	"context"
	"time"

	"audio-isolator/constant"
	"audio-isolator/pkg/capability"
	"audio-isolator/pkg/segmenter"
	"audio-isolator/pkg/storage"
	"audio-isolator/repository"
)

// Segmenter is the media toolkit the pipelines split and join audio with.
type Segmenter interface {
	Duration(ctx context.Context, path string) (float64, error)
	Split(ctx context.Context, path, outDir string, duration float64) ([]segmenter.Chunk, error)
	Concatenate(ctx context.Context, inputs []string, output string, encoding constant.Encoding) error
}

// Orchestrator drives ingest and transform jobs to a terminal state.
type Orchestrator interface {
	RunIngest(ctx context.Context, uploadID, filePath string) error
	RunTransform(ctx context.Context, outputID string) error
	Recover(ctx context.Context) error
}

type Options struct {
	UploadsDir        string
	OutputsDir        string
	CapabilityTimeout time.Duration
	// MaxParallel caps concurrent capability calls per job. Zero means no cap.
	MaxParallel int
}

type orchestrator struct {
	repo       repository.JobRepository
	segmenter  Segmenter
	capability capability.Capability
	publisher  storage.Publisher
	opts       Options
}

func NewOrchestrator(
	repo repository.JobRepository,
	seg Segmenter,
	capability capability.Capability,
	publisher storage.Publisher,
	opts Options,
) Orchestrator {
	return &orchestrator{
		repo:       repo,
		segmenter:  seg,
		capability: capability,
		publisher:  publisher,
		opts:       opts,
	}
}

// withCapabilityTimeout bounds one capability call.
func (o *orchestrator) withCapabilityTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.opts.CapabilityTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.opts.CapabilityTimeout)
}

func (o *orchestrator) limit() int {
	if o.opts.MaxParallel <= 0 {
		return -1
	}
	return o.opts.MaxParallel
}

func ptr[T any](v T) *T {
	return &v
}
