package service

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"audio-isolator/constant"
	"audio-isolator/entities"
	"audio-isolator/pkg/segmenter"
	"audio-isolator/repository"
)

// RunIngest segments the uploaded file, registers every chunk with the
// capability and settles the upload as complete or failed. Failures are
// recorded on the upload; the returned error only reports that the terminal
// state itself could not be stored.
func (o *orchestrator) RunIngest(ctx context.Context, uploadID, filePath string) error {
	logger := zerolog.Ctx(ctx).With().Stringer("job_type", constant.JobTypeIngest).Str("upload_id", uploadID).Logger()
	ctx = logger.WithContext(ctx)

	proceed, err := o.claimIngest(ctx, uploadID)
	if err != nil || !proceed {
		return err
	}

	logger.Info().Msg("processing upload")
	duration, err := o.ingest(ctx, uploadID, filePath)
	if err != nil {
		logger.Error().Err(err).Msg("upload failed")
		return o.settleIngest(ctx, uploadID, repository.IngestJobPatch{
			Status: constant.JobStatusFailed,
			Error:  ptr(err.Error()),
		})
	}

	logger.Info().Float64("duration_seconds", duration).Msg("upload complete")
	return o.settleIngest(ctx, uploadID, repository.IngestJobPatch{
		Status:          constant.JobStatusComplete,
		DurationSeconds: ptr(duration),
	})
}

// claimIngest reports whether the upload is waiting for its first run. A
// redelivered upload that already has chunks is failed as interrupted.
func (o *orchestrator) claimIngest(ctx context.Context, uploadID string) (bool, error) {
	jobs, err := o.repo.IngestJobs().SelectWhere(ctx, repository.IngestJobFilter{ID: uploadID})
	if err != nil {
		return false, err
	}
	if len(jobs) == 0 {
		zerolog.Ctx(ctx).Warn().Msg("upload not found")
		return false, ErrNotFound
	}
	if jobs[0].Status.Terminal() {
		zerolog.Ctx(ctx).Info().Str("status", jobs[0].Status.String()).Msg("upload already settled")
		return false, nil
	}

	chunks, err := o.repo.Chunks().SelectWhere(ctx, repository.ChunkFilter{UploadID: uploadID})
	if err != nil {
		return false, err
	}
	if len(chunks) > 0 {
		zerolog.Ctx(ctx).Warn().Int("chunk_count", len(chunks)).Msg("upload was already started")
		return false, o.settleIngest(ctx, uploadID, repository.IngestJobPatch{
			Status: constant.JobStatusFailed,
			Error:  ptr(errInterrupted),
		})
	}
	return true, nil
}

func (o *orchestrator) ingest(ctx context.Context, uploadID, filePath string) (float64, error) {
	duration, err := o.segmenter.Duration(ctx, filePath)
	if err != nil {
		return 0, err
	}

	chunkDir := filepath.Join(o.opts.UploadsDir, uploadID+"_chunks")
	chunks, err := o.segmenter.Split(ctx, filePath, chunkDir, duration)
	if err != nil {
		return 0, err
	}
	zerolog.Ctx(ctx).Info().Int("chunk_count", len(chunks)).Float64("duration_seconds", duration).Msg("upload segmented")

	for _, c := range chunks {
		err := o.repo.Chunks().Insert(ctx, &entities.Chunk{
			UploadID:   uploadID,
			ChunkIndex: c.Index,
			StartTime:  c.Start,
			EndTime:    c.End,
			Status:     constant.JobStatusProcessing,
		})
		if err != nil {
			return 0, err
		}
	}

	var g errgroup.Group
	g.SetLimit(o.limit())
	for _, c := range chunks {
		g.Go(func() error {
			o.registerChunk(ctx, uploadID, c)
			return nil
		})
	}
	_ = g.Wait()

	stored, err := o.repo.Chunks().SelectWhere(ctx, repository.ChunkFilter{UploadID: uploadID}, repository.ChunksByIndex)
	if err != nil {
		return 0, err
	}
	if len(stored) == 0 {
		return 0, errors.New("no chunks recorded")
	}
	for _, c := range stored {
		if c.Status != constant.JobStatusComplete {
			return 0, errors.New(errSomeChunksFailed)
		}
	}
	return duration, nil
}

// registerChunk records the outcome of one registration on its chunk.
func (o *orchestrator) registerChunk(ctx context.Context, uploadID string, c segmenter.Chunk) {
	logger := zerolog.Ctx(ctx).With().Int("chunk_index", c.Index).Logger()
	filter := repository.ChunkFilter{UploadID: uploadID, ChunkIndex: repository.Index(c.Index)}

	callCtx, cancel := o.withCapabilityTimeout(ctx)
	externalID, err := o.capability.Register(callCtx, c.Path)
	cancel()

	patch := repository.ChunkPatch{Status: constant.JobStatusComplete, ExternalID: &externalID}
	if err != nil {
		logger.Error().Err(err).Msg("chunk registration failed")
		patch = repository.ChunkPatch{Status: constant.JobStatusFailed, Error: ptr(err.Error())}
	} else {
		logger.Debug().Str("external_id", externalID).Msg("chunk registered")
	}

	if _, err := o.repo.Chunks().UpdateWhere(ctx, filter, patch); err != nil {
		logger.Error().Err(err).Msg("failed to update chunk status")
	}
}

func (o *orchestrator) settleIngest(ctx context.Context, uploadID string, patch repository.IngestJobPatch) error {
	_, err := o.repo.IngestJobs().UpdateWhere(ctx, repository.IngestJobFilter{ID: uploadID}, patch)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("status", patch.Status.String()).Msg("failed to update upload status")
	}
	return err
}
