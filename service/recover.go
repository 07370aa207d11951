package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"audio-isolator/constant"
	"audio-isolator/repository"
)

// Recover fails every job a previous process left in flight. Only valid when
// jobs run in-process, since their goroutines died with that process.
func (o *orchestrator) Recover(ctx context.Context) error {
	interrupted := ptr(errInterrupted)
	failed := constant.JobStatusFailed

	uploads, err := o.repo.IngestJobs().UpdateWhere(ctx,
		repository.IngestJobFilter{Status: constant.JobStatusProcessing},
		repository.IngestJobPatch{Status: failed, Error: interrupted})
	chunks, chunkErr := o.repo.Chunks().UpdateWhere(ctx,
		repository.ChunkFilter{Status: constant.JobStatusProcessing},
		repository.ChunkPatch{Status: failed, Error: interrupted})
	outputs, outputErr := o.repo.TransformJobs().UpdateWhere(ctx,
		repository.TransformJobFilter{Status: constant.JobStatusProcessing},
		repository.TransformJobPatch{Status: failed, Error: interrupted})

	var outputChunks int
	var outputChunkErrs []error
	for _, status := range []constant.JobStatus{constant.JobStatusPending, constant.JobStatusProcessing} {
		n, err := o.repo.OutputChunks().UpdateWhere(ctx,
			repository.OutputChunkFilter{Status: status},
			repository.OutputChunkPatch{Status: failed, Error: interrupted})
		outputChunks += n
		outputChunkErrs = append(outputChunkErrs, err)
	}

	if err := errors.Join(append([]error{err, chunkErr, outputErr}, outputChunkErrs...)...); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to recover interrupted jobs")
		return err
	}

	if uploads+outputs > 0 {
		zerolog.Ctx(ctx).Warn().
			Int("uploads", uploads).
			Int("chunks", chunks).
			Int("outputs", outputs).
			Int("output_chunks", outputChunks).
			Msg("failed jobs interrupted by restart")
	}
	return nil
}
