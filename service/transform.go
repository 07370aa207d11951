package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"audio-isolator/constant"
	"audio-isolator/entities"
	"audio-isolator/pkg/capability"
	"audio-isolator/repository"
)

type chunkResult struct {
	index   int
	outputs map[constant.OutputKind]string
}

// RunTransform runs the output's prompt over every registered chunk of its
// upload and joins the per-chunk results into the final artifacts.
func (o *orchestrator) RunTransform(ctx context.Context, outputID string) error {
	logger := zerolog.Ctx(ctx).With().Stringer("job_type", constant.JobTypeTransform).Str("output_id", outputID).Logger()
	ctx = logger.WithContext(ctx)

	job, err := o.claimTransform(ctx, outputID)
	if err != nil || job == nil {
		return err
	}

	logger = logger.With().Str("upload_id", job.UploadID).Logger()
	ctx = logger.WithContext(ctx)

	logger.Info().Msg("processing output")
	patch, err := o.transform(ctx, job)
	if err != nil {
		logger.Error().Err(err).Msg("output failed")
		return o.settleTransform(ctx, outputID, repository.TransformJobPatch{
			Status: constant.JobStatusFailed,
			Error:  ptr(err.Error()),
		})
	}

	patch.Status = constant.JobStatusComplete
	if err := o.settleTransform(ctx, outputID, patch); err != nil {
		return err
	}

	_, err = o.repo.IngestJobs().UpdateWhere(ctx, repository.IngestJobFilter{ID: job.UploadID}, repository.IngestJobPatch{
		LastPrompt: ptr(job.Prompt),
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to update last prompt")
		return err
	}

	logger.Info().Msg("output complete")
	return nil
}

func (o *orchestrator) claimTransform(ctx context.Context, outputID string) (*entities.TransformJob, error) {
	jobs, err := o.repo.TransformJobs().SelectWhere(ctx, repository.TransformJobFilter{ID: outputID})
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		zerolog.Ctx(ctx).Warn().Msg("output not found")
		return nil, ErrNotFound
	}
	if jobs[0].Status.Terminal() {
		zerolog.Ctx(ctx).Info().Str("status", jobs[0].Status.String()).Msg("output already settled")
		return nil, nil
	}

	started, err := o.repo.OutputChunks().SelectWhere(ctx, repository.OutputChunkFilter{OutputID: outputID})
	if err != nil {
		return nil, err
	}
	if len(started) > 0 {
		zerolog.Ctx(ctx).Warn().Int("chunk_count", len(started)).Msg("output was already started")
		return nil, o.settleTransform(ctx, outputID, repository.TransformJobPatch{
			Status: constant.JobStatusFailed,
			Error:  ptr(errInterrupted),
		})
	}
	return jobs[0], nil
}

func (o *orchestrator) transform(ctx context.Context, job *entities.TransformJob) (repository.TransformJobPatch, error) {
	var patch repository.TransformJobPatch

	chunks, err := o.repo.Chunks().SelectWhere(ctx, repository.ChunkFilter{UploadID: job.UploadID}, repository.ChunksByIndex)
	if err != nil {
		return patch, err
	}
	if len(chunks) == 0 {
		return patch, errors.New("upload has no chunks")
	}

	for _, c := range chunks {
		err := o.repo.OutputChunks().Insert(ctx, &entities.OutputChunk{
			OutputID:   job.ID,
			ChunkIndex: c.ChunkIndex,
			Status:     constant.JobStatusPending,
		})
		if err != nil {
			return patch, err
		}
	}

	outputDir := filepath.Join(o.opts.OutputsDir, job.ID)
	results := make([]chunkResult, len(chunks))

	var g errgroup.Group
	g.SetLimit(o.limit())
	for i, c := range chunks {
		g.Go(func() error {
			outputs, err := o.transformChunk(ctx, job, c, outputDir)
			if err != nil {
				return err
			}
			results[i] = chunkResult{index: c.ChunkIndex, outputs: outputs}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return patch, err
	}

	sort.SliceStable(results, func(a, b int) bool { return results[a].index < results[b].index })
	for i, r := range results {
		if r.index != i {
			return patch, fmt.Errorf("chunk results are not contiguous: position %d holds chunk %d", i, r.index)
		}
	}
	zerolog.Ctx(ctx).Info().Int("chunk_count", len(results)).Msg("all chunks transformed")

	locators := map[constant.OutputKind]map[constant.Encoding]*string{}
	for _, kind := range constant.OutputKinds {
		inputs := make([]string, len(results))
		for i, r := range results {
			inputs[i] = r.outputs[kind]
		}

		locators[kind] = map[constant.Encoding]*string{}
		for _, enc := range constant.Encodings {
			name := fmt.Sprintf("%s.%s", kind, enc)
			output := filepath.Join(outputDir, name)
			if err := o.segmenter.Concatenate(ctx, inputs, output, enc); err != nil {
				return patch, err
			}

			locator, err := o.publisher.Publish(ctx, output, job.ID+"/"+name)
			if err != nil {
				return patch, err
			}
			locators[kind][enc] = ptr(locator)
		}
	}

	patch.IsolatedURL = locators[constant.OutputIsolated][constant.EncodingWAV]
	patch.WithoutIsolatedURL = locators[constant.OutputWithoutIsolated][constant.EncodingWAV]
	patch.IsolatedMP3URL = locators[constant.OutputIsolated][constant.EncodingMP3]
	patch.WithoutIsolatedMP3URL = locators[constant.OutputWithoutIsolated][constant.EncodingMP3]
	return patch, nil
}

// transformChunk runs the prompt on one chunk and records the outcome on its
// output chunk. The error is returned so the join sees the first failure.
func (o *orchestrator) transformChunk(ctx context.Context, job *entities.TransformJob, c *entities.Chunk, outputDir string) (map[constant.OutputKind]string, error) {
	logger := zerolog.Ctx(ctx).With().Int("chunk_index", c.ChunkIndex).Logger()
	filter := repository.OutputChunkFilter{OutputID: job.ID, ChunkIndex: repository.Index(c.ChunkIndex)}

	fail := func(err error) (map[constant.OutputKind]string, error) {
		logger.Error().Err(err).Msg("chunk transform failed")
		_, updateErr := o.repo.OutputChunks().UpdateWhere(ctx, filter, repository.OutputChunkPatch{
			Status: constant.JobStatusFailed,
			Error:  ptr(err.Error()),
		})
		if updateErr != nil {
			logger.Error().Err(updateErr).Msg("failed to update output chunk status")
		}
		return nil, err
	}

	if _, err := o.repo.OutputChunks().UpdateWhere(ctx, filter, repository.OutputChunkPatch{Status: constant.JobStatusProcessing}); err != nil {
		return fail(err)
	}
	if c.ExternalID == nil || *c.ExternalID == "" {
		return fail(fmt.Errorf("chunk %d has no external id", c.ChunkIndex))
	}
	logger = logger.With().Str("external_id", *c.ExternalID).Logger()

	callCtx, cancel := o.withCapabilityTimeout(ctx)
	chunkDir := filepath.Join(outputDir, fmt.Sprintf("chunk_%d", c.ChunkIndex))
	outputs, err := o.capability.Transform(callCtx, *c.ExternalID, job.Prompt, chunkDir)
	cancel()
	if err != nil {
		return fail(err)
	}
	if err := capability.CheckOutputs(*c.ExternalID, outputs); err != nil {
		return fail(err)
	}

	if _, err := o.repo.OutputChunks().UpdateWhere(ctx, filter, repository.OutputChunkPatch{Status: constant.JobStatusComplete}); err != nil {
		return fail(err)
	}
	logger.Debug().Msg("chunk transformed")
	return outputs, nil
}

func (o *orchestrator) settleTransform(ctx context.Context, outputID string, patch repository.TransformJobPatch) error {
	_, err := o.repo.TransformJobs().UpdateWhere(ctx, repository.TransformJobFilter{ID: outputID}, patch)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("status", patch.Status.String()).Msg("failed to update output status")
	}
	return err
}
