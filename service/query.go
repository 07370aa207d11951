package service

import (
	"context"
	"fmt"
	"slices"

	"audio-isolator/constant"
	"audio-isolator/dto"
	"audio-isolator/entities"
	"audio-isolator/repository"
)

// QueryService answers status and library reads. It never writes.
type QueryService interface {
	IngestStatus(ctx context.Context, uploadID string) (*dto.IngestStatus, bool, error)
	TransformStatus(ctx context.Context, outputID string) (*dto.TransformStatus, bool, error)
	Library(ctx context.Context, userID string) (*dto.Library, error)
}

type queryService struct {
	repo repository.JobRepository
}

func NewQueryService(repo repository.JobRepository) QueryService {
	return &queryService{repo: repo}
}

func (s *queryService) IngestStatus(ctx context.Context, uploadID string) (*dto.IngestStatus, bool, error) {
	jobs, err := s.repo.IngestJobs().SelectWhere(ctx, repository.IngestJobFilter{ID: uploadID})
	if err != nil || len(jobs) == 0 {
		return nil, false, err
	}
	job := jobs[0]

	chunks, err := s.repo.Chunks().SelectWhere(ctx, repository.ChunkFilter{UploadID: uploadID})
	if err != nil {
		return nil, false, err
	}
	completed := 0
	for _, c := range chunks {
		if c.Status == constant.JobStatusComplete {
			completed++
		}
	}

	filename := job.Filename
	if filename == "" {
		filename = "Untitled"
	}
	return &dto.IngestStatus{
		Status:          job.Status.String(),
		Error:           job.Error,
		Chunks:          len(chunks),
		CompletedChunks: completed,
		DurationSeconds: job.DurationSeconds,
		Filename:        filename,
		LastPrompt:      job.LastPrompt,
	}, true, nil
}

func (s *queryService) TransformStatus(ctx context.Context, outputID string) (*dto.TransformStatus, bool, error) {
	jobs, err := s.repo.TransformJobs().SelectWhere(ctx, repository.TransformJobFilter{ID: outputID})
	if err != nil || len(jobs) == 0 {
		return nil, false, err
	}
	job := jobs[0]

	chunks, err := s.repo.OutputChunks().SelectWhere(ctx, repository.OutputChunkFilter{OutputID: outputID})
	if err != nil {
		return nil, false, err
	}
	completed := 0
	for _, c := range chunks {
		if c.Status == constant.JobStatusComplete {
			completed++
		}
	}

	status := &dto.TransformStatus{
		Status:          job.Status.String(),
		Error:           job.Error,
		Chunks:          len(chunks),
		CompletedChunks: completed,
		UploadID:        job.UploadID,
		Prompt:          job.Prompt,
	}
	if job.Status == constant.JobStatusComplete {
		status.Outputs = &dto.TransformOutputs{
			Isolated:           deref(job.IsolatedURL),
			WithoutIsolated:    deref(job.WithoutIsolatedURL),
			IsolatedMP3:        deref(job.IsolatedMP3URL),
			WithoutIsolatedMP3: deref(job.WithoutIsolatedMP3URL),
		}
	}
	return status, true, nil
}

// Library lists the user's completed uploads with their completed outputs,
// newest first at both levels.
func (s *queryService) Library(ctx context.Context, userID string) (*dto.Library, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id required", ErrPrecondition)
	}

	uploads, err := s.repo.IngestJobs().SelectWhere(ctx,
		repository.IngestJobFilter{UserID: userID, Status: constant.JobStatusComplete},
		repository.IngestJobsByCreatedAt)
	if err != nil {
		return nil, err
	}
	slices.Reverse(uploads)

	library := &dto.Library{Uploads: make([]dto.LibraryUpload, 0, len(uploads))}
	for _, u := range uploads {
		outputs, err := s.repo.TransformJobs().SelectWhere(ctx,
			repository.TransformJobFilter{UploadID: u.ID, Status: constant.JobStatusComplete},
			repository.TransformJobsByCreatedAt)
		if err != nil {
			return nil, err
		}
		slices.Reverse(outputs)

		library.Uploads = append(library.Uploads, dto.LibraryUpload{
			ID:              u.ID,
			Filename:        u.Filename,
			CreatedAt:       u.CreatedAt,
			DurationSeconds: u.DurationSeconds,
			Outputs:         libraryOutputs(outputs),
		})
	}
	return library, nil
}

func libraryOutputs(outputs []*entities.TransformJob) []dto.LibraryOutput {
	out := make([]dto.LibraryOutput, 0, len(outputs))
	for _, o := range outputs {
		out = append(out, dto.LibraryOutput{ID: o.ID, Prompt: o.Prompt, CreatedAt: o.CreatedAt})
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
