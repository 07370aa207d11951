package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"audio-isolator/constant"
	"audio-isolator/dto"
	"audio-isolator/entities"
	"audio-isolator/repository"
)

// JobService accepts new jobs. Submission returns as soon as the job is
// recorded; the pipelines run through the Dispatcher.
type JobService interface {
	SubmitIngest(ctx context.Context, userID, filename string, content io.Reader) (string, error)
	SubmitTransform(ctx context.Context, userID, uploadID, prompt string) (string, error)
}

type jobService struct {
	repo       repository.JobRepository
	dispatcher Dispatcher
	uploadsDir string
}

func NewJobService(repo repository.JobRepository, dispatcher Dispatcher, uploadsDir string) JobService {
	return &jobService{repo: repo, dispatcher: dispatcher, uploadsDir: uploadsDir}
}

func (s *jobService) SubmitIngest(ctx context.Context, userID, filename string, content io.Reader) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("%w: user id required", ErrPrecondition)
	}
	if content == nil {
		return "", fmt.Errorf("%w: file required", ErrPrecondition)
	}

	uploadID := uuid.NewString()
	logger := zerolog.Ctx(ctx).With().Str("upload_id", uploadID).Logger()

	err := s.repo.IngestJobs().Insert(ctx, &entities.IngestJob{
		ID:       uploadID,
		UserID:   userID,
		Filename: DisplayName(filename),
		Status:   constant.JobStatusProcessing,
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to create upload")
		return "", err
	}

	filePath, err := s.saveUpload(uploadID, filename, content)
	if err != nil {
		logger.Error().Err(err).Msg("failed to store uploaded file")
		s.abandonIngest(ctx, uploadID, err)
		return "", err
	}

	if err := s.dispatcher.DispatchIngest(ctx, dto.IngestMessage{UploadID: uploadID, FilePath: filePath}); err != nil {
		logger.Error().Err(err).Msg("failed to dispatch upload")
		s.abandonIngest(ctx, uploadID, err)
		return "", err
	}

	logger.Info().Str("filename", filename).Msg("upload accepted")
	return uploadID, nil
}

func (s *jobService) saveUpload(uploadID, filename string, content io.Reader) (string, error) {
	if err := os.MkdirAll(s.uploadsDir, os.ModePerm); err != nil {
		return "", err
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		ext = ".mp3"
	}
	filePath := filepath.Join(s.uploadsDir, uploadID+ext)

	f, err := os.Create(filePath)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, content); err != nil {
		f.Close()
		return "", err
	}
	return filePath, f.Close()
}

func (s *jobService) abandonIngest(ctx context.Context, uploadID string, cause error) {
	_, err := s.repo.IngestJobs().UpdateWhere(ctx, repository.IngestJobFilter{ID: uploadID}, repository.IngestJobPatch{
		Status: constant.JobStatusFailed,
		Error:  ptr(cause.Error()),
	})
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("upload_id", uploadID).Msg("failed to update upload status")
	}
}

func (s *jobService) SubmitTransform(ctx context.Context, userID, uploadID, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	switch {
	case userID == "":
		return "", fmt.Errorf("%w: user id required", ErrPrecondition)
	case uploadID == "":
		return "", fmt.Errorf("%w: upload id required", ErrPrecondition)
	case prompt == "":
		return "", fmt.Errorf("%w: prompt required", ErrPrecondition)
	}

	uploads, err := s.repo.IngestJobs().SelectWhere(ctx, repository.IngestJobFilter{ID: uploadID})
	if err != nil {
		return "", err
	}
	if len(uploads) == 0 {
		return "", fmt.Errorf("upload %s: %w", uploadID, ErrNotFound)
	}
	if uploads[0].Status != constant.JobStatusComplete {
		return "", fmt.Errorf("%w: upload not complete", ErrPrecondition)
	}

	outputID := uuid.NewString()
	logger := zerolog.Ctx(ctx).With().Str("output_id", outputID).Str("upload_id", uploadID).Logger()

	err = s.repo.TransformJobs().Insert(ctx, &entities.TransformJob{
		ID:       outputID,
		UploadID: uploadID,
		UserID:   userID,
		Prompt:   prompt,
		Status:   constant.JobStatusProcessing,
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to create output")
		return "", err
	}

	if err := s.dispatcher.DispatchTransform(ctx, dto.TransformMessage{OutputID: outputID, UploadID: uploadID, Prompt: prompt}); err != nil {
		logger.Error().Err(err).Msg("failed to dispatch output")
		_, updateErr := s.repo.TransformJobs().UpdateWhere(ctx, repository.TransformJobFilter{ID: outputID}, repository.TransformJobPatch{
			Status: constant.JobStatusFailed,
			Error:  ptr(err.Error()),
		})
		if updateErr != nil {
			logger.Error().Err(updateErr).Msg("failed to update output status")
		}
		return "", err
	}

	logger.Info().Msg("output accepted")
	return outputID, nil
}

// DisplayName strips the final extension from an uploaded file name.
func DisplayName(filename string) string {
	name := filepath.Base(filename)
	if name == "." || name == string(filepath.Separator) {
		name = ""
	}
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return "Untitled"
	}
	return name
}
