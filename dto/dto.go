package dto

import "time"

// IngestMessage asks a worker to segment and register an uploaded file.
type IngestMessage struct {
	UploadID string `json:"uploadId"`
	FilePath string `json:"filePath"`
}

// TransformMessage asks a worker to run a prompt over a registered upload.
type TransformMessage struct {
	OutputID string `json:"outputId"`
	UploadID string `json:"uploadId"`
	Prompt   string `json:"prompt"`
}

type UploadResponse struct {
	UploadID string `json:"upload_id"`
}

type ProcessRequest struct {
	UploadID string `json:"upload_id" binding:"required"`
	Prompt   string `json:"prompt" binding:"required"`
}

type ProcessResponse struct {
	OutputID string `json:"output_id"`
}

type IngestStatus struct {
	Status          string   `json:"status"`
	Error           *string  `json:"error"`
	Chunks          int      `json:"chunks"`
	CompletedChunks int      `json:"completed_chunks"`
	DurationSeconds *float64 `json:"duration_seconds"`
	Filename        string   `json:"filename"`
	LastPrompt      *string  `json:"last_prompt"`
}

type TransformOutputs struct {
	Isolated           string `json:"isolated"`
	WithoutIsolated    string `json:"without_isolated"`
	IsolatedMP3        string `json:"isolated_mp3"`
	WithoutIsolatedMP3 string `json:"without_isolated_mp3"`
}

type TransformStatus struct {
	Status          string            `json:"status"`
	Error           *string           `json:"error"`
	Chunks          int               `json:"chunks"`
	CompletedChunks int               `json:"completed_chunks"`
	UploadID        string            `json:"upload_id"`
	Prompt          string            `json:"prompt"`
	Outputs         *TransformOutputs `json:"outputs,omitempty"`
}

// NotFound is returned by status queries for unknown identifiers.
type NotFound struct {
	Status string `json:"status"`
}

type LibraryOutput struct {
	ID        string    `json:"id"`
	Prompt    string    `json:"prompt"`
	CreatedAt time.Time `json:"created_at"`
}

type LibraryUpload struct {
	ID              string          `json:"id"`
	Filename        string          `json:"filename"`
	CreatedAt       time.Time       `json:"created_at"`
	DurationSeconds *float64        `json:"duration_seconds"`
	Outputs         []LibraryOutput `json:"outputs"`
}

type Library struct {
	Uploads []LibraryUpload `json:"uploads"`
}
