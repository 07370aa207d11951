package entities

import (
	"time"

	"audio-isolator/constant"
)

// TransformJob is one prompt-driven transformation of a completed IngestJob.
type TransformJob struct {
	ID                    string             `json:"id" gorm:"type:varchar(36);primaryKey"`
	UploadID              string             `json:"upload_id" gorm:"type:varchar(36);not null;index:idx_outputs_upload_id"`
	UserID                string             `json:"user_id" gorm:"type:varchar(255);not null"`
	Prompt                string             `json:"prompt" gorm:"type:text"`
	Status                constant.JobStatus `json:"status" gorm:"type:varchar(20);not null"`
	Error                 *string            `json:"error,omitempty" gorm:"type:text"`
	IsolatedURL           *string            `json:"isolated_url,omitempty" gorm:"type:varchar(1000)"`
	WithoutIsolatedURL    *string            `json:"without_isolated_url,omitempty" gorm:"type:varchar(1000)"`
	IsolatedMP3URL        *string            `json:"isolated_mp3_url,omitempty" gorm:"type:varchar(1000)"`
	WithoutIsolatedMP3URL *string            `json:"without_isolated_mp3_url,omitempty" gorm:"type:varchar(1000)"`
	CreatedAt             time.Time          `json:"created_at" gorm:"type:timestamptz;not null"`
}

func (TransformJob) TableName() string {
	return "outputs"
}

func (j *TransformJob) EnsureCreatedAt(now time.Time) {
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
}
