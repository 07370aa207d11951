package entities

import (
	"time"

	"audio-isolator/constant"
)

// IngestJob is one user-submitted source file.
type IngestJob struct {
	ID              string             `json:"id" gorm:"type:varchar(36);primaryKey"`
	UserID          string             `json:"user_id" gorm:"type:varchar(255);not null;index:idx_uploads_user_id"`
	Filename        string             `json:"filename" gorm:"type:varchar(500)"`
	Status          constant.JobStatus `json:"status" gorm:"type:varchar(20);not null"`
	Error           *string            `json:"error,omitempty" gorm:"type:text"`
	DurationSeconds *float64           `json:"duration_seconds,omitempty"`
	LastPrompt      *string            `json:"last_prompt,omitempty" gorm:"type:text"`
	CreatedAt       time.Time          `json:"created_at" gorm:"type:timestamptz;not null"`
}

func (IngestJob) TableName() string {
	return "uploads"
}

func (j *IngestJob) EnsureCreatedAt(now time.Time) {
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
}
