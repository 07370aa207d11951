package entities

import (
	"time"

	"audio-isolator/constant"
)

// Chunk is one bounded-duration segment of an IngestJob's source audio.
type Chunk struct {
	UploadID   string             `json:"upload_id" gorm:"type:varchar(36);primaryKey"`
	ChunkIndex int                `json:"chunk_index" gorm:"primaryKey;autoIncrement:false"`
	StartTime  float64            `json:"start_time"`
	EndTime    float64            `json:"end_time"`
	Status     constant.JobStatus `json:"status" gorm:"type:varchar(20);not null"`
	ExternalID *string            `json:"external_id,omitempty" gorm:"type:varchar(255)"`
	Error      *string            `json:"error,omitempty" gorm:"type:text"`
	CreatedAt  time.Time          `json:"created_at" gorm:"type:timestamptz;not null"`
}

func (Chunk) TableName() string {
	return "chunks"
}

func (c *Chunk) EnsureCreatedAt(now time.Time) {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
}
