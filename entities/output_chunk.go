package entities

import (
	"time"

	"audio-isolator/constant"
)

// OutputChunk tracks per-chunk progress of a TransformJob.
type OutputChunk struct {
	OutputID   string             `json:"output_id" gorm:"type:varchar(36);primaryKey"`
	ChunkIndex int                `json:"chunk_index" gorm:"primaryKey;autoIncrement:false"`
	Status     constant.JobStatus `json:"status" gorm:"type:varchar(20);not null"`
	Error      *string            `json:"error,omitempty" gorm:"type:text"`
	CreatedAt  time.Time          `json:"created_at" gorm:"type:timestamptz;not null"`
}

func (OutputChunk) TableName() string {
	return "output_chunks"
}

func (c *OutputChunk) EnsureCreatedAt(now time.Time) {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
}
