package repository

import (
	"context"
	"fmt"
	"time"

	"audio-isolator/entities"
)

// Record is implemented by every stored entity.
type Record interface {
	EnsureCreatedAt(now time.Time)
}

// Filter selects records by field equality. Unset fields match everything.
type Filter[R any] interface {
	Match(record R) bool
	Where() map[string]interface{}
}

// Patch is a field-level merge applied to every matched record.
type Patch[R any] interface {
	Apply(record R)
	Columns() map[string]interface{}
}

// Order sorts a selection ascending. Ties keep insertion order in the JSON
// store and are ordered by primary key in postgres.
type Order[R any] struct {
	Column string
	Less   func(a, b R) bool
}

type Collection[R Record, F Filter[R], P Patch[R]] interface {
	Insert(ctx context.Context, record R) error
	UpdateWhere(ctx context.Context, filter F, patch P) (int, error)
	SelectWhere(ctx context.Context, filter F, order ...Order[R]) ([]R, error)
}

type (
	IngestJobs    = Collection[*entities.IngestJob, IngestJobFilter, IngestJobPatch]
	Chunks        = Collection[*entities.Chunk, ChunkFilter, ChunkPatch]
	TransformJobs = Collection[*entities.TransformJob, TransformJobFilter, TransformJobPatch]
	OutputChunks  = Collection[*entities.OutputChunk, OutputChunkFilter, OutputChunkPatch]
)

type JobRepository interface {
	IngestJobs() IngestJobs
	Chunks() Chunks
	TransformJobs() TransformJobs
	OutputChunks() OutputChunks
	Close() error
}

// StoreIOError reports that the persisted store could not be read or written.
type StoreIOError struct {
	Op   string
	Path string
	Err  error
}

func (e *StoreIOError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StoreIOError) Unwrap() error {
	return e.Err
}
