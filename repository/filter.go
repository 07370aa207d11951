package repository

import (
	"audio-isolator/constant"
	"audio-isolator/entities"
)

// Index returns a pointer for use in chunk filters, where index 0 is meaningful.
func Index(i int) *int {
	return &i
}

type IngestJobFilter struct {
	ID     string
	UserID string
	Status constant.JobStatus
}

func (f IngestJobFilter) Match(j *entities.IngestJob) bool {
	return (f.ID == "" || j.ID == f.ID) &&
		(f.UserID == "" || j.UserID == f.UserID) &&
		(f.Status == "" || j.Status == f.Status)
}

func (f IngestJobFilter) Where() map[string]interface{} {
	where := map[string]interface{}{}
	if f.ID != "" {
		where["id"] = f.ID
	}
	if f.UserID != "" {
		where["user_id"] = f.UserID
	}
	if f.Status != "" {
		where["status"] = f.Status.String()
	}
	return where
}

type IngestJobPatch struct {
	Status          constant.JobStatus
	Error           *string
	DurationSeconds *float64
	LastPrompt      *string
}

func (p IngestJobPatch) Apply(j *entities.IngestJob) {
	if p.Status != "" {
		j.Status = p.Status
	}
	if p.Error != nil {
		j.Error = p.Error
	}
	if p.DurationSeconds != nil {
		j.DurationSeconds = p.DurationSeconds
	}
	if p.LastPrompt != nil {
		j.LastPrompt = p.LastPrompt
	}
}

func (p IngestJobPatch) Columns() map[string]interface{} {
	cols := map[string]interface{}{}
	if p.Status != "" {
		cols["status"] = p.Status.String()
	}
	if p.Error != nil {
		cols["error"] = *p.Error
	}
	if p.DurationSeconds != nil {
		cols["duration_seconds"] = *p.DurationSeconds
	}
	if p.LastPrompt != nil {
		cols["last_prompt"] = *p.LastPrompt
	}
	return cols
}

type ChunkFilter struct {
	UploadID   string
	ChunkIndex *int
	Status     constant.JobStatus
}

func (f ChunkFilter) Match(c *entities.Chunk) bool {
	return (f.UploadID == "" || c.UploadID == f.UploadID) &&
		(f.ChunkIndex == nil || c.ChunkIndex == *f.ChunkIndex) &&
		(f.Status == "" || c.Status == f.Status)
}

func (f ChunkFilter) Where() map[string]interface{} {
	where := map[string]interface{}{}
	if f.UploadID != "" {
		where["upload_id"] = f.UploadID
	}
	if f.ChunkIndex != nil {
		where["chunk_index"] = *f.ChunkIndex
	}
	if f.Status != "" {
		where["status"] = f.Status.String()
	}
	return where
}

type ChunkPatch struct {
	Status     constant.JobStatus
	ExternalID *string
	Error      *string
}

func (p ChunkPatch) Apply(c *entities.Chunk) {
	if p.Status != "" {
		c.Status = p.Status
	}
	if p.ExternalID != nil {
		c.ExternalID = p.ExternalID
	}
	if p.Error != nil {
		c.Error = p.Error
	}
}

func (p ChunkPatch) Columns() map[string]interface{} {
	cols := map[string]interface{}{}
	if p.Status != "" {
		cols["status"] = p.Status.String()
	}
	if p.ExternalID != nil {
		cols["external_id"] = *p.ExternalID
	}
	if p.Error != nil {
		cols["error"] = *p.Error
	}
	return cols
}

type TransformJobFilter struct {
	ID       string
	UploadID string
	UserID   string
	Status   constant.JobStatus
}

func (f TransformJobFilter) Match(j *entities.TransformJob) bool {
	return (f.ID == "" || j.ID == f.ID) &&
		(f.UploadID == "" || j.UploadID == f.UploadID) &&
		(f.UserID == "" || j.UserID == f.UserID) &&
		(f.Status == "" || j.Status == f.Status)
}

func (f TransformJobFilter) Where() map[string]interface{} {
	where := map[string]interface{}{}
	if f.ID != "" {
		where["id"] = f.ID
	}
	if f.UploadID != "" {
		where["upload_id"] = f.UploadID
	}
	if f.UserID != "" {
		where["user_id"] = f.UserID
	}
	if f.Status != "" {
		where["status"] = f.Status.String()
	}
	return where
}

// TransformJobPatch carries the four result locators keyed by kind and encoding.
type TransformJobPatch struct {
	Status                constant.JobStatus
	Error                 *string
	IsolatedURL           *string
	WithoutIsolatedURL    *string
	IsolatedMP3URL        *string
	WithoutIsolatedMP3URL *string
}

func (p TransformJobPatch) Apply(j *entities.TransformJob) {
	if p.Status != "" {
		j.Status = p.Status
	}
	if p.Error != nil {
		j.Error = p.Error
	}
	if p.IsolatedURL != nil {
		j.IsolatedURL = p.IsolatedURL
	}
	if p.WithoutIsolatedURL != nil {
		j.WithoutIsolatedURL = p.WithoutIsolatedURL
	}
	if p.IsolatedMP3URL != nil {
		j.IsolatedMP3URL = p.IsolatedMP3URL
	}
	if p.WithoutIsolatedMP3URL != nil {
		j.WithoutIsolatedMP3URL = p.WithoutIsolatedMP3URL
	}
}

func (p TransformJobPatch) Columns() map[string]interface{} {
	cols := map[string]interface{}{}
	if p.Status != "" {
		cols["status"] = p.Status.String()
	}
	if p.Error != nil {
		cols["error"] = *p.Error
	}
	if p.IsolatedURL != nil {
		cols["isolated_url"] = *p.IsolatedURL
	}
	if p.WithoutIsolatedURL != nil {
		cols["without_isolated_url"] = *p.WithoutIsolatedURL
	}
	if p.IsolatedMP3URL != nil {
		cols["isolated_mp3_url"] = *p.IsolatedMP3URL
	}
	if p.WithoutIsolatedMP3URL != nil {
		cols["without_isolated_mp3_url"] = *p.WithoutIsolatedMP3URL
	}
	return cols
}

type OutputChunkFilter struct {
	OutputID   string
	ChunkIndex *int
	Status     constant.JobStatus
}

func (f OutputChunkFilter) Match(c *entities.OutputChunk) bool {
	return (f.OutputID == "" || c.OutputID == f.OutputID) &&
		(f.ChunkIndex == nil || c.ChunkIndex == *f.ChunkIndex) &&
		(f.Status == "" || c.Status == f.Status)
}

func (f OutputChunkFilter) Where() map[string]interface{} {
	where := map[string]interface{}{}
	if f.OutputID != "" {
		where["output_id"] = f.OutputID
	}
	if f.ChunkIndex != nil {
		where["chunk_index"] = *f.ChunkIndex
	}
	if f.Status != "" {
		where["status"] = f.Status.String()
	}
	return where
}

type OutputChunkPatch struct {
	Status constant.JobStatus
	Error  *string
}

func (p OutputChunkPatch) Apply(c *entities.OutputChunk) {
	if p.Status != "" {
		c.Status = p.Status
	}
	if p.Error != nil {
		c.Error = p.Error
	}
}

func (p OutputChunkPatch) Columns() map[string]interface{} {
	cols := map[string]interface{}{}
	if p.Status != "" {
		cols["status"] = p.Status.String()
	}
	if p.Error != nil {
		cols["error"] = *p.Error
	}
	return cols
}

var (
	IngestJobsByCreatedAt = Order[*entities.IngestJob]{
		Column: "created_at",
		Less:   func(a, b *entities.IngestJob) bool { return a.CreatedAt.Before(b.CreatedAt) },
	}
	ChunksByIndex = Order[*entities.Chunk]{
		Column: "chunk_index",
		Less:   func(a, b *entities.Chunk) bool { return a.ChunkIndex < b.ChunkIndex },
	}
	TransformJobsByCreatedAt = Order[*entities.TransformJob]{
		Column: "created_at",
		Less:   func(a, b *entities.TransformJob) bool { return a.CreatedAt.Before(b.CreatedAt) },
	}
	OutputChunksByIndex = Order[*entities.OutputChunk]{
		Column: "chunk_index",
		Less:   func(a, b *entities.OutputChunk) bool { return a.ChunkIndex < b.ChunkIndex },
	}
)
