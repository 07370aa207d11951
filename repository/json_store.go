package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"audio-isolator/entities"
)

const storeSchema = `{
	"type": "object",
	"properties": {
		"uploads":       {"type": ["array", "null"], "items": {"type": "object"}},
		"chunks":        {"type": ["array", "null"], "items": {"type": "object"}},
		"outputs":       {"type": ["array", "null"], "items": {"type": "object"}},
		"output_chunks": {"type": ["array", "null"], "items": {"type": "object"}}
	}
}`

var snapshotSchema = jsonschema.MustCompileString("store.schema.json", storeSchema)

// snapshot is the whole persisted document.
type snapshot struct {
	Uploads      []*entities.IngestJob    `json:"uploads"`
	Chunks       []*entities.Chunk        `json:"chunks"`
	Outputs      []*entities.TransformJob `json:"outputs"`
	OutputChunks []*entities.OutputChunk  `json:"output_chunks"`
}

func (s *snapshot) normalize() {
	if s.Uploads == nil {
		s.Uploads = []*entities.IngestJob{}
	}
	if s.Chunks == nil {
		s.Chunks = []*entities.Chunk{}
	}
	if s.Outputs == nil {
		s.Outputs = []*entities.TransformJob{}
	}
	if s.OutputChunks == nil {
		s.OutputChunks = []*entities.OutputChunk{}
	}
}

// JSONStore keeps all four collections in one JSON file. Every call runs its
// read, mutate and write under a single mutex and replaces the file atomically.
type JSONStore struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path, now: func() time.Time { return time.Now().UTC() }}
}

func (s *JSONStore) IngestJobs() IngestJobs {
	return &jsonCollection[*entities.IngestJob, IngestJobFilter, IngestJobPatch]{
		store: s,
		slot:  func(snap *snapshot) *[]*entities.IngestJob { return &snap.Uploads },
	}
}

func (s *JSONStore) Chunks() Chunks {
	return &jsonCollection[*entities.Chunk, ChunkFilter, ChunkPatch]{
		store: s,
		slot:  func(snap *snapshot) *[]*entities.Chunk { return &snap.Chunks },
	}
}

func (s *JSONStore) TransformJobs() TransformJobs {
	return &jsonCollection[*entities.TransformJob, TransformJobFilter, TransformJobPatch]{
		store: s,
		slot:  func(snap *snapshot) *[]*entities.TransformJob { return &snap.Outputs },
	}
}

func (s *JSONStore) OutputChunks() OutputChunks {
	return &jsonCollection[*entities.OutputChunk, OutputChunkFilter, OutputChunkPatch]{
		store: s,
		slot:  func(snap *snapshot) *[]*entities.OutputChunk { return &snap.OutputChunks },
	}
}

func (s *JSONStore) Close() error {
	return nil
}

// read loads the document. Missing, empty or malformed content yields the
// empty default so the service stays available.
func (s *JSONStore) read(ctx context.Context) *snapshot {
	empty := &snapshot{}
	empty.normalize()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			zerolog.Ctx(ctx).Error().Err(&StoreIOError{Op: "read", Path: s.path, Err: err}).Msg("using empty store")
		}
		return empty
	}
	if len(bytes.TrimSpace(data)) == 0 {
		zerolog.Ctx(ctx).Warn().Str("path", s.path).Msg("store file is empty, using empty store")
		return empty
	}

	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("path", s.path).Msg("store file is not valid json, using empty store")
		return empty
	}
	if err := snapshotSchema.Validate(raw); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("path", s.path).Msg("store file has unexpected shape, using empty store")
		return empty
	}

	snap := &snapshot{}
	if err := json.Unmarshal(data, snap); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("path", s.path).Msg("store records are malformed, using empty store")
		return empty
	}
	snap.normalize()
	return snap
}

func (s *JSONStore) write(snap *snapshot) error {
	snap.normalize()
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return &StoreIOError{Op: "encode", Path: s.path, Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(s.path), os.ModePerm); err != nil {
		return &StoreIOError{Op: "write", Path: s.path, Err: err}
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return &StoreIOError{Op: "write", Path: tmp, Err: err}
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return &StoreIOError{Op: "write", Path: tmp, Err: err}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return &StoreIOError{Op: "sync", Path: tmp, Err: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return &StoreIOError{Op: "write", Path: tmp, Err: err}
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return &StoreIOError{Op: "replace", Path: s.path, Err: err}
	}
	return nil
}

// mutate runs fn on a fresh snapshot and persists it when fn reports changes.
func (s *JSONStore) mutate(ctx context.Context, fn func(snap *snapshot) int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.read(ctx)
	n := fn(snap)
	if n == 0 {
		return 0, nil
	}
	if err := s.write(snap); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *JSONStore) view(ctx context.Context, fn func(snap *snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.read(ctx))
}

type jsonCollection[R Record, F Filter[R], P Patch[R]] struct {
	store *JSONStore
	slot  func(snap *snapshot) *[]R
}

func (c *jsonCollection[R, F, P]) Insert(ctx context.Context, record R) error {
	_, err := c.store.mutate(ctx, func(snap *snapshot) int {
		record.EnsureCreatedAt(c.store.now())
		rows := c.slot(snap)
		*rows = append(*rows, record)
		return 1
	})
	return err
}

func (c *jsonCollection[R, F, P]) UpdateWhere(ctx context.Context, filter F, patch P) (int, error) {
	return c.store.mutate(ctx, func(snap *snapshot) int {
		matched := 0
		for _, row := range *c.slot(snap) {
			if filter.Match(row) {
				patch.Apply(row)
				matched++
			}
		}
		return matched
	})
}

func (c *jsonCollection[R, F, P]) SelectWhere(ctx context.Context, filter F, order ...Order[R]) ([]R, error) {
	var out []R
	c.store.view(ctx, func(snap *snapshot) {
		for _, row := range *c.slot(snap) {
			if filter.Match(row) {
				out = append(out, row)
			}
		}
	})
	if len(order) > 0 && order[0].Less != nil {
		less := order[0].Less
		sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	}
	return out, nil
}
