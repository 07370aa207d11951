package service

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"audio-isolator/constant"
	"audio-isolator/dto"
	"audio-isolator/pkg/capability"
	"audio-isolator/pkg/segmenter"
	"audio-isolator/pkg/storage"
	"audio-isolator/repository"
)

// fakeSegmenter plans windows like the real one and writes small text files
// in place of audio so tests can follow content through the pipeline.
type fakeSegmenter struct {
	duration    float64
	boundary    time.Duration
	durationErr error
	concatErr   error

	mu            sync.Mutex
	joined        map[string][]string
	durationCalls int
}

func (f *fakeSegmenter) Duration(ctx context.Context, path string) (float64, error) {
	f.mu.Lock()
	f.durationCalls++
	f.mu.Unlock()
	if f.durationErr != nil {
		return 0, f.durationErr
	}
	return f.duration, nil
}

func (f *fakeSegmenter) Split(ctx context.Context, path, outDir string, duration float64) ([]segmenter.Chunk, error) {
	windows := segmenter.Plan(duration, f.boundary)
	if len(windows) == 1 {
		return []segmenter.Chunk{{Index: 0, Path: path, Start: 0, End: duration}}, nil
	}
	if err := os.MkdirAll(outDir, os.ModePerm); err != nil {
		return nil, err
	}
	chunks := make([]segmenter.Chunk, 0, len(windows))
	for _, w := range windows {
		p := filepath.Join(outDir, fmt.Sprintf("chunk_%d.mp3", w.Index))
		if err := os.WriteFile(p, []byte(fmt.Sprintf("[%d]", w.Index)), 0o644); err != nil {
			return nil, err
		}
		chunks = append(chunks, segmenter.Chunk{Index: w.Index, Path: p, Start: w.Start, End: w.End})
	}
	return chunks, nil
}

func (f *fakeSegmenter) Concatenate(ctx context.Context, inputs []string, output string, encoding constant.Encoding) error {
	if f.concatErr != nil {
		return f.concatErr
	}
	var buf bytes.Buffer
	for _, in := range inputs {
		b, err := os.ReadFile(in)
		if err != nil {
			return err
		}
		buf.Write(b)
	}
	if err := os.WriteFile(output, buf.Bytes(), 0o644); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.joined == nil {
		f.joined = map[string][]string{}
	}
	f.joined[output] = inputs
	return nil
}

type recordingDispatcher struct {
	mu         sync.Mutex
	ingests    []dto.IngestMessage
	transforms []dto.TransformMessage
	err        error
}

func (d *recordingDispatcher) DispatchIngest(_ context.Context, msg dto.IngestMessage) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ingests = append(d.ingests, msg)
	return d.err
}

func (d *recordingDispatcher) Close() error {
	return nil
}

func (d *recordingDispatcher) DispatchTransform(_ context.Context, msg dto.TransformMessage) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.transforms = append(d.transforms, msg)
	return d.err
}

type fixture struct {
	repo       repository.JobRepository
	seg        *fakeSegmenter
	capability *capability.Fake
	opts       Options
	dispatcher *recordingDispatcher
	jobs       JobService
	queries    QueryService
}

func newFixture(t *testing.T, duration float64) *fixture {
	t.Helper()
	dir := t.TempDir()
	opts := Options{
		UploadsDir:        filepath.Join(dir, "uploads"),
		OutputsDir:        filepath.Join(dir, "outputs"),
		CapabilityTimeout: time.Second,
	}
	repo := repository.NewJSONStore(filepath.Join(dir, "db.json"))
	dispatcher := &recordingDispatcher{}
	return &fixture{
		repo:       repo,
		seg:        &fakeSegmenter{duration: duration, boundary: 29 * time.Second},
		capability: capability.NewFake(),
		opts:       opts,
		dispatcher: dispatcher,
		jobs:       NewJobService(repo, dispatcher, opts.UploadsDir),
		queries:    NewQueryService(repo),
	}
}

func (f *fixture) orchestrator() Orchestrator {
	return NewOrchestrator(f.repo, f.seg, f.capability, storage.NewLocal(f.opts.OutputsDir, "/outputs"), f.opts)
}

// ingest submits and runs an upload to completion.
func (f *fixture) ingest(t *testing.T, ctx context.Context, userID string) string {
	t.Helper()
	uploadID, err := f.jobs.SubmitIngest(ctx, userID, "song.mp3", bytes.NewBufferString("source"))
	if err != nil {
		t.Fatalf("submit ingest: %v", err)
	}
	msg := f.dispatcher.ingests[len(f.dispatcher.ingests)-1]
	if err := f.orchestrator().RunIngest(ctx, msg.UploadID, msg.FilePath); err != nil {
		t.Fatalf("run ingest: %v", err)
	}
	return uploadID
}
