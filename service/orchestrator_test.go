package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"audio-isolator/constant"
	"audio-isolator/entities"
	"audio-isolator/pkg/segmenter"
	"audio-isolator/repository"
)

func mustUpload(t *testing.T, ctx context.Context, repo repository.JobRepository, id string) *entities.IngestJob {
	t.Helper()
	jobs, err := repo.IngestJobs().SelectWhere(ctx, repository.IngestJobFilter{ID: id})
	if err != nil || len(jobs) != 1 {
		t.Fatalf("select upload %s: %v (%d)", id, err, len(jobs))
	}
	return jobs[0]
}

func mustOutput(t *testing.T, ctx context.Context, repo repository.JobRepository, id string) *entities.TransformJob {
	t.Helper()
	jobs, err := repo.TransformJobs().SelectWhere(ctx, repository.TransformJobFilter{ID: id})
	if err != nil || len(jobs) != 1 {
		t.Fatalf("select output %s: %v (%d)", id, err, len(jobs))
	}
	return jobs[0]
}

func TestRunIngestCompletes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 70)
	uploadID := f.ingest(t, ctx, "user-1")

	job := mustUpload(t, ctx, f.repo, uploadID)
	if job.Status != constant.JobStatusComplete {
		t.Fatalf("status = %s, error = %v", job.Status, job.Error)
	}
	if job.DurationSeconds == nil || *job.DurationSeconds != 70 {
		t.Errorf("duration = %v", job.DurationSeconds)
	}

	chunks, err := f.repo.Chunks().SelectWhere(ctx, repository.ChunkFilter{UploadID: uploadID}, repository.ChunksByIndex)
	if err != nil {
		t.Fatal(err)
	}
	want := [][2]float64{{0, 29}, {29, 58}, {58, 70}}
	if len(chunks) != len(want) {
		t.Fatalf("chunks = %d, want %d", len(chunks), len(want))
	}
	for i, c := range chunks {
		if c.ChunkIndex != i || c.StartTime != want[i][0] || c.EndTime != want[i][1] {
			t.Errorf("chunk %d = %+v", i, c)
		}
		if c.Status != constant.JobStatusComplete || c.ExternalID == nil {
			t.Errorf("chunk %d status = %s external = %v", i, c.Status, c.ExternalID)
		}
	}
}

func TestRunIngestLastChunkEndsAtMeasuredDuration(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 70.034286)
	uploadID := f.ingest(t, ctx, "user-1")

	if f.seg.durationCalls != 1 {
		t.Fatalf("duration measured %d times, want 1", f.seg.durationCalls)
	}
	job := mustUpload(t, ctx, f.repo, uploadID)
	if job.Status != constant.JobStatusComplete || job.DurationSeconds == nil {
		t.Fatalf("upload = %+v", job)
	}
	chunks, err := f.repo.Chunks().SelectWhere(ctx, repository.ChunkFilter{UploadID: uploadID}, repository.ChunksByIndex)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 3 || chunks[2].EndTime != *job.DurationSeconds {
		t.Fatalf("last chunk = %+v, duration = %v", chunks[len(chunks)-1], *job.DurationSeconds)
	}
}

func TestRunIngestShortFileUsesSourceAsOnlyChunk(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 12.5)
	uploadID := f.ingest(t, ctx, "user-1")

	chunks, err := f.repo.Chunks().SelectWhere(ctx, repository.ChunkFilter{UploadID: uploadID})
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 1 || chunks[0].EndTime != 12.5 {
		t.Fatalf("chunks = %+v", chunks)
	}
	src, ok := f.capability.Source(*chunks[0].ExternalID)
	if !ok || src != f.dispatcher.ingests[0].FilePath {
		t.Errorf("registered %q, want source file %q", src, f.dispatcher.ingests[0].FilePath)
	}
}

func TestRunIngestOneChunkFailureFailsUpload(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100)
	f.capability.OnRegister = func(path string) error {
		if filepath.Base(path) == "chunk_2.mp3" {
			return errors.New("timeout")
		}
		return nil
	}
	uploadID := f.ingest(t, ctx, "user-1")

	job := mustUpload(t, ctx, f.repo, uploadID)
	if job.Status != constant.JobStatusFailed {
		t.Fatalf("status = %s", job.Status)
	}
	if job.Error == nil || *job.Error == "" {
		t.Error("expected error text on upload")
	}
	if job.DurationSeconds != nil {
		t.Errorf("duration set on failed upload: %v", *job.DurationSeconds)
	}

	chunks, err := f.repo.Chunks().SelectWhere(ctx, repository.ChunkFilter{UploadID: uploadID}, repository.ChunksByIndex)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 4 {
		t.Fatalf("chunks = %d, want 4", len(chunks))
	}
	for _, c := range chunks {
		if c.ChunkIndex == 2 {
			if c.Status != constant.JobStatusFailed || c.Error == nil || !strings.Contains(*c.Error, "timeout") {
				t.Errorf("chunk 2 = %+v", c)
			}
			if c.ExternalID != nil {
				t.Errorf("failed chunk has external id %q", *c.ExternalID)
			}
			continue
		}
		if c.Status != constant.JobStatusComplete {
			t.Errorf("chunk %d status = %s", c.ChunkIndex, c.Status)
		}
	}
}

func TestRunIngestCapabilityTimeoutFailsChunk(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 60)
	f.opts.CapabilityTimeout = 20 * time.Millisecond
	f.capability.OnRegister = func(path string) error {
		if filepath.Base(path) == "chunk_1.mp3" {
			time.Sleep(100 * time.Millisecond)
		}
		return nil
	}
	uploadID := f.ingest(t, ctx, "user-1")

	if job := mustUpload(t, ctx, f.repo, uploadID); job.Status != constant.JobStatusFailed {
		t.Fatalf("status = %s", job.Status)
	}
	chunks, err := f.repo.Chunks().SelectWhere(ctx, repository.ChunkFilter{UploadID: uploadID, ChunkIndex: repository.Index(1)})
	if err != nil || len(chunks) != 1 {
		t.Fatalf("select: %v", err)
	}
	if chunks[0].Status != constant.JobStatusFailed || !strings.Contains(*chunks[0].Error, context.DeadlineExceeded.Error()) {
		t.Errorf("chunk 1 = %+v", chunks[0])
	}
}

func TestRunIngestDecodeErrorFailsUpload(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	f.seg.durationErr = &segmenter.DecodeError{Path: "x", Err: errors.New("invalid data")}
	uploadID := f.ingest(t, ctx, "user-1")

	job := mustUpload(t, ctx, f.repo, uploadID)
	if job.Status != constant.JobStatusFailed || !strings.Contains(*job.Error, "invalid data") {
		t.Fatalf("upload = %+v", job)
	}
	chunks, _ := f.repo.Chunks().SelectWhere(ctx, repository.ChunkFilter{UploadID: uploadID})
	if len(chunks) != 0 {
		t.Errorf("chunks = %d, want none", len(chunks))
	}
}

func TestRunIngestSkipsSettledUpload(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 40)
	uploadID := f.ingest(t, ctx, "user-1")

	registered := 0
	f.capability.OnRegister = func(string) error {
		registered++
		return nil
	}
	msg := f.dispatcher.ingests[0]
	if err := f.orchestrator().RunIngest(ctx, msg.UploadID, msg.FilePath); err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if registered != 0 {
		t.Errorf("registered %d chunks on rerun", registered)
	}
	if job := mustUpload(t, ctx, f.repo, uploadID); job.Status != constant.JobStatusComplete {
		t.Errorf("status = %s", job.Status)
	}
}

func TestRunIngestUnknownUpload(t *testing.T) {
	f := newFixture(t, 10)
	err := f.orchestrator().RunIngest(context.Background(), "missing", "x.mp3")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestRunTransformCompletes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 70)
	uploadID := f.ingest(t, ctx, "user-1")

	outputID, err := f.jobs.SubmitTransform(ctx, "user-1", uploadID, "  the vocals ")
	if err != nil {
		t.Fatalf("submit transform: %v", err)
	}
	if err := f.orchestrator().RunTransform(ctx, outputID); err != nil {
		t.Fatalf("run transform: %v", err)
	}

	job := mustOutput(t, ctx, f.repo, outputID)
	if job.Status != constant.JobStatusComplete {
		t.Fatalf("status = %s, error = %v", job.Status, job.Error)
	}
	want := map[string]*string{
		"isolated.wav":         job.IsolatedURL,
		"without_isolated.wav": job.WithoutIsolatedURL,
		"isolated.mp3":         job.IsolatedMP3URL,
		"without_isolated.mp3": job.WithoutIsolatedMP3URL,
	}
	for name, got := range want {
		if got == nil || *got != fmt.Sprintf("/outputs/%s/%s", outputID, name) {
			t.Errorf("%s locator = %v", name, got)
		}
		b, err := os.ReadFile(filepath.Join(f.opts.OutputsDir, outputID, name))
		if err != nil {
			t.Fatalf("artifact %s: %v", name, err)
		}
		if string(b) != "[0][1][2]" {
			t.Errorf("%s content = %q, want chunks in index order", name, b)
		}
	}

	if upload := mustUpload(t, ctx, f.repo, uploadID); upload.LastPrompt == nil || *upload.LastPrompt != "the vocals" {
		t.Errorf("last prompt = %v", upload.LastPrompt)
	}

	chunks, err := f.repo.OutputChunks().SelectWhere(ctx, repository.OutputChunkFilter{OutputID: outputID}, repository.OutputChunksByIndex)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 3 {
		t.Fatalf("output chunks = %d", len(chunks))
	}
	for _, c := range chunks {
		if c.Status != constant.JobStatusComplete {
			t.Errorf("output chunk %d status = %s", c.ChunkIndex, c.Status)
		}
	}
}

func TestRunTransformSkipsSettledOutput(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 40)
	uploadID := f.ingest(t, ctx, "user-1")
	outputID, err := f.jobs.SubmitTransform(ctx, "user-1", uploadID, "drums")
	if err != nil {
		t.Fatalf("submit transform: %v", err)
	}
	if _, err := f.repo.TransformJobs().UpdateWhere(ctx, repository.TransformJobFilter{ID: outputID},
		repository.TransformJobPatch{Status: constant.JobStatusFailed, Error: ptr("cancelled")}); err != nil {
		t.Fatal(err)
	}

	if err := f.orchestrator().RunTransform(ctx, outputID); err != nil {
		t.Fatalf("run transform: %v", err)
	}
	chunks, err := f.repo.OutputChunks().SelectWhere(ctx, repository.OutputChunkFilter{OutputID: outputID})
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 0 {
		t.Errorf("settled output started %d chunks", len(chunks))
	}
	if job := mustOutput(t, ctx, f.repo, outputID); job.Status != constant.JobStatusFailed || *job.Error != "cancelled" {
		t.Errorf("output = %+v", job)
	}
}

func TestRunTransformChunkFailureFailsOutput(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 70)
	uploadID := f.ingest(t, ctx, "user-1")

	chunks, err := f.repo.Chunks().SelectWhere(ctx, repository.ChunkFilter{UploadID: uploadID, ChunkIndex: repository.Index(1)})
	if err != nil || len(chunks) != 1 {
		t.Fatal(err)
	}
	failing := *chunks[0].ExternalID
	f.capability.OnTransform = func(externalID, prompt string) error {
		if externalID == failing {
			return errors.New("capability rejected prompt")
		}
		return nil
	}

	outputID, err := f.jobs.SubmitTransform(ctx, "user-1", uploadID, "drums")
	if err != nil {
		t.Fatal(err)
	}
	if err := f.orchestrator().RunTransform(ctx, outputID); err != nil {
		t.Fatalf("run transform: %v", err)
	}

	job := mustOutput(t, ctx, f.repo, outputID)
	if job.Status != constant.JobStatusFailed || job.Error == nil || !strings.Contains(*job.Error, "capability rejected prompt") {
		t.Fatalf("output = %+v", job)
	}
	if job.IsolatedURL != nil {
		t.Error("locator recorded on failed output")
	}
	if _, err := os.Stat(filepath.Join(f.opts.OutputsDir, outputID, "isolated.wav")); !os.IsNotExist(err) {
		t.Errorf("artifact written for failed output: %v", err)
	}

	oc, err := f.repo.OutputChunks().SelectWhere(ctx, repository.OutputChunkFilter{OutputID: outputID, ChunkIndex: repository.Index(1)})
	if err != nil || len(oc) != 1 {
		t.Fatal(err)
	}
	if oc[0].Status != constant.JobStatusFailed {
		t.Errorf("output chunk 1 status = %s", oc[0].Status)
	}
	if upload := mustUpload(t, ctx, f.repo, uploadID); upload.LastPrompt != nil {
		t.Errorf("last prompt updated by failed output: %q", *upload.LastPrompt)
	}
}

func TestRunTransformConcatenateFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 40)
	uploadID := f.ingest(t, ctx, "user-1")
	f.seg.concatErr = &segmenter.EncodeError{Path: "out", Err: errors.New("disk full")}

	outputID, err := f.jobs.SubmitTransform(ctx, "user-1", uploadID, "bass")
	if err != nil {
		t.Fatal(err)
	}
	if err := f.orchestrator().RunTransform(ctx, outputID); err != nil {
		t.Fatal(err)
	}
	if job := mustOutput(t, ctx, f.repo, outputID); job.Status != constant.JobStatusFailed || !strings.Contains(*job.Error, "disk full") {
		t.Fatalf("output = %+v", job)
	}
}

func TestRunTransformNonContiguousChunks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)
	upload := &entities.IngestJob{ID: "u-1", UserID: "user-1", Status: constant.JobStatusComplete}
	if err := f.repo.IngestJobs().Insert(ctx, upload); err != nil {
		t.Fatal(err)
	}
	src := filepath.Join(t.TempDir(), "a.mp3")
	if err := os.WriteFile(src, []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, idx := range []int{0, 2} {
		id, err := f.capability.Register(ctx, src)
		if err != nil {
			t.Fatal(err)
		}
		err = f.repo.Chunks().Insert(ctx, &entities.Chunk{UploadID: "u-1", ChunkIndex: idx, Status: constant.JobStatusComplete, ExternalID: &id})
		if err != nil {
			t.Fatal(err)
		}
	}

	outputID, err := f.jobs.SubmitTransform(ctx, "user-1", "u-1", "voice")
	if err != nil {
		t.Fatal(err)
	}
	if err := f.orchestrator().RunTransform(ctx, outputID); err != nil {
		t.Fatal(err)
	}
	job := mustOutput(t, ctx, f.repo, outputID)
	if job.Status != constant.JobStatusFailed || !strings.Contains(*job.Error, "not contiguous") {
		t.Fatalf("output = %+v", job)
	}
}

func TestRecoverFailsInterruptedJobs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)
	records := []*entities.IngestJob{
		{ID: "running", UserID: "u", Status: constant.JobStatusProcessing},
		{ID: "done", UserID: "u", Status: constant.JobStatusComplete},
	}
	for _, r := range records {
		if err := f.repo.IngestJobs().Insert(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.repo.Chunks().Insert(ctx, &entities.Chunk{UploadID: "running", Status: constant.JobStatusProcessing}); err != nil {
		t.Fatal(err)
	}
	if err := f.repo.TransformJobs().Insert(ctx, &entities.TransformJob{ID: "o-1", UploadID: "done", Status: constant.JobStatusProcessing}); err != nil {
		t.Fatal(err)
	}
	if err := f.repo.OutputChunks().Insert(ctx, &entities.OutputChunk{OutputID: "o-1", Status: constant.JobStatusPending}); err != nil {
		t.Fatal(err)
	}

	if err := f.orchestrator().Recover(ctx); err != nil {
		t.Fatalf("recover: %v", err)
	}

	if job := mustUpload(t, ctx, f.repo, "running"); job.Status != constant.JobStatusFailed || *job.Error != "interrupted by restart" {
		t.Errorf("running upload = %+v", job)
	}
	if job := mustUpload(t, ctx, f.repo, "done"); job.Status != constant.JobStatusComplete {
		t.Errorf("complete upload changed to %s", job.Status)
	}
	if job := mustOutput(t, ctx, f.repo, "o-1"); job.Status != constant.JobStatusFailed {
		t.Errorf("output status = %s", job.Status)
	}
	pending, _ := f.repo.OutputChunks().SelectWhere(ctx, repository.OutputChunkFilter{Status: constant.JobStatusPending})
	processing, _ := f.repo.Chunks().SelectWhere(ctx, repository.ChunkFilter{Status: constant.JobStatusProcessing})
	if len(pending) != 0 || len(processing) != 0 {
		t.Errorf("left in flight: %d output chunks, %d chunks", len(pending), len(processing))
	}
}

func TestRunTransformRedeliveryFailsStartedOutput(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 40)
	uploadID := f.ingest(t, ctx, "user-1")

	outputID, err := f.jobs.SubmitTransform(ctx, "user-1", uploadID, "keys")
	if err != nil {
		t.Fatal(err)
	}
	if err := f.repo.OutputChunks().Insert(ctx, &entities.OutputChunk{OutputID: outputID, Status: constant.JobStatusProcessing}); err != nil {
		t.Fatal(err)
	}

	if err := f.orchestrator().RunTransform(ctx, outputID); err != nil {
		t.Fatal(err)
	}
	if job := mustOutput(t, ctx, f.repo, outputID); job.Status != constant.JobStatusFailed || *job.Error != "interrupted by restart" {
		t.Fatalf("output = %+v", job)
	}
}
