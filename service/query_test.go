package service

import (
	"context"
	"testing"
	"time"

	"audio-isolator/constant"
	"audio-isolator/entities"
)

func TestStatusNotFound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)

	if _, found, err := f.queries.IngestStatus(ctx, "missing"); err != nil || found {
		t.Errorf("ingest: found = %v, err = %v", found, err)
	}
	if _, found, err := f.queries.TransformStatus(ctx, "missing"); err != nil || found {
		t.Errorf("transform: found = %v, err = %v", found, err)
	}
}

func TestIngestStatusCountsChunks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)
	if err := f.repo.IngestJobs().Insert(ctx, &entities.IngestJob{ID: "u-1", UserID: "a", Status: constant.JobStatusProcessing}); err != nil {
		t.Fatal(err)
	}
	for i, status := range []constant.JobStatus{constant.JobStatusComplete, constant.JobStatusProcessing, constant.JobStatusComplete} {
		if err := f.repo.Chunks().Insert(ctx, &entities.Chunk{UploadID: "u-1", ChunkIndex: i, Status: status}); err != nil {
			t.Fatal(err)
		}
	}

	status, found, err := f.queries.IngestStatus(ctx, "u-1")
	if err != nil || !found {
		t.Fatalf("found = %v, err = %v", found, err)
	}
	if status.Status != "processing" || status.Chunks != 3 || status.CompletedChunks != 2 {
		t.Errorf("status = %+v", status)
	}
	if status.Filename != "Untitled" || status.DurationSeconds != nil {
		t.Errorf("status = %+v", status)
	}
}

func TestTransformStatusOutputsOnlyWhenComplete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 70)
	uploadID := f.ingest(t, ctx, "user-1")

	outputID, err := f.jobs.SubmitTransform(ctx, "user-1", uploadID, "vocals")
	if err != nil {
		t.Fatal(err)
	}
	pending, _, err := f.queries.TransformStatus(ctx, outputID)
	if err != nil {
		t.Fatal(err)
	}
	if pending.Outputs != nil || pending.Status != "processing" || pending.UploadID != uploadID {
		t.Errorf("pending = %+v", pending)
	}

	if err := f.orchestrator().RunTransform(ctx, outputID); err != nil {
		t.Fatal(err)
	}
	done, _, err := f.queries.TransformStatus(ctx, outputID)
	if err != nil {
		t.Fatal(err)
	}
	if done.Status != "complete" || done.Chunks != 3 || done.CompletedChunks != 3 || done.Prompt != "vocals" {
		t.Errorf("done = %+v", done)
	}
	if done.Outputs == nil || done.Outputs.IsolatedMP3 != "/outputs/"+outputID+"/isolated.mp3" {
		t.Errorf("outputs = %+v", done.Outputs)
	}

	ingest, _, err := f.queries.IngestStatus(ctx, uploadID)
	if err != nil {
		t.Fatal(err)
	}
	if ingest.LastPrompt == nil || *ingest.LastPrompt != "vocals" || ingest.Filename != "song" {
		t.Errorf("ingest = %+v", ingest)
	}
}

func TestLibraryNewestFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	uploads := []*entities.IngestJob{
		{ID: "old", UserID: "me", Filename: "old", Status: constant.JobStatusComplete, CreatedAt: base},
		{ID: "new", UserID: "me", Filename: "new", Status: constant.JobStatusComplete, CreatedAt: base.Add(2 * time.Hour)},
		{ID: "mid-failed", UserID: "me", Status: constant.JobStatusFailed, CreatedAt: base.Add(time.Hour)},
		{ID: "other-user", UserID: "you", Status: constant.JobStatusComplete, CreatedAt: base.Add(3 * time.Hour)},
	}
	for _, u := range uploads {
		if err := f.repo.IngestJobs().Insert(ctx, u); err != nil {
			t.Fatal(err)
		}
	}
	outputs := []*entities.TransformJob{
		{ID: "o-first", UploadID: "old", Prompt: "a", Status: constant.JobStatusComplete, CreatedAt: base.Add(time.Minute)},
		{ID: "o-second", UploadID: "old", Prompt: "b", Status: constant.JobStatusComplete, CreatedAt: base.Add(2 * time.Minute)},
		{ID: "o-failed", UploadID: "old", Prompt: "c", Status: constant.JobStatusFailed, CreatedAt: base.Add(3 * time.Minute)},
	}
	for _, o := range outputs {
		if err := f.repo.TransformJobs().Insert(ctx, o); err != nil {
			t.Fatal(err)
		}
	}

	lib, err := f.queries.Library(ctx, "me")
	if err != nil {
		t.Fatal(err)
	}
	if len(lib.Uploads) != 2 || lib.Uploads[0].ID != "new" || lib.Uploads[1].ID != "old" {
		t.Fatalf("uploads = %+v", lib.Uploads)
	}
	if len(lib.Uploads[0].Outputs) != 0 {
		t.Errorf("new outputs = %+v", lib.Uploads[0].Outputs)
	}
	got := lib.Uploads[1].Outputs
	if len(got) != 2 || got[0].ID != "o-second" || got[1].ID != "o-first" {
		t.Errorf("old outputs = %+v", got)
	}

	empty, err := f.queries.Library(ctx, "nobody")
	if err != nil || len(empty.Uploads) != 0 {
		t.Errorf("empty library = %+v, %v", empty, err)
	}
}
