package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"trust-pipeline/internal/models"
)

type fakeQueue struct {
	jobs      []models.Job
	completed map[string]map[string]any
	failed    map[string]string
}

func newFakeQueue(jobs ...models.Job) *fakeQueue {
	return &fakeQueue{
		jobs:      jobs,
		completed: make(map[string]map[string]any),
		failed:    make(map[string]string),
	}
}

func (f *fakeQueue) ClaimBatch(_ context.Context, limit int) ([]models.Job, error) {
	if limit > len(f.jobs) {
		limit = len(f.jobs)
	}
	claimed := f.jobs[:limit]
	f.jobs = f.jobs[limit:]
	return claimed, nil
}

func (f *fakeQueue) MarkCompleted(_ context.Context, id string, result map[string]any) error {
	f.completed[id] = result
	return nil
}

func (f *fakeQueue) MarkFailed(_ context.Context, id, msg string) error {
	f.failed[id] = msg
	return nil
}

func TestProcessJobSuccess(t *testing.T) {
	q := newFakeQueue()
	r := NewRunner(q, time.Second)
	_ = r.Register("test", func(_ context.Context, _ models.Job) (map[string]any, error) {
		return map[string]any{"ok": true}, nil
	})

	job := models.Job{ID: "j1", Type: "test"}
	if err := r.ProcessJob(context.Background(), job); err != nil {
		t.Fatalf("process: %v", err)
	}
	if q.completed["j1"] == nil || q.completed["j1"]["ok"] != true {
		t.Fatalf("expected completion with result, got %+v", q.completed)
	}
	if len(q.failed) != 0 {
		t.Fatalf("unexpected failures: %+v", q.failed)
	}
}

func TestProcessJobFailureMarksAndReraises(t *testing.T) {
	q := newFakeQueue()
	r := NewRunner(q, time.Second)
	_ = r.Register("test", func(_ context.Context, _ models.Job) (map[string]any, error) {
		return nil, errors.New("boom")
	})

	err := r.ProcessJob(context.Background(), models.Job{ID: "j1", Type: "test"})
	if err == nil {
		t.Fatal("expected error to propagate")
	}
	if q.failed["j1"] != "boom" {
		t.Fatalf("expected failure recorded, got %+v", q.failed)
	}
	if len(q.completed) != 0 {
		t.Fatalf("unexpected completions: %+v", q.completed)
	}
}

func TestProcessJobUnknownType(t *testing.T) {
	q := newFakeQueue()
	r := NewRunner(q, time.Second)

	err := r.ProcessJob(context.Background(), models.Job{ID: "j1", Type: "mystery"})
	if err == nil {
		t.Fatal("expected error for unknown type")
	}
	if _, ok := q.failed["j1"]; !ok {
		t.Fatal("expected job marked failed")
	}
}

func TestProcessJobTimeout(t *testing.T) {
	q := newFakeQueue()
	r := NewRunner(q, 20*time.Millisecond)
	_ = r.Register("slow", func(ctx context.Context, _ models.Job) (map[string]any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	if err := r.ProcessJob(context.Background(), models.Job{ID: "j1", Type: "slow"}); err == nil {
		t.Fatal("expected timeout failure")
	}
	if _, ok := q.failed["j1"]; !ok {
		t.Fatal("expected timed-out job marked failed")
	}
}

func TestRunBatchCounts(t *testing.T) {
	q := newFakeQueue(
		models.Job{ID: "j1", Type: "ok"},
		models.Job{ID: "j2", Type: "bad"},
		models.Job{ID: "j3", Type: "ok"},
	)
	r := NewRunner(q, time.Second)
	_ = r.Register("ok", func(_ context.Context, _ models.Job) (map[string]any, error) {
		return nil, nil
	})
	_ = r.Register("bad", func(_ context.Context, _ models.Job) (map[string]any, error) {
		return nil, errors.New("bad payload")
	})

	processed, failed, err := r.RunBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("run batch: %v", err)
	}
	if processed != 3 || failed != 1 {
		t.Fatalf("expected processed=3 failed=1, got %d/%d", processed, failed)
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := NewRunner(newFakeQueue(), time.Second)
	h := func(_ context.Context, _ models.Job) (map[string]any, error) { return nil, nil }
	if err := r.Register("t", h); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.Register("t", h); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}

func TestCheckRegistryExhaustive(t *testing.T) {
	r := NewRunner(newFakeQueue(), time.Second)
	h := func(_ context.Context, _ models.Job) (map[string]any, error) { return nil, nil }

	if err := r.CheckRegistry(); err == nil {
		t.Fatal("expected error with empty registry")
	}
	for _, jt := range models.JobTypes() {
		_ = r.Register(jt, h)
	}
	if err := r.CheckRegistry(); err != nil {
		t.Fatalf("expected complete registry, got %v", err)
	}
}
