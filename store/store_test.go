package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/adixon02/AutoHVAC-sub002/store"
)

func newJobs(t *testing.T) *store.Jobs {
	t.Helper()
	jobs, err := store.NewJobs(context.Background(), store.OpenMemory(t))
	if err != nil {
		t.Fatal(err)
	}
	return jobs
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "jobs.db")
	db, err := store.Open(path, store.WithMkdirAll(), store.WithSchema(store.JobsSchema))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatal(err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
	var fk int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatal(err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys = %d, want 1", fk)
	}
}

func TestIsBusy(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("SQLITE_BUSY"), true},
		{errors.New("database is locked"), true},
		{errors.New("no such table"), false},
	}
	for _, c := range cases {
		if got := store.IsBusy(c.err); got != c.want {
			t.Errorf("IsBusy(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestJobLifecycle(t *testing.T) {
	ctx := context.Background()
	jobs := newJobs(t)

	if err := jobs.Create(ctx, "job_1", []byte(`{"zip":"97701"}`)); err != nil {
		t.Fatal(err)
	}
	rec, err := jobs.Get(ctx, "job_1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != store.StatusQueued || rec.Stage != "queued" || rec.Percent != 0 {
		t.Fatalf("new job = %+v", rec)
	}
	if string(rec.Request) != `{"zip":"97701"}` {
		t.Errorf("request = %s", rec.Request)
	}

	if ok, err := jobs.Advance(ctx, "job_1", "extracting_geometry", 20); err != nil || !ok {
		t.Fatalf("advance: %v %v", ok, err)
	}
	// Backwards progress is ignored.
	if ok, _ := jobs.Advance(ctx, "job_1", "validating", 5); ok {
		t.Error("advance to lower percent should be ignored")
	}
	rec, _ = jobs.Get(ctx, "job_1")
	if rec.Status != store.StatusRunning || rec.Stage != "extracting_geometry" || rec.Percent != 20 {
		t.Fatalf("after advance = %+v", rec)
	}

	if _, err := jobs.Result(ctx, "job_1"); !errors.Is(err, store.ErrNoResult) {
		t.Errorf("Result before completion: err = %v, want ErrNoResult", err)
	}

	if err := jobs.Complete(ctx, "job_1", "complete", []byte(`{"load":{}}`)); err != nil {
		t.Fatal(err)
	}
	rec, _ = jobs.Get(ctx, "job_1")
	if rec.Status != store.StatusComplete || rec.Percent != 100 || rec.FinishedAt == nil {
		t.Fatalf("completed job = %+v", rec)
	}
	doc, err := jobs.Result(ctx, "job_1")
	if err != nil || string(doc) != `{"load":{}}` {
		t.Fatalf("Result = %s, %v", doc, err)
	}

	if err := jobs.Fail(ctx, "job_1", store.StatusFailed, &store.JobError{Kind: "x"}); !errors.Is(err, store.ErrFinished) {
		t.Errorf("Fail after complete: err = %v, want ErrFinished", err)
	}
	if ok, _ := jobs.Advance(ctx, "job_1", "validating", 100); ok {
		t.Error("advance on a finished job should be ignored")
	}
}

func TestJobFailKeepsProgress(t *testing.T) {
	ctx := context.Background()
	jobs := newJobs(t)
	jobs.Create(ctx, "job_2", []byte(`{}`))
	jobs.Advance(ctx, "job_2", "validating_rooms", 75)

	jerr := &store.JobError{
		Kind:           "needs_input",
		Reason:         "average_room_area_low",
		Stage:          "validating_rooms",
		Message:        "average room area 26.8 sq ft",
		Recommendation: "verify scale; try 1/4\"=1'-0\"",
		Details:        map[string]any{"rooms": 85.0},
	}
	if err := jobs.Fail(ctx, "job_2", store.StatusFailed, jerr); err != nil {
		t.Fatal(err)
	}
	rec, _ := jobs.Get(ctx, "job_2")
	if rec.Status != store.StatusFailed || rec.Stage != "validating_rooms" || rec.Percent != 75 {
		t.Fatalf("failed job = %+v", rec)
	}
	if rec.Error == nil || rec.Error.Reason != "average_room_area_low" || rec.Error.Details["rooms"] != 85.0 {
		t.Fatalf("error object = %+v", rec.Error)
	}
	if !rec.Status.Terminal() {
		t.Error("failed should be terminal")
	}
}

func TestJobCancelFlag(t *testing.T) {
	ctx := context.Background()
	jobs := newJobs(t)
	jobs.Create(ctx, "job_3", []byte(`{}`))

	if got, _ := jobs.CancelRequested(ctx, "job_3"); got {
		t.Fatal("cancel flag set on new job")
	}
	if err := jobs.RequestCancel(ctx, "job_3"); err != nil {
		t.Fatal(err)
	}
	if got, _ := jobs.CancelRequested(ctx, "job_3"); !got {
		t.Fatal("cancel flag not set")
	}
	if err := jobs.Fail(ctx, "job_3", store.StatusCancelled, &store.JobError{Kind: "cancelled", Message: "cancelled"}); err != nil {
		t.Fatal(err)
	}
	if err := jobs.RequestCancel(ctx, "job_3"); !errors.Is(err, store.ErrFinished) {
		t.Errorf("cancel finished job: err = %v, want ErrFinished", err)
	}
	if err := jobs.RequestCancel(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("cancel missing job: err = %v, want ErrNotFound", err)
	}
	if _, err := jobs.Get(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("get missing job: err = %v, want ErrNotFound", err)
	}
	if err := jobs.Fail(ctx, "job_3", store.StatusComplete, nil); err == nil {
		t.Error("Fail with a non-failure status should error")
	}
}

func TestJobList(t *testing.T) {
	ctx := context.Background()
	jobs := newJobs(t)
	for _, id := range []string{"a", "b", "c"} {
		if err := jobs.Create(ctx, id, []byte(`{}`)); err != nil {
			t.Fatal(err)
		}
	}
	list, err := jobs.List(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newQueue(t *testing.T, opts store.QueueOptions) *store.Queue {
	t.Helper()
	q, err := store.NewQueue(context.Background(), store.OpenMemory(t), opts)
	if err != nil {
		t.Fatal(err)
	}
	return q
}

func TestQueueClaimAckNack(t *testing.T) {
	ctx := context.Background()
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	q := newQueue(t, store.QueueOptions{Visibility: time.Minute, Now: clk.now})

	if err := q.Publish(ctx, "j1", []byte("payload")); err != nil {
		t.Fatal(err)
	}
	d, err := q.Claim(ctx)
	if err != nil || d == nil {
		t.Fatalf("claim: %v %v", d, err)
	}
	if d.ID != "j1" || string(d.Payload) != "payload" || d.Attempts != 1 {
		t.Fatalf("delivery = %+v", d)
	}
	if d2, _ := q.Claim(ctx); d2 != nil {
		t.Fatal("claimed row should be invisible")
	}

	// Visibility timeout makes it reappear.
	clk.advance(2 * time.Minute)
	d, _ = q.Claim(ctx)
	if d == nil || d.Attempts != 2 {
		t.Fatalf("redelivery = %+v", d)
	}

	if err := q.Nack(ctx, "j1"); err != nil {
		t.Fatal(err)
	}
	if d, _ = q.Claim(ctx); d == nil {
		t.Fatal("nacked row should be visible")
	}
	if err := q.Extend(ctx, "j1", time.Hour); err != nil {
		t.Fatal(err)
	}
	clk.advance(30 * time.Minute)
	if d2, _ := q.Claim(ctx); d2 != nil {
		t.Fatal("extended row should be invisible")
	}

	if err := q.Ack(ctx, "j1"); err != nil {
		t.Fatal(err)
	}
	if n, _ := q.Len(ctx); n != 0 {
		t.Fatalf("Len = %d, want 0", n)
	}
}

func TestQueueBatchClaim(t *testing.T) {
	ctx := context.Background()
	q := newQueue(t, store.QueueOptions{})
	for _, id := range []string{"a", "b", "c"} {
		q.Publish(ctx, id, nil)
	}
	ds, err := q.BatchClaim(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(ds) != 2 {
		t.Fatalf("claimed %d, want 2", len(ds))
	}
	ds, _ = q.BatchClaim(ctx, 5)
	if len(ds) != 1 {
		t.Fatalf("claimed %d, want 1", len(ds))
	}
	ds, _ = q.BatchClaim(ctx, 5)
	if ds == nil || len(ds) != 0 {
		t.Fatalf("empty claim = %v", ds)
	}
}

func TestQueueRunBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := newQueue(t, store.QueueOptions{PollInterval: 10 * time.Millisecond})
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		q.Publish(ctx, id, nil)
	}

	var running, peak, done atomic.Int32
	handler := func(ctx context.Context, d *store.Delivery) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
		if done.Add(1) == 5 {
			cancel()
		}
		return nil
	}

	finished := make(chan struct{})
	go func() {
		q.RunBatch(ctx, 5, 2, handler)
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("RunBatch did not stop")
	}
	if done.Load() != 5 {
		t.Errorf("processed %d, want 5", done.Load())
	}
	if peak.Load() > 2 {
		t.Errorf("peak concurrency %d, want <= 2", peak.Load())
	}
	if n, _ := q.Len(context.Background()); n != 0 {
		t.Errorf("Len = %d, want 0", n)
	}
}

func TestQueueMaxAttemptsDiscard(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var discarded atomic.Value
	q := newQueue(t, store.QueueOptions{
		PollInterval: 5 * time.Millisecond,
		MaxAttempts:  2,
		OnDiscard: func(_ context.Context, d *store.Delivery) {
			discarded.Store(d.ID)
			cancel()
		},
	})
	q.Publish(ctx, "bad", nil)

	handler := func(context.Context, *store.Delivery) error { return errors.New("boom") }
	finished := make(chan struct{})
	go func() {
		q.RunBatch(ctx, 1, 1, handler)
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("RunBatch did not stop")
	}
	if got, _ := discarded.Load().(string); got != "bad" {
		t.Errorf("discarded = %q, want bad", got)
	}
}
