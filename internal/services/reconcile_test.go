package services

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"stablebatch/internal/clients/stable"
	"stablebatch/internal/jobs"
)

type stubPoller struct {
	mu      sync.Mutex
	calls   []string
	replies map[string]func() (*jobs.Response, error)
}

func (s *stubPoller) Fetch(_ context.Context, id, fetchURL string) (*jobs.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, id+"|"+fetchURL)
	fn, ok := s.replies[id]
	if !ok {
		return nil, errors.New("unexpected poll for " + id)
	}
	return fn()
}

func (f *fixture) reconciler(p Poller) *Reconciler {
	r := NewReconciler(p, f.pending, f.classifier, time.Second)
	r.sleep = func(context.Context, time.Duration) error { return nil }
	r.now = func() time.Time { return time.Date(2024, 5, 1, 13, 0, 0, 0, time.UTC) }
	return r
}

func (f *fixture) seedPending(t *testing.T, ids ...string) {
	t.Helper()
	for _, id := range ids {
		err := f.pending.Upsert(jobs.PendingEntry{ID: jobs.FlexibleID(id), ETA: 10, Available: "12:00:10"})
		if err != nil {
			t.Fatalf("seed pending: %v", err)
		}
	}
}

func TestReconcile_Partition(t *testing.T) {
	f := newFixture(t)
	f.seedPending(t, "1", "2", "3", "4", "5", "6")

	p := &stubPoller{replies: map[string]func() (*jobs.Response, error){
		"1": reply(t, `{"status":"success","id":1,"output":["https://cdn.example.com/1/a.png","https://cdn.example.com/1/b.png"]}`),
		"2": reply(t, `{"status":"processing","id":2,"eta":20}`),
		"3": reply(t, `{"status":"error","id":3,"message":"job expired"}`),
		"4": func() (*jobs.Response, error) { return nil, errors.New("timeout") },
		"5": undecodable,
		"6": reply(t, `{"status":"failed","id":6}`),
	}}

	summary, err := f.reconciler(p).Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if summary.Checked != 6 || summary.Completed != 1 || summary.Processing != 1 ||
		summary.Dropped != 2 || summary.Errored != 1 || summary.Undecoded != 1 || summary.Remaining != 3 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	pending := f.pendingIDs(t)
	if !slices.Equal(pending, []string{"2", "4", "5"}) {
		t.Fatalf("unexpected pending ids: %v", pending)
	}
	results := f.resultIDs(t)
	if _, ok := results["1"]; !ok || len(results) != 1 {
		t.Fatalf("unexpected completed ids: %v", results)
	}
	for _, id := range pending {
		if _, ok := results[id]; ok {
			t.Fatalf("id %s is both pending and completed", id)
		}
	}
	if len(f.images.calls["1"]) != 2 {
		t.Fatalf("images of job 1 not fetched: %v", f.images.calls)
	}

	entries, _ := f.pending.Load()
	if entries[0].ETA != 20 || entries[0].Available != "13:00:20" {
		t.Fatalf("processing entry not refreshed: %+v", entries[0])
	}
	if entries[1].Available != "12:00:10" {
		t.Fatalf("failed poll must leave the entry untouched: %+v", entries[1])
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.seedPending(t, "a", "b")

	p := &stubPoller{replies: map[string]func() (*jobs.Response, error){
		"a": reply(t, `{"status":"processing","id":"a","eta":5}`),
		"b": reply(t, `{"status":"processing","id":"b"}`),
	}}
	r := f.reconciler(p)

	for i := range 2 {
		if _, err := r.Reconcile(context.Background()); err != nil {
			t.Fatalf("pass %d: %v", i, err)
		}
		if got := f.pendingIDs(t); !slices.Equal(got, []string{"a", "b"}) {
			t.Fatalf("pass %d: pending set changed: %v", i, got)
		}
	}
	if len(f.resultIDs(t)) != 0 {
		t.Fatalf("nothing should be completed")
	}

	entries, _ := f.pending.Load()
	if entries[1].ETA != 10 {
		t.Fatalf("missing eta must keep the previous one, got %v", entries[1].ETA)
	}
}

func TestReconcile_UsesFetchResultAndJoinsMeta(t *testing.T) {
	f := newFixture(t)

	dispatched, err := jobs.Decode([]byte(`{"status":"processing","id":9,"eta":1,"fetch_result":"https://api.example.com/fetch/9","meta":{"seed":42}}`))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.classifier.Process(context.Background(), dispatched); err != nil {
		t.Fatal(err)
	}

	p := &stubPoller{replies: map[string]func() (*jobs.Response, error){
		"9": reply(t, `{"status":"success","output":["https://cdn.example.com/9/x.png"]}`),
	}}
	if _, err := f.reconciler(p).Reconcile(context.Background()); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if p.calls[0] != "9|https://api.example.com/fetch/9" {
		t.Fatalf("poll should use the fetch_result url: %v", p.calls)
	}
	entries, err := f.results.Entries()
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one result, got %v %v", entries, err)
	}
	meta, ok := entries[0]["meta"].(map[string]any)
	if !ok || meta["seed"] != float64(42) {
		t.Fatalf("meta not joined into the record: %v", entries[0])
	}
	if jobs.IDString(entries[0]["id"]) != "9" {
		t.Fatalf("record must carry the job id: %v", entries[0])
	}
	if len(f.pendingIDs(t)) != 0 {
		t.Fatalf("job should have left the pending queue")
	}
}

func TestReconcile_SuspendedPolls(t *testing.T) {
	f := newFixture(t)
	f.seedPending(t, "1", "2", "3")

	p := &stubPoller{replies: map[string]func() (*jobs.Response, error){
		"1": func() (*jobs.Response, error) { return nil, stable.ErrPollsSuspended },
	}}
	summary, err := f.reconciler(p).Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(p.calls) != 1 {
		t.Fatalf("polling must stop once suspended, got %v", p.calls)
	}
	if summary.Remaining != 3 || !slices.Equal(f.pendingIDs(t), []string{"1", "2", "3"}) {
		t.Fatalf("every entry must stay pending: %+v %v", summary, f.pendingIDs(t))
	}
}

func TestReconcile_SuccessWithoutOutputStaysPending(t *testing.T) {
	f := newFixture(t)
	f.seedPending(t, "1")

	p := &stubPoller{replies: map[string]func() (*jobs.Response, error){
		"1": reply(t, `{"status":"success","id":1,"output":[]}`),
	}}
	if _, err := f.reconciler(p).Reconcile(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(f.pendingIDs(t), []string{"1"}) || len(f.resultIDs(t)) != 0 {
		t.Fatalf("success without output must stay pending")
	}
}

func TestReconcile_KeepsConcurrentUpserts(t *testing.T) {
	f := newFixture(t)
	f.seedPending(t, "1")

	p := &stubPoller{replies: map[string]func() (*jobs.Response, error){
		"1": func() (*jobs.Response, error) {
			// a batch classifies a new job while the pass is running
			if err := f.pending.Upsert(jobs.PendingEntry{ID: "new", ETA: 3}); err != nil {
				t.Errorf("upsert: %v", err)
			}
			return jobs.Decode([]byte(`{"status":"failed","id":1}`))
		},
	}}
	if _, err := f.reconciler(p).Reconcile(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := f.pendingIDs(t); !slices.Equal(got, []string{"new"}) {
		t.Fatalf("unexpected pending ids: %v", got)
	}
}

func TestReconcile_Empty(t *testing.T) {
	f := newFixture(t)
	summary, err := f.reconciler(&stubPoller{}).Reconcile(context.Background())
	if err != nil || summary.Checked != 0 {
		t.Fatalf("unexpected result: %+v %v", summary, err)
	}
}
