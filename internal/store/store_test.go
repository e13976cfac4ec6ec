package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"stablebatch/internal/jobs"
)

func TestResultLog_AppendSkipsKnownIDs(t *testing.T) {
	l := NewResultLog(filepath.Join(t.TempDir(), "master.json"))

	wrote, err := l.Append("1", map[string]any{"id": 1, "status": "success"})
	if err != nil || !wrote {
		t.Fatalf("first append: wrote=%v err=%v", wrote, err)
	}
	wrote, err = l.Append("1", map[string]any{"id": "1", "status": "success"})
	if err != nil || wrote {
		t.Fatalf("duplicate append: wrote=%v err=%v", wrote, err)
	}
	if _, err := l.Append("2", map[string]any{"id": 2}); err != nil {
		t.Fatalf("append: %v", err)
	}

	entries, _ := l.Entries()
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	ids, _ := l.IDs()
	if _, ok := ids["2"]; !ok {
		t.Fatalf("ids = %v", ids)
	}
}

func TestResultLog_CorruptFileIsKept(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "master.json")
	l := NewResultLog(path)
	for _, id := range []string{"1", "2", "3"} {
		if _, err := l.Append(id, map[string]any{"id": id}); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	damaged := append(b[:len(b)-1], []byte(",]")...)
	if err := os.WriteFile(path, damaged, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := l.Append("4", map[string]any{"id": "4"}); err != nil {
		t.Fatalf("append after damage: %v", err)
	}

	matches, err := filepath.Glob(path + ".corrupt-*")
	if err != nil || len(matches) != 1 {
		t.Fatalf("damaged log not moved aside: %v %v", matches, err)
	}
	kept, err := os.ReadFile(matches[0])
	if err != nil || string(kept) != string(damaged) {
		t.Fatalf("moved log differs from the damaged one: %v", err)
	}
	for _, id := range []string{"1", "2", "3"} {
		if !strings.Contains(string(kept), `"`+id+`"`) {
			t.Fatalf("record %s lost", id)
		}
	}

	ids, err := l.IDs()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := ids["4"]; !ok || len(ids) != 1 {
		t.Fatalf("ids = %v", ids)
	}
}

func TestResultLog_ReadErrorIsReturned(t *testing.T) {
	path := filepath.Join(t.TempDir(), "master.json")
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatal(err)
	}
	l := NewResultLog(path)
	if _, err := l.Append("1", map[string]any{"id": "1"}); err == nil {
		t.Fatalf("append over an unreadable log must fail")
	}
	if _, err := l.Entries(); err == nil {
		t.Fatalf("entries of an unreadable log must fail")
	}
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		t.Fatalf("unreadable log was replaced: %v", err)
	}
}

func TestPendingQueue(t *testing.T) {
	q := NewPendingQueue(filepath.Join(t.TempDir(), "processing.json"))

	entries, err := q.Load()
	if err != nil || len(entries) != 0 {
		t.Fatalf("empty load: %v %v", entries, err)
	}

	if err := q.Upsert(jobs.PendingEntry{ID: "1", ETA: 10, Available: "10:00:00"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := q.Upsert(jobs.PendingEntry{ID: "2", ETA: 5, Available: "10:00:05"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := q.Upsert(jobs.PendingEntry{ID: "1", ETA: 20, Available: "10:01:00"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	entries, err = q.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(entries) != 2 || entries[0].ID != "1" || entries[0].ETA != 20 || entries[1].ID != "2" {
		t.Fatalf("entries = %+v", entries)
	}

	if err := q.Update(func([]jobs.PendingEntry) []jobs.PendingEntry { return nil }); err != nil {
		t.Fatalf("update: %v", err)
	}
	b, _ := os.ReadFile(q.Path())
	if strings.TrimSpace(string(b)) != "[]" {
		t.Fatalf("emptied document = %q", b)
	}
}

func TestPendingQueue_WritesNumericIDsAsNumbers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processing.json")
	q := NewPendingQueue(path)
	for _, id := range []string{"123", "abc"} {
		if err := q.Upsert(jobs.PendingEntry{ID: jobs.FlexibleID(id), ETA: 5}); err != nil {
			t.Fatal(err)
		}
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"id": 123`) || !strings.Contains(string(b), `"id": "abc"`) {
		t.Fatalf("unexpected document:\n%s", b)
	}

	entries, err := q.Load()
	if err != nil || len(entries) != 2 || entries[0].ID != "123" {
		t.Fatalf("reload: %v %v", entries, err)
	}
}

func TestPendingQueue_ReadsNumericIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processing.json")
	doc := `[{"id": 123, "eta": 12.5, "fetch_result": "https://api/fetch/123", "available": "12:00:00"}]`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	entries, err := NewPendingQueue(path).Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "123" || entries[0].FetchResult == "" {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestPendingQueue_CorruptIsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processing.json")
	if err := os.WriteFile(path, []byte("[{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewPendingQueue(path).Load(); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestMetaStore(t *testing.T) {
	dir := t.TempDir()
	m := NewMetaStore(dir)

	if err := m.Write("77", map[string]any{"id": 77, "meta": map[string]any{"prompt": "a cat"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "77", "json", "77.json")); err != nil {
		t.Fatalf("meta file missing: %v", err)
	}
	meta, err := m.Meta("77")
	if err != nil || meta["prompt"] != "a cat" {
		t.Fatalf("meta = %v, err = %v", meta, err)
	}

	missing, err := m.Meta("78")
	if err != nil || missing != nil {
		t.Fatalf("missing meta = %v, err = %v", missing, err)
	}

	if _, err := m.Path("../../escape"); err == nil {
		t.Fatalf("expected traversal error")
	}
}
