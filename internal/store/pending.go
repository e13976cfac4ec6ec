package store

import (
	"sync"

	"stablebatch/internal/jobs"
)

// PendingQueue is the pending-queue document: a JSON array of entries whose
// jobs have not reached a terminal state. Every mutation rewrites the whole
// document under one lock.
type PendingQueue struct {
	path string
	mu   sync.Mutex
}

func NewPendingQueue(path string) *PendingQueue {
	return &PendingQueue{path: path}
}

func (q *PendingQueue) Path() string { return q.path }

// Load returns the entries on disk. A corrupt pending document is an error:
// silently resetting it would lose job ids.
func (q *PendingQueue) Load() ([]jobs.PendingEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load()
}

func (q *PendingQueue) load() ([]jobs.PendingEntry, error) {
	var entries []jobs.PendingEntry
	if _, err := readJSON(q.path, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Upsert replaces the entry with the same id or appends a new one.
func (q *PendingQueue) Upsert(entry jobs.PendingEntry) error {
	return q.Update(func(entries []jobs.PendingEntry) []jobs.PendingEntry {
		for i := range entries {
			if entries[i].ID == entry.ID {
				entries[i] = entry
				return entries
			}
		}
		return append(entries, entry)
	})
}

// Update runs fn over the current entries and writes back its result, all
// under the queue lock.
func (q *PendingQueue) Update(fn func([]jobs.PendingEntry) []jobs.PendingEntry) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.load()
	if err != nil {
		return err
	}
	next := fn(entries)
	if next == nil {
		next = []jobs.PendingEntry{}
	}
	return writeJSON(q.path, next)
}
