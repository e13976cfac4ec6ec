package store

import (
	"fmt"
	"os"
	"sync"
	"time"

	"stablebatch/internal/jobs"

	"github.com/charmbracelet/log"
)

// ResultLog is the append-only completed-results document: one JSON array of
// records, each a full job response plus its date_time stamp.
type ResultLog struct {
	path string
	mu   sync.Mutex
	log  *log.Logger
}

func NewResultLog(path string) *ResultLog {
	return &ResultLog{
		path: path,
		log:  log.With("component", "results"),
	}
}

func (l *ResultLog) Path() string { return l.path }

// Entries returns every record. A log that no longer decodes is moved aside
// (see load) and reads as empty; any other read failure is returned.
func (l *ResultLog) Entries() ([]map[string]any, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load()
}

// load never lets a damaged log be overwritten: an undecodable file is renamed
// to <path>.corrupt-<timestamp> before a new log is started.
func (l *ResultLog) load() ([]map[string]any, error) {
	var entries []map[string]any
	found, err := readJSON(l.path, &entries)
	if err == nil {
		return entries, nil
	}
	if !found {
		return nil, err
	}

	aside := fmt.Sprintf("%s.corrupt-%s", l.path, time.Now().Format("20060102-150405.000"))
	if rerr := os.Rename(l.path, aside); rerr != nil {
		return nil, fmt.Errorf("move aside unreadable results log: %w (%v)", rerr, err)
	}
	l.log.Warn("results log unreadable, moved aside and starting a new one", "path", l.path, "movedTo", aside, "err", err)
	return nil, nil
}

// Append adds record unless a record with the same id is already present.
// It reports whether the record was written.
func (l *ResultLog) Append(id string, record map[string]any) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.load()
	if err != nil {
		return false, err
	}
	if id != "" {
		for _, e := range entries {
			if jobs.IDString(e["id"]) == id {
				return false, nil
			}
		}
	}

	entries = append(entries, record)
	if err := writeJSON(l.path, entries); err != nil {
		return false, err
	}
	return true, nil
}

func (l *ResultLog) IDs() (map[string]struct{}, error) {
	entries, err := l.Entries()
	if err != nil {
		return nil, err
	}
	ids := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if id := jobs.IDString(e["id"]); id != "" {
			ids[id] = struct{}{}
		}
	}
	return ids, nil
}
