package uploads

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"stablebatch/utils"

	"github.com/charmbracelet/log"
	json "github.com/goccy/go-json"
)

// Record maps local file paths to remote handles and persists the mapping as
// one JSON object. It is loaded lazily and written on every insert.
type Record struct {
	path string

	mu      sync.Mutex
	loaded  bool
	entries map[string]string
	log     *log.Logger
}

func NewRecord(path string) *Record {
	return &Record{
		path: path,
		log:  log.With("component", "upload-record"),
	}
}

func (r *Record) Path() string { return r.path }

func (r *Record) Get(local string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.load(); err != nil {
		return "", false, err
	}
	handle, ok := r.entries[local]
	return handle, ok, nil
}

// Put stores the handle for local and writes the whole record to disk before
// returning.
func (r *Record) Put(local, handle string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.load(); err != nil {
		return err
	}
	r.entries[local] = handle

	b, err := json.Marshal(r.entries)
	if err != nil {
		return fmt.Errorf("encode upload record: %w", err)
	}
	if err := utils.WriteFileAtomic(r.path, b); err != nil {
		return fmt.Errorf("write upload record %s: %w", r.path, err)
	}
	return nil
}

func (r *Record) Len() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.load(); err != nil {
		return 0, err
	}
	return len(r.entries), nil
}

func (r *Record) load() error {
	if r.loaded {
		return nil
	}

	entries := map[string]string{}
	b, err := os.ReadFile(r.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return fmt.Errorf("read upload record %s: %w", r.path, err)
	case len(b) > 0:
		if err := json.Unmarshal(b, &entries); err != nil {
			r.log.Warn("upload record unreadable, starting empty", "path", r.path, "err", err)
			entries = map[string]string{}
		}
	}

	r.entries = entries
	r.loaded = true
	return nil
}
