package store

import (
	"fmt"
	"path/filepath"

	"stablebatch/utils"
)

// MetaStore keeps one JSON document per job at <dir>/<id>/json/<id>.json.
type MetaStore struct {
	dir string
}

func NewMetaStore(dir string) *MetaStore {
	return &MetaStore{dir: dir}
}

func (m *MetaStore) Path(id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("meta: empty job id")
	}
	jobDir, err := utils.SafeSubdir(m.dir, filepath.Join(id, "json"))
	if err != nil {
		return "", fmt.Errorf("meta: job %s: %w", id, err)
	}
	return filepath.Join(jobDir, id+".json"), nil
}

func (m *MetaStore) Write(id string, doc map[string]any) error {
	path, err := m.Path(id)
	if err != nil {
		return err
	}
	return writeJSON(path, doc)
}

// Meta returns the "meta" object recorded for id, or nil when there is none.
func (m *MetaStore) Meta(id string) (map[string]any, error) {
	path, err := m.Path(id)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if _, err := readJSON(path, &doc); err != nil {
		return nil, err
	}
	meta, _ := doc["meta"].(map[string]any)
	return meta, nil
}
