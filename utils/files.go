package utils

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

func FileNameFromCd(cd string) string {
	_, params, err := mime.ParseMediaType(cd)
	if err != nil {
		return ""
	}
	fn := strings.TrimSpace(params["filename"])
	fn = strings.ReplaceAll(fn, string(os.PathSeparator), "_")
	return fn
}

// FileNameFromURL returns the last path element of a URL, ignoring query and fragment.
func FileNameFromURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return ""
	}
	return name
}

func IsRemote(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// prevents directory traversal; only resolves under base
func SafeSubdir(base, subdir string) (string, error) {
	subdir = strings.TrimSpace(subdir)
	subdir = strings.TrimPrefix(subdir, "/")
	subdir = strings.TrimPrefix(subdir, "\\")
	clean := filepath.Clean(subdir)

	if clean == "." || clean == "" {
		return filepath.Abs(base)
	}

	baseAbs, err := filepath.Abs(base)
	if err != nil {
		return "", err
	}
	joinedAbs, err := filepath.Abs(filepath.Join(base, clean))
	if err != nil {
		return "", err
	}

	sep := string(os.PathSeparator)
	if !(joinedAbs == baseAbs || strings.HasPrefix(joinedAbs, baseAbs+sep)) {
		return "", errors.New("path traversal detected")
	}
	return joinedAbs, nil
}

// WriteFileAtomic writes data next to path and renames it into place, so
// readers never observe a half-written document.
func WriteFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", path, err)
	}

	tmpPath := path + ".part"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func NewJobID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
