package uploads

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"stablebatch/utils"
)

var (
	ErrFileNotFound  = errors.New("file not found")
	ErrCountMismatch = errors.New("resolved handle count does not match input paths")
)

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".tiff": true,
	".bmp":  true,
	".gif":  true,
	".webp": true,
}

func IsImage(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

// NormalizePaths flattens image field values into an ordered list of concrete
// references. A file path is kept, a directory expands recursively to its
// image files in lexical order, a list is flattened and remote URLs pass
// through untouched.
func NormalizePaths(values []any) ([]string, error) {
	var out []string
	for _, v := range values {
		switch t := v.(type) {
		case nil:
			continue
		case []any:
			nested, err := NormalizePaths(t)
			if err != nil {
				return nil, err
			}
			out = append(out, nested...)
		case string:
			paths, err := normalizeOne(t)
			if err != nil {
				return nil, err
			}
			out = append(out, paths...)
		default:
			return nil, fmt.Errorf("unsupported image reference %v (%T)", v, v)
		}
	}
	return out, nil
}

func normalizeOne(ref string) ([]string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, nil
	}
	if utils.IsRemote(ref) {
		return []string{ref}, nil
	}

	info, err := os.Stat(ref)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, ref)
		}
		return nil, err
	}
	if !info.IsDir() {
		return []string{ref}, nil
	}

	var files []string
	err = filepath.WalkDir(ref, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && IsImage(d.Name()) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", ref, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no images under %s", ErrFileNotFound, ref)
	}
	return files, nil
}
