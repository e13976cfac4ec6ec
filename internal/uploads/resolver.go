package uploads

import (
	"context"
	"fmt"
	"path/filepath"

	"stablebatch/internal/metrics"
	"stablebatch/internal/options"
	"stablebatch/utils"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"
)

// Uploader sends one local file to the upload service and returns its handle.
type Uploader interface {
	Upload(ctx context.Context, path string) (string, error)
}

// Resolver turns local image references into remote handles, uploading each
// distinct path at most once across the lifetime of its Record.
type Resolver struct {
	record   *Record
	uploader Uploader
	group    singleflight.Group
	metrics  *metrics.Metrics
	log      *log.Logger
}

func NewResolver(record *Record, uploader Uploader, m *metrics.Metrics) *Resolver {
	return &Resolver{
		record:   record,
		uploader: uploader,
		metrics:  m,
		log:      log.With("component", "uploads"),
	}
}

// Handle returns the remote handle for one reference. Concurrent callers
// asking for the same path share a single upload.
func (r *Resolver) Handle(ctx context.Context, ref string) (string, error) {
	if utils.IsRemote(ref) {
		r.metrics.Uploads.WithLabelValues("remote").Inc()
		return ref, nil
	}

	local := filepath.Clean(ref)
	if handle, ok, err := r.lookup(ref, local); err != nil {
		return "", err
	} else if ok {
		r.metrics.Uploads.WithLabelValues("hit").Inc()
		return handle, nil
	}

	v, err, _ := r.group.Do(local, func() (interface{}, error) {
		// another flight may have stored it between our lookup and Do
		if handle, ok, err := r.lookup(ref, local); err != nil || ok {
			return handle, err
		}
		if !utils.Exists(local) {
			return "", fmt.Errorf("%w: %s", ErrFileNotFound, local)
		}

		r.log.Info("uploading image", "path", local)
		handle, err := r.uploader.Upload(ctx, local)
		if err != nil {
			return "", fmt.Errorf("upload %s: %w", local, err)
		}
		if handle == "" {
			return "", nil
		}
		if err := r.record.Put(local, handle); err != nil {
			return "", err
		}
		r.metrics.Uploads.WithLabelValues("miss").Inc()
		return handle, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// lookup checks the cleaned path first, then the reference as written: older
// records keep keys such as "./in/a.png" verbatim.
func (r *Resolver) lookup(ref, local string) (string, bool, error) {
	handle, ok, err := r.record.Get(local)
	if err != nil || ok || ref == local {
		return handle, ok, err
	}
	return r.record.Get(ref)
}

// ResolveValues normalizes image field values and maps every resulting path
// to its handle. The resolution fails as a whole unless every path resolved.
func (r *Resolver) ResolveValues(ctx context.Context, values []any) ([]any, error) {
	paths, err := NormalizePaths(values)
	if err != nil {
		return nil, err
	}

	handles := make([]any, 0, len(paths))
	for _, p := range paths {
		handle, err := r.Handle(ctx, p)
		if err != nil {
			return nil, err
		}
		if handle == "" {
			r.log.Warn("upload returned no handle", "path", p)
			continue
		}
		handles = append(handles, handle)
	}

	if len(handles) != len(paths) {
		return nil, fmt.Errorf("%w: %d of %d", ErrCountMismatch, len(handles), len(paths))
	}
	return handles, nil
}

// Resolve replaces combo[key] with its remote handle(s). A missing key is a no-op.
func (r *Resolver) Resolve(ctx context.Context, combo *options.Combo, key string) error {
	v, ok := combo.Get(key)
	if !ok || v == nil {
		return nil
	}
	handles, err := r.ResolveValues(ctx, []any{v})
	if err != nil {
		return fmt.Errorf("resolve %s: %w", key, err)
	}
	if len(handles) == 1 {
		combo.Set(key, handles[0])
	} else {
		combo.Set(key, handles)
	}
	return nil
}

// ResolveOption resolves every candidate of key in an option set, so a
// directory becomes one candidate per image before expansion.
func (r *Resolver) ResolveOption(ctx context.Context, set *options.OptionSet, key string) error {
	values, ok := set.Get(key)
	if !ok || len(values) == 0 {
		return nil
	}
	handles, err := r.ResolveValues(ctx, values)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", key, err)
	}
	set.Set(key, handles)
	return nil
}
