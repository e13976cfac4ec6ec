package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"stablebatch/internal/jobs"
	"stablebatch/internal/options"

	"gopkg.in/yaml.v3"
)

var ErrMissingTemplate = errors.New("no parameter template for call")

// Generator is the generation API as the dispatcher sees it.
type Generator interface {
	Dispatch(ctx context.Context, call string, body map[string]any) (*jobs.Response, error)
}

// Dispatcher overlays a combo on the baseline template of its call type and
// sends it with the API key.
type Dispatcher struct {
	client       Generator
	templatesDir string
	apiKey       string

	mu        sync.Mutex
	templates map[string]map[string]any
}

func NewDispatcher(client Generator, templatesDir, apiKey string) *Dispatcher {
	return &Dispatcher{
		client:       client,
		templatesDir: templatesDir,
		apiKey:       apiKey,
		templates:    map[string]map[string]any{},
	}
}

// Template returns a copy of the baseline parameters for call, read from
// <templatesDir>/<call>.yml (or .yaml).
func (d *Dispatcher) Template(call string) (map[string]any, error) {
	if call == "" || call != filepath.Base(call) {
		return nil, fmt.Errorf("%w: %q", ErrMissingTemplate, call)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if t, ok := d.templates[call]; ok {
		return maps.Clone(t), nil
	}

	var (
		b   []byte
		err error
	)
	for _, ext := range []string{".yml", ".yaml"} {
		b, err = os.ReadFile(filepath.Join(d.templatesDir, call+ext))
		if err == nil || !errors.Is(err, fs.ErrNotExist) {
			break
		}
	}
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %q in %s", ErrMissingTemplate, call, d.templatesDir)
	}
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", call, err)
	}

	t := map[string]any{}
	if err := yaml.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("parse template %s: %w", call, err)
	}
	d.templates[call] = t
	return maps.Clone(t), nil
}

// Body builds the request body: template, then combo values, then the key.
func (d *Dispatcher) Body(combo options.Combo) (map[string]any, error) {
	body, err := d.Template(combo.Call())
	if err != nil {
		return nil, err
	}
	maps.Copy(body, combo.Body())
	body["key"] = d.apiKey
	return body, nil
}

// Dispatch performs one call. A nil response with a nil error means the body
// could not be decoded.
func (d *Dispatcher) Dispatch(ctx context.Context, combo options.Combo) (*jobs.Response, error) {
	if combo.Call() == "" {
		return nil, options.ErrNoCall
	}
	body, err := d.Body(combo)
	if err != nil {
		return nil, err
	}
	return d.client.Dispatch(ctx, combo.Call(), body)
}
