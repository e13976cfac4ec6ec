// Package options turns a declarative option document into the Cartesian
// product of concrete request parameter sets.
package options

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

const (
	KeyCall      = "call"
	KeyPrompt    = "prompt"
	KeyInitImage = "init_image"
	KeyMaskImage = "mask_image"
)

var (
	ErrNoCall     = errors.New("option set has no call")
	ErrNotMapping = errors.New("option document must be a mapping")
)

// batchKeys are never split on commas: every prompt and every init image is
// its own axis value.
var batchKeys = map[string]bool{
	KeyPrompt:    true,
	KeyInitImage: true,
}

// Param is one parameter and its candidate values.
type Param struct {
	Key    string
	Values []any
}

// OptionSet keeps parameters in declaration order; that order drives combo order.
type OptionSet []Param

func Load(path string) (OptionSet, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read options %s: %w", path, err)
	}
	set, err := FromYAML(b)
	if err != nil {
		return nil, fmt.Errorf("options %s: %w", path, err)
	}
	return set, nil
}

// FromYAML parses and normalizes an option document.
func FromYAML(b []byte) (OptionSet, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return OptionSet{}, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, ErrNotMapping
	}

	raw := make([]rawParam, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		var value any
		if err := root.Content[i+1].Decode(&value); err != nil {
			return nil, fmt.Errorf("key %q: %w", root.Content[i].Value, err)
		}
		raw = append(raw, rawParam{key: root.Content[i].Value, value: value})
	}
	return normalize(raw), nil
}

type rawParam struct {
	key   string
	value any
}

// FromMap builds an option set from already decoded values. Keys are taken
// in the order given by keys; keys missing from values are skipped.
func FromMap(keys []string, values map[string]any) OptionSet {
	raw := make([]rawParam, 0, len(keys))
	for _, k := range keys {
		v, ok := values[k]
		if !ok {
			continue
		}
		raw = append(raw, rawParam{key: k, value: v})
	}
	return normalize(raw)
}

func normalize(raw []rawParam) OptionSet {
	set := make(OptionSet, 0, len(raw))
	for _, p := range raw {
		if p.value == nil {
			continue
		}
		set = append(set, Param{Key: p.key, Values: Normalize(p.key, p.value)})
	}
	return set
}

// Normalize returns the candidate list for one parameter. Lists pass through,
// numeric comma-separated strings split, everything else becomes a single value.
func Normalize(key string, value any) []any {
	switch v := value.(type) {
	case []any:
		return v
	case string:
		if batchKeys[key] {
			return []any{v}
		}
		parts := SplitNumeric(v)
		out := make([]any, len(parts))
		for i, p := range parts {
			out[i] = p
		}
		return out
	default:
		return []any{v}
	}
}

// SplitNumeric splits "1,2.5,3" into its tokens. Strings that are not purely
// digits, dots and commas come back as a single token.
func SplitNumeric(s string) []string {
	stripped := strings.NewReplacer(",", "", ".", "").Replace(s)
	if stripped == "" {
		return []string{s}
	}
	for _, r := range stripped {
		if !unicode.IsDigit(r) {
			return []string{s}
		}
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func (s OptionSet) Get(key string) ([]any, bool) {
	for _, p := range s {
		if p.Key == key {
			return p.Values, true
		}
	}
	return nil, false
}

// Set replaces the values of key, appending the key if it is new.
func (s *OptionSet) Set(key string, values []any) {
	for i := range *s {
		if (*s)[i].Key == key {
			(*s)[i].Values = values
			return
		}
	}
	*s = append(*s, Param{Key: key, Values: values})
}

func (s OptionSet) Keys() []string {
	keys := make([]string, len(s))
	for i, p := range s {
		keys[i] = p.Key
	}
	return keys
}

// Count is the number of combos Expand will produce.
func (s OptionSet) Count() int {
	n := 1
	for _, p := range s {
		n *= len(p.Values)
	}
	return n
}

// HasCall reports whether any candidate value of "call" equals call.
func (s OptionSet) HasCall(call string) bool {
	values, _ := s.Get(KeyCall)
	for _, v := range values {
		if fmt.Sprint(v) == call {
			return true
		}
	}
	return false
}
