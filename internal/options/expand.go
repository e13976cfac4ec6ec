package options

import (
	"fmt"
	"maps"
	"strings"
)

// Combo is one selection from every parameter of an option set.
type Combo struct {
	Index  int
	keys   []string
	values map[string]any
}

func NewCombo(index int, keys []string, values map[string]any) Combo {
	return Combo{Index: index, keys: keys, values: values}
}

// Expand returns the Cartesian product of s in lexicographic order over the
// declared keys: the last key varies fastest.
func Expand(s OptionSet) []Combo {
	total := s.Count()
	if total == 0 {
		return nil
	}

	keys := s.Keys()
	combos := make([]Combo, 0, total)
	idx := make([]int, len(s))
	for n := 0; n < total; n++ {
		values := make(map[string]any, len(s))
		for i, p := range s {
			values[p.Key] = p.Values[idx[i]]
		}
		combos = append(combos, Combo{Index: n, keys: keys, values: values})

		for i := len(idx) - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < len(s[i].Values) {
				break
			}
			idx[i] = 0
		}
	}
	return combos
}

func (c Combo) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

func (c *Combo) Set(key string, v any) {
	if c.values == nil {
		c.values = map[string]any{}
	}
	if _, ok := c.values[key]; !ok {
		c.keys = append(append([]string(nil), c.keys...), key)
	}
	c.values[key] = v
}

// Call is the job type the combo is dispatched as.
func (c Combo) Call() string {
	v, ok := c.values[KeyCall]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// Body returns the request parameters: every value except the call.
func (c Combo) Body() map[string]any {
	body := maps.Clone(c.values)
	if body == nil {
		body = map[string]any{}
	}
	delete(body, KeyCall)
	return body
}

func (c Combo) String() string {
	var sb strings.Builder
	for i, k := range c.keys {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%s=%v", k, c.values[k])
	}
	return sb.String()
}
