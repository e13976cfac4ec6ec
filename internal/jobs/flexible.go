package jobs

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// FlexibleID unmarshals job ids that the API sends either as numbers or strings.
type FlexibleID string

func (id *FlexibleID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("invalid id JSON: %w", err)
		}
		*id = FlexibleID(strings.TrimSpace(s))
		return nil
	}
	if _, err := strconv.ParseFloat(string(b), 64); err != nil {
		return fmt.Errorf("invalid id %q", string(b))
	}
	*id = FlexibleID(b)
	return nil
}

// MarshalJSON writes integer ids back as numbers, as the API sent them.
// Anything else, including ids with leading zeros, stays a string.
func (id FlexibleID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(id) {
		return []byte(string(id)), nil
	}
	return json.Marshal(string(id))
}

func (id FlexibleID) String() string { return string(id) }

// FlexibleStrings accepts either a single string or a list of strings.
// The upscale endpoint returns "output" as a bare URL, the others as a list.
type FlexibleStrings []string

func (s *FlexibleStrings) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*s = nil
		return nil
	}
	switch b[0] {
	case '"':
		var one string
		if err := json.Unmarshal(b, &one); err != nil {
			return err
		}
		if one == "" {
			*s = nil
			return nil
		}
		*s = FlexibleStrings{one}
		return nil
	case '[':
		var raw []any
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		out := make(FlexibleStrings, 0, len(raw))
		for _, v := range raw {
			if str, ok := v.(string); ok && str != "" {
				out = append(out, str)
			}
		}
		*s = out
		return nil
	default:
		return fmt.Errorf("invalid output JSON: %q", string(b))
	}
}

// FlexibleFloat accepts numbers and numeric strings ("12.5").
type FlexibleFloat float64

func (f *FlexibleFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}
	s := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid number %q", s)
	}
	*f = FlexibleFloat(v)
	return nil
}

// IDString renders an id taken from a generically decoded document.
func IDString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
