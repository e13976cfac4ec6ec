package jobs

import (
	"errors"
	"fmt"
	"maps"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
)

const (
	dateTimeLayout  = "2006-01-02 15:04:05"
	availableLayout = "15:04:05"
)

var ErrNotObject = errors.New("response body is not a JSON object")

// Response is one reply of the generation API, either to a dispatch or to a
// fetch poll. Fields keeps every key of the body so persisted records carry
// whatever the API sent, not only the fields modelled here.
type Response struct {
	Status      string          `json:"status"`
	ID          FlexibleID      `json:"id"`
	Output      FlexibleStrings `json:"output,omitempty"`
	ETA         FlexibleFloat   `json:"eta,omitempty"`
	Meta        map[string]any  `json:"meta,omitempty"`
	Message     any             `json:"message,omitempty"`
	Tips        any             `json:"tips,omitempty"`
	FetchResult string          `json:"fetch_result,omitempty"`

	Fields map[string]any `json:"-"`
}

// Decode parses a response body. Any body that is not a JSON object is an error.
func Decode(body []byte) (*Response, error) {
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if fields == nil {
		return nil, ErrNotObject
	}

	var r Response
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("decode response fields: %w", err)
	}
	r.Fields = fields
	return &r, nil
}

func (r *Response) State() Status {
	return ParseStatus(r.Status)
}

func (r *Response) JobID() string {
	return r.ID.String()
}

// Record is the completed-results form of a response: the original body plus
// a date_time stamp and the joined generation meta.
func (r *Response) Record(now time.Time) map[string]any {
	rec := make(map[string]any, len(r.Fields)+2)
	maps.Copy(rec, r.Fields)
	if _, ok := rec["status"]; !ok {
		rec["status"] = r.Status
	}
	if _, ok := rec["id"]; !ok && r.ID != "" {
		rec["id"] = r.JobID()
	}
	if _, ok := rec["output"]; !ok && len(r.Output) > 0 {
		rec["output"] = []string(r.Output)
	}
	if r.Meta != nil {
		rec["meta"] = r.Meta
	}
	rec["date_time"] = now.Format(dateTimeLayout)
	return rec
}

// PendingEntry is one element of the pending-queue document.
type PendingEntry struct {
	ID          FlexibleID    `json:"id"`
	ETA         FlexibleFloat `json:"eta"`
	FetchResult string        `json:"fetch_result,omitempty"`
	Available   string        `json:"available"`
}

func NewPendingEntry(r *Response, now time.Time) PendingEntry {
	return PendingEntry{
		ID:          r.ID,
		ETA:         r.ETA,
		FetchResult: r.FetchResult,
		Available:   Available(now, float64(r.ETA)),
	}
}

// Refresh returns a copy with a new ETA and availability computed from a
// poll that still reports processing. A zero eta keeps the previous one.
func (e PendingEntry) Refresh(r *Response, now time.Time) PendingEntry {
	if r.ETA > 0 {
		e.ETA = r.ETA
	}
	if r.FetchResult != "" {
		e.FetchResult = r.FetchResult
	}
	e.Available = Available(now, float64(e.ETA))
	return e
}

// Available is the wall-clock time (HH:MM:SS) at which a job should be done.
// Fractional seconds are truncated.
func Available(now time.Time, eta float64) string {
	return now.Add(time.Duration(int64(eta)) * time.Second).Format(availableLayout)
}

// MessageText renders the message/tips fields, which the API sends as strings,
// lists or objects depending on the failure.
func MessageText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
