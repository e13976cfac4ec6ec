package jobs

import "strings"

// Status is the closed set of job states the generation API reports.
type Status int

const (
	StatusUnknown Status = iota
	StatusSuccess
	StatusProcessing
	StatusError
	StatusFailed
)

func ParseStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "success":
		return StatusSuccess
	case "processing":
		return StatusProcessing
	case "error":
		return StatusError
	case "failed":
		return StatusFailed
	default:
		return StatusUnknown
	}
}

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusProcessing:
		return "processing"
	case StatusError:
		return "error"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the remote job will not change state again.
// Unknown is not terminal: its id stays pending until a recognised status shows up.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusError, StatusFailed:
		return true
	default:
		return false
	}
}
