package types

type BatchRequest struct {
	OptionsPath string `json:"optionsPath"`
}

type BatchSummary struct {
	RunID      string `json:"runId"`
	Combos     int    `json:"combos"`
	Success    int    `json:"success"`
	Processing int    `json:"processing"`
	Failed     int    `json:"failed"`
	Unknown    int    `json:"unknown"`
	Undecoded  int    `json:"undecoded"`
}

type ReconcileSummary struct {
	Checked    int `json:"checked"`
	Completed  int `json:"completed"`
	Processing int `json:"processing"`
	Dropped    int `json:"dropped"`
	Unknown    int `json:"unknown"`
	Undecoded  int `json:"undecoded"`
	Errored    int `json:"errored"`
	Remaining  int `json:"remaining"`
}

type SyncSummary struct {
	Jobs       int `json:"jobs"`
	Downloaded int `json:"downloaded"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

type PendingEntry struct {
	ID          string  `json:"id"`
	ETA         float64 `json:"eta"`
	FetchResult string  `json:"fetchResult,omitempty"`
	Available   string  `json:"available"`
}

type PendingResponse struct {
	Entries []PendingEntry `json:"entries"`
}

type ErrorResponse struct {
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

type HealthResponse struct {
	Status    int   `json:"status"`
	TimeStamp int64 `json:"timestamp"`
}
