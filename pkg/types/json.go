package types

// UploadResponse is the JSON body returned for one upload batch
type UploadResponse struct {
	BatchID           string         `json:"batch_id"`
	SavedFiles        []string       `json:"saved_files"`
	DeletedDuplicates []string       `json:"deleted_duplicates"`
	SkippedFiles      []SkippedFile  `json:"skipped_files"`
	FailedFiles       []FailedFile   `json:"failed_files"`
	User              string         `json:"user"`
	Decisions         []DecisionView `json:"decisions,omitempty"`
}

// SkippedFile is an item that was neither kept nor reported as a duplicate
type SkippedFile struct {
	Name   string `json:"name"`
	Reason string `json:"reason"` // "unsupported" or "undecodable"
}

// FailedFile is an accepted item that could not be persisted
type FailedFile struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

// DecisionView is the wire form of a single duplicate decision
type DecisionView struct {
	Name         string `json:"name"`
	Family       string `json:"family"`
	Status       string `json:"status"` // accepted, duplicate, skipped
	MatchedLabel string `json:"matched_label,omitempty"`
	Distance     int    `json:"distance,omitempty"`
	Key          string `json:"key,omitempty"` // digest or fingerprint of accepted items
	MIME         string `json:"mime,omitempty"` // sniffed from content
	Path         string `json:"path,omitempty"`
	Size         int64  `json:"size,omitempty"`
	Renamed      bool   `json:"renamed,omitempty"` // stored under a suffixed name, see Path
	Existed      bool   `json:"existed,omitempty"` // identical bytes were already stored at Path

	// MatchFailed marks a duplicate whose matched file could not be saved; the client should resend it.
	MatchFailed bool `json:"match_failed,omitempty"`
}

// ScanReport is the JSON output of the scan command
type ScanReport struct {
	BatchID    string         `json:"batch_id"`
	Accepted   []string       `json:"accepted"`
	Duplicates []string       `json:"duplicates"`
	Skipped    []SkippedFile  `json:"skipped"`
	Decisions  []DecisionView `json:"decisions"`
}

// Message is a simple informational response
type Message struct {
	Message string `json:"message"`
}

// ErrorResponse is returned for failed requests
type ErrorResponse struct {
	Error string `json:"error"`
}
