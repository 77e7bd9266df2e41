package client

import "time"

// StartRequest carries extra recollindex arguments for a start.
type StartRequest struct {
	Extra []string `json:"extra,omitempty"`
	// Async returns as soon as the request is queued.
	Async bool `json:"-"`
}

// DaemonStatus represents the supervisor status.
type DaemonStatus struct {
	Running     bool       `json:"running"`
	PID         int        `json:"pid,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	Failed      bool       `json:"failed"`
	Failure     string     `json:"failure,omitempty"`
	LastFailure *time.Time `json:"last_failure,omitempty"`
	Extra       []string   `json:"extra,omitempty"`
	HostKey     string     `json:"host_key,omitempty"`
	Pending     int        `json:"pending"`
}

// SearchResult is one search hit.
type SearchResult struct {
	URL       string    `json:"url"`
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Created   time.Time `json:"created"`
	Modified  time.Time `json:"modified"`
	Tags      []string  `json:"tags"`
	Relevance string    `json:"relevance"`
}

// SearchResponse is the body of the search endpoint.
type SearchResponse struct {
	Query   string         `json:"query"`
	Filter  string         `json:"filter"`
	Results []SearchResult `json:"results"`
}

// HistoryEvent is one recorded lifecycle event.
type HistoryEvent struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Record     struct {
		RunID   string `json:"run_id"`
		HostKey string `json:"host_key,omitempty"`
		PID     int    `json:"pid,omitempty"`
		Attempt int    `json:"attempt,omitempty"`
		Outcome string `json:"outcome,omitempty"`
		Error   string `json:"error,omitempty"`
	} `json:"record"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
