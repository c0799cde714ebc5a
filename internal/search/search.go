package search

import (
	"context"

	"airwaves/api/internal/store"
)

// Result is a single directory hit returned to the caller.
type Result struct {
	Key         string `json:"canonicalKey"`
	DisplayName string `json:"displayName"`
	Status      string `json:"status"`
	Highlight   string `json:"highlight,omitempty"`
}

// Query describes a directory search.
type Query struct {
	Text   string
	Status string // empty = any
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Source  string   `json:"source"`
}

// Searcher can execute a directory search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// UsernameDocument is the data we index for a registry record.
type UsernameDocument struct {
	CanonicalKey string `json:"canonicalKey"`
	DisplayName  string `json:"displayName"`
	Status       string `json:"status"`
	ClaimedAt    int64  `json:"claimedAt"`
}

const (
	StatusReserved = "reserved"
	StatusClaimed  = "claimed"
)

func documentFor(record store.UsernameRecord) UsernameDocument {
	return UsernameDocument{
		CanonicalKey: record.CanonicalKey,
		DisplayName:  record.DisplayName,
		Status:       statusOf(record),
		ClaimedAt:    record.ClaimedAt.Unix(),
	}
}

func statusOf(record store.UsernameRecord) string {
	if record.IsPending {
		return StatusReserved
	}
	return StatusClaimed
}
