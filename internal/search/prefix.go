package search

import (
	"context"
	"fmt"

	"airwaves/api/internal/store"
	"airwaves/api/internal/username"
)

type usernameLister interface {
	ListUsernamesByPrefix(ctx context.Context, prefix string, limit int) ([]store.UsernameRecord, error)
	ListUsernames(ctx context.Context, afterKey string, limit int) ([]store.UsernameRecord, error)
}

// Prefix implements Searcher as a canonical-key prefix scan of the registry.
type Prefix struct {
	store usernameLister
}

func NewPrefix(s usernameLister) *Prefix {
	return &Prefix{store: s}
}

// Healthy always returns true; the registry store is a hard dependency.
func (p *Prefix) Healthy() bool {
	return true
}

// Search normalizes the query text and matches it against key prefixes.
// Offset is applied after the store query, so it is only cheap for the
// first few pages.
func (p *Prefix) Search(ctx context.Context, q Query) ([]Result, int, error) {
	prefix := username.Normalize(q.Text)
	if prefix == "" {
		return nil, 0, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	records, err := p.store.ListUsernamesByPrefix(ctx, prefix, offset+limit+1)
	if err != nil {
		return nil, 0, fmt.Errorf("prefix search %q: %w", prefix, err)
	}

	results := make([]Result, 0, limit)
	matched := 0
	for _, record := range records {
		if q.Status != "" && statusOf(record) != q.Status {
			continue
		}
		matched++
		if matched <= offset || len(results) == limit {
			continue
		}
		results = append(results, Result{
			Key:         record.CanonicalKey,
			DisplayName: record.DisplayName,
			Status:      statusOf(record),
		})
	}
	return results, matched, nil
}
