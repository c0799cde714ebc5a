package search

import (
	"context"

	"go.uber.org/zap"

	"airwaves/api/internal/store"
)

const reindexPageSize = 500

// Service is the facade that tries Meilisearch first and falls back to a
// registry prefix scan.
type Service struct {
	meili    *Meili
	fallback *Prefix
	logger   *zap.Logger
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, fallback *Prefix, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{meili: meili, fallback: fallback, logger: logger}
}

func (s *Service) indexReady() bool {
	return s.meili != nil && s.meili.Healthy()
}

// Search tries Meilisearch if healthy, otherwise falls back to the prefix scan.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.indexReady() {
		results, total, err := s.meili.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Source: "index"}
		}
		s.logger.Warn("meilisearch error, falling back to prefix scan", zap.Error(err))
	}

	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.logger.Error("prefix search failed", zap.Error(err))
		return Response{Results: []Result{}, Total: 0, Query: q.Text, Source: "registry"}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text, Source: "registry"}
}

// IndexUsername indexes a registry record (fire-and-forget to Meilisearch).
func (s *Service) IndexUsername(_ context.Context, record store.UsernameRecord) {
	if !s.indexReady() {
		return
	}
	doc := documentFor(record)
	go func() {
		if err := s.meili.IndexUsernames([]UsernameDocument{doc}); err != nil {
			s.logger.Warn("index username failed", zap.String("key", doc.CanonicalKey), zap.Error(err))
		}
	}()
}

// RemoveUsername removes a key from the index (fire-and-forget).
func (s *Service) RemoveUsername(_ context.Context, key string) {
	if !s.indexReady() {
		return
	}
	go func() {
		if err := s.meili.DeleteUsername(key); err != nil {
			s.logger.Warn("remove username failed", zap.String("key", key), zap.Error(err))
		}
	}()
}

// ReindexAll pages through the registry and pushes every record to
// Meilisearch. It returns the number of records sent.
func (s *Service) ReindexAll(ctx context.Context) int {
	if !s.indexReady() || s.fallback == nil {
		return 0
	}
	sent := 0
	after := ""
	for {
		records, err := s.fallback.store.ListUsernames(ctx, after, reindexPageSize)
		if err != nil {
			s.logger.Warn("reindex load failed", zap.String("after", after), zap.Error(err))
			return sent
		}
		docs := make([]UsernameDocument, 0, len(records))
		for _, record := range records {
			docs = append(docs, documentFor(record))
		}
		if err := s.meili.IndexUsernames(docs); err != nil {
			s.logger.Warn("reindex push failed", zap.Error(err))
			return sent
		}
		sent += len(docs)
		if len(records) < reindexPageSize {
			s.logger.Info("username index rebuilt", zap.Int("records", sent))
			return sent
		}
		after = records[len(records)-1].CanonicalKey
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
