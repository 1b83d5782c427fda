package store

import (
	"context"

	"github.com/ryanbastic/go-docshift/internal/circuitbreaker"
	"github.com/ryanbastic/go-docshift/internal/document"
)

// BreakerStore wraps a DocStore so that a flapping backend fails fast
// instead of letting every queued migration grind through timeouts.
// Per-document write conflicts travel inside WriteResults, not as call
// errors, so they never trip the breaker.
type BreakerStore struct {
	inner   DocStore
	breaker *circuitbreaker.Breaker
}

// WithBreaker decorates a DocStore with a circuit breaker.
func WithBreaker(inner DocStore, breaker *circuitbreaker.Breaker) *BreakerStore {
	return &BreakerStore{inner: inner, breaker: breaker}
}

func (s *BreakerStore) QueryView(ctx context.Context, q ViewQuery) (*ViewPage, error) {
	var page *ViewPage
	err := s.breaker.Execute(func() error {
		var err error
		page, err = s.inner.QueryView(ctx, q)
		return err
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (s *BreakerStore) MultiGet(ctx context.Context, ids []string) ([]*document.Document, error) {
	var docs []*document.Document
	err := s.breaker.Execute(func() error {
		var err error
		docs, err = s.inner.MultiGet(ctx, ids)
		return err
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

func (s *BreakerStore) BulkWrite(ctx context.Context, changes []document.Change) ([]document.WriteResult, error) {
	var results []document.WriteResult
	err := s.breaker.Execute(func() error {
		var err error
		results, err = s.inner.BulkWrite(ctx, changes)
		return err
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}
