// Package hybrid layers a fast cache store over a durable archive. Writes
// must land in the durable store; cache failures are logged and ignored.
package hybrid

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/talentsift/research-sdk-go/history"
)

type Store struct {
	durable history.Store
	cache   history.Store
}

var _ history.Store = (*Store)(nil)

func New(durable, cache history.Store) (*Store, error) {
	if durable == nil {
		return nil, fmt.Errorf("durable store is required")
	}
	return &Store{durable: durable, cache: cache}, nil
}

func (h *Store) Save(ctx context.Context, record history.Record) error {
	if err := h.durable.Save(ctx, record); err != nil {
		return err
	}
	if h.cache != nil {
		if err := h.cache.Save(ctx, record); err != nil {
			log.Printf("hybrid history cache Save failed: %v", err)
		}
	}
	return nil
}

func (h *Store) Load(ctx context.Context, runID string) (history.Record, error) {
	if h.cache != nil {
		record, err := h.cache.Load(ctx, runID)
		if err == nil {
			return record, nil
		}
		if !errors.Is(err, history.ErrNotFound) {
			log.Printf("hybrid history cache Load failed: %v", err)
		}
	}

	record, err := h.durable.Load(ctx, runID)
	if err != nil {
		return history.Record{}, err
	}
	if h.cache != nil {
		if err := h.cache.Save(ctx, record); err != nil {
			log.Printf("hybrid history cache backfill Save failed: %v", err)
		}
	}
	return record, nil
}

func (h *Store) List(ctx context.Context, limit int) ([]history.Record, error) {
	return h.durable.List(ctx, limit)
}

func (h *Store) Delete(ctx context.Context, runID string) error {
	if err := h.durable.Delete(ctx, runID); err != nil {
		return err
	}
	if h.cache != nil {
		if err := h.cache.Delete(ctx, runID); err != nil && !errors.Is(err, history.ErrNotFound) {
			log.Printf("hybrid history cache Delete failed: %v", err)
		}
	}
	return nil
}

func (h *Store) Trim(ctx context.Context, keep int) error {
	if err := h.durable.Trim(ctx, keep); err != nil {
		return err
	}
	if h.cache != nil {
		if err := h.cache.Trim(ctx, keep); err != nil {
			log.Printf("hybrid history cache Trim failed: %v", err)
		}
	}
	return nil
}

func (h *Store) Close() error {
	var firstErr error
	if h.cache != nil {
		if err := h.cache.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if h.durable != nil {
		if err := h.durable.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
