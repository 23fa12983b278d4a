// Package memory provides in-memory store implementations used in tests and
// in single-process deployments without PostgreSQL.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/stakestore/stakestore/internal/domain"
)

// WorkflowStore is a mutex-guarded in-memory domain.WorkflowStore.
type WorkflowStore struct {
	mu        sync.RWMutex
	workflows map[string]domain.StakeWorkflow
}

// NewWorkflowStore creates an empty store.
func NewWorkflowStore() *WorkflowStore {
	return &WorkflowStore{workflows: make(map[string]domain.StakeWorkflow)}
}

// Create inserts a new workflow, rejecting duplicates with ErrAlreadyExists.
func (s *WorkflowStore) Create(ctx context.Context, wf domain.StakeWorkflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workflows[wf.RequestID]; ok {
		return fmt.Errorf("memory: workflow %s: %w", wf.RequestID, domain.ErrAlreadyExists)
	}
	s.workflows[wf.RequestID] = wf
	return nil
}

// Get returns the workflow for requestID or ErrNotFound.
func (s *WorkflowStore) Get(ctx context.Context, requestID string) (domain.StakeWorkflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wf, ok := s.workflows[requestID]
	if !ok {
		return domain.StakeWorkflow{}, fmt.Errorf("memory: workflow %s: %w", requestID, domain.ErrNotFound)
	}
	return wf, nil
}

// Update overwrites an existing workflow or returns ErrNotFound.
func (s *WorkflowStore) Update(ctx context.Context, wf domain.StakeWorkflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workflows[wf.RequestID]; !ok {
		return fmt.Errorf("memory: workflow %s: %w", wf.RequestID, domain.ErrNotFound)
	}
	s.workflows[wf.RequestID] = wf
	return nil
}

// ListInFlight returns all non-terminal workflows ordered by creation time.
func (s *WorkflowStore) ListInFlight(ctx context.Context) ([]domain.StakeWorkflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.StakeWorkflow
	for _, wf := range s.workflows {
		if !wf.Phase.Terminal() {
			out = append(out, wf)
		}
	}
	sortByCreated(out)
	return out, nil
}

// ListByPhase returns workflows in the given phase with pagination.
func (s *WorkflowStore) ListByPhase(ctx context.Context, phase domain.WorkflowPhase, opts domain.ListOpts) ([]domain.StakeWorkflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []domain.StakeWorkflow
	for _, wf := range s.workflows {
		if wf.Phase != phase {
			continue
		}
		if opts.Since != nil && wf.CreatedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && wf.CreatedAt.After(*opts.Until) {
			continue
		}
		all = append(all, wf)
	}
	sortByCreated(all)

	if opts.Offset > 0 {
		if opts.Offset >= len(all) {
			return nil, nil
		}
		all = all[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(all) {
		all = all[:opts.Limit]
	}
	return all, nil
}

// ListTerminalBefore returns terminal workflows last updated before the
// given time.
func (s *WorkflowStore) ListTerminalBefore(ctx context.Context, before time.Time) ([]domain.StakeWorkflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.StakeWorkflow
	for _, wf := range s.workflows {
		if wf.Phase.Terminal() && wf.UpdatedAt.Before(before) {
			out = append(out, wf)
		}
	}
	sortByCreated(out)
	return out, nil
}

// Count returns the total number of workflow records.
func (s *WorkflowStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.workflows)), nil
}

func sortByCreated(wfs []domain.StakeWorkflow) {
	sort.Slice(wfs, func(i, j int) bool {
		if wfs[i].CreatedAt.Equal(wfs[j].CreatedAt) {
			return wfs[i].RequestID < wfs[j].RequestID
		}
		return wfs[i].CreatedAt.Before(wfs[j].CreatedAt)
	})
}
