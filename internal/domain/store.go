package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// WorkflowStore persists stake workflow records.
//
// Create must reject a duplicate request id with ErrAlreadyExists; this is
// the dedupe point that guarantees at most one workflow per request.
type WorkflowStore interface {
	Create(ctx context.Context, wf StakeWorkflow) error
	Get(ctx context.Context, requestID string) (StakeWorkflow, error)
	Update(ctx context.Context, wf StakeWorkflow) error
	ListInFlight(ctx context.Context) ([]StakeWorkflow, error)
	ListByPhase(ctx context.Context, phase WorkflowPhase, opts ListOpts) ([]StakeWorkflow, error)
	ListTerminalBefore(ctx context.Context, before time.Time) ([]StakeWorkflow, error)
	Count(ctx context.Context) (int64, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
	ListBefore(ctx context.Context, before time.Time) ([]AuditEntry, error)
}
