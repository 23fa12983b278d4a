// Package orchestrator drives stake workflows through their lifecycle:
// intake, allowance approval, mint quoting, transaction submission, and
// confirmation. Every phase transition is persisted before the next side
// effect so a crashed process resumes instead of repeating on-chain work.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stakestore/stakestore/internal/approval"
	"github.com/stakestore/stakestore/internal/chain"
	"github.com/stakestore/stakestore/internal/domain"
)

const (
	// eventChannel carries ephemeral workflow events for live subscribers.
	eventChannel = "ch:stake"
	// eventStream is the durable ordered event log.
	eventStream = "stream:stake"
	// lockPrefix namespaces per-workflow driver locks.
	lockPrefix = "stake:"
	// rescanInterval is how often in-flight workflows are re-enqueued. Locks
	// make duplicate enqueues harmless.
	rescanInterval = time.Minute
)

// Approver grants token allowances ahead of a mint.
type Approver interface {
	EnsureAllowance(ctx context.Context, token string, amount *big.Int) (approval.Result, error)
}

// QuoteSource fetches validated mint quotes.
type QuoteSource interface {
	Quote(ctx context.Context, req domain.StakeRequest, market domain.Market) (domain.MintQuote, error)
}

// MarketGetter resolves a market by address.
type MarketGetter interface {
	Get(address string) (domain.Market, error)
}

// TxSubmitter signs, submits, and awaits transactions. *chain.EthGateway
// satisfies it.
type TxSubmitter interface {
	Submit(ctx context.Context, req chain.TxRequest) (string, error)
	WaitMined(ctx context.Context, txHash string) (chain.Receipt, error)
}

// Notifier pushes operator alerts.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Config carries orchestrator tuning knobs.
type Config struct {
	MaxConcurrent int
	IntakeBuffer  int
	LockTTL       time.Duration
}

// Orchestrator accepts stake requests and runs their workflows to a terminal
// phase.
type Orchestrator struct {
	store    domain.WorkflowStore
	audit    domain.AuditStore
	locks    domain.LockManager
	bus      domain.SignalBus
	catalog  MarketGetter
	approver Approver
	quotes   QuoteSource
	tx       TxSubmitter
	notifier Notifier
	cfg      Config
	logger   *slog.Logger

	queue chan string
}

// New creates an Orchestrator. bus and notifier may be nil; events and
// alerts are then skipped.
func New(
	store domain.WorkflowStore,
	audit domain.AuditStore,
	locks domain.LockManager,
	bus domain.SignalBus,
	catalog MarketGetter,
	approver Approver,
	quotes QuoteSource,
	tx TxSubmitter,
	notifier Notifier,
	cfg Config,
	logger *slog.Logger,
) *Orchestrator {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.IntakeBuffer < 1 {
		cfg.IntakeBuffer = 16
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	return &Orchestrator{
		store:    store,
		audit:    audit,
		locks:    locks,
		bus:      bus,
		catalog:  catalog,
		approver: approver,
		quotes:   quotes,
		tx:       tx,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With("component", "orchestrator"),
		queue:    make(chan string, cfg.IntakeBuffer),
	}
}

// Submit validates and persists a new stake request, then queues it for
// processing. A request id that already has a workflow returns the existing
// record with no error; Submit is idempotent.
func (o *Orchestrator) Submit(ctx context.Context, req domain.StakeRequest) (domain.StakeWorkflow, error) {
	if err := req.Validate(); err != nil {
		return domain.StakeWorkflow{}, err
	}
	if _, err := o.catalog.Get(req.MarketAddress); err != nil {
		return domain.StakeWorkflow{}, fmt.Errorf("orchestrator: market %s: %w", req.MarketAddress, err)
	}

	wf := domain.NewStakeWorkflow(req)
	if err := o.store.Create(ctx, wf); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			existing, getErr := o.store.Get(ctx, req.RequestID)
			if getErr != nil {
				return domain.StakeWorkflow{}, fmt.Errorf("orchestrator: loading existing workflow %s: %w", req.RequestID, getErr)
			}
			o.logger.Info("duplicate stake request", "request_id", req.RequestID, "phase", existing.Phase)
			return existing, nil
		}
		return domain.StakeWorkflow{}, fmt.Errorf("orchestrator: persisting workflow %s: %w", req.RequestID, err)
	}

	o.auditLog(ctx, "stake.accepted", map[string]any{
		"request_id": req.RequestID,
		"user":       req.UserAddress,
		"market":     req.MarketAddress,
		"amount":     req.InputAmount.String(),
	})
	o.publishEvent(ctx, wf)
	o.logger.Info("stake request accepted",
		"request_id", req.RequestID,
		"market", req.MarketAddress,
		"amount", req.InputAmount.String())

	if err := o.enqueue(ctx, req.RequestID); err != nil {
		// Already persisted; the rescan loop will pick it up.
		o.logger.Warn("enqueue failed, workflow deferred to rescan", "request_id", req.RequestID, "error", err)
	}
	return wf, nil
}

// Get returns the workflow record for requestID.
func (o *Orchestrator) Get(ctx context.Context, requestID string) (domain.StakeWorkflow, error) {
	return o.store.Get(ctx, requestID)
}

// Cancel aborts a workflow that has not yet submitted its mint transaction.
// Later phases return ErrNotCancellable.
func (o *Orchestrator) Cancel(ctx context.Context, requestID string) (domain.StakeWorkflow, error) {
	wf, err := o.store.Get(ctx, requestID)
	if err != nil {
		return domain.StakeWorkflow{}, err
	}
	if !wf.Phase.Cancellable() {
		return domain.StakeWorkflow{}, fmt.Errorf("orchestrator: workflow %s in phase %s: %w",
			requestID, wf.Phase, domain.ErrNotCancellable)
	}

	wf.Phase = domain.PhaseCancelled
	wf.UpdatedAt = time.Now().UTC()
	if err := o.store.Update(ctx, wf); err != nil {
		return domain.StakeWorkflow{}, fmt.Errorf("orchestrator: cancelling %s: %w", requestID, err)
	}

	o.auditLog(ctx, "stake.cancelled", map[string]any{"request_id": requestID})
	o.publishEvent(ctx, wf)
	o.logger.Info("workflow cancelled", "request_id", requestID)
	return wf, nil
}

// Resume re-queues a workflow for processing. In-flight workflows are simply
// driven again. An unconfirmed workflow is moved back to mint_submitted so
// the driver re-checks the receipt of the persisted transaction; it is never
// resubmitted. Other terminal workflows cannot be resumed.
func (o *Orchestrator) Resume(ctx context.Context, requestID string) (domain.StakeWorkflow, error) {
	wf, err := o.store.Get(ctx, requestID)
	if err != nil {
		return domain.StakeWorkflow{}, err
	}

	switch {
	case wf.Phase == domain.PhaseUnconfirmed:
		wf.Phase = domain.PhaseMintSubmitted
		wf.UpdatedAt = time.Now().UTC()
		if err := o.store.Update(ctx, wf); err != nil {
			return domain.StakeWorkflow{}, fmt.Errorf("orchestrator: resuming %s: %w", requestID, err)
		}
		o.auditLog(ctx, "stake.resumed", map[string]any{"request_id": requestID, "from": string(domain.PhaseUnconfirmed)})
	case wf.Phase.Terminal():
		return domain.StakeWorkflow{}, fmt.Errorf("orchestrator: workflow %s in terminal phase %s: %w",
			requestID, wf.Phase, domain.ErrInvalidRequest)
	}

	if err := o.enqueue(ctx, requestID); err != nil {
		return domain.StakeWorkflow{}, fmt.Errorf("orchestrator: queueing %s: %w", requestID, err)
	}
	o.logger.Info("workflow resumed", "request_id", requestID, "phase", wf.Phase)
	return wf, nil
}

// Run processes queued workflows until ctx is cancelled. On startup, and
// periodically afterwards, all in-flight workflows are re-enqueued so
// records orphaned by a crash are picked up.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.requeueInFlight(ctx)

	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < o.cfg.MaxConcurrent; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case id := <-o.queue:
					if err := o.drive(gctx, id); err != nil && !errors.Is(err, context.Canceled) {
						o.logger.Error("workflow drive failed", "request_id", id, "error", err)
					}
				}
			}
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(rescanInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
				o.requeueInFlight(gctx)
			}
		}
	})

	return g.Wait()
}

// enqueue queues requestID for a driver, waiting for buffer space.
func (o *Orchestrator) enqueue(ctx context.Context, requestID string) error {
	select {
	case o.queue <- requestID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// requeueInFlight enqueues every non-terminal workflow without blocking; a
// full queue defers the rest to the next rescan.
func (o *Orchestrator) requeueInFlight(ctx context.Context) {
	inflight, err := o.store.ListInFlight(ctx)
	if err != nil {
		o.logger.Error("listing in-flight workflows", "error", err)
		return
	}
	queued := 0
	for _, wf := range inflight {
		select {
		case o.queue <- wf.RequestID:
			queued++
		default:
			o.logger.Warn("queue full during rescan", "queued", queued, "inflight", len(inflight))
			return
		}
	}
	if queued > 0 {
		o.logger.Info("re-enqueued in-flight workflows", "count", queued)
	}
}

// auditLog best-effort appends to the audit store.
func (o *Orchestrator) auditLog(ctx context.Context, event string, detail map[string]any) {
	if o.audit == nil {
		return
	}
	if err := o.audit.Log(ctx, event, detail); err != nil {
		o.logger.Warn("audit log write failed", "event", event, "error", err)
	}
}

// workflowEvent is the wire shape of events published to the signal bus.
type workflowEvent struct {
	RequestID string `json:"request_id"`
	Phase     string `json:"phase"`
	TxHash    string `json:"tx_hash,omitempty"`
	Error     string `json:"error,omitempty"`
	At        string `json:"at"`
}

// publishEvent best-effort publishes a phase change to subscribers and the
// durable stream.
func (o *Orchestrator) publishEvent(ctx context.Context, wf domain.StakeWorkflow) {
	if o.bus == nil {
		return
	}
	payload, err := json.Marshal(workflowEvent{
		RequestID: wf.RequestID,
		Phase:     string(wf.Phase),
		TxHash:    wf.MintTxHash,
		Error:     wf.LastError,
		At:        time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	if err := o.bus.Publish(ctx, eventChannel, payload); err != nil {
		o.logger.Debug("event publish failed", "request_id", wf.RequestID, "error", err)
	}
	if err := o.bus.StreamAppend(ctx, eventStream, payload); err != nil {
		o.logger.Debug("event stream append failed", "request_id", wf.RequestID, "error", err)
	}
}

// notify best-effort pushes an operator alert.
func (o *Orchestrator) notify(ctx context.Context, event, title, message string) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.Notify(ctx, event, title, message); err != nil {
		o.logger.Warn("notification failed", "event", event, "error", err)
	}
}
