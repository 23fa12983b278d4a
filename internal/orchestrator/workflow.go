package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stakestore/stakestore/internal/chain"
	"github.com/stakestore/stakestore/internal/domain"
)

// drive advances one workflow until it reaches a terminal phase or an
// infrastructure error interrupts it. The per-workflow lock guarantees a
// single driver across processes; a held lock means another driver owns the
// record and drive returns without touching it.
func (o *Orchestrator) drive(ctx context.Context, requestID string) error {
	unlock, err := o.locks.Acquire(ctx, lockPrefix+requestID, o.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			o.logger.Debug("workflow locked by another driver", "request_id", requestID)
			return nil
		}
		return fmt.Errorf("orchestrator: locking %s: %w", requestID, err)
	}
	defer unlock()

	wf, err := o.store.Get(ctx, requestID)
	if err != nil {
		return fmt.Errorf("orchestrator: loading %s: %w", requestID, err)
	}

	// Quotes live only for the current drive. A workflow resumed at
	// mint_quoted re-fetches before submitting.
	var quote *domain.MintQuote

	for !wf.Phase.Terminal() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		switch wf.Phase {
		case domain.PhaseIntake:
			if err := o.transition(ctx, &wf, domain.PhaseApprovalPending); err != nil {
				return err
			}

		case domain.PhaseApprovalPending:
			if err := o.stepApproval(ctx, &wf); err != nil {
				return err
			}

		case domain.PhaseApproved:
			q, err := o.stepQuote(ctx, &wf)
			if err != nil {
				return err
			}
			quote = q

		case domain.PhaseMintQuoted:
			if err := o.stepSubmit(ctx, &wf, &quote); err != nil {
				return err
			}

		case domain.PhaseMintSubmitted:
			if err := o.stepConfirm(ctx, &wf); err != nil {
				return err
			}

		case domain.PhaseConfirmed:
			if err := o.stepRecord(ctx, &wf); err != nil {
				return err
			}

		default:
			return fmt.Errorf("orchestrator: workflow %s in unknown phase %q", wf.RequestID, wf.Phase)
		}
	}

	return nil
}

// stepApproval ensures the router allowance covers the stake amount.
func (o *Orchestrator) stepApproval(ctx context.Context, wf *domain.StakeWorkflow) error {
	wf.BumpAttempt("approval")
	res, err := o.approver.EnsureAllowance(ctx, wf.Request.InputToken, wf.Request.InputAmount)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return o.failWorkflow(ctx, wf, domain.PhaseApprovalFailed, err)
	}
	wf.ApprovalTxHash = res.TxHash
	return o.transition(ctx, wf, domain.PhaseApproved)
}

// stepQuote fetches a fresh mint quote and advances to mint_quoted. The
// quote is returned to the driver; it is never persisted.
func (o *Orchestrator) stepQuote(ctx context.Context, wf *domain.StakeWorkflow) (*domain.MintQuote, error) {
	market, err := o.catalog.Get(wf.Request.MarketAddress)
	if err != nil {
		return nil, o.failWorkflow(ctx, wf, domain.PhaseQuoteFailed, err)
	}

	wf.BumpAttempt("quote")
	quote, err := o.quotes.Quote(ctx, wf.Request, market)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, o.failWorkflow(ctx, wf, domain.PhaseQuoteFailed, err)
	}

	if err := o.transition(ctx, wf, domain.PhaseMintQuoted); err != nil {
		return nil, err
	}
	return &quote, nil
}

// stepSubmit broadcasts the mint transaction exactly once. A persisted
// MintTxHash is authoritative: if one exists, the transaction was already
// broadcast and the step only advances the phase. A cancellation that
// landed since the last load wins over submission.
func (o *Orchestrator) stepSubmit(ctx context.Context, wf *domain.StakeWorkflow, quote **domain.MintQuote) error {
	if wf.MintTxHash != "" {
		return o.transition(ctx, wf, domain.PhaseMintSubmitted)
	}

	// Cancel gate: reload right before the irreversible side effect.
	latest, err := o.store.Get(ctx, wf.RequestID)
	if err != nil {
		return fmt.Errorf("orchestrator: reloading %s before submit: %w", wf.RequestID, err)
	}
	if latest.Phase == domain.PhaseCancelled {
		o.logger.Info("workflow cancelled before submission", "request_id", wf.RequestID)
		*wf = latest
		return nil
	}
	if latest.MintTxHash != "" {
		*wf = latest
		return o.transition(ctx, wf, domain.PhaseMintSubmitted)
	}

	// No quote in hand (process resumed at mint_quoted): fetch a fresh one.
	if *quote == nil {
		market, err := o.catalog.Get(wf.Request.MarketAddress)
		if err != nil {
			return o.failWorkflow(ctx, wf, domain.PhaseQuoteFailed, err)
		}
		wf.BumpAttempt("quote")
		q, err := o.quotes.Quote(ctx, wf.Request, market)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return o.failWorkflow(ctx, wf, domain.PhaseQuoteFailed, err)
		}
		*quote = &q
	}

	q := *quote
	data, err := domain.DecodeCalldata(q.Data)
	if err != nil {
		return o.failWorkflow(ctx, wf, domain.PhaseQuoteFailed, err)
	}

	wf.BumpAttempt("submit")
	txHash, err := o.tx.Submit(ctx, chain.TxRequest{To: q.To, Data: data, Value: q.Value})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return o.failWorkflow(ctx, wf, domain.PhaseSubmissionFailed, err)
	}

	// The hash must be persisted before anything else happens.
	wf.MintTxHash = txHash
	if err := o.transition(ctx, wf, domain.PhaseMintSubmitted); err != nil {
		return err
	}
	o.logger.Info("mint submitted",
		"request_id", wf.RequestID,
		"tx_hash", txHash,
		"pt_out", q.AmountPtOut.String(),
		"yt_out", q.AmountYtOut.String())
	return nil
}

// stepConfirm waits for the persisted mint transaction to mine. A timeout
// parks the workflow as unconfirmed for operator review; it is never
// auto-retried.
func (o *Orchestrator) stepConfirm(ctx context.Context, wf *domain.StakeWorkflow) error {
	receipt, err := o.tx.WaitMined(ctx, wf.MintTxHash)
	if err != nil {
		if ctx.Err() != nil {
			// Shutdown mid-wait: leave the phase untouched; the next driver
			// resumes the wait against the same hash.
			return ctx.Err()
		}
		if errors.Is(err, domain.ErrChainTimeout) {
			if ferr := o.failWorkflow(ctx, wf, domain.PhaseUnconfirmed, err); ferr != nil {
				return ferr
			}
			o.notify(ctx, "stake_unconfirmed", "Stake unconfirmed",
				fmt.Sprintf("Workflow %s: mint %s not mined before timeout", wf.RequestID, wf.MintTxHash))
			return nil
		}
		return o.failWorkflow(ctx, wf, domain.PhaseSubmissionFailed, err)
	}

	if !receipt.Success {
		return o.failWorkflow(ctx, wf, domain.PhaseSubmissionFailed,
			fmt.Errorf("mint transaction %s reverted in block %d", wf.MintTxHash, receipt.BlockNumber))
	}

	return o.transition(ctx, wf, domain.PhaseConfirmed)
}

// stepRecord finalises a confirmed workflow.
func (o *Orchestrator) stepRecord(ctx context.Context, wf *domain.StakeWorkflow) error {
	o.auditLog(ctx, "stake.recorded", map[string]any{
		"request_id": wf.RequestID,
		"user":       wf.Request.UserAddress,
		"market":     wf.Request.MarketAddress,
		"amount":     wf.Request.InputAmount.String(),
		"tx_hash":    wf.MintTxHash,
	})
	if err := o.transition(ctx, wf, domain.PhaseRecorded); err != nil {
		return err
	}
	o.notify(ctx, "stake_recorded", "Stake recorded",
		fmt.Sprintf("Workflow %s recorded: %s into %s (tx %s)",
			wf.RequestID, wf.Request.InputAmount.String(), wf.Request.MarketAddress, wf.MintTxHash))
	return nil
}

// failWorkflow moves wf to a terminal failure phase, recording the cause.
// It returns nil so the drive loop exits cleanly on a handled failure.
func (o *Orchestrator) failWorkflow(ctx context.Context, wf *domain.StakeWorkflow, phase domain.WorkflowPhase, cause error) error {
	wf.LastError = cause.Error()
	if err := o.transition(ctx, wf, phase); err != nil {
		return err
	}
	o.logger.Warn("workflow failed",
		"request_id", wf.RequestID,
		"phase", phase,
		"error", cause)
	if phase != domain.PhaseUnconfirmed {
		o.notify(ctx, "stake_failed", "Stake failed",
			fmt.Sprintf("Workflow %s failed in %s: %v", wf.RequestID, phase, cause))
	}
	return nil
}

// transition persists a phase change and publishes it. The store write must
// succeed before the workflow may proceed.
func (o *Orchestrator) transition(ctx context.Context, wf *domain.StakeWorkflow, phase domain.WorkflowPhase) error {
	from := wf.Phase
	wf.Phase = phase
	wf.UpdatedAt = time.Now().UTC()

	if err := o.store.Update(ctx, *wf); err != nil {
		wf.Phase = from
		return fmt.Errorf("orchestrator: persisting %s -> %s for %s: %w", from, phase, wf.RequestID, err)
	}

	o.auditLog(ctx, "stake.phase", map[string]any{
		"request_id": wf.RequestID,
		"from":       string(from),
		"to":         string(phase),
	})
	o.publishEvent(ctx, *wf)

	o.logger.Debug("phase transition",
		"request_id", wf.RequestID,
		"from", from,
		"to", phase)
	return nil
}
