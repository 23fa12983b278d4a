package domain

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// WorkflowPhase is the lifecycle state of a stake workflow.
type WorkflowPhase string

const (
	PhaseIntake          WorkflowPhase = "intake"
	PhaseApprovalPending WorkflowPhase = "approval_pending"
	PhaseApproved        WorkflowPhase = "approved"
	PhaseMintQuoted      WorkflowPhase = "mint_quoted"
	PhaseMintSubmitted   WorkflowPhase = "mint_submitted"
	PhaseConfirmed       WorkflowPhase = "confirmed"
	PhaseRecorded        WorkflowPhase = "recorded"

	PhaseApprovalFailed   WorkflowPhase = "approval_failed"
	PhaseQuoteFailed      WorkflowPhase = "quote_failed"
	PhaseSubmissionFailed WorkflowPhase = "submission_failed"
	PhaseUnconfirmed      WorkflowPhase = "unconfirmed"
	PhaseCancelled        WorkflowPhase = "cancelled"
)

// Terminal reports whether the phase ends the workflow.
func (p WorkflowPhase) Terminal() bool {
	switch p {
	case PhaseRecorded, PhaseApprovalFailed, PhaseQuoteFailed,
		PhaseSubmissionFailed, PhaseUnconfirmed, PhaseCancelled:
		return true
	}
	return false
}

// Failed reports whether the phase is a terminal failure.
func (p WorkflowPhase) Failed() bool {
	switch p {
	case PhaseApprovalFailed, PhaseQuoteFailed, PhaseSubmissionFailed, PhaseUnconfirmed:
		return true
	}
	return false
}

// Cancellable reports whether a workflow in this phase may still be
// cancelled. Once the mint transaction is submitted the funds are committed
// on-chain and cancellation is no longer possible.
func (p WorkflowPhase) Cancellable() bool {
	switch p {
	case PhaseIntake, PhaseApprovalPending, PhaseApproved, PhaseMintQuoted:
		return true
	}
	return false
}

// StakeRequest is an instruction to mint PT/YT on a market by supplying
// InputAmount of InputToken on behalf of UserAddress.
type StakeRequest struct {
	RequestID     string    `json:"request_id"`
	UserAddress   string    `json:"user_address"`
	InputToken    string    `json:"input_token"`
	InputAmount   *big.Int  `json:"input_amount"`
	MarketAddress string    `json:"market_address"`
	Slippage      float64   `json:"slippage"`
	CreatedAt     time.Time `json:"created_at"`
}

// Validate checks the request for structural problems. All violations are
// reported as ErrInvalidRequest so callers can reject at intake.
func (r *StakeRequest) Validate() error {
	if r.RequestID == "" {
		return fmt.Errorf("%w: request_id is empty", ErrInvalidRequest)
	}
	if !common.IsHexAddress(r.UserAddress) {
		return fmt.Errorf("%w: user_address %q is not a valid address", ErrInvalidRequest, r.UserAddress)
	}
	if !common.IsHexAddress(r.InputToken) {
		return fmt.Errorf("%w: input_token %q is not a valid address", ErrInvalidRequest, r.InputToken)
	}
	if !common.IsHexAddress(r.MarketAddress) {
		return fmt.Errorf("%w: market_address %q is not a valid address", ErrInvalidRequest, r.MarketAddress)
	}
	if r.InputAmount == nil || r.InputAmount.Sign() <= 0 {
		return fmt.Errorf("%w: input_amount must be positive", ErrInvalidRequest)
	}
	if r.Slippage < 0 || r.Slippage >= 1 {
		return fmt.Errorf("%w: slippage %v out of range [0,1)", ErrInvalidRequest, r.Slippage)
	}
	return nil
}

// StakeWorkflow is the durable record of one stake request's progress. The
// record outlives the process: every phase transition is persisted before
// the next side effect, and terminal records are kept indefinitely.
type StakeWorkflow struct {
	RequestID      string         `json:"request_id"`
	Request        StakeRequest   `json:"request"`
	Phase          WorkflowPhase  `json:"phase"`
	ApprovalTxHash string         `json:"approval_tx_hash,omitempty"`
	MintTxHash     string         `json:"mint_tx_hash,omitempty"`
	LastError      string         `json:"last_error,omitempty"`
	Attempts       map[string]int `json:"attempts,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// NewStakeWorkflow builds a fresh workflow record in the intake phase.
func NewStakeWorkflow(req StakeRequest) StakeWorkflow {
	now := time.Now().UTC()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	return StakeWorkflow{
		RequestID: req.RequestID,
		Request:   req,
		Phase:     PhaseIntake,
		Attempts:  make(map[string]int),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// BumpAttempt increments the attempt counter for a named step.
func (w *StakeWorkflow) BumpAttempt(step string) {
	if w.Attempts == nil {
		w.Attempts = make(map[string]int)
	}
	w.Attempts[step]++
}
