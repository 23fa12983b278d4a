package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/stakestore/stakestore/internal/domain"
)

// StakeService defines the workflow operations the stake handler requires.
// It is declared locally so the handler package does not depend on the
// concrete orchestrator implementation.
type StakeService interface {
	Submit(ctx context.Context, req domain.StakeRequest) (domain.StakeWorkflow, error)
	Get(ctx context.Context, requestID string) (domain.StakeWorkflow, error)
	Cancel(ctx context.Context, requestID string) (domain.StakeWorkflow, error)
	Resume(ctx context.Context, requestID string) (domain.StakeWorkflow, error)
}

// StakeLister provides the list queries backing GET /api/stakes. The
// workflow store satisfies it directly.
type StakeLister interface {
	ListInFlight(ctx context.Context) ([]domain.StakeWorkflow, error)
	ListByPhase(ctx context.Context, phase domain.WorkflowPhase, opts domain.ListOpts) ([]domain.StakeWorkflow, error)
}

// StakeHandler serves stake workflow HTTP endpoints.
type StakeHandler struct {
	stakes          StakeService
	lister          StakeLister
	defaultSlippage float64
	logger          *slog.Logger
}

// NewStakeHandler creates a StakeHandler. defaultSlippage is applied to
// submissions that do not specify one.
func NewStakeHandler(stakes StakeService, lister StakeLister, defaultSlippage float64, logger *slog.Logger) *StakeHandler {
	return &StakeHandler{
		stakes:          stakes,
		lister:          lister,
		defaultSlippage: defaultSlippage,
		logger:          logger,
	}
}

// submitStakeRequest is the JSON body for POST /api/stakes. The input amount
// is a base-10 string so full uint256 precision survives the wire.
type submitStakeRequest struct {
	RequestID     string  `json:"request_id"`
	UserAddress   string  `json:"user_address"`
	InputToken    string  `json:"input_token"`
	InputAmount   string  `json:"input_amount"`
	MarketAddress string  `json:"market_address"`
	Slippage      float64 `json:"slippage"`
}

// listStakesResponse wraps the list endpoint output.
type listStakesResponse struct {
	Stakes []domain.StakeWorkflow `json:"stakes"`
	Limit  int                    `json:"limit"`
	Offset int                    `json:"offset"`
}

// SubmitStake accepts a new stake request and starts its workflow.
// Resubmitting an existing request id returns the existing record.
// POST /api/stakes
func (h *StakeHandler) SubmitStake(w http.ResponseWriter, r *http.Request) {
	var body submitStakeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	amount, ok := new(big.Int).SetString(body.InputAmount, 10)
	if !ok {
		writeError(w, http.StatusBadRequest, "input_amount must be a base-10 integer string")
		return
	}

	slippage := body.Slippage
	if slippage == 0 {
		slippage = h.defaultSlippage
	}

	req := domain.StakeRequest{
		RequestID:     body.RequestID,
		UserAddress:   body.UserAddress,
		InputToken:    body.InputToken,
		InputAmount:   amount,
		MarketAddress: body.MarketAddress,
		Slippage:      slippage,
	}

	wf, err := h.stakes.Submit(r.Context(), req)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidRequest) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown market "+body.MarketAddress)
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: submit stake failed",
			slog.String("request_id", body.RequestID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to submit stake")
		return
	}

	writeJSON(w, http.StatusAccepted, wf)
}

// GetStake returns the workflow record for one request id.
// GET /api/stakes/{id}
func (h *StakeHandler) GetStake(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing request id")
		return
	}

	wf, err := h.stakes.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "stake not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get stake failed",
			slog.String("request_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get stake")
		return
	}

	writeJSON(w, http.StatusOK, wf)
}

// ListStakes returns workflows filtered by phase, or all in-flight workflows
// when no phase is given.
// GET /api/stakes?phase=mint_submitted&limit=50&offset=0
func (h *StakeHandler) ListStakes(w http.ResponseWriter, r *http.Request) {
	phase := r.URL.Query().Get("phase")
	opts := parseListOpts(r)

	var stakes []domain.StakeWorkflow
	var err error

	if phase != "" {
		stakes, err = h.lister.ListByPhase(r.Context(), domain.WorkflowPhase(phase), opts)
	} else {
		stakes, err = h.lister.ListInFlight(r.Context())
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list stakes failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list stakes")
		return
	}

	if stakes == nil {
		stakes = []domain.StakeWorkflow{}
	}

	writeJSON(w, http.StatusOK, listStakesResponse{
		Stakes: stakes,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}

// CancelStake cancels a workflow that has not yet submitted its mint.
// POST /api/stakes/{id}/cancel
func (h *StakeHandler) CancelStake(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing request id")
		return
	}

	wf, err := h.stakes.Cancel(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "stake not found")
			return
		}
		if errors.Is(err, domain.ErrNotCancellable) {
			writeError(w, http.StatusConflict, "stake can no longer be cancelled")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: cancel stake failed",
			slog.String("request_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to cancel stake")
		return
	}

	writeJSON(w, http.StatusOK, wf)
}

// ResumeStake re-enqueues a stalled workflow. An unconfirmed workflow is
// moved back to mint_submitted so its receipt is checked again; other
// terminal phases are rejected.
// POST /api/stakes/{id}/resume
func (h *StakeHandler) ResumeStake(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing request id")
		return
	}

	wf, err := h.stakes.Resume(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "stake not found")
			return
		}
		if errors.Is(err, domain.ErrInvalidRequest) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: resume stake failed",
			slog.String("request_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to resume stake")
		return
	}

	writeJSON(w, http.StatusAccepted, wf)
}
