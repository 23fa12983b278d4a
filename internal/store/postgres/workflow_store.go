package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stakestore/stakestore/internal/domain"
)

// WorkflowStore implements domain.WorkflowStore using PostgreSQL.
type WorkflowStore struct {
	pool *pgxpool.Pool
}

// NewWorkflowStore creates a WorkflowStore backed by the given pool.
func NewWorkflowStore(pool *pgxpool.Pool) *WorkflowStore {
	return &WorkflowStore{pool: pool}
}

const workflowCols = `request_id, user_address, input_token, input_amount, market_address,
	slippage, phase, approval_tx_hash, mint_tx_hash, last_error, attempts, created_at, updated_at`

// Create inserts a new workflow record. A duplicate request id returns
// ErrAlreadyExists.
func (s *WorkflowStore) Create(ctx context.Context, wf domain.StakeWorkflow) error {
	attempts, err := json.Marshal(wf.Attempts)
	if err != nil {
		return fmt.Errorf("postgres: marshal attempts: %w", err)
	}

	const query = `
		INSERT INTO stake_workflows (` + workflowCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err = s.pool.Exec(ctx, query,
		wf.RequestID,
		wf.Request.UserAddress,
		wf.Request.InputToken,
		wf.Request.InputAmount.String(),
		wf.Request.MarketAddress,
		wf.Request.Slippage,
		string(wf.Phase),
		wf.ApprovalTxHash,
		wf.MintTxHash,
		wf.LastError,
		attempts,
		wf.CreatedAt,
		wf.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("postgres: workflow %s: %w", wf.RequestID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: create workflow %s: %w", wf.RequestID, err)
	}
	return nil
}

// Get returns the workflow for requestID, or ErrNotFound.
func (s *WorkflowStore) Get(ctx context.Context, requestID string) (domain.StakeWorkflow, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+workflowCols+` FROM stake_workflows WHERE request_id = $1`, requestID)

	wf, err := scanWorkflow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.StakeWorkflow{}, domain.ErrNotFound
		}
		return domain.StakeWorkflow{}, fmt.Errorf("postgres: get workflow %s: %w", requestID, err)
	}
	return wf, nil
}

// Update overwrites the mutable fields of an existing record. A missing
// record returns ErrNotFound.
func (s *WorkflowStore) Update(ctx context.Context, wf domain.StakeWorkflow) error {
	attempts, err := json.Marshal(wf.Attempts)
	if err != nil {
		return fmt.Errorf("postgres: marshal attempts: %w", err)
	}

	const query = `
		UPDATE stake_workflows
		SET phase = $2,
		    approval_tx_hash = $3,
		    mint_tx_hash = $4,
		    last_error = $5,
		    attempts = $6,
		    updated_at = $7
		WHERE request_id = $1`

	tag, err := s.pool.Exec(ctx, query,
		wf.RequestID,
		string(wf.Phase),
		wf.ApprovalTxHash,
		wf.MintTxHash,
		wf.LastError,
		attempts,
		wf.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update workflow %s: %w", wf.RequestID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: workflow %s: %w", wf.RequestID, domain.ErrNotFound)
	}
	return nil
}

// terminalPhases lists the phases excluded by ListInFlight.
var terminalPhases = []string{
	string(domain.PhaseRecorded),
	string(domain.PhaseApprovalFailed),
	string(domain.PhaseQuoteFailed),
	string(domain.PhaseSubmissionFailed),
	string(domain.PhaseUnconfirmed),
	string(domain.PhaseCancelled),
}

// ListInFlight returns all non-terminal workflows, oldest first.
func (s *WorkflowStore) ListInFlight(ctx context.Context) ([]domain.StakeWorkflow, error) {
	const query = `
		SELECT ` + workflowCols + `
		FROM stake_workflows
		WHERE phase != ALL($1)
		ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, query, terminalPhases)
	if err != nil {
		return nil, fmt.Errorf("postgres: list in-flight workflows: %w", err)
	}
	defer rows.Close()

	return scanWorkflows(rows)
}

// ListByPhase returns workflows in the given phase with pagination and
// optional time filtering.
func (s *WorkflowStore) ListByPhase(ctx context.Context, phase domain.WorkflowPhase, opts domain.ListOpts) ([]domain.StakeWorkflow, error) {
	query := `SELECT ` + workflowCols + ` FROM stake_workflows WHERE phase = $1`
	args := []any{string(phase)}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at ASC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list workflows by phase %s: %w", phase, err)
	}
	defer rows.Close()

	return scanWorkflows(rows)
}

// ListTerminalBefore returns terminal workflows last updated before the
// given time, oldest first. Used by the archiver.
func (s *WorkflowStore) ListTerminalBefore(ctx context.Context, before time.Time) ([]domain.StakeWorkflow, error) {
	const query = `
		SELECT ` + workflowCols + `
		FROM stake_workflows
		WHERE phase = ANY($1) AND updated_at < $2
		ORDER BY updated_at ASC`

	rows, err := s.pool.Query(ctx, query, terminalPhases, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list terminal workflows before %s: %w", before, err)
	}
	defer rows.Close()

	return scanWorkflows(rows)
}

// Count returns the total number of workflow records.
func (s *WorkflowStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stake_workflows`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count workflows: %w", err)
	}
	return n, nil
}

// scanWorkflow reads one workflow from a row. Amounts are stored as TEXT to
// preserve full uint256 precision.
func scanWorkflow(row pgx.Row) (domain.StakeWorkflow, error) {
	var (
		wf        domain.StakeWorkflow
		amountStr string
		phase     string
		attempts  []byte
	)

	err := row.Scan(
		&wf.RequestID,
		&wf.Request.UserAddress,
		&wf.Request.InputToken,
		&amountStr,
		&wf.Request.MarketAddress,
		&wf.Request.Slippage,
		&phase,
		&wf.ApprovalTxHash,
		&wf.MintTxHash,
		&wf.LastError,
		&attempts,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	)
	if err != nil {
		return domain.StakeWorkflow{}, err
	}

	wf.Request.RequestID = wf.RequestID
	wf.Request.CreatedAt = wf.CreatedAt
	wf.Phase = domain.WorkflowPhase(phase)

	amount, ok := new(big.Int).SetString(amountStr, 10)
	if !ok {
		return domain.StakeWorkflow{}, fmt.Errorf("malformed input_amount %q", amountStr)
	}
	wf.Request.InputAmount = amount

	if len(attempts) > 0 {
		if err := json.Unmarshal(attempts, &wf.Attempts); err != nil {
			return domain.StakeWorkflow{}, fmt.Errorf("unmarshal attempts: %w", err)
		}
	}

	return wf, nil
}

func scanWorkflows(rows pgx.Rows) ([]domain.StakeWorkflow, error) {
	var out []domain.StakeWorkflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan workflow: %w", err)
		}
		out = append(out, wf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: workflow rows: %w", err)
	}
	return out, nil
}
