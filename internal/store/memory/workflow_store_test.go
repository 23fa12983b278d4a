package memory

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stakestore/stakestore/internal/domain"
)

func wf(id string, phase domain.WorkflowPhase, created time.Time) domain.StakeWorkflow {
	return domain.StakeWorkflow{
		RequestID: id,
		Request: domain.StakeRequest{
			RequestID:   id,
			InputAmount: big.NewInt(100),
		},
		Phase:     phase,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestCreateDuplicate(t *testing.T) {
	s := NewWorkflowStore()
	ctx := context.Background()
	now := time.Now()

	if err := s.Create(ctx, wf("a", domain.PhaseIntake, now)); err != nil {
		t.Fatal(err)
	}
	err := s.Create(ctx, wf("a", domain.PhaseIntake, now))
	if !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("err = %v, want ErrAlreadyExists", err)
	}
}

func TestGetAndUpdate(t *testing.T) {
	s := NewWorkflowStore()
	ctx := context.Background()
	now := time.Now()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	rec := wf("a", domain.PhaseIntake, now)
	if err := s.Create(ctx, rec); err != nil {
		t.Fatal(err)
	}

	rec.Phase = domain.PhaseApproved
	rec.MintTxHash = "0xabc"
	if err := s.Update(ctx, rec); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if got.Phase != domain.PhaseApproved || got.MintTxHash != "0xabc" {
		t.Errorf("got %+v", got)
	}

	if err := s.Update(ctx, wf("ghost", domain.PhaseIntake, now)); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("update missing: err = %v, want ErrNotFound", err)
	}
}

func TestListInFlight(t *testing.T) {
	s := NewWorkflowStore()
	ctx := context.Background()
	base := time.Now()

	for _, rec := range []domain.StakeWorkflow{
		wf("c", domain.PhaseRecorded, base),
		wf("b", domain.PhaseMintSubmitted, base.Add(2*time.Second)),
		wf("a", domain.PhaseIntake, base.Add(time.Second)),
		wf("d", domain.PhaseCancelled, base),
	} {
		if err := s.Create(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.ListInFlight(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("in-flight = %d, want 2", len(got))
	}
	if got[0].RequestID != "a" || got[1].RequestID != "b" {
		t.Errorf("order = %s, %s; want a, b", got[0].RequestID, got[1].RequestID)
	}
}

func TestListByPhasePagination(t *testing.T) {
	s := NewWorkflowStore()
	ctx := context.Background()
	base := time.Now()

	for i, id := range []string{"a", "b", "c"} {
		if err := s.Create(ctx, wf(id, domain.PhaseRecorded, base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.ListByPhase(ctx, domain.PhaseRecorded, domain.ListOpts{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].RequestID != "b" {
		t.Errorf("got %v", got)
	}

	got, err = s.ListByPhase(ctx, domain.PhaseRecorded, domain.ListOpts{Offset: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("offset beyond end should return nothing, got %d", len(got))
	}
}

func TestListByPhaseTimeBounds(t *testing.T) {
	s := NewWorkflowStore()
	ctx := context.Background()
	base := time.Now()

	for i, id := range []string{"a", "b", "c"} {
		if err := s.Create(ctx, wf(id, domain.PhaseRecorded, base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatal(err)
		}
	}

	// Both bounds are inclusive.
	since := base.Add(time.Second)
	until := base.Add(2 * time.Second)
	got, err := s.ListByPhase(ctx, domain.PhaseRecorded, domain.ListOpts{Since: &since, Until: &until})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].RequestID != "b" || got[1].RequestID != "c" {
		t.Errorf("got %v, want b and c", got)
	}
}

func TestListTerminalBefore(t *testing.T) {
	s := NewWorkflowStore()
	ctx := context.Background()
	cutoff := time.Now()

	old := wf("old", domain.PhaseRecorded, cutoff.Add(-time.Hour))
	fresh := wf("fresh", domain.PhaseRecorded, cutoff.Add(time.Hour))
	inflight := wf("inflight", domain.PhaseIntake, cutoff.Add(-time.Hour))
	for _, rec := range []domain.StakeWorkflow{old, fresh, inflight} {
		if err := s.Create(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.ListTerminalBefore(ctx, cutoff)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].RequestID != "old" {
		t.Errorf("got %v, want only old", got)
	}

	n, err := s.Count(ctx)
	if err != nil || n != 3 {
		t.Errorf("count = %d err = %v, want 3", n, err)
	}
}
