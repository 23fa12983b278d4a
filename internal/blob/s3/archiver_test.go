package s3blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stakestore/stakestore/internal/domain"
)

type fakeWriter struct {
	puts map[string][]byte
	err  error
}

func (f *fakeWriter) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	if f.err != nil {
		return f.err
	}
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if f.puts == nil {
		f.puts = make(map[string][]byte)
	}
	f.puts[path] = buf
	return nil
}

func (f *fakeWriter) PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error {
	return f.Put(ctx, path, data, "")
}

type fakeWorkflowSource struct {
	workflows []domain.StakeWorkflow
	err       error
}

func (f *fakeWorkflowSource) ListTerminalBefore(ctx context.Context, before time.Time) ([]domain.StakeWorkflow, error) {
	return f.workflows, f.err
}

type fakeAuditSource struct {
	entries []domain.AuditEntry
}

func (f *fakeAuditSource) ListBefore(ctx context.Context, before time.Time) ([]domain.AuditEntry, error) {
	return f.entries, nil
}

type fakeAuditLog struct {
	events []string
}

func (f *fakeAuditLog) Log(ctx context.Context, event string, detail map[string]any) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeAuditLog) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func (f *fakeAuditLog) ListBefore(ctx context.Context, before time.Time) ([]domain.AuditEntry, error) {
	return nil, nil
}

func terminalWorkflow(id string) domain.StakeWorkflow {
	return domain.StakeWorkflow{
		RequestID: id,
		Request:   domain.StakeRequest{RequestID: id, InputAmount: big.NewInt(100)},
		Phase:     domain.PhaseRecorded,
	}
}

func TestArchiveWorkflows(t *testing.T) {
	w := &fakeWriter{}
	audit := &fakeAuditLog{}
	a := NewArchiver(w, &fakeWorkflowSource{workflows: []domain.StakeWorkflow{
		terminalWorkflow("a"), terminalWorkflow("b"),
	}}, &fakeAuditSource{}, audit)

	cutoff := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	n, err := a.ArchiveWorkflows(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("ArchiveWorkflows: %v", err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}

	data, ok := w.puts["archive/workflows/2026-08.jsonl"]
	if !ok {
		t.Fatalf("missing archive object, got keys %v", w.puts)
	}
	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	if len(lines) != 2 {
		t.Errorf("jsonl lines = %d, want 2", len(lines))
	}
	if !strings.Contains(string(lines[0]), `"request_id":"a"`) {
		t.Errorf("first line = %s", lines[0])
	}

	if len(audit.events) != 1 || audit.events[0] != "archive.workflows" {
		t.Errorf("audit events = %v", audit.events)
	}
}

func TestArchiveWorkflowsEmptyIsNoOp(t *testing.T) {
	w := &fakeWriter{}
	audit := &fakeAuditLog{}
	a := NewArchiver(w, &fakeWorkflowSource{}, &fakeAuditSource{}, audit)

	n, err := a.ArchiveWorkflows(context.Background(), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 || len(w.puts) != 0 || len(audit.events) != 0 {
		t.Errorf("empty archive should do nothing: n=%d puts=%d events=%d", n, len(w.puts), len(audit.events))
	}
}

func TestArchiveWorkflowsQueryFailure(t *testing.T) {
	a := NewArchiver(&fakeWriter{}, &fakeWorkflowSource{err: errors.New("db down")}, &fakeAuditSource{}, &fakeAuditLog{})
	if _, err := a.ArchiveWorkflows(context.Background(), time.Now()); err == nil {
		t.Fatal("expected error")
	}
}

func TestArchiveAuditLog(t *testing.T) {
	w := &fakeWriter{}
	audit := &fakeAuditLog{}
	a := NewArchiver(w, &fakeWorkflowSource{}, &fakeAuditSource{entries: []domain.AuditEntry{
		{ID: 1, Event: "stake.accepted"},
	}}, audit)

	cutoff := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	n, err := a.ArchiveAuditLog(context.Background(), cutoff)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
	if _, ok := w.puts["archive/audit/2026-08.jsonl"]; !ok {
		t.Errorf("missing audit archive object, got %v", w.puts)
	}
}

func TestArchiveUploadFailure(t *testing.T) {
	a := NewArchiver(&fakeWriter{err: errors.New("s3 down")},
		&fakeWorkflowSource{workflows: []domain.StakeWorkflow{terminalWorkflow("a")}},
		&fakeAuditSource{}, &fakeAuditLog{})
	if _, err := a.ArchiveWorkflows(context.Background(), time.Now()); err == nil {
		t.Fatal("expected error when upload fails")
	}
}
