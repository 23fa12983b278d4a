package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stakestore/stakestore/internal/domain"
)

type fakeArchiveStore struct {
	objects map[string]string
	infos   []domain.BlobInfo
	err     error
}

func (f *fakeArchiveStore) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, ok := f.objects[path]
	if !ok {
		return nil, fmt.Errorf("fake: get %s: %w", path, domain.ErrNotFound)
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (f *fakeArchiveStore) List(ctx context.Context, prefix string) ([]domain.BlobInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.BlobInfo
	for _, info := range f.infos {
		if strings.HasPrefix(info.Path, prefix) {
			out = append(out, info)
		}
	}
	return out, nil
}

func newArchiveMux(h *ArchiveHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/archives", h.ListArchives)
	mux.HandleFunc("GET /api/archives/{kind}/{month}", h.GetArchive)
	return mux
}

func TestListArchives(t *testing.T) {
	store := &fakeArchiveStore{
		infos: []domain.BlobInfo{
			{Path: "archive/workflows/2026-07.jsonl", Size: 120, LastModified: time.Now()},
			{Path: "archive/audit/2026-07.jsonl", Size: 80, LastModified: time.Now()},
		},
	}
	h := NewArchiveHandler(store, testLogger())
	mux := newArchiveMux(h)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/archives?kind=workflows", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "archive/workflows/2026-07.jsonl") {
		t.Errorf("body missing workflow archive: %s", body)
	}
	if strings.Contains(body, "archive/audit") {
		t.Errorf("body leaked audit entries across kinds: %s", body)
	}
}

func TestListArchivesBadKind(t *testing.T) {
	h := NewArchiveHandler(&fakeArchiveStore{}, testLogger())
	mux := newArchiveMux(h)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/archives?kind=positions", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetArchive(t *testing.T) {
	store := &fakeArchiveStore{
		objects: map[string]string{
			"archive/workflows/2026-07.jsonl": `{"request_id":"a"}` + "\n",
		},
	}
	h := NewArchiveHandler(store, testLogger())
	mux := newArchiveMux(h)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/archives/workflows/2026-07", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/x-ndjson" {
		t.Errorf("content type = %q, want application/x-ndjson", ct)
	}
	if !strings.Contains(rec.Body.String(), `"request_id":"a"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestGetArchiveNotFound(t *testing.T) {
	h := NewArchiveHandler(&fakeArchiveStore{}, testLogger())
	mux := newArchiveMux(h)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/archives/workflows/2026-07", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestGetArchiveBadMonth(t *testing.T) {
	h := NewArchiveHandler(&fakeArchiveStore{}, testLogger())
	mux := newArchiveMux(h)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/archives/workflows/latest", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
