package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/stakestore/stakestore/internal/domain"
)

// ArchiveStore defines the blob reads the archive handler requires.
// domain.BlobReader satisfies it directly.
type ArchiveStore interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]domain.BlobInfo, error)
}

// ArchiveHandler serves read access to cold-storage archive files.
type ArchiveHandler struct {
	blobs  ArchiveStore
	logger *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler over the given blob store.
func NewArchiveHandler(blobs ArchiveStore, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{
		blobs:  blobs,
		logger: logger,
	}
}

// archiveKinds enumerates the record kinds the archival loop produces.
var archiveKinds = map[string]bool{
	"workflows": true,
	"audit":     true,
}

// monthPattern matches the YYYY-MM partition component of an archive key.
var monthPattern = regexp.MustCompile(`^\d{4}-\d{2}$`)

// archiveEntry is one archive file in the list endpoint output.
type archiveEntry struct {
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// listArchivesResponse wraps the list endpoint output.
type listArchivesResponse struct {
	Kind     string         `json:"kind"`
	Archives []archiveEntry `json:"archives"`
}

// ListArchives returns the monthly archive files stored for a record kind.
// GET /api/archives?kind=workflows|audit
func (h *ArchiveHandler) ListArchives(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	if !archiveKinds[kind] {
		writeError(w, http.StatusBadRequest, "kind must be one of: workflows, audit")
		return
	}

	infos, err := h.blobs.List(r.Context(), "archive/"+kind+"/")
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list archives failed",
			slog.String("kind", kind),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list archives")
		return
	}

	entries := make([]archiveEntry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, archiveEntry{
			Path:         info.Path,
			Size:         info.Size,
			LastModified: info.LastModified.UTC(),
		})
	}

	writeJSON(w, http.StatusOK, listArchivesResponse{
		Kind:     kind,
		Archives: entries,
	})
}

// GetArchive streams one monthly archive file as newline-delimited JSON.
// GET /api/archives/{kind}/{month}
func (h *ArchiveHandler) GetArchive(w http.ResponseWriter, r *http.Request) {
	kind := pathParam(r, "kind")
	month := pathParam(r, "month")
	if !archiveKinds[kind] {
		writeError(w, http.StatusBadRequest, "kind must be one of: workflows, audit")
		return
	}
	if !monthPattern.MatchString(month) {
		writeError(w, http.StatusBadRequest, "month must be YYYY-MM")
		return
	}

	path := "archive/" + kind + "/" + month + ".jsonl"
	body, err := h.blobs.Get(r.Context(), path)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "archive not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get archive failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get archive")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	if _, err := io.Copy(w, body); err != nil {
		h.logger.WarnContext(r.Context(), "handler: archive stream interrupted",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}
