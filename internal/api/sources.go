package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/engineeringwithtemi/aide/internal/pdfparse"
	"github.com/engineeringwithtemi/aide/internal/source"
	"github.com/engineeringwithtemi/aide/internal/storage"
)

const maxUploadSize = 50 << 20 // 50MB

type createSourceRequest struct {
	Type  string `json:"type"`
	Title string `json:"title"`
}

func handleCreateSource(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		workspaceID := chi.URLParam(r, "id")
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req createSourceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		req.Title = strings.TrimSpace(req.Title)
		if req.Title == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "title is required")
			return
		}
		if req.Type == "" {
			req.Type = source.TypePDF
		}

		// Reject unregistered types before persisting anything.
		if _, err := deps.Sources.New(req.Type, deps.sourceDeps(), source.Params{ID: uuid.New()}); err != nil {
			if errors.Is(err, source.ErrUnknownType) {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create source: %v", err)
			return
		}

		if _, err := deps.Store.GetWorkspace(r.Context(), workspaceID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found", "workspace not found")
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get workspace: %v", err)
			return
		}

		now := time.Now().UTC()
		row := storage.Source{
			ID:          uuid.NewString(),
			WorkspaceID: workspaceID,
			Type:        req.Type,
			Title:       req.Title,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := deps.Store.CreateSource(r.Context(), row); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create source: %v", err)
			return
		}

		writeJSON(w, http.StatusCreated, row)
	}
}

func handleListSources(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		workspaceID := chi.URLParam(r, "id")

		sources, err := deps.Store.ListSources(r.Context(), workspaceID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list sources: %v", err)
			return
		}
		if sources == nil {
			sources = []storage.Source{}
		}
		writeJSON(w, http.StatusOK, sources)
	}
}

// handleUploadSourceContent accepts the raw file as multipart form data
// (field "file"), runs the source's setup, and persists the outcome.
func handleUploadSourceContent(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		row, err := deps.Store.GetSource(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "source not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get source: %v", err)
			return
		}
		if row.StoragePath != "" {
			httpError(w, http.StatusConflict, "invalid_request_error", "source already has content")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		file, header, err := r.FormFile("file")
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				httpError(w, http.StatusRequestEntityTooLarge, "invalid_request_error", "file exceeds %d bytes", maxUploadSize)
				return
			}
			httpError(w, http.StatusBadRequest, "invalid_request_error", "missing file field: %v", err)
			return
		}
		defer file.Close()

		if row.Type == source.TypePDF && !strings.HasSuffix(strings.ToLower(header.Filename), ".pdf") {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "expected a .pdf file, got %q", header.Filename)
			return
		}

		data, err := io.ReadAll(file)
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				httpError(w, http.StatusRequestEntityTooLarge, "invalid_request_error", "file exceeds %d bytes", maxUploadSize)
				return
			}
			httpError(w, http.StatusBadRequest, "invalid_request_error", "reading upload: %v", err)
			return
		}

		rec, err := recordFromRow(row)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}
		src, err := deps.Sources.New(row.Type, deps.sourceDeps(), source.Params{
			ID:          rec.ID,
			WorkspaceID: rec.WorkspaceID,
			Title:       row.Title,
		})
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		meta, err := src.Setup(r.Context(), source.SetupConfig{Content: data})
		if err != nil {
			if errors.Is(err, pdfparse.ErrParse) {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "could not parse file: %v", err)
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "source setup failed: %v", err)
			return
		}

		metaJSON, err := json.Marshal(meta.Data)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "encoding metadata: %v", err)
			return
		}

		storagePath := ""
		if pdf, ok := src.(*source.PDFSource); ok {
			storagePath = pdf.StoragePath()
		}
		if err := deps.Store.UpdateSourceContent(r.Context(), id, storagePath, string(metaJSON)); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "persisting source content: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, src.ViewData())
	}
}

func handleGetSource(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		src, row, err := hydrateSource(r, deps, id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "source not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load source: %v", err)
			return
		}

		view := src.ViewData()
		view["id"] = row.ID
		view["workspace_id"] = row.WorkspaceID
		view["created_at"] = row.CreatedAt
		writeJSON(w, http.StatusOK, view)
	}
}

type updateSourceRequest struct {
	Title            string `json:"title"`
	CurrentChapterID string `json:"current_chapter_id"`
}

func handleUpdateSource(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req updateSourceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		req.Title = strings.TrimSpace(req.Title)
		if req.Title == "" && req.CurrentChapterID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "title or current_chapter_id is required")
			return
		}

		if req.Title != "" {
			err := deps.Store.UpdateSourceTitle(r.Context(), id, req.Title)
			if errors.Is(err, storage.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found", "source not found")
				return
			}
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to update source: %v", err)
				return
			}
		}

		if req.CurrentChapterID != "" {
			src, row, err := hydrateSource(r, deps, id)
			if errors.Is(err, storage.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found", "source not found")
				return
			}
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to load source: %v", err)
				return
			}
			pdf, ok := src.(*source.PDFSource)
			if !ok {
				httpError(w, http.StatusBadRequest, "invalid_request_error",
					"%q sources have no chapter navigation", row.Type)
				return
			}
			if err := pdf.SetCurrentChapter(req.CurrentChapterID); err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
				return
			}
			metaJSON, err := json.Marshal(pdf.Metadata().Data)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "encoding metadata: %v", err)
				return
			}
			if err := deps.Store.UpdateSourceContent(r.Context(), id, row.StoragePath, string(metaJSON)); err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "persisting reading position: %v", err)
				return
			}
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
	}
}

func handleDeleteSource(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		row, err := deps.Store.GetSource(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "source not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get source: %v", err)
			return
		}

		if err := deps.Store.DeleteSource(r.Context(), id); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete source: %v", err)
			return
		}

		if row.StoragePath != "" && deps.Objects != nil {
			if err := deps.Objects.Delete(r.Context(), []string{row.StoragePath}); err != nil {
				deps.logger().Warn("orphaned upload after source delete",
					"source_id", id, "path", row.StoragePath, "error", err)
			}
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func handleSourceActions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		src, _, err := hydrateSource(r, deps, id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "source not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load source: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"actions": src.Actions()})
	}
}

func handleInvalidateCache(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		src, _, err := hydrateSource(r, deps, id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "source not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load source: %v", err)
			return
		}

		if err := src.Cache().Invalidate(r.Context()); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to invalidate cache: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
	}
}
