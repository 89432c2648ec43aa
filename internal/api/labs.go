package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/engineeringwithtemi/aide/internal/lab"
	"github.com/engineeringwithtemi/aide/internal/source"
	"github.com/engineeringwithtemi/aide/internal/storage"
)

type generateLabRequest struct {
	LabType   string `json:"lab_type"`
	ChapterID string `json:"chapter_id"`
}

func handleGenerateLab(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sourceID := chi.URLParam(r, "id")
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req generateLabRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.LabType == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "lab_type is required")
			return
		}

		def, ok := lab.Get(req.LabType)
		if !ok {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown lab type %q", req.LabType)
			return
		}

		src, row, err := hydrateSource(r, deps, sourceID)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "source not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load source: %v", err)
			return
		}
		if row.StoragePath == "" {
			httpError(w, http.StatusConflict, "invalid_request_error", "source has no content yet")
			return
		}
		if !def.Supports(src.Type()) {
			httpError(w, http.StatusBadRequest, "invalid_request_error",
				"lab type %q does not support %q sources", req.LabType, src.Type())
			return
		}

		if err := loadSourceContent(r, deps, src, row); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load source content: %v", err)
			return
		}

		content, err := src.ContentForGeneration(r.Context(), source.GenerationContext{ChapterID: req.ChapterID})
		if errors.Is(err, source.ErrInvalidReference) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to read source content: %v", err)
			return
		}

		// Cache failures degrade to inline content; status is advisory.
		cacheID, _ := src.Cache().CacheID(r.Context(), src)

		reference := ""
		if req.ChapterID != "" {
			reference = req.ChapterID
		}
		generated, err := deps.Generator.Generate(r.Context(), lab.Request{
			LabType:     req.LabType,
			Content:     content,
			CacheID:     cacheID,
			SourceTitle: row.Title,
			Reference:   reference,
		})
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "lab generation failed: %v", err)
			return
		}

		config, err := json.Marshal(req)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "encoding lab config: %v", err)
			return
		}

		now := time.Now().UTC()
		l := storage.Lab{
			ID:               uuid.NewString(),
			WorkspaceID:      row.WorkspaceID,
			SourceID:         row.ID,
			Type:             req.LabType,
			Config:           string(config),
			GeneratedContent: string(generated),
			Status:           lab.StatusInProgress,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := deps.Store.CreateLab(r.Context(), l); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save lab: %v", err)
			return
		}

		writeJSON(w, http.StatusCreated, l)
	}
}

// loadSourceContent restores chapter text after hydration by re-reading
// the raw file from the object store. Sources that keep their text in
// memory skip the download.
func loadSourceContent(r *http.Request, deps Deps, src source.Source, row storage.Source) error {
	loader, ok := src.(source.ContentLoader)
	if !ok || loader.ContentLoaded() {
		return nil
	}
	data, err := deps.Objects.Download(r.Context(), row.StoragePath)
	if err != nil {
		return err
	}
	return loader.LoadContent(r.Context(), data)
}

func handleListLabs(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sourceID := chi.URLParam(r, "id")

		labs, err := deps.Store.ListLabsBySource(r.Context(), sourceID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list labs: %v", err)
			return
		}
		if labs == nil {
			labs = []storage.Lab{}
		}
		writeJSON(w, http.StatusOK, labs)
	}
}

func handleListWorkspaceLabs(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		workspaceID := chi.URLParam(r, "id")

		labs, err := deps.Store.ListLabsByWorkspace(r.Context(), workspaceID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list labs: %v", err)
			return
		}
		if labs == nil {
			labs = []storage.Lab{}
		}
		writeJSON(w, http.StatusOK, labs)
	}
}

func handleGetLab(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		l, err := deps.Store.GetLab(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "lab not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get lab: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, l)
	}
}

type updateLabRequest struct {
	UserState json.RawMessage `json:"user_state"`
	Status    string          `json:"status"`
}

func handleUpdateLab(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req updateLabRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		current, err := deps.Store.GetLab(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "lab not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get lab: %v", err)
			return
		}

		state := current.UserState
		if len(req.UserState) > 0 {
			state = string(req.UserState)
		}
		status := current.Status
		if req.Status != "" {
			if req.Status != lab.StatusInProgress && req.Status != lab.StatusCompleted {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid status %q", req.Status)
				return
			}
			status = req.Status
		}

		if err := deps.Store.UpdateLabState(r.Context(), id, state, status); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to update lab: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
	}
}

func handleDeleteLab(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		err := deps.Store.DeleteLab(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "lab not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete lab: %v", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
