package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/engineeringwithtemi/aide/internal/storage"
)

type workspaceRequest struct {
	Name string `json:"name"`
}

func handleCreateWorkspace(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req workspaceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "name is required")
			return
		}

		now := time.Now().UTC()
		ws := storage.Workspace{
			ID:        uuid.NewString(),
			Name:      req.Name,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := deps.Store.CreateWorkspace(r.Context(), ws); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create workspace: %v", err)
			return
		}

		writeJSON(w, http.StatusCreated, ws)
	}
}

func handleListWorkspaces(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		workspaces, err := deps.Store.ListWorkspaces(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list workspaces: %v", err)
			return
		}
		if workspaces == nil {
			workspaces = []storage.Workspace{}
		}
		writeJSON(w, http.StatusOK, workspaces)
	}
}

func handleGetWorkspace(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		ws, err := deps.Store.GetWorkspace(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "workspace not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get workspace: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, ws)
	}
}

func handleRenameWorkspace(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req workspaceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "name is required")
			return
		}

		err := deps.Store.RenameWorkspace(r.Context(), id, req.Name)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "workspace not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to rename workspace: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
	}
}

func handleDeleteWorkspace(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		// Collect storage paths before the rows cascade away.
		sources, err := deps.Store.ListSources(r.Context(), id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list sources: %v", err)
			return
		}

		err = deps.Store.DeleteWorkspace(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "workspace not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete workspace: %v", err)
			return
		}

		var paths []string
		for _, src := range sources {
			if src.StoragePath != "" {
				paths = append(paths, src.StoragePath)
			}
		}
		if len(paths) > 0 && deps.Objects != nil {
			if err := deps.Objects.Delete(r.Context(), paths); err != nil {
				deps.logger().Warn("orphaned uploads after workspace delete",
					"workspace_id", id, "error", err)
			}
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
