// Package api exposes the HTTP surface: workspaces, sources, labs, and
// chat, plus the MCP server for agent access to the same data.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/engineeringwithtemi/aide/internal/ai"
	"github.com/engineeringwithtemi/aide/internal/lab"
	"github.com/engineeringwithtemi/aide/internal/objectstore"
	"github.com/engineeringwithtemi/aide/internal/source"
	"github.com/engineeringwithtemi/aide/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Deps holds the collaborators every handler needs.
type Deps struct {
	Store     *storage.Store
	Objects   objectstore.Store
	Provider  ai.Provider
	Sources   *source.Registry
	Generator *lab.Generator
	Token     string // empty disables bearer auth
	Logger    *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// sourceDeps bundles the collaborators passed into source construction.
func (d Deps) sourceDeps() source.Deps {
	return source.Deps{
		Provider: d.Provider,
		Cache:    d.Store,
		Objects:  d.Objects,
		Logger:   d.logger(),
	}
}

// NewHandler builds the full HTTP router.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}

		r.Route("/v1", func(r chi.Router) {
			r.Get("/source-types", handleListSourceTypes(deps))
			r.Get("/lab-types", handleListLabTypes(deps))

			r.Post("/workspaces", handleCreateWorkspace(deps))
			r.Get("/workspaces", handleListWorkspaces(deps))
			r.Get("/workspaces/{id}", handleGetWorkspace(deps))
			r.Patch("/workspaces/{id}", handleRenameWorkspace(deps))
			r.Delete("/workspaces/{id}", handleDeleteWorkspace(deps))

			r.Post("/workspaces/{id}/sources", handleCreateSource(deps))
			r.Get("/workspaces/{id}/sources", handleListSources(deps))
			r.Post("/sources/{id}/content", handleUploadSourceContent(deps))
			r.Get("/sources/{id}", handleGetSource(deps))
			r.Patch("/sources/{id}", handleUpdateSource(deps))
			r.Delete("/sources/{id}", handleDeleteSource(deps))
			r.Get("/sources/{id}/actions", handleSourceActions(deps))
			r.Post("/sources/{id}/cache/invalidate", handleInvalidateCache(deps))

			r.Post("/sources/{id}/labs", handleGenerateLab(deps))
			r.Get("/sources/{id}/labs", handleListLabs(deps))
			r.Get("/workspaces/{id}/labs", handleListWorkspaceLabs(deps))
			r.Get("/labs/{id}", handleGetLab(deps))
			r.Patch("/labs/{id}", handleUpdateLab(deps))
			r.Delete("/labs/{id}", handleDeleteLab(deps))

			r.Post("/workspaces/{id}/chat", handleChat(deps))
			r.Get("/workspaces/{id}/chat", handleChatHistory(deps))
		})
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleListSourceTypes(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"types": deps.Sources.Types()})
	}
}

func handleListLabTypes(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		type labType struct {
			Type        string `json:"type"`
			Label       string `json:"label"`
			Icon        string `json:"icon"`
			Description string `json:"description"`
		}
		defs := lab.Definitions()
		out := make([]labType, 0, len(defs))
		for _, d := range defs {
			out = append(out, labType{Type: d.Type, Label: d.Label, Icon: d.Icon, Description: d.Description})
		}
		writeJSON(w, http.StatusOK, map[string]any{"lab_types": out})
	}
}

// hydrateSource loads a source row and rebuilds the typed Source from it.
func hydrateSource(r *http.Request, deps Deps, id string) (source.Source, storage.Source, error) {
	row, err := deps.Store.GetSource(r.Context(), id)
	if err != nil {
		return nil, storage.Source{}, err
	}
	rec, err := recordFromRow(row)
	if err != nil {
		return nil, storage.Source{}, err
	}
	src, err := deps.Sources.Hydrate(rec, deps.sourceDeps())
	if err != nil {
		return nil, storage.Source{}, err
	}
	return src, row, nil
}

func recordFromRow(row storage.Source) (source.Record, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return source.Record{}, fmt.Errorf("invalid source id %q: %w", row.ID, err)
	}
	wid, err := uuid.Parse(row.WorkspaceID)
	if err != nil {
		return source.Record{}, fmt.Errorf("invalid workspace id %q: %w", row.WorkspaceID, err)
	}
	rec := source.Record{
		ID:          id,
		WorkspaceID: wid,
		Type:        row.Type,
		Title:       row.Title,
		StoragePath: row.StoragePath,
		Metadata:    []byte(row.Metadata),
	}
	if row.CacheID != nil {
		rec.CacheID = *row.CacheID
	}
	if row.CacheExpiresAt != nil {
		rec.CacheExpiresAt = *row.CacheExpiresAt
	}
	return rec, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
