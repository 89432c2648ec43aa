package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/engineeringwithtemi/aide/internal/ai"
	"github.com/engineeringwithtemi/aide/internal/storage"
)

type chatRequest struct {
	Message  string `json:"message"`
	SourceID string `json:"source_id"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

var chatReplySchema = &ai.Schema{
	Type: "object",
	Properties: map[string]*ai.Schema{
		"reply": {Type: "string", Description: "The tutor's answer to the learner"},
	},
	Required: []string{"reply"},
}

// handleChat runs one tutoring turn. When a source_id is given the turn is
// grounded in that source, reusing its content cache when available.
func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		workspaceID := chi.URLParam(r, "id")
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		req.Message = strings.TrimSpace(req.Message)
		if req.Message == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message is required")
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

		prompt := req.Message
		cacheID := ""
		if req.SourceID != "" {
			src, row, err := hydrateSource(r, deps, req.SourceID)
			if errors.Is(err, storage.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found", "source not found")
				return
			}
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to load source: %v", err)
				return
			}

			if err := loadSourceContent(r, deps, src, row); err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to load source content: %v", err)
				return
			}
			cacheID, _ = src.Cache().CacheID(r.Context(), src)

			cc := src.ChatContext()
			prompt = fmt.Sprintf("The learner is studying %q (currently at %s).\nQuestion: %s",
				cc.Title, cc.Context.Reference, req.Message)
			if cacheID == "" {
				if content, err := src.FullContent(r.Context()); err == nil {
					prompt += "\n\n--- SOURCE MATERIAL ---\n" + content
				}
			}
		}

		now := time.Now().UTC()
		userMsg := storage.ChatMessage{
			ID:          uuid.NewString(),
			WorkspaceID: workspaceID,
			SourceID:    req.SourceID,
			Role:        "user",
			Content:     req.Message,
			CreatedAt:   now,
		}
		if err := deps.Store.SaveChatMessage(r.Context(), userMsg); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save message: %v", err)
			return
		}

		raw, err := deps.Provider.Generate(r.Context(), prompt, chatReplySchema, cacheID)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "chat generation failed: %v", err)
			return
		}
		var reply chatResponse
		if err := json.Unmarshal(raw, &reply); err != nil || reply.Reply == "" {
			httpError(w, http.StatusBadGateway, "api_error", "provider returned malformed reply")
			return
		}

		assistantMsg := storage.ChatMessage{
			ID:          uuid.NewString(),
			WorkspaceID: workspaceID,
			SourceID:    req.SourceID,
			Role:        "assistant",
			Content:     reply.Reply,
			CreatedAt:   time.Now().UTC(),
		}
		if err := deps.Store.SaveChatMessage(r.Context(), assistantMsg); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save reply: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, assistantMsg)
	}
}

func handleChatHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		workspaceID := chi.URLParam(r, "id")
		limit := parseIntParam(r, "limit", 50, 500)

		msgs, err := deps.Store.ListChatMessages(r.Context(), workspaceID, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list messages: %v", err)
			return
		}
		if msgs == nil {
			msgs = []storage.ChatMessage{}
		}
		writeJSON(w, http.StatusOK, msgs)
	}
}
