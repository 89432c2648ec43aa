// Package source defines the content-source abstraction: every source
// type parses its material into chapters, stores the raw file in the
// object store, and manages an AI content cache through a composed
// CacheManager.
//
// New source types register a Factory in the Registry; the rest of the
// system only ever touches the Source interface.
package source

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/engineeringwithtemi/aide/internal/lab"
)

// TypePDF is the type id of the built-in PDF source.
const TypePDF = "pdf"

var (
	// ErrUnknownType is returned by the registry for unregistered type ids.
	ErrUnknownType = errors.New("unknown source type")

	// ErrInvalidReference is returned when a generation context names a
	// chapter the source does not have.
	ErrInvalidReference = errors.New("invalid content reference")
)

// SetupConfig carries the uploaded file into Setup. Content takes
// precedence; FilePath is for CLI and test use.
type SetupConfig struct {
	FilePath string
	Content  []byte
}

// Metadata is what Setup produces for persistence alongside the source row.
type Metadata struct {
	Title string
	Data  map[string]any
}

// GenerationContext scopes lab generation to part of a source. An empty
// ChapterID means the whole source.
type GenerationContext struct {
	ChapterID string
}

// Context is the reading position inside a source.
type Context struct {
	Reference string `json:"reference"`
	Page      int    `json:"page"`
	ChapterID string `json:"chapter_id"`
}

// ChatContext is the bundle the chat layer needs to ground a conversation
// in a source.
type ChatContext struct {
	ID            string  `json:"id"`
	Type          string  `json:"type"`
	Title         string  `json:"title"`
	CacheID       string  `json:"cache_id,omitempty"`
	Context       Context `json:"context"`
	TotalChapters int     `json:"total_chapters"`
}

// Record is the persisted form of a source, used to hydrate a Source back
// from storage.
type Record struct {
	ID             uuid.UUID
	WorkspaceID    uuid.UUID
	Type           string
	Title          string
	StoragePath    string
	Metadata       []byte
	CacheID        string
	CacheExpiresAt time.Time
}

// Source is a single piece of learning material. Implementations hold the
// parsed structure in memory; persistence is the caller's job via the
// Metadata returned from Setup.
type Source interface {
	// Type returns the registered type id.
	Type() string

	// Setup ingests the uploaded file: parse, store the raw bytes, warm
	// the AI cache. It may be called once per source.
	Setup(ctx context.Context, cfg SetupConfig) (*Metadata, error)

	// FullContent renders the entire source as text for the AI provider.
	FullContent(ctx context.Context) (string, error)

	// ContentForGeneration renders the slice of the source named by the
	// generation context.
	ContentForGeneration(ctx context.Context, gen GenerationContext) (string, error)

	// CurrentContext reports the source's current reading position.
	CurrentContext() Context

	// AvailableLabTypes lists the lab type ids this source can generate.
	AvailableLabTypes() []string

	// Actions lists the generation actions, with config schemas adjusted
	// to this source's structure.
	Actions() []lab.Action

	// ChatContext bundles the source for a chat session.
	ChatContext() ChatContext

	// ViewData renders the source for API responses.
	ViewData() map[string]any

	// Hydrate restores the source from its persisted record. Chapter text
	// is not persisted; hydrated chapters are structural until content is
	// reloaded.
	Hydrate(rec Record) error

	// Cache exposes the source's cache manager.
	Cache() *CacheManager
}

// ContentLoader is implemented by sources that can re-parse their raw
// file after hydration, restoring chapter text.
type ContentLoader interface {
	// ContentLoaded reports whether chapter text is currently in memory.
	ContentLoaded() bool

	// LoadContent re-parses the raw file and fills in chapter text.
	LoadContent(ctx context.Context, data []byte) error
}
