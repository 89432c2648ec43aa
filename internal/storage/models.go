package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Workspace groups sources and labs for one course of study.
type Workspace struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Source is a persisted content source. Metadata holds the type-specific
// structure (for PDFs, the chapter list) as JSON. CacheID and
// CacheExpiresAt are the AI content-cache handle; both are set or neither.
type Source struct {
	ID             string
	WorkspaceID    string
	Type           string
	Title          string
	StoragePath    string
	Metadata       string // JSON
	CacheID        *string
	CacheExpiresAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Lab is a generated exercise tied to a source.
type Lab struct {
	ID               string
	WorkspaceID      string
	SourceID         string
	Type             string
	Config           string // JSON, the generation request options
	GeneratedContent string // JSON, the provider output
	UserState        string // JSON, learner progress
	Status           string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ChatMessage is one turn of a workspace conversation.
type ChatMessage struct {
	ID          string
	WorkspaceID string
	SourceID    string // optional, the source the turn was grounded in
	Role        string // "user" or "assistant"
	Content     string
	CreatedAt   time.Time
}
