// Package ai defines the capability contract between the source layer and
// the generation backend, plus the Gemini implementation of it.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNoOutput is returned by Generate when the provider produced no usable
// output for the request.
var ErrNoOutput = errors.New("ai provider returned no usable output")

// DefaultCacheTTL applies when a CacheConfig does not override the TTL.
const DefaultCacheTTL = 24 * time.Hour

// DefaultSystemInstruction frames every cached-content session.
const DefaultSystemInstruction = `You are an expert educational content analyzer for the AIDE learning platform.
Your role is to help users learn by creating interactive exercises, answering questions, and explaining concepts
based on the educational content (PDFs, documents, etc.) you have access to.

When generating content:
- Focus on practical, hands-on learning exercises
- Create clear, testable code challenges when appropriate
- Use the Socratic method to guide understanding rather than giving direct answers
- Reference specific sections of the source material when relevant`

// CacheResult is the handle a provider returns for newly cached content.
type CacheResult struct {
	CacheID   string
	ExpiresAt time.Time
}

// CacheConfig customizes cache creation. A zero TTL means the provider's
// configured default applies.
type CacheConfig struct {
	DisplayName       string
	SystemInstruction string
	TTL               time.Duration
}

// Schema describes the expected shape of a structured generation result.
// It is provider-neutral; implementations translate it to their native
// schema representation.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
}

// Provider is the full surface the source and lab layers need from a
// generation backend. Caching is advisory: a provider may not support it,
// and callers must degrade to uncached generation.
type Provider interface {
	SupportsCaching() bool
	CreateCache(ctx context.Context, content string, cfg *CacheConfig) (*CacheResult, error)
	Generate(ctx context.Context, prompt string, shape *Schema, cacheID string) (json.RawMessage, error)
}

// Noop is a provider that never caches and never generates. It keeps the
// server runnable without an API key; generation endpoints degrade to
// errors instead of the whole process refusing to start.
type Noop struct{}

func (Noop) SupportsCaching() bool { return false }

func (Noop) CreateCache(ctx context.Context, content string, cfg *CacheConfig) (*CacheResult, error) {
	return nil, nil
}

func (Noop) Generate(ctx context.Context, prompt string, shape *Schema, cacheID string) (json.RawMessage, error) {
	return nil, ErrNoOutput
}
