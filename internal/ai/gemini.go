package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	genai "google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

// GeminiConfig configures the Gemini provider.
type GeminiConfig struct {
	APIKey   string
	Model    string        // defaults to gemini-2.5-flash
	CacheTTL time.Duration // defaults to DefaultCacheTTL
}

// Gemini implements Provider on top of the Gemini API, using its explicit
// content caching for the cache surface.
type Gemini struct {
	client   *genai.Client
	model    string
	cacheTTL time.Duration
	logger   *slog.Logger
}

func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("missing Gemini API key")
	}
	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &Gemini{
		client:   client,
		model:    model,
		cacheTTL: ttl,
		logger:   slog.Default(),
	}, nil
}

func (g *Gemini) SupportsCaching() bool { return true }

func (g *Gemini) CreateCache(ctx context.Context, content string, cfg *CacheConfig) (*CacheResult, error) {
	display := "aide-cache"
	instruction := DefaultSystemInstruction
	ttl := g.cacheTTL
	if cfg != nil {
		if cfg.DisplayName != "" {
			display = cfg.DisplayName
		}
		if cfg.SystemInstruction != "" {
			instruction = cfg.SystemInstruction
		}
		if cfg.TTL > 0 {
			ttl = cfg.TTL
		}
	}

	g.logger.Info("creating gemini content cache", "display_name", display, "ttl", ttl)
	cache, err := g.client.Caches.Create(ctx, g.model, &genai.CreateCachedContentConfig{
		DisplayName:       display,
		SystemInstruction: genai.NewContentFromText(instruction, genai.RoleUser),
		Contents:          []*genai.Content{genai.NewContentFromText(content, genai.RoleUser)},
		TTL:               ttl,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini cache: %w", err)
	}
	if cache.Name == "" || cache.ExpireTime.IsZero() {
		return nil, errors.New("gemini cache created without name or expiry")
	}

	g.logger.Info("gemini cache created", "cache_id", cache.Name, "expires_at", cache.ExpireTime)
	return &CacheResult{CacheID: cache.Name, ExpiresAt: cache.ExpireTime}, nil
}

func (g *Gemini) Generate(ctx context.Context, prompt string, shape *Schema, cacheID string) (json.RawMessage, error) {
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}
	if shape != nil {
		config.ResponseSchema = toGeminiSchema(shape)
	}
	if cacheID != "" {
		config.CachedContent = cacheID
	}

	g.logger.Debug("generating content with gemini", "model", g.model, "has_cache", cacheID != "")
	res, err := g.client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}, config)
	if err != nil {
		return nil, fmt.Errorf("gemini generation failed: %w", err)
	}

	text := res.Text()
	if text == "" {
		return nil, ErrNoOutput
	}
	return json.RawMessage(text), nil
}

func toGeminiSchema(s *Schema) *genai.Schema {
	out := &genai.Schema{
		Description: s.Description,
		Required:    s.Required,
	}
	switch s.Type {
	case "object":
		out.Type = genai.TypeObject
	case "array":
		out.Type = genai.TypeArray
	case "string":
		out.Type = genai.TypeString
	case "integer":
		out.Type = genai.TypeInteger
	case "number":
		out.Type = genai.TypeNumber
	case "boolean":
		out.Type = genai.TypeBoolean
	default:
		out.Type = genai.TypeUnspecified
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toGeminiSchema(prop)
		}
	}
	if s.Items != nil {
		out.Items = toGeminiSchema(s.Items)
	}
	if len(s.Enum) > 0 {
		out.Enum = s.Enum
	}
	return out
}
