package lab

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/engineeringwithtemi/aide/internal/ai"
)

// Generator produces lab content from source material through the AI
// provider.
type Generator struct {
	provider ai.Provider
	logger   *slog.Logger
}

func NewGenerator(provider ai.Provider, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{provider: provider, logger: logger}
}

// Request carries everything Generate needs for one lab. Content is the
// raw material; when CacheID is set the provider uses its cached copy and
// the prompt only carries the instruction.
type Request struct {
	LabType     string
	Content     string
	CacheID     string
	SourceTitle string
	Reference   string // human-readable scope, e.g. a chapter title
}

// Generate builds the prompt for the lab type and asks the provider for a
// structured result matching the type's response schema.
func (g *Generator) Generate(ctx context.Context, req Request) (json.RawMessage, error) {
	def, ok := Get(req.LabType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLabType, req.LabType)
	}

	prompt := g.buildPrompt(def, req)
	g.logger.Info("generating lab",
		"lab_type", req.LabType,
		"source", req.SourceTitle,
		"cached", req.CacheID != "")

	out, err := g.provider.Generate(ctx, prompt, def.ResponseSchema, req.CacheID)
	if err != nil {
		return nil, fmt.Errorf("generating %s: %w", req.LabType, err)
	}
	return out, nil
}

func (g *Generator) buildPrompt(def Definition, req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create a %s for the learner.\n", def.Label)
	if req.SourceTitle != "" {
		fmt.Fprintf(&b, "Source material: %s\n", req.SourceTitle)
	}
	if req.Reference != "" {
		fmt.Fprintf(&b, "Focus on: %s\n", req.Reference)
	}
	b.WriteString(def.Description)
	b.WriteString("\n")

	// With a provider cache the material is already attached to the
	// session; only inline it for uncached generation.
	if req.CacheID == "" && req.Content != "" {
		b.WriteString("\n--- SOURCE MATERIAL ---\n")
		b.WriteString(req.Content)
		b.WriteString("\n--- END SOURCE MATERIAL ---\n")
	}
	return b.String()
}
