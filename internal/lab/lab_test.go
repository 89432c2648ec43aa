package lab

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/engineeringwithtemi/aide/internal/ai"
)

type fakeProvider struct {
	lastPrompt  string
	lastSchema  *ai.Schema
	lastCacheID string
	out         json.RawMessage
	err         error
}

func (p *fakeProvider) SupportsCaching() bool { return false }

func (p *fakeProvider) CreateCache(ctx context.Context, content string, cfg *ai.CacheConfig) (*ai.CacheResult, error) {
	return nil, nil
}

func (p *fakeProvider) Generate(ctx context.Context, prompt string, shape *ai.Schema, cacheID string) (json.RawMessage, error) {
	p.lastPrompt = prompt
	p.lastSchema = shape
	p.lastCacheID = cacheID
	return p.out, p.err
}

func TestDefinitionsRegistered(t *testing.T) {
	want := []string{"code_lab", "flashcard_lab", "quiz_lab"}
	got := Types()
	if len(got) != len(want) {
		t.Fatalf("Types() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Types()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	for _, typ := range want {
		def, ok := Get(typ)
		if !ok {
			t.Fatalf("Get(%q) missing", typ)
		}
		if def.ResponseSchema == nil || def.ResponseSchema.Type != "object" {
			t.Errorf("%s response schema = %+v, want object", typ, def.ResponseSchema)
		}
		if !def.Supports("pdf") {
			t.Errorf("%s does not support pdf sources", typ)
		}
	}
}

func TestDefinitionAction(t *testing.T) {
	def, _ := Get("quiz_lab")

	a := def.Action()
	if a.ID != "generate_quiz_lab" || a.LabType != "quiz_lab" {
		t.Errorf("Action = %+v", a)
	}
	if a.ConfigSchema == nil || a.ConfigSchema.Type != "object" {
		t.Fatalf("ConfigSchema = %+v, want empty object schema", a.ConfigSchema)
	}

	// Mutating one action's schema must not leak into the next.
	a.ConfigSchema.Properties["chapter_id"] = &ai.Schema{Type: "string"}
	b := def.Action()
	if _, ok := b.ConfigSchema.Properties["chapter_id"]; ok {
		t.Error("Action config schema shared between calls")
	}
}

func TestGenerateInlinesContentWithoutCache(t *testing.T) {
	p := &fakeProvider{out: json.RawMessage(`{"title":"Quiz"}`)}
	g := NewGenerator(p, nil)

	out, err := g.Generate(context.Background(), Request{
		LabType:     "quiz_lab",
		Content:     "photosynthesis basics",
		SourceTitle: "Biology 101",
		Reference:   "Chapter 3",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if string(out) != `{"title":"Quiz"}` {
		t.Errorf("out = %s", out)
	}
	if !strings.Contains(p.lastPrompt, "photosynthesis basics") {
		t.Error("uncached prompt should inline the source material")
	}
	if !strings.Contains(p.lastPrompt, "Biology 101") || !strings.Contains(p.lastPrompt, "Chapter 3") {
		t.Errorf("prompt missing source framing: %q", p.lastPrompt)
	}
	if p.lastSchema == nil || p.lastSchema.Properties["questions"] == nil {
		t.Errorf("schema = %+v, want quiz response schema", p.lastSchema)
	}
}

func TestGenerateOmitsContentWithCache(t *testing.T) {
	p := &fakeProvider{out: json.RawMessage(`{}`)}
	g := NewGenerator(p, nil)

	_, err := g.Generate(context.Background(), Request{
		LabType: "flashcard_lab",
		Content: "secret material",
		CacheID: "caches/abc",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if p.lastCacheID != "caches/abc" {
		t.Errorf("cacheID = %q", p.lastCacheID)
	}
	if strings.Contains(p.lastPrompt, "secret material") {
		t.Error("cached prompt should not inline the source material")
	}
}

func TestGenerateUnknownLabType(t *testing.T) {
	g := NewGenerator(&fakeProvider{}, nil)

	_, err := g.Generate(context.Background(), Request{LabType: "dance_lab"})
	if !errors.Is(err, ErrUnknownLabType) {
		t.Fatalf("err = %v, want ErrUnknownLabType", err)
	}
}

func TestGeneratePropagatesProviderError(t *testing.T) {
	p := &fakeProvider{err: ai.ErrNoOutput}
	g := NewGenerator(p, nil)

	_, err := g.Generate(context.Background(), Request{LabType: "code_lab"})
	if !errors.Is(err, ai.ErrNoOutput) {
		t.Fatalf("err = %v, want ErrNoOutput", err)
	}
}
