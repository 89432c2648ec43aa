package source

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/engineeringwithtemi/aide/internal/pdfparse"
)

func newTestPDF(t *testing.T) *PDFSource {
	t.Helper()
	src := NewPDF(Deps{Provider: &fakeProvider{}}, Params{
		ID:          uuid.New(),
		WorkspaceID: uuid.New(),
		Title:       "Biology 101",
	})
	pdf, ok := src.(*PDFSource)
	if !ok {
		t.Fatalf("NewPDF returned %T", src)
	}
	pdf.chapters = []pdfparse.Chapter{
		{ID: "ch_1", Title: "Cells", StartPage: 0, EndPage: 1, Text: "cell text"},
		{ID: "ch_2", Title: "Genetics", StartPage: 2, EndPage: 4, Text: "genetics text"},
	}
	pdf.currentChapterID = "ch_1"
	return pdf
}

func TestSetupRejectsUnparsableContent(t *testing.T) {
	src := NewPDF(Deps{Provider: &fakeProvider{}}, Params{ID: uuid.New()})

	_, err := src.Setup(context.Background(), SetupConfig{Content: []byte("not a pdf")})
	if !errors.Is(err, pdfparse.ErrParse) {
		t.Fatalf("err = %v, want ErrParse", err)
	}
}

func TestSetupRejectsSecondUpload(t *testing.T) {
	src := NewPDF(Deps{Provider: &fakeProvider{}}, Params{ID: uuid.New()})
	if err := src.Hydrate(Record{StoragePath: "existing.pdf"}); err != nil {
		t.Fatalf("Hydrate: %v", err)
	}

	_, err := src.Setup(context.Background(), SetupConfig{Content: []byte("anything")})
	if err == nil || !strings.Contains(err.Error(), "already has content") {
		t.Fatalf("err = %v, want already-has-content", err)
	}
}

func TestFullContentFormat(t *testing.T) {
	pdf := newTestPDF(t)

	got, err := pdf.FullContent(context.Background())
	if err != nil {
		t.Fatalf("FullContent: %v", err)
	}
	want := "=== Cells (Pages 1-2) ===\n\ncell text\n\n=== Genetics (Pages 3-5) ===\n\ngenetics text"
	if got != want {
		t.Errorf("FullContent = %q, want %q", got, want)
	}
}

func TestContentForGeneration(t *testing.T) {
	pdf := newTestPDF(t)
	ctx := context.Background()

	text, err := pdf.ContentForGeneration(ctx, GenerationContext{ChapterID: "ch_2"})
	if err != nil {
		t.Fatalf("ContentForGeneration: %v", err)
	}
	if text != "genetics text" {
		t.Errorf("chapter text = %q", text)
	}

	whole, err := pdf.ContentForGeneration(ctx, GenerationContext{})
	if err != nil {
		t.Fatalf("whole-source generation: %v", err)
	}
	if !strings.Contains(whole, "cell text") || !strings.Contains(whole, "genetics text") {
		t.Errorf("whole-source content = %q", whole)
	}

	_, err = pdf.ContentForGeneration(ctx, GenerationContext{ChapterID: "ch_99"})
	if !errors.Is(err, ErrInvalidReference) {
		t.Fatalf("err = %v, want ErrInvalidReference", err)
	}
}

func TestCurrentContextTracksChapter(t *testing.T) {
	pdf := newTestPDF(t)

	cur := pdf.CurrentContext()
	if cur.ChapterID != "ch_1" || cur.Reference != "Cells" || cur.Page != 0 {
		t.Errorf("CurrentContext = %+v", cur)
	}

	if err := pdf.SetCurrentChapter("ch_2"); err != nil {
		t.Fatalf("SetCurrentChapter: %v", err)
	}
	if cur := pdf.CurrentContext(); cur.ChapterID != "ch_2" || cur.Page != 2 {
		t.Errorf("CurrentContext after move = %+v", cur)
	}

	if err := pdf.SetCurrentChapter("ch_99"); !errors.Is(err, ErrInvalidReference) {
		t.Errorf("err = %v, want ErrInvalidReference", err)
	}
}

func TestActionsCarryChapterOption(t *testing.T) {
	pdf := newTestPDF(t)

	actions := pdf.Actions()
	if len(actions) == 0 {
		t.Fatal("no actions")
	}
	for _, a := range actions {
		if a.ConfigSchema == nil || a.ConfigSchema.Properties["chapter_id"] == nil {
			t.Errorf("action %s missing chapter_id option", a.ID)
		}
	}

	types := pdf.AvailableLabTypes()
	if len(types) != len(actions) {
		t.Errorf("AvailableLabTypes = %v, actions = %d", types, len(actions))
	}
}

func TestChatContext(t *testing.T) {
	pdf := newTestPDF(t)
	pdf.cache.Restore("caches/1", time.Now().Add(time.Hour))

	cc := pdf.ChatContext()
	if cc.Type != TypePDF || cc.Title != "Biology 101" || cc.TotalChapters != 2 {
		t.Errorf("ChatContext = %+v", cc)
	}
	if cc.CacheID != "caches/1" {
		t.Errorf("CacheID = %q", cc.CacheID)
	}
	if cc.Context.ChapterID != "ch_1" {
		t.Errorf("Context = %+v", cc.Context)
	}
}

// TestHydrateRoundTrip is the persistence round trip: Setup metadata fed
// back through Hydrate restores ids, titles, and page ranges, with text
// left empty.
func TestHydrateRoundTrip(t *testing.T) {
	pdf := newTestPDF(t)
	meta := pdf.Metadata()

	raw, err := json.Marshal(meta.Data)
	if err != nil {
		t.Fatalf("marshal metadata: %v", err)
	}

	restored := NewPDF(Deps{Provider: &fakeProvider{}}, Params{ID: pdf.id, Title: pdf.title})
	expires := time.Now().Add(time.Hour)
	err = restored.Hydrate(Record{
		StoragePath:    "stored.pdf",
		Metadata:       raw,
		CacheID:        "caches/9",
		CacheExpiresAt: expires,
	})
	if err != nil {
		t.Fatalf("Hydrate: %v", err)
	}

	got := restored.(*PDFSource)
	if len(got.chapters) != 2 {
		t.Fatalf("chapters = %d, want 2", len(got.chapters))
	}
	for i, ch := range got.chapters {
		orig := pdf.chapters[i]
		if ch.ID != orig.ID || ch.Title != orig.Title || ch.StartPage != orig.StartPage || ch.EndPage != orig.EndPage {
			t.Errorf("chapter %d = %+v, want structure of %+v", i, ch, orig)
		}
		if ch.Text != "" {
			t.Errorf("chapter %d text restored from metadata: %q", i, ch.Text)
		}
	}
	if got.currentChapterID != "ch_1" {
		t.Errorf("currentChapterID = %q, want ch_1", got.currentChapterID)
	}
	if got.cache.Handle() != "caches/9" || !got.cache.Valid() {
		t.Error("cache handle not restored")
	}
	if got.StoragePath() != "stored.pdf" {
		t.Errorf("StoragePath = %q", got.StoragePath())
	}
}

func TestHydrateRestoresReadingPosition(t *testing.T) {
	pdf := newTestPDF(t)
	if err := pdf.SetCurrentChapter("ch_2"); err != nil {
		t.Fatalf("SetCurrentChapter: %v", err)
	}

	raw, err := json.Marshal(pdf.Metadata().Data)
	if err != nil {
		t.Fatalf("marshal metadata: %v", err)
	}

	restored := NewPDF(Deps{Provider: &fakeProvider{}}, Params{ID: pdf.id})
	if err := restored.Hydrate(Record{Metadata: raw}); err != nil {
		t.Fatalf("Hydrate: %v", err)
	}
	if got := restored.(*PDFSource).currentChapterID; got != "ch_2" {
		t.Errorf("currentChapterID = %q, want ch_2", got)
	}

	// A stale id falls back to the first chapter.
	stale := NewPDF(Deps{Provider: &fakeProvider{}}, Params{ID: pdf.id})
	raw = []byte(`{"chapters":[{"id":"ch_1","title":"Cells","start_page":0,"end_page":1}],"current_chapter_id":"ch_9"}`)
	if err := stale.Hydrate(Record{Metadata: raw}); err != nil {
		t.Fatalf("Hydrate: %v", err)
	}
	if got := stale.(*PDFSource).currentChapterID; got != "ch_1" {
		t.Errorf("currentChapterID = %q, want fallback ch_1", got)
	}
}

func TestHydrateDefaultsEndPage(t *testing.T) {
	src := NewPDF(Deps{Provider: &fakeProvider{}}, Params{ID: uuid.New()})

	raw := []byte(`{"chapters":[{"id":"ch_1","title":"Only","start_page":3}]}`)
	if err := src.Hydrate(Record{Metadata: raw}); err != nil {
		t.Fatalf("Hydrate: %v", err)
	}

	ch := src.(*PDFSource).chapters[0]
	if ch.EndPage != 3 {
		t.Errorf("EndPage = %d, want start page 3", ch.EndPage)
	}
}

func TestViewData(t *testing.T) {
	pdf := newTestPDF(t)

	view := pdf.ViewData()
	if view["type"] != TypePDF || view["title"] != "Biology 101" {
		t.Errorf("view = %+v", view)
	}
	if view["total_pages"] != 5 {
		t.Errorf("total_pages = %v, want 5", view["total_pages"])
	}
	if view["current_chapter_id"] != "ch_1" {
		t.Errorf("current_chapter_id = %v", view["current_chapter_id"])
	}
}
