package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/engineeringwithtemi/aide/internal/ai"
	"github.com/engineeringwithtemi/aide/internal/lab"
	"github.com/engineeringwithtemi/aide/internal/objectstore"
	"github.com/engineeringwithtemi/aide/internal/pdfparse"
)

// PDFSource is a PDF document split into chapters. The chapter list is
// the unit of navigation and of scoped generation.
type PDFSource struct {
	id          uuid.UUID
	workspaceID uuid.UUID
	title       string
	storagePath string

	chapters         []pdfparse.Chapter
	currentChapterID string

	cache   *CacheManager
	objects objectstore.Store
	logger  *slog.Logger
}

// NewPDF is the Factory for PDF sources.
func NewPDF(deps Deps, p Params) Source {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFSource{
		id:          p.ID,
		workspaceID: p.WorkspaceID,
		title:       p.Title,
		cache:       NewCacheManager(p.ID, deps.Provider, deps.Cache, logger),
		objects:     deps.Objects,
		logger:      logger,
	}
}

func (s *PDFSource) Type() string         { return TypePDF }
func (s *PDFSource) Cache() *CacheManager { return s.cache }

// StoragePath returns the object-store path of the raw file, empty before
// Setup.
func (s *PDFSource) StoragePath() string { return s.storagePath }

// Setup parses the PDF into chapters, then uploads the raw bytes and
// warms the content cache concurrently. Parse failures abort; cache
// failures do not.
func (s *PDFSource) Setup(ctx context.Context, cfg SetupConfig) (*Metadata, error) {
	if s.storagePath != "" {
		return nil, fmt.Errorf("source %s already has content", s.id)
	}

	data := cfg.Content
	if data == nil && cfg.FilePath != "" {
		var err error
		data, err = os.ReadFile(cfg.FilePath)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", cfg.FilePath, err)
		}
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: no content provided", pdfparse.ErrParse)
	}

	chapters, err := pdfparse.ExtractChapters(ctx, data)
	if err != nil {
		return nil, err
	}
	s.chapters = chapters
	s.currentChapterID = chapters[0].ID

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		path, err := s.objects.Upload(gctx, s.id.String()+".pdf", bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("storing pdf: %w", err)
		}
		s.storagePath = path
		return nil
	})
	g.Go(func() error {
		// Cache warming is best effort; a cold cache only costs tokens
		// on the first generation.
		if _, status := s.cache.CacheID(gctx, s); status != CacheReady {
			s.logger.Info("content cache not warmed", "source_id", s.id, "status", status.String())
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.logger.Info("pdf source ready",
		"source_id", s.id, "chapters", len(s.chapters), "storage_path", s.storagePath)
	return s.Metadata(), nil
}

// Metadata renders the persistable structure: chapter list and reading
// position, no text.
func (s *PDFSource) Metadata() *Metadata {
	list := make([]map[string]any, 0, len(s.chapters))
	for _, ch := range s.chapters {
		list = append(list, map[string]any{
			"id":         ch.ID,
			"title":      ch.Title,
			"start_page": ch.StartPage,
			"end_page":   ch.EndPage,
		})
	}
	return &Metadata{
		Title: s.title,
		Data: map[string]any{
			"chapters":           list,
			"current_chapter_id": s.currentChapterID,
		},
	}
}

// FullContent renders every chapter with a heading banner, page numbers
// shown 1-based.
func (s *PDFSource) FullContent(ctx context.Context) (string, error) {
	if len(s.chapters) == 0 {
		return "", fmt.Errorf("source %s has no chapters", s.id)
	}
	parts := make([]string, 0, len(s.chapters))
	for _, ch := range s.chapters {
		parts = append(parts, fmt.Sprintf("=== %s (Pages %d-%d) ===\n\n%s",
			ch.Title, ch.StartPage+1, ch.EndPage+1, ch.Text))
	}
	return strings.Join(parts, "\n\n"), nil
}

// ContentForGeneration returns one chapter's text, or the whole source
// when no chapter is named.
func (s *PDFSource) ContentForGeneration(ctx context.Context, gen GenerationContext) (string, error) {
	if gen.ChapterID == "" {
		return s.FullContent(ctx)
	}
	for _, ch := range s.chapters {
		if ch.ID == gen.ChapterID {
			return ch.Text, nil
		}
	}
	return "", fmt.Errorf("%w: chapter %s", ErrInvalidReference, gen.ChapterID)
}

func (s *PDFSource) CurrentContext() Context {
	for _, ch := range s.chapters {
		if ch.ID == s.currentChapterID {
			return Context{Reference: ch.Title, Page: ch.StartPage, ChapterID: ch.ID}
		}
	}
	return Context{}
}

// SetCurrentChapter moves the reading position.
func (s *PDFSource) SetCurrentChapter(chapterID string) error {
	for _, ch := range s.chapters {
		if ch.ID == chapterID {
			s.currentChapterID = chapterID
			return nil
		}
	}
	return fmt.Errorf("%w: chapter %s", ErrInvalidReference, chapterID)
}

func (s *PDFSource) AvailableLabTypes() []string {
	var out []string
	for _, def := range lab.Definitions() {
		if def.Supports(TypePDF) {
			out = append(out, def.Type)
		}
	}
	return out
}

// Actions returns the generation actions with a chapter_id option added
// so the frontend can scope generation.
func (s *PDFSource) Actions() []lab.Action {
	var out []lab.Action
	for _, def := range lab.Definitions() {
		if !def.Supports(TypePDF) {
			continue
		}
		a := def.Action()
		a.ConfigSchema.Properties["chapter_id"] = &ai.Schema{
			Type:        "string",
			Description: "Restrict generation to one chapter; omit for the whole document",
		}
		out = append(out, a)
	}
	return out
}

func (s *PDFSource) ChatContext() ChatContext {
	return ChatContext{
		ID:            s.id.String(),
		Type:          TypePDF,
		Title:         s.title,
		CacheID:       s.cache.Handle(),
		Context:       s.CurrentContext(),
		TotalChapters: len(s.chapters),
	}
}

func (s *PDFSource) ViewData() map[string]any {
	totalPages := 0
	if n := len(s.chapters); n > 0 {
		totalPages = s.chapters[n-1].EndPage + 1
	}
	return map[string]any{
		"type":               TypePDF,
		"title":              s.title,
		"storage_path":       s.storagePath,
		"chapters":           s.chapters,
		"current_chapter_id": s.currentChapterID,
		"total_pages":        totalPages,
	}
}

type pdfMetadata struct {
	Chapters []struct {
		ID        string `json:"id"`
		Title     string `json:"title"`
		StartPage int    `json:"start_page"`
		EndPage   *int   `json:"end_page"`
	} `json:"chapters"`
	CurrentChapterID string `json:"current_chapter_id"`
}

// Hydrate restores the chapter structure from persisted metadata. Text is
// not persisted; LoadContent re-parses the raw file when it is needed.
func (s *PDFSource) Hydrate(rec Record) error {
	s.storagePath = rec.StoragePath

	var meta pdfMetadata
	if len(rec.Metadata) > 0 {
		if err := json.Unmarshal(rec.Metadata, &meta); err != nil {
			return fmt.Errorf("decoding pdf metadata: %w", err)
		}
		s.chapters = make([]pdfparse.Chapter, 0, len(meta.Chapters))
		for _, ch := range meta.Chapters {
			end := ch.StartPage
			if ch.EndPage != nil {
				end = *ch.EndPage
			}
			s.chapters = append(s.chapters, pdfparse.Chapter{
				ID:        ch.ID,
				Title:     ch.Title,
				StartPage: ch.StartPage,
				EndPage:   end,
			})
		}
	}
	if len(s.chapters) > 0 {
		s.currentChapterID = s.chapters[0].ID
	}
	s.restoreCurrentChapter(meta.CurrentChapterID)

	s.cache.Restore(rec.CacheID, rec.CacheExpiresAt)
	return nil
}

// restoreCurrentChapter applies a persisted reading position, keeping the
// first-chapter default when the id no longer resolves.
func (s *PDFSource) restoreCurrentChapter(id string) {
	for _, ch := range s.chapters {
		if ch.ID == id {
			s.currentChapterID = id
			return
		}
	}
}

// ContentLoaded reports whether any chapter text is in memory. Hydrated
// sources start structural-only.
func (s *PDFSource) ContentLoaded() bool {
	for _, ch := range s.chapters {
		if ch.Text != "" {
			return true
		}
	}
	return false
}

// LoadContent re-extracts chapter text from the raw file, matching the
// restored structure by chapter id.
func (s *PDFSource) LoadContent(ctx context.Context, data []byte) error {
	chapters, err := pdfparse.ExtractChapters(ctx, data)
	if err != nil {
		return err
	}
	byID := make(map[string]string, len(chapters))
	for _, ch := range chapters {
		byID[ch.ID] = ch.Text
	}
	for i := range s.chapters {
		if text, ok := byID[s.chapters[i].ID]; ok {
			s.chapters[i].Text = text
		}
	}
	return nil
}
