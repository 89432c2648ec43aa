// Package pdfparse turns raw PDF bytes into an ordered list of chapters.
//
// Extraction runs a fixed fallback chain: document outline, heading
// detection, "Chapter N" pattern matching, and finally fixed-size page
// bands. The first strategy that yields chapters wins.
package pdfparse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// ErrParse wraps every failure to read a document: encrypted input, a
// document with zero pages, or a malformed file.
var ErrParse = errors.New("unreadable pdf")

// bandSize is the page count per chapter used by the last-resort strategy.
const bandSize = 10

// Chapter is one extracted chapter or section. Pages are 0-based and
// end-inclusive. Text is empty when the chapter was rebuilt from persisted
// structural metadata instead of the original file.
type Chapter struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	StartPage int    `json:"start_page"`
	EndPage   int    `json:"end_page"`
	Text      string `json:"text,omitempty"`
}

// OutlineEntry is a single bookmark from the document outline.
// Page is 1-based, matching the PDF convention; Level 1 is top level.
type OutlineEntry struct {
	Title string
	Page  int
	Level int
}

// Document is the read surface the extraction chain needs from a PDF.
// PageText takes a 0-based page number.
type Document interface {
	PageCount() int
	PageText(n int) (string, error)
	Outline() []OutlineEntry
}

// ExtractChapters opens data as a PDF and runs the extraction chain.
func ExtractChapters(ctx context.Context, data []byte) ([]Chapter, error) {
	doc, err := openDocument(data)
	if err != nil {
		return nil, err
	}
	return ChaptersFromDocument(ctx, doc)
}

// ChaptersFromDocument runs the extraction chain against an already-open
// document. Exposed separately so the chain can be driven by any Document
// implementation.
func ChaptersFromDocument(ctx context.Context, doc Document) ([]Chapter, error) {
	if doc.PageCount() == 0 {
		return nil, fmt.Errorf("%w: document has no pages", ErrParse)
	}

	texts, err := allPageTexts(ctx, doc)
	if err != nil {
		return nil, err
	}

	if chapters := tocChapters(doc.Outline(), texts); len(chapters) > 0 {
		slog.Debug("extracted chapters from document outline", "count", len(chapters))
		return chapters, nil
	}
	if chapters := headingChapters(texts); len(chapters) > 0 {
		slog.Debug("extracted chapters from headings", "count", len(chapters))
		return chapters, nil
	}
	if chapters := patternChapters(texts); len(chapters) > 0 {
		slog.Debug("extracted chapters from text patterns", "count", len(chapters))
		return chapters, nil
	}
	chapters := bandChapters(texts)
	slog.Debug("falling back to page bands", "count", len(chapters))
	return chapters, nil
}

func allPageTexts(ctx context.Context, doc Document) ([]string, error) {
	texts := make([]string, doc.PageCount())
	for n := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := doc.PageText(n)
		if err != nil {
			return nil, fmt.Errorf("%w: extracting text of page %d: %v", ErrParse, n, err)
		}
		texts[n] = text
	}
	return texts, nil
}

// tocChapters derives chapters from the top-level outline entries. Entry i
// spans from its own page to the page before the next top-level entry, or
// to the last page for the final entry. Outline pages are 1-based and
// converted to the 0-based convention here.
func tocChapters(outline []OutlineEntry, texts []string) []Chapter {
	lastPage := len(texts) - 1

	var chapters []Chapter
	for i, entry := range outline {
		if entry.Level != 1 {
			continue
		}
		start := entry.Page - 1
		if start < 0 || start > lastPage {
			continue
		}

		end := lastPage
		for j := i + 1; j < len(outline); j++ {
			if outline[j].Level == 1 {
				end = outline[j].Page - 2
				break
			}
		}
		if end < start {
			end = start
		}
		if end > lastPage {
			end = lastPage
		}

		chapters = append(chapters, Chapter{
			ID:        fmt.Sprintf("ch_%d", len(chapters)+1),
			Title:     entry.Title,
			StartPage: start,
			EndPage:   end,
			Text:      rangeText(texts, start, end),
		})
	}
	return chapters
}

// headingChapters detects chapters from heading font sizes and styles.
// Font analysis is not implemented; this strategy always reports no
// chapters and the chain falls through to pattern matching. It keeps its
// slot in the chain so adding the analysis later does not reorder the
// fallback behavior.
func headingChapters(texts []string) []Chapter {
	return nil
}

var chapterPattern = regexp.MustCompile(`(?m)^(Chapter|CHAPTER|Section|SECTION)\s+(\d+)`)

// patternChapters opens a chapter on every page whose text contains a
// "Chapter N" / "Section N" line; only the first match on a page counts.
// A chapter closes on the page before the next matching page.
func patternChapters(texts []string) []Chapter {
	lastPage := len(texts) - 1

	var chapters []Chapter
	for page, text := range texts {
		match := chapterPattern.FindString(text)
		if match == "" {
			continue
		}

		end := lastPage
		for next := page + 1; next < len(texts); next++ {
			if chapterPattern.MatchString(texts[next]) {
				end = next - 1
				break
			}
		}

		chapters = append(chapters, Chapter{
			ID:        fmt.Sprintf("ch_%d", len(chapters)+1),
			Title:     match,
			StartPage: page,
			EndPage:   end,
			Text:      rangeText(texts, page, end),
		})
	}
	return chapters
}

// bandChapters partitions the document into contiguous bands of bandSize
// pages. It always produces at least one chapter for a non-empty document.
func bandChapters(texts []string) []Chapter {
	var chapters []Chapter
	for start := 0; start < len(texts); start += bandSize {
		end := start + bandSize - 1
		if end > len(texts)-1 {
			end = len(texts) - 1
		}
		chapters = append(chapters, Chapter{
			ID:        fmt.Sprintf("section_%d", len(chapters)+1),
			Title:     fmt.Sprintf("Pages %d-%d", start+1, end+1),
			StartPage: start,
			EndPage:   end,
			Text:      rangeText(texts, start, end),
		})
	}
	return chapters
}

func rangeText(texts []string, start, end int) string {
	return strings.Join(texts[start:end+1], "\n\n")
}
