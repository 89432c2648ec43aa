package pdfparse

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// maxOutlineEntries caps the outline walk so a malformed item chain with a
// cycle cannot loop forever.
const maxOutlineEntries = 4096

// pdfDocument adapts a ledongthuc/pdf reader to the Document interface.
// Page texts are memoized because the pattern and banding strategies both
// visit every page.
type pdfDocument struct {
	reader *pdf.Reader
	texts  []string
	loaded []bool
}

func openDocument(data []byte) (*pdfDocument, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if reader.NumPage() == 0 {
		return nil, fmt.Errorf("%w: document has no pages", ErrParse)
	}
	return &pdfDocument{
		reader: reader,
		texts:  make([]string, reader.NumPage()),
		loaded: make([]bool, reader.NumPage()),
	}, nil
}

func (d *pdfDocument) PageCount() int {
	return d.reader.NumPage()
}

func (d *pdfDocument) PageText(n int) (string, error) {
	if n < 0 || n >= d.reader.NumPage() {
		return "", fmt.Errorf("page %d out of range", n)
	}
	if d.loaded[n] {
		return d.texts[n], nil
	}

	page := d.reader.Page(n + 1)
	if page.V.IsNull() {
		d.loaded[n] = true
		return "", nil
	}
	text, err := page.GetPlainText(nil)
	if err != nil {
		return "", err
	}
	d.texts[n] = text
	d.loaded[n] = true
	return text, nil
}

// Outline walks the raw outline dictionary chain instead of using the
// reader's Outline helper, which drops destinations. Entries whose
// destination cannot be resolved to a page are skipped.
func (d *pdfDocument) Outline() []OutlineEntry {
	outlines := d.reader.Trailer().Key("Root").Key("Outlines")
	if outlines.IsNull() {
		return nil
	}

	index := d.pageIndex()
	var entries []OutlineEntry
	seen := 0

	var walk func(item pdf.Value, level int)
	walk = func(item pdf.Value, level int) {
		for !item.IsNull() && seen < maxOutlineEntries {
			seen++
			if page, ok := d.destPage(item, index); ok {
				entries = append(entries, OutlineEntry{
					Title: item.Key("Title").Text(),
					Page:  page,
					Level: level,
				})
			}
			if child := item.Key("First"); !child.IsNull() {
				walk(child, level+1)
			}
			item = item.Key("Next")
		}
	}
	walk(outlines.Key("First"), 1)

	return entries
}

// pageIndex fingerprints every page object so destination arrays can be
// mapped back to 1-based page numbers.
func (d *pdfDocument) pageIndex() map[string]int {
	index := make(map[string]int, d.reader.NumPage())
	for n := 1; n <= d.reader.NumPage(); n++ {
		v := d.reader.Page(n).V
		if v.IsNull() {
			continue
		}
		index[v.String()] = n
	}
	return index
}

func (d *pdfDocument) destPage(item pdf.Value, index map[string]int) (int, bool) {
	dest := item.Key("Dest")
	if dest.IsNull() {
		dest = item.Key("A").Key("D")
	}
	if dest.Kind() != pdf.Array || dest.Len() == 0 {
		return 0, false
	}

	target := dest.Index(0)
	switch target.Kind() {
	case pdf.Integer:
		// Some writers store a 0-based page number instead of a page ref.
		n := int(target.Int64()) + 1
		if n >= 1 && n <= d.reader.NumPage() {
			return n, true
		}
	case pdf.Dict:
		if n, ok := index[target.String()]; ok {
			return n, true
		}
	}
	return 0, false
}
