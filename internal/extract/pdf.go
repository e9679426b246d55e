package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloo-solutions/coachkb/internal/domain"
	"github.com/ledongthuc/pdf"
)

// MaxPDFPages limits the number of pages read from one document.
const MaxPDFPages = 500

var ErrNoPages = errors.New("pdf has no pages")

// PDFExtractor emits one chunk per page that has text.
type PDFExtractor struct{}

func (e *PDFExtractor) ChunkType() domain.ChunkType {
	return domain.ChunkTypePDF
}

// Extract recovers from panics inside the pdf reader, which it raises on
// some malformed cross-reference tables.
func (e *PDFExtractor) Extract(ctx context.Context, src Source) (drafts []domain.ChunkDraft, err error) {
	defer func() {
		if r := recover(); r != nil {
			drafts = nil
			err = fmt.Errorf("corrupt pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(src.Data), int64(len(src.Data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	total := reader.NumPage()
	if total == 0 {
		return nil, ErrNoPages
	}
	if total > MaxPDFPages {
		return nil, fmt.Errorf("pdf has too many pages (%d), max allowed is %d", total, MaxPDFPages)
	}

	for num := 1; num <= total; num++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(num)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text = cleanPDFText(text)
		if text == "" {
			continue
		}
		meta := domain.Metadata{}.Set("page", domain.IntValue(int64(num)))
		drafts = append(drafts, domain.NewChunkDraft(text, src.Name, domain.ChunkTypePDF, meta))
	}
	return drafts, nil
}

func cleanPDFText(text string) string {
	text = strings.ReplaceAll(text, "\x00", "")
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
