package extract

import (
	"bytes"
	"context"
	"strings"

	"github.com/cloo-solutions/coachkb/internal/domain"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// MarkdownExtractor splits a document at its top-level headings. Text before
// the first heading becomes a level 0 section.
type MarkdownExtractor struct {
	md goldmark.Markdown
}

func NewMarkdownExtractor() *MarkdownExtractor {
	return &MarkdownExtractor{
		md: goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

func (e *MarkdownExtractor) ChunkType() domain.ChunkType {
	return domain.ChunkTypeMarkdown
}

type mdHeading struct {
	start int
	title string
	level int
}

func (e *MarkdownExtractor) Extract(ctx context.Context, src Source) ([]domain.ChunkDraft, error) {
	decoded, _ := DecodeText(src.Data)
	body := []byte(strings.ReplaceAll(decoded, "\r\n", "\n"))

	doc := e.md.Parser().Parse(text.NewReader(body))

	var headings []mdHeading
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		h, ok := n.(*ast.Heading)
		if !ok || h.Lines().Len() == 0 {
			continue
		}
		headings = append(headings, mdHeading{
			start: lineStart(body, h.Lines().At(0).Start),
			title: strings.TrimSpace(string(h.Lines().Value(body))),
			level: h.Level,
		})
	}

	drafts := []domain.ChunkDraft{}
	emit := func(content string, h mdHeading) {
		if strings.TrimSpace(content) == "" {
			return
		}
		meta := domain.Metadata{}.
			Set("section", domain.IntValue(int64(len(drafts)+1))).
			Set("heading", domain.StringValue(h.title)).
			Set("level", domain.IntValue(int64(h.level)))
		drafts = append(drafts, domain.NewChunkDraft(content, src.Name, domain.ChunkTypeMarkdown, meta))
	}

	if len(headings) == 0 {
		emit(string(body), mdHeading{})
		return drafts, nil
	}

	emit(string(body[:headings[0].start]), mdHeading{})
	for i, h := range headings {
		end := len(body)
		if i+1 < len(headings) {
			end = headings[i+1].start
		}
		emit(string(body[h.start:end]), h)
	}
	return drafts, nil
}

// lineStart returns the offset of the first byte of the line containing pos.
func lineStart(src []byte, pos int) int {
	if pos > len(src) {
		pos = len(src)
	}
	if i := bytes.LastIndexByte(src[:pos], '\n'); i >= 0 {
		return i + 1
	}
	return 0
}
