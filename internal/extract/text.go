package extract

import (
	"bytes"
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/cloo-solutions/coachkb/internal/domain"
	"github.com/gogs/chardet"
	"golang.org/x/text/encoding/htmlindex"
)

const defaultEncoding = "UTF-8"

// minConfidence is the chardet confidence below which UTF-8 is assumed.
const minConfidence = 30

var (
	utf8BOM       = []byte{0xEF, 0xBB, 0xBF}
	blankLineExpr = regexp.MustCompile(`\n[ \t]*\n`)
)

// DecodeText detects the byte encoding of data and returns the decoded text
// together with the encoding name. Valid UTF-8 always wins; when detection is
// ambiguous the bytes are read as UTF-8 with invalid sequences replaced.
func DecodeText(data []byte) (string, string) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return string(data), defaultEncoding
	}

	detector := chardet.NewTextDetector()
	result, err := detector.DetectBest(data)
	if err == nil && result != nil && result.Confidence >= minConfidence {
		if enc, err := htmlindex.Get(result.Charset); err == nil {
			decoded, err := enc.NewDecoder().Bytes(data)
			if err == nil {
				return string(decoded), result.Charset
			}
		}
	}

	return strings.ToValidUTF8(string(data), "�"), defaultEncoding
}

// TextExtractor splits plain text on blank lines.
type TextExtractor struct{}

func (e *TextExtractor) ChunkType() domain.ChunkType {
	return domain.ChunkTypeText
}

func (e *TextExtractor) Extract(ctx context.Context, src Source) ([]domain.ChunkDraft, error) {
	text, encoding := DecodeText(src.Data)
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var drafts []domain.ChunkDraft
	for _, section := range blankLineExpr.Split(text, -1) {
		if strings.TrimSpace(section) == "" {
			continue
		}
		meta := domain.Metadata{}.
			Set("section", domain.IntValue(int64(len(drafts)+1))).
			Set("encoding", domain.StringValue(encoding))
		drafts = append(drafts, domain.NewChunkDraft(section, src.Name, domain.ChunkTypeText, meta))
	}
	return drafts, nil
}
