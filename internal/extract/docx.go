package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloo-solutions/coachkb/internal/domain"
)

const (
	docxBody = "word/document.xml"
	wordNS   = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
)

var ErrMissingDocumentXML = errors.New("docx archive has no word/document.xml")

// DocxExtractor emits one chunk per non-empty paragraph of the main document part.
type DocxExtractor struct{}

func (e *DocxExtractor) ChunkType() domain.ChunkType {
	return domain.ChunkTypeDocx
}

func (e *DocxExtractor) Extract(ctx context.Context, src Source) ([]domain.ChunkDraft, error) {
	paragraphs, err := DocxParagraphs(src.Data)
	if err != nil {
		return nil, err
	}

	drafts := []domain.ChunkDraft{}
	for i, p := range paragraphs {
		if strings.TrimSpace(p) == "" {
			continue
		}
		meta := domain.Metadata{}.Set("paragraph", domain.IntValue(int64(i+1)))
		drafts = append(drafts, domain.NewChunkDraft(p, src.Name, domain.ChunkTypeDocx, meta))
	}
	return drafts, nil
}

// DocxParagraphs returns the text of every w:p element in document order,
// empty paragraphs included so indexes stay stable.
func DocxParagraphs(data []byte) ([]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}

	var part *zip.File
	for _, f := range zr.File {
		if f.Name == docxBody {
			part = f
			break
		}
	}
	if part == nil {
		return nil, ErrMissingDocumentXML
	}

	rc, err := part.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", docxBody, err)
	}
	defer rc.Close()

	dec := xml.NewDecoder(rc)
	var (
		paragraphs []string
		current    strings.Builder
		depth      int
		inText     bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", docxBody, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space != wordNS {
				continue
			}
			switch t.Name.Local {
			case "p":
				if depth == 0 {
					current.Reset()
				}
				depth++
			case "t":
				inText = true
			case "tab":
				if depth > 0 {
					current.WriteString("\t")
				}
			case "br", "cr":
				if depth > 0 {
					current.WriteString("\n")
				}
			}
		case xml.EndElement:
			if t.Name.Space != wordNS {
				continue
			}
			switch t.Name.Local {
			case "p":
				if depth > 0 {
					depth--
				}
				if depth == 0 {
					paragraphs = append(paragraphs, current.String())
				}
			case "t":
				inText = false
			}
		case xml.CharData:
			if inText && depth > 0 {
				current.Write(t)
			}
		}
	}
	return paragraphs, nil
}
