package extract

import (
	"context"
	"encoding/csv"
	"strconv"
	"strings"

	"github.com/cloo-solutions/coachkb/internal/domain"
)

// CSVExtractor emits one chunk per data row. The first record is the header.
type CSVExtractor struct{}

func (e *CSVExtractor) ChunkType() domain.ChunkType {
	return domain.ChunkTypeCSV
}

func (e *CSVExtractor) Extract(ctx context.Context, src Source) ([]domain.ChunkDraft, error) {
	records, err := ReadCSV(src.Data)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return []domain.ChunkDraft{}, nil
	}
	return rowDrafts(src, records[0], records[1:], nil), nil
}

// ReadCSV decodes data and parses every record. Ragged rows are allowed.
func ReadCSV(data []byte) ([][]string, error) {
	text, _ := DecodeText(data)
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	return r.ReadAll()
}

// RowContent renders a row as space-joined "column: value" pairs, skipping
// blank cells. Cells past the header are named "columnN".
func RowContent(header, row []string) string {
	parts := make([]string, 0, len(row))
	for i, cell := range row {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}
		parts = append(parts, columnName(header, i)+": "+cell)
	}
	return strings.Join(parts, " ")
}

func columnName(header []string, i int) string {
	if i < len(header) {
		if name := strings.TrimSpace(header[i]); name != "" {
			return name
		}
	}
	return "column" + strconv.Itoa(i+1)
}

// rowDrafts builds one draft per non-empty row. base is copied into every
// draft's metadata before row and columns.
func rowDrafts(src Source, header []string, rows [][]string, base domain.Metadata) []domain.ChunkDraft {
	columns := make([]string, 0, len(header))
	for i := range header {
		columns = append(columns, columnName(header, i))
	}
	joined := strings.Join(columns, ",")

	drafts := make([]domain.ChunkDraft, 0, len(rows))
	for i, row := range rows {
		content := RowContent(header, row)
		if content == "" {
			continue
		}
		meta := append(domain.Metadata{}, base...)
		meta = meta.
			Set("row", domain.IntValue(int64(i+1))).
			Set("columns", domain.StringValue(joined))
		drafts = append(drafts, domain.NewChunkDraft(content, src.Name, domain.ChunkTypeCSV, meta))
	}
	return drafts
}
