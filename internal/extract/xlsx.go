package extract

import (
	"bytes"
	"context"

	"github.com/cloo-solutions/coachkb/internal/domain"
	"github.com/xuri/excelize/v2"
)

// XLSXExtractor treats every sheet of a workbook like a CSV file: the first
// row is the header and each following row becomes one chunk.
type XLSXExtractor struct{}

func (e *XLSXExtractor) ChunkType() domain.ChunkType {
	return domain.ChunkTypeCSV
}

func (e *XLSXExtractor) Extract(ctx context.Context, src Source) ([]domain.ChunkDraft, error) {
	f, err := excelize.OpenReader(bytes.NewReader(src.Data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	drafts := []domain.ChunkDraft{}
	for _, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			continue
		}
		base := domain.Metadata{}.Set("sheet", domain.StringValue(sheet))
		drafts = append(drafts, rowDrafts(src, rows[0], rows[1:], base)...)
	}
	return drafts, nil
}
