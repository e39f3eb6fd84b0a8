// Package workbook reads the PSGC publication workbook into source rows.
// It is the only package that knows about spreadsheet formats; everything
// downstream consumes models.SourceRow.
package workbook

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/psgc-data/psgc-engine/pkg/models"
)

// Reader loads entity rows from one sheet of an xlsx workbook.
type Reader struct {
	path  string
	sheet string
}

// NewReader creates a Reader for the given workbook path and sheet name.
func NewReader(path, sheet string) *Reader {
	return &Reader{path: path, sheet: sheet}
}

// columns maps normalized header text to SourceRow fields. The publication
// uses multi-line headers ("Income\nClassification (DOF DO No. 074.2024)"),
// so matching is on collapsed, lowercased prefixes.
var columns = []struct {
	prefix string
	assign func(row *models.SourceRow, value string)
}{
	{"10-digit psgc", func(r *models.SourceRow, v string) { r.Code = v }},
	{"name", func(r *models.SourceRow, v string) { r.Name = v }},
	{"correspondence code", func(r *models.SourceRow, v string) { r.CorrespondenceCode = v }},
	{"geographic level", func(r *models.SourceRow, v string) { r.LevelCode = v }},
	{"old names", func(r *models.SourceRow, v string) { r.OldNames = v }},
	{"city class", func(r *models.SourceRow, v string) { r.CityClass = v }},
	{"income classification", func(r *models.SourceRow, v string) { r.IncomeClass = v }},
	{"urban / rural", func(r *models.SourceRow, v string) { r.UrbanRural = v }},
	{"status", func(r *models.SourceRow, v string) { r.Status = v }},
}

// normalizeHeader collapses newlines and repeated spaces so the multi-line
// publication headers compare cleanly.
func normalizeHeader(h string) string {
	return strings.Join(strings.Fields(strings.ToLower(h)), " ")
}

func assignFor(header string) func(row *models.SourceRow, value string) {
	normalized := normalizeHeader(header)
	for _, col := range columns {
		if strings.HasPrefix(normalized, col.prefix) {
			return col.assign
		}
	}
	// Any "<year> Population" column carries the census figure.
	if strings.Contains(normalized, "population") {
		return func(r *models.SourceRow, v string) { r.Population = v }
	}
	return nil
}

// Rows reads the sheet into source rows. The first sheet row is the
// header; every following row becomes one SourceRow, including footnote
// rows (they carry no identifier and are skipped downstream).
func (r *Reader) Rows(ctx context.Context) ([]models.SourceRow, error) {
	f, err := excelize.OpenFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", r.path, err)
	}
	defer f.Close()

	sheetRows, err := f.GetRows(r.sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", r.sheet, err)
	}
	if len(sheetRows) == 0 {
		return nil, fmt.Errorf("sheet %q is empty", r.sheet)
	}

	assigns := make([]func(row *models.SourceRow, value string), len(sheetRows[0]))
	matched := 0
	for i, header := range sheetRows[0] {
		if assigns[i] = assignFor(header); assigns[i] != nil {
			matched++
		}
	}
	if matched == 0 {
		return nil, fmt.Errorf("sheet %q has no recognized headers", r.sheet)
	}

	rows := make([]models.SourceRow, 0, len(sheetRows)-1)
	for i, cells := range sheetRows[1:] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row := models.SourceRow{Index: i + 2} // sheet row number, header is row 1
		for j, cell := range cells {
			if j < len(assigns) && assigns[j] != nil {
				assigns[j](&row, strings.TrimSpace(cell))
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
