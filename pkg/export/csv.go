// Package export writes the partitioned dataset as CSV files matching the
// target-store table layouts, one file per table.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/psgc-data/psgc-engine/pkg/models"
)

// Exporter writes dataset CSVs into a directory.
type Exporter struct {
	dir string
}

// NewExporter creates an Exporter targeting dir; the directory is created
// on first use.
func NewExporter(dir string) *Exporter {
	return &Exporter{dir: dir}
}

// Export writes one CSV per table and returns the written paths in
// dependency order. Output is deterministic: the dataset ordering is
// preserved verbatim.
func (e *Exporter) Export(ds *models.Dataset) ([]string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir %s: %w", e.dir, err)
	}

	var paths []string
	for _, table := range ds.Tables() {
		path := filepath.Join(e.dir, table.Name+".csv")
		if err := writeTable(path, table); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeTable(path string, table models.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(table.Columns); err != nil {
		return fmt.Errorf("failed to write header of %s: %w", path, err)
	}
	record := make([]string, len(table.Columns))
	for _, row := range table.Rows {
		for i, cell := range row {
			record[i] = formatCell(cell)
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("failed to write row of %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}
	return f.Close()
}

func formatCell(cell any) string {
	switch v := cell.(type) {
	case nil:
		return ""
	case string:
		return v
	case *string:
		if v == nil {
			return ""
		}
		return *v
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprintf("%v", v)
	}
}
