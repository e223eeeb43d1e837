// Package excel reads and writes cell tables stored as Excel workbooks or CSV
// files and converts them to datasets and lineage matrices.
package excel

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"cellfate/domain/core"
	"cellfate/internal"
	apperrors "cellfate/internal/errors"
)

var logger = internal.DefaultLogger.With("excel")

// DataReader handles reading Excel and CSV files
type DataReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
	sheet    string
}

// NewDataReader creates a reader that picks the format from the file extension.
func NewDataReader(filePath string) *DataReader {
	return &DataReader{filePath: filePath, fileType: fileTypeOf(filePath)}
}

// WithSheet selects the worksheet of a workbook. The first sheet is used otherwise.
func (r *DataReader) WithSheet(name string) *DataReader {
	r.sheet = name
	return r
}

func fileTypeOf(path string) string {
	if strings.ToLower(filepath.Ext(path)) == ".csv" {
		return "csv"
	}
	return "xlsx"
}

// ReadTable reads the header row and all data rows.
func (r *DataReader) ReadTable() (*Table, error) {
	logger.Debug("reading %s file: %s", r.fileType, r.filePath)

	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, apperrors.NotFound(core.ErrNotFound, "%s file not found: %s", strings.ToUpper(r.fileType), r.filePath)
	}

	var (
		rows [][]string
		err  error
	)
	start := time.Now()
	switch r.fileType {
	case "csv":
		rows, err = r.readCSVRows()
	default:
		rows, err = r.readExcelRows()
	}
	if err != nil {
		return nil, err
	}
	logger.Debug("%s read in %v (%d rows)", r.filePath, time.Since(start), len(rows))

	if len(rows) < 2 {
		return nil, apperrors.Validation(core.ErrInvalidShape,
			"%s file must have at least a header row and one data row", strings.ToUpper(r.fileType))
	}
	return processRows(rows), nil
}

func (r *DataReader) readExcelRows() ([][]string, error) {
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to open Excel file")
	}
	defer f.Close()

	sheet := r.sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, apperrors.Validation(core.ErrInvalidShape, "workbook %s has no sheets", r.filePath)
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, apperrors.Wrapf(err, "failed to read sheet %q", sheet)
	}
	return rows, nil
}

func (r *DataReader) readCSVRows() ([][]string, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to open CSV file")
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to read CSV file")
	}
	return rows, nil
}

// processRows trims every cell and pads short rows to the header width.
// Workbooks omit trailing empty cells.
func processRows(rows [][]string) *Table {
	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(h)
	}

	data := make([][]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		out := make([]string, len(headers))
		for j := 0; j < len(row) && j < len(headers); j++ {
			out[j] = strings.TrimSpace(row[j])
		}
		data = append(data, out)
	}
	return &Table{Headers: headers, Rows: data}
}
