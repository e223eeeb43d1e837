package excel

import (
	"encoding/csv"
	"os"
	"strconv"

	"github.com/xuri/excelize/v2"

	apperrors "cellfate/internal/errors"
)

const defaultSheet = "Sheet1"

// WriteTable stores t as CSV or as a single-sheet workbook, depending on the
// extension of path. Numeric cells are written as numbers in workbooks.
func WriteTable(path string, t *Table) error {
	var err error
	if fileTypeOf(path) == "csv" {
		err = writeCSV(path, t)
	} else {
		err = writeExcel(path, t)
	}
	if err != nil {
		return err
	}
	logger.Info("wrote %d rows to %s", len(t.Rows), path)
	return nil
}

func writeCSV(path string, t *Table) error {
	file, err := os.Create(path)
	if err != nil {
		return apperrors.Wrap(err, "failed to create CSV file")
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(t.Headers); err != nil {
		return apperrors.Wrap(err, "failed to write CSV header")
	}
	if err := w.WriteAll(t.Rows); err != nil {
		return apperrors.Wrap(err, "failed to write CSV rows")
	}
	return nil
}

func writeExcel(path string, t *Table) error {
	f := excelize.NewFile()
	defer f.Close()

	header := make([]interface{}, len(t.Headers))
	for i, h := range t.Headers {
		header[i] = h
	}
	if err := f.SetSheetRow(defaultSheet, "A1", &header); err != nil {
		return apperrors.Wrap(err, "failed to write header row")
	}
	for i, row := range t.Rows {
		cells := make([]interface{}, len(row))
		for j, v := range row {
			if num, err := strconv.ParseFloat(v, 64); err == nil {
				cells[j] = num
			} else {
				cells[j] = v
			}
		}
		axis, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return apperrors.Wrap(err, "invalid row")
		}
		if err := f.SetSheetRow(defaultSheet, axis, &cells); err != nil {
			return apperrors.Wrapf(err, "failed to write row %d", i+2)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return apperrors.Wrap(err, "failed to save workbook")
	}
	return nil
}
