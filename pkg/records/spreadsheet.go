package records

import (
	"bytes"
	"fmt"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// maxSheetRows bounds how many rows are read from a legacy .xls sheet.
const maxSheetRows = 10000

// ParseXLS reads the first sheet of a legacy Excel workbook.
func ParseXLS(data []byte, fields []string) ([]Record, error) {
	workbook, err := xls.OpenReader(bytes.NewReader(data), "cp1252")
	if err != nil {
		return nil, fmt.Errorf("error creating workbook: %w", err)
	}
	rows := workbook.ReadAllCells(maxSheetRows)
	if len(rows) == 0 {
		return nil, fmt.Errorf("no data found in sheet")
	}
	return fromRows(rows, fields), nil
}

// ParseXLSX reads the first sheet of an Office Open XML workbook.
func ParseXLSX(data []byte, fields []string) ([]Record, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets found in file")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading sheet: %w", err)
	}
	return fromRows(rows, fields), nil
}
