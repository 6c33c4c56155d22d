// Package spreadsheet reads and writes .xlsx workbooks with excelize.
package spreadsheet

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/rl1809/storeflow/internal/core/sheet"
)

var ErrNoSheets = errors.New("workbook has no sheets")

const defaultSheet = "Sheet1"

// ExcelCodec converts between sheet rows and single-sheet .xlsx bytes.
type ExcelCodec struct{}

func NewExcelCodec() *ExcelCodec {
	return &ExcelCodec{}
}

// Encode writes headers to the first row and one row per entry below it,
// in header order. Cells for headers absent from a row stay empty.
func (c *ExcelCodec) Encode(sheetName string, headers []string, rows []sheet.Row) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(defaultSheet, sheetName); err != nil {
		return nil, fmt.Errorf("name sheet: %w", err)
	}

	head := make([]any, len(headers))
	for i, h := range headers {
		head[i] = h
	}
	if err := f.SetSheetRow(sheetName, "A1", &head); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	for i, row := range rows {
		values := make([]any, len(headers))
		for j, h := range headers {
			values[j] = row[h]
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode reads the first sheet. Its first row names the columns; rows with
// no non-blank cell are skipped.
func (c *ExcelCodec) Decode(data []byte) ([]sheet.Row, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoSheets
	}

	grid, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(grid) == 0 {
		return []sheet.Row{}, nil
	}

	headers := make([]string, len(grid[0]))
	for i, h := range grid[0] {
		headers[i] = strings.TrimSpace(h)
	}

	rows := make([]sheet.Row, 0, len(grid)-1)
	for _, cells := range grid[1:] {
		row := sheet.Row{}
		blank := true
		for j, v := range cells {
			if j >= len(headers) || headers[j] == "" {
				continue
			}
			if strings.TrimSpace(v) != "" {
				blank = false
			}
			row[headers[j]] = v
		}
		if !blank {
			rows = append(rows, row)
		}
	}
	return rows, nil
}
