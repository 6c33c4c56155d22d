package port

import "github.com/rl1809/storeflow/internal/core/sheet"

type WorkbookCodec interface {
	// Encode builds a single-sheet workbook with headers in the first row
	Encode(sheetName string, headers []string, rows []sheet.Row) ([]byte, error)

	// Decode reads the first sheet, using its first row as headers
	Decode(data []byte) ([]sheet.Row, error)
}
