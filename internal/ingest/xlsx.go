package ingest

import (
	"bytes"
	"strings"

	"github.com/xuri/excelize/v2"
)

// DecodeXLSX reads the first sheet of a workbook into a Table. The first
// non-blank row is the header.
func DecodeXLSX(data []byte) (*Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Reason: "cannot open workbook: " + err.Error()}
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &DecodeError{Reason: "workbook has no sheets"}
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, &DecodeError{Reason: "cannot read sheet " + sheets[0] + ": " + err.Error()}
	}

	for len(rows) > 0 && isBlank(rows[0]) {
		rows = rows[1:]
	}
	rows = dropTrailingBlank(rows)
	if len(rows) == 0 {
		return nil, &DecodeError{Reason: "input is empty"}
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(h)
	}

	return &Table{
		Encoding: EncodingXLSX,
		Headers:  headers,
		Rows:     rows[1:],
	}, nil
}

// IsXLSX reports whether data looks like an OOXML workbook (a zip archive).
func IsXLSX(name string, data []byte) bool {
	if strings.HasSuffix(strings.ToLower(name), ".xlsx") {
		return true
	}
	return bytes.HasPrefix(data, []byte("PK\x03\x04"))
}
