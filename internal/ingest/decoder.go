package ingest

import (
	"bytes"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	xunicode "golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Encoding names reported on a decoded table.
const (
	EncodingUTF8    = "utf-8"
	EncodingUTF16LE = "utf-16le"
	EncodingUTF16BE = "utf-16be"
	// EncodingWindows1252 is used when the input has no BOM and is not
	// valid UTF-8, which is how legacy spreadsheet exports usually arrive.
	EncodingWindows1252 = "windows-1252"
	EncodingXLSX        = "xlsx"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// delimiterCandidates is ordered by tie-break priority.
var delimiterCandidates = []byte{',', ';', '\t'}

// Table is a decoded tabular upload.
type Table struct {
	Encoding  string
	Delimiter string
	Headers   []string
	Rows      [][]string
}

// Decode detects the encoding and delimiter of data and parses it into a
// header row and data rows.
func Decode(data []byte) (*Table, error) {
	text, enc, err := decodeText(data)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, &DecodeError{Reason: "input is empty"}
	}

	delim := detectDelimiter(text)
	records, err := scanRecords(text, delim)
	if err != nil {
		return nil, err
	}
	records = dropTrailingBlank(records)
	if len(records) == 0 {
		return nil, &DecodeError{Reason: "input is empty"}
	}

	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		headers[i] = strings.TrimSpace(h)
	}
	if isBlank(headers) {
		return nil, &DecodeError{Line: 1, Reason: "header row is blank"}
	}

	return &Table{
		Encoding:  enc,
		Delimiter: string(delim),
		Headers:   headers,
		Rows:      records[1:],
	}, nil
}

// Records pairs each data row with the headers. Missing trailing cells are
// empty strings, extra cells are dropped, and a repeated header gets a
// numeric suffix so no value is lost.
func (t *Table) Records() []map[string]string {
	keys := uniqueHeaders(t.Headers)
	out := make([]map[string]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := make(map[string]string, len(keys))
		for i, k := range keys {
			if k == "" {
				continue
			}
			if i < len(row) {
				rec[k] = row[i]
			} else {
				rec[k] = ""
			}
		}
		out = append(out, rec)
	}
	return out
}

func uniqueHeaders(headers []string) []string {
	seen := make(map[string]int, len(headers))
	keys := make([]string, len(headers))
	for i, h := range headers {
		if h == "" {
			continue
		}
		seen[h]++
		if n := seen[h]; n > 1 {
			keys[i] = h + " " + strconv.Itoa(n)
			continue
		}
		keys[i] = h
	}
	return keys
}

// decodeText strips the byte-order mark and converts data to a Go string.
// BOM priority is UTF-8, then UTF-16LE, then UTF-16BE.
func decodeText(data []byte) (string, string, error) {
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		return string(data[len(bomUTF8):]), EncodingUTF8, nil
	case bytes.HasPrefix(data, bomUTF16LE):
		s, err := transcode(xunicode.UTF16(xunicode.LittleEndian, xunicode.ExpectBOM), data)
		return s, EncodingUTF16LE, err
	case bytes.HasPrefix(data, bomUTF16BE):
		s, err := transcode(xunicode.UTF16(xunicode.BigEndian, xunicode.ExpectBOM), data)
		return s, EncodingUTF16BE, err
	case utf8.Valid(data):
		return string(data), EncodingUTF8, nil
	default:
		s, err := transcode(charmap.Windows1252, data)
		return s, EncodingWindows1252, err
	}
}

func transcode(enc encoding.Encoding, data []byte) (string, error) {
	out, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		return "", &DecodeError{Reason: "cannot decode text: " + err.Error()}
	}
	return string(out), nil
}

// detectDelimiter counts candidate delimiters on the header line, ignoring
// any that sit inside a quoted field.
func detectDelimiter(text string) byte {
	counts := make(map[byte]int, len(delimiterCandidates))
	inQuotes := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c == '"' {
			inQuotes = !inQuotes
			continue
		}
		if inQuotes {
			continue
		}
		if c == '\n' || c == '\r' {
			break
		}
		counts[c]++
	}

	best := delimiterCandidates[0]
	for _, d := range delimiterCandidates[1:] {
		if counts[d] > counts[best] {
			best = d
		}
	}
	return best
}

// scanRecords is a single-pass quote-aware scanner. A doubled quote inside a
// quoted field is a literal quote; delimiters and line breaks inside quotes
// are field content. All line endings are normalized to \n.
func scanRecords(text string, delim byte) ([][]string, error) {
	var (
		records   [][]string
		record    []string
		field     strings.Builder
		inQuotes  bool
		line      = 1
		quoteLine int
	)

	endField := func() {
		record = append(record, field.String())
		field.Reset()
	}
	endRecord := func() {
		endField()
		records = append(records, record)
		record = nil
	}

	for i := 0; i < len(text); i++ {
		c := text[i]
		if inQuotes {
			switch c {
			case '"':
				if i+1 < len(text) && text[i+1] == '"' {
					field.WriteByte('"')
					i++
					continue
				}
				inQuotes = false
			case '\r':
				if i+1 < len(text) && text[i+1] == '\n' {
					i++
				}
				field.WriteByte('\n')
				line++
			case '\n':
				field.WriteByte('\n')
				line++
			default:
				field.WriteByte(c)
			}
			continue
		}

		switch c {
		case '"':
			inQuotes = true
			quoteLine = line
		case delim:
			endField()
		case '\r':
			if i+1 < len(text) && text[i+1] == '\n' {
				i++
			}
			endRecord()
			line++
		case '\n':
			endRecord()
			line++
		default:
			field.WriteByte(c)
		}
	}

	if inQuotes {
		return nil, &DecodeError{Line: quoteLine, Reason: "unterminated quoted field"}
	}
	if field.Len() > 0 || len(record) > 0 {
		endRecord()
	}
	return records, nil
}

func dropTrailingBlank(records [][]string) [][]string {
	for len(records) > 0 && isBlank(records[len(records)-1]) {
		records = records[:len(records)-1]
	}
	return records
}

func isBlank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
