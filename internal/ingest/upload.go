package ingest

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	dbpkg "adsinsight/internal/db"
)

// ApplyTo selects the dataset a file upload is reconciled into.
type ApplyTo string

const (
	ApplyAuto     ApplyTo = "auto"
	ApplyMetrics  ApplyTo = "metrics"
	ApplyKeywords ApplyTo = "keywords"
	ApplyNone     ApplyTo = "none"
)

// ParseApplyTo accepts auto, metrics, keywords or none. Empty means auto.
func ParseApplyTo(s string) (ApplyTo, error) {
	switch a := ApplyTo(strings.ToLower(strings.TrimSpace(s))); a {
	case "":
		return ApplyAuto, nil
	case ApplyAuto, ApplyMetrics, ApplyKeywords, ApplyNone:
		return a, nil
	}
	return "", fmt.Errorf("invalid applyTo %q (want auto, metrics, keywords or none)", s)
}

// Dataset resolves the mode against the uploaded headers. It returns ""
// for none.
func (a ApplyTo) Dataset(headers []string) dbpkg.Dataset {
	switch a {
	case ApplyNone:
		return ""
	case ApplyMetrics:
		return dbpkg.DatasetMetrics
	case ApplyKeywords:
		return dbpkg.DatasetKeywords
	}
	if LooksLikeKeywordReport(headers) {
		return dbpkg.DatasetKeywords
	}
	return dbpkg.DatasetMetrics
}

// Upload describes a file import, from the CLI or the multipart endpoint.
type Upload struct {
	ClientID   uuid.UUID
	FileName   string
	ReportName string
	ApplyTo    ApplyTo
	Fallback   Fallback
}

// DecodeFile picks the xlsx or delimited-text decoder for the file and
// converts a decode failure into a DECODE_FAILED error.
func DecodeFile(name string, data []byte) (*Table, error) {
	var (
		t   *Table
		err error
	)
	if IsXLSX(name, data) {
		t, err = DecodeXLSX(data)
	} else {
		t, err = Decode(data)
	}
	if err != nil {
		return nil, newError(CodeDecodeFailed, "could not decode "+displayName(name), err)
	}
	return t, nil
}

// Request builds the coordinator request for a decoded table.
func (u Upload) Request(t *Table) Request {
	dataset := u.ApplyTo.Dataset(t.Headers)
	report := u.ReportName
	if report == "" {
		report = u.FileName
	}
	return Request{
		ClientID:   u.ClientID,
		Source:     dbpkg.SourceCSV,
		FileName:   u.FileName,
		ReportName: report,
		Encoding:   t.Encoding,
		Delimiter:  t.Delimiter,
		Headers:    t.Headers,
		Fallback:   u.Fallback,
		Sets:       []RowSet{{Dataset: dataset, Rows: t.Records()}},
		SkipApply:  dataset == "",
	}
}

func displayName(name string) string {
	if name == "" {
		return "upload"
	}
	return name
}
