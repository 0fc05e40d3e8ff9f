// Package export renders canonical tables as CSV, XLSX and zip bundles.
// Column order follows the csv tags on the canonical structs, so every
// format of a dataset carries the same columns in the same order.
package export

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jszwec/csvutil"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	dbpkg "adsinsight/internal/db"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts csv or xlsx. Empty means csv.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatCSV, nil
	case FormatCSV, FormatXLSX:
		return f, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// File is a rendered export.
type File struct {
	Name        string
	ContentType string
	Body        []byte
}

const (
	contentTypeCSV  = "text/csv; charset=utf-8"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	contentTypeZIP  = "application/zip"
)

// Scope selects the rows of one client inside an optional date window.
type Scope struct {
	ClientID uuid.UUID
	Start    *dbpkg.Date
	End      *dbpkg.Date
}

// Dataset renders one dataset in the requested format.
func Dataset(ctx context.Context, db *gorm.DB, ds dbpkg.Dataset, scope Scope, format Format) (*File, error) {
	data, err := datasetCSV(ctx, db, ds, scope)
	if err != nil {
		return nil, err
	}
	if format == FormatXLSX {
		book, err := CSVToXLSX(data, string(ds))
		if err != nil {
			return nil, err
		}
		return &File{Name: string(ds) + ".xlsx", ContentType: contentTypeXLSX, Body: book}, nil
	}
	return &File{Name: string(ds) + ".csv", ContentType: contentTypeCSV, Body: data}, nil
}

// Bundle renders every dataset as CSV into export.zip, in the fixed
// dataset order.
func Bundle(ctx context.Context, db *gorm.DB, scope Scope) (*File, error) {
	files := make([]File, 0, len(dbpkg.Datasets))
	for _, ds := range dbpkg.Datasets {
		data, err := datasetCSV(ctx, db, ds, scope)
		if err != nil {
			return nil, err
		}
		files = append(files, File{Name: string(ds) + ".csv", Body: data})
	}
	body, err := Zip(files)
	if err != nil {
		return nil, err
	}
	return &File{Name: "export.zip", ContentType: contentTypeZIP, Body: body}, nil
}

func datasetCSV(ctx context.Context, db *gorm.DB, ds dbpkg.Dataset, scope Scope) ([]byte, error) {
	switch ds {
	case dbpkg.DatasetCampaigns:
		return loadCSV[dbpkg.Campaign](ctx, db, scope)
	case dbpkg.DatasetMetrics:
		return loadCSV[dbpkg.Metric](ctx, db, scope)
	case dbpkg.DatasetKeywords:
		return loadCSV[dbpkg.Keyword](ctx, db, scope)
	case dbpkg.DatasetAds:
		return loadCSV[dbpkg.Ad](ctx, db, scope)
	case dbpkg.DatasetAssets:
		return loadCSV[dbpkg.Asset](ctx, db, scope)
	case dbpkg.DatasetShopping:
		return loadCSV[dbpkg.ShoppingItem](ctx, db, scope)
	case dbpkg.DatasetSearchTermInsights:
		return loadCSV[dbpkg.SearchTermInsight](ctx, db, scope)
	case dbpkg.DatasetAudienceSignals:
		return loadCSV[dbpkg.AudienceSignal](ctx, db, scope)
	}
	return nil, fmt.Errorf("unknown dataset %q", ds)
}

func loadCSV[T dbpkg.Canonical](ctx context.Context, db *gorm.DB, scope Scope) ([]byte, error) {
	rows, err := dbpkg.LoadRows[T](ctx, db, scope.ClientID, scope.Start, scope.End)
	if err != nil {
		return nil, err
	}
	return EncodeCSV(rows)
}

// EncodeCSV writes the header and rows of a canonical slice. The header is
// written even when rows is empty.
func EncodeCSV[T any](rows []T) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	enc := csvutil.NewEncoder(w)

	var zero T
	if err := enc.EncodeHeader(zero); err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}
	if len(rows) > 0 {
		if err := enc.Encode(rows); err != nil {
			return nil, fmt.Errorf("encode rows: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CSVToXLSX copies CSV data into a single-sheet workbook. Counters and
// rates become numeric cells; identifier columns stay text.
func CSVToXLSX(data []byte, sheet string) ([]byte, error) {
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return nil, err
	}

	var headers []string
	if len(records) > 0 {
		headers = records[0]
	}
	for r, record := range records {
		values := make([]any, len(record))
		for c, v := range record {
			values[c] = cellValue(r, headers[c], v)
		}
		cell, err := excelize.CoordinatesToCellName(1, r+1)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func cellValue(row int, header, v string) any {
	if row == 0 || v == "" || strings.HasSuffix(header, "_id") {
		return v
	}
	if n, err := strconv.ParseFloat(v, 64); err == nil {
		return n
	}
	return v
}

// Zip packs files into one archive in the given order.
func Zip(files []File) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		w, err := zw.Create(f.Name)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(f.Body); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
