package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	dbpkg "adsinsight/internal/db"
)

// BulkPayload is the JSON body posted by the ads script webhook.
type BulkPayload struct {
	ClientID     string `json:"clientId"`
	Start        string `json:"start,omitempty"`
	End          string `json:"end,omitempty"`
	CampaignID   string `json:"campaignId,omitempty"`
	CampaignName string `json:"campaignName,omitempty"`
	Source       string `json:"source,omitempty"`
	ReportName   string `json:"reportName,omitempty"`

	CampaignsRows          []map[string]any `json:"campaignsRows,omitempty"`
	MetricsRows            []map[string]any `json:"metricsRows,omitempty"`
	KeywordsRows           []map[string]any `json:"keywordsRows,omitempty"`
	AdsRows                []map[string]any `json:"adsRows,omitempty"`
	AssetsRows             []map[string]any `json:"assetsRows,omitempty"`
	SearchTermInsightsRows []map[string]any `json:"searchTermInsightsRows,omitempty"`
	ShoppingRows           []map[string]any `json:"shoppingRows,omitempty"`
	AudienceSignalsRows    []map[string]any `json:"audienceSignalsRows,omitempty"`
}

// ParseBulkPayload decodes body keeping numbers as their literal text.
func ParseBulkPayload(body []byte) (*BulkPayload, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var p BulkPayload
	if err := dec.Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Request validates the payload and converts it into a coordinator request.
// Only CLIENT_ID_REQUIRED is detected here; an empty payload is left for
// the coordinator to reject as NO_ROWS.
func (p *BulkPayload) Request() (Request, error) {
	id := strings.TrimSpace(p.ClientID)
	if id == "" {
		return Request{}, newError(CodeClientIDRequired, "clientId is required", nil)
	}
	clientID, err := uuid.Parse(id)
	if err != nil || clientID == uuid.Nil {
		return Request{}, newError(CodeClientIDRequired, fmt.Sprintf("clientId %q is not a valid UUID", id), err)
	}

	fb := Fallback{
		CampaignID:   strings.TrimSpace(p.CampaignID),
		CampaignName: strings.TrimSpace(p.CampaignName),
	}
	if d, ok := ParseDate(p.Start); ok {
		fb.Start = &d
	}
	if d, ok := ParseDate(p.End); ok {
		fb.End = &d
	}

	source := dbpkg.SourceScriptWebhook
	if strings.TrimSpace(p.Source) == string(dbpkg.SourceAPIBulk) {
		source = dbpkg.SourceAPIBulk
	}

	req := Request{
		ClientID:   clientID,
		Source:     source,
		ReportName: p.ReportName,
		Fallback:   fb,
	}
	for _, set := range []struct {
		ds   dbpkg.Dataset
		rows []map[string]any
	}{
		{dbpkg.DatasetCampaigns, p.CampaignsRows},
		{dbpkg.DatasetMetrics, p.MetricsRows},
		{dbpkg.DatasetKeywords, p.KeywordsRows},
		{dbpkg.DatasetAds, p.AdsRows},
		{dbpkg.DatasetAssets, p.AssetsRows},
		{dbpkg.DatasetSearchTermInsights, p.SearchTermInsightsRows},
		{dbpkg.DatasetShopping, p.ShoppingRows},
		{dbpkg.DatasetAudienceSignals, p.AudienceSignalsRows},
	} {
		if len(set.rows) == 0 {
			continue
		}
		req.Sets = append(req.Sets, RowSet{Dataset: set.ds, Rows: stringifyRows(set.rows)})
	}
	return req, nil
}

func stringifyRows(rows []map[string]any) []map[string]string {
	out := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		m := make(map[string]string, len(row))
		for k, v := range row {
			m[k] = stringify(v)
		}
		out = append(out, m)
	}
	return out
}

// stringify renders a JSON scalar the way it would appear in a CSV cell.
// Nested values are kept as compact JSON.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
