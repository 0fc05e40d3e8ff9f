package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/valyala/fasthttp"

	dbpkg "adsinsight/internal/db"
	httpctx "adsinsight/internal/http/ctx"
	"adsinsight/internal/ingest"
)

var clientA = uuid.MustParse("2c9a7d4e-1b3f-4e5a-9c8d-7f6e5d4c3b2a")

// memStore keeps canonical records by natural key.
type memStore struct {
	rows    int
	records map[string]dbpkg.Canonical
	failOn  dbpkg.Dataset
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]dbpkg.Canonical)}
}

func (s *memStore) CreateRawImport(context.Context, *dbpkg.RawImport) error { return nil }
func (s *memStore) UpdateRawImport(context.Context, *dbpkg.RawImport) error { return nil }
func (s *memStore) AppendActivity(context.Context, *dbpkg.ActivityLog) error {
	return nil
}

func (s *memStore) InsertRawRows(_ context.Context, rows []dbpkg.RawImportRow) error {
	s.rows += len(rows)
	return nil
}

func (s *memStore) Upsert(_ context.Context, ds dbpkg.Dataset, records []dbpkg.Canonical) error {
	if ds == s.failOn {
		return errors.New("connection reset")
	}
	for _, r := range records {
		s.records[r.NaturalKey()] = r
	}
	return nil
}

// recorder captures the request and delegates to an optional runner.
type recorder struct {
	req   ingest.Request
	calls int
	next  Ingester
}

func (r *recorder) Run(ctx context.Context, req ingest.Request) (*ingest.Result, error) {
	r.req = req
	r.calls++
	if r.next != nil {
		return r.next.Run(ctx, req)
	}
	return &ingest.Result{ImportID: uuid.New(), Status: dbpkg.ApplySuccess}, nil
}

func newCtx(method string, body []byte) *fasthttp.RequestCtx {
	var req fasthttp.Request
	req.Header.SetMethod(method)
	req.SetBody(body)
	ctx := &fasthttp.RequestCtx{}
	ctx.Init(&req, nil, nil)
	return ctx
}

type bulkResponse struct {
	OK            bool               `json:"ok"`
	Code          string             `json:"code"`
	Error         string             `json:"error"`
	ImportID      string             `json:"importId"`
	AppliedTables []string           `json:"appliedTables"`
	ApplySummary  dbpkg.ApplySummary `json:"applySummary"`
}

func decodeBody(t *testing.T, ctx *fasthttp.RequestCtx) bulkResponse {
	t.Helper()
	var out bulkResponse
	if err := json.Unmarshal(ctx.Response.Body(), &out); err != nil {
		t.Fatalf("response %q: %v", ctx.Response.Body(), err)
	}
	return out
}

func TestBulkIngestEndToEnd(t *testing.T) {
	store := newMemStore()
	rec := &recorder{next: ingest.NewCoordinator(store, 0, nil)}

	body := `{"clientId":"` + clientA.String() + `","start":"2025-01-01","end":"2025-01-31",
		"metricsRows":[{"campaign_id":1,"campaign_name":"Brand","impressions":1000,"clicks":"50",
		"cost":"100,00","conversions":5,"conversion_value":"500"}]}`
	ctx := newCtx(fasthttp.MethodPost, []byte(body))
	BulkIngest(rec)(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("status = %d body=%s", ctx.Response.StatusCode(), ctx.Response.Body())
	}
	out := decodeBody(t, ctx)
	if !out.OK || out.ImportID == "" {
		t.Fatalf("response = %+v", out)
	}
	want := dbpkg.DatasetCounters{Received: 1, Mapped: 1, Upserted: 1}
	if got := out.ApplySummary[dbpkg.DatasetMetrics]; got != want {
		t.Fatalf("metrics summary = %+v, want %+v", got, want)
	}
	if len(out.AppliedTables) != 1 || out.AppliedTables[0] != "campaign_metrics" {
		t.Fatalf("appliedTables = %v", out.AppliedTables)
	}

	if rec.req.Source != dbpkg.SourceScriptWebhook {
		t.Fatalf("source = %q", rec.req.Source)
	}
	if len(store.records) != 1 {
		t.Fatalf("records = %d", len(store.records))
	}
	for _, r := range store.records {
		m := r.(dbpkg.Metric)
		if m.CampaignID != "1" || m.Ctr != 0.05 || m.AvgCpc != 2 || m.ConversionRate != 0.1 || m.Cpa != 20 || m.Roas != 5 {
			t.Fatalf("metric = %+v", m)
		}
	}
}

func TestBulkIngestRejectsBadClientID(t *testing.T) {
	for _, body := range []string{
		`{"metricsRows":[{"campaign_id":"1"}]}`,
		`{"clientId":"not-a-uuid","metricsRows":[{"campaign_id":"1"}]}`,
	} {
		rec := &recorder{}
		ctx := newCtx(fasthttp.MethodPost, []byte(body))
		BulkIngest(rec)(ctx)

		if ctx.Response.StatusCode() != fasthttp.StatusBadRequest {
			t.Fatalf("%s: status = %d", body, ctx.Response.StatusCode())
		}
		if out := decodeBody(t, ctx); out.OK || out.Code != string(ingest.CodeClientIDRequired) {
			t.Fatalf("%s: response = %+v", body, out)
		}
		if rec.calls != 0 {
			t.Fatalf("%s: coordinator called", body)
		}
	}
}

func TestBulkIngestNoRows(t *testing.T) {
	rec := &recorder{next: ingest.NewCoordinator(newMemStore(), 0, nil)}
	ctx := newCtx(fasthttp.MethodPost, []byte(`{"clientId":"`+clientA.String()+`","metricsRows":[]}`))
	BulkIngest(rec)(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusBadRequest {
		t.Fatalf("status = %d", ctx.Response.StatusCode())
	}
	if out := decodeBody(t, ctx); out.Code != string(ingest.CodeNoRows) {
		t.Fatalf("code = %q", out.Code)
	}
}

func TestBulkIngestInvalidJSON(t *testing.T) {
	ctx := newCtx(fasthttp.MethodPost, []byte(`{"clientId":`))
	BulkIngest(&recorder{})(ctx)
	if ctx.Response.StatusCode() != fasthttp.StatusBadRequest {
		t.Fatalf("status = %d", ctx.Response.StatusCode())
	}
}

func TestBulkIngestPartialFailure(t *testing.T) {
	store := newMemStore()
	store.failOn = dbpkg.DatasetKeywords
	rec := &recorder{next: ingest.NewCoordinator(store, 0, nil)}

	body := `{"clientId":"` + clientA.String() + `","start":"2025-01-01","end":"2025-01-31",
		"metricsRows":[{"campaign_id":"1","campaign_name":"Brand","clicks":"3"}],
		"keywordsRows":[{"campaign_id":"1","campaign_name":"Brand","keyword":"shoes","clicks":"1"}]}`
	ctx := newCtx(fasthttp.MethodPost, []byte(body))
	BulkIngest(rec)(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusInternalServerError {
		t.Fatalf("status = %d", ctx.Response.StatusCode())
	}
	out := decodeBody(t, ctx)
	if out.OK || out.Code != string(ingest.CodeApplyFailed) {
		t.Fatalf("response = %+v", out)
	}
	if out.ApplySummary[dbpkg.DatasetMetrics].Upserted != 1 {
		t.Fatalf("metrics summary = %+v", out.ApplySummary[dbpkg.DatasetMetrics])
	}
	if len(out.AppliedTables) != 1 || out.AppliedTables[0] != "campaign_metrics" {
		t.Fatalf("appliedTables = %v", out.AppliedTables)
	}
}

func multipartCtx(t *testing.T, fileName, content string, fields map[string]string) *fasthttp.RequestCtx {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	fw, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	var req fasthttp.Request
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType(mw.FormDataContentType())
	req.SetBody(buf.Bytes())
	ctx := &fasthttp.RequestCtx{}
	ctx.Init(&req, nil, nil)
	httpctx.SetClient(ctx, &dbpkg.Client{ID: clientA, Name: "Acme"})
	return ctx
}

func TestUploadCSVAutoDetectsKeywords(t *testing.T) {
	rec := &recorder{}
	csv := "\ufeffCampanha;Palavra-chave;Cliques;Custo\nBrand;tênis;10;5,50\n"
	ctx := multipartCtx(t, "keywords.csv", csv, map[string]string{
		"start":      "01/01/2025",
		"end":        "2025-01-31",
		"campaignId": "42",
	})
	UploadCSV(rec)(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("status = %d body=%s", ctx.Response.StatusCode(), ctx.Response.Body())
	}
	req := rec.req
	if req.ClientID != clientA || req.Source != dbpkg.SourceCSV || req.FileName != "keywords.csv" {
		t.Fatalf("request = %+v", req)
	}
	if req.Delimiter != ";" || req.Encoding != ingest.EncodingUTF8 {
		t.Fatalf("decoded as %q/%q", req.Encoding, req.Delimiter)
	}
	if len(req.Sets) != 1 || req.Sets[0].Dataset != dbpkg.DatasetKeywords || len(req.Sets[0].Rows) != 1 {
		t.Fatalf("sets = %+v", req.Sets)
	}
	if req.Fallback.Start.String() != "2025-01-01" || req.Fallback.CampaignID != "42" {
		t.Fatalf("fallback = %+v", req.Fallback)
	}
}

func TestUploadCSVApplyNone(t *testing.T) {
	rec := &recorder{}
	ctx := multipartCtx(t, "report.csv", "campaign,clicks\nBrand,1\n", map[string]string{"applyTo": "none"})
	UploadCSV(rec)(ctx)

	if !rec.req.SkipApply || rec.req.Sets[0].Dataset != "" {
		t.Fatalf("request = %+v", rec.req)
	}
}

func TestUploadCSVErrors(t *testing.T) {
	rec := &recorder{}
	ctx := multipartCtx(t, "report.csv", "a,b\n1,2\n", map[string]string{"applyTo": "everything"})
	UploadCSV(rec)(ctx)
	if ctx.Response.StatusCode() != fasthttp.StatusBadRequest {
		t.Fatalf("bad applyTo status = %d", ctx.Response.StatusCode())
	}

	ctx = multipartCtx(t, "report.csv", "a,\"b\n1,2\n", nil)
	UploadCSV(rec)(ctx)
	if ctx.Response.StatusCode() != fasthttp.StatusBadRequest {
		t.Fatalf("decode failure status = %d", ctx.Response.StatusCode())
	}
	if out := decodeBody(t, ctx); out.Code != string(ingest.CodeDecodeFailed) {
		t.Fatalf("code = %q", out.Code)
	}
	if rec.calls != 0 {
		t.Fatal("coordinator called for a rejected upload")
	}
}

type fakePuller struct {
	start, end dbpkg.Date
}

func (f *fakePuller) Sync(_ context.Context, _ uuid.UUID, start, end dbpkg.Date) (*ingest.Result, error) {
	f.start, f.end = start, end
	return &ingest.Result{ImportID: uuid.New(), Status: dbpkg.ApplySuccess}, nil
}

func TestSyncClientWindow(t *testing.T) {
	p := &fakePuller{}
	ctx := newCtx(fasthttp.MethodPost, nil)
	ctx.QueryArgs().Set("end", "2025-03-10")
	httpctx.SetClient(ctx, &dbpkg.Client{ID: clientA})
	SyncClient(p)(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("status = %d body=%s", ctx.Response.StatusCode(), ctx.Response.Body())
	}
	if p.start.String() != "2025-03-04" || p.end.String() != "2025-03-10" {
		t.Fatalf("window = %s..%s", p.start, p.end)
	}

	ctx = newCtx(fasthttp.MethodPost, nil)
	ctx.QueryArgs().Set("start", "2025-03-11")
	ctx.QueryArgs().Set("end", "2025-03-10")
	httpctx.SetClient(ctx, &dbpkg.Client{ID: clientA})
	SyncClient(p)(ctx)
	if ctx.Response.StatusCode() != fasthttp.StatusBadRequest {
		t.Fatalf("inverted window status = %d", ctx.Response.StatusCode())
	}
}

func TestMetricsHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	coord := ingest.NewCoordinator(newMemStore(), 0, ingest.NewMetrics(reg))

	ctx := newCtx(fasthttp.MethodPost, []byte(`{"clientId":"`+clientA.String()+`","start":"2025-01-01","end":"2025-01-31",
		"metricsRows":[{"campaign_id":"1","campaign_name":"Brand"}]}`))
	BulkIngest(coord)(ctx)

	ctx = newCtx(fasthttp.MethodGet, nil)
	MetricsHandler(reg)(ctx)
	body := string(ctx.Response.Body())
	if !strings.Contains(body, `adsinsight_ingest_runs_total{source="script-webhook",status="success"} 1`) {
		t.Fatalf("exposition missing run counter:\n%s", body)
	}
	if !strings.Contains(body, `adsinsight_ingest_rows_total{dataset="metrics",outcome="upserted"} 1`) {
		t.Fatalf("exposition missing row counter:\n%s", body)
	}
}
