package googleads

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"adsinsight/internal/config"
	dbpkg "adsinsight/internal/db"
	"adsinsight/internal/ingest"
)

var clientA = uuid.MustParse("0b7f3c1e-9a4d-4f52-8e61-3c2b1a0f9e8d")

func TestConnectionCacheTTL(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewConnectionCache(10 * time.Minute)
	c.now = func() time.Time { return now }

	c.Put(Connection{ClientID: clientA, CustomerID: "123"})
	if conn, ok := c.Get(clientA); !ok || conn.CustomerID != "123" {
		t.Fatalf("Get = %+v, %v", conn, ok)
	}

	now = now.Add(10 * time.Minute)
	if _, ok := c.Get(clientA); ok {
		t.Fatal("entry should expire at the TTL")
	}
	if c.Len() != 0 {
		t.Fatal("expired entry should be evicted")
	}
}

func TestConnectionCacheInvalidateAndClear(t *testing.T) {
	c := NewConnectionCache(time.Hour)
	other := uuid.New()
	c.Put(Connection{ClientID: clientA, CustomerID: "1"})
	c.Put(Connection{ClientID: other, CustomerID: "2"})

	c.Invalidate(clientA)
	if _, ok := c.Get(clientA); ok {
		t.Fatal("invalidated entry still cached")
	}
	if _, ok := c.Get(other); !ok {
		t.Fatal("unrelated entry dropped")
	}

	c.Clear()
	if c.Len() != 0 {
		t.Fatalf("Len after Clear = %d", c.Len())
	}
}

func TestConnectionCacheDisabled(t *testing.T) {
	c := NewConnectionCache(0)
	c.Put(Connection{ClientID: clientA})
	if _, ok := c.Get(clientA); ok {
		t.Fatal("zero TTL should not cache")
	}
}

func decodeResults(t *testing.T, body string) []SearchResult {
	t.Helper()
	var page searchResponse
	if err := json.Unmarshal([]byte(body), &page); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return page.Results
}

func TestMetricRows(t *testing.T) {
	results := decodeResults(t, `{"results":[{
		"campaign":{"id":"987","name":"Brand"},
		"segments":{"date":"2025-01-02"},
		"metrics":{"impressions":"1000","clicks":"50","costMicros":"12345678",
			"conversions":2.5,"conversionsValue":300,"searchImpressionShare":0.455}
	}]}`)

	rows := MetricRows(results)
	if len(rows) != 1 {
		t.Fatalf("rows = %d", len(rows))
	}
	want := map[string]string{
		"campaign_id":             "987",
		"campaign_name":           "Brand",
		"date":                    "2025-01-02",
		"impressions":             "1000",
		"clicks":                  "50",
		"cost":                    "12.345678",
		"conversions":             "2.5",
		"conversion_value":        "300",
		"search_impression_share": "0.455",
	}
	for k, v := range want {
		if rows[0][k] != v {
			t.Errorf("%s = %q, want %q", k, rows[0][k], v)
		}
	}

	res := ingest.MapRow(dbpkg.DatasetMetrics, rows[0], ingest.MapContext{ClientID: clientA})
	if !res.OK() {
		t.Fatalf("pulled row rejected: %v", res.Missing)
	}
	m := res.Record.(dbpkg.Metric)
	if m.Cost != 12.345678 || m.Clicks != 50 || m.DateRangeStart.String() != "2025-01-02" {
		t.Fatalf("metric = %+v", m)
	}
	if m.SearchImpressionShare == nil || *m.SearchImpressionShare != 0.455 {
		t.Fatalf("share = %v", m.SearchImpressionShare)
	}
}

func TestCampaignRows(t *testing.T) {
	results := decodeResults(t, `{"results":[
		{"campaign":{"id":"1","name":"Brand","status":"ENABLED","advertisingChannelType":"SEARCH"},
		 "campaignBudget":{"amountMicros":"50000000"}},
		{"campaign":{"id":"2","name":"Display","status":"PAUSED","advertisingChannelType":"DISPLAY"}}
	]}`)

	rows := CampaignRows(results)
	if rows[0]["budget_amount"] != "50" || rows[0]["status"] != "ENABLED" {
		t.Fatalf("row 0 = %v", rows[0])
	}
	if _, ok := rows[1]["budget_amount"]; ok {
		t.Fatalf("row 1 should have no budget: %v", rows[1])
	}
}

type fakeSearcher struct {
	calls   []string
	results map[string][]SearchResult
	err     error
}

func (f *fakeSearcher) Search(_ context.Context, conn Connection, query string) ([]SearchResult, error) {
	f.calls = append(f.calls, conn.CustomerID)
	if f.err != nil {
		return nil, f.err
	}
	if query == campaignQuery {
		return f.results["campaigns"], nil
	}
	return f.results["metrics"], nil
}

type fakeRunner struct {
	req ingest.Request
}

func (f *fakeRunner) Run(_ context.Context, req ingest.Request) (*ingest.Result, error) {
	f.req = req
	return &ingest.Result{Status: dbpkg.ApplySuccess}, nil
}

func TestSyncerUsesCacheAndCoordinator(t *testing.T) {
	lookups := 0
	lookup := func(_ context.Context, id uuid.UUID) (*dbpkg.Client, error) {
		lookups++
		return &dbpkg.Client{ID: id, GoogleAdsCustomerID: "123-456-7890"}, nil
	}
	api := &fakeSearcher{results: map[string][]SearchResult{
		"campaigns": decodeResults(t, `{"results":[{"campaign":{"id":"1","name":"Brand"}}]}`),
		"metrics":   decodeResults(t, `{"results":[{"campaign":{"id":"1","name":"Brand"},"segments":{"date":"2025-01-01"},"metrics":{"clicks":"3"}}]}`),
	}}
	runner := &fakeRunner{}
	s := NewSyncer(api, NewConnectionCache(time.Hour), lookup, runner, "111")

	start, end := dbpkg.NewDate(2025, 1, 1), dbpkg.NewDate(2025, 1, 31)
	for i := 0; i < 2; i++ {
		if _, err := s.Sync(context.Background(), clientA, start, end); err != nil {
			t.Fatalf("Sync: %v", err)
		}
	}
	if lookups != 1 {
		t.Fatalf("client looked up %d times, want 1", lookups)
	}

	req := runner.req
	if req.Source != dbpkg.SourceAPIBulk || req.ClientID != clientA {
		t.Fatalf("request = %+v", req)
	}
	if len(req.Sets) != 2 || req.Sets[0].Dataset != dbpkg.DatasetCampaigns || req.Sets[1].Dataset != dbpkg.DatasetMetrics {
		t.Fatalf("sets = %+v", req.Sets)
	}
	if req.Fallback.Start.String() != "2025-01-01" || req.Fallback.End.String() != "2025-01-31" {
		t.Fatalf("fallback = %+v", req.Fallback)
	}
}

func TestSyncerInvalidatesStaleConnection(t *testing.T) {
	cache := NewConnectionCache(time.Hour)
	lookup := func(_ context.Context, id uuid.UUID) (*dbpkg.Client, error) {
		return &dbpkg.Client{ID: id, GoogleAdsCustomerID: "1234567890"}, nil
	}
	api := &fakeSearcher{err: &APIError{StatusCode: fasthttp.StatusForbidden, Message: "PERMISSION_DENIED"}}
	s := NewSyncer(api, cache, lookup, &fakeRunner{}, "")

	_, err := s.Sync(context.Background(), clientA, dbpkg.NewDate(2025, 1, 1), dbpkg.NewDate(2025, 1, 1))
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v", err)
	}
	if _, ok := cache.Get(clientA); ok {
		t.Fatal("stale connection kept in cache")
	}
}

func TestClientSearchPaging(t *testing.T) {
	ln := fasthttputil.NewInmemoryListener()
	defer ln.Close()

	var seen []string
	go func() {
		_ = fasthttp.Serve(ln, func(ctx *fasthttp.RequestCtx) {
			seen = append(seen, string(ctx.Path()))
			if string(ctx.Request.Header.Peek("developer-token")) != "dev" ||
				string(ctx.Request.Header.Peek("login-customer-id")) != "1112223333" ||
				string(ctx.Request.Header.Peek("Authorization")) != "Bearer tok" {
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				ctx.SetBodyString(`{"error":{"code":401,"message":"bad credentials","status":"UNAUTHENTICATED"}}`)
				return
			}
			var body searchRequest
			_ = json.Unmarshal(ctx.PostBody(), &body)
			ctx.SetContentType("application/json")
			if body.PageToken == "" {
				ctx.SetBodyString(`{"results":[{"campaign":{"id":"1"}}],"nextPageToken":"p2"}`)
				return
			}
			ctx.SetBodyString(`{"results":[{"campaign":{"id":"2"}}]}`)
		})
	}()

	c := NewClient(config.GoogleAdsConfig{
		DeveloperToken: "dev",
		AccessToken:    "tok",
		APIBaseURL:     "http://ads.test/",
		APIVersion:     "v17",
	})
	c.http.Dial = func(string) (net.Conn, error) { return ln.Dial() }

	results, err := c.Search(context.Background(), Connection{CustomerID: "123-456-7890", LoginCustomerID: "111-222-3333"}, "SELECT campaign.id FROM campaign")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 || results[1].Campaign.ID.String() != "2" {
		t.Fatalf("results = %+v", results)
	}
	if len(seen) != 2 || seen[0] != "/v17/customers/1234567890/googleAds:search" {
		t.Fatalf("paths = %v", seen)
	}

	c.accessToken = "wrong"
	_, err = c.Search(context.Background(), Connection{CustomerID: "1234567890", LoginCustomerID: "1112223333"}, "SELECT campaign.id FROM campaign")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 401 || apiErr.Message != "bad credentials" || !apiErr.Stale() {
		t.Fatalf("err = %#v", err)
	}
}

func TestClientRequiresCredentials(t *testing.T) {
	c := NewClient(config.GoogleAdsConfig{})
	if _, err := c.Search(context.Background(), Connection{CustomerID: "1"}, "q"); err == nil {
		t.Fatal("expected error without credentials")
	}
}
