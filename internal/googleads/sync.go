package googleads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dbpkg "adsinsight/internal/db"
	"adsinsight/internal/ingest"
)

const (
	campaignQuery = `SELECT campaign.id, campaign.name, campaign.status, campaign.advertising_channel_type,
  campaign_budget.amount_micros
FROM campaign
WHERE campaign.status != 'REMOVED'`

	metricsQuery = `SELECT campaign.id, campaign.name, segments.date,
  metrics.impressions, metrics.clicks, metrics.cost_micros,
  metrics.conversions, metrics.conversions_value, metrics.search_impression_share
FROM campaign
WHERE segments.date BETWEEN '%s' AND '%s'`
)

// Searcher runs a GAQL query for one connection. *Client implements it.
type Searcher interface {
	Search(ctx context.Context, conn Connection, query string) ([]SearchResult, error)
}

// Runner runs an ingest request. *ingest.Coordinator implements it.
type Runner interface {
	Run(ctx context.Context, req ingest.Request) (*ingest.Result, error)
}

// ClientLookup loads the client record a connection is built from.
type ClientLookup func(ctx context.Context, clientID uuid.UUID) (*dbpkg.Client, error)

// Syncer pulls campaign and daily metric rows for a client and feeds them
// through the ingest coordinator.
type Syncer struct {
	api             Searcher
	cache           *ConnectionCache
	lookup          ClientLookup
	runner          Runner
	loginCustomerID string
}

func NewSyncer(api Searcher, cache *ConnectionCache, lookup ClientLookup, runner Runner, loginCustomerID string) *Syncer {
	return &Syncer{api: api, cache: cache, lookup: lookup, runner: runner, loginCustomerID: loginCustomerID}
}

// Connection resolves a client's connection, from the cache when possible.
func (s *Syncer) Connection(ctx context.Context, clientID uuid.UUID) (Connection, error) {
	if conn, ok := s.cache.Get(clientID); ok {
		return conn, nil
	}
	client, err := s.lookup(ctx, clientID)
	if err != nil {
		return Connection{}, err
	}
	if client.GoogleAdsCustomerID == "" {
		return Connection{}, fmt.Errorf("client %s has no google ads customer id", clientID)
	}
	conn := Connection{
		ClientID:        clientID,
		CustomerID:      client.GoogleAdsCustomerID,
		LoginCustomerID: s.loginCustomerID,
	}
	s.cache.Put(conn)
	return conn, nil
}

// Sync pulls [start, end] for the client.
func (s *Syncer) Sync(ctx context.Context, clientID uuid.UUID, start, end dbpkg.Date) (*ingest.Result, error) {
	conn, err := s.Connection(ctx, clientID)
	if err != nil {
		return nil, err
	}

	campaigns, err := s.search(ctx, conn, campaignQuery)
	if err != nil {
		return nil, err
	}
	metrics, err := s.search(ctx, conn, fmt.Sprintf(metricsQuery, start, end))
	if err != nil {
		return nil, err
	}
	log.Printf("google ads pull client=%s customer=%s campaigns=%d metric rows=%d",
		clientID, conn.CustomerID, len(campaigns), len(metrics))

	return s.runner.Run(ctx, ingest.Request{
		ClientID:   clientID,
		Source:     dbpkg.SourceAPIBulk,
		ReportName: "google-ads-api",
		Fallback:   ingest.Fallback{Start: &start, End: &end},
		Sets: []ingest.RowSet{
			{Dataset: dbpkg.DatasetCampaigns, Rows: CampaignRows(campaigns)},
			{Dataset: dbpkg.DatasetMetrics, Rows: MetricRows(metrics)},
		},
	})
}

func (s *Syncer) search(ctx context.Context, conn Connection, query string) ([]SearchResult, error) {
	results, err := s.api.Search(ctx, conn, query)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Stale() {
		s.cache.Invalidate(conn.ClientID)
	}
	return results, err
}

// CampaignRows converts campaign results into raw campaign rows.
func CampaignRows(results []SearchResult) []map[string]string {
	rows := make([]map[string]string, 0, len(results))
	for _, r := range results {
		row := map[string]string{
			"campaign_id":   r.Campaign.ID.String(),
			"campaign_name": r.Campaign.Name,
			"status":        r.Campaign.Status,
			"channel_type":  r.Campaign.AdvertisingChannelType,
		}
		if v, ok := fromMicros(r.CampaignBudget.AmountMicros); ok {
			row["budget_amount"] = v
		}
		rows = append(rows, row)
	}
	return rows
}

// MetricRows converts daily campaign results into raw metric rows. Cost is
// reported in micros and converted to currency units.
func MetricRows(results []SearchResult) []map[string]string {
	rows := make([]map[string]string, 0, len(results))
	for _, r := range results {
		row := map[string]string{
			"campaign_id":      r.Campaign.ID.String(),
			"campaign_name":    r.Campaign.Name,
			"date":             r.Segments.Date,
			"impressions":      r.Metrics.Impressions.String(),
			"clicks":           r.Metrics.Clicks.String(),
			"conversions":      r.Metrics.Conversions.String(),
			"conversion_value": r.Metrics.ConversionsValue.String(),
		}
		if v, ok := fromMicros(r.Metrics.CostMicros); ok {
			row["cost"] = v
		}
		if share := r.Metrics.SearchImpressionShare.String(); share != "" {
			row["search_impression_share"] = share
		}
		rows = append(rows, row)
	}
	return rows
}

var micros = decimal.NewFromInt(1_000_000)

func fromMicros(n json.Number) (string, bool) {
	if n == "" {
		return "", false
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return "", false
	}
	f, _ := d.Div(micros).Float64()
	return strconv.FormatFloat(f, 'f', -1, 64), true
}
