package db

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Dataset tags one canonical table. The set is closed; callers select a
// dataset explicitly rather than inferring it from row shape.
type Dataset string

const (
	DatasetCampaigns          Dataset = "campaigns"
	DatasetMetrics            Dataset = "metrics"
	DatasetKeywords           Dataset = "keywords"
	DatasetAds                Dataset = "ads"
	DatasetAssets             Dataset = "assets"
	DatasetShopping           Dataset = "shopping"
	DatasetSearchTermInsights Dataset = "search_term_insights"
	DatasetAudienceSignals    Dataset = "audience_signals"
)

// Datasets lists every dataset in the fixed order used for reconciliation
// and exports. Campaigns come first so dimension rows land before facts.
var Datasets = []Dataset{
	DatasetCampaigns,
	DatasetMetrics,
	DatasetKeywords,
	DatasetAds,
	DatasetAssets,
	DatasetShopping,
	DatasetSearchTermInsights,
	DatasetAudienceSignals,
}

var datasetTables = map[Dataset]string{
	DatasetCampaigns:          "campaigns",
	DatasetMetrics:            "campaign_metrics",
	DatasetKeywords:           "keyword_metrics",
	DatasetAds:                "ad_metrics",
	DatasetAssets:             "asset_metrics",
	DatasetShopping:           "shopping_metrics",
	DatasetSearchTermInsights: "search_term_insights",
	DatasetAudienceSignals:    "audience_signals",
}

// conflictColumns is the natural key of each table, used as the ON CONFLICT
// target. Each list matches a unique index declared on the model and in
// migrations/0003_canonical_tables.up.sql.
var conflictColumns = map[Dataset][]string{
	DatasetCampaigns:          {"client_id", "campaign_id"},
	DatasetMetrics:            {"client_id", "campaign_id", "date_range_start", "date_range_end"},
	DatasetKeywords:           {"client_id", "campaign_id", "ad_group_name", "keyword_text", "match_type", "date_range_start", "date_range_end"},
	DatasetAds:                {"client_id", "campaign_id", "ad_id", "date_range_start", "date_range_end"},
	DatasetAssets:             {"client_id", "campaign_id", "asset_id", "field_type", "date_range_start", "date_range_end"},
	DatasetShopping:           {"client_id", "campaign_id", "item_id", "date_range_start", "date_range_end"},
	DatasetSearchTermInsights: {"client_id", "campaign_id", "category_label", "date_range_start", "date_range_end"},
	DatasetAudienceSignals:    {"client_id", "campaign_id", "audience_name", "date_range_start", "date_range_end"},
}

// ParseDataset accepts a dataset tag, case-insensitively.
func ParseDataset(s string) (Dataset, bool) {
	ds := Dataset(strings.ToLower(strings.TrimSpace(s)))
	_, ok := datasetTables[ds]
	return ds, ok
}

// Table returns the storage table backing the dataset.
func (d Dataset) Table() string { return datasetTables[d] }

// ConflictColumns returns the natural key columns of the dataset.
func (d Dataset) ConflictColumns() []string { return conflictColumns[d] }

// Canonical is implemented by every typed, schema-conformant record.
type Canonical interface {
	Dataset() Dataset
	// NaturalKey identifies the record within its dataset; two records with
	// the same key are the same business row.
	NaturalKey() string
}

func naturalKey(parts ...string) string {
	return strings.Join(parts, "\x1f")
}

// DateLayout is the canonical wire and export format for dates.
const DateLayout = "2006-01-02"

// Date is a calendar date stored in a postgres date column and rendered as
// YYYY-MM-DD in JSON and CSV.
type Date time.Time

// NewDate builds a UTC calendar date.
func NewDate(year int, month time.Month, day int) Date {
	return Date(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return Date(t), nil
}

func (d Date) Time() time.Time { return time.Time(d) }

func (d Date) IsZero() bool { return time.Time(d).IsZero() }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return time.Time(d).Format(DateLayout)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return time.Time(d), nil
}

func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = Date{}
	case time.Time:
		*d = NewDate(v.Year(), v.Month(), v.Day())
	case string:
		return d.UnmarshalText([]byte(v))
	case []byte:
		return d.UnmarshalText(v)
	default:
		return fmt.Errorf("cannot scan %T into Date", src)
	}
	return nil
}

func (Date) GormDataType() string { return "date" }

// Performance is the shared block of counters and derived rates carried by
// every fact table. Rates are fractions, never percentages.
type Performance struct {
	Impressions     int64   `gorm:"not null;default:0" csv:"impressions" json:"impressions"`
	Clicks          int64   `gorm:"not null;default:0" csv:"clicks" json:"clicks"`
	Cost            float64 `gorm:"not null;default:0" csv:"cost" json:"cost"`
	Conversions     float64 `gorm:"not null;default:0" csv:"conversions" json:"conversions"`
	ConversionValue float64 `gorm:"not null;default:0" csv:"conversion_value" json:"conversion_value"`
	Ctr             float64 `gorm:"not null;default:0" csv:"ctr" json:"ctr"`
	AvgCpc          float64 `gorm:"not null;default:0" csv:"avg_cpc" json:"avg_cpc"`
	ConversionRate  float64 `gorm:"not null;default:0" csv:"conversion_rate" json:"conversion_rate"`
	Cpa             float64 `gorm:"not null;default:0" csv:"cpa" json:"cpa"`
	Roas            float64 `gorm:"not null;default:0" csv:"roas" json:"roas"`
}

// Campaign is the campaign dimension. Export columns:
// client_id, campaign_id, campaign_name, status, channel_type, budget_amount.
type Campaign struct {
	ID           uint      `gorm:"primaryKey" csv:"-" json:"-"`
	ClientID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_campaigns_key,priority:1" csv:"client_id" json:"client_id"`
	CampaignID   string    `gorm:"not null;uniqueIndex:uq_campaigns_key,priority:2" csv:"campaign_id" json:"campaign_id"`
	CampaignName string    `gorm:"not null" csv:"campaign_name" json:"campaign_name"`
	Status       string    `csv:"status" json:"status"`
	ChannelType  string    `csv:"channel_type" json:"channel_type"`
	BudgetAmount *float64  `csv:"budget_amount" json:"budget_amount"`
	CreatedAt    time.Time `csv:"-" json:"-"`
	UpdatedAt    time.Time `csv:"-" json:"updated_at"`
}

func (Campaign) TableName() string { return "campaigns" }
func (Campaign) Dataset() Dataset  { return DatasetCampaigns }
func (c Campaign) NaturalKey() string {
	return naturalKey(c.ClientID.String(), c.CampaignID)
}

// Metric is campaign performance over a date range. Export columns:
// client_id, campaign_id, date_range_start, date_range_end, campaign_name,
// impressions, clicks, cost, conversions, conversion_value, ctr, avg_cpc,
// conversion_rate, cpa, roas, search_impression_share.
type Metric struct {
	ID             uint      `gorm:"primaryKey" csv:"-" json:"-"`
	ClientID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_campaign_metrics_key,priority:1" csv:"client_id" json:"client_id"`
	CampaignID     string    `gorm:"not null;uniqueIndex:uq_campaign_metrics_key,priority:2" csv:"campaign_id" json:"campaign_id"`
	DateRangeStart Date      `gorm:"not null;uniqueIndex:uq_campaign_metrics_key,priority:3" csv:"date_range_start" json:"date_range_start"`
	DateRangeEnd   Date      `gorm:"not null;uniqueIndex:uq_campaign_metrics_key,priority:4" csv:"date_range_end" json:"date_range_end"`
	CampaignName   string    `gorm:"not null" csv:"campaign_name" json:"campaign_name"`
	Performance
	SearchImpressionShare *float64  `csv:"search_impression_share" json:"search_impression_share"`
	CreatedAt             time.Time `csv:"-" json:"-"`
	UpdatedAt             time.Time `csv:"-" json:"updated_at"`
}

func (Metric) TableName() string { return "campaign_metrics" }
func (Metric) Dataset() Dataset  { return DatasetMetrics }
func (m Metric) NaturalKey() string {
	return naturalKey(m.ClientID.String(), m.CampaignID, m.DateRangeStart.String(), m.DateRangeEnd.String())
}

// Keyword is keyword performance. Export columns:
// client_id, campaign_id, ad_group_name, keyword_text, match_type,
// date_range_start, date_range_end, campaign_name, quality_score, then the
// performance block.
type Keyword struct {
	ID             uint      `gorm:"primaryKey" csv:"-" json:"-"`
	ClientID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_keyword_metrics_key,priority:1" csv:"client_id" json:"client_id"`
	CampaignID     string    `gorm:"not null;uniqueIndex:uq_keyword_metrics_key,priority:2" csv:"campaign_id" json:"campaign_id"`
	AdGroupName    string    `gorm:"not null;default:'';uniqueIndex:uq_keyword_metrics_key,priority:3" csv:"ad_group_name" json:"ad_group_name"`
	KeywordText    string    `gorm:"not null;uniqueIndex:uq_keyword_metrics_key,priority:4" csv:"keyword_text" json:"keyword_text"`
	MatchType      string    `gorm:"not null;default:'';uniqueIndex:uq_keyword_metrics_key,priority:5" csv:"match_type" json:"match_type"`
	DateRangeStart Date      `gorm:"not null;uniqueIndex:uq_keyword_metrics_key,priority:6" csv:"date_range_start" json:"date_range_start"`
	DateRangeEnd   Date      `gorm:"not null;uniqueIndex:uq_keyword_metrics_key,priority:7" csv:"date_range_end" json:"date_range_end"`
	CampaignName   string    `gorm:"not null" csv:"campaign_name" json:"campaign_name"`
	QualityScore   *int64    `csv:"quality_score" json:"quality_score"`
	Performance
	CreatedAt time.Time `csv:"-" json:"-"`
	UpdatedAt time.Time `csv:"-" json:"updated_at"`
}

func (Keyword) TableName() string { return "keyword_metrics" }
func (Keyword) Dataset() Dataset  { return DatasetKeywords }
func (k Keyword) NaturalKey() string {
	return naturalKey(k.ClientID.String(), k.CampaignID, k.AdGroupName, k.KeywordText, k.MatchType,
		k.DateRangeStart.String(), k.DateRangeEnd.String())
}

// Ad is ad-level performance. Export columns:
// client_id, campaign_id, ad_id, date_range_start, date_range_end,
// campaign_name, ad_group_name, ad_type, headline, final_url, then the
// performance block.
type Ad struct {
	ID             uint      `gorm:"primaryKey" csv:"-" json:"-"`
	ClientID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_ad_metrics_key,priority:1" csv:"client_id" json:"client_id"`
	CampaignID     string    `gorm:"not null;uniqueIndex:uq_ad_metrics_key,priority:2" csv:"campaign_id" json:"campaign_id"`
	AdID           string    `gorm:"not null;uniqueIndex:uq_ad_metrics_key,priority:3" csv:"ad_id" json:"ad_id"`
	DateRangeStart Date      `gorm:"not null;uniqueIndex:uq_ad_metrics_key,priority:4" csv:"date_range_start" json:"date_range_start"`
	DateRangeEnd   Date      `gorm:"not null;uniqueIndex:uq_ad_metrics_key,priority:5" csv:"date_range_end" json:"date_range_end"`
	CampaignName   string    `gorm:"not null" csv:"campaign_name" json:"campaign_name"`
	AdGroupName    string    `csv:"ad_group_name" json:"ad_group_name"`
	AdType         string    `csv:"ad_type" json:"ad_type"`
	Headline       string    `csv:"headline" json:"headline"`
	FinalURL       string    `gorm:"column:final_url" csv:"final_url" json:"final_url"`
	Performance
	CreatedAt time.Time `csv:"-" json:"-"`
	UpdatedAt time.Time `csv:"-" json:"updated_at"`
}

func (Ad) TableName() string { return "ad_metrics" }
func (Ad) Dataset() Dataset  { return DatasetAds }
func (a Ad) NaturalKey() string {
	return naturalKey(a.ClientID.String(), a.CampaignID, a.AdID, a.DateRangeStart.String(), a.DateRangeEnd.String())
}

// Asset is asset-level performance. Export columns:
// client_id, campaign_id, asset_id, field_type, date_range_start,
// date_range_end, campaign_name, asset_type, asset_text, performance_label,
// then the performance block.
type Asset struct {
	ID               uint      `gorm:"primaryKey" csv:"-" json:"-"`
	ClientID         uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_asset_metrics_key,priority:1" csv:"client_id" json:"client_id"`
	CampaignID       string    `gorm:"not null;uniqueIndex:uq_asset_metrics_key,priority:2" csv:"campaign_id" json:"campaign_id"`
	AssetID          string    `gorm:"not null;uniqueIndex:uq_asset_metrics_key,priority:3" csv:"asset_id" json:"asset_id"`
	FieldType        string    `gorm:"not null;default:'';uniqueIndex:uq_asset_metrics_key,priority:4" csv:"field_type" json:"field_type"`
	DateRangeStart   Date      `gorm:"not null;uniqueIndex:uq_asset_metrics_key,priority:5" csv:"date_range_start" json:"date_range_start"`
	DateRangeEnd     Date      `gorm:"not null;uniqueIndex:uq_asset_metrics_key,priority:6" csv:"date_range_end" json:"date_range_end"`
	CampaignName     string    `gorm:"not null" csv:"campaign_name" json:"campaign_name"`
	AssetType        string    `csv:"asset_type" json:"asset_type"`
	AssetText        string    `csv:"asset_text" json:"asset_text"`
	PerformanceLabel string    `csv:"performance_label" json:"performance_label"`
	Performance
	CreatedAt time.Time `csv:"-" json:"-"`
	UpdatedAt time.Time `csv:"-" json:"updated_at"`
}

func (Asset) TableName() string { return "asset_metrics" }
func (Asset) Dataset() Dataset  { return DatasetAssets }
func (a Asset) NaturalKey() string {
	return naturalKey(a.ClientID.String(), a.CampaignID, a.AssetID, a.FieldType, a.DateRangeStart.String(), a.DateRangeEnd.String())
}

// ShoppingItem is product-level performance. Export columns:
// client_id, campaign_id, item_id, date_range_start, date_range_end,
// campaign_name, product_title, brand, then the performance block.
type ShoppingItem struct {
	ID             uint      `gorm:"primaryKey" csv:"-" json:"-"`
	ClientID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_shopping_metrics_key,priority:1" csv:"client_id" json:"client_id"`
	CampaignID     string    `gorm:"not null;uniqueIndex:uq_shopping_metrics_key,priority:2" csv:"campaign_id" json:"campaign_id"`
	ItemID         string    `gorm:"not null;uniqueIndex:uq_shopping_metrics_key,priority:3" csv:"item_id" json:"item_id"`
	DateRangeStart Date      `gorm:"not null;uniqueIndex:uq_shopping_metrics_key,priority:4" csv:"date_range_start" json:"date_range_start"`
	DateRangeEnd   Date      `gorm:"not null;uniqueIndex:uq_shopping_metrics_key,priority:5" csv:"date_range_end" json:"date_range_end"`
	CampaignName   string    `gorm:"not null" csv:"campaign_name" json:"campaign_name"`
	ProductTitle   string    `csv:"product_title" json:"product_title"`
	Brand          string    `csv:"brand" json:"brand"`
	Performance
	CreatedAt time.Time `csv:"-" json:"-"`
	UpdatedAt time.Time `csv:"-" json:"updated_at"`
}

func (ShoppingItem) TableName() string { return "shopping_metrics" }
func (ShoppingItem) Dataset() Dataset  { return DatasetShopping }
func (s ShoppingItem) NaturalKey() string {
	return naturalKey(s.ClientID.String(), s.CampaignID, s.ItemID, s.DateRangeStart.String(), s.DateRangeEnd.String())
}

// SearchTermInsight is a search-term category over a date range. Export
// columns: client_id, campaign_id, category_label, date_range_start,
// date_range_end, campaign_name, search_volume, then the performance block.
type SearchTermInsight struct {
	ID             uint      `gorm:"primaryKey" csv:"-" json:"-"`
	ClientID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_search_term_insights_key,priority:1" csv:"client_id" json:"client_id"`
	CampaignID     string    `gorm:"not null;uniqueIndex:uq_search_term_insights_key,priority:2" csv:"campaign_id" json:"campaign_id"`
	CategoryLabel  string    `gorm:"not null;uniqueIndex:uq_search_term_insights_key,priority:3" csv:"category_label" json:"category_label"`
	DateRangeStart Date      `gorm:"not null;uniqueIndex:uq_search_term_insights_key,priority:4" csv:"date_range_start" json:"date_range_start"`
	DateRangeEnd   Date      `gorm:"not null;uniqueIndex:uq_search_term_insights_key,priority:5" csv:"date_range_end" json:"date_range_end"`
	CampaignName   string    `gorm:"not null" csv:"campaign_name" json:"campaign_name"`
	SearchVolume   *int64    `csv:"search_volume" json:"search_volume"`
	Performance
	CreatedAt time.Time `csv:"-" json:"-"`
	UpdatedAt time.Time `csv:"-" json:"updated_at"`
}

func (SearchTermInsight) TableName() string { return "search_term_insights" }
func (SearchTermInsight) Dataset() Dataset  { return DatasetSearchTermInsights }
func (s SearchTermInsight) NaturalKey() string {
	return naturalKey(s.ClientID.String(), s.CampaignID, s.CategoryLabel, s.DateRangeStart.String(), s.DateRangeEnd.String())
}

// AudienceSignal is audience segment performance. Export columns:
// client_id, campaign_id, audience_name, date_range_start, date_range_end,
// campaign_name, audience_type, then the performance block.
type AudienceSignal struct {
	ID             uint      `gorm:"primaryKey" csv:"-" json:"-"`
	ClientID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_audience_signals_key,priority:1" csv:"client_id" json:"client_id"`
	CampaignID     string    `gorm:"not null;uniqueIndex:uq_audience_signals_key,priority:2" csv:"campaign_id" json:"campaign_id"`
	AudienceName   string    `gorm:"not null;uniqueIndex:uq_audience_signals_key,priority:3" csv:"audience_name" json:"audience_name"`
	DateRangeStart Date      `gorm:"not null;uniqueIndex:uq_audience_signals_key,priority:4" csv:"date_range_start" json:"date_range_start"`
	DateRangeEnd   Date      `gorm:"not null;uniqueIndex:uq_audience_signals_key,priority:5" csv:"date_range_end" json:"date_range_end"`
	CampaignName   string    `gorm:"not null" csv:"campaign_name" json:"campaign_name"`
	AudienceType   string    `csv:"audience_type" json:"audience_type"`
	Performance
	CreatedAt time.Time `csv:"-" json:"-"`
	UpdatedAt time.Time `csv:"-" json:"updated_at"`
}

func (AudienceSignal) TableName() string { return "audience_signals" }
func (AudienceSignal) Dataset() Dataset  { return DatasetAudienceSignals }
func (a AudienceSignal) NaturalKey() string {
	return naturalKey(a.ClientID.String(), a.CampaignID, a.AudienceName, a.DateRangeStart.String(), a.DateRangeEnd.String())
}

// Derive recomputes the rate fields from the counters. Every ratio is
// guarded so a zero denominator yields 0.
func (p *Performance) Derive() {
	p.Ctr = ratio(float64(p.Clicks), float64(p.Impressions))
	p.AvgCpc = ratio(p.Cost, float64(p.Clicks))
	p.ConversionRate = ratio(p.Conversions, float64(p.Clicks))
	p.Cpa = ratio(p.Cost, p.Conversions)
	p.Roas = ratio(p.ConversionValue, p.Cost)
}

func ratio(num, den float64) float64 {
	if den <= 0 {
		return 0
	}
	return num / den
}
