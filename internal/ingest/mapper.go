package ingest

import (
	"math"

	"github.com/google/uuid"

	dbpkg "adsinsight/internal/db"
)

// ReasonMissingRequired is the only rejection reason a mapper produces.
const ReasonMissingRequired = "missing_required_fields"

// Fallback carries caller-supplied defaults used only when a row has no
// value of its own for the field.
type Fallback struct {
	Start        *dbpkg.Date
	End          *dbpkg.Date
	CampaignID   string
	CampaignName string
}

// MapContext scopes a mapping call to one client.
type MapContext struct {
	ClientID uuid.UUID
	Fallback Fallback
}

// MapResult is either a canonical record or a rejection.
type MapResult struct {
	Record dbpkg.Canonical
	Reason string
	// Missing names the required fields that did not resolve.
	Missing []string
}

func (r MapResult) OK() bool { return r.Record != nil }

type mapperFunc func(f Fields, mc MapContext) MapResult

var mappers = map[dbpkg.Dataset]mapperFunc{
	dbpkg.DatasetCampaigns:          mapCampaign,
	dbpkg.DatasetMetrics:            mapMetric,
	dbpkg.DatasetKeywords:           mapKeyword,
	dbpkg.DatasetAds:                mapAd,
	dbpkg.DatasetAssets:             mapAsset,
	dbpkg.DatasetShopping:           mapShopping,
	dbpkg.DatasetSearchTermInsights: mapSearchTermInsight,
	dbpkg.DatasetAudienceSignals:    mapAudienceSignal,
}

// MapRow converts one raw row into the canonical record of dataset.
func MapRow(dataset dbpkg.Dataset, raw map[string]string, mc MapContext) MapResult {
	fn, ok := mappers[dataset]
	if !ok {
		return MapResult{Reason: ReasonMissingRequired, Missing: []string{"dataset"}}
	}
	return fn(NewFields(raw), mc)
}

// required collects unresolved required fields.
type required []string

func (r *required) need(name string, ok bool) {
	if !ok {
		*r = append(*r, name)
	}
}

func (r required) result(rec dbpkg.Canonical) MapResult {
	if len(r) > 0 {
		return MapResult{Reason: ReasonMissingRequired, Missing: r}
	}
	return MapResult{Record: rec}
}

// resolveCampaign applies: id alias, then fallback id, then resolved name;
// name alias, then fallback name.
func resolveCampaign(f Fields, fb Fallback) (id, name string) {
	name, ok := f.Resolve(aliasCampaignName...)
	if !ok {
		name = fb.CampaignName
	}
	id, ok = f.Resolve(aliasCampaignID...)
	if !ok {
		id = fb.CampaignID
	}
	if id == "" {
		id = name
	}
	return id, name
}

// resolveRange prefers a single-day column, then explicit start/end columns,
// then the fallback range. A present but unparsable value does not fall back.
func resolveRange(f Fields, fb Fallback) (start, end dbpkg.Date, ok bool) {
	if raw, found := f.Resolve(aliasDay...); found {
		d, ok := ParseDate(raw)
		return d, d, ok
	}
	start, okStart := resolveDate(f, aliasStart, fb.Start)
	end, okEnd := resolveDate(f, aliasEnd, fb.End)
	return start, end, okStart && okEnd
}

func resolveDate(f Fields, aliases []string, fallback *dbpkg.Date) (dbpkg.Date, bool) {
	if raw, found := f.Resolve(aliases...); found {
		return ParseDate(raw)
	}
	if fallback != nil && !fallback.IsZero() {
		return *fallback, true
	}
	return dbpkg.Date{}, false
}

// resolvePerformance reads the counters, treating an absent counter as zero,
// and derives the rates.
func resolvePerformance(f Fields) dbpkg.Performance {
	p := dbpkg.Performance{
		Impressions:     roundCount(f.Number(aliasImpressions...)),
		Clicks:          roundCount(f.Number(aliasClicks...)),
		Cost:            orZero(f.Number(aliasCost...)),
		Conversions:     orZero(f.Number(aliasConversions...)),
		ConversionValue: orZero(f.Number(aliasConversionValue...)),
	}
	p.Derive()
	return p
}

func orZero(v float64, ok bool) float64 {
	if !ok {
		return 0
	}
	return v
}

// toCount rounds v to an integer count. Values beyond the int64 range are
// unresolved.
func toCount(v float64) (int64, bool) {
	r := math.Round(v)
	if r >= math.MaxInt64 || r < math.MinInt64 {
		return 0, false
	}
	return int64(r), true
}

func roundCount(v float64, ok bool) int64 {
	if !ok {
		return 0
	}
	n, _ := toCount(v)
	return n
}

func optionalFloat(v float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &v
}

func optionalCount(v float64, ok bool) *int64 {
	if !ok {
		return nil
	}
	n, ok := toCount(v)
	if !ok {
		return nil
	}
	return &n
}

func optionalString(f Fields, aliases []string) string {
	v, _ := f.Resolve(aliases...)
	return v
}

func mapCampaign(f Fields, mc MapContext) MapResult {
	id, name := resolveCampaign(f, mc.Fallback)
	var req required
	req.need("campaign_id", id != "")
	req.need("campaign_name", name != "")

	return req.result(dbpkg.Campaign{
		ClientID:     mc.ClientID,
		CampaignID:   id,
		CampaignName: name,
		Status:       optionalString(f, aliasStatus),
		ChannelType:  optionalString(f, aliasChannelType),
		BudgetAmount: optionalFloat(f.Number(aliasBudgetAmount...)),
	})
}

func mapMetric(f Fields, mc MapContext) MapResult {
	id, name := resolveCampaign(f, mc.Fallback)
	start, end, dated := resolveRange(f, mc.Fallback)
	var req required
	req.need("campaign_id", id != "")
	req.need("campaign_name", name != "")
	req.need("date_range", dated)

	return req.result(dbpkg.Metric{
		ClientID:              mc.ClientID,
		CampaignID:            id,
		CampaignName:          name,
		DateRangeStart:        start,
		DateRangeEnd:          end,
		Performance:           resolvePerformance(f),
		SearchImpressionShare: optionalFloat(f.Rate(aliasSearchImpressionShare...)),
	})
}

func mapKeyword(f Fields, mc MapContext) MapResult {
	id, name := resolveCampaign(f, mc.Fallback)
	start, end, dated := resolveRange(f, mc.Fallback)
	text, hasText := f.Resolve(aliasKeywordText...)
	var req required
	req.need("campaign_id", id != "")
	req.need("campaign_name", name != "")
	req.need("keyword_text", hasText)
	req.need("date_range", dated)

	return req.result(dbpkg.Keyword{
		ClientID:       mc.ClientID,
		CampaignID:     id,
		CampaignName:   name,
		AdGroupName:    optionalString(f, aliasAdGroupName),
		KeywordText:    text,
		MatchType:      optionalString(f, aliasMatchType),
		DateRangeStart: start,
		DateRangeEnd:   end,
		QualityScore:   optionalCount(f.Number(aliasQualityScore...)),
		Performance:    resolvePerformance(f),
	})
}

func mapAd(f Fields, mc MapContext) MapResult {
	id, name := resolveCampaign(f, mc.Fallback)
	start, end, dated := resolveRange(f, mc.Fallback)
	adID, hasAd := f.Resolve(aliasAdID...)
	var req required
	req.need("campaign_id", id != "")
	req.need("campaign_name", name != "")
	req.need("ad_id", hasAd)
	req.need("date_range", dated)

	return req.result(dbpkg.Ad{
		ClientID:       mc.ClientID,
		CampaignID:     id,
		CampaignName:   name,
		AdID:           adID,
		DateRangeStart: start,
		DateRangeEnd:   end,
		AdGroupName:    optionalString(f, aliasAdGroupName),
		AdType:         optionalString(f, aliasAdType),
		Headline:       optionalString(f, aliasHeadline),
		FinalURL:       optionalString(f, aliasFinalURL),
		Performance:    resolvePerformance(f),
	})
}

func mapAsset(f Fields, mc MapContext) MapResult {
	id, name := resolveCampaign(f, mc.Fallback)
	start, end, dated := resolveRange(f, mc.Fallback)
	text := optionalString(f, aliasAssetText)
	assetID, hasID := f.Resolve(aliasAssetID...)
	if !hasID {
		assetID = text
	}
	var req required
	req.need("campaign_id", id != "")
	req.need("campaign_name", name != "")
	req.need("asset_id", assetID != "")
	req.need("date_range", dated)

	return req.result(dbpkg.Asset{
		ClientID:         mc.ClientID,
		CampaignID:       id,
		CampaignName:     name,
		AssetID:          assetID,
		FieldType:        optionalString(f, aliasFieldType),
		DateRangeStart:   start,
		DateRangeEnd:     end,
		AssetType:        optionalString(f, aliasAssetType),
		AssetText:        text,
		PerformanceLabel: optionalString(f, aliasPerformanceLabel),
		Performance:      resolvePerformance(f),
	})
}

func mapShopping(f Fields, mc MapContext) MapResult {
	id, name := resolveCampaign(f, mc.Fallback)
	start, end, dated := resolveRange(f, mc.Fallback)
	itemID, hasItem := f.Resolve(aliasItemID...)
	var req required
	req.need("campaign_id", id != "")
	req.need("campaign_name", name != "")
	req.need("item_id", hasItem)
	req.need("date_range", dated)

	return req.result(dbpkg.ShoppingItem{
		ClientID:       mc.ClientID,
		CampaignID:     id,
		CampaignName:   name,
		ItemID:         itemID,
		DateRangeStart: start,
		DateRangeEnd:   end,
		ProductTitle:   optionalString(f, aliasProductTitle),
		Brand:          optionalString(f, aliasBrand),
		Performance:    resolvePerformance(f),
	})
}

func mapSearchTermInsight(f Fields, mc MapContext) MapResult {
	id, name := resolveCampaign(f, mc.Fallback)
	start, end, dated := resolveRange(f, mc.Fallback)
	label, hasLabel := f.Resolve(aliasCategoryLabel...)
	var req required
	req.need("campaign_id", id != "")
	req.need("campaign_name", name != "")
	req.need("category_label", hasLabel)
	req.need("date_range", dated)

	return req.result(dbpkg.SearchTermInsight{
		ClientID:       mc.ClientID,
		CampaignID:     id,
		CampaignName:   name,
		CategoryLabel:  label,
		DateRangeStart: start,
		DateRangeEnd:   end,
		SearchVolume:   optionalCount(f.Number(aliasSearchVolume...)),
		Performance:    resolvePerformance(f),
	})
}

func mapAudienceSignal(f Fields, mc MapContext) MapResult {
	id, name := resolveCampaign(f, mc.Fallback)
	start, end, dated := resolveRange(f, mc.Fallback)
	audience, hasAudience := f.Resolve(aliasAudienceName...)
	var req required
	req.need("campaign_id", id != "")
	req.need("campaign_name", name != "")
	req.need("audience_name", hasAudience)
	req.need("date_range", dated)

	return req.result(dbpkg.AudienceSignal{
		ClientID:       mc.ClientID,
		CampaignID:     id,
		CampaignName:   name,
		AudienceName:   audience,
		DateRangeStart: start,
		DateRangeEnd:   end,
		AudienceType:   optionalString(f, aliasAudienceType),
		Performance:    resolvePerformance(f),
	})
}
