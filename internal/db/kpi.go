package db

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"adsinsight/internal/config"
)

// CampaignKPI is the per-campaign rollup of campaign_metrics over a window.
type CampaignKPI struct {
	CampaignID   string `json:"campaign_id"`
	CampaignName string `json:"campaign_name"`
	Performance
	WastedSpend bool `json:"wasted_spend"`
}

// KPIReport is what the KPI endpoint serves.
type KPIReport struct {
	ClientID  uuid.UUID     `json:"client_id"`
	Start     *Date         `json:"start,omitempty"`
	End       *Date         `json:"end,omitempty"`
	Totals    Performance   `json:"totals"`
	Campaigns []CampaignKPI `json:"campaigns"`
	Wasted    float64       `json:"wasted_spend"`
}

type kpiRow struct {
	CampaignID      string
	CampaignName    string
	Impressions     int64
	Clicks          int64
	Cost            float64
	Conversions     float64
	ConversionValue float64
}

// LoadKPIs sums campaign_metrics per campaign for the client. Rows are
// included when their range lies inside [start, end]; nil bounds are open.
func LoadKPIs(ctx context.Context, db *gorm.DB, clientID uuid.UUID, start, end *Date, policy config.PolicyConfig) (*KPIReport, error) {
	q := db.WithContext(ctx).Model(&Metric{}).
		Select(`campaign_id,
			MAX(campaign_name) AS campaign_name,
			COALESCE(SUM(impressions), 0) AS impressions,
			COALESCE(SUM(clicks), 0) AS clicks,
			COALESCE(SUM(cost), 0) AS cost,
			COALESCE(SUM(conversions), 0) AS conversions,
			COALESCE(SUM(conversion_value), 0) AS conversion_value`).
		Where("client_id = ?", clientID)
	if start != nil {
		q = q.Where("date_range_start >= ?", *start)
	}
	if end != nil {
		q = q.Where("date_range_end <= ?", *end)
	}

	var rows []kpiRow
	if err := q.Group("campaign_id").Order("cost DESC").Scan(&rows).Error; err != nil {
		return nil, err
	}

	return buildKPIReport(clientID, start, end, rows, policy), nil
}

// buildKPIReport derives rates and wasted-spend flags from summed rows.
func buildKPIReport(clientID uuid.UUID, start, end *Date, rows []kpiRow, policy config.PolicyConfig) *KPIReport {
	report := &KPIReport{
		ClientID:  clientID,
		Start:     start,
		End:       end,
		Campaigns: make([]CampaignKPI, 0, len(rows)),
	}
	for _, r := range rows {
		k := CampaignKPI{
			CampaignID:   r.CampaignID,
			CampaignName: r.CampaignName,
			Performance: Performance{
				Impressions:     r.Impressions,
				Clicks:          r.Clicks,
				Cost:            r.Cost,
				Conversions:     r.Conversions,
				ConversionValue: r.ConversionValue,
			},
		}
		k.Derive()
		k.WastedSpend = IsWastedSpend(k.Performance, policy)
		if k.WastedSpend {
			report.Wasted += k.Cost
		}

		report.Totals.Impressions += r.Impressions
		report.Totals.Clicks += r.Clicks
		report.Totals.Cost += r.Cost
		report.Totals.Conversions += r.Conversions
		report.Totals.ConversionValue += r.ConversionValue
		report.Campaigns = append(report.Campaigns, k)
	}
	report.Totals.Derive()
	return report
}

// IsWastedSpend flags spend that reached the policy floor without converting.
func IsWastedSpend(p Performance, policy config.PolicyConfig) bool {
	return p.Cost > 0 && p.Cost >= policy.WastedSpendMinCost && p.Conversions <= policy.WastedSpendMaxConversions
}
