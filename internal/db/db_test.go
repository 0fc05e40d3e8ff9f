package db

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"adsinsight/internal/config"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestPerformanceDerive(t *testing.T) {
	p := Performance{Impressions: 1000, Clicks: 50, Cost: 100, Conversions: 5, ConversionValue: 500}
	p.Derive()
	if !near(p.Ctr, 0.05) || !near(p.AvgCpc, 2) || !near(p.ConversionRate, 0.1) || !near(p.Cpa, 20) || !near(p.Roas, 5) {
		t.Fatalf("derived = %+v", p)
	}

	var zero Performance
	zero.Derive()
	if zero.Ctr != 0 || zero.AvgCpc != 0 || zero.ConversionRate != 0 || zero.Cpa != 0 || zero.Roas != 0 {
		t.Fatalf("zero denominators = %+v", zero)
	}
}

func TestDateText(t *testing.T) {
	d := NewDate(2024, time.February, 29)
	b, err := json.Marshal(struct {
		D Date `json:"d"`
	}{d})
	if err != nil || string(b) != `{"d":"2024-02-29"}` {
		t.Fatalf("marshal = %s, %v", b, err)
	}

	var back Date
	if err := back.UnmarshalText([]byte("2024-02-29")); err != nil || back.String() != d.String() {
		t.Fatalf("unmarshal = %v, %v", back, err)
	}
	if err := back.UnmarshalText([]byte("29/02/2024")); err == nil {
		t.Fatal("non-ISO date accepted")
	}

	var scanned Date
	if err := scanned.Scan(time.Date(2024, 2, 29, 23, 0, 0, 0, time.FixedZone("x", -3*3600))); err != nil || scanned.String() != "2024-02-29" {
		t.Fatalf("scan = %v, %v", scanned, err)
	}
	if v, _ := (Date{}).Value(); v != nil {
		t.Fatalf("zero date value = %v", v)
	}
}

func TestParseDataset(t *testing.T) {
	ds, ok := ParseDataset(" Search_Term_Insights ")
	if !ok || ds != DatasetSearchTermInsights || ds.Table() != "search_term_insights" {
		t.Fatalf("ParseDataset = %q, %v", ds, ok)
	}
	if _, ok := ParseDataset("events"); ok {
		t.Fatal("unknown dataset accepted")
	}
	for _, ds := range Datasets {
		if ds.Table() == "" || len(ds.ConflictColumns()) < 2 || ds.ConflictColumns()[0] != "client_id" {
			t.Errorf("dataset %q is missing its table or key", ds)
		}
	}
}

func TestNaturalKeysDistinguishRanges(t *testing.T) {
	client := uuid.New()
	a := Metric{ClientID: client, CampaignID: "1", DateRangeStart: NewDate(2024, 1, 1), DateRangeEnd: NewDate(2024, 1, 7)}
	b := a
	b.DateRangeEnd = NewDate(2024, 1, 8)
	if a.NaturalKey() == b.NaturalKey() {
		t.Fatal("different ranges share a natural key")
	}
	b.DateRangeEnd = a.DateRangeEnd
	b.CampaignName = "renamed"
	if a.NaturalKey() != b.NaturalKey() {
		t.Fatal("attribute change altered the natural key")
	}
}

func TestMissingRelation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "42P01", TableName: "keyword_metrics"}
	wrapped := fmt.Errorf("upsert: %w", pgErr)
	if !IsMissingRelation(wrapped) || MissingRelation(wrapped) != "keyword_metrics" {
		t.Fatalf("pg error not recognised")
	}

	text := errors.New(`ERROR: relation "public.raw_imports" does not exist (SQLSTATE 42P01)`)
	if !IsMissingRelation(text) || MissingRelation(text) != "raw_imports" {
		t.Fatalf("message form: %q", MissingRelation(text))
	}

	if IsMissingRelation(errors.New("duplicate key")) || IsMissingRelation(nil) {
		t.Fatal("unrelated error treated as missing relation")
	}
}

func TestMigrationFor(t *testing.T) {
	tests := map[string]string{
		"raw_imports":      "0002_raw_imports.up.sql",
		"users":            "0001_users_clients.up.sql",
		"campaign_metrics": "0003_canonical_tables.up.sql",
		"mystery":          "all pending migrations",
	}
	for table, want := range tests {
		if got := MigrationFor(table); got != want {
			t.Errorf("MigrationFor(%q) = %q, want %q", table, got, want)
		}
	}
}

func TestPgx5URL(t *testing.T) {
	tests := map[string]string{
		"postgres://u:p@h/db":  "pgx5://u:p@h/db",
		"postgresql://h/db":    "pgx5://h/db",
		"pgx5://already/there": "pgx5://already/there",
	}
	for in, want := range tests {
		if got := pgx5URL(in); got != want {
			t.Errorf("pgx5URL(%q) = %q", in, got)
		}
	}
}

func TestBuildKPIReport(t *testing.T) {
	policy := config.PolicyConfig{WastedSpendMinCost: 50, WastedSpendMaxConversions: 0}
	rows := []kpiRow{
		{CampaignID: "1", CampaignName: "Brand", Impressions: 1000, Clicks: 100, Cost: 200, Conversions: 10, ConversionValue: 800},
		{CampaignID: "2", CampaignName: "Broad", Impressions: 500, Clicks: 40, Cost: 120},
		{CampaignID: "3", CampaignName: "Tiny", Impressions: 10, Clicks: 1, Cost: 5},
	}
	report := buildKPIReport(uuid.New(), nil, nil, rows, policy)

	if len(report.Campaigns) != 3 {
		t.Fatalf("campaigns = %d", len(report.Campaigns))
	}
	if report.Campaigns[0].WastedSpend || !report.Campaigns[1].WastedSpend || report.Campaigns[2].WastedSpend {
		t.Fatalf("wasted flags = %v %v %v", report.Campaigns[0].WastedSpend, report.Campaigns[1].WastedSpend, report.Campaigns[2].WastedSpend)
	}
	if report.Wasted != 120 {
		t.Fatalf("wasted = %v", report.Wasted)
	}
	tot := report.Totals
	if tot.Clicks != 141 || tot.Cost != 325 || !near(tot.Cpa, 32.5) || !near(tot.Roas, 800.0/325) {
		t.Fatalf("totals = %+v", tot)
	}
}

func TestIsWastedSpendNeedsCost(t *testing.T) {
	if IsWastedSpend(Performance{}, config.PolicyConfig{}) {
		t.Fatal("zero spend flagged")
	}
}
