package db

import (
	"regexp"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var uniqueIndexStmt = regexp.MustCompile(`CREATE UNIQUE INDEX IF NOT EXISTS \w+ ON (\w+) \(([^)]+)\);`)

func TestConflictColumnsMatchMigrationIndexes(t *testing.T) {
	sql, err := migrationFiles.ReadFile("migrations/0003_canonical_tables.up.sql")
	if err != nil {
		t.Fatal(err)
	}
	indexes := map[string]string{}
	for _, m := range uniqueIndexStmt.FindAllStringSubmatch(string(sql), -1) {
		indexes[m[1]] = strings.Join(strings.Fields(strings.ReplaceAll(m[2], ",", " ")), ",")
	}

	for _, ds := range Datasets {
		got, ok := indexes[ds.Table()]
		if !ok {
			t.Errorf("%s: no unique index on %s", ds, ds.Table())
			continue
		}
		if want := strings.Join(ds.ConflictColumns(), ","); got != want {
			t.Errorf("%s: unique index (%s), conflict target (%s)", ds, got, want)
		}
	}
}

func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.Open("postgres://adsinsight@localhost:5432/adsinsight"), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return db
}

func TestUpsertStatementTargetsNaturalKey(t *testing.T) {
	db := dryRunDB(t)
	client := uuid.New()
	day := NewDate(2025, 1, 1)

	samples := map[Dataset]Canonical{
		DatasetCampaigns:          Campaign{ClientID: client, CampaignID: "1", CampaignName: "Brand"},
		DatasetMetrics:            Metric{ClientID: client, CampaignID: "1", CampaignName: "Brand", DateRangeStart: day, DateRangeEnd: day},
		DatasetKeywords:           Keyword{ClientID: client, CampaignID: "1", DateRangeStart: day, DateRangeEnd: day},
		DatasetAds:                Ad{ClientID: client, CampaignID: "1", DateRangeStart: day, DateRangeEnd: day},
		DatasetAssets:             Asset{ClientID: client, CampaignID: "1", DateRangeStart: day, DateRangeEnd: day},
		DatasetShopping:           ShoppingItem{ClientID: client, CampaignID: "1", DateRangeStart: day, DateRangeEnd: day},
		DatasetSearchTermInsights: SearchTermInsight{ClientID: client, CampaignID: "1", DateRangeStart: day, DateRangeEnd: day},
		DatasetAudienceSignals:    AudienceSignal{ClientID: client, CampaignID: "1", DateRangeStart: day, DateRangeEnd: day},
	}

	for _, ds := range Datasets {
		t.Run(string(ds), func(t *testing.T) {
			records := []Canonical{samples[ds]}
			var stmt *gorm.DB
			switch ds {
			case DatasetCampaigns:
				stmt = upsertAs[Campaign](db, ds, records)
			case DatasetMetrics:
				stmt = upsertAs[Metric](db, ds, records)
			case DatasetKeywords:
				stmt = upsertAs[Keyword](db, ds, records)
			case DatasetAds:
				stmt = upsertAs[Ad](db, ds, records)
			case DatasetAssets:
				stmt = upsertAs[Asset](db, ds, records)
			case DatasetShopping:
				stmt = upsertAs[ShoppingItem](db, ds, records)
			case DatasetSearchTermInsights:
				stmt = upsertAs[SearchTermInsight](db, ds, records)
			case DatasetAudienceSignals:
				stmt = upsertAs[AudienceSignal](db, ds, records)
			}
			if stmt.Error != nil {
				t.Fatalf("build: %v", stmt.Error)
			}
			sql := stmt.Statement.SQL.String()

			quoted := make([]string, 0, len(ds.ConflictColumns()))
			for _, c := range ds.ConflictColumns() {
				quoted = append(quoted, `"`+c+`"`)
			}
			target := "ON CONFLICT (" + strings.Join(quoted, ",") + ") DO UPDATE SET "
			i := strings.Index(sql, target)
			if i < 0 {
				t.Fatalf("conflict target %q missing from %s", target, sql)
			}
			set := sql[i+len(target):]
			if strings.Contains(set, `"id"=`) || strings.Contains(set, `"created_at"=`) {
				t.Errorf("update overwrites id or created_at: %s", set)
			}
			if !strings.Contains(set, `"updated_at"=`) {
				t.Errorf("update does not refresh updated_at: %s", set)
			}
		})
	}
}

func TestUpsertRejectsForeignRecordType(t *testing.T) {
	db := dryRunDB(t)
	stmt := upsertAs[Metric](db, DatasetMetrics, []Canonical{Campaign{CampaignID: "1"}})
	if stmt.Error == nil {
		t.Fatal("campaign record accepted as metric")
	}
}
