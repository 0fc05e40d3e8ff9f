package db

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// IngestStore is the storage reconciliation layer used by the ingest
// coordinator. Every upsert targets the dataset's natural key, so replaying
// a payload refreshes rows instead of duplicating them. Concurrent writers
// to the same key are serialized by postgres.
type IngestStore struct {
	db *gorm.DB
}

func NewIngestStore(db *gorm.DB) *IngestStore {
	return &IngestStore{db: db}
}

func (s *IngestStore) CreateRawImport(ctx context.Context, imp *RawImport) error {
	return s.db.WithContext(ctx).Omit(clause.Associations).Create(imp).Error
}

func (s *IngestStore) InsertRawRows(ctx context.Context, rows []RawImportRow) error {
	if len(rows) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Create(&rows).Error
}

// UpdateRawImport writes the row count and applied state back onto the
// import. Zero values are written too.
func (s *IngestStore) UpdateRawImport(ctx context.Context, imp *RawImport) error {
	return s.db.WithContext(ctx).
		Model(&RawImport{ID: imp.ID}).
		Select("row_count", "applied_status", "applied_summary", "applied_tables", "applied_error", "applied_at").
		Updates(imp).Error
}

func (s *IngestStore) AppendActivity(ctx context.Context, entry *ActivityLog) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

// Upsert writes one batch of canonical records of a single dataset.
func (s *IngestStore) Upsert(ctx context.Context, dataset Dataset, records []Canonical) error {
	if len(records) == 0 {
		return nil
	}
	tx := s.db.WithContext(ctx)
	switch dataset {
	case DatasetCampaigns:
		return upsertAs[Campaign](tx, dataset, records).Error
	case DatasetMetrics:
		return upsertAs[Metric](tx, dataset, records).Error
	case DatasetKeywords:
		return upsertAs[Keyword](tx, dataset, records).Error
	case DatasetAds:
		return upsertAs[Ad](tx, dataset, records).Error
	case DatasetAssets:
		return upsertAs[Asset](tx, dataset, records).Error
	case DatasetShopping:
		return upsertAs[ShoppingItem](tx, dataset, records).Error
	case DatasetSearchTermInsights:
		return upsertAs[SearchTermInsight](tx, dataset, records).Error
	case DatasetAudienceSignals:
		return upsertAs[AudienceSignal](tx, dataset, records).Error
	default:
		return fmt.Errorf("unknown dataset %q", dataset)
	}
}

// upsertAs inserts records as T, updating every non-key column of rows
// whose natural key already exists. id and created_at keep their values.
func upsertAs[T Canonical](tx *gorm.DB, dataset Dataset, records []Canonical) *gorm.DB {
	typed := make([]T, 0, len(records))
	for _, r := range records {
		v, ok := r.(T)
		if !ok {
			_ = tx.AddError(fmt.Errorf("%s: unexpected record type %T", dataset, r))
			return tx
		}
		typed = append(typed, v)
	}

	keys := dataset.ConflictColumns()
	columns := make([]clause.Column, 0, len(keys))
	for _, k := range keys {
		columns = append(columns, clause.Column{Name: k})
	}

	return tx.Clauses(clause.OnConflict{
		Columns:   columns,
		UpdateAll: true,
	}).Create(&typed)
}
