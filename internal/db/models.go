package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ImportSource identifies how a raw import reached the service.
type ImportSource string

const (
	SourceCSV           ImportSource = "ui-csv"
	SourceScriptWebhook ImportSource = "script-webhook"
	SourceAPIBulk       ImportSource = "api-bulk"
)

// ApplyStatus is the terminal state written back onto a raw import.
type ApplyStatus string

const (
	ApplyPending ApplyStatus = "pending"
	ApplySuccess ApplyStatus = "success"
	ApplyError   ApplyStatus = "error"
)

// DatasetCounters is the per-dataset bookkeeping of one ingest run.
type DatasetCounters struct {
	Received int `json:"received"`
	Mapped   int `json:"mapped"`
	Upserted int `json:"upserted"`
	Skipped  int `json:"skipped"`
}

// ApplySummary is keyed by dataset tag.
type ApplySummary map[Dataset]DatasetCounters

// Total returns the number of upserted records across every dataset.
func (s ApplySummary) Total() int {
	n := 0
	for _, c := range s {
		n += c.Upserted
	}
	return n
}

// AppliedState is the reconciliation outcome of a raw import. It is written
// twice at most: once after raw rows persist and once when reconciliation
// finishes or fails.
type AppliedState struct {
	Status  ApplyStatus                      `gorm:"size:16;not null;default:pending" json:"status"`
	Summary datatypes.JSONType[ApplySummary] `gorm:"type:jsonb" json:"summary"`
	Tables  datatypes.JSONSlice[string]      `gorm:"type:jsonb" json:"tables"`
	Error   string                           `gorm:"type:text" json:"error,omitempty"`
	At      *time.Time                       `json:"at,omitempty"`
}

// RawImport is the audit record of one ingest attempt. Rows are never
// deleted by the service.
type RawImport struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	ClientID uuid.UUID    `gorm:"type:uuid;index;not null" json:"client_id"`
	Source   ImportSource `gorm:"size:32;not null" json:"source"`

	FileName   string `json:"file_name,omitempty"`
	ReportName string `json:"report_name,omitempty"`
	Encoding   string `gorm:"size:16" json:"encoding,omitempty"`
	Delimiter  string `gorm:"size:4" json:"delimiter,omitempty"`

	// Declared scope, as supplied by the caller.
	DateRangeStart *Date  `json:"date_range_start,omitempty"`
	DateRangeEnd   *Date  `json:"date_range_end,omitempty"`
	CampaignID     string `json:"campaign_id,omitempty"`
	CampaignName   string `json:"campaign_name,omitempty"`

	RowCount int                         `gorm:"not null;default:0" json:"row_count"`
	Headers  datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"headers"`

	Applied AppliedState `gorm:"embedded;embeddedPrefix:applied_" json:"applied"`

	Rows []RawImportRow `gorm:"foreignKey:ImportID;constraint:OnDelete:CASCADE" json:"-"`
}

// RawImportRow is one original row of a raw import, stored as received.
type RawImportRow struct {
	ID       uint      `gorm:"primaryKey"`
	ImportID uuid.UUID `gorm:"type:uuid;index;not null"`

	// RowIndex is 1-based across the whole import.
	RowIndex int                                   `gorm:"not null"`
	Dataset  Dataset                               `gorm:"size:32"`
	Fields   datatypes.JSONType[map[string]string] `gorm:"type:jsonb;not null"`
}

// ActivityLog is an append-only record of one coordinator run.
type ActivityLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	ClientID uuid.UUID  `gorm:"type:uuid;index;not null" json:"client_id"`
	ImportID *uuid.UUID `gorm:"type:uuid" json:"import_id,omitempty"`

	Action          string `gorm:"size:64;not null" json:"action"`
	Status          string `gorm:"size:16;not null" json:"status"`
	Message         string `gorm:"type:text" json:"message"`
	DurationMs      int64  `json:"duration_ms"`
	RecordsAffected int    `json:"records_affected"`
}

func (ActivityLog) TableName() string { return "activity_log" }
