package ingest

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	dbpkg "adsinsight/internal/db"
)

// DefaultBatchSize is the number of rows per raw-row insert and per
// canonical upsert.
const DefaultBatchSize = 500

// Store is the persistence the coordinator needs. *db.IngestStore
// implements it against postgres.
type Store interface {
	CreateRawImport(ctx context.Context, imp *dbpkg.RawImport) error
	InsertRawRows(ctx context.Context, rows []dbpkg.RawImportRow) error
	UpdateRawImport(ctx context.Context, imp *dbpkg.RawImport) error
	Upsert(ctx context.Context, dataset dbpkg.Dataset, records []dbpkg.Canonical) error
	AppendActivity(ctx context.Context, entry *dbpkg.ActivityLog) error
}

// RowSet is the raw rows of one dataset. An empty Dataset marks rows that
// are stored for audit only.
type RowSet struct {
	Dataset dbpkg.Dataset
	Rows    []map[string]string
}

// Request is one ingest call.
type Request struct {
	ClientID uuid.UUID
	Source   dbpkg.ImportSource

	FileName   string
	ReportName string
	Encoding   string
	Delimiter  string
	Headers    []string

	Fallback Fallback

	Sets []RowSet

	// SkipApply stores the raw import without reconciling it.
	SkipApply bool
}

func (r *Request) rowCount() int {
	n := 0
	for _, s := range r.Sets {
		n += len(s.Rows)
	}
	return n
}

// Result is the outcome of a run that got as far as creating its raw import.
type Result struct {
	ImportID      uuid.UUID          `json:"importId"`
	Status        dbpkg.ApplyStatus  `json:"status"`
	AppliedAt     *time.Time         `json:"appliedAt,omitempty"`
	AppliedTables []string           `json:"appliedTables"`
	Summary       dbpkg.ApplySummary `json:"applySummary"`
	Error         string             `json:"error,omitempty"`
}

// Coordinator runs the ingest state machine:
// received, raw_persisted, mapping, reconciling, done.
type Coordinator struct {
	store     Store
	batchSize int
	metrics   *Metrics
	now       func() time.Time
}

func NewCoordinator(store Store, batchSize int, metrics *Metrics) *Coordinator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Coordinator{store: store, batchSize: batchSize, metrics: metrics, now: time.Now}
}

// Run executes one ingest call. A non-nil Result is returned whenever the
// raw import was created, even when err is also set, so callers can report
// the partial summary. err is always an *Error.
func (c *Coordinator) Run(ctx context.Context, req Request) (*Result, error) {
	started := c.now()

	if req.ClientID == uuid.Nil {
		return nil, newError(CodeClientIDRequired, "clientId is required", nil)
	}
	total := req.rowCount()
	if total == 0 {
		return nil, newError(CodeNoRows, "no rows to import", nil)
	}
	if req.Source == "" {
		req.Source = dbpkg.SourceAPIBulk
	}
	if req.Headers == nil {
		req.Headers = []string{}
	}

	imp := &dbpkg.RawImport{
		ID:             uuid.New(),
		ClientID:       req.ClientID,
		Source:         req.Source,
		FileName:       req.FileName,
		ReportName:     req.ReportName,
		Encoding:       req.Encoding,
		Delimiter:      req.Delimiter,
		DateRangeStart: req.Fallback.Start,
		DateRangeEnd:   req.Fallback.End,
		CampaignID:     req.Fallback.CampaignID,
		CampaignName:   req.Fallback.CampaignName,
		Headers:        datatypes.NewJSONSlice(req.Headers),
		Applied: dbpkg.AppliedState{
			Status:  dbpkg.ApplyPending,
			Summary: datatypes.NewJSONType(dbpkg.ApplySummary{}),
			Tables:  datatypes.NewJSONSlice([]string{}),
		},
	}

	if err := c.store.CreateRawImport(ctx, imp); err != nil {
		var ierr *Error
		if dbpkg.IsMissingRelation(err) {
			ierr = newError(CodeRawImportTableMissing, dbpkg.MissingTableHint(err, "raw_imports"), err)
		} else {
			ierr = newError(CodeRawImportCreateFailed, "failed to create raw import", err)
		}
		log.Printf("ingest client=%s source=%s: %v", req.ClientID, req.Source, ierr)
		c.appendActivity(ctx, imp, nil, dbpkg.ApplyError, ierr.Error(), 0, started)
		c.metrics.observe(req.Source, dbpkg.ApplyError, nil, c.now().Sub(started))
		return nil, ierr
	}

	// received -> raw_persisted
	if err := c.persistRawRows(ctx, imp.ID, req.Sets); err != nil {
		var ierr *Error
		if dbpkg.IsMissingRelation(err) {
			ierr = newError(CodeRawImportTableMissing, dbpkg.MissingTableHint(err, "raw_import_rows"), err)
		} else {
			ierr = newError(CodeRawRowsInsertFailed, "failed to persist raw rows", err)
		}
		res := c.finish(ctx, imp, dbpkg.ApplySummary{}, nil, ierr, started)
		return res, ierr
	}
	imp.RowCount = total
	if err := c.store.UpdateRawImport(ctx, imp); err != nil {
		log.Printf("ingest %s: failed to record row count: %v", imp.ID, err)
	}

	if req.SkipApply {
		res := c.finish(ctx, imp, dbpkg.ApplySummary{}, nil, nil, started)
		return res, nil
	}

	// raw_persisted -> mapping
	summary, pending := c.mapSets(req)

	// mapping -> reconciling
	tables, applyErr := c.reconcile(ctx, summary, pending)

	res := c.finish(ctx, imp, summary, tables, applyErr, started)
	if applyErr != nil {
		return res, applyErr
	}
	return res, nil
}

func (c *Coordinator) persistRawRows(ctx context.Context, importID uuid.UUID, sets []RowSet) error {
	batch := make([]dbpkg.RawImportRow, 0, c.batchSize)
	index := 0
	for _, set := range sets {
		for _, row := range set.Rows {
			index++
			batch = append(batch, dbpkg.RawImportRow{
				ImportID: importID,
				RowIndex: index,
				Dataset:  set.Dataset,
				Fields:   datatypes.NewJSONType(row),
			})
			if len(batch) == c.batchSize {
				if err := c.store.InsertRawRows(ctx, batch); err != nil {
					return err
				}
				batch = make([]dbpkg.RawImportRow, 0, c.batchSize)
			}
		}
	}
	if len(batch) > 0 {
		return c.store.InsertRawRows(ctx, batch)
	}
	return nil
}

// mapSets runs the mappers and collapses duplicate natural keys so a batch
// never touches the same row twice. The last occurrence wins.
func (c *Coordinator) mapSets(req Request) (dbpkg.ApplySummary, map[dbpkg.Dataset][]dbpkg.Canonical) {
	summary := dbpkg.ApplySummary{}
	pending := make(map[dbpkg.Dataset][]dbpkg.Canonical)
	positions := make(map[dbpkg.Dataset]map[string]int)

	mc := MapContext{ClientID: req.ClientID, Fallback: req.Fallback}
	for _, set := range req.Sets {
		if set.Dataset == "" {
			continue
		}
		counters := summary[set.Dataset]
		if positions[set.Dataset] == nil {
			positions[set.Dataset] = make(map[string]int)
		}
		for _, row := range set.Rows {
			counters.Received++
			res := MapRow(set.Dataset, row, mc)
			if !res.OK() {
				counters.Skipped++
				continue
			}
			counters.Mapped++

			key := res.Record.NaturalKey()
			if i, seen := positions[set.Dataset][key]; seen {
				pending[set.Dataset][i] = res.Record
				continue
			}
			positions[set.Dataset][key] = len(pending[set.Dataset])
			pending[set.Dataset] = append(pending[set.Dataset], res.Record)
		}
		summary[set.Dataset] = counters
	}
	return summary, pending
}

// reconcile upserts every dataset in fixed order. A failed batch stops the
// rest of that dataset only; the first failure is the one reported.
func (c *Coordinator) reconcile(ctx context.Context, summary dbpkg.ApplySummary, pending map[dbpkg.Dataset][]dbpkg.Canonical) ([]string, *Error) {
	var (
		tables   []string
		firstErr *Error
	)
	for _, ds := range dbpkg.Datasets {
		records := pending[ds]
		if len(records) == 0 {
			continue
		}
		counters := summary[ds]
		for startIdx := 0; startIdx < len(records); startIdx += c.batchSize {
			endIdx := min(startIdx+c.batchSize, len(records))
			if err := c.store.Upsert(ctx, ds, records[startIdx:endIdx]); err != nil {
				log.Printf("ingest upsert %s failed after %d records: %v", ds.Table(), counters.Upserted, err)
				if firstErr == nil {
					if dbpkg.IsMissingRelation(err) {
						firstErr = newError(CodeCanonicalTableMissing, dbpkg.MissingTableHint(err, ds.Table()), err)
					} else {
						firstErr = newError(CodeApplyFailed, fmt.Sprintf("failed to apply %s", ds), err)
					}
				}
				break
			}
			counters.Upserted += endIdx - startIdx
		}
		if counters.Upserted > 0 {
			tables = append(tables, ds.Table())
		}
		summary[ds] = counters
	}
	return tables, firstErr
}

// finish writes the terminal state back onto the import, appends the
// activity entry and records metrics.
func (c *Coordinator) finish(ctx context.Context, imp *dbpkg.RawImport, summary dbpkg.ApplySummary, tables []string, runErr *Error, started time.Time) *Result {
	if tables == nil {
		tables = []string{}
	}

	status := dbpkg.ApplySuccess
	var at *time.Time
	var message string
	switch {
	case runErr != nil:
		status = dbpkg.ApplyError
		now := c.now()
		at = &now
		message = fmt.Sprintf("import failed after %d records: %s", summary.Total(), runErr.Error())
	case imp.RowCount > 0 && len(summary) == 0:
		status = dbpkg.ApplyPending
		message = fmt.Sprintf("stored %d raw rows; apply skipped", imp.RowCount)
	default:
		now := c.now()
		at = &now
		message = fmt.Sprintf("imported %d records into %s", summary.Total(), joinOrNone(tables))
	}

	imp.Applied = dbpkg.AppliedState{
		Status:  status,
		Summary: datatypes.NewJSONType(summary),
		Tables:  datatypes.NewJSONSlice(tables),
		At:      at,
	}
	if runErr != nil {
		imp.Applied.Error = runErr.Error()
	}
	if err := c.store.UpdateRawImport(ctx, imp); err != nil {
		log.Printf("ingest %s: failed to write applied state: %v", imp.ID, err)
	}

	c.appendActivity(ctx, imp, &imp.ID, status, message, summary.Total(), started)

	elapsed := c.now().Sub(started)
	c.metrics.observe(imp.Source, status, summary, elapsed)
	log.Printf("ingest %s client=%s source=%s status=%s records=%d (%s)",
		imp.ID, imp.ClientID, imp.Source, status, summary.Total(), elapsed)

	res := &Result{
		ImportID:      imp.ID,
		Status:        status,
		AppliedAt:     at,
		AppliedTables: tables,
		Summary:       summary,
	}
	if runErr != nil {
		res.Error = runErr.Error()
	}
	return res
}

func (c *Coordinator) appendActivity(ctx context.Context, imp *dbpkg.RawImport, importID *uuid.UUID, status dbpkg.ApplyStatus, message string, records int, started time.Time) {
	entry := &dbpkg.ActivityLog{
		ClientID:        imp.ClientID,
		ImportID:        importID,
		Action:          "ingest." + string(imp.Source),
		Status:          string(status),
		Message:         message,
		DurationMs:      c.now().Sub(started).Milliseconds(),
		RecordsAffected: records,
	}
	if err := c.store.AppendActivity(ctx, entry); err != nil {
		log.Printf("ingest %s: failed to append activity: %v", imp.ID, err)
	}
}

func joinOrNone(tables []string) string {
	if len(tables) == 0 {
		return "no tables"
	}
	return strings.Join(tables, ", ")
}
