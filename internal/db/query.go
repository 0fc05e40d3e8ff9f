package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FindClient loads one client by id.
func FindClient(ctx context.Context, db *gorm.DB, id uuid.UUID) (*Client, error) {
	var c Client
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// VisibleClients returns the clients a user may read, newest first.
func VisibleClients(ctx context.Context, db *gorm.DB, user *User) ([]Client, error) {
	q := db.WithContext(ctx).Model(&Client{})
	switch {
	case user.IsAdmin:
	case user.ClientID != nil:
		q = q.Where("id = ?", *user.ClientID)
	default:
		q = q.Where("manager_id = ?", user.ID)
	}
	var clients []Client
	if err := q.Order("created_at DESC").Find(&clients).Error; err != nil {
		return nil, err
	}
	return clients, nil
}

// RecentImports pages through a client's raw imports, newest first, and
// returns the total count alongside.
func RecentImports(ctx context.Context, db *gorm.DB, clientID uuid.UUID, limit, offset int) ([]RawImport, int64, error) {
	q := db.WithContext(ctx).Model(&RawImport{}).Where("client_id = ?", clientID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var imports []RawImport
	if err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&imports).Error; err != nil {
		return nil, 0, err
	}
	return imports, total, nil
}

// LoadRows returns a client's canonical rows of T's dataset in natural-key
// order. Fact tables are filtered to ranges inside [start, end]; the
// campaign dimension ignores the window.
func LoadRows[T Canonical](ctx context.Context, db *gorm.DB, clientID uuid.UUID, start, end *Date) ([]T, error) {
	var zero T
	ds := zero.Dataset()

	q := db.WithContext(ctx).Where("client_id = ?", clientID)
	if ds != DatasetCampaigns {
		if start != nil {
			q = q.Where("date_range_start >= ?", *start)
		}
		if end != nil {
			q = q.Where("date_range_end <= ?", *end)
		}
	}
	for _, col := range ds.ConflictColumns() {
		q = q.Order(col)
	}

	rows := []T{}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load %s: %w", ds.Table(), err)
	}
	return rows, nil
}
