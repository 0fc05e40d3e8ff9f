package db

import (
	"time"

	"github.com/google/uuid"
)

// User represents a console user. Managers (IsAdmin=false, ClientID=nil)
// onboard and own clients; client users are bound to exactly one client and
// may only read it. The bootstrap admin (from env) is created as a row in
// this table on startup.
type User struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time
	UpdatedAt time.Time

	Username     string `gorm:"uniqueIndex;size:64;not null"`
	PasswordHash string `gorm:"size:255;not null"`

	// IsAdmin grants access to every client.
	IsAdmin bool `gorm:"default:false"`

	// ClientID binds a client-side user to the tenant it may read.
	ClientID *uuid.UUID `gorm:"type:uuid"`
}

// Client is one tenant of the console. Every canonical record is scoped by
// its id.
type Client struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name string `gorm:"size:255;not null" json:"name"`

	// ManagerID is the agency user that onboarded the client.
	ManagerID uint `gorm:"index;not null" json:"manager_id"`

	// GoogleAdsCustomerID is the ten-digit account id used by the API pull,
	// stored without dashes.
	GoogleAdsCustomerID string `gorm:"size:32;not null;default:''" json:"google_ads_customer_id"`
}

// CanAccess reports whether the user may read or ingest for the client.
func (u *User) CanAccess(c *Client) bool {
	if u == nil || c == nil {
		return false
	}
	if u.IsAdmin || c.ManagerID == u.ID {
		return true
	}
	return u.ClientID != nil && *u.ClientID == c.ID
}
