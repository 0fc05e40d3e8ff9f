package handlers

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	dbpkg "adsinsight/internal/db"
)

var customerIDPattern = regexp.MustCompile(`^\d{10}$`)

type newClient struct {
	Name                string `json:"name"`
	GoogleAdsCustomerID string `json:"google_ads_customer_id"`
}

// CreateClient onboards a tenant owned by the calling manager.
func CreateClient(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := MustUser(ctx)
		if !ok {
			return
		}
		if user.ClientID != nil {
			errResponse(ctx, fasthttp.StatusForbidden, "client users cannot onboard clients")
			return
		}

		var in newClient
		if err := json.Unmarshal(ctx.PostBody(), &in); err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, "invalid JSON body")
			return
		}
		in.Name = strings.TrimSpace(in.Name)
		if in.Name == "" {
			errResponse(ctx, fasthttp.StatusBadRequest, "name is required")
			return
		}
		customerID := strings.ReplaceAll(strings.TrimSpace(in.GoogleAdsCustomerID), "-", "")
		if customerID != "" && !customerIDPattern.MatchString(customerID) {
			errResponse(ctx, fasthttp.StatusBadRequest, "google_ads_customer_id must have 10 digits")
			return
		}

		client := &dbpkg.Client{
			ID:                  uuid.New(),
			Name:                in.Name,
			ManagerID:           user.ID,
			GoogleAdsCustomerID: customerID,
		}
		if err := db.WithContext(ctx).Create(client).Error; err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to create client")
			return
		}

		ctx.SetStatusCode(fasthttp.StatusCreated)
		jsonResponse(ctx, map[string]any{"client": client})
	}
}

// ListClients returns the clients visible to the caller.
func ListClients(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := MustUser(ctx)
		if !ok {
			return
		}
		clients, err := dbpkg.VisibleClients(ctx, db, user)
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to query clients")
			return
		}
		jsonResponse(ctx, map[string]any{"clients": clients})
	}
}

// ListImports pages through the client's raw imports, newest first.
func ListImports(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		client, ok := MustClient(ctx)
		if !ok {
			return
		}
		limit, offset := pageArgs(ctx)

		imports, total, err := dbpkg.RecentImports(ctx, db, client.ID, limit, offset)
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to query imports")
			return
		}

		hasMore := offset+limit < int(total)
		jsonResponse(ctx, map[string]any{"imports": imports, "total": total, "has_more": hasMore})
	}
}
