package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	dbpkg "adsinsight/internal/db"
	"adsinsight/internal/googleads"
	"adsinsight/internal/ingest"
)

// Puller runs a Google Ads pull for a client. *googleads.Syncer implements it.
type Puller interface {
	Sync(ctx context.Context, clientID uuid.UUID, start, end dbpkg.Date) (*ingest.Result, error)
}

// SyncClient pulls [start, end] from the Google Ads API. The window
// defaults to the last seven days.
func SyncClient(puller Puller) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		client, ok := MustClient(ctx)
		if !ok {
			return
		}

		start, err := dateParam(ctx, "start")
		if err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, err.Error())
			return
		}
		end, err := dateParam(ctx, "end")
		if err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, err.Error())
			return
		}
		if end == nil {
			y, m, d := time.Now().UTC().AddDate(0, 0, -1).Date()
			e := dbpkg.NewDate(y, m, d)
			end = &e
		}
		if start == nil {
			s := dbpkg.Date(end.Time().AddDate(0, 0, -6))
			start = &s
		}
		if start.Time().After(end.Time()) {
			errResponse(ctx, fasthttp.StatusBadRequest, "start must not be after end")
			return
		}

		res, err := puller.Sync(ctx, client.ID, *start, *end)
		var apiErr *googleads.APIError
		if errors.As(err, &apiErr) {
			ctx.SetStatusCode(fasthttp.StatusBadGateway)
			jsonResponse(ctx, map[string]any{"ok": false, "error": apiErr.Error()})
			return
		}
		if err != nil && ingest.CodeOf(err) == "" {
			ctx.SetStatusCode(fasthttp.StatusBadGateway)
			jsonResponse(ctx, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		ingestResponse(ctx, res, err)
	}
}
