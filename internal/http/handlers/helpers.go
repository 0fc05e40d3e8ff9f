package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"

	dbpkg "adsinsight/internal/db"
	httpctx "adsinsight/internal/http/ctx"
	"adsinsight/internal/ingest"
)

// MustUser returns the current user from context, or sends 401 and returns (nil, false).
func MustUser(ctx *fasthttp.RequestCtx) (*dbpkg.User, bool) {
	user, ok := httpctx.UserFromCtx(ctx)
	if !ok {
		ctx.SetStatusCode(fasthttp.StatusUnauthorized)
		ctx.SetBodyString("unauthorized")
		return nil, false
	}
	return user, true
}

// MustClient returns the ownership-checked client, or sends 404.
func MustClient(ctx *fasthttp.RequestCtx) (*dbpkg.Client, bool) {
	client, ok := httpctx.ClientFromCtx(ctx)
	if !ok {
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		ctx.SetBodyString("client not found")
		return nil, false
	}
	return client, true
}

// RequestLogger returns fasthttp middleware that logs method, path, status, duration.
func RequestLogger(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		next(ctx)
		log.Printf("%s %s -> %d (%s) ip=%s", ctx.Method(), ctx.Path(), ctx.Response.StatusCode(), time.Since(start), ctx.RemoteAddr())
	}
}

func jsonResponse(ctx *fasthttp.RequestCtx, data map[string]any) {
	ctx.SetContentType("application/json")
	body, _ := json.Marshal(data)
	ctx.SetBody(body)
}

func errResponse(ctx *fasthttp.RequestCtx, code int, msg string) {
	ctx.SetStatusCode(code)
	ctx.SetBodyString(msg)
}

// ingestResponse writes the outcome of a coordinator run. Failures keep the
// partial summary when the raw import was created.
func ingestResponse(ctx *fasthttp.RequestCtx, res *ingest.Result, err error) {
	if err == nil {
		jsonResponse(ctx, map[string]any{
			"ok":            true,
			"importId":      res.ImportID,
			"status":        res.Status,
			"appliedAt":     res.AppliedAt,
			"appliedTables": res.AppliedTables,
			"applySummary":  res.Summary,
		})
		return
	}

	status := fasthttp.StatusInternalServerError
	code := ingest.CodeOf(err)
	var ierr *ingest.Error
	if errors.As(err, &ierr) {
		status = ierr.HTTPStatus()
	}
	body := map[string]any{
		"ok":    false,
		"code":  code,
		"error": err.Error(),
	}
	if res != nil {
		body["importId"] = res.ImportID
		body["appliedTables"] = res.AppliedTables
		body["applySummary"] = res.Summary
	}
	ctx.SetStatusCode(status)
	jsonResponse(ctx, body)
}

// dateParam parses an optional YYYY-MM-DD (or D/M/YYYY) request value.
func dateParam(ctx *fasthttp.RequestCtx, name string) (*dbpkg.Date, error) {
	raw := string(ctx.FormValue(name))
	if raw == "" {
		return nil, nil
	}
	d, ok := ingest.ParseDate(raw)
	if !ok {
		return nil, errors.New("invalid " + name + " date " + strconv.Quote(raw))
	}
	return &d, nil
}

func pageArgs(ctx *fasthttp.RequestCtx) (limit, offset int) {
	limit = 20
	if s := string(ctx.QueryArgs().Peek("limit")); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			if n > 200 {
				n = 200
			}
			limit = n
		}
	}
	if s := string(ctx.QueryArgs().Peek("offset")); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
