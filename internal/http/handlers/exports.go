package handlers

import (
	"log"
	"strconv"

	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	"adsinsight/internal/config"
	dbpkg "adsinsight/internal/db"
	"adsinsight/internal/export"
)

func exportScope(ctx *fasthttp.RequestCtx, client *dbpkg.Client) (export.Scope, bool) {
	start, err := dateParam(ctx, "start")
	if err != nil {
		errResponse(ctx, fasthttp.StatusBadRequest, err.Error())
		return export.Scope{}, false
	}
	end, err := dateParam(ctx, "end")
	if err != nil {
		errResponse(ctx, fasthttp.StatusBadRequest, err.Error())
		return export.Scope{}, false
	}
	return export.Scope{ClientID: client.ID, Start: start, End: end}, true
}

func sendFile(ctx *fasthttp.RequestCtx, f *export.File) {
	ctx.SetContentType(f.ContentType)
	ctx.Response.Header.Set("Content-Disposition", "attachment; filename="+strconv.Quote(f.Name))
	ctx.Response.Header.Set("Cache-Control", "no-store")
	ctx.SetBody(f.Body)
}

// ExportDataset serves one canonical table as CSV or XLSX.
func ExportDataset(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		client, ok := MustClient(ctx)
		if !ok {
			return
		}
		name, _ := ctx.UserValue("dataset").(string)
		ds, ok := dbpkg.ParseDataset(name)
		if !ok {
			errResponse(ctx, fasthttp.StatusNotFound, "unknown dataset")
			return
		}
		format, err := export.ParseFormat(string(ctx.QueryArgs().Peek("format")))
		if err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, err.Error())
			return
		}
		scope, ok := exportScope(ctx, client)
		if !ok {
			return
		}

		f, err := export.Dataset(ctx, db, ds, scope, format)
		if err != nil {
			log.Printf("export %s client=%s: %v", ds, client.ID, err)
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to export "+string(ds))
			return
		}
		sendFile(ctx, f)
	}
}

// ExportBundle serves every dataset as CSV inside export.zip.
func ExportBundle(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		client, ok := MustClient(ctx)
		if !ok {
			return
		}
		scope, ok := exportScope(ctx, client)
		if !ok {
			return
		}

		f, err := export.Bundle(ctx, db, scope)
		if err != nil {
			log.Printf("export bundle client=%s: %v", client.ID, err)
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to build export")
			return
		}
		sendFile(ctx, f)
	}
}

// KPIs serves campaign rollups with derived rates and wasted-spend flags.
func KPIs(db *gorm.DB, cfg *config.Config) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		client, ok := MustClient(ctx)
		if !ok {
			return
		}
		scope, ok := exportScope(ctx, client)
		if !ok {
			return
		}

		report, err := dbpkg.LoadKPIs(ctx, db, client.ID, scope.Start, scope.End, cfg.Policy)
		if err != nil {
			log.Printf("kpis client=%s: %v", client.ID, err)
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to query kpis")
			return
		}
		jsonResponse(ctx, map[string]any{"report": report})
	}
}
