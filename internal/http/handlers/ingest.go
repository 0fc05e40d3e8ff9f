package handlers

import (
	"context"
	"io"
	"strings"

	"github.com/valyala/fasthttp"

	"adsinsight/internal/ingest"
)

// Ingester runs one ingest request. *ingest.Coordinator implements it.
type Ingester interface {
	Run(ctx context.Context, req ingest.Request) (*ingest.Result, error)
}

// BulkIngest accepts the JSON webhook posted by the ads script.
func BulkIngest(runner Ingester) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		payload, err := ingest.ParseBulkPayload(ctx.PostBody())
		if err != nil {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			jsonResponse(ctx, map[string]any{"ok": false, "error": "invalid JSON body"})
			return
		}

		req, err := payload.Request()
		if err != nil {
			ingestResponse(ctx, nil, err)
			return
		}

		res, err := runner.Run(ctx, req)
		ingestResponse(ctx, res, err)
	}
}

// UploadCSV imports a multipart CSV or XLSX file for the route's client.
func UploadCSV(runner Ingester) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		client, ok := MustClient(ctx)
		if !ok {
			return
		}

		fh, err := ctx.FormFile("file")
		if err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, "file is required")
			return
		}
		f, err := fh.Open()
		if err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, "cannot open uploaded file")
			return
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, "cannot read uploaded file")
			return
		}

		applyTo, err := ingest.ParseApplyTo(string(ctx.FormValue("applyTo")))
		if err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, err.Error())
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

		table, err := ingest.DecodeFile(fh.Filename, data)
		if err != nil {
			ingestResponse(ctx, nil, err)
			return
		}

		upload := ingest.Upload{
			ClientID:   client.ID,
			FileName:   fh.Filename,
			ReportName: strings.TrimSpace(string(ctx.FormValue("reportName"))),
			ApplyTo:    applyTo,
			Fallback: ingest.Fallback{
				Start:        start,
				End:          end,
				CampaignID:   strings.TrimSpace(string(ctx.FormValue("campaignId"))),
				CampaignName: strings.TrimSpace(string(ctx.FormValue("campaignName"))),
			},
		}
		res, err := runner.Run(ctx, upload.Request(table))
		ingestResponse(ctx, res, err)
	}
}
