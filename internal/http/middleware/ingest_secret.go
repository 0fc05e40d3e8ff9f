package middleware

import (
	"crypto/subtle"

	"github.com/valyala/fasthttp"

	"adsinsight/internal/config"
)

// IngestSecretHeader carries the shared secret of the script webhook.
const IngestSecretHeader = "X-Ingest-Secret"

// IngestSecret guards machine-to-machine ingest routes with a shared
// secret. With no secret configured every call is rejected.
func IngestSecret(cfg *config.Config) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	secret := []byte(cfg.IngestSecret)
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			if len(secret) == 0 {
				ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
				ctx.SetBodyString("ingest secret is not configured")
				return
			}
			got := ctx.Request.Header.Peek(IngestSecretHeader)
			if subtle.ConstantTimeCompare(got, secret) != 1 {
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				ctx.SetBodyString("invalid ingest secret")
				return
			}
			next(ctx)
		}
	}
}
