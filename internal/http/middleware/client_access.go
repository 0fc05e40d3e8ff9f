package middleware

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	dbpkg "adsinsight/internal/db"
	httpctx "adsinsight/internal/http/ctx"
)

// ClientLoader resolves a tenant by id.
type ClientLoader func(ctx context.Context, id uuid.UUID) (*dbpkg.Client, error)

// ClientAccess loads the {clientId} route parameter and lets the request
// through only when the authenticated user may access that client. It must
// run after BearerAuth.
func ClientAccess(clients ClientLoader) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			user, ok := httpctx.UserFromCtx(ctx)
			if !ok {
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				ctx.SetBodyString("unauthorized")
				return
			}

			raw, _ := ctx.UserValue("clientId").(string)
			id, err := uuid.Parse(raw)
			if err != nil {
				ctx.SetStatusCode(fasthttp.StatusBadRequest)
				ctx.SetBodyString("invalid client ID")
				return
			}

			client, err := clients(ctx, id)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					ctx.SetStatusCode(fasthttp.StatusNotFound)
					ctx.SetBodyString("client not found")
					return
				}
				ctx.SetStatusCode(fasthttp.StatusInternalServerError)
				ctx.SetBodyString("database error")
				return
			}

			// Unknown and foreign clients answer the same way.
			if !user.CanAccess(client) {
				ctx.SetStatusCode(fasthttp.StatusNotFound)
				ctx.SetBodyString("client not found")
				return
			}

			httpctx.SetClient(ctx, client)
			next(ctx)
		}
	}
}
