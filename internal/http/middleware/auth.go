package middleware

import (
	"bytes"
	"errors"
	"strings"

	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	"adsinsight/internal/config"
	dbpkg "adsinsight/internal/db"
	httpctx "adsinsight/internal/http/ctx"
)

// UserLoader resolves the user a verified token was issued for.
type UserLoader func(ctx *fasthttp.RequestCtx, id uint) (*dbpkg.User, error)

// GormUsers loads users by primary key.
func GormUsers(db *gorm.DB) UserLoader {
	return func(ctx *fasthttp.RequestCtx, id uint) (*dbpkg.User, error) {
		var user dbpkg.User
		if err := db.WithContext(ctx).First(&user, id).Error; err != nil {
			return nil, err
		}
		return &user, nil
	}
}

// BearerAuth validates end-user JWTs and sets the token's user on the context.
func BearerAuth(users UserLoader, cfg *config.Config) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			auth := ctx.Request.Header.Peek("Authorization")
			if len(auth) == 0 {
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				ctx.SetBodyString("missing Authorization header")
				return
			}

			const prefix = "Bearer "
			if !bytes.HasPrefix(auth, []byte(prefix)) {
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				ctx.SetBodyString("invalid Authorization header")
				return
			}

			token := strings.TrimSpace(string(auth[len(prefix):]))
			if token == "" {
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				ctx.SetBodyString("empty bearer token")
				return
			}

			userID, err := ParseToken(cfg.JWTSecret, token)
			if err != nil {
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				ctx.SetBodyString("invalid or expired token")
				return
			}

			user, err := users(ctx, userID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					ctx.SetStatusCode(fasthttp.StatusUnauthorized)
					ctx.SetBodyString("unknown user")
					return
				}
				ctx.SetStatusCode(fasthttp.StatusInternalServerError)
				ctx.SetBodyString("database error")
				return
			}

			httpctx.SetUserToken(ctx, token)
			httpctx.SetUser(ctx, user)
			next(ctx)
		}
	}
}
