package ctx

import (
	"github.com/valyala/fasthttp"

	dbpkg "adsinsight/internal/db"
)

const (
	UserKey      = "user"
	ClientKey    = "client"
	UserTokenKey = "userToken"
)

func SetUserToken(ctx *fasthttp.RequestCtx, token string) {
	ctx.SetUserValue(UserTokenKey, token)
}

func UserTokenFromCtx(ctx *fasthttp.RequestCtx) (string, bool) {
	v := ctx.UserValue(UserTokenKey)
	if v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func SetUser(ctx *fasthttp.RequestCtx, user *dbpkg.User) {
	ctx.SetUserValue(UserKey, user)
}

func UserFromCtx(ctx *fasthttp.RequestCtx) (*dbpkg.User, bool) {
	v := ctx.UserValue(UserKey)
	if v == nil {
		return nil, false
	}
	u, ok := v.(*dbpkg.User)
	return u, ok && u != nil
}

// SetClient stores the tenant an ownership-checked route operates on.
func SetClient(ctx *fasthttp.RequestCtx, client *dbpkg.Client) {
	ctx.SetUserValue(ClientKey, client)
}

func ClientFromCtx(ctx *fasthttp.RequestCtx) (*dbpkg.Client, bool) {
	v := ctx.UserValue(ClientKey)
	if v == nil {
		return nil, false
	}
	c, ok := v.(*dbpkg.Client)
	return c, ok && c != nil
}
