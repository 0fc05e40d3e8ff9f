package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	"adsinsight/internal/config"
	dbpkg "adsinsight/internal/db"
	httpctx "adsinsight/internal/http/ctx"
)

func run(mw func(fasthttp.RequestHandler) fasthttp.RequestHandler, setup func(*fasthttp.RequestCtx)) (*fasthttp.RequestCtx, bool) {
	var req fasthttp.Request
	ctx := &fasthttp.RequestCtx{}
	ctx.Init(&req, nil, nil)
	if setup != nil {
		setup(ctx)
	}
	called := false
	mw(func(*fasthttp.RequestCtx) { called = true })(ctx)
	return ctx, called
}

func TestIngestSecret(t *testing.T) {
	cases := []struct {
		name   string
		secret string
		header string
		status int
		pass   bool
	}{
		{"disabled", "", "anything", fasthttp.StatusServiceUnavailable, false},
		{"missing header", "s3cret", "", fasthttp.StatusUnauthorized, false},
		{"wrong", "s3cret", "s3cre", fasthttp.StatusUnauthorized, false},
		{"match", "s3cret", "s3cret", fasthttp.StatusOK, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &config.Config{IngestSecret: tc.secret}
			ctx, called := run(IngestSecret(cfg), func(ctx *fasthttp.RequestCtx) {
				if tc.header != "" {
					ctx.Request.Header.Set(IngestSecretHeader, tc.header)
				}
			})
			if called != tc.pass || ctx.Response.StatusCode() != tc.status {
				t.Fatalf("called=%v status=%d", called, ctx.Response.StatusCode())
			}
		})
	}
}

func users(known ...dbpkg.User) UserLoader {
	return func(_ *fasthttp.RequestCtx, id uint) (*dbpkg.User, error) {
		for i := range known {
			if known[i].ID == id {
				u := known[i]
				return &u, nil
			}
		}
		return nil, gorm.ErrRecordNotFound
	}
}

func TestBearerAuth(t *testing.T) {
	cfg := &config.Config{JWTSecret: "jwt-secret"}
	alice := dbpkg.User{ID: 7, Username: "alice"}
	loader := users(alice)

	good, _, err := SignToken(cfg.JWTSecret, &alice, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("SignToken: %v", err)
	}
	expired, _, _ := SignToken(cfg.JWTSecret, &alice, time.Hour, time.Now().Add(-2*time.Hour))
	foreign, _, _ := SignToken("other-secret", &alice, time.Hour, time.Now())
	ghost, _, _ := SignToken(cfg.JWTSecret, &dbpkg.User{ID: 99, Username: "ghost"}, time.Hour, time.Now())

	cases := []struct {
		name   string
		header string
		pass   bool
	}{
		{"missing", "", false},
		{"not bearer", "Basic abc", false},
		{"empty", "Bearer  ", false},
		{"expired", "Bearer " + expired, false},
		{"wrong key", "Bearer " + foreign, false},
		{"unknown user", "Bearer " + ghost, false},
		{"valid", "Bearer " + good, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx, called := run(BearerAuth(loader, cfg), func(ctx *fasthttp.RequestCtx) {
				if tc.header != "" {
					ctx.Request.Header.Set("Authorization", tc.header)
				}
			})
			if called != tc.pass {
				t.Fatalf("called=%v status=%d body=%s", called, ctx.Response.StatusCode(), ctx.Response.Body())
			}
			if !tc.pass && ctx.Response.StatusCode() != fasthttp.StatusUnauthorized {
				t.Fatalf("status = %d", ctx.Response.StatusCode())
			}
			if tc.pass {
				if u, ok := httpctx.UserFromCtx(ctx); !ok || u.ID != alice.ID {
					t.Fatalf("user = %+v", u)
				}
			}
		})
	}
}

func TestParseTokenRejectsNoneAlgorithm(t *testing.T) {
	// {"alg":"none"} header with a valid-looking payload and no signature.
	raw := "eyJhbGciOiJub25lIiwidHlwIjoiSldUIn0.eyJzdWIiOiI3IiwiaXNzIjoiYWRzaW5zaWdodCJ9."
	if _, err := ParseToken("jwt-secret", raw); err == nil {
		t.Fatal("unsigned token accepted")
	}
}

func TestClientAccess(t *testing.T) {
	owned := &dbpkg.Client{ID: uuid.New(), ManagerID: 1}
	foreign := &dbpkg.Client{ID: uuid.New(), ManagerID: 2}
	clients := func(_ context.Context, id uuid.UUID) (*dbpkg.Client, error) {
		for _, c := range []*dbpkg.Client{owned, foreign} {
			if c.ID == id {
				return c, nil
			}
		}
		return nil, gorm.ErrRecordNotFound
	}
	manager := &dbpkg.User{ID: 1}
	bound := &dbpkg.User{ID: 3, ClientID: &foreign.ID}

	cases := []struct {
		name   string
		user   *dbpkg.User
		param  string
		status int
		pass   bool
	}{
		{"anonymous", nil, owned.ID.String(), fasthttp.StatusUnauthorized, false},
		{"bad id", manager, "nope", fasthttp.StatusBadRequest, false},
		{"unknown", manager, uuid.NewString(), fasthttp.StatusNotFound, false},
		{"foreign", manager, foreign.ID.String(), fasthttp.StatusNotFound, false},
		{"owner", manager, owned.ID.String(), fasthttp.StatusOK, true},
		{"bound client user", bound, foreign.ID.String(), fasthttp.StatusOK, true},
		{"bound user elsewhere", bound, owned.ID.String(), fasthttp.StatusNotFound, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx, called := run(ClientAccess(clients), func(ctx *fasthttp.RequestCtx) {
				if tc.user != nil {
					httpctx.SetUser(ctx, tc.user)
				}
				ctx.SetUserValue("clientId", tc.param)
			})
			if called != tc.pass || ctx.Response.StatusCode() != tc.status {
				t.Fatalf("called=%v status=%d", called, ctx.Response.StatusCode())
			}
			if tc.pass {
				if c, ok := httpctx.ClientFromCtx(ctx); !ok || c.ID.String() != tc.param {
					t.Fatalf("client = %+v", c)
				}
			}
		})
	}
}
