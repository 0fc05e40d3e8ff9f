package handlers

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/valyala/fasthttp"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"adsinsight/internal/config"
	dbpkg "adsinsight/internal/db"
	appmw "adsinsight/internal/http/middleware"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// IssueToken exchanges a username and password for a bearer token.
func IssueToken(db *gorm.DB, cfg *config.Config) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var in credentials
		if err := json.Unmarshal(ctx.PostBody(), &in); err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, "invalid JSON body")
			return
		}
		if in.Username == "" || in.Password == "" {
			errResponse(ctx, fasthttp.StatusBadRequest, "username and password required")
			return
		}

		var user dbpkg.User
		if err := db.WithContext(ctx).Where("username = ?", in.Username).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				errResponse(ctx, fasthttp.StatusUnauthorized, "invalid username or password")
				return
			}
			errResponse(ctx, fasthttp.StatusInternalServerError, "database error")
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
			errResponse(ctx, fasthttp.StatusUnauthorized, "invalid username or password")
			return
		}

		token, expires, err := appmw.SignToken(cfg.JWTSecret, &user, cfg.TokenTTL, time.Now())
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to issue token")
			return
		}
		jsonResponse(ctx, map[string]any{"token": token, "expires_at": expires.UTC().Format(time.RFC3339)})
	}
}

type passwordChange struct {
	Current string `json:"current_password"`
	New     string `json:"new_password"`
}

// ChangePassword lets the authenticated user replace their own password.
func ChangePassword(db *gorm.DB, cfg *config.Config) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := MustUser(ctx)
		if !ok {
			return
		}
		if user.Username == cfg.AdminUser {
			errResponse(ctx, fasthttp.StatusForbidden, "cannot change password for bootstrap admin user")
			return
		}

		var in passwordChange
		if err := json.Unmarshal(ctx.PostBody(), &in); err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, "invalid JSON body")
			return
		}
		if in.Current == "" || in.New == "" {
			errResponse(ctx, fasthttp.StatusBadRequest, "current_password and new_password are required")
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Current)); err != nil {
			errResponse(ctx, fasthttp.StatusUnauthorized, "current password is incorrect")
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(in.New), bcrypt.DefaultCost)
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to hash password")
			return
		}
		if err := db.WithContext(ctx).Model(&dbpkg.User{}).Where("id = ?", user.ID).Update("password_hash", string(hash)).Error; err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to update password")
			return
		}

		ctx.SetStatusCode(fasthttp.StatusNoContent)
	}
}
