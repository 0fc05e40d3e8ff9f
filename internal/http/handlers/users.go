package handlers

import (
	"encoding/json"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"adsinsight/internal/config"
	dbpkg "adsinsight/internal/db"
)

type newUser struct {
	Username string     `json:"username"`
	Password string     `json:"password"`
	IsAdmin  bool       `json:"is_admin"`
	ClientID *uuid.UUID `json:"client_id"`
}

// CreateUser adds a console user. Admins create managers and admins;
// managers create read-only users bound to one of their own clients.
func CreateUser(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		caller, ok := MustUser(ctx)
		if !ok {
			return
		}

		var in newUser
		if err := json.Unmarshal(ctx.PostBody(), &in); err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, "invalid JSON body")
			return
		}
		if in.Username == "" || in.Password == "" {
			errResponse(ctx, fasthttp.StatusBadRequest, "username and password required")
			return
		}

		switch {
		case caller.ClientID != nil:
			errResponse(ctx, fasthttp.StatusForbidden, "client users cannot create users")
			return
		case in.ClientID == nil && !caller.IsAdmin:
			errResponse(ctx, fasthttp.StatusForbidden, "only admins can create managers")
			return
		case in.ClientID != nil:
			if in.IsAdmin {
				errResponse(ctx, fasthttp.StatusBadRequest, "a client user cannot be an admin")
				return
			}
			client, err := dbpkg.FindClient(ctx, db, *in.ClientID)
			if err != nil || !caller.CanAccess(client) {
				errResponse(ctx, fasthttp.StatusNotFound, "client not found")
				return
			}
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to hash password")
			return
		}

		user := &dbpkg.User{
			Username:     in.Username,
			PasswordHash: string(hash),
			IsAdmin:      in.IsAdmin && caller.IsAdmin,
			ClientID:     in.ClientID,
		}
		if err := db.WithContext(ctx).Create(user).Error; err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, "failed to create user (username may already exist)")
			return
		}

		ctx.SetStatusCode(fasthttp.StatusCreated)
		jsonResponse(ctx, map[string]any{"id": user.ID, "username": user.Username, "is_admin": user.IsAdmin, "client_id": user.ClientID})
	}
}

// DeleteUser removes a user. Admin only; the bootstrap admin is protected.
func DeleteUser(db *gorm.DB, cfg *config.Config) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		caller, ok := MustUser(ctx)
		if !ok {
			return
		}
		if !caller.IsAdmin {
			errResponse(ctx, fasthttp.StatusForbidden, "admin only")
			return
		}

		idStr, _ := ctx.UserValue("id").(string)
		id, err := strconv.ParseUint(idStr, 10, 32)
		if err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, "invalid user ID")
			return
		}

		var user dbpkg.User
		if err := db.WithContext(ctx).First(&user, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				errResponse(ctx, fasthttp.StatusNotFound, "user not found")
				return
			}
			errResponse(ctx, fasthttp.StatusInternalServerError, "database error")
			return
		}

		if user.Username == cfg.AdminUser {
			errResponse(ctx, fasthttp.StatusForbidden, "cannot delete bootstrap admin user")
			return
		}

		if err := db.WithContext(ctx).Delete(&user).Error; err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to delete user")
			return
		}

		ctx.SetStatusCode(fasthttp.StatusNoContent)
	}
}
