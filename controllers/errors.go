package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/relay/middleware"
	"github.com/cppla/relay/services"
	"github.com/cppla/relay/utils"
)

// respondError maps service failures onto HTTP responses. Unknown errors become a logged 500.
func respondError(ctx *gin.Context, err error, what string) {
	var ve *services.ValidationError
	var dup *services.DuplicateError
	switch {
	case errors.As(err, &ve):
		utils.Error(ctx, http.StatusBadRequest, 40001, ve.Message)
	case errors.As(err, &dup):
		utils.Error(ctx, http.StatusConflict, 40901, dup.Error())
	case errors.Is(err, services.ErrInvalidCredentials):
		utils.Error(ctx, http.StatusUnauthorized, 40110, "invalid email or password")
	case errors.Is(err, services.ErrAccountDeactivated):
		utils.Error(ctx, http.StatusUnauthorized, 40106, "account is deactivated")
	case errors.Is(err, services.ErrForbidden):
		utils.Error(ctx, http.StatusForbidden, 40301, "only the creator may modify this "+what)
	case errors.Is(err, services.ErrUserNotFound):
		utils.Error(ctx, http.StatusNotFound, 40401, "user not found")
	case errors.Is(err, services.ErrNotFound):
		utils.Error(ctx, http.StatusNotFound, 40402, what+" not found")
	default:
		utils.Logger.Error("request failed",
			zap.Error(err),
			zap.String("method", ctx.Request.Method),
			zap.String("path", ctx.FullPath()),
			zap.String("request_id", ctx.GetString(utils.ContextRequestIDKey)))
		utils.Error(ctx, http.StatusInternalServerError, 50000, "internal server error")
	}
}

func badPayload(ctx *gin.Context) {
	utils.Error(ctx, http.StatusBadRequest, 40000, "invalid request payload")
}

func currentUserID(ctx *gin.Context) (uint, bool) {
	id, ok := middleware.CurrentIdentity(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40101, "no token provided, authorization denied")
		return 0, false
	}
	return id.UserID, true
}
