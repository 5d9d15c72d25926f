package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/studymate/studymate/middleware"
	"github.com/studymate/studymate/services"
	"github.com/studymate/studymate/utils"
)

func parsePagination(pageStr, sizeStr string) (int, int) {
	page := 1
	pageSize := 10
	if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
		page = p
	}
	if s, err := strconv.Atoi(sizeStr); err == nil && s > 0 && s <= 100 {
		pageSize = s
	}
	return page, pageSize
}

func pagination(page, pageSize int, total int64) gin.H {
	return gin.H{
		"page":        page,
		"page_size":   pageSize,
		"total":       total,
		"total_pages": int((total + int64(pageSize) - 1) / int64(pageSize)),
	}
}

func getUserID(ctx *gin.Context) (uint, bool) {
	value, exists := ctx.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		return v, v != 0
	case int:
		return uint(v), v > 0
	case int64:
		return uint(v), v > 0
	case float64:
		return uint(v), v > 0
	default:
		return 0, false
	}
}

// requireUser writes a 401 and returns false when the request carries no identity.
func requireUser(ctx *gin.Context) (uint, bool) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
	}
	return userID, ok
}

// respondServiceError maps service sentinels onto HTTP statuses and numeric codes.
func respondServiceError(ctx *gin.Context, err error, fallbackCode int, fallbackMsg string) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		utils.Error(ctx, http.StatusBadRequest, 40010, verr.Error())
	case errors.Is(err, services.ErrValidation):
		utils.Error(ctx, http.StatusBadRequest, 40010, err.Error())
	case errors.Is(err, services.ErrNotFound):
		utils.Error(ctx, http.StatusNotFound, 40420, "study record not found")
	case errors.Is(err, services.ErrForbidden):
		utils.Error(ctx, http.StatusForbidden, 40320, "study record belongs to another user")
	case errors.Is(err, services.ErrInvalidState):
		utils.Error(ctx, http.StatusConflict, 40920, err.Error())
	case errors.Is(err, services.ErrBusy):
		utils.Error(ctx, http.StatusLocked, 42301, err.Error())
	default:
		utils.Logger.Error(fallbackMsg, zap.Error(err), zap.String("path", ctx.FullPath()))
		utils.Error(ctx, http.StatusInternalServerError, fallbackCode, fallbackMsg)
	}
}
