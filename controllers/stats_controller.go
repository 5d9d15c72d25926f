package controllers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/studymate/studymate/services"
	"github.com/studymate/studymate/utils"
)

// StatsController serves per-user study statistics.
type StatsController struct {
	svc      *services.StudyService
	cacheTTL time.Duration
}

// NewStatsController creates a StatsController; a zero ttl disables caching.
func NewStatsController(svc *services.StudyService, cacheTTL time.Duration) *StatsController {
	return &StatsController{svc: svc, cacheTTL: cacheTTL}
}

func statsCacheKey(userID uint) string {
	return fmt.Sprintf("cache:stats:user:%d", userID)
}

func invalidateStats(userID uint) {
	utils.CacheDelete(statsCacheKey(userID))
}

// Me returns aggregates for the caller, cached in Redis when configured.
func (s *StatsController) Me(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}

	key := statsCacheKey(userID)
	if s.cacheTTL > 0 {
		if b, ok := utils.CacheGetBytes(key); ok {
			ctx.Data(http.StatusOK, "application/json", b)
			return
		}
	}

	st, err := s.svc.Stats(ctx.Request.Context(), userID)
	if err != nil {
		respondServiceError(ctx, err, 50040, "failed to compute stats")
		return
	}

	if s.cacheTTL > 0 {
		utils.CacheSetJSON(key, utils.SuccessEnvelope(st), s.cacheTTL)
	}
	utils.Success(ctx, st)
}
