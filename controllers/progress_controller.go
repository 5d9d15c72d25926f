package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/studymate/studymate/services"
	"github.com/studymate/studymate/utils"
)

// ProgressController reports streak and reputation history.
type ProgressController struct {
	svc *services.StudyService
}

// NewProgressController creates a ProgressController.
func NewProgressController(svc *services.StudyService) *ProgressController {
	return &ProgressController{svc: svc}
}

// Streak returns the caller's current and longest streak.
func (p *ProgressController) Streak(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	streak, err := p.svc.Streak(ctx.Request.Context(), userID)
	if err != nil {
		respondServiceError(ctx, err, 50030, "failed to load streak")
		return
	}
	utils.Success(ctx, gin.H{
		"current":         streak.Current,
		"longest":         streak.Longest,
		"last_study_date": streak.LastStudyDate,
	})
}

// Policy returns the point awards the server applies.
func (p *ProgressController) Policy(ctx *gin.Context) {
	utils.Success(ctx, p.svc.Policy())
}

// Reputation pages through the caller's point ledger.
func (p *ProgressController) Reputation(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))

	items, total, err := p.svc.Ledger(ctx.Request.Context(), userID, page, pageSize)
	if err != nil {
		respondServiceError(ctx, err, 50031, "failed to load reputation")
		return
	}
	st, err := p.svc.Stats(ctx.Request.Context(), userID)
	if err != nil {
		respondServiceError(ctx, err, 50031, "failed to load reputation")
		return
	}
	utils.Success(ctx, gin.H{
		"points":     st.Points,
		"items":      items,
		"pagination": pagination(page, pageSize, total),
	})
}
