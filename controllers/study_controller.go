package controllers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/studymate/studymate/models"
	"github.com/studymate/studymate/services"
	"github.com/studymate/studymate/utils"
)

// StudyController exposes the study-record lifecycle.
type StudyController struct {
	svc *services.StudyService
}

// NewStudyController creates a StudyController.
func NewStudyController(svc *services.StudyService) *StudyController {
	return &StudyController{svc: svc}
}

// Start opens a new ongoing study record.
func (s *StudyController) Start(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}

	type request struct {
		SubjectID         string `json:"subject_id"`
		Topic             string `json:"topic"`
		EstimatedDuration int    `json:"estimated_duration"`
	}
	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40011, "invalid request payload")
		return
	}

	sess, err := s.svc.Start(ctx.Request.Context(), userID, services.StartInput{
		SubjectID:         req.SubjectID,
		Topic:             req.Topic,
		EstimatedDuration: req.EstimatedDuration,
	})
	if err != nil {
		respondServiceError(ctx, err, 50020, "failed to start study record")
		return
	}
	invalidateStats(userID)

	utils.Success(ctx, gin.H{
		"record_id": sess.ID,
		"record":    sess,
	})
}

// Pause suspends an ongoing record and counts a break.
func (s *StudyController) Pause(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	sess, err := s.svc.Pause(ctx.Request.Context(), userID, ctx.Param("id"))
	if err != nil {
		respondServiceError(ctx, err, 50021, "failed to pause study record")
		return
	}
	utils.Success(ctx, gin.H{
		"breaks": sess.Breaks,
		"record": sess,
	})
}

// Resume continues a paused record.
func (s *StudyController) Resume(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	sess, err := s.svc.Resume(ctx.Request.Context(), userID, ctx.Param("id"))
	if err != nil {
		respondServiceError(ctx, err, 50022, "failed to resume study record")
		return
	}
	utils.Success(ctx, gin.H{"record": sess})
}

// Pomodoro records a finished focus interval.
func (s *StudyController) Pomodoro(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}

	type request struct {
		FocusRating   int `json:"focus_rating"`
		PomodoroCount int `json:"pomodoro_count"`
	}
	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40012, "invalid request payload")
		return
	}

	res, err := s.svc.CompletePomodoro(ctx.Request.Context(), userID, ctx.Param("id"), services.PomodoroInput{
		FocusRating: req.FocusRating,
		ClientCount: req.PomodoroCount,
	})
	if err != nil {
		respondServiceError(ctx, err, 50023, "failed to record pomodoro")
		return
	}

	data := gin.H{
		"pomodoro_count": res.Session.PomodoroCount,
		"record":         res.Session,
	}
	if res.Milestone != nil {
		invalidateStats(userID)
		data["milestone"] = gin.H{
			"message": fmt.Sprintf("%s: +%d points", res.Milestone.Detail, res.Milestone.Points),
			"points":  res.Milestone.Points,
		}
	}
	utils.Success(ctx, data)
}

// Complete finalizes a record and returns the reward and streak it produced.
func (s *StudyController) Complete(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}

	type request struct {
		Notes           string   `json:"notes"`
		Tags            []string `json:"tags"`
		FinalFocusScore int      `json:"final_focus_score"`
		ElapsedSeconds  int      `json:"elapsed_seconds"`
		PomodoroCount   int      `json:"pomodoro_count"`
	}
	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40013, "invalid request payload")
		return
	}

	res, err := s.svc.Complete(ctx.Request.Context(), userID, ctx.Param("id"), services.CompleteInput{
		Notes:          req.Notes,
		Tags:           req.Tags,
		FocusScore:     req.FinalFocusScore,
		ElapsedSeconds: req.ElapsedSeconds,
		PomodoroCount:  req.PomodoroCount,
	})
	if err != nil {
		respondServiceError(ctx, err, 50024, "failed to complete study record")
		return
	}
	invalidateStats(userID)

	breakdown := res.Awards
	if breakdown == nil {
		breakdown = []services.Award{}
	}
	utils.Success(ctx, gin.H{
		"record": res.Session,
		"streak": gin.H{
			"current": res.Streak.Current,
			"longest": res.Streak.Longest,
		},
		"reputation": gin.H{
			"points":    res.TotalPoints,
			"awarded":   res.PointsAwarded,
			"breakdown": breakdown,
		},
	})
}

// Cancel abandons an active record.
func (s *StudyController) Cancel(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	sess, err := s.svc.Cancel(ctx.Request.Context(), userID, ctx.Param("id"))
	if err != nil {
		respondServiceError(ctx, err, 50025, "failed to cancel study record")
		return
	}
	invalidateStats(userID)
	utils.Success(ctx, gin.H{"record": sess})
}

// Get returns one of the caller's records.
func (s *StudyController) Get(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	sess, err := s.svc.Get(ctx.Request.Context(), userID, ctx.Param("id"))
	if err != nil {
		respondServiceError(ctx, err, 50026, "failed to load study record")
		return
	}
	utils.Success(ctx, sess)
}

// List pages through the caller's records.
func (s *StudyController) List(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}

	status := strings.TrimSpace(ctx.Query("status"))
	if status != "" && !validStatus(status) {
		utils.Error(ctx, http.StatusBadRequest, 40014, "unknown status filter")
		return
	}
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))

	items, total, err := s.svc.List(ctx.Request.Context(), userID, status, page, pageSize)
	if err != nil {
		respondServiceError(ctx, err, 50027, "failed to list study records")
		return
	}
	utils.Success(ctx, gin.H{
		"items":      items,
		"pagination": pagination(page, pageSize, total),
	})
}

func validStatus(s string) bool {
	switch models.SessionStatus(s) {
	case models.StatusScheduled, models.StatusOngoing, models.StatusPaused, models.StatusCompleted, models.StatusCancelled:
		return true
	}
	return false
}
