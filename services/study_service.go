package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/studymate/studymate/config"
	"github.com/studymate/studymate/models"
	"github.com/studymate/studymate/utils"
)

// StudyService owns every study-session transition and the reward side effects of completion.
type StudyService struct {
	db           *gorm.DB
	policy       RewardPolicy
	locker       Locker
	loc          *time.Location
	now          func() time.Time
	minSession   time.Duration
	lockTTL      time.Duration
	defaultEst   int
	maxEstimated int
	maxTags      int
	maxNotes     int
}

// Option customizes a StudyService.
type Option func(*StudyService)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *StudyService) { s.now = now }
}

// WithLocker replaces the default locker.
func WithLocker(l Locker) Option {
	return func(s *StudyService) { s.locker = l }
}

// NewStudyService creates a service bound to db and configured by cfg.
func NewStudyService(db *gorm.DB, cfg config.AppConfig, opts ...Option) *StudyService {
	s := &StudyService{
		db:           db,
		policy:       PolicyFromConfig(cfg),
		loc:          cfg.Location(),
		now:          time.Now,
		minSession:   time.Duration(cfg.MinSessionSeconds) * time.Second,
		lockTTL:      time.Duration(cfg.SessionLockSeconds) * time.Second,
		defaultEst:   cfg.PomodoroMinutes,
		maxEstimated: cfg.MaxEstimatedMinutes,
		maxTags:      cfg.MaxTagsPerSession,
		maxNotes:     cfg.MaxNotesLength,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.locker == nil {
		s.locker = NewLocker()
	}
	return s
}

// Policy exposes the active reward policy.
func (s *StudyService) Policy() RewardPolicy {
	return s.policy
}

// StartInput is the payload of a start request.
type StartInput struct {
	SubjectID         string
	Topic             string
	EstimatedDuration int // minutes; 0 means one pomodoro
}

// Start creates an ongoing session for userID.
func (s *StudyService) Start(ctx context.Context, userID uint, in StartInput) (*models.StudySession, error) {
	subject := utils.TruncateRunes(utils.SanitizeText(in.SubjectID), 64)
	topic := utils.TruncateRunes(utils.SanitizeText(in.Topic), 255)
	if subject == "" {
		return nil, invalid("subject_id", "is required")
	}
	if topic == "" {
		return nil, invalid("topic", "is required")
	}
	est := in.EstimatedDuration
	if est < 0 || est > s.maxEstimated {
		return nil, invalid("estimated_duration", fmt.Sprintf("must be between 0 and %d minutes", s.maxEstimated))
	}
	if est == 0 {
		est = s.defaultEst
	}

	sess := &models.StudySession{
		UserID:            userID,
		SubjectID:         subject,
		Topic:             topic,
		EstimatedDuration: est,
		Status:            models.StatusOngoing,
		StartTime:         s.now(),
		Tags:              models.StringList{},
	}
	if err := s.db.WithContext(ctx).Create(sess).Error; err != nil {
		return nil, fmt.Errorf("create study session: %w", err)
	}
	utils.Logger.Info("study session started",
		zap.Uint("user_id", userID), zap.String("session_id", sess.ID))
	return sess, nil
}

// Pause moves an ongoing session to paused and counts a break.
func (s *StudyService) Pause(ctx context.Context, userID uint, id string) (*models.StudySession, error) {
	return s.mutate(ctx, userID, id, func(tx *gorm.DB, sess *models.StudySession) error {
		if sess.Status != models.StatusOngoing {
			return invalidState("pause", string(sess.Status))
		}
		now := s.now()
		sess.Status = models.StatusPaused
		sess.Breaks++
		sess.LastPausedAt = &now
		return tx.Save(sess).Error
	})
}

// Resume moves a paused session back to ongoing.
func (s *StudyService) Resume(ctx context.Context, userID uint, id string) (*models.StudySession, error) {
	return s.mutate(ctx, userID, id, func(tx *gorm.DB, sess *models.StudySession) error {
		if sess.Status != models.StatusPaused {
			return invalidState("resume", string(sess.Status))
		}
		now := s.now()
		sess.Status = models.StatusOngoing
		sess.LastResumedAt = &now
		return tx.Save(sess).Error
	})
}

// PomodoroInput is the payload of a pomodoro-complete request.
type PomodoroInput struct {
	FocusRating int
	// ClientCount is the caller's own pomodoro count; the stored count never falls behind it.
	ClientCount int
}

// PomodoroResult reports the new count and any milestone award.
type PomodoroResult struct {
	Session   *models.StudySession
	Milestone *Award
}

// CompletePomodoro records one finished focus interval; the session enters its break (paused).
func (s *StudyService) CompletePomodoro(ctx context.Context, userID uint, id string, in PomodoroInput) (*PomodoroResult, error) {
	if in.FocusRating < 0 || in.FocusRating > 100 {
		return nil, invalid("focus_rating", "must be between 0 and 100")
	}
	res := &PomodoroResult{}
	sess, err := s.mutate(ctx, userID, id, func(tx *gorm.DB, sess *models.StudySession) error {
		if sess.Status != models.StatusOngoing {
			return invalidState("complete a pomodoro of", string(sess.Status))
		}
		prev := sess.PomodoroCount
		next := prev + 1
		if in.ClientCount > next {
			next = in.ClientCount
		}
		now := s.now()
		sess.PomodoroCount = next
		sess.FocusScore = in.FocusRating
		sess.Status = models.StatusPaused
		sess.LastPausedAt = &now
		if err := tx.Save(sess).Error; err != nil {
			return err
		}
		if award, ok := s.policy.PomodoroAward(prev, next); ok {
			if err := grant(tx, userID, sess.ID, []Award{award}); err != nil {
				return err
			}
			res.Milestone = &award
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.Session = sess
	return res, nil
}

// CompleteInput is the payload of a completion request.
type CompleteInput struct {
	Notes      string
	Tags       []string
	FocusScore int
	// ElapsedSeconds is the client's elapsed wall-clock time; 0 lets the server measure it.
	ElapsedSeconds int
	PomodoroCount  int
}

// CompleteResult carries the finalized record and the aggregates it changed.
type CompleteResult struct {
	Session       *models.StudySession
	Streak        models.StudyStreak
	Awards        []Award
	PointsAwarded int
	TotalPoints   int
}

// Complete finalizes a session, updates the streak and grants reputation, all in one transaction.
func (s *StudyService) Complete(ctx context.Context, userID uint, id string, in CompleteInput) (*CompleteResult, error) {
	if in.FocusScore < 0 || in.FocusScore > 100 {
		return nil, invalid("final_focus_score", "must be between 0 and 100")
	}
	if in.ElapsedSeconds < 0 {
		return nil, invalid("elapsed_seconds", "must not be negative")
	}
	notes := utils.TruncateRunes(utils.SanitizeText(in.Notes), s.maxNotes)
	tags, err := s.normalizeTags(in.Tags)
	if err != nil {
		return nil, err
	}

	// completions of different sessions by one user share the streak row
	release, err := s.locker.Acquire(ctx, userLockKey(userID), s.lockTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	res := &CompleteResult{}
	sess, err := s.mutate(ctx, userID, id, func(tx *gorm.DB, sess *models.StudySession) error {
		if !sess.Status.Active() {
			return invalidState("complete", string(sess.Status))
		}
		now := s.now()
		elapsed := s.elapsedSeconds(sess, now, in.ElapsedSeconds)
		if time.Duration(elapsed)*time.Second < s.minSession {
			return invalid("duration", fmt.Sprintf("session must last at least %d seconds", int(s.minSession.Seconds())))
		}

		sess.Duration = elapsed / 60
		sess.FocusScore = in.FocusScore
		sess.Notes = notes
		sess.Tags = tags
		if in.PomodoroCount > sess.PomodoroCount {
			sess.PomodoroCount = in.PomodoroCount
		}
		sess.Status = models.StatusCompleted
		sess.EndTime = &now

		streak, err := s.loadStreak(tx, userID)
		if err != nil {
			return err
		}
		prev := streak.Current
		next, changed := AdvanceStreak(streak, now, s.loc)
		if changed {
			if err := tx.Save(&next).Error; err != nil {
				return fmt.Errorf("save streak: %w", err)
			}
		}
		res.Streak = next

		awards := s.policy.SessionAwards(sess.Duration, sess.FocusScore)
		if changed {
			if award, ok := s.policy.StreakAward(prev, next.Current); ok {
				awards = append(awards, award)
			}
		}
		res.Awards = awards
		res.PointsAwarded = TotalPoints(awards)
		sess.PointsAwarded = res.PointsAwarded

		if err := tx.Save(sess).Error; err != nil {
			return err
		}
		if err := grant(tx, userID, sess.ID, awards); err != nil {
			return err
		}

		var user models.User
		if err := tx.Select("points").First(&user, userID).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		res.TotalPoints = user.Points
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.Session = sess
	utils.Logger.Info("study session completed",
		zap.Uint("user_id", userID), zap.String("session_id", sess.ID),
		zap.Int("duration", sess.Duration), zap.Int("points", res.PointsAwarded))
	return res, nil
}

// Cancel abandons an active session without awarding anything.
func (s *StudyService) Cancel(ctx context.Context, userID uint, id string) (*models.StudySession, error) {
	return s.mutate(ctx, userID, id, func(tx *gorm.DB, sess *models.StudySession) error {
		if !sess.Status.Active() && sess.Status != models.StatusScheduled {
			return invalidState("cancel", string(sess.Status))
		}
		now := s.now()
		sess.Status = models.StatusCancelled
		sess.EndTime = &now
		return tx.Save(sess).Error
	})
}

// Get returns one session owned by userID.
func (s *StudyService) Get(ctx context.Context, userID uint, id string) (*models.StudySession, error) {
	var sess models.StudySession
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&sess).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if sess.UserID != userID {
		return nil, ErrForbidden
	}
	return &sess, nil
}

// List returns a page of the user's sessions, newest first, optionally filtered by status.
func (s *StudyService) List(ctx context.Context, userID uint, status string, page, pageSize int) ([]models.StudySession, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.StudySession{}).Where("user_id = ?", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var items []models.StudySession
	if err := q.Order("start_time DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Streak returns the user's streak, zero valued when they never completed a session.
func (s *StudyService) Streak(ctx context.Context, userID uint) (models.StudyStreak, error) {
	return s.loadStreak(s.db.WithContext(ctx), userID)
}

// Ledger returns a page of the user's reputation entries, newest first.
func (s *StudyService) Ledger(ctx context.Context, userID uint, page, pageSize int) ([]models.ReputationEntry, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.ReputationEntry{}).Where("user_id = ?", userID)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var items []models.ReputationEntry
	if err := q.Order("created_at DESC, id DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Stats aggregates a user's study history.
type Stats struct {
	CompletedSessions int64   `json:"completed_sessions"`
	TotalMinutes      int64   `json:"total_minutes"`
	TotalPomodoros    int64   `json:"total_pomodoros"`
	AverageFocus      float64 `json:"average_focus"`
	ActiveSessions    int64   `json:"active_sessions"`
	Points            int     `json:"points"`
	CurrentStreak     int     `json:"current_streak"`
	LongestStreak     int     `json:"longest_streak"`
}

// Stats computes aggregates for userID.
func (s *StudyService) Stats(ctx context.Context, userID uint) (Stats, error) {
	var st Stats
	db := s.db.WithContext(ctx)

	var agg struct {
		Sessions  int64
		Minutes   int64
		Pomodoros int64
		Focus     float64
	}
	if err := db.Model(&models.StudySession{}).
		Select("COUNT(*) AS sessions, COALESCE(SUM(duration),0) AS minutes, COALESCE(SUM(pomodoro_count),0) AS pomodoros, COALESCE(AVG(focus_score),0) AS focus").
		Where("user_id = ? AND status = ?", userID, models.StatusCompleted).
		Scan(&agg).Error; err != nil {
		return st, err
	}
	st.CompletedSessions = agg.Sessions
	st.TotalMinutes = agg.Minutes
	st.TotalPomodoros = agg.Pomodoros
	st.AverageFocus = agg.Focus

	if err := db.Model(&models.StudySession{}).
		Where("user_id = ? AND status IN ?", userID, []models.SessionStatus{models.StatusOngoing, models.StatusPaused}).
		Count(&st.ActiveSessions).Error; err != nil {
		return st, err
	}

	var user models.User
	if err := db.Select("points").First(&user, userID).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return st, err
	}
	st.Points = user.Points

	streak, err := s.loadStreak(db, userID)
	if err != nil {
		return st, err
	}
	st.CurrentStreak = streak.Current
	st.LongestStreak = streak.Longest
	return st, nil
}

// CancelStale marks active sessions untouched for longer than olderThan as cancelled.
func (s *StudyService) CancelStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	now := s.now()
	res := s.db.WithContext(ctx).Model(&models.StudySession{}).
		Where("status IN ? AND updated_at < ?", []models.SessionStatus{models.StatusOngoing, models.StatusPaused}, now.Add(-olderThan)).
		Updates(map[string]interface{}{
			"status":     models.StatusCancelled,
			"end_time":   now,
			"updated_at": now,
		})
	return res.RowsAffected, res.Error
}

// mutate runs fn against the locked session row inside one transaction.
func (s *StudyService) mutate(ctx context.Context, userID uint, id string, fn func(tx *gorm.DB, sess *models.StudySession) error) (*models.StudySession, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrNotFound
	}
	release, err := s.locker.Acquire(ctx, sessionLockKey(id), s.lockTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	var sess models.StudySession
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := forUpdate(tx).Where("id = ?", id).First(&sess).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if sess.UserID != userID {
			return ErrForbidden
		}
		return fn(tx, &sess)
	})
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *StudyService) loadStreak(tx *gorm.DB, userID uint) (models.StudyStreak, error) {
	var streak models.StudyStreak
	err := forUpdate(tx).Where("user_id = ?", userID).First(&streak).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.StudyStreak{UserID: userID}, nil
	}
	return streak, err
}

// elapsedSeconds trusts the client's figure only when it does not exceed wall-clock time since start.
func (s *StudyService) elapsedSeconds(sess *models.StudySession, now time.Time, reported int) int {
	wall := int(now.Sub(sess.StartTime) / time.Second)
	if wall < 0 {
		wall = 0
	}
	if reported > 0 && reported <= wall {
		return reported
	}
	return wall
}

func (s *StudyService) normalizeTags(raw []string) (models.StringList, error) {
	fold := cases.Fold()
	seen := make(map[string]struct{}, len(raw))
	tags := models.StringList{}
	for _, t := range raw {
		t = utils.TruncateRunes(utils.SanitizeText(t), 32)
		if t == "" {
			continue
		}
		key := fold.String(t)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		tags = append(tags, t)
	}
	if len(tags) > s.maxTags {
		return nil, invalid("tags", fmt.Sprintf("at most %d tags allowed", s.maxTags))
	}
	return tags, nil
}

// grant appends ledger entries and bumps the user's running total.
func grant(tx *gorm.DB, userID uint, sessionID string, awards []Award) error {
	total := 0
	for _, a := range awards {
		if a.Points == 0 {
			continue
		}
		entry := models.ReputationEntry{
			UserID:    userID,
			SessionID: sessionID,
			Reason:    a.Reason,
			Detail:    a.Detail,
			Points:    a.Points,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("append reputation entry: %w", err)
		}
		total += a.Points
	}
	if total == 0 {
		return nil
	}
	return tx.Model(&models.User{}).Where("id = ?", userID).
		UpdateColumn("points", gorm.Expr("points + ?", total)).Error
}

// forUpdate adds a row lock where the dialect supports it.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func sessionLockKey(id string) string {
	return "lock:study:session:" + id
}

func userLockKey(userID uint) string {
	return fmt.Sprintf("lock:study:user:%d", userID)
}
