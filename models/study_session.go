package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SessionStatus is the persisted lifecycle state of a study session.
type SessionStatus string

const (
	StatusScheduled SessionStatus = "scheduled"
	StatusOngoing   SessionStatus = "ongoing"
	StatusPaused    SessionStatus = "paused"
	StatusCompleted SessionStatus = "completed"
	StatusCancelled SessionStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Active reports whether the session is still being studied.
func (s SessionStatus) Active() bool {
	return s == StatusOngoing || s == StatusPaused
}

// StudySession is one timed study session owned by a single user.
type StudySession struct {
	ID                string        `gorm:"primaryKey;size:36" json:"id"`
	UserID            uint          `gorm:"index;not null" json:"user_id"`
	SubjectID         string        `gorm:"size:64;index;not null" json:"subject_id"`
	Topic             string        `gorm:"size:255;not null" json:"topic"`
	EstimatedDuration int           `gorm:"not null;default:0" json:"estimated_duration"` // minutes
	Duration          int           `gorm:"not null;default:0" json:"duration"`           // minutes, floor(elapsed/60)
	FocusScore        int           `gorm:"not null;default:0" json:"focus_score"`
	PomodoroCount     int           `gorm:"not null;default:0" json:"pomodoro_count"`
	Breaks            int           `gorm:"not null;default:0" json:"breaks"`
	Notes             string        `gorm:"type:text" json:"notes"`
	Tags              StringList    `gorm:"type:text" json:"tags"`
	PointsAwarded     int           `gorm:"not null;default:0" json:"points_awarded"`
	Status            SessionStatus `gorm:"size:16;index;not null" json:"status"`
	StartTime         time.Time     `gorm:"not null" json:"start_time"`
	EndTime           *time.Time    `json:"end_time"`
	LastPausedAt      *time.Time    `json:"last_paused_at"`
	LastResumedAt     *time.Time    `json:"last_resumed_at"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `gorm:"index" json:"updated_at"`
}

// BeforeCreate assigns the opaque identifier.
func (s *StudySession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Status == "" {
		s.Status = StatusScheduled
	}
	return nil
}
