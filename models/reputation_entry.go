package models

import "time"

// Ledger reasons.
const (
	ReasonDurationTier      = "duration_tier"
	ReasonFocusBonus        = "focus_bonus"
	ReasonStreakMilestone   = "streak_milestone"
	ReasonPomodoroMilestone = "pomodoro_milestone"
)

// ReputationEntry records one point award. Entries are append-only.
type ReputationEntry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index;not null" json:"user_id"`
	SessionID string    `gorm:"size:36;index" json:"session_id"`
	Reason    string    `gorm:"size:32;not null" json:"reason"`
	Detail    string    `gorm:"size:255" json:"detail"`
	Points    int       `gorm:"not null" json:"points"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}
