package models

import "time"

// StudyStreak tracks consecutive calendar days with at least one completed session.
type StudyStreak struct {
	ID            uint       `gorm:"primaryKey" json:"-"`
	UserID        uint       `gorm:"uniqueIndex;not null" json:"user_id"`
	Current       int        `gorm:"not null;default:0" json:"current"`
	Longest       int        `gorm:"not null;default:0" json:"longest"`
	LastStudyDate *time.Time `json:"last_study_date"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
