package services

import (
	"fmt"

	"github.com/studymate/studymate/config"
	"github.com/studymate/studymate/models"
)

// Award is one line of a reputation grant.
type Award struct {
	Reason string `json:"reason"`
	Detail string `json:"detail"`
	Points int    `json:"points"`
}

// RewardPolicy decides point awards. Categories stack; within the duration
// category only the highest reached tier applies.
type RewardPolicy struct {
	DurationTiers       []config.Milestone `json:"duration_tiers"` // minutes -> points, ascending
	FocusBonusThreshold int                `json:"focus_bonus_threshold"`
	FocusBonusPoints    int                `json:"focus_bonus_points"`
	StreakMilestones    []config.Milestone `json:"streak_milestones"`   // days -> points
	PomodoroMilestones  []config.Milestone `json:"pomodoro_milestones"` // pomodoros in one session -> points
}

// PolicyFromConfig builds the policy from configuration.
func PolicyFromConfig(c config.AppConfig) RewardPolicy {
	return RewardPolicy{
		DurationTiers:       c.DurationTiers,
		FocusBonusThreshold: c.FocusBonusThreshold,
		FocusBonusPoints:    c.FocusBonusPoints,
		StreakMilestones:    c.StreakMilestones,
		PomodoroMilestones:  c.PomodoroMilestones,
	}
}

// SessionAwards returns the duration tier and focus bonus earned by a completed session.
func (p RewardPolicy) SessionAwards(durationMinutes, focusScore int) []Award {
	var awards []Award
	var tier *config.Milestone
	for i := range p.DurationTiers {
		if durationMinutes >= p.DurationTiers[i].At {
			tier = &p.DurationTiers[i]
		}
	}
	if tier != nil && tier.Points > 0 {
		awards = append(awards, Award{
			Reason: models.ReasonDurationTier,
			Detail: fmt.Sprintf("studied %d+ minutes", tier.At),
			Points: tier.Points,
		})
	}
	if p.FocusBonusPoints > 0 && focusScore >= p.FocusBonusThreshold {
		awards = append(awards, Award{
			Reason: models.ReasonFocusBonus,
			Detail: fmt.Sprintf("focus score %d", focusScore),
			Points: p.FocusBonusPoints,
		})
	}
	return awards
}

// StreakAward returns the milestone award when the streak moves from prev to current
// and passes a milestone on the way.
func (p RewardPolicy) StreakAward(prev, current int) (Award, bool) {
	for _, m := range p.StreakMilestones {
		if prev < m.At && current >= m.At {
			return Award{
				Reason: models.ReasonStreakMilestone,
				Detail: fmt.Sprintf("%d-day study streak", m.At),
				Points: m.Points,
			}, true
		}
	}
	return Award{}, false
}

// PomodoroAward returns the milestone award when a session's pomodoro count moves from prev to current.
func (p RewardPolicy) PomodoroAward(prev, current int) (Award, bool) {
	for _, m := range p.PomodoroMilestones {
		if prev < m.At && current >= m.At {
			return Award{
				Reason: models.ReasonPomodoroMilestone,
				Detail: fmt.Sprintf("%d pomodoros in one session", m.At),
				Points: m.Points,
			}, true
		}
	}
	return Award{}, false
}

// TotalPoints sums a list of awards.
func TotalPoints(awards []Award) int {
	total := 0
	for _, a := range awards {
		total += a.Points
	}
	return total
}
