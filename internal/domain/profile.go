package domain

import "time"

// Stats are counters derived from the task lifecycle.
type Stats struct {
	TasksCompleted int `json:"tasks_completed"`
	TasksForfeited int `json:"tasks_forfeited"`
	StreakDays     int `json:"streak_days"`
}

// UserProfile is the signed-in user's public identity and counters.
type UserProfile struct {
	ID                string    `json:"id"`
	Username          string    `json:"username"`
	Avatar            string    `json:"avatar_url,omitempty"`
	IsAdmin           bool      `json:"is_admin"`
	IntelInstructions string    `json:"intel_instructions,omitempty"`
	JoinedAt          time.Time `json:"created_at,omitempty"`
	Stats             Stats     `json:"-"`
}

// Clone returns a copy that shares nothing with p.
func (p *UserProfile) Clone() *UserProfile {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

// AvatarURL builds the default avatar for a username.
func AvatarURL(username string) string {
	return "https://api.dicebear.com/7.x/identicon/svg?seed=" + username
}
