// Package domain holds the records Orbit synchronizes: tasks, profiles,
// chat messages and intel drops.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Category is the effort bucket a task belongs to.
type Category string

const (
	CategoryQuick  Category = "Quick"
	CategoryGrind  Category = "Grind"
	CategoryCooked Category = "Cooked"
)

// DefaultCategory is used when a task is created without one.
const DefaultCategory = CategoryGrind

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryQuick, CategoryGrind, CategoryCooked:
		return true
	}
	return false
}

// ParseCategory matches s case-insensitively against the known categories.
func ParseCategory(s string) (Category, error) {
	for _, c := range []Category{CategoryQuick, CategoryGrind, CategoryCooked} {
		if strings.EqualFold(string(c), strings.TrimSpace(s)) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// Difficulty is the inferred or user-supplied effort level of a task.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

// Valid reports whether d is one of the known difficulty levels.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// ParseDifficulty matches s case-insensitively against the known levels.
func ParseDifficulty(s string) (Difficulty, error) {
	for _, d := range []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard} {
		if strings.EqualFold(string(d), strings.TrimSpace(s)) {
			return d, nil
		}
	}
	return "", fmt.Errorf("unknown difficulty %q", s)
}

// Task is a unit of work owned by a single user.
//
// A task has a two-phase identity: LocalID is assigned on the client when the
// task is created and is sent along as client_ref; ID is assigned by the
// remote store and is empty until the insert is confirmed.
type Task struct {
	ID         string     `json:"id,omitempty"`
	LocalID    string     `json:"client_ref,omitempty"`
	UserID     string     `json:"user_id"`
	Title      string     `json:"title"`
	Category   Category   `json:"category"`
	Difficulty Difficulty `json:"difficulty,omitempty"`
	Completed  bool       `json:"completed"`
	CreatedAt  time.Time  `json:"created_at"`

	// Client-only flags, never encoded.
	Analyzing bool `json:"-"`
	Pending   bool `json:"-"`
}

// Key returns the identifier the task is addressed by in the snapshot.
func (t Task) Key() string {
	if t.ID != "" {
		return t.ID
	}
	return t.LocalID
}

// Provisional reports whether the task still waits for a remote id.
func (t Task) Provisional() bool {
	return t.ID == ""
}

// Matches reports whether key addresses this task by either identity.
func (t Task) Matches(key string) bool {
	if key == "" {
		return false
	}
	return t.ID == key || t.LocalID == key
}

// TaskInput is the partial task a caller supplies to create one.
type TaskInput struct {
	Title      string
	Category   Category
	Difficulty Difficulty
}

// NewLocalID returns a fresh client-side identifier.
func NewLocalID() string {
	return "local_" + uuid.NewString()
}
