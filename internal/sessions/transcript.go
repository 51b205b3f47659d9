// Package sessions persists each user's oracle conversation so it survives
// across CLI invocations.
package sessions

import (
	"errors"
	"time"

	"github.com/dohr-michael/orbit/internal/domain"
)

// ErrNotFound is returned for a user with no stored transcript.
var ErrNotFound = errors.New("transcript not found")

// Transcript is the metadata of one user's stored conversation.
type Transcript struct {
	UserID       string    `json:"user_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

// Store is the persistence interface for transcripts.
type Store interface {
	Append(userID string, msg domain.ChatMessage) error
	Load(userID string, limit int) ([]domain.ChatMessage, error)
	Get(userID string) (*Transcript, error)
	List() ([]*Transcript, error)
	Clear(userID string) error
}
