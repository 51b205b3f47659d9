package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a chat message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Messages the client emits on its own.
const (
	BootMessage = "Orbit Link established. Database connected. Waiting for input."
	SOSMessage  = "SOS BROADCASTED. ALL OPERATIVES ALERTED."
)

// ChatMessage is one immutable turn of the oracle conversation.
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Urgent    bool      `json:"urgent,omitempty"`
	IsSOS     bool      `json:"is_sos,omitempty"`
}

// NewChatMessage stamps a message with a fresh id and the given time.
func NewChatMessage(role Role, text string, at time.Time) ChatMessage {
	return ChatMessage{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		Timestamp: at,
	}
}
