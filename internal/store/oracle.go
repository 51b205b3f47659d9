package store

import (
	"context"
	"errors"
	"strings"

	"github.com/dohr-michael/orbit/internal/domain"
	"github.com/dohr-michael/orbit/internal/events"
	"github.com/dohr-michael/orbit/internal/inference"
)

// ErrEmptyMessage is returned by AskOracle for a blank query.
var ErrEmptyMessage = errors.New("message is empty")

// AskOracle appends the query to the chat, asks the oracle with the history
// and counters as they are now, and appends the reply to the history as it
// is when the reply arrives. Inference failures come back as marker replies.
// Without a session nothing is appended and ErrNotAuthenticated is returned.
func (s *Store) AskOracle(ctx context.Context, query string) (domain.ChatMessage, error) {
	text := strings.TrimSpace(query)
	if text == "" {
		return domain.ChatMessage{}, ErrEmptyMessage
	}

	var (
		history []domain.ChatMessage
		stats   inference.StatsContext
		epoch   uint64
		uid     string
	)
	err := s.apply("ask_oracle", func(st *state) {
		if uid = st.userID(); uid == "" {
			return
		}
		s.appendChat(st, domain.NewChatMessage(domain.RoleUser, text, s.now()))
		st.thinking++
		history = append([]domain.ChatMessage(nil), st.chat...)
		c := st.stats()
		stats = inference.StatsContext{
			TasksCompleted: c.TasksCompleted,
			TasksForfeited: c.TasksForfeited,
			StreakDays:     c.StreakDays,
		}
		epoch = st.epoch
	})
	if err != nil {
		return domain.ChatMessage{}, err
	}
	if uid == "" {
		return domain.ChatMessage{}, ErrNotAuthenticated
	}

	reply := domain.NewChatMessage(domain.RoleModel, s.ai.Chat(withSession(ctx, uid), history, stats), s.now())
	err = s.apply("oracle_reply", func(st *state) {
		if st.epoch != epoch {
			return
		}
		s.appendChat(st, reply)
		st.thinking--
	})
	return reply, err
}

// TriggerSOS appends the urgent broadcast message to the chat.
func (s *Store) TriggerSOS() (domain.ChatMessage, error) {
	msg := domain.NewChatMessage(domain.RoleModel, domain.SOSMessage, s.now())
	msg.Urgent = true
	msg.IsSOS = true
	err := s.apply("sos", func(st *state) { s.appendChat(st, msg) })
	return msg, err
}

// appendChat records msg in the snapshot and in the transcript of the
// signed-in user. Must run inside a transform.
func (s *Store) appendChat(st *state, msg domain.ChatMessage) {
	st.chat = append(st.chat, msg)
	if uid := st.userID(); uid != "" && s.transcripts != nil {
		if err := s.transcripts.Append(uid, msg); err != nil {
			s.logger.Warn("persist chat message", "user_id", uid, "error", err)
		}
	}
	s.bus.Publish(events.NewTypedEvent(events.SourceStore, events.ChatMessagePayload{
		ID:     msg.ID,
		Role:   string(msg.Role),
		Text:   msg.Text,
		Urgent: msg.Urgent,
	}))
}
