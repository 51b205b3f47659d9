package store

import (
	"context"
	"strings"

	"github.com/dohr-michael/orbit/internal/domain"
	"github.com/dohr-michael/orbit/internal/events"
	"github.com/dohr-michael/orbit/internal/remote"
)

// AuthResult is the outcome of Login and Register. Failures are reported in
// Error, never returned.
type AuthResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Initialize resumes the gateway session and loads the profile, the tasks
// and the intel feed, then subscribes to the change feed once per session.
// Without a session the store stays unauthenticated. Remote failures are
// logged, never returned. Re-running it refreshes the profile in place.
func (s *Store) Initialize(ctx context.Context) {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	sess, err := s.gw.GetSession(ctx)
	if err != nil {
		s.logger.Warn("resume session", "error", err)
		return
	}
	if sess == nil {
		s.clearSession("no_session")
		return
	}
	uid := sess.UserID

	profile, err := s.loadProfile(ctx, uid)
	if err != nil {
		s.logger.Warn("load profile", "user_id", uid, "error", err)
	}
	tasks, tasksErr := s.loadTasks(ctx, uid)
	if tasksErr != nil {
		s.logger.Warn("load tasks", "user_id", uid, "error", tasksErr)
	}

	var current string
	s.view(func(st *state) { current = st.userID() })
	var history []domain.ChatMessage
	if current != uid {
		history = s.loadTranscript(uid)
	}

	var (
		epoch  uint64
		stale  []func()
		signed bool
	)
	err = s.apply("initialize", func(st *state) {
		if st.userID() != uid {
			stale = st.resetSession(s.bootMessage())
			st.chat = append(st.chat, history...)
			signed = true
		}
		cp := *sess
		st.session = &cp
		mergeProfile(st, profile)
		if tasksErr == nil {
			mergeTasks(st, tasks)
		}
		epoch = st.epoch
	})
	if err != nil {
		return
	}
	for _, unsub := range stale {
		unsub()
	}
	if signed {
		s.publishSession()
	}

	if err := s.FetchIntelDrops(ctx); err != nil {
		s.logger.Warn("load intel feed", "user_id", uid, "error", err)
	}
	s.subscribe(uid, epoch)
}

// Login signs in and initializes the session.
func (s *Store) Login(ctx context.Context, email, password string) AuthResult {
	if _, err := s.gw.SignIn(ctx, strings.TrimSpace(email), password); err != nil {
		return AuthResult{Error: err.Error()}
	}
	s.Initialize(ctx)
	return AuthResult{Success: true}
}

// Register creates an account, signs in and initializes the session.
func (s *Store) Register(ctx context.Context, email, password, username string) AuthResult {
	opts := remote.SignUpOptions{Username: strings.TrimSpace(username)}
	if _, err := s.gw.SignUp(ctx, strings.TrimSpace(email), password, opts); err != nil {
		return AuthResult{Error: err.Error()}
	}
	s.Initialize(ctx)
	return AuthResult{Success: true}
}

// Logout signs out remotely, tears down the subscriptions and resets the
// snapshot. A remote sign-out failure is logged and the local reset still
// happens.
func (s *Store) Logout(ctx context.Context) {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	if err := s.gw.SignOut(ctx); err != nil {
		s.logger.Warn("sign out", "error", err)
	}
	s.clearSession("logout")
}

func (s *Store) clearSession(reason string) {
	var (
		unsubs []func()
		was    bool
	)
	err := s.apply(reason, func(st *state) {
		if !st.authenticated() {
			return
		}
		was = true
		unsubs = st.resetSession(s.bootMessage())
	})
	if err != nil {
		return
	}
	for _, unsub := range unsubs {
		unsub()
	}
	if was {
		s.publishSession()
	}
}

func (s *Store) publishSession() {
	var p events.SessionPayload
	s.view(func(st *state) {
		p.Authenticated = st.authenticated()
		p.UserID = st.userID()
		if st.profile != nil {
			p.Username = st.profile.Username
		}
	})
	s.bus.Publish(events.NewTypedEvent(events.SourceStore, p))
}

// Refresh refetches the profile, the tasks and the intel feed of the current
// session.
func (s *Store) Refresh(ctx context.Context) error {
	var (
		uid   string
		epoch uint64
	)
	s.view(func(st *state) {
		uid = st.userID()
		epoch = st.epoch
	})
	if uid == "" {
		return ErrNotAuthenticated
	}

	profile, err := s.loadProfile(ctx, uid)
	if err != nil {
		return err
	}
	tasks, err := s.loadTasks(ctx, uid)
	if err != nil {
		return err
	}
	err = s.apply("refresh", func(st *state) {
		if st.epoch != epoch {
			return
		}
		mergeProfile(st, profile)
		mergeTasks(st, tasks)
	})
	if err != nil {
		return err
	}
	return s.FetchIntelDrops(ctx)
}

func (s *Store) loadProfile(ctx context.Context, uid string) (*domain.UserProfile, error) {
	rows, err := s.gw.Read(ctx, remote.TableProfiles, remote.Query{
		Filter: remote.Where(remote.Eq(domain.ColID, uid)),
		Limit:  1,
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return domain.ProfileFromRecord(rows[0])
}

func (s *Store) loadTasks(ctx context.Context, uid string) ([]domain.Task, error) {
	rows, err := s.gw.Read(ctx, remote.TableTasks, remote.Query{
		Filter: remote.Where(remote.Eq(domain.ColUserID, uid)),
		Order:  []remote.Order{remote.Asc(domain.ColCreatedAt)},
	})
	if err != nil {
		return nil, err
	}
	tasks := make([]domain.Task, 0, len(rows))
	for _, row := range rows {
		t, err := domain.TaskFromRecord(row)
		if err != nil {
			s.logger.Warn("skip task row", "id", row.ID(), "error", err)
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func (s *Store) loadTranscript(uid string) []domain.ChatMessage {
	if s.transcripts == nil {
		return nil
	}
	msgs, err := s.transcripts.Load(uid, s.historyLimit)
	if err != nil {
		s.logger.Warn("load transcript", "user_id", uid, "error", err)
		return nil
	}
	return msgs
}

// mergeProfile replaces the profile of another user and updates the same
// user's profile in place. Counters never go backwards: local increments may
// not be pushed yet.
func mergeProfile(st *state, p *domain.UserProfile) {
	if p == nil {
		return
	}
	if st.profile == nil || st.profile.ID != p.ID {
		st.profile = p.Clone()
		return
	}
	stats := st.profile.Stats
	*st.profile = *p
	st.profile.Stats.TasksCompleted = max(stats.TasksCompleted, p.Stats.TasksCompleted)
	st.profile.Stats.TasksForfeited = max(stats.TasksForfeited, p.Stats.TasksForfeited)
}

// mergeTasks replaces the confirmed tasks with fetched and keeps provisional
// ones that fetched does not already confirm.
func mergeTasks(st *state, fetched []domain.Task) {
	next := append([]domain.Task(nil), fetched...)
	for _, t := range st.tasks {
		if !t.Provisional() {
			continue
		}
		confirmed := false
		for i := range next {
			if next[i].LocalID == t.LocalID {
				confirmed = true
				break
			}
		}
		if !confirmed {
			next = append(next, t)
		}
	}
	st.tasks = next
}
