// Package store is the client-side synchronization engine. It holds the
// canonical snapshot of the signed-in session (profile, tasks, chat, intel),
// applies optimistic local transforms, reconciles them with the remote
// gateway and merges the remote change feed.
//
// Every read and write of the snapshot is a closure processed by a single
// inbox goroutine, strictly in arrival order. Remote and inference calls run
// on the caller's goroutine between two transforms, so a slow call never
// blocks another operation.
package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dohr-michael/orbit/internal/domain"
	"github.com/dohr-michael/orbit/internal/events"
	"github.com/dohr-michael/orbit/internal/inference"
	"github.com/dohr-michael/orbit/internal/remote"
	"github.com/dohr-michael/orbit/internal/sessions"
)

const defaultHistoryLimit = 200

type op struct {
	reason string
	fn     func(*state)
	done   chan struct{}
}

// Store is the synchronization store. It is safe for concurrent use.
type Store struct {
	gw     remote.Gateway
	ai     inference.Service
	bus    *events.Bus
	ownBus bool

	transcripts  sessions.Store
	historyLimit int
	now          func() time.Time
	newID        func() string
	logger       *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	inbox     chan op
	quit      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once

	bgMu     sync.Mutex
	bgClosed bool
	wg       sync.WaitGroup

	initMu  sync.Mutex
	statsMu sync.Mutex

	mu sync.Mutex // held while a transform runs
	st *state
}

// Option configures a Store.
type Option func(*Store)

// WithBus publishes store events on bus. The caller keeps ownership.
func WithBus(bus *events.Bus) Option {
	return func(s *Store) { s.bus = bus }
}

// WithTranscripts persists the chat of each user in ts. The last limit
// messages are restored at sign-in.
func WithTranscripts(ts sessions.Store, limit int) Option {
	return func(s *Store) {
		s.transcripts = ts
		if limit > 0 {
			s.historyLimit = limit
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides the generator of mutation ids.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates a store over gw and starts its inbox. The store starts
// unauthenticated; call Initialize to resume a session.
func New(gw remote.Gateway, ai inference.Service, opts ...Option) *Store {
	s := &Store{
		gw:           gw,
		ai:           ai,
		historyLimit: defaultHistoryLimit,
		now:          time.Now,
		newID:        uuid.NewString,
		inbox:        make(chan op),
		quit:         make(chan struct{}),
		stopped:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.bus == nil {
		s.bus = events.NewBus(256)
		s.ownBus = true
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.st = &state{
		mutations:  map[string]*Mutation{},
		deleting:   map[string]struct{}{},
		tombstones: map[string]struct{}{},
		chat:       []domain.ChatMessage{s.bootMessage()},
	}

	go s.loop()
	return s
}

// Bus returns the bus the store publishes on.
func (s *Store) Bus() *events.Bus {
	return s.bus
}

func (s *Store) loop() {
	defer close(s.stopped)
	for {
		select {
		case o := <-s.inbox:
			s.mu.Lock()
			o.fn(s.st)
			var payload events.SnapshotPayload
			if o.reason != "" {
				payload = events.SnapshotPayload{
					Reason: o.reason,
					Tasks:  len(s.st.tasks),
					Drops:  len(s.st.drops),
					Chat:   len(s.st.chat),
				}
			}
			s.mu.Unlock()
			close(o.done)
			if payload.Reason != "" {
				s.bus.Publish(events.NewTypedEvent(events.SourceStore, payload))
			}
		case <-s.quit:
			return
		}
	}
}

// apply runs fn on the inbox and waits for it. A non-empty reason publishes
// a snapshot event once fn has run.
func (s *Store) apply(reason string, fn func(*state)) error {
	o := op{reason: reason, fn: fn, done: make(chan struct{})}
	select {
	case s.inbox <- o:
	case <-s.stopped:
		return ErrClosed
	}
	<-o.done
	return nil
}

// view runs a read-only fn. After Close the last state is still readable.
func (s *Store) view(fn func(*state)) {
	if err := s.apply("", fn); err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.st)
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() Snapshot {
	var snap Snapshot
	s.view(func(st *state) { snap = st.snapshot() })
	return snap
}

// Close tears down the remote subscriptions and stops the inbox. Later
// operations return ErrClosed.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()

		var unsubs []func()
		_ = s.apply("", func(st *state) {
			unsubs = st.unsubs
			st.unsubs = nil
			st.subscribedFor = ""
		})
		close(s.quit)
		<-s.stopped

		for _, unsub := range unsubs {
			unsub()
		}
		s.bgMu.Lock()
		s.bgClosed = true
		s.bgMu.Unlock()
		s.wg.Wait()
		if s.ownBus {
			s.bus.Close()
		}
	})
	return nil
}

// goBackground runs fn on a tracked goroutine bound to the store lifetime.
func (s *Store) goBackground(fn func(ctx context.Context)) {
	s.bgMu.Lock()
	defer s.bgMu.Unlock()
	if s.bgClosed {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
}

func (s *Store) bootMessage() domain.ChatMessage {
	return domain.NewChatMessage(domain.RoleModel, domain.BootMessage, s.now())
}

// withSession tags ctx with uid so inference events carry the user.
func withSession(ctx context.Context, uid string) context.Context {
	if uid == "" {
		return ctx
	}
	return events.ContextWithSessionID(ctx, uid)
}
