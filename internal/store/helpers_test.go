package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dohr-michael/orbit/internal/domain"
	"github.com/dohr-michael/orbit/internal/events"
	"github.com/dohr-michael/orbit/internal/inference"
	"github.com/dohr-michael/orbit/internal/remote"
	"github.com/dohr-michael/orbit/internal/sessions"
)

const testPassword = "orbit-secret-42"

// fakeAI is a scripted inference service.
type fakeAI struct {
	mu         sync.Mutex
	difficulty domain.Difficulty
	classify   chan struct{} // when set, ClassifyDifficulty waits for it
	replyGates map[string]chan struct{}
	research   func(query string, deep bool) (*domain.IntelQueryResult, error)
	instrSeen  []string
	sessions   []string // session ids seen on call contexts
}

func (f *fakeAI) sawSession(ctx context.Context) {
	f.mu.Lock()
	f.sessions = append(f.sessions, events.SessionIDFromContext(ctx))
	f.mu.Unlock()
}

func (f *fakeAI) seenSessions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sessions...)
}

func (f *fakeAI) ClassifyDifficulty(ctx context.Context, title string) domain.Difficulty {
	f.sawSession(ctx)
	f.mu.Lock()
	gate := f.classify
	d := f.difficulty
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
		}
	}
	if d == "" {
		return domain.DifficultyMedium
	}
	return d
}

func (f *fakeAI) Chat(ctx context.Context, history []domain.ChatMessage, _ inference.StatsContext) string {
	f.sawSession(ctx)
	var last string
	for _, m := range history {
		if m.Role == domain.RoleUser {
			last = m.Text
		}
	}
	f.mu.Lock()
	gate := f.replyGates[last]
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return inference.ErrorMarkerPrefix + ctx.Err().Error()
		}
	}
	return "re: " + last
}

func (f *fakeAI) Research(ctx context.Context, query, instructions string, deep bool) (*domain.IntelQueryResult, error) {
	f.sawSession(ctx)
	f.mu.Lock()
	f.instrSeen = append(f.instrSeen, instructions)
	research := f.research
	f.mu.Unlock()
	if research != nil {
		return research(query, deep)
	}
	return &domain.IntelQueryResult{
		SummaryBullets:  []string{"about " + query},
		Sources:         []domain.Source{},
		RelatedConcepts: []string{},
		Essay:           "An essay on " + query,
	}, nil
}

func (f *fakeAI) gate(query string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replyGates == nil {
		f.replyGates = map[string]chan struct{}{}
	}
	ch := make(chan struct{})
	f.replyGates[query] = ch
	return ch
}

// faultyGateway injects errors into the writes of a real gateway.
type faultyGateway struct {
	remote.Gateway

	mu   sync.Mutex
	fail map[string]error
}

func (g *faultyGateway) failOn(op, table string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail == nil {
		g.fail = map[string]error{}
	}
	if err == nil {
		delete(g.fail, op+":"+table)
		return
	}
	g.fail[op+":"+table] = err
}

func (g *faultyGateway) injected(op, table string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fail[op+":"+table]
}

func (g *faultyGateway) Insert(ctx context.Context, table string, rec remote.Record) (remote.Record, error) {
	if err := g.injected("insert", table); err != nil {
		return nil, err
	}
	return g.Gateway.Insert(ctx, table, rec)
}

func (g *faultyGateway) Update(ctx context.Context, table, id string, patch remote.Record) (remote.Record, error) {
	if err := g.injected("update", table); err != nil {
		return nil, err
	}
	return g.Gateway.Update(ctx, table, id, patch)
}

func (g *faultyGateway) Delete(ctx context.Context, table, id string) error {
	if err := g.injected("delete", table); err != nil {
		return err
	}
	return g.Gateway.Delete(ctx, table, id)
}

type testEnv struct {
	db    *remote.MemoryDB
	gw    *faultyGateway
	ai    *fakeAI
	store *Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := remote.NewMemoryDB(remote.NewFeed(nil))
	t.Cleanup(func() { db.Close() })

	env := &testEnv{
		db: db,
		gw: &faultyGateway{Gateway: remote.NewLocal(db)},
		ai: &fakeAI{difficulty: domain.DifficultyHard},
	}
	env.store = New(env.gw, env.ai, WithTranscripts(sessions.NewFileStore(t.TempDir()), 0))
	t.Cleanup(func() { env.store.Close() })
	return env
}

// register signs up username and returns its user id.
func (e *testEnv) register(t *testing.T, username string) string {
	t.Helper()
	res := e.store.Register(context.Background(), username+"@orbit.test", testPassword, username)
	if !res.Success {
		t.Fatalf("Register(%s): %s", username, res.Error)
	}
	snap := e.store.Snapshot()
	if !snap.Authenticated || snap.Session == nil {
		t.Fatal("expected authenticated snapshot after register")
	}
	return snap.Session.UserID
}

// otherUser signs up a second identity on the same database.
func (e *testEnv) otherUser(t *testing.T, username string) (remote.Gateway, string) {
	t.Helper()
	gw := remote.NewLocal(e.db)
	s, err := gw.SignUp(context.Background(), username+"@orbit.test", testPassword, remote.SignUpOptions{Username: username})
	if err != nil {
		t.Fatalf("SignUp(%s): %v", username, err)
	}
	return gw, s.UserID
}

func (e *testEnv) createTask(t *testing.T, title string) domain.Task {
	t.Helper()
	if err := e.store.CreateTask(context.Background(), domain.TaskInput{Title: title}); err != nil {
		t.Fatalf("CreateTask(%s): %v", title, err)
	}
	for _, task := range e.store.Snapshot().Tasks {
		if task.Title == title {
			return task
		}
	}
	t.Fatalf("task %q not in snapshot", title)
	return domain.Task{}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitEvent(t *testing.T, ch <-chan events.Event, match func(events.Event) bool) events.Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e := <-ch:
			if match(e) {
				return e
			}
		case <-timeout:
			t.Fatal("timed out waiting for event")
			return events.Event{}
		}
	}
}

func realtimeOn(table string, kind remote.ChangeKind) func(events.Event) bool {
	return func(e events.Event) bool {
		p, ok := events.ExtractPayload[events.RealtimePayload](e)
		return ok && p.Table == table && p.Kind == string(kind)
	}
}

func countTitle(tasks []domain.Task, title string) int {
	n := 0
	for _, t := range tasks {
		if t.Title == title {
			n++
		}
	}
	return n
}

func dropIDs(drops []domain.IntelDrop) []string {
	ids := make([]string, len(drops))
	for i, d := range drops {
		ids[i] = d.ID
	}
	return ids
}

func insertDrop(t *testing.T, gw remote.Gateway, d domain.IntelDrop) string {
	t.Helper()
	rec, err := domain.IntelDropRecord(d)
	if err != nil {
		t.Fatalf("IntelDropRecord: %v", err)
	}
	row, err := gw.Insert(context.Background(), remote.TableIntelDrops, rec)
	if err != nil {
		t.Fatalf("insert drop %q: %v", d.Query, err)
	}
	return row.ID()
}

var errInjected = errors.New("injected failure")
