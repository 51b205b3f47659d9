package store

import (
	"github.com/dohr-michael/orbit/internal/domain"
	"github.com/dohr-michael/orbit/internal/remote"
)

// state is the canonical snapshot. It is only touched from the inbox
// goroutine.
type state struct {
	// epoch changes at every login/logout boundary. Settle transforms carry
	// the epoch they started in and are dropped when it no longer matches.
	epoch uint64

	session *remote.Session
	profile *domain.UserProfile
	tasks   []domain.Task
	chat    []domain.ChatMessage

	thinking     int
	intelLoading int
	intelResult  *domain.IntelQueryResult
	intelQuery   string

	drops       []domain.IntelDrop
	dropFetches uint64 // last started feed fetch
	dropApplied uint64 // last applied feed fetch
	deleting    map[string]struct{}
	tombstones  map[string]struct{}

	mutations     map[string]*Mutation
	mutationOrder []string

	subscribedFor string
	unsubs        []func()
}

func (st *state) userID() string {
	if st.session == nil {
		return ""
	}
	return st.session.UserID
}

func (st *state) authenticated() bool {
	return st.session != nil
}

func (st *state) isAdmin() bool {
	return st.profile != nil && st.profile.IsAdmin
}

func (st *state) stats() domain.Stats {
	if st.profile == nil {
		return domain.Stats{}
	}
	return st.profile.Stats
}

func (st *state) taskIndex(key string) int {
	for i, t := range st.tasks {
		if t.Matches(key) {
			return i
		}
	}
	return -1
}

func (st *state) taskByRemoteID(id string) int {
	if id == "" {
		return -1
	}
	for i, t := range st.tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (st *state) provisionalIndex(localID string) int {
	if localID == "" {
		return -1
	}
	for i, t := range st.tasks {
		if t.Provisional() && t.LocalID == localID {
			return i
		}
	}
	return -1
}

func (st *state) removeTask(i int) domain.Task {
	t := st.tasks[i]
	st.tasks = append(st.tasks[:i:i], st.tasks[i+1:]...)
	return t
}

func (st *state) dropIndex(id string) int {
	for i, d := range st.drops {
		if d.ID == id {
			return i
		}
	}
	return -1
}

// resetSession clears everything bound to the signed-in identity and starts
// a new epoch. The chat restarts from the boot message.
func (st *state) resetSession(boot domain.ChatMessage) []func() {
	unsubs := st.unsubs
	st.epoch++
	st.session = nil
	st.profile = nil
	st.tasks = nil
	st.chat = []domain.ChatMessage{boot}
	st.thinking = 0
	st.intelLoading = 0
	st.intelResult = nil
	st.intelQuery = ""
	st.drops = nil
	st.dropApplied = st.dropFetches
	st.deleting = map[string]struct{}{}
	st.tombstones = map[string]struct{}{}
	st.subscribedFor = ""
	st.unsubs = nil
	return unsubs
}

// Snapshot is a deep copy of the store state.
type Snapshot struct {
	Authenticated bool
	Session       *remote.Session
	Profile       *domain.UserProfile
	Tasks         []domain.Task
	Chat          []domain.ChatMessage
	Thinking      bool
	IntelLoading  bool
	IntelQuery    string
	IntelResult   *domain.IntelQueryResult
	IntelDrops    []domain.IntelDrop
	Mutations     []Mutation
}

func (st *state) snapshot() Snapshot {
	snap := Snapshot{
		Authenticated: st.authenticated(),
		Profile:       st.profile.Clone(),
		Tasks:         append([]domain.Task(nil), st.tasks...),
		Chat:          append([]domain.ChatMessage(nil), st.chat...),
		Thinking:      st.thinking > 0,
		IntelLoading:  st.intelLoading > 0,
		IntelQuery:    st.intelQuery,
		IntelResult:   st.intelResult.Clone(),
	}
	if st.session != nil {
		s := *st.session
		snap.Session = &s
	}
	snap.IntelDrops = make([]domain.IntelDrop, len(st.drops))
	for i, d := range st.drops {
		snap.IntelDrops[i] = d.Clone()
	}
	for _, id := range st.mutationOrder {
		if m, ok := st.mutations[id]; ok {
			snap.Mutations = append(snap.Mutations, *m)
		}
	}
	return snap
}

// Task returns the task addressed by key (remote or local id).
func (s Snapshot) Task(key string) (domain.Task, bool) {
	for _, t := range s.Tasks {
		if t.Matches(key) {
			return t, true
		}
	}
	return domain.Task{}, false
}

// Drop returns the drop with the given id.
func (s Snapshot) Drop(id string) (domain.IntelDrop, bool) {
	for _, d := range s.IntelDrops {
		if d.ID == id {
			return d, true
		}
	}
	return domain.IntelDrop{}, false
}
