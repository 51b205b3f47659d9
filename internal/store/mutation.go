package store

import (
	"time"

	"github.com/dohr-michael/orbit/internal/events"
)

// MutationKind names a remote-writing operation.
type MutationKind string

const (
	MutationCreateTask  MutationKind = "create_task"
	MutationToggleTask  MutationKind = "toggle_task"
	MutationForfeitTask MutationKind = "forfeit_task"
	MutationDeleteTask  MutationKind = "delete_task"
	MutationPushStats   MutationKind = "push_stats"
	MutationSaveDrop    MutationKind = "save_drop"
	MutationPublishDrop MutationKind = "publish_drop"
	MutationDeleteDrop  MutationKind = "delete_drop"
)

// MutationState is the lifecycle of a mutation: pending, then exactly one of
// confirmed or failed.
type MutationState string

const (
	MutationPending   MutationState = "pending"
	MutationConfirmed MutationState = "confirmed"
	MutationFailed    MutationState = "failed"
)

// Mutation tracks one in-flight remote write.
type Mutation struct {
	ID        string
	Kind      MutationKind
	Target    string
	State     MutationState
	Err       string
	StartedAt time.Time
}

// begin registers a pending mutation. Must run inside a transform.
func (s *Store) begin(st *state, kind MutationKind, target string) string {
	m := &Mutation{
		ID:        s.newID(),
		Kind:      kind,
		Target:    target,
		State:     MutationPending,
		StartedAt: s.now(),
	}
	st.mutations[m.ID] = m
	st.mutationOrder = append(st.mutationOrder, m.ID)
	s.publishMutation(m)
	return m.ID
}

// settle moves a pending mutation to confirmed or failed. Settling twice is a
// no-op. Must run inside a transform.
func (s *Store) settle(st *state, id string, err error) {
	m, ok := st.mutations[id]
	if !ok || m.State != MutationPending {
		return
	}
	if err != nil {
		m.State = MutationFailed
		m.Err = err.Error()
	} else {
		m.State = MutationConfirmed
	}
	s.publishMutation(m)

	delete(st.mutations, id)
	for i, mid := range st.mutationOrder {
		if mid == id {
			st.mutationOrder = append(st.mutationOrder[:i:i], st.mutationOrder[i+1:]...)
			break
		}
	}
}

// settleAsync settles a mutation from outside the inbox.
func (s *Store) settleAsync(id string, err error) {
	s.apply("settle", func(st *state) { s.settle(st, id, err) })
}

func (s *Store) publishMutation(m *Mutation) {
	s.bus.Publish(events.NewTypedEvent(events.SourceStore, events.MutationPayload{
		ID:     m.ID,
		Kind:   string(m.Kind),
		Target: m.Target,
		State:  string(m.State),
		Error:  m.Err,
	}))
}
