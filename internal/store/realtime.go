package store

import (
	"context"
	"errors"

	"github.com/dohr-michael/orbit/internal/domain"
	"github.com/dohr-michael/orbit/internal/events"
	"github.com/dohr-michael/orbit/internal/remote"
)

// subscribe establishes the task and intel drop subscriptions of uid unless
// the session already has them. A failure is logged; the next Initialize
// retries.
func (s *Store) subscribe(uid string, epoch uint64) {
	var need bool
	s.view(func(st *state) { need = st.epoch == epoch && st.subscribedFor != uid })
	if !need {
		return
	}

	unsubTasks, err := s.gw.Subscribe(s.ctx, remote.TableTasks,
		remote.Where(remote.Eq(domain.ColUserID, uid)),
		func(c remote.Change) { s.onTaskChange(epoch, c) })
	if err != nil {
		s.logger.Warn("subscribe tasks", "user_id", uid, "error", err)
		return
	}
	unsubDrops, err := s.gw.Subscribe(s.ctx, remote.TableIntelDrops, remote.Filter{},
		func(c remote.Change) { s.onDropChange(epoch, c) })
	if err != nil {
		unsubTasks()
		s.logger.Warn("subscribe intel drops", "user_id", uid, "error", err)
		return
	}

	kept := false
	_ = s.apply("", func(st *state) {
		if st.epoch != epoch || st.subscribedFor == uid {
			return
		}
		st.subscribedFor = uid
		st.unsubs = append(st.unsubs, unsubTasks, unsubDrops)
		kept = true
	})
	if !kept {
		unsubTasks()
		unsubDrops()
	}
}

// onTaskChange merges c and reports it on the bus, merged or not.
func (s *Store) onTaskChange(epoch uint64, c remote.Change) {
	err := s.apply("realtime_tasks", func(st *state) {
		if st.epoch != epoch {
			return
		}
		s.mergeTaskChange(st, c)
	})
	if err == nil {
		s.publishRealtime(c)
	}
}

// mergeTaskChange applies c to the task list. Inserts of a known id are
// ignored; an insert carrying the client ref of a provisional task confirms
// it in place. Updates and deletes of unknown ids are ignored.
func (s *Store) mergeTaskChange(st *state, c remote.Change) bool {
	switch c.Kind {
	case remote.ChangeInsert, remote.ChangeUpdate:
		t, err := domain.TaskFromRecord(c.Record)
		if err != nil {
			s.logger.Warn("decode task change", "kind", c.Kind, "error", err)
			return false
		}
		if i := st.taskByRemoteID(t.ID); i >= 0 {
			if c.Kind == remote.ChangeInsert {
				return false
			}
			if t.LocalID == "" {
				t.LocalID = st.tasks[i].LocalID
			}
			st.tasks[i] = t
			return true
		}
		if c.Kind == remote.ChangeUpdate {
			return false
		}
		if i := st.provisionalIndex(t.LocalID); i >= 0 {
			st.tasks[i] = t
			return true
		}
		st.tasks = append(st.tasks, t)
		return true
	case remote.ChangeDelete:
		i := st.taskByRemoteID(c.Row().ID())
		if i < 0 {
			return false
		}
		st.removeTask(i)
		return true
	}
	return false
}

func (s *Store) onDropChange(epoch uint64, c remote.Change) {
	switch c.Kind {
	case remote.ChangeInsert, remote.ChangeUpdate:
		s.publishRealtime(c)
		s.goBackground(func(ctx context.Context) {
			err := s.FetchIntelDrops(ctx)
			if err != nil && ctx.Err() == nil && !errors.Is(err, ErrNotAuthenticated) {
				s.logger.Warn("refresh intel feed", "error", err)
			}
		})
	case remote.ChangeDelete:
		id := c.Row().ID()
		err := s.apply("realtime_drops", func(st *state) {
			if st.epoch != epoch {
				return
			}
			if i := st.dropIndex(id); i >= 0 {
				st.drops = append(st.drops[:i:i], st.drops[i+1:]...)
			}
		})
		if err == nil {
			s.publishRealtime(c)
		}
	}
}

func (s *Store) publishRealtime(c remote.Change) {
	s.bus.Publish(events.NewTypedEvent(events.SourceStore, events.RealtimePayload{
		Table:    c.Table,
		Kind:     string(c.Kind),
		RecordID: c.Row().ID(),
	}))
}
