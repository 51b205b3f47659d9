package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/dohr-michael/orbit/internal/domain"
	"github.com/dohr-michael/orbit/internal/remote"
)

// CreateTask appends a provisional task, classifies its difficulty when the
// input has none, and inserts it remotely. The provisional record is
// confirmed in place once the remote id is known. On failure it stays
// provisional and the error is returned. Without a session it does nothing.
func (s *Store) CreateTask(ctx context.Context, in domain.TaskInput) error {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return ErrEmptyTitle
	}
	category := in.Category
	if category == "" {
		category = domain.DefaultCategory
	}
	if !category.Valid() {
		return fmt.Errorf("unknown category %q", category)
	}
	if in.Difficulty != "" && !in.Difficulty.Valid() {
		return fmt.Errorf("unknown difficulty %q", in.Difficulty)
	}

	task := domain.Task{
		LocalID:    domain.NewLocalID(),
		Title:      title,
		Category:   category,
		Difficulty: in.Difficulty,
		CreatedAt:  s.now().UTC(),
		Pending:    true,
		Analyzing:  in.Difficulty == "",
	}

	var (
		authed bool
		mid    string
	)
	err := s.apply("create_task", func(st *state) {
		if !st.authenticated() {
			return
		}
		authed = true
		task.UserID = st.userID()
		st.tasks = append(st.tasks, task)
		mid = s.begin(st, MutationCreateTask, task.LocalID)
	})
	if err != nil || !authed {
		return err
	}

	if task.Difficulty == "" {
		task.Difficulty = s.ai.ClassifyDifficulty(withSession(ctx, task.UserID), title)
		task.Analyzing = false
		_ = s.apply("classify_task", func(st *state) {
			if i := st.taskIndex(task.LocalID); i >= 0 {
				st.tasks[i].Difficulty = task.Difficulty
				st.tasks[i].Analyzing = false
			}
		})
	}

	confirmed, err := s.insertTask(ctx, task)
	_ = s.apply("create_task_settled", func(st *state) {
		s.settle(st, mid, err)
		i := st.taskIndex(task.LocalID)
		if i < 0 {
			return
		}
		if err != nil {
			st.tasks[i].Pending = false
			return
		}
		st.tasks[i] = confirmed
		for j := len(st.tasks) - 1; j >= 0; j-- {
			if j != i && st.tasks[j].ID == confirmed.ID {
				st.removeTask(j)
			}
		}
	})
	if err != nil {
		return fmt.Errorf("create task %q: %w", title, err)
	}
	return nil
}

func (s *Store) insertTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	rec, err := domain.TaskRecord(t)
	if err != nil {
		return domain.Task{}, err
	}
	row, err := s.gw.Insert(ctx, remote.TableTasks, rec)
	if err != nil {
		return domain.Task{}, err
	}
	confirmed, err := domain.TaskFromRecord(row)
	if err != nil {
		return domain.Task{}, err
	}
	if confirmed.LocalID == "" {
		confirmed.LocalID = t.LocalID
	}
	return confirmed, nil
}

// ToggleTask sets the completion of the task addressed by key to
// !previous. Completing a task increments TasksCompleted and pushes the
// counters; un-completing never decrements them.
func (s *Store) ToggleTask(ctx context.Context, key string, previous bool) error {
	var (
		id, mid string
		err     error
	)
	applyErr := s.apply("toggle_task", func(st *state) {
		var i int
		if i, err = st.confirmedTask(key); err != nil {
			return
		}
		id = st.tasks[i].ID
		st.tasks[i].Completed = !previous
		if !previous && st.profile != nil {
			st.profile.Stats.TasksCompleted++
		}
		mid = s.begin(st, MutationToggleTask, id)
	})
	if applyErr != nil {
		return applyErr
	}
	if err != nil {
		return err
	}

	_, err = s.gw.Update(ctx, remote.TableTasks, id, remote.Record{"completed": !previous})
	s.settleAsync(mid, err)
	if err != nil {
		return fmt.Errorf("toggle task %s: %w", id, err)
	}
	if !previous {
		s.pushStats(ctx)
	}
	return nil
}

// ForfeitTask removes the task, deletes it remotely and increments
// TasksForfeited.
func (s *Store) ForfeitTask(ctx context.Context, key string) error {
	return s.removeTask(ctx, key, MutationForfeitTask, func(st *state) error {
		if st.profile != nil {
			st.profile.Stats.TasksForfeited++
		}
		return nil
	})
}

// DeleteTask removes the task like ForfeitTask but leaves the counters
// alone. Admins only.
func (s *Store) DeleteTask(ctx context.Context, key string) error {
	return s.removeTask(ctx, key, MutationDeleteTask, func(st *state) error {
		if !st.isAdmin() {
			return ErrNotAdmin
		}
		return nil
	})
}

func (s *Store) removeTask(ctx context.Context, key string, kind MutationKind, pre func(*state) error) error {
	var (
		id, mid string
		err     error
	)
	applyErr := s.apply(string(kind), func(st *state) {
		var i int
		if i, err = st.confirmedTask(key); err != nil {
			return
		}
		if err = pre(st); err != nil {
			return
		}
		id = st.removeTask(i).ID
		mid = s.begin(st, kind, id)
	})
	if applyErr != nil {
		return applyErr
	}
	if err != nil {
		return err
	}

	err = s.gw.Delete(ctx, remote.TableTasks, id)
	s.settleAsync(mid, err)
	if err != nil {
		return fmt.Errorf("%s %s: %w", kind, id, err)
	}
	if kind == MutationForfeitTask {
		s.pushStats(ctx)
	}
	return nil
}

func (st *state) confirmedTask(key string) (int, error) {
	if !st.authenticated() {
		return -1, ErrNotAuthenticated
	}
	i := st.taskIndex(key)
	if i < 0 {
		return -1, fmt.Errorf("%w: %s", ErrTaskNotFound, key)
	}
	if st.tasks[i].Provisional() {
		return -1, fmt.Errorf("%w: %s", ErrTaskProvisional, key)
	}
	return i, nil
}

// pushStats writes the current counters to the profile row. Failures are
// logged. Pushes are serialized so the last one carries the latest counters.
func (s *Store) pushStats(ctx context.Context) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	var (
		uid   string
		stats domain.Stats
		mid   string
	)
	err := s.apply("", func(st *state) {
		if st.profile == nil {
			return
		}
		uid = st.profile.ID
		stats = st.profile.Stats
		mid = s.begin(st, MutationPushStats, uid)
	})
	if err != nil || uid == "" {
		return
	}
	_, err = s.gw.Update(ctx, remote.TableProfiles, uid, domain.StatsRecord(stats))
	s.settleAsync(mid, err)
	if err != nil {
		s.logger.Warn("push stats", "user_id", uid, "error", err)
	}
}
