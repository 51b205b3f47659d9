package store

import (
	"context"
	"errors"
	"testing"

	"github.com/dohr-michael/orbit/internal/domain"
	"github.com/dohr-michael/orbit/internal/events"
	"github.com/dohr-michael/orbit/internal/remote"
)

func TestCreateTask_ClassifiesWithoutDuplicates(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "neo")

	feed, unsub := env.store.Bus().SubscribeChan(16, events.EventRealtime)
	defer unsub()

	if err := env.store.CreateTask(context.Background(), domain.TaskInput{Title: "Refactor the parser"}); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	// The change feed echoes our own insert.
	waitEvent(t, feed, realtimeOn(remote.TableTasks, remote.ChangeInsert))

	snap := env.store.Snapshot()
	if n := countTitle(snap.Tasks, "Refactor the parser"); n != 1 {
		t.Fatalf("expected exactly one task, got %d", n)
	}
	task, _ := snap.Task(snap.Tasks[0].Key())
	if task.Difficulty != domain.DifficultyHard {
		t.Errorf("expected difficulty Hard, got %q", task.Difficulty)
	}
	if task.Analyzing || task.Pending {
		t.Errorf("expected transient flags cleared, got %+v", task)
	}
	if task.Provisional() {
		t.Error("expected a confirmed remote id")
	}
	if task.Category != domain.CategoryGrind {
		t.Errorf("expected default category Grind, got %q", task.Category)
	}
	if len(snap.Mutations) != 0 {
		t.Errorf("expected no in-flight mutations, got %+v", snap.Mutations)
	}
}

func TestCreateTask_ProvisionalWhileAnalyzing(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "neo")

	gate := make(chan struct{})
	env.ai.mu.Lock()
	env.ai.classify = gate
	env.ai.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- env.store.CreateTask(context.Background(), domain.TaskInput{Title: "Ship it"})
	}()

	waitFor(t, "provisional task", func() bool {
		return countTitle(env.store.Snapshot().Tasks, "Ship it") == 1
	})
	snap := env.store.Snapshot()
	task := snap.Tasks[0]
	if !task.Provisional() || !task.Analyzing || !task.Pending {
		t.Fatalf("expected provisional analyzing task, got %+v", task)
	}
	if len(snap.Mutations) != 1 || snap.Mutations[0].State != MutationPending {
		t.Fatalf("expected one pending mutation, got %+v", snap.Mutations)
	}

	err := env.store.ToggleTask(context.Background(), task.LocalID, false)
	if !errors.Is(err, ErrTaskProvisional) {
		t.Fatalf("expected ErrTaskProvisional, got %v", err)
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	snap = env.store.Snapshot()
	if countTitle(snap.Tasks, "Ship it") != 1 || snap.Tasks[0].Provisional() {
		t.Fatalf("expected one confirmed task, got %+v", snap.Tasks)
	}
}

func TestCreateTask_ExplicitDifficultySkipsClassification(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "neo")

	gate := make(chan struct{}) // never closed: classification would hang
	env.ai.mu.Lock()
	env.ai.classify = gate
	env.ai.mu.Unlock()

	err := env.store.CreateTask(context.Background(), domain.TaskInput{
		Title:      "Quick fix",
		Category:   domain.CategoryQuick,
		Difficulty: domain.DifficultyEasy,
	})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	task := env.store.Snapshot().Tasks[0]
	if task.Difficulty != domain.DifficultyEasy || task.Category != domain.CategoryQuick {
		t.Fatalf("unexpected task %+v", task)
	}
}

func TestCreateTask_FailureKeepsProvisional(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "neo")
	env.gw.failOn("insert", remote.TableTasks, errInjected)

	muts, unsub := env.store.Bus().SubscribeChan(16, events.EventMutation)
	defer unsub()

	err := env.store.CreateTask(context.Background(), domain.TaskInput{Title: "Doomed"})
	if !errors.Is(err, errInjected) {
		t.Fatalf("expected injected error, got %v", err)
	}

	snap := env.store.Snapshot()
	if len(snap.Tasks) != 1 || !snap.Tasks[0].Provisional() {
		t.Fatalf("expected provisional task to remain, got %+v", snap.Tasks)
	}
	if len(snap.Mutations) != 0 {
		t.Fatalf("expected failed mutation to leave the in-flight list, got %+v", snap.Mutations)
	}

	var states []string
	for len(states) < 2 {
		e := waitEvent(t, muts, func(events.Event) bool { return true })
		p, _ := events.GetMutationPayload(e)
		states = append(states, p.State)
	}
	if states[0] != string(MutationPending) || states[1] != string(MutationFailed) {
		t.Fatalf("expected pending then failed, got %v", states)
	}
}

func TestCreateTask_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Unauthenticated creation is a no-op.
	if err := env.store.CreateTask(ctx, domain.TaskInput{Title: "nobody"}); err != nil {
		t.Fatalf("CreateTask unauthenticated: %v", err)
	}
	if n := len(env.store.Snapshot().Tasks); n != 0 {
		t.Fatalf("expected no tasks, got %d", n)
	}

	env.register(t, "neo")
	if err := env.store.CreateTask(ctx, domain.TaskInput{Title: "   "}); !errors.Is(err, ErrEmptyTitle) {
		t.Fatalf("expected ErrEmptyTitle, got %v", err)
	}
	if err := env.store.CreateTask(ctx, domain.TaskInput{Title: "x", Category: "Chill"}); err == nil {
		t.Fatal("expected error for unknown category")
	}
}

func TestToggleTask_CompletionAsymmetry(t *testing.T) {
	env := newTestEnv(t)
	uid := env.register(t, "neo")
	ctx := context.Background()
	task := env.createTask(t, "Write tests")

	feed, unsub := env.store.Bus().SubscribeChan(16, events.EventRealtime)
	defer unsub()

	steps := []struct {
		previous bool
		want     int
	}{
		{false, 1}, // complete
		{true, 1},  // un-complete never decrements
		{false, 2}, // complete again
	}
	for i, step := range steps {
		if err := env.store.ToggleTask(ctx, task.ID, step.previous); err != nil {
			t.Fatalf("step %d: ToggleTask: %v", i, err)
		}
		// Echoes arrive in commit order; wait for ours before asserting.
		waitEvent(t, feed, realtimeOn(remote.TableTasks, remote.ChangeUpdate))
		snap := env.store.Snapshot()
		got, _ := snap.Task(task.ID)
		if got.Completed != !step.previous {
			t.Errorf("step %d: expected completed=%v", i, !step.previous)
		}
		if snap.Profile.Stats.TasksCompleted != step.want {
			t.Errorf("step %d: expected TasksCompleted=%d, got %d", i, step.want, snap.Profile.Stats.TasksCompleted)
		}
	}

	row, err := env.db.Get(ctx, remote.TableProfiles, uid)
	if err != nil {
		t.Fatalf("Get profile: %v", err)
	}
	prof, err := domain.ProfileFromRecord(row)
	if err != nil {
		t.Fatalf("ProfileFromRecord: %v", err)
	}
	if prof.Stats.TasksCompleted != 2 {
		t.Errorf("expected pushed tasks_completed=2, got %d", prof.Stats.TasksCompleted)
	}
}

func TestToggleTask_Errors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.store.ToggleTask(ctx, "any", false); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
	env.register(t, "neo")
	if err := env.store.ToggleTask(ctx, "missing", false); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}

	task := env.createTask(t, "Flaky")
	env.gw.failOn("update", remote.TableTasks, errInjected)
	if err := env.store.ToggleTask(ctx, task.ID, false); !errors.Is(err, errInjected) {
		t.Fatalf("expected injected error, got %v", err)
	}
	// Task mutations are not compensated.
	got, _ := env.store.Snapshot().Task(task.ID)
	if !got.Completed {
		t.Error("expected optimistic completion to stay")
	}
}

func TestForfeitTask_IncrementsCounter(t *testing.T) {
	for _, prior := range []int{0, 1, 7, 41} {
		env := newTestEnv(t)
		uid := env.register(t, "neo")
		ctx := context.Background()

		if prior > 0 {
			if _, err := env.db.Update(ctx, remote.TableProfiles, uid, remote.Record{"tasks_forfeited": prior}); err != nil {
				t.Fatalf("seed counter: %v", err)
			}
			env.store.Initialize(ctx)
		}
		task := env.createTask(t, "Abandon me")

		if err := env.store.ForfeitTask(ctx, task.ID); err != nil {
			t.Fatalf("prior %d: ForfeitTask: %v", prior, err)
		}
		snap := env.store.Snapshot()
		if _, ok := snap.Task(task.ID); ok {
			t.Errorf("prior %d: expected task removed", prior)
		}
		if snap.Profile.Stats.TasksForfeited != prior+1 {
			t.Errorf("prior %d: expected TasksForfeited=%d, got %d", prior, prior+1, snap.Profile.Stats.TasksForfeited)
		}
		if _, err := env.db.Get(ctx, remote.TableTasks, task.ID); !errors.Is(err, remote.ErrNotFound) {
			t.Errorf("prior %d: expected remote row deleted, got %v", prior, err)
		}
	}
}

func TestDeleteTask_AdminOnly(t *testing.T) {
	env := newTestEnv(t)
	uid := env.register(t, "neo")
	ctx := context.Background()
	task := env.createTask(t, "Purge")

	if err := env.store.DeleteTask(ctx, task.ID); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin, got %v", err)
	}
	if _, ok := env.store.Snapshot().Task(task.ID); !ok {
		t.Fatal("expected task kept after refused delete")
	}

	if _, err := env.db.Update(ctx, remote.TableProfiles, uid, remote.Record{"is_admin": true}); err != nil {
		t.Fatalf("promote: %v", err)
	}
	env.store.Initialize(ctx)

	if err := env.store.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	snap := env.store.Snapshot()
	if len(snap.Tasks) != 0 {
		t.Fatalf("expected no tasks, got %+v", snap.Tasks)
	}
	if snap.Profile.Stats.TasksForfeited != 0 || snap.Profile.Stats.TasksCompleted != 0 {
		t.Fatalf("expected counters untouched, got %+v", snap.Profile.Stats)
	}
}
