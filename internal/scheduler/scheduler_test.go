package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dohr-michael/orbit/internal/events"
)

type fakeStore struct {
	calls atomic.Int32
	err   error
	block chan struct{}
}

func (f *fakeStore) Refresh(ctx context.Context) error {
	f.calls.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.err
}

func TestNew_InvalidSpec(t *testing.T) {
	if _, err := New(Config{Store: &fakeStore{}, Spec: "every now and then"}); err == nil {
		t.Fatal("expected error for invalid spec")
	}
}

func TestTrigger_PublishesOutcome(t *testing.T) {
	bus := events.NewBus(64)
	defer bus.Close()
	ch, unsub := bus.SubscribeChan(4, events.EventResync)
	defer unsub()

	store := &fakeStore{err: errors.New("remote down")}
	s, err := New(Config{Store: store, Bus: bus, Spec: "*/5 * * * *"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := s.Trigger(context.Background(), "manual"); err == nil {
		t.Fatal("expected refresh error")
	}

	select {
	case e := <-ch:
		p, ok := events.ExtractPayload[events.ResyncPayload](e)
		if !ok {
			t.Fatal("expected resync payload")
		}
		if p.Trigger != "manual" || p.Error != "remote down" {
			t.Fatalf("unexpected payload %+v", p)
		}
		if e.Source != events.SourceScheduler {
			t.Fatalf("expected scheduler source, got %q", e.Source)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for resync event")
	}

	runs, last, next := s.Status()
	if runs != 1 || last.IsZero() || !next.After(last) {
		t.Fatalf("unexpected status runs=%d last=%v next=%v", runs, last, next)
	}
}

func TestTrigger_RejectsOverlap(t *testing.T) {
	store := &fakeStore{block: make(chan struct{})}
	s, err := New(Config{Store: store, Spec: "@hourly"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Trigger(context.Background(), "first") }()

	deadline := time.Now().Add(2 * time.Second)
	for store.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first resync never started")
		}
		time.Sleep(time.Millisecond)
	}

	if err := s.Trigger(context.Background(), "second"); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	close(store.block)
	if err := <-done; err != nil {
		t.Fatalf("first Trigger: %v", err)
	}
}

func TestTrigger_Timeout(t *testing.T) {
	store := &fakeStore{block: make(chan struct{})}
	s, err := New(Config{Store: store, Spec: "@hourly", Timeout: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Trigger(context.Background(), "manual"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestScheduler_RunsOnSchedule(t *testing.T) {
	store := &fakeStore{}
	s, err := New(Config{Store: store, Spec: "@every 1s"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	s.Start(ctx) // idempotent

	deadline := time.Now().Add(5 * time.Second)
	for store.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("expected at least one scheduled resync")
		}
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	s.Stop()
}
