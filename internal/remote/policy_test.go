package remote

import (
	"context"
	"errors"
	"testing"
)

func TestPolicy_TasksScopedToOwner(t *testing.T) {
	db := newTestMemoryDB(t)
	p := NewPolicy(db)
	ctx := context.Background()

	mine, err := p.Insert(ctx, "me", TableTasks, Record{"title": "mine"})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if mine["user_id"] != "me" {
		t.Fatalf("expected owner to be stamped, got %v", mine["user_id"])
	}
	if _, err := p.Insert(ctx, "me", TableTasks, Record{"title": "spoof", "user_id": "other"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	theirs, err := p.Insert(ctx, "other", TableTasks, Record{"title": "theirs"})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	rows, err := p.Read(ctx, "me", TableTasks, Query{})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(rows) != 1 || rows[0].ID() != mine.ID() {
		t.Fatalf("expected only my task, got %v", rows)
	}

	if _, err := p.Update(ctx, "me", TableTasks, theirs.ID(), Record{"completed": true}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound updating another user's task, got %v", err)
	}
	if err := p.Delete(ctx, "me", TableTasks, theirs.ID()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting another user's task, got %v", err)
	}
	if err := p.Delete(ctx, "me", TableTasks, mine.ID()); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}

func TestPolicy_DropVisibilityAndDeletion(t *testing.T) {
	db := newTestMemoryDB(t)
	p := NewPolicy(db)
	ctx := context.Background()

	if _, err := db.Insert(ctx, TableProfiles, Record{"id": "admin", "username": "root", "is_admin": true}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	myPrivate, _ := p.Insert(ctx, "me", TableIntelDrops, Record{"query": "my private", "is_private": true})
	public, _ := p.Insert(ctx, "other", TableIntelDrops, Record{"query": "their public", "is_private": false})
	if _, err := p.Insert(ctx, "other", TableIntelDrops, Record{"query": "their private", "is_private": true}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	rows, err := p.Read(ctx, "me", TableIntelDrops, Query{Order: []Order{Desc("created_at")}})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 visible drops, got %d", len(rows))
	}
	for _, r := range rows {
		if r["query"] == "their private" {
			t.Fatal("private drop of another author leaked")
		}
	}

	if _, err := p.Update(ctx, "me", TableIntelDrops, myPrivate.ID(), Record{"query": "edited"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected drops to be immutable, got %v", err)
	}
	if err := p.Delete(ctx, "me", TableIntelDrops, public.ID()); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden deleting another author's drop, got %v", err)
	}
	if err := p.Delete(ctx, "admin", TableIntelDrops, public.ID()); err != nil {
		t.Fatalf("admin Delete: %v", err)
	}
	if err := p.Delete(ctx, "me", TableIntelDrops, myPrivate.ID()); err != nil {
		t.Fatalf("author Delete: %v", err)
	}
}

func TestPolicy_ProfilesAndPrivateTables(t *testing.T) {
	db := newTestMemoryDB(t)
	p := NewPolicy(db)
	ctx := context.Background()

	if _, err := db.Insert(ctx, TableProfiles, Record{"id": "me", "username": "me"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	updated, err := p.Update(ctx, "me", TableProfiles, "me", Record{"tasks_completed": 1, "is_admin": true})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated["is_admin"] != false {
		t.Fatal("users must not grant themselves admin")
	}
	if _, err := p.Update(ctx, "other", TableProfiles, "me", Record{"username": "pwned"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := p.Read(ctx, "me", TableUsers, Query{}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden on users, got %v", err)
	}
	if _, err := p.Read(ctx, "", TableTasks, Query{}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized without identity, got %v", err)
	}
}
