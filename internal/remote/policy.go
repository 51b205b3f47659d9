package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/dohr-michael/orbit/internal/domain"
)

// Policy applies row-level access rules on top of a DB, on behalf of an
// authenticated user:
//
//   - profiles: readable by everyone, writable only by their owner, never
//     created or deleted through a gateway.
//   - tasks: visible and writable only by their owner.
//   - intel_drops: visible when public or authored by the caller; immutable;
//     deletable by the author or an admin.
//   - users and auth_tokens are unreachable.
type Policy struct {
	db DB
}

// NewPolicy wraps db.
func NewPolicy(db DB) *Policy {
	return &Policy{db: db}
}

func (p *Policy) check(userID, table string) error {
	if userID == "" {
		return ErrUnauthorized
	}
	if privateTable(table) {
		return fmt.Errorf("%w: table %s", ErrForbidden, table)
	}
	if _, err := tableColumns(table); err != nil {
		return err
	}
	return nil
}

// Visible reports whether userID may observe rec of table.
func (p *Policy) Visible(userID, table string, rec Record) bool {
	switch table {
	case TableProfiles:
		return true
	case TableTasks:
		return rec[domain.ColUserID] == userID
	case TableIntelDrops:
		if private, _ := rec[domain.ColIsPrivate].(bool); !private {
			return true
		}
		return rec[domain.ColAuthorID] == userID
	}
	return false
}

func (p *Policy) isAdmin(ctx context.Context, userID string) (bool, error) {
	prof, err := p.db.Get(ctx, TableProfiles, userID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	admin, _ := prof["is_admin"].(bool)
	return admin, nil
}

func (p *Policy) Read(ctx context.Context, userID, table string, q Query) ([]Record, error) {
	if err := p.check(userID, table); err != nil {
		return nil, err
	}
	limit := q.Limit
	q.Limit = 0
	rows, err := p.db.Read(ctx, table, q)
	if err != nil {
		return nil, err
	}
	out := rows[:0]
	for _, r := range rows {
		if p.Visible(userID, table, r) {
			out = append(out, r)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (p *Policy) Insert(ctx context.Context, userID, table string, rec Record) (Record, error) {
	if err := p.check(userID, table); err != nil {
		return nil, err
	}
	rec = rec.Clone()
	switch table {
	case TableProfiles:
		return nil, fmt.Errorf("%w: profiles are created at sign-up", ErrForbidden)
	case TableTasks:
		if owner, ok := rec[domain.ColUserID]; ok && owner != userID {
			return nil, fmt.Errorf("%w: task owned by another user", ErrForbidden)
		}
		rec[domain.ColUserID] = userID
	case TableIntelDrops:
		if author, ok := rec[domain.ColAuthorID]; ok && author != userID {
			return nil, fmt.Errorf("%w: drop authored by another user", ErrForbidden)
		}
		rec[domain.ColAuthorID] = userID
	}
	return p.db.Insert(ctx, table, rec)
}

func (p *Policy) Update(ctx context.Context, userID, table, id string, patch Record) (Record, error) {
	if err := p.check(userID, table); err != nil {
		return nil, err
	}
	patch = patch.Clone()
	switch table {
	case TableProfiles:
		if id != userID {
			return nil, fmt.Errorf("%w: profile of another user", ErrForbidden)
		}
		delete(patch, "is_admin")
	case TableTasks:
		if err := p.owned(ctx, userID, table, id); err != nil {
			return nil, err
		}
		delete(patch, domain.ColUserID)
		delete(patch, domain.ColClientRef)
	case TableIntelDrops:
		return nil, fmt.Errorf("%w: intel drops are immutable", ErrForbidden)
	}
	return p.db.Update(ctx, table, id, patch)
}

func (p *Policy) Delete(ctx context.Context, userID, table, id string) error {
	if err := p.check(userID, table); err != nil {
		return err
	}
	switch table {
	case TableProfiles:
		return fmt.Errorf("%w: profiles cannot be deleted", ErrForbidden)
	case TableTasks:
		if err := p.owned(ctx, userID, table, id); err != nil {
			return err
		}
	case TableIntelDrops:
		row, err := p.db.Get(ctx, table, id)
		if err != nil {
			return err
		}
		if !p.Visible(userID, table, row) {
			return fmt.Errorf("%s %s: %w", table, id, ErrNotFound)
		}
		if row[domain.ColAuthorID] != userID {
			admin, err := p.isAdmin(ctx, userID)
			if err != nil {
				return err
			}
			if !admin {
				return fmt.Errorf("%w: only the author or an admin can delete a drop", ErrForbidden)
			}
		}
	}
	_, err := p.db.Delete(ctx, table, id)
	return err
}

// owned hides rows of other users behind ErrNotFound.
func (p *Policy) owned(ctx context.Context, userID, table, id string) error {
	row, err := p.db.Get(ctx, table, id)
	if err != nil {
		return err
	}
	if !p.Visible(userID, table, row) {
		return fmt.Errorf("%s %s: %w", table, id, ErrNotFound)
	}
	return nil
}

func (p *Policy) Subscribe(ctx context.Context, userID, table string, filter Filter, fn func(Change)) (func(), error) {
	if err := p.check(userID, table); err != nil {
		return nil, err
	}
	return p.db.Subscribe(ctx, table, filter, func(c Change) {
		if !p.Visible(userID, table, c.Row()) {
			return
		}
		fn(c)
	})
}
