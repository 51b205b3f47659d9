package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dohr-michael/orbit/internal/domain"
	"github.com/dohr-michael/orbit/internal/events"
	"github.com/dohr-michael/orbit/internal/remote"
)

// ErrEmptyQuery is returned for a blank research query.
var ErrEmptyQuery = errors.New("query is empty")

const colIntelInstructions = "intel_instructions"

// ExecuteIntelQuery runs a research query with the signed-in user's intel
// instructions and stores the result as the current one. Queries are not
// cancelled by newer ones: the last to finish wins. It requires a session.
func (s *Store) ExecuteIntelQuery(ctx context.Context, query string, deepDive bool) (*domain.IntelQueryResult, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, ErrEmptyQuery
	}

	var (
		uid   string
		epoch uint64
	)
	err := s.apply("intel_query", func(st *state) {
		if uid = st.userID(); uid == "" {
			return
		}
		st.intelLoading++
		st.intelResult = nil
		st.intelQuery = q
		epoch = st.epoch
	})
	if err != nil {
		return nil, err
	}
	if uid == "" {
		return nil, ErrNotAuthenticated
	}

	res, err := s.ai.Research(withSession(ctx, uid), q, s.loadInstructions(ctx, uid), deepDive)
	_ = s.apply("intel_result", func(st *state) {
		if st.epoch != epoch {
			return
		}
		st.intelLoading--
		if err == nil {
			st.intelResult = res.Clone()
			st.intelQuery = q
		}
	})

	payload := events.IntelResultPayload{Query: q, DeepDive: deepDive}
	if err != nil {
		payload.Error = err.Error()
	} else {
		payload.Bullets = len(res.SummaryBullets)
	}
	s.bus.Publish(events.NewTypedEvent(events.SourceStore, payload))

	if err != nil {
		return nil, err
	}
	return res.Clone(), nil
}

func (s *Store) loadInstructions(ctx context.Context, uid string) string {
	if uid == "" {
		return ""
	}
	rows, err := s.gw.Read(ctx, remote.TableProfiles, remote.Query{
		Filter: remote.Where(remote.Eq(domain.ColID, uid)),
		Limit:  1,
	})
	if err != nil {
		s.logger.Warn("load intel instructions", "user_id", uid, "error", err)
		return ""
	}
	if len(rows) == 0 {
		return ""
	}
	instr, _ := rows[0][colIntelInstructions].(string)
	return instr
}

// SaveIntelDrop persists the current result as a drop. An empty query
// defaults to the query that produced the result. The result is cleared
// only when the insert succeeds and no newer result replaced it.
func (s *Store) SaveIntelDrop(ctx context.Context, query string, isPrivate bool) error {
	var (
		res *domain.IntelQueryResult
		uid string
		mid string
		err error
	)
	applyErr := s.apply("save_drop", func(st *state) {
		if !st.authenticated() {
			err = ErrNotAuthenticated
			return
		}
		if st.intelResult == nil {
			err = ErrNoIntelResult
			return
		}
		res = st.intelResult
		uid = st.userID()
		if strings.TrimSpace(query) == "" {
			query = st.intelQuery
		}
		mid = s.begin(st, MutationSaveDrop, query)
	})
	if applyErr != nil {
		return applyErr
	}
	if err != nil {
		return err
	}

	err = s.insertDrop(ctx, domain.NewDropFromResult(uid, strings.TrimSpace(query), res, isPrivate))
	_ = s.apply("save_drop_settled", func(st *state) {
		s.settle(st, mid, err)
		if err == nil && st.intelResult == res {
			st.intelResult = nil
			st.intelQuery = ""
		}
	})
	if err != nil {
		return fmt.Errorf("save intel drop: %w", err)
	}
	if err := s.FetchIntelDrops(ctx); err != nil {
		s.logger.Warn("refresh intel feed", "error", err)
	}
	return nil
}

// PublishManualDrop publishes a hand-written public drop.
func (s *Store) PublishManualDrop(ctx context.Context, title, content string, tags []string) error {
	title = strings.TrimSpace(title)
	content = strings.TrimSpace(content)
	if title == "" || content == "" {
		return ErrEmptyTitle
	}

	var (
		uid, mid string
		err      error
	)
	applyErr := s.apply("publish_drop", func(st *state) {
		if !st.authenticated() {
			err = ErrNotAuthenticated
			return
		}
		uid = st.userID()
		mid = s.begin(st, MutationPublishDrop, title)
	})
	if applyErr != nil {
		return applyErr
	}
	if err != nil {
		return err
	}

	err = s.insertDrop(ctx, domain.NewManualDrop(uid, title, content, tags))
	s.settleAsync(mid, err)
	if err != nil {
		return fmt.Errorf("publish intel drop: %w", err)
	}
	if err := s.FetchIntelDrops(ctx); err != nil {
		s.logger.Warn("refresh intel feed", "error", err)
	}
	return nil
}

func (s *Store) insertDrop(ctx context.Context, d domain.IntelDrop) error {
	rec, err := domain.IntelDropRecord(d)
	if err != nil {
		return err
	}
	_, err = s.gw.Insert(ctx, remote.TableIntelDrops, rec)
	return err
}

// FetchIntelDrops replaces the feed with every public drop plus the user's
// private ones, newest first, with author display fields filled in. When
// fetches overlap the latest started one wins.
func (s *Store) FetchIntelDrops(ctx context.Context) error {
	var (
		uid   string
		epoch uint64
		seq   uint64
	)
	err := s.apply("", func(st *state) {
		uid = st.userID()
		if uid == "" {
			return
		}
		st.dropFetches++
		seq = st.dropFetches
		epoch = st.epoch
	})
	if err != nil {
		return err
	}
	if uid == "" {
		return ErrNotAuthenticated
	}

	rows, err := s.gw.Read(ctx, remote.TableIntelDrops, remote.Query{
		Filter: remote.Where().Or(
			remote.Eq(domain.ColIsPrivate, false),
			remote.Eq(domain.ColAuthorID, uid),
		),
		Order: []remote.Order{remote.Desc(domain.ColCreatedAt)},
	})
	if err != nil {
		return fmt.Errorf("fetch intel drops: %w", err)
	}

	drops := make([]domain.IntelDrop, 0, len(rows))
	authors := map[string]struct{}{}
	for _, row := range rows {
		d, err := domain.IntelDropFromRecord(row)
		if err != nil {
			s.logger.Warn("skip intel drop row", "id", row.ID(), "error", err)
			continue
		}
		if !d.VisibleTo(uid) {
			continue
		}
		drops = append(drops, d)
		authors[d.AuthorID] = struct{}{}
	}
	s.denormalizeAuthors(ctx, drops, authors)

	return s.apply("drops_fetched", func(st *state) {
		if st.epoch != epoch || seq < st.dropApplied {
			return
		}
		st.dropApplied = seq
		out := drops[:0]
		for _, d := range drops {
			if _, gone := st.tombstones[d.ID]; gone {
				continue
			}
			if _, pending := st.deleting[d.ID]; pending {
				continue
			}
			out = append(out, d)
		}
		st.drops = out
	})
}

func (s *Store) denormalizeAuthors(ctx context.Context, drops []domain.IntelDrop, authors map[string]struct{}) {
	if len(authors) == 0 {
		return
	}
	ids := make([]any, 0, len(authors))
	for id := range authors {
		ids = append(ids, id)
	}
	rows, err := s.gw.Read(ctx, remote.TableProfiles, remote.Query{
		Filter: remote.Where(remote.In(domain.ColID, ids...)),
	})
	if err != nil {
		s.logger.Warn("load drop authors", "error", err)
		return
	}
	profiles := make(map[string]*domain.UserProfile, len(rows))
	for _, row := range rows {
		p, err := domain.ProfileFromRecord(row)
		if err != nil {
			continue
		}
		profiles[p.ID] = p
	}
	for i := range drops {
		if p, ok := profiles[drops[i].AuthorID]; ok {
			drops[i].AuthorName = p.Username
			drops[i].AuthorAvatar = p.Avatar
		}
	}
}

// DeleteIntelDrop removes the drop locally, then remotely. When the remote
// delete fails the previous feed is restored exactly and the error returned.
// A refetch that races the delete does not bring the drop back.
func (s *Store) DeleteIntelDrop(ctx context.Context, id string) error {
	var (
		prev  []domain.IntelDrop
		mid   string
		epoch uint64
		err   error
	)
	applyErr := s.apply("delete_drop", func(st *state) {
		if !st.authenticated() {
			err = ErrNotAuthenticated
			return
		}
		i := st.dropIndex(id)
		if i < 0 {
			err = fmt.Errorf("%w: %s", ErrDropNotFound, id)
			return
		}
		prev = st.drops
		next := make([]domain.IntelDrop, 0, len(st.drops)-1)
		next = append(next, st.drops[:i]...)
		st.drops = append(next, st.drops[i+1:]...)
		st.deleting[id] = struct{}{}
		mid = s.begin(st, MutationDeleteDrop, id)
		epoch = st.epoch
	})
	if applyErr != nil {
		return applyErr
	}
	if err != nil {
		return err
	}

	err = s.gw.Delete(ctx, remote.TableIntelDrops, id)
	_ = s.apply("delete_drop_settled", func(st *state) {
		s.settle(st, mid, err)
		if st.epoch != epoch {
			return
		}
		delete(st.deleting, id)
		if err != nil {
			st.drops = prev
			return
		}
		st.tombstones[id] = struct{}{}
	})
	if err != nil {
		return fmt.Errorf("delete intel drop %s: %w", id, err)
	}
	return nil
}
