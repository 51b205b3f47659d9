package remote

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type memTable struct {
	rows []Record
}

func (t *memTable) index(id string) int {
	for i, r := range t.rows {
		if r.ID() == id {
			return i
		}
	}
	return -1
}

// MemoryDB is an in-process DB. Rows keep insertion order.
type MemoryDB struct {
	mu     sync.RWMutex
	tables map[string]*memTable
	feed   *Feed
	now    func() time.Time
	closed bool
}

// NewMemoryDB creates an empty database publishing changes on feed.
func NewMemoryDB(feed *Feed) *MemoryDB {
	if feed == nil {
		feed = NewFeed(nil)
	}
	m := &MemoryDB{
		tables: make(map[string]*memTable),
		feed:   feed,
		now:    time.Now,
	}
	for name := range schema {
		m.tables[name] = &memTable{}
	}
	return m
}

func (m *MemoryDB) table(name string) (*memTable, error) {
	if m.closed {
		return nil, ErrClosed
	}
	t, ok := m.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, name)
	}
	return t, nil
}

func (m *MemoryDB) Get(ctx context.Context, table, id string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, err := m.table(table)
	if err != nil {
		return nil, err
	}
	i := t.index(id)
	if i < 0 {
		return nil, fmt.Errorf("%s %s: %w", table, id, ErrNotFound)
	}
	return cloneRow(t.rows[i]), nil
}

func (m *MemoryDB) Read(ctx context.Context, table string, q Query) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := q.Validate(table); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, err := m.table(table)
	if err != nil {
		return nil, err
	}
	rows := q.apply(t.rows)
	out := make([]Record, len(rows))
	for i, r := range rows {
		out[i] = cloneRow(r)
	}
	return out, nil
}

func (m *MemoryDB) Insert(ctx context.Context, table string, rec Record) (Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	row, err := prepareInsert(table, rec, m.now())
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.table(table)
	if err != nil {
		return nil, err
	}
	if t.index(row.ID()) >= 0 {
		return nil, fmt.Errorf("%w: duplicate id %s", ErrInvalidInput, row.ID())
	}
	t.rows = append(t.rows, row)
	// Published under the lock so the feed sees commit order.
	m.emit(ctx, Change{Kind: ChangeInsert, Table: table, Record: cloneRow(row)})
	return cloneRow(row), nil
}

func (m *MemoryDB) Update(ctx context.Context, table, id string, patch Record) (Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	set, err := preparePatch(table, patch)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.table(table)
	if err != nil {
		return nil, err
	}
	i := t.index(id)
	if i < 0 {
		return nil, fmt.Errorf("%s %s: %w", table, id, ErrNotFound)
	}
	old := t.rows[i]
	row := old.Clone()
	for k, v := range set {
		row[k] = v
	}
	t.rows[i] = row
	m.emit(ctx, Change{Kind: ChangeUpdate, Table: table, Record: cloneRow(row), Old: cloneRow(old)})
	return cloneRow(row), nil
}

func (m *MemoryDB) Delete(ctx context.Context, table, id string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.table(table)
	if err != nil {
		return nil, err
	}
	i := t.index(id)
	if i < 0 {
		return nil, fmt.Errorf("%s %s: %w", table, id, ErrNotFound)
	}
	old := t.rows[i]
	t.rows = append(t.rows[:i:i], t.rows[i+1:]...)
	m.emit(ctx, Change{Kind: ChangeDelete, Table: table, Old: cloneRow(old)})
	return cloneRow(old), nil
}

func (m *MemoryDB) Subscribe(ctx context.Context, table string, filter Filter, fn func(Change)) (func(), error) {
	if _, err := tableColumns(table); err != nil {
		return nil, err
	}
	return m.feed.Subscribe(ctx, table, filter, fn), nil
}

func (m *MemoryDB) emit(ctx context.Context, c Change) {
	if privateTable(c.Table) {
		return
	}
	if err := m.feed.Publish(ctx, c); err != nil {
		slog.Warn("publish change", "table", c.Table, "kind", c.Kind, "error", err)
	}
}

func (m *MemoryDB) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		m.feed.Close()
	}
	return nil
}
