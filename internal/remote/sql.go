package remote

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

const sqlOperationTimeout = 5 * time.Second

type dialect struct {
	name   string
	driver string
	// numbered placeholders ($1, $2) instead of ?
	numbered bool
	boolType string
	intType  string
}

var (
	sqliteDialect   = dialect{name: "sqlite", driver: "sqlite", boolType: "INTEGER", intType: "INTEGER"}
	postgresDialect = dialect{name: "postgres", driver: "postgres", numbered: true, boolType: "BOOLEAN", intType: "BIGINT"}
)

func (d dialect) quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (d dialect) columnType(k colKind) string {
	switch k {
	case colBool:
		return d.boolType
	case colInt:
		return d.intType
	}
	return "TEXT"
}

// args accumulates bound parameters and renders their placeholders.
type args struct {
	d    dialect
	vals []any
}

func (a *args) add(v any) string {
	a.vals = append(a.vals, v)
	if a.d.numbered {
		return "$" + strconv.Itoa(len(a.vals))
	}
	return "?"
}

// SQLDB is a DB over database/sql. Changes are handed to publish once the
// statement committed.
type SQLDB struct {
	db      *sql.DB
	dialect dialect
	publish func(ctx context.Context, c Change) error
	now     func() time.Time
	feed    *Feed
	onClose []func() error
}

func newSQLDB(db *sql.DB, d dialect, feed *Feed) *SQLDB {
	s := &SQLDB{
		db:      db,
		dialect: d,
		now:     time.Now,
		feed:    feed,
	}
	s.publish = feed.Publish
	return s
}

// Dialect returns the SQL dialect name.
func (s *SQLDB) Dialect() string { return s.dialect.name }

func (s *SQLDB) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, sqlOperationTimeout)
}

func (s *SQLDB) Get(ctx context.Context, table, id string) (Record, error) {
	rows, err := s.Read(ctx, table, Query{Filter: Where(Eq("id", id)), Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s %s: %w", table, id, ErrNotFound)
	}
	return rows[0], nil
}

func (s *SQLDB) Read(ctx context.Context, table string, q Query) ([]Record, error) {
	if err := q.Validate(table); err != nil {
		return nil, err
	}
	cols := schema[table]
	a := &args{d: s.dialect}

	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = s.dialect.quote(c.name)
	}
	stmt := fmt.Sprintf("SELECT %s FROM %s", strings.Join(quoted, ", "), s.dialect.quote(table))

	var where []string
	for _, c := range q.Filter.All {
		frag, err := s.conditionSQL(table, c, a)
		if err != nil {
			return nil, err
		}
		where = append(where, frag)
	}
	if len(q.Filter.AnyOf) > 0 {
		var alts []string
		for _, c := range q.Filter.AnyOf {
			frag, err := s.conditionSQL(table, c, a)
			if err != nil {
				return nil, err
			}
			alts = append(alts, frag)
		}
		where = append(where, "("+strings.Join(alts, " OR ")+")")
	}
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ")
	}

	var order []string
	for _, o := range q.Order {
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		order = append(order, s.dialect.quote(o.Column)+" "+dir)
	}
	if len(order) > 0 {
		stmt += " ORDER BY " + strings.Join(order, ", ")
	}
	if q.Limit > 0 {
		stmt += " LIMIT " + strconv.Itoa(q.Limit)
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, stmt, a.vals...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows, cols)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLDB) conditionSQL(table string, c Condition, a *args) (string, error) {
	col, _ := schema[table].lookup(c.Column)
	switch c.Op {
	case OpEq:
		v, err := s.bind(col, c.Value)
		if err != nil {
			return "", err
		}
		return s.dialect.quote(c.Column) + " = " + a.add(v), nil
	case OpIn:
		if len(c.Values) == 0 {
			return "1 = 0", nil
		}
		ph := make([]string, len(c.Values))
		for i, raw := range c.Values {
			v, err := s.bind(col, raw)
			if err != nil {
				return "", err
			}
			ph[i] = a.add(v)
		}
		return s.dialect.quote(c.Column) + " IN (" + strings.Join(ph, ", ") + ")", nil
	}
	return "", fmt.Errorf("%w: unknown operator %q", ErrInvalidInput, c.Op)
}

// bind converts a value to what the driver stores for col.
func (s *SQLDB) bind(col column, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	cv, err := coerce(col, v)
	if err != nil {
		return nil, fmt.Errorf("%w: column %s: %v", ErrInvalidInput, col.name, err)
	}
	if col.kind == colJSON {
		data, err := json.Marshal(cv)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	}
	return cv, nil
}

func (s *SQLDB) Insert(ctx context.Context, table string, rec Record) (Record, error) {
	row, err := prepareInsert(table, rec, s.now())
	if err != nil {
		return nil, err
	}
	cols := schema[table]
	a := &args{d: s.dialect}
	var names, ph []string
	for _, c := range cols {
		v, ok := row[c.name]
		if !ok {
			continue
		}
		bv, err := s.bind(c, v)
		if err != nil {
			return nil, err
		}
		names = append(names, s.dialect.quote(c.name))
		ph = append(ph, a.add(bv))
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.dialect.quote(table), strings.Join(names, ", "), strings.Join(ph, ", "))

	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	if _, err := s.db.ExecContext(opCtx, stmt, a.vals...); err != nil {
		return nil, fmt.Errorf("insert %s: %w", table, err)
	}

	out, err := s.Get(ctx, table, row.ID())
	if err != nil {
		return nil, err
	}
	s.emit(ctx, Change{Kind: ChangeInsert, Table: table, Record: out})
	return out, nil
}

func (s *SQLDB) Update(ctx context.Context, table, id string, patch Record) (Record, error) {
	set, err := preparePatch(table, patch)
	if err != nil {
		return nil, err
	}
	old, err := s.Get(ctx, table, id)
	if err != nil {
		return nil, err
	}
	if len(set) == 0 {
		return old, nil
	}

	a := &args{d: s.dialect}
	var assigns []string
	for _, c := range schema[table] {
		v, ok := set[c.name]
		if !ok {
			continue
		}
		bv, err := s.bind(c, v)
		if err != nil {
			return nil, err
		}
		assigns = append(assigns, s.dialect.quote(c.name)+" = "+a.add(bv))
	}
	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		s.dialect.quote(table), strings.Join(assigns, ", "), s.dialect.quote("id"), a.add(id))

	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	res, err := s.db.ExecContext(opCtx, stmt, a.vals...)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", table, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("%s %s: %w", table, id, ErrNotFound)
	}

	out, err := s.Get(ctx, table, id)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, Change{Kind: ChangeUpdate, Table: table, Record: out, Old: old})
	return out, nil
}

func (s *SQLDB) Delete(ctx context.Context, table, id string) (Record, error) {
	old, err := s.Get(ctx, table, id)
	if err != nil {
		return nil, err
	}
	a := &args{d: s.dialect}
	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s = %s", s.dialect.quote(table), s.dialect.quote("id"), a.add(id))

	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	res, err := s.db.ExecContext(opCtx, stmt, a.vals...)
	if err != nil {
		return nil, fmt.Errorf("delete %s: %w", table, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("%s %s: %w", table, id, ErrNotFound)
	}
	s.emit(ctx, Change{Kind: ChangeDelete, Table: table, Old: old})
	return old, nil
}

func (s *SQLDB) Subscribe(ctx context.Context, table string, filter Filter, fn func(Change)) (func(), error) {
	if _, err := tableColumns(table); err != nil {
		return nil, err
	}
	return s.feed.Subscribe(ctx, table, filter, fn), nil
}

func (s *SQLDB) emit(ctx context.Context, c Change) {
	if privateTable(c.Table) {
		return
	}
	if err := s.publish(ctx, c); err != nil {
		slog.Warn("publish change", "table", c.Table, "kind", c.Kind, "error", err)
	}
}

func (s *SQLDB) Close() error {
	var errs []error
	for _, fn := range s.onClose {
		errs = append(errs, fn())
	}
	errs = append(errs, s.db.Close())
	s.feed.Close()
	return errors.Join(errs...)
}

func scanRecord(rows *sql.Rows, cols columns) (Record, error) {
	dest := make([]any, len(cols))
	for i := range dest {
		dest[i] = new(any)
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, err
	}
	rec := make(Record, len(cols))
	for i, c := range cols {
		raw := *(dest[i].(*any))
		if raw == nil {
			continue
		}
		if b, ok := raw.([]byte); ok {
			raw = string(b)
		}
		v, err := coerce(c, raw)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c.name, err)
		}
		rec[c.name] = v
	}
	return rec, nil
}
