package remote

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dohr-michael/orbit/internal/domain"
)

type colKind int

const (
	colText colKind = iota
	colBool
	colInt
	colJSON
)

type column struct {
	name string
	kind colKind
}

type columns []column

func (cs columns) lookup(name string) (column, bool) {
	for _, c := range cs {
		if c.name == name {
			return c, true
		}
	}
	return column{}, false
}

func (cs columns) names() []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.name
	}
	return out
}

// tableOrder is the creation order of tables.
var tableOrder = []string{TableUsers, TableAuthTokens, TableProfiles, TableTasks, TableIntelDrops}

var schema = map[string]columns{
	TableUsers: {
		{"id", colText},
		{"email", colText},
		{"password_hash", colText},
		{"created_at", colText},
	},
	TableAuthTokens: {
		{"id", colText},
		{"user_id", colText},
		{"expires_at", colText},
		{"created_at", colText},
	},
	TableProfiles: {
		{"id", colText},
		{"username", colText},
		{"avatar_url", colText},
		{"is_admin", colBool},
		{"intel_instructions", colText},
		{"tasks_completed", colInt},
		{"tasks_forfeited", colInt},
		{"streak_days", colInt},
		{"created_at", colText},
	},
	TableTasks: {
		{"id", colText},
		{"client_ref", colText},
		{"user_id", colText},
		{"title", colText},
		{"category", colText},
		{"difficulty", colText},
		{"completed", colBool},
		{"created_at", colText},
	},
	TableIntelDrops: {
		{"id", colText},
		{"author_id", colText},
		{"query", colText},
		{"summary_bullets", colJSON},
		{"sources", colJSON},
		{"related_concepts", colJSON},
		{"essay", colText},
		{"is_private", colBool},
		{"created_at", colText},
	},
}

// defaults are applied to missing columns on insert.
var defaults = map[string]Record{
	TableProfiles: {
		"is_admin":           false,
		"intel_instructions": "",
		"tasks_completed":    int64(0),
		"tasks_forfeited":    int64(0),
		"streak_days":        int64(0),
	},
	TableTasks: {
		"category":  string(domain.DefaultCategory),
		"completed": false,
	},
	TableIntelDrops: {
		"summary_bullets":  []any{},
		"sources":          []any{},
		"related_concepts": []any{},
		"is_private":       false,
	},
}

func tableColumns(table string) (columns, error) {
	cols, ok := schema[table]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	return cols, nil
}

// normalize keeps the known columns of rec, coerced to their storage kind.
// Nil values are dropped.
func normalize(table string, rec Record) (Record, error) {
	cols, err := tableColumns(table)
	if err != nil {
		return nil, err
	}
	out := make(Record, len(rec))
	for k, v := range rec {
		c, ok := cols.lookup(k)
		if !ok || v == nil {
			continue
		}
		cv, err := coerce(c, v)
		if err != nil {
			return nil, fmt.Errorf("%w: column %s.%s: %v", ErrInvalidInput, table, k, err)
		}
		out[k] = cv
	}
	if at, ok := out[domain.ColCreatedAt].(string); ok {
		ts, err := normalizeTime(at)
		if err != nil {
			return nil, fmt.Errorf("%w: created_at: %v", ErrInvalidInput, err)
		}
		out[domain.ColCreatedAt] = ts
	}
	return out, nil
}

// prepareInsert normalizes rec and assigns id, created_at and defaults.
func prepareInsert(table string, rec Record, now time.Time) (Record, error) {
	row, err := normalize(table, rec)
	if err != nil {
		return nil, err
	}
	if row.ID() == "" {
		row[domain.ColID] = uuid.NewString()
	}
	if _, ok := row[domain.ColCreatedAt]; !ok {
		row[domain.ColCreatedAt] = now.UTC().Format(domain.TimeLayout)
	}
	for k, v := range defaults[table] {
		if _, ok := row[k]; !ok {
			row[k] = v
		}
	}
	return row, nil
}

// preparePatch normalizes patch and strips columns that never change.
func preparePatch(table string, patch Record) (Record, error) {
	row, err := normalize(table, patch)
	if err != nil {
		return nil, err
	}
	delete(row, domain.ColID)
	delete(row, domain.ColCreatedAt)
	return row, nil
}

func normalizeTime(s string) (string, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return "", err
	}
	return t.UTC().Format(domain.TimeLayout), nil
}

func coerce(c column, v any) (any, error) {
	switch c.kind {
	case colText:
		switch s := v.(type) {
		case string:
			return s, nil
		case time.Time:
			return s.UTC().Format(domain.TimeLayout), nil
		case fmt.Stringer:
			return s.String(), nil
		}
		return fmt.Sprint(v), nil
	case colBool:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			return strconv.ParseBool(b)
		}
		if f, ok := toFloat(v); ok {
			return f != 0, nil
		}
		return nil, fmt.Errorf("not a boolean: %T", v)
	case colInt:
		if s, ok := v.(string); ok {
			return strconv.ParseInt(s, 10, 64)
		}
		if f, ok := toFloat(v); ok {
			return int64(f), nil
		}
		return nil, fmt.Errorf("not an integer: %T", v)
	case colJSON:
		if s, ok := v.(string); ok {
			var out any
			if err := json.Unmarshal([]byte(s), &out); err == nil {
				return out, nil
			}
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		var out any
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	return v, nil
}

// cloneRow deep-copies a normalized row.
func cloneRow(r Record) Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		switch v.(type) {
		case []any, map[string]any:
			data, _ := json.Marshal(v)
			var cp any
			_ = json.Unmarshal(data, &cp)
			out[k] = cp
		default:
			out[k] = v
		}
	}
	return out
}

// migrate creates every table and index the backends need.
func migrate(ctx context.Context, db *sql.DB, d dialect) error {
	for _, table := range tableOrder {
		if _, err := db.ExecContext(ctx, createTableSQL(d, table)); err != nil {
			return fmt.Errorf("migrate %s: %w", table, err)
		}
	}
	indexes := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS users_email_idx ON users (email)`,
		`CREATE INDEX IF NOT EXISTS auth_tokens_user_idx ON auth_tokens (user_id)`,
		`CREATE INDEX IF NOT EXISTS tasks_user_created_idx ON tasks (user_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS intel_drops_created_idx ON intel_drops (created_at)`,
	}
	for _, stmt := range indexes {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate index: %w", err)
		}
	}
	return nil
}

func createTableSQL(d dialect, table string) string {
	var defs []string
	for _, c := range schema[table] {
		def := d.quote(c.name) + " " + d.columnType(c.kind)
		if c.name == domain.ColID {
			def += " PRIMARY KEY"
		}
		defs = append(defs, def)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", d.quote(table), strings.Join(defs, ",\n\t"))
}

// privateTable reports whether table holds credentials. Private tables are
// never published on the change feed nor exposed through a Gateway.
func privateTable(table string) bool {
	return table == TableUsers || table == TableAuthTokens
}
