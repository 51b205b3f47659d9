package remote

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Op is a condition operator.
type Op string

const (
	OpEq Op = "eq"
	OpIn Op = "in"
)

// Condition tests a single column.
type Condition struct {
	Column string `json:"column"`
	Op     Op     `json:"op"`
	Value  any    `json:"value,omitempty"`
	Values []any  `json:"values,omitempty"`
}

// Eq matches rows where column equals v.
func Eq(column string, v any) Condition {
	return Condition{Column: column, Op: OpEq, Value: v}
}

// In matches rows where column equals one of vs.
func In(column string, vs ...any) Condition {
	return Condition{Column: column, Op: OpIn, Values: vs}
}

func (c Condition) match(rec Record) bool {
	v, ok := rec[c.Column]
	if !ok {
		return false
	}
	switch c.Op {
	case OpEq:
		return equalValues(v, c.Value)
	case OpIn:
		for _, want := range c.Values {
			if equalValues(v, want) {
				return true
			}
		}
	}
	return false
}

func (c Condition) validate() error {
	if strings.TrimSpace(c.Column) == "" {
		return fmt.Errorf("%w: condition without column", ErrInvalidInput)
	}
	switch c.Op {
	case OpEq, OpIn:
		return nil
	}
	return fmt.Errorf("%w: unknown operator %q", ErrInvalidInput, c.Op)
}

// Filter is a conjunction of All plus, when AnyOf is not empty, a
// disjunction of AnyOf.
type Filter struct {
	All   []Condition `json:"all,omitempty"`
	AnyOf []Condition `json:"any_of,omitempty"`
}

// Where builds a conjunctive filter.
func Where(conds ...Condition) Filter {
	return Filter{All: conds}
}

// Or returns f extended with a disjunction.
func (f Filter) Or(conds ...Condition) Filter {
	f.AnyOf = append(append([]Condition(nil), f.AnyOf...), conds...)
	return f
}

// Empty reports whether f matches every row.
func (f Filter) Empty() bool {
	return len(f.All) == 0 && len(f.AnyOf) == 0
}

// Match reports whether rec satisfies f.
func (f Filter) Match(rec Record) bool {
	if rec == nil {
		return false
	}
	for _, c := range f.All {
		if !c.match(rec) {
			return false
		}
	}
	if len(f.AnyOf) == 0 {
		return true
	}
	for _, c := range f.AnyOf {
		if c.match(rec) {
			return true
		}
	}
	return false
}

func (f Filter) conditions() []Condition {
	return append(append([]Condition(nil), f.All...), f.AnyOf...)
}

// Order sorts by a column.
type Order struct {
	Column string `json:"column"`
	Desc   bool   `json:"desc,omitempty"`
}

// Asc and Desc build orderings.
func Asc(column string) Order  { return Order{Column: column} }
func Desc(column string) Order { return Order{Column: column, Desc: true} }

// Query selects rows of a table.
type Query struct {
	Filter Filter  `json:"filter"`
	Order  []Order `json:"order,omitempty"`
	Limit  int     `json:"limit,omitempty"`
}

// Validate checks q against the columns of table.
func (q Query) Validate(table string) error {
	cols, ok := schema[table]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	for _, c := range q.Filter.conditions() {
		if err := c.validate(); err != nil {
			return err
		}
		if _, ok := cols.lookup(c.Column); !ok {
			return fmt.Errorf("%w: unknown column %s.%s", ErrInvalidInput, table, c.Column)
		}
	}
	for _, o := range q.Order {
		if _, ok := cols.lookup(o.Column); !ok {
			return fmt.Errorf("%w: unknown column %s.%s", ErrInvalidInput, table, o.Column)
		}
	}
	if q.Limit < 0 {
		return fmt.Errorf("%w: negative limit", ErrInvalidInput)
	}
	return nil
}

// apply filters, sorts and limits rows in memory. The sort is stable so rows
// with equal keys keep their input order.
func (q Query) apply(rows []Record) []Record {
	out := make([]Record, 0, len(rows))
	for _, r := range rows {
		if q.Filter.Match(r) {
			out = append(out, r)
		}
	}
	if len(q.Order) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			for _, o := range q.Order {
				c := compareValues(out[i][o.Column], out[j][o.Column])
				if c == 0 {
					continue
				}
				if o.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func equalValues(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	if ba, ok := a.(bool); ok {
		bb, ok := b.(bool)
		return ok && ba == bb
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	if ba, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case ba == bb:
				return 0
			case !ba:
				return -1
			}
			return 1
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
