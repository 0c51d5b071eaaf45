// Package filter evaluates list filters of the form field:op:value against
// typed record fields. The operator set is closed; an unknown field, operator
// or a value of the wrong type is rejected when the filter is parsed.
package filter

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
)

// Op is a comparison operator.
type Op string

const (
	OpEq       Op = "eq"
	OpNe       Op = "ne"
	OpGt       Op = "gt"
	OpGte      Op = "gte"
	OpLt       Op = "lt"
	OpLte      Op = "lte"
	OpContains Op = "contains"
	OpBetween  Op = "between"
	OpIn       Op = "in"
)

// Kind is the type of a field.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindTime
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindTime:
		return "time"
	case KindBool:
		return "bool"
	default:
		return "string"
	}
}

// operators allowed per kind
var allowed = map[Kind]map[Op]bool{
	KindString: {OpEq: true, OpNe: true, OpContains: true, OpIn: true},
	KindNumber: {OpEq: true, OpNe: true, OpGt: true, OpGte: true, OpLt: true, OpLte: true, OpBetween: true, OpIn: true},
	KindTime:   {OpEq: true, OpNe: true, OpGt: true, OpGte: true, OpLt: true, OpLte: true, OpBetween: true},
	KindBool:   {OpEq: true, OpNe: true},
}

// Value is a typed field value.
type Value struct {
	kind Kind
	str  string
	num  float64
	at   time.Time
	flag bool
}

func String(s string) Value { return Value{kind: KindString, str: s} }
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }
func Int(n int64) Value { return Value{kind: KindNumber, num: float64(n)} }
func Time(t time.Time) Value { return Value{kind: KindTime, at: t} }
func Bool(b bool) Value { return Value{kind: KindBool, flag: b} }
func (v Value) Kind() Kind { return v.kind }

// compare returns -1, 0 or 1. Strings and bools only support equality.
func (v Value) compare(o Value) int {
	switch v.kind {
	case KindNumber:
		switch {
		case v.num < o.num:
			return -1
		case v.num > o.num:
			return 1
		}
		return 0
	case KindTime:
		return v.at.Compare(o.at)
	case KindBool:
		if v.flag == o.flag {
			return 0
		}
		return 1
	default:
		return strings.Compare(v.str, o.str)
	}
}

// Schema declares the filterable fields of a listing and their kinds.
type Schema map[string]Kind

// Record exposes the field values of one listed item.
type Record interface {
	Field(name string) (Value, bool)
}

// Fields is a map backed Record.
type Fields map[string]Value

func (f Fields) Field(name string) (Value, bool) {
	v, ok := f[name]
	return v, ok
}

// Condition is one parsed filter term.
type Condition struct {
	Field  string
	Op     Op
	Values []Value
}

// Parse reads one field:op:value term. between takes "lo,hi", in takes a
// comma separated list. Time values are RFC 3339 or YYYY-MM-DD.
func Parse(expr string, schema Schema) (Condition, error) {
	parts := strings.SplitN(expr, ":", 3)
	if len(parts) != 3 {
		return Condition{}, domain.NewValidationError("filter", "expected field:op:value, got %q", expr)
	}
	field, op, raw := strings.TrimSpace(parts[0]), Op(strings.ToLower(strings.TrimSpace(parts[1]))), parts[2]

	kind, ok := schema[field]
	if !ok {
		return Condition{}, domain.NewValidationError("filter", "unknown field %q", field)
	}
	if !allowed[kind][op] {
		return Condition{}, domain.NewValidationError("filter", "operator %q not supported on %s field %q", op, kind, field)
	}

	raws := []string{raw}
	if op == OpBetween || op == OpIn {
		raws = strings.Split(raw, ",")
	}
	if op == OpBetween && len(raws) != 2 {
		return Condition{}, domain.NewValidationError("filter", "between on %q needs two values, got %d", field, len(raws))
	}

	values := make([]Value, 0, len(raws))
	for _, r := range raws {
		v, err := parseValue(kind, strings.TrimSpace(r))
		if err != nil {
			return Condition{}, domain.NewValidationError("filter", "field %q: %v", field, err)
		}
		values = append(values, v)
	}

	return Condition{Field: field, Op: op, Values: values}, nil
}

// ParseAll parses every term. Empty terms are ignored.
func ParseAll(exprs []string, schema Schema) ([]Condition, error) {
	conds := make([]Condition, 0, len(exprs))
	for _, expr := range exprs {
		if strings.TrimSpace(expr) == "" {
			continue
		}
		c, err := Parse(expr, schema)
		if err != nil {
			return nil, err
		}
		conds = append(conds, c)
	}
	return conds, nil
}

func parseValue(kind Kind, raw string) (Value, error) {
	switch kind {
	case KindNumber:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%q is not a number", raw)
		}
		return Number(n), nil
	case KindTime:
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return Time(t), nil
		}
		t, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return Value{}, fmt.Errorf("%q is not a date", raw)
		}
		return Time(t), nil
	case KindBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return Value{}, fmt.Errorf("%q is not a boolean", raw)
		}
		return Bool(b), nil
	default:
		return String(raw), nil
	}
}

// Match reports whether the record satisfies the condition. A record without
// the field never matches.
func (c Condition) Match(r Record) bool {
	v, ok := r.Field(c.Field)
	if !ok || len(c.Values) == 0 {
		return false
	}
	want := c.Values[0]

	switch c.Op {
	case OpEq:
		return v.compare(want) == 0
	case OpNe:
		return v.compare(want) != 0
	case OpGt:
		return v.compare(want) > 0
	case OpGte:
		return v.compare(want) >= 0
	case OpLt:
		return v.compare(want) < 0
	case OpLte:
		return v.compare(want) <= 0
	case OpContains:
		return strings.Contains(strings.ToLower(v.str), strings.ToLower(want.str))
	case OpBetween:
		return v.compare(c.Values[0]) >= 0 && v.compare(c.Values[1]) <= 0
	case OpIn:
		for _, candidate := range c.Values {
			if v.compare(candidate) == 0 {
				return true
			}
		}
		return false
	}
	return false
}

// MatchAll reports whether the record satisfies every condition.
func MatchAll(conds []Condition, r Record) bool {
	for _, c := range conds {
		if !c.Match(r) {
			return false
		}
	}
	return true
}

// Apply keeps the items whose record matches every condition.
func Apply[T any](items []T, conds []Condition, record func(T) Record) []T {
	if len(conds) == 0 {
		return items
	}
	out := make([]T, 0, len(items))
	for _, item := range items {
		if MatchAll(conds, record(item)) {
			out = append(out, item)
		}
	}
	return out
}
