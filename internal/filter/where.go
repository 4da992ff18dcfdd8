// Package filter parses metadata (where) and document (where_document) filters
// into expression trees evaluated against records.
package filter

import (
	"sort"
	"strings"

	"github.com/hudson-blanoire/chroma-server/internal/model"
)

// Where matches record metadata.
type Where interface {
	Match(md model.Metadata) bool
}

// Document matches record documents.
type Document interface {
	Match(doc *string) bool
}

// Matches evaluates both filters; nil filters match everything.
func Matches(w Where, d Document, r *model.Record) bool {
	if w != nil && !w.Match(r.Metadata) {
		return false
	}
	if d != nil && !d.Match(r.Document) {
		return false
	}
	return true
}

type op string

const (
	opEq  op = "$eq"
	opNe  op = "$ne"
	opGt  op = "$gt"
	opGte op = "$gte"
	opLt  op = "$lt"
	opLte op = "$lte"
	opIn  op = "$in"
	opNin op = "$nin"
)

type and []Where
type or []Where

func (a and) Match(md model.Metadata) bool {
	for _, w := range a {
		if !w.Match(md) {
			return false
		}
	}
	return true
}

func (o or) Match(md model.Metadata) bool {
	for _, w := range o {
		if w.Match(md) {
			return true
		}
	}
	return false
}

type cmp struct {
	key     string
	op      op
	operand interface{}
	set     []interface{}
}

func (c cmp) Match(md model.Metadata) bool {
	v, ok := md[c.key]
	if !ok || v == nil {
		return c.op == opNe || c.op == opNin
	}
	switch c.op {
	case opEq:
		return scalarEqual(v, c.operand)
	case opNe:
		return !scalarEqual(v, c.operand)
	case opIn:
		return inSet(v, c.set)
	case opNin:
		return !inSet(v, c.set)
	}
	n, ok := toFloat(v)
	if !ok {
		return false
	}
	want, _ := toFloat(c.operand)
	switch c.op {
	case opGt:
		return n > want
	case opGte:
		return n >= want
	case opLt:
		return n < want
	case opLte:
		return n <= want
	}
	return false
}

// ParseWhere builds a metadata filter. An empty filter returns nil.
func ParseWhere(raw map[string]interface{}) (Where, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	// sorted for deterministic error messages
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var clauses and
	for _, k := range keys {
		w, err := parseWhereKey(k, raw[k])
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, w)
	}
	if len(clauses) == 1 {
		return clauses[0], nil
	}
	return clauses, nil
}

func parseWhereKey(key string, val interface{}) (Where, error) {
	switch key {
	case "$and", "$or":
		list, ok := val.([]interface{})
		if !ok || len(list) < 2 {
			return nil, model.Invalidf("where", "%s expects a list of at least two filters", key)
		}
		subs := make([]Where, 0, len(list))
		for _, item := range list {
			m, ok := item.(map[string]interface{})
			if !ok || len(m) == 0 {
				return nil, model.Invalidf("where", "%s entries must be non-empty objects", key)
			}
			w, err := ParseWhere(m)
			if err != nil {
				return nil, err
			}
			subs = append(subs, w)
		}
		if key == "$and" {
			return and(subs), nil
		}
		return or(subs), nil
	}
	if key == "" || strings.HasPrefix(key, "$") {
		return nil, model.Invalidf("where", "invalid key %q", key)
	}

	opMap, ok := val.(map[string]interface{})
	if !ok {
		if !isScalar(val) {
			return nil, model.Invalidf("where", "value for %q must be a string, number or bool", key)
		}
		return cmp{key: key, op: opEq, operand: val}, nil
	}
	if len(opMap) != 1 {
		return nil, model.Invalidf("where", "operator object for %q must have exactly one operator", key)
	}
	for name, operand := range opMap {
		return parseOperator(key, op(name), operand)
	}
	return nil, nil
}

func parseOperator(key string, o op, operand interface{}) (Where, error) {
	switch o {
	case opEq, opNe:
		if !isScalar(operand) {
			return nil, model.Invalidf("where", "%s on %q expects a string, number or bool", o, key)
		}
		return cmp{key: key, op: o, operand: operand}, nil
	case opGt, opGte, opLt, opLte:
		if _, ok := toFloat(operand); !ok {
			return nil, model.Invalidf("where", "%s on %q expects a number", o, key)
		}
		return cmp{key: key, op: o, operand: operand}, nil
	case opIn, opNin:
		list, ok := operand.([]interface{})
		if !ok || len(list) == 0 {
			return nil, model.Invalidf("where", "%s on %q expects a non-empty list", o, key)
		}
		for _, item := range list {
			if !isScalar(item) {
				return nil, model.Invalidf("where", "%s on %q expects a list of strings, numbers or bools", o, key)
			}
		}
		return cmp{key: key, op: o, set: list}, nil
	}
	return nil, model.Invalidf("where", "unknown operator %q", string(o))
}

func isScalar(v interface{}) bool {
	switch v.(type) {
	case string, bool:
		return true
	}
	_, ok := toFloat(v)
	return ok
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}

func scalarEqual(a, b interface{}) bool {
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		return ok && af == bf
	}
	return a == b
}

func inSet(v interface{}, set []interface{}) bool {
	for _, s := range set {
		if scalarEqual(v, s) {
			return true
		}
	}
	return false
}

