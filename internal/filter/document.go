package filter

import (
	"strings"

	"github.com/hudson-blanoire/chroma-server/internal/model"
)

type contains struct {
	needle string
	negate bool
}

func (c contains) Match(doc *string) bool {
	if doc == nil {
		return c.negate
	}
	return strings.Contains(*doc, c.needle) != c.negate
}

type docAnd []Document
type docOr []Document

func (a docAnd) Match(doc *string) bool {
	for _, d := range a {
		if !d.Match(doc) {
			return false
		}
	}
	return true
}

func (o docOr) Match(doc *string) bool {
	for _, d := range o {
		if d.Match(doc) {
			return true
		}
	}
	return false
}

// ParseWhereDocument builds a document filter. An empty filter returns nil.
func ParseWhereDocument(raw map[string]interface{}) (Document, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	if len(raw) != 1 {
		return nil, model.Invalidf("where_document", "expected exactly one operator, got %d", len(raw))
	}
	for key, val := range raw {
		switch key {
		case "$contains", "$not_contains":
			s, ok := val.(string)
			if !ok || s == "" {
				return nil, model.Invalidf("where_document", "%s expects a non-empty string", key)
			}
			return contains{needle: s, negate: key == "$not_contains"}, nil
		case "$and", "$or":
			list, ok := val.([]interface{})
			if !ok || len(list) < 2 {
				return nil, model.Invalidf("where_document", "%s expects a list of at least two filters", key)
			}
			subs := make([]Document, 0, len(list))
			for _, item := range list {
				m, ok := item.(map[string]interface{})
				if !ok {
					return nil, model.Invalidf("where_document", "%s entries must be objects", key)
				}
				d, err := ParseWhereDocument(m)
				if err != nil {
					return nil, err
				}
				if d == nil {
					return nil, model.Invalidf("where_document", "%s entries must not be empty", key)
				}
				subs = append(subs, d)
			}
			if key == "$and" {
				return docAnd(subs), nil
			}
			return docOr(subs), nil
		default:
			return nil, model.Invalidf("where_document", "unknown operator %q", key)
		}
	}
	return nil, nil
}
