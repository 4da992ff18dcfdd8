package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hudson-blanoire/chroma-server/internal/model"
)

func TestCollectionName(t *testing.T) {
	tests := []struct {
		name        string
		value       string
		expectError bool
	}{
		{name: "simple", value: "docs"},
		{name: "punctuation inside", value: "my_docs-v1.2"},
		{name: "max length", value: strings.Repeat("a", 63)},
		{name: "min length", value: "abc"},
		{name: "empty", value: "", expectError: true},
		{name: "too short", value: "ab", expectError: true},
		{name: "too long", value: strings.Repeat("a", 64), expectError: true},
		{name: "leading hyphen", value: "-docs", expectError: true},
		{name: "trailing dot", value: "docs.", expectError: true},
		{name: "space", value: "my docs", expectError: true},
		{name: "double dot", value: "my..docs", expectError: true},
		{name: "ipv4", value: "192.168.0.1", expectError: true},
		{name: "not quite ipv4", value: "192.168.0", expectError: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CollectionName(tt.value)
			if tt.expectError {
				assert.Error(t, err)
				assert.True(t, model.IsValidationError(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestCollectionID(t *testing.T) {
	assert.NoError(t, CollectionID("5f1b6c1e-8e0c-4b3e-9e55-1f2e3d4c5b6a"))
	assert.Error(t, CollectionID("docs"))
	assert.Error(t, CollectionID(""))
}

func TestCreateCollection(t *testing.T) {
	assert.NoError(t, CreateCollection("docs", model.Metadata{"hnsw:space": "cosine"}))
	assert.Error(t, CreateCollection("docs", model.Metadata{"k": nil}))
	assert.Error(t, CreateCollection("d", nil))
}

func TestUpdateCollection(t *testing.T) {
	bad := "x"
	good := "renamed"
	assert.NoError(t, UpdateCollection(nil, nil))
	assert.NoError(t, UpdateCollection(&good, model.Metadata{"a": 1.0}))
	assert.Error(t, UpdateCollection(&bad, nil))
}

func TestPage(t *testing.T) {
	neg, zero := -1, 0
	assert.NoError(t, Page(nil, nil))
	assert.NoError(t, Page(&zero, &zero))
	assert.Error(t, Page(&neg, nil))
	assert.Error(t, Page(nil, &neg))
}
