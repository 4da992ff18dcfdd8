package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectionSpace(t *testing.T) {
	c := &Collection{}
	assert.Equal(t, SpaceL2, c.Space())

	c.Metadata = Metadata{SpaceKey: "cosine"}
	assert.Equal(t, SpaceCosine, c.Space())

	c.Metadata = Metadata{SpaceKey: "manhattan"}
	assert.Equal(t, SpaceL2, c.Space())
}

func TestMetadataMerge(t *testing.T) {
	base := Metadata{"a": "x", "b": 1.0}
	out := base.Merge(Metadata{"b": nil, "c": true})

	assert.Equal(t, Metadata{"a": "x", "c": true}, out)
	assert.Equal(t, Metadata{"a": "x", "b": 1.0}, base, "merge must not mutate receiver")
	assert.Nil(t, Metadata{"a": "x"}.Merge(Metadata{"a": nil}))
}

func TestParseInclude(t *testing.T) {
	set, err := ParseInclude([]string{"documents", "distances"}, true)
	require.NoError(t, err)
	assert.Equal(t, []Include{IncludeDocuments, IncludeDistances}, set.List())

	_, err = ParseInclude([]string{"distances"}, false)
	assert.True(t, IsValidationError(err))

	_, err = ParseInclude([]string{"vectors"}, true)
	assert.True(t, IsValidationError(err))
}

func TestValidationErrorWrapping(t *testing.T) {
	err := fmt.Errorf("add: %w", NewValidationError("ids", "required"))
	assert.True(t, errors.Is(err, ErrValidation))

	var ve ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "ids", ve.Field)
}

func TestMetadataValidate(t *testing.T) {
	assert.NoError(t, Metadata{"a": "x", "b": 1.5, "c": true}.Validate("metadatas", false))
	assert.Error(t, Metadata{"": "x"}.Validate("metadatas", false))
	assert.Error(t, Metadata{"a": nil}.Validate("metadatas", false))
	assert.NoError(t, Metadata{"a": nil}.Validate("metadatas", true))
	assert.Error(t, Metadata{"a": []interface{}{1}}.Validate("metadatas", false))
	assert.Error(t, Metadata{"a": map[string]interface{}{}}.Validate("metadatas", false))
}
