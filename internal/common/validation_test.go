package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator(t *testing.T) {
	v := NewValidator().
		Field("media_id", "not-a-uuid", Required, UUID).
		Field("job_id", "../etc", Required, PathSegment).
		Field("category", "ok", MaxLength(2)).
		Field("size", int64(-1), NonNegative).
		Field("audience", "press", OneOf("portal", "public", "download"))

	require.True(t, v.HasErrors())
	assert.Len(t, v.Errors(), 4)

	err := v.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, CodeInvalidInput, CodeOf(err))
	assert.Contains(t, err.Error(), "media_id")
	assert.Contains(t, err.Error(), "audience")
	assert.NotContains(t, err.Error(), "category")
}

func TestValidatorPasses(t *testing.T) {
	v := NewValidator().
		Field("media_id", "8b0f7a52-3f7e-4c1e-9a8e-0c6f1f7b2d11", Required, UUID).
		Field("business_id", "acme", Required, PathSegment).
		Field("description", "héllo", MaxLength(5))
	assert.NoError(t, v.Err())
	assert.Empty(t, v.ErrorMessage())
}

func TestCodeOfAndRetryable(t *testing.T) {
	assert.Equal(t, CodeSourceMissing, CodeOf(fmt.Errorf("get: %w", ErrSourceMissing)))
	assert.Equal(t, CodeNotFound, CodeOf(ErrNotFound))
	assert.Equal(t, CodeQueueFull, CodeOf(ErrQueueFull))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))

	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(ErrQueueFull))
	assert.False(t, IsRetryable(NewAppError(CodeInvalidInput, "bad", ErrInvalidInput)))
	assert.True(t, IsRetryable(ErrSourceMissing))
	assert.True(t, IsRetryable(errors.New("connection reset")))
}

func TestJSONSchema(t *testing.T) {
	s := NewJSONSchema("thing.json", map[string]any{
		"type":     "object",
		"required": []any{"id"},
		"properties": map[string]any{
			"id": map[string]any{"type": "string", "minLength": 1},
		},
	})
	assert.NoError(t, s.Validate([]byte(`{"id":"x"}`)))

	err := s.Validate([]byte(`{"id":""}`))
	assert.ErrorIs(t, err, ErrInvalidInput)

	err = s.Validate([]byte(`{`))
	assert.Equal(t, CodeInvalidInput, CodeOf(err))
}
