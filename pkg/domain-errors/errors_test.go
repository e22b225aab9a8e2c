package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasCode_WalksWrappedChain(t *testing.T) {
	root := NewField(CodeValidation, "note", "note is required")
	wrapped := Wrap(root, CodeBadRequest, "update rejected")
	outer := fmt.Errorf("handler: %w", wrapped)

	assert.True(t, HasCode(outer, CodeBadRequest))
	assert.True(t, HasCode(outer, CodeValidation))
	assert.False(t, HasCode(outer, CodeNotFound))
	assert.Equal(t, CodeBadRequest, CodeOf(outer))
	assert.Equal(t, "note", FieldOf(outer))
}

func TestForeignErrors(t *testing.T) {
	err := errors.New("boom")
	assert.False(t, HasCode(err, CodeInternal))
	assert.Equal(t, CodeInternal, CodeOf(err))
	assert.Equal(t, "internal error", MessageOf(err))
	assert.Nil(t, Wrap(nil, CodeInternal, "ignored"))
}

func TestErrorString(t *testing.T) {
	err := NewField(CodeValidation, "risk_level", "unknown value")
	assert.Equal(t, "risk_level: unknown value", err.Error())

	wrapped := Wrap(errors.New("dial tcp"), CodeInternal, "store unavailable")
	assert.Equal(t, "store unavailable: dial tcp", wrapped.Error())
}
