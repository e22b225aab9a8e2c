package tx

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemoryRunsInline(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := NewMemory().RunInTx(context.Background(), func(context.Context) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestFrom(t *testing.T) {
	_, ok := From(context.Background())
	assert.False(t, ok)
}
