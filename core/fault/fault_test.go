package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMatchesKind(t *testing.T) {
	err := New(ErrSelection, "resolve charity", errors.New("id not in candidates"))
	wrapped := fmt.Errorf("dispatch: %w", err)

	assert.ErrorIs(t, wrapped, ErrSelection)
	assert.NotErrorIs(t, wrapped, ErrShape)
	assert.Equal(t, ErrSelection, Kind(wrapped))
	assert.Contains(t, err.Error(), "resolve charity")
}

func TestDebugPayloadFromChain(t *testing.T) {
	inner := New(ErrSelection, "resolve", nil).WithDebug(map[string]any{"ranked_top": "c-9"})
	err := fmt.Errorf("step: %w", inner)

	assert.Equal(t, map[string]any{"ranked_top": "c-9"}, Debug(err))
	assert.Nil(t, Debug(errors.New("plain")))
}

func TestKindUnclassified(t *testing.T) {
	assert.Nil(t, Kind(errors.New("boom")))
	assert.Equal(t, ErrTransport, Kind(fmt.Errorf("wrap: %w", ErrTransport)))
}
