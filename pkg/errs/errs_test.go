package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIs(t *testing.T) {
	t.Run("not found matches sentinel", func(t *testing.T) {
		err := NotFound("workflow for report %s", "r-1")
		assert.True(t, errors.Is(err, ErrNotFound))
		assert.False(t, errors.Is(err, ErrInvalidState))
	})

	t.Run("invalid state matches sentinel", func(t *testing.T) {
		err := InvalidState("override already resolved")
		assert.True(t, errors.Is(err, ErrInvalidState))
		assert.False(t, errors.Is(err, ErrNotFound))
	})

	t.Run("integration error survives wrapping", func(t *testing.T) {
		inner := Integration("samsara", "engage command failed", errors.New("dial tcp: timeout"))
		wrapped := fmt.Errorf("engage vehicle: %w", inner)
		assert.True(t, errors.Is(wrapped, ErrIntegration))
		assert.True(t, IsIntegration(wrapped))
	})
}

func TestErrorMessage(t *testing.T) {
	err := IntegrationStatus("geotab", "immobilize rejected", 403)
	assert.Contains(t, err.Error(), "geotab")
	assert.Contains(t, err.Error(), "immobilize rejected")
	assert.Equal(t, 403, err.StatusCode)

	cfg := Configuration("vehicle %s has no provider", "v-1")
	assert.True(t, errors.Is(cfg, ErrConfiguration))
}

func TestUnwrap(t *testing.T) {
	inner := errors.New("connection refused")
	err := Integration("verizon", "send failed", inner)
	assert.Equal(t, inner, errors.Unwrap(err))
}
