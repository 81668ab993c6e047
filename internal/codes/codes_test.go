package codes

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomGeneratorFormats(t *testing.T) {
	g := NewRandomGenerator()
	day := time.Date(2025, 3, 1, 23, 30, 0, 0, time.UTC)

	bookingRe := regexp.MustCompile(`^SB-20250301-[ABCDEFGHJKMNPQRSTUVWXYZ2-9]{6}$`)
	codeRe := regexp.MustCompile(`^[0-9]{6}$`)

	for i := 0; i < 200; i++ {
		num, err := g.BookingNumber(day)
		require.NoError(t, err)
		assert.Regexp(t, bookingRe, num)

		code, err := g.AccessCode()
		require.NoError(t, err)
		assert.Regexp(t, codeRe, code)
	}
}

func TestUnique(t *testing.T) {
	ctx := context.Background()

	seq := func(values ...string) func() (string, error) {
		i := 0
		return func() (string, error) {
			v := values[i%len(values)]
			i++
			return v, nil
		}
	}
	taken := map[string]bool{"A": true, "B": true}
	exists := func(_ context.Context, v string) (bool, error) { return taken[v], nil }

	t.Run("RetriesOnCollision", func(t *testing.T) {
		got, err := Unique(ctx, 5, seq("A", "B", "C"), exists)
		require.NoError(t, err)
		assert.Equal(t, "C", got)
	})

	t.Run("BoundedAttempts", func(t *testing.T) {
		calls := 0
		gen := func() (string, error) {
			calls++
			return "A", nil
		}
		_, err := Unique(ctx, 4, gen, exists)
		assert.ErrorIs(t, err, ErrCodeSpaceExhausted)
		assert.Equal(t, 4, calls)
	})

	t.Run("LookupError", func(t *testing.T) {
		boom := errors.New("db down")
		_, err := Unique(ctx, 3, seq("X"), func(context.Context, string) (bool, error) { return false, boom })
		assert.ErrorIs(t, err, boom)
	})

	t.Run("CancelledContext", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := Unique(cctx, 3, seq("C"), exists)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
