package reference

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"daimaescape/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	g := NewGenerator(0, time.UTC)
	now := time.Date(2024, 2, 27, 15, 4, 5, 0, time.UTC)

	assert.Equal(t, "270224-AB123", g.Format(now, "AB123"))
	assert.Equal(t, DefaultMaxAttempts, g.MaxAttempts)
}

func TestFormat_UsesBusinessTimezone(t *testing.T) {
	eat := time.FixedZone("EAT", 3*60*60)
	g := NewGenerator(5, eat)

	// 22:30 UTC on the 27th is already the 28th in East Africa.
	now := time.Date(2024, 2, 27, 22, 30, 0, 0, time.UTC)
	assert.True(t, strings.HasPrefix(g.Format(now, "ZZZZZ"), "280224-"))
}

func TestValid(t *testing.T) {
	tests := []struct {
		ref   string
		valid bool
	}{
		{"270224-AB123", true},
		{"010125-00000", true},
		{"270224-ab123", false},
		{"27022-AB123", false},
		{"270224-AB12", false},
		{"270224AB123", false},
		{"270224-AB1234", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			assert.Equal(t, tt.valid, Valid(tt.ref))
		})
	}
}

func TestGenerate_TenThousandUnique(t *testing.T) {
	g := NewGenerator(DefaultMaxAttempts, time.UTC)
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	ctx := context.Background()

	seen := make(map[string]struct{}, 10000)
	taken := func(_ context.Context, ref string) (bool, error) {
		_, ok := seen[ref]
		return ok, nil
	}

	for i := 0; i < 10000; i++ {
		ref, err := g.Generate(ctx, now, taken)
		require.NoError(t, err)
		require.True(t, Valid(ref), "invalid reference %q", ref)
		require.True(t, strings.HasPrefix(ref, "010625-"))
		seen[ref] = struct{}{}
	}
	assert.Len(t, seen, 10000)
}

func TestGenerate_RetriesOnCollision(t *testing.T) {
	g := NewGenerator(DefaultMaxAttempts, time.UTC)
	calls := 0
	taken := func(_ context.Context, _ string) (bool, error) {
		calls++
		return calls < 3, nil
	}

	ref, err := g.Generate(context.Background(), time.Now(), taken)
	require.NoError(t, err)
	assert.True(t, Valid(ref))
	assert.Equal(t, 3, calls)
}

func TestGenerate_Exhausted(t *testing.T) {
	g := NewGenerator(20, time.UTC)
	calls := 0
	taken := func(_ context.Context, _ string) (bool, error) {
		calls++
		return true, nil
	}

	_, err := g.Generate(context.Background(), time.Now(), taken)
	assert.ErrorIs(t, err, models.ErrReferenceGenerationExhausted)
	assert.Equal(t, 20, calls)
}

func TestGenerate_LookupError(t *testing.T) {
	g := NewGenerator(20, time.UTC)
	boom := errors.New("db down")

	_, err := g.Generate(context.Background(), time.Now(), func(context.Context, string) (bool, error) {
		return false, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestGenerate_ContextCancelled(t *testing.T) {
	g := NewGenerator(20, time.UTC)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Generate(ctx, time.Now(), func(context.Context, string) (bool, error) {
		return false, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSuffix_RejectsBiasedBytes(t *testing.T) {
	// 252 is the first byte value outside the unbiased range for a 36-char alphabet.
	src := bytes.NewReader(append(bytes.Repeat([]byte{255, 252}, 5), 0, 1, 2, 3, 35, 0, 0, 0, 0, 0))
	g := &Generator{Rand: src}

	s, err := g.suffix()
	require.NoError(t, err)
	assert.Equal(t, "ABCD9", s)
}
