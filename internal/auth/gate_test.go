package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGateAcceptsPasscode(t *testing.T) {
	g := NewGate("8520", time.Millisecond)
	assert.NoError(t, g.Verify(context.Background(), "8520"))
}

func TestGateRejectsOtherInput(t *testing.T) {
	g := NewGate("8520", time.Millisecond)
	for _, in := range []string{"", "852", "85200", " 8520", "0000"} {
		assert.ErrorIs(t, g.Verify(context.Background(), in), ErrWrongPasscode, in)
	}
}

func TestGateWaitsForDelay(t *testing.T) {
	g := NewGate("8520", 30*time.Millisecond)
	start := time.Now()
	_ = g.Verify(context.Background(), "8520")
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestGateCancelledBeforeAnswer(t *testing.T) {
	g := NewGate("8520", time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, g.Verify(ctx, "8520"), context.Canceled)
}
