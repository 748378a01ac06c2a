package auth

import (
	"context"
	"errors"
	"time"
)

// ErrWrongPasscode is returned when the admin passcode does not match.
var ErrWrongPasscode = errors.New("wrong passcode")

// Gate checks the shared admin passcode. It only keeps casual users off the
// dashboard and makes no attempt at being a security boundary.
type Gate struct {
	passcode string
	delay    time.Duration
}

// NewGate creates a gate that answers after delay.
func NewGate(passcode string, delay time.Duration) *Gate {
	return &Gate{passcode: passcode, delay: delay}
}

// Verify waits for the check delay and compares input with the passcode.
// If ctx ends first the result is discarded and ctx's error returned.
func (g *Gate) Verify(ctx context.Context, input string) error {
	timer := time.NewTimer(g.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}
	if input != g.passcode {
		return ErrWrongPasscode
	}
	return nil
}
