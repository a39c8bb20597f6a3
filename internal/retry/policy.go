// Package retry holds the backoff policy used for transient fetch failures.
package retry

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Mode selects how delays grow between attempts.
type Mode string

const (
	Fixed       Mode = "fixed"
	Linear      Mode = "linear"
	Exponential Mode = "exponential"
)

// ParseMode accepts a mode name case-insensitively; unknown names yield "".
func ParseMode(s string) Mode {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case Fixed, Linear, Exponential:
		return m
	}
	return ""
}

// Policy is immutable after construction.
type Policy struct {
	Mode    Mode
	Initial time.Duration
	Max     time.Duration
}

// DefaultPolicy is exponential from 250ms capped at 5s.
func DefaultPolicy() Policy {
	return Policy{Mode: Exponential, Initial: 250 * time.Millisecond, Max: 5 * time.Second}
}

// NewPolicy builds a policy; zero or unknown values fall back to defaults.
func NewPolicy(mode Mode, initial, maxDelay time.Duration) Policy {
	p := DefaultPolicy()
	if m := ParseMode(string(mode)); m != "" {
		p.Mode = m
	}
	if initial > 0 {
		p.Initial = initial
	}
	if maxDelay > 0 {
		p.Max = maxDelay
	}
	if p.Initial > p.Max {
		p.Initial = p.Max
	}
	return p
}

// Delay returns the wait before the given retry (1-based).
func (p Policy) Delay(retry int) time.Duration {
	if retry <= 0 {
		return 0
	}
	var d time.Duration
	switch p.Mode {
	case Fixed:
		d = p.Initial
	case Linear:
		d = time.Duration(retry) * p.Initial
	default:
		shift := retry - 1
		if shift > 30 {
			shift = 30
		}
		d = p.Initial * time.Duration(1<<shift)
	}
	if p.Max > 0 && d > p.Max {
		return p.Max
	}
	return d
}

// Validate reports policies that cannot be applied.
func (p Policy) Validate() error {
	if p.Initial <= 0 {
		return fmt.Errorf("initial must be >0")
	}
	if p.Max <= 0 {
		return fmt.Errorf("max must be >0")
	}
	return nil
}

// Sleep waits for the retry's delay or until ctx is done.
func (p Policy) Sleep(ctx context.Context, retry int) error {
	d := p.Delay(retry)
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
