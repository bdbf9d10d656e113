package frontier

import "time"

// Default backoff parameters.
const (
	DefaultBackoffBase   = time.Second
	DefaultBackoffMaxExp = 10
)

// BackoffPolicy computes retry delays as Base * 2^min(n, MaxExp).
type BackoffPolicy struct {
	Base   time.Duration
	MaxExp int
}

// NewBackoffPolicy returns the policy with the default base and cap.
func NewBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{Base: DefaultBackoffBase, MaxExp: DefaultBackoffMaxExp}
}

// Delay returns the wait before the next attempt. n is the attempt count
// after incrementing for the current failure; values below 1 count as 1.
func (p BackoffPolicy) Delay(n int) time.Duration {
	base := p.Base
	if base <= 0 {
		base = DefaultBackoffBase
	}
	maxExp := p.MaxExp
	if maxExp < 0 {
		maxExp = DefaultBackoffMaxExp
	}
	if n < 1 {
		n = 1
	}
	exp := min(n, maxExp)
	return base * time.Duration(int64(1)<<uint(exp))
}

// NextAttempt returns now + Delay(n).
func (p BackoffPolicy) NextAttempt(now time.Time, n int) time.Time {
	return now.Add(p.Delay(n))
}
