package auth

import "time"

// IsWithinThresholdPeriod checks if t is later than now minus window
func IsWithinThresholdPeriod(t time.Time, window time.Duration, now time.Time) bool {
	return t.After(now.Add(-window))
}

// IsOutsideThresholdPeriod is the negation of IsWithinThresholdPeriod
func IsOutsideThresholdPeriod(t time.Time, window time.Duration, now time.Time) bool {
	return !IsWithinThresholdPeriod(t, window, now)
}

// IsExpired reports whether a stored expiry is missing or earlier than now.
// An expiry equal to now is still valid.
func IsExpired(expiry *time.Time, now time.Time) bool {
	return expiry == nil || expiry.Before(now)
}
