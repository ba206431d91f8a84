package ratelimit

import "time"

// Clock abstracts time so limiters and moderation windows can be driven
// deterministically in tests.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }
