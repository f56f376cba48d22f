package ratelimiter

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// sweepEvery is how many decisions pass between sweeps of idle viewers.
const sweepEvery = 256

// ViewerLimiter meters contract actions per viewer. Every viewer gets its own
// token bucket, so one busy tab cannot spend the server key's gas for everyone.
type ViewerLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu      sync.Mutex
	viewers map[string]*budget
	calls   uint64
}

type budget struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

// New returns nil, which allows every action, when rps or burst is not positive.
func New(rps float64, burst int, idleTTL time.Duration) *ViewerLimiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &ViewerLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		idleTTL: idleTTL,
		viewers: make(map[string]*budget),
	}
}

// Allow spends one action from the viewer's budget at now. When the budget is
// empty nothing is spent and the wait until the next action is returned.
// Blank viewer keys are never limited.
func (l *ViewerLimiter) Allow(viewer string, now time.Time) (bool, time.Duration) {
	if l == nil {
		return true, 0
	}
	viewer = strings.TrimSpace(viewer)
	if viewer == "" {
		return true, 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.viewers[viewer]
	if !ok {
		b = &budget{bucket: rate.NewLimiter(l.limit, l.burst)}
		l.viewers[viewer] = b
	}
	b.lastSeen = now

	l.calls++
	if l.calls%sweepEvery == 0 {
		l.sweepLocked(now)
	}

	res := b.bucket.ReserveN(now, 1)
	if wait := res.DelayFrom(now); wait > 0 {
		res.CancelAt(now)
		return false, wait
	}
	return true, 0
}

// Viewers returns how many viewers currently hold a budget.
func (l *ViewerLimiter) Viewers() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.viewers)
}

func (l *ViewerLimiter) sweepLocked(now time.Time) {
	cutoff := now.Add(-l.idleTTL)
	for k, b := range l.viewers {
		if b.lastSeen.Before(cutoff) {
			delete(l.viewers, k)
		}
	}
}
