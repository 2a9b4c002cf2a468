package server

import (
	"fmt"
	"sync"
	"time"
)

// RateLimitConfig bounds how much OCR work one client may request.
// Zero disables the corresponding limit.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	RequestsPerHour   int
	MaxRequestsPerDay int
	MaxDataPerDay     int64 // uploaded bytes
}

// RateLimiter tracks per-client request windows and daily upload quotas.
type RateLimiter struct {
	mu     sync.Mutex
	limits RateLimitConfig
	now    func() time.Time

	clients map[string]*clientUsage
}

type clientUsage struct {
	minuteStart time.Time
	hourStart   time.Time
	day         time.Time // local midnight of the current quota day

	requestsThisMinute int
	requestsThisHour   int
	requestsToday      int
	bytesToday         int64
}

// Usage is a snapshot of one client's counters.
type Usage struct {
	RequestsThisMinute int
	RequestsThisHour   int
	RequestsToday      int
	BytesToday         int64
}

// NewRateLimiter creates a limiter enforcing limits.
func NewRateLimiter(limits RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		limits:  limits,
		now:     time.Now,
		clients: make(map[string]*clientUsage),
	}
}

// Allow records one request of size bytes from client, or returns a
// *RateLimitError or *QuotaExceededError when a limit is reached. Rejected
// requests are not counted.
func (rl *RateLimiter) Allow(client string, size int64) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	usage := rl.usageFor(client, now)
	usage.roll(now)

	if err := rl.checkWindows(usage, now); err != nil {
		return err
	}
	if err := rl.checkDaily(usage, size); err != nil {
		return err
	}

	usage.requestsThisMinute++
	usage.requestsThisHour++
	usage.requestsToday++
	usage.bytesToday += size
	return nil
}

func (rl *RateLimiter) usageFor(client string, now time.Time) *clientUsage {
	usage, ok := rl.clients[client]
	if !ok {
		usage = &clientUsage{minuteStart: now, hourStart: now, day: midnight(now)}
		rl.clients[client] = usage
	}
	return usage
}

// roll starts fresh windows once they have elapsed.
func (u *clientUsage) roll(now time.Time) {
	if now.Sub(u.minuteStart) >= time.Minute {
		u.minuteStart = now
		u.requestsThisMinute = 0
	}
	if now.Sub(u.hourStart) >= time.Hour {
		u.hourStart = now
		u.requestsThisHour = 0
	}
	if today := midnight(now); !today.Equal(u.day) {
		u.day = today
		u.requestsToday = 0
		u.bytesToday = 0
	}
}

func (rl *RateLimiter) checkWindows(usage *clientUsage, now time.Time) error {
	if rl.limits.RequestsPerMinute > 0 && usage.requestsThisMinute >= rl.limits.RequestsPerMinute {
		return &RateLimitError{
			Window:     "minute",
			Limit:      rl.limits.RequestsPerMinute,
			RetryAfter: time.Minute - now.Sub(usage.minuteStart),
		}
	}
	if rl.limits.RequestsPerHour > 0 && usage.requestsThisHour >= rl.limits.RequestsPerHour {
		return &RateLimitError{
			Window:     "hour",
			Limit:      rl.limits.RequestsPerHour,
			RetryAfter: time.Hour - now.Sub(usage.hourStart),
		}
	}
	return nil
}

func (rl *RateLimiter) checkDaily(usage *clientUsage, size int64) error {
	resets := usage.day.AddDate(0, 0, 1)
	if rl.limits.MaxRequestsPerDay > 0 && usage.requestsToday >= rl.limits.MaxRequestsPerDay {
		return &QuotaExceededError{
			Quota:  "requests",
			Limit:  int64(rl.limits.MaxRequestsPerDay),
			Used:   int64(usage.requestsToday),
			Resets: resets,
		}
	}
	if rl.limits.MaxDataPerDay > 0 && usage.bytesToday+size > rl.limits.MaxDataPerDay {
		return &QuotaExceededError{
			Quota:  "data",
			Limit:  rl.limits.MaxDataPerDay,
			Used:   usage.bytesToday,
			Resets: resets,
		}
	}
	return nil
}

// Usage returns the current counters for client.
func (rl *RateLimiter) Usage(client string) Usage {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	usage, ok := rl.clients[client]
	if !ok {
		return Usage{}
	}
	return Usage{
		RequestsThisMinute: usage.requestsThisMinute,
		RequestsThisHour:   usage.requestsThisHour,
		RequestsToday:      usage.requestsToday,
		BytesToday:         usage.bytesToday,
	}
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// RateLimitError reports an exhausted per-minute or per-hour window.
type RateLimitError struct {
	Window     string // "minute" or "hour"
	Limit      int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (limit: %d, retry after: %v)", e.Window, e.Limit, e.RetryAfter)
}

// QuotaExceededError reports an exhausted daily quota.
type QuotaExceededError struct {
	Quota  string // "requests" or "data"
	Limit  int64
	Used   int64
	Resets time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s (used: %d, limit: %d, resets: %s)",
		e.Quota, e.Used, e.Limit, e.Resets.Format(time.RFC3339))
}
