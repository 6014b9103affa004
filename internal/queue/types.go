package queue

import (
	"math"
	"math/rand"
	"time"
)

// Options configures a Pool
type Options struct {
	Workers    int
	QueueSize  int
	MaxRetries int
	// Timeout bounds a single attempt of a job
	Timeout time.Duration
	// BackoffBase is the delay before the first retry; it doubles on each attempt
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = time.Second
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = 30 * time.Second
	}
	return o
}

// Stats represents counters for a pool
type Stats struct {
	Queued    int   `json:"queued"`
	Completed int64 `json:"completed"`
	Retried   int64 `json:"retried"`
	Failed    int64 `json:"failed"`
}

// calculateBackoff calculates the backoff duration for a retry
func calculateBackoff(retry int, base, max time.Duration) time.Duration {
	// Exponential backoff with jitter
	seconds := math.Min(max.Seconds(), base.Seconds()*math.Pow(2, float64(retry)))

	// Add jitter (±20%)
	jitter := seconds * 0.2
	seconds = seconds - jitter + (rand.Float64() * jitter * 2)

	return time.Duration(seconds * float64(time.Second))
}
