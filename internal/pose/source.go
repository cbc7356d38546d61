// Package pose abstracts the external 3D pose-tracking feed. A Source
// delivers timestamped fingertip samples over a channel and answers
// point-in-time observer pose queries. The tracing engine never talks to
// tracking hardware directly, so replay logs and synthetic motion can stand
// in for a live headset.
package pose

import (
	"sync"

	"gonum.org/v1/gonum/spatial/r3"
)

// Hand identifies which tracked hand produced a sample.
type Hand string

const (
	LeftHand  Hand = "left"
	RightHand Hand = "right"
)

// Sample is one tracked fingertip observation. Timestamp is seconds on the
// source's monotonic clock; samples on a feed are non-decreasing in time.
type Sample struct {
	Position  r3.Vec
	Timestamp float64
	Hand      Hand
}

// Observer is the pose of the viewing device, used as the reference frame
// for placing guide paths.
type Observer struct {
	Position r3.Vec
	Forward  r3.Vec // unit vector
}

// Source is the minimal surface the tracing engine requires from a pose
// provider: a push feed of fingertip samples and an on-demand observer pose
// query. Observer returns false when no pose is currently available.
type Source interface {
	Samples() <-chan Sample
	Observer() (Observer, bool)
	Close() error
}

// ObserverCache wraps a Source and falls back to the last known observer
// pose when the underlying source has none, so a momentary tracking dropout
// does not make guide placement jump. If no pose was ever seen, the query
// reports unavailable and callers no-op for that tick.
type ObserverCache struct {
	src Source

	mu     sync.Mutex
	last   Observer
	primed bool
}

// NewObserverCache wraps src with last-known-good observer caching.
func NewObserverCache(src Source) *ObserverCache {
	return &ObserverCache{src: src}
}

// Samples returns the underlying sample feed.
func (c *ObserverCache) Samples() <-chan Sample {
	return c.src.Samples()
}

// Observer returns the current observer pose, or the cached one if the
// source query fails.
func (c *ObserverCache) Observer() (Observer, bool) {
	if obs, ok := c.src.Observer(); ok {
		c.mu.Lock()
		c.last = obs
		c.primed = true
		c.mu.Unlock()
		return obs, true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.primed {
		return c.last, true
	}
	return Observer{}, false
}

// Close closes the underlying source.
func (c *ObserverCache) Close() error {
	return c.src.Close()
}
