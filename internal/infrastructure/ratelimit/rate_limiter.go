package ratelimit

import (
	"sync"
	"time"
)

// Bucket is a token bucket used to throttle bursty best-effort traffic, such
// as typing-indicator broadcasts.
type Bucket struct {
	tokens     int
	maxTokens  int
	refillRate int
	refillTime time.Duration
	lastRefill time.Time
	mutex      sync.Mutex
}

// NewBucket creates a full bucket holding maxTokens, refilled with refillRate
// tokens every refillTime.
func NewBucket(maxTokens, refillRate int, refillTime time.Duration) *Bucket {
	return &Bucket{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		refillTime: refillTime,
		lastRefill: time.Now(),
	}
}

// Allow consumes a token when one is available.
func (b *Bucket) Allow() bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.lastRefill)
	tokensToAdd := int(elapsed/b.refillTime) * b.refillRate

	if tokensToAdd > 0 {
		b.tokens += tokensToAdd
		if b.tokens > b.maxTokens {
			b.tokens = b.maxTokens
		}
		b.lastRefill = now
	}

	if b.tokens > 0 {
		b.tokens--
		return true
	}
	return false
}

// Tokens returns the current token count.
func (b *Bucket) Tokens() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.tokens
}
