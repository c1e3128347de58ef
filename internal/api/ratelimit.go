package api

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limiterIdle is how long a client bucket lives without requests
const limiterIdle = 10 * time.Minute

type clientBucket struct {
	limiter *rate.Limiter
	seen    time.Time
}

// clientLimiters keeps one token bucket per client address
type clientLimiters struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	idle      time.Duration
	clients   map[string]*clientBucket
	lastSweep time.Time
	now       func() time.Time
}

func newClientLimiters(limit float64, burst int) *clientLimiters {
	if burst < 1 {
		burst = 1
	}

	return &clientLimiters{
		limit:   rate.Limit(limit),
		burst:   burst,
		idle:    limiterIdle,
		clients: make(map[string]*clientBucket),
		now:     time.Now,
	}
}

// allow reports whether the client identified by key may proceed
func (c *clientLimiters) allow(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if now.Sub(c.lastSweep) >= c.idle {
		c.sweep(now)
	}

	b, ok := c.clients[key]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(c.limit, c.burst)}
		c.clients[key] = b
	}
	b.seen = now

	return b.limiter.AllowN(now, 1)
}

// sweep drops buckets idle for longer than c.idle. Callers hold c.mu.
func (c *clientLimiters) sweep(now time.Time) {
	for key, b := range c.clients {
		if now.Sub(b.seen) >= c.idle {
			delete(c.clients, key)
		}
	}
	c.lastSweep = now
}

func (c *clientLimiters) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.clients)
}

// clientKey identifies the caller. middleware.RealIP has already replaced
// RemoteAddr with the forwarded address when one was sent.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
