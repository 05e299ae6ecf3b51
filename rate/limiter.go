package rate

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter tracks a token bucket per key. The emulator keys auth endpoints by
// account so one client hammering /auth/login cannot lock everyone out.
type Limiter struct {
	burst  int
	limit  float64
	expiry time.Duration

	mu      sync.Mutex
	clients map[string]*keyLimiter
	stop    chan struct{}
}

type keyLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

func NewLimiter(burst int, expiry time.Duration, limitRPS float64) *Limiter {
	lm := &Limiter{
		burst:   burst,
		limit:   limitRPS,
		expiry:  expiry,
		clients: make(map[string]*keyLimiter),
		stop:    make(chan struct{}),
	}
	go lm.janitor()
	return lm
}

// Check reports whether key may proceed right now.
func (l *Limiter) Check(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cl, ok := l.clients[key]
	if !ok {
		cl = &keyLimiter{limiter: rate.NewLimiter(rate.Limit(l.limit), l.burst)}
		l.clients[key] = cl
	}
	cl.lastAccess = time.Now()
	return cl.limiter.Allow()
}

// Stop halts the background eviction of idle keys.
func (l *Limiter) Stop() {
	close(l.stop)
}

func (l *Limiter) janitor() {
	t := time.NewTicker(time.Minute)
	defer t.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-t.C:
			l.mu.Lock()
			for key, cl := range l.clients {
				if time.Since(cl.lastAccess) > l.expiry {
					delete(l.clients, key)
				}
			}
			l.mu.Unlock()
		}
	}
}

// Every converts a per-event interval into a requests-per-second limit.
func Every(interval time.Duration) float64 {
	return float64(rate.Every(interval))
}
