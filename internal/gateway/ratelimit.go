package gateway

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// maxTrackedIPs caps the rate limiter table, the same bound the original
// applies via its rate_limit_mutex_-guarded client_rates_ map growing
// without an explicit cap in practice; an LRU here turns that into an
// enforced bound rather than unlimited memory growth.
const maxTrackedIPs = 50_000

// ipLimiter pairs a per-minute and a per-hour token bucket for one client
// IP, per spec §6.4's "60/min and 1000/hr per-IP rate limits". Both must
// allow a request for it to pass.
type ipLimiter struct {
	perMinute *rate.Limiter
	perHour   *rate.Limiter
}

func (l *ipLimiter) Allow() bool {
	// Check both, but only consume a token from each if both would allow,
	// so a blocked-by-hour request doesn't still burn a minute token.
	now := time.Now()
	if l.perMinute.TokensAt(now) < 1 || l.perHour.TokensAt(now) < 1 {
		return false
	}
	return l.perMinute.AllowN(now, 1) && l.perHour.AllowN(now, 1)
}

// ipLimiterSet hands out (and caches) one ipLimiter per client IP.
type ipLimiterSet struct {
	mu          sync.Mutex
	cache       *lru.Cache[string, *ipLimiter]
	perMinute   int
	perHour     int
}

func newIPLimiterSet(perMinute, perHour int) *ipLimiterSet {
	c, _ := lru.New[string, *ipLimiter](maxTrackedIPs)
	return &ipLimiterSet{cache: c, perMinute: perMinute, perHour: perHour}
}

func (s *ipLimiterSet) allow(ip string) bool {
	s.mu.Lock()
	l, ok := s.cache.Get(ip)
	if !ok {
		l = &ipLimiter{
			perMinute: rate.NewLimiter(rate.Every(time.Minute/time.Duration(s.perMinute)), s.perMinute),
			perHour:   rate.NewLimiter(rate.Every(time.Hour/time.Duration(s.perHour)), s.perHour),
		}
		s.cache.Add(ip, l)
	}
	s.mu.Unlock()
	return l.Allow()
}
