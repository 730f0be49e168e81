package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"storefront-be/internal/utils"

	"golang.org/x/time/rate"
)

// rateTier is one token-bucket policy. A caller gets a separate bucket per tier.
type rateTier struct {
	name  string
	limit rate.Limit
	burst int
}

var (
	// checkout and gateway callbacks
	tierStrict = rateTier{name: "strict", limit: 2, burst: 5}
	// callers holding the internal service key
	tierInternal = rateTier{name: "internal", limit: 100, burst: 200}
	tierGeneral  = rateTier{name: "general", limit: 10, burst: 20}
)

var strictPrefixes = []string{"/query", "/webhooks/", "/payments/"}

const (
	bucketIdleTTL  = 3 * time.Minute
	bucketSweepGap = time.Minute
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

var (
	buckets   = make(map[string]*bucket)
	bucketsMu sync.Mutex
)

func init() {
	go func() {
		for range time.Tick(bucketSweepGap) {
			evictIdle(bucketIdleTTL)
		}
	}()
}

func limiterFor(key string, tier rateTier) *rate.Limiter {
	bucketsMu.Lock()
	defer bucketsMu.Unlock()

	b, ok := buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(tier.limit, tier.burst)}
		buckets[key] = b
	}
	b.lastSeen = time.Now()
	return b.limiter
}

// evictIdle drops buckets untouched for longer than idle.
func evictIdle(idle time.Duration) {
	bucketsMu.Lock()
	defer bucketsMu.Unlock()
	for key, b := range buckets {
		if time.Since(b.lastSeen) > idle {
			delete(buckets, key)
		}
	}
}

// RateLimitMiddleware limits each caller per tier. Callers presenting the
// internal key are marked internal for handlers further down.
func RateLimitMiddleware(internalKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tier := resolveRateTier(r, internalKey)
			if tier == tierInternal {
				r = r.WithContext(utils.WithInternalRequest(r.Context()))
			}

			if !limiterFor(identity(r)+":"+tier.name, tier).Allow() {
				w.Header().Set("Retry-After", "1")
				utils.WriteJSONError(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func identity(r *http.Request) string {
	if sub, ok := utils.GetAdminSubjectFromContext(r.Context()); ok {
		return "admin:" + sub
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	return "ip:" + ip
}

func resolveRateTier(r *http.Request, internalKey string) rateTier {
	if internalKey != "" && r.Header.Get("X-Service-Auth") == internalKey {
		return tierInternal
	}
	for _, prefix := range strictPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return tierStrict
		}
	}
	return tierGeneral
}
