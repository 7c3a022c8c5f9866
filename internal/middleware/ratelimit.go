package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"geotech-lab-api/internal/model"
	"geotech-lab-api/internal/ratelimit"
)

const authPathPrefix = "/api/v1/auth/"

type RateLimitConfig struct {
	Window     time.Duration
	Max        int
	AuthMax    int
	TrustProxy bool
}

// RateLimitMiddleware counts requests per client IP. Auth endpoints get
// their own, tighter bucket. A store failure lets the request through.
type RateLimitMiddleware struct {
	store ratelimit.Store
	cfg   RateLimitConfig
}

func NewRateLimitMiddleware(store ratelimit.Store, cfg RateLimitConfig) *RateLimitMiddleware {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Max <= 0 {
		cfg.Max = 100
	}
	if cfg.AuthMax <= 0 {
		cfg.AuthMax = 10
	}
	return &RateLimitMiddleware{store: store, cfg: cfg}
}

func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		clientIP := ClientIP(r, m.cfg.TrustProxy)
		key, limit := "general:"+clientIP, m.cfg.Max
		if strings.HasPrefix(strings.ToLower(r.URL.Path), authPathPrefix) {
			key, limit = "auth:"+clientIP, m.cfg.AuthMax
		}

		decision, err := m.store.Allow(r.Context(), key, limit, m.cfg.Window)
		if err != nil {
			slog.Warn("rate limit store unavailable", "error", err, "client_ip", clientIP)
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))

		if !decision.Allowed {
			seconds := int(decision.RetryAfter.Round(time.Second) / time.Second)
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			writeJSONError(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ClientIP returns the caller's address. Forwarding headers are only
// honored behind a trusted proxy; otherwise anyone could pick their key.
// TRUST_PROXY assumes exactly one proxy hop, so the rightmost
// X-Forwarded-For entry is the address that proxy saw; entries to its
// left are whatever the client sent.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			if ip := strings.TrimSpace(hops[i]); ip != "" {
				return ip
			}
		}

		realIP := strings.TrimSpace(r.Header.Get("X-Real-IP"))
		if realIP != "" {
			return realIP
		}
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}

	if strings.TrimSpace(r.RemoteAddr) == "" {
		return "unknown"
	}

	return r.RemoteAddr
}

// ClientMeta collects the request details recorded on sessions and auth
// log entries.
func ClientMeta(r *http.Request, trustProxy bool, deviceInfo string) model.ClientMeta {
	userAgent := r.UserAgent()
	if len(userAgent) > 512 {
		userAgent = userAgent[:512]
	}
	return model.ClientMeta{
		IPAddress:  ClientIP(r, trustProxy),
		UserAgent:  userAgent,
		DeviceInfo: strings.TrimSpace(deviceInfo),
	}
}
