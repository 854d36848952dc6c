package api

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/RishiKendai/textpair/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// callerKey holds the caller identity in the gin context
const callerKey = "caller"

func abortWith(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: msg, Code: code})
}

// runClaims are the claims of a run API token. Client names the caller;
// tokens without it fall back to their subject.
type runClaims struct {
	Client string `json:"client,omitempty"`
	jwt.RegisteredClaims
}

func (rc *runClaims) caller() string {
	if rc.Client != "" {
		return rc.Client
	}
	return rc.Subject
}

// RequireToken accepts HMAC-signed bearer tokens. A non-empty issuer must
// match the token's iss claim. The caller identity is stored for Throttle and
// the run logs.
func RequireToken(secret, issuer string) gin.HandlerFunc {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	parser := jwt.NewParser(opts...)
	key := []byte(secret)

	return func(c *gin.Context) {
		raw, ok := bearer(c.GetHeader("Authorization"))
		if !ok {
			abortWith(c, http.StatusUnauthorized, "UNAUTHORIZED", "Bearer token required")
			return
		}

		var claims runClaims
		_, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
			return key, nil
		})
		if err != nil {
			log.Debug().Err(err).Str("path", c.FullPath()).Msg("Rejected run API token")
			abortWith(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or expired token")
			return
		}

		c.Set(callerKey, claims.caller())
		c.Next()
	}
}

// bearer extracts the token of an "Authorization: Bearer <token>" header
func bearer(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}
	return token, true
}

// RunLimiter throttles run API calls per caller. Callers idle for longer
// than idleTTL are forgotten on the next sweep.
type RunLimiter struct {
	mu         sync.Mutex
	callers    map[string]*callerLimit
	limit      rate.Limit
	burst      int
	idleTTL    time.Duration
	retryAfter string
	swept      time.Time
	now        func() time.Time
}

type callerLimit struct {
	lim  *rate.Limiter
	seen time.Time
}

func NewRunLimiter(rps float64, burst int) *RunLimiter {
	wait := 1
	if rps > 0 {
		wait = max(1, int(math.Ceil(1/rps)))
	}
	return &RunLimiter{
		callers:    make(map[string]*callerLimit),
		limit:      rate.Limit(rps),
		burst:      max(1, burst),
		idleTTL:    time.Hour,
		retryAfter: strconv.Itoa(wait),
		swept:      time.Now(),
		now:        time.Now,
	}
}

// Allow reports whether caller may make a request now
func (l *RunLimiter) Allow(caller string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.swept) > l.idleTTL {
		for k, cl := range l.callers {
			if now.Sub(cl.seen) > l.idleTTL {
				delete(l.callers, k)
			}
		}
		l.swept = now
	}

	cl, ok := l.callers[caller]
	if !ok {
		cl = &callerLimit{lim: rate.NewLimiter(l.limit, l.burst)}
		l.callers[caller] = cl
	}
	cl.seen = now
	return cl.lim.AllowN(now, 1)
}

// Throttle answers 429 with a Retry-After hint once a caller exceeds its
// rate. Requests without a token identity are keyed by client IP.
func Throttle(l *RunLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.GetString(callerKey)
		if caller == "" {
			caller = c.ClientIP()
		}
		if !l.Allow(caller) {
			log.Warn().Str("caller", caller).Str("path", c.FullPath()).Msg("Run API rate limit exceeded")
			c.Header("Retry-After", l.retryAfter)
			abortWith(c, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Too many run requests")
			return
		}
		c.Next()
	}
}

// Recover turns a handler panic into a 500 error response
func Recover() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.Error().
			Interface("panic", recovered).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("caller", c.GetString(callerKey)).
			Msg("Handler panicked")
		abortWith(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	})
}

// Observe logs each request and records its count and latency per route
func Observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		elapsed := time.Since(started)
		status := c.Writer.Status()
		metrics.ObserveRequest(c.Request.Method, endpoint, strconv.Itoa(status), elapsed)

		log.Debug().
			Str("method", c.Request.Method).
			Str("endpoint", endpoint).
			Int("status", status).
			Str("caller", c.GetString(callerKey)).
			Dur("elapsed", elapsed).
			Msg("Request served")
	}
}
