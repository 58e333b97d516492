package hmacauth

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
)

// VerifierConfig configures the inbound verification middleware.
type VerifierConfig struct {
	Secret string
	MaxAge time.Duration   // defaults to DefaultMaxAge
	Clock  clockwork.Clock // defaults to the real clock
	Skip   []string        // exact paths served without a signature
}

// Middleware rejects requests whose signature headers do not verify against the
// escaped request path, the same path a client signs.
func Middleware(cfg VerifierConfig) gin.HandlerFunc {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	skip := make(map[string]struct{}, len(cfg.Skip))
	for _, p := range cfg.Skip {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		path := c.Request.URL.EscapedPath()
		if _, ok := skip[path]; ok {
			c.Next()
			return
		}

		ok := Verify(
			c.Request.Method,
			path,
			c.GetHeader(HeaderTimestamp),
			c.GetHeader(HeaderSignature),
			cfg.Secret,
			cfg.Clock.Now(),
			cfg.MaxAge,
		)
		if !ok {
			slog.Debug("hmac verify failed", "method", c.Request.Method, "path", path, "ip", c.ClientIP())
			c.Error(ErrAuth)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrAuth.Error()})
			return
		}

		c.Next()
	}
}
