package hmacauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var refTime = time.Unix(1700000000, 0)

func TestSign_MatchesReferenceHMAC(t *testing.T) {
	sig := Sign("GET", "/photos", "shared-secret", refTime)

	mac := hmac.New(sha256.New, []byte("shared-secret"))
	mac.Write([]byte("GET:/photos:1700000000"))
	want := hex.EncodeToString(mac.Sum(nil))

	assert.Equal(t, int64(1700000000), sig.Timestamp)
	assert.Equal(t, want, sig.Value)
	assert.Len(t, sig.Value, 64)
	assert.Equal(t, strings.ToLower(sig.Value), sig.Value)
}

func TestSign_VerifyRoundTrip(t *testing.T) {
	cases := []struct{ method, path, secret string }{
		{"GET", "/photos", "s3cret"},
		{"GET", "/photos/ABC123%2FL0%2F001/download", "another"},
		{"POST", "/", ""},
		{"DELETE", "/photos/x/livephoto", "üñíçødé"},
	}
	for _, tc := range cases {
		sig := Sign(tc.method, tc.path, tc.secret, refTime)
		ts := strconv.FormatInt(sig.Timestamp, 10)
		assert.True(t, Verify(tc.method, tc.path, ts, sig.Value, tc.secret, refTime, DefaultMaxAge), "%+v", tc)
	}
}

func TestSign_EachInputChangesSignature(t *testing.T) {
	base := Sign("GET", "/photos", "secret", refTime).Value

	assert.NotEqual(t, base, Sign("POST", "/photos", "secret", refTime).Value)
	assert.NotEqual(t, base, Sign("GET", "/health", "secret", refTime).Value)
	assert.NotEqual(t, base, Sign("GET", "/photos", "other", refTime).Value)
	assert.NotEqual(t, base, Sign("GET", "/photos", "secret", refTime.Add(time.Second)).Value)
	assert.Equal(t, base, Sign("GET", "/photos", "secret", refTime.Add(500*time.Millisecond)).Value)
}

func TestVerify_Age(t *testing.T) {
	sig := Sign("GET", "/photos", "secret", refTime)
	ts := strconv.FormatInt(sig.Timestamp, 10)

	t.Run("exactly max age is accepted", func(t *testing.T) {
		assert.True(t, Verify("GET", "/photos", ts, sig.Value, "secret", refTime.Add(300*time.Second), DefaultMaxAge))
		assert.True(t, Verify("GET", "/photos", ts, sig.Value, "secret", refTime.Add(-300*time.Second), DefaultMaxAge))
	})

	t.Run("older than max age is rejected", func(t *testing.T) {
		assert.False(t, Verify("GET", "/photos", ts, sig.Value, "secret", refTime.Add(301*time.Second), DefaultMaxAge))
	})

	t.Run("future beyond max age is rejected", func(t *testing.T) {
		assert.False(t, Verify("GET", "/photos", ts, sig.Value, "secret", refTime.Add(-301*time.Second), DefaultMaxAge))
	})

	t.Run("custom max age", func(t *testing.T) {
		assert.True(t, Verify("GET", "/photos", ts, sig.Value, "secret", refTime.Add(10*time.Second), 10*time.Second))
		assert.False(t, Verify("GET", "/photos", ts, sig.Value, "secret", refTime.Add(11*time.Second), 10*time.Second))
	})
}

func TestVerify_Rejects(t *testing.T) {
	sig := Sign("GET", "/photos", "secret", refTime)
	ts := strconv.FormatInt(sig.Timestamp, 10)

	assert.False(t, Verify("GET", "/photos", "not-a-number", sig.Value, "secret", refTime, DefaultMaxAge))
	assert.False(t, Verify("GET", "/photos", "", sig.Value, "secret", refTime, DefaultMaxAge))
	assert.False(t, Verify("GET", "/photos", "1700000000.5", sig.Value, "secret", refTime, DefaultMaxAge))
	assert.False(t, Verify("GET", "/photos", ts, "deadbeef", "secret", refTime, DefaultMaxAge))
	assert.False(t, Verify("GET", "/photos", ts, sig.Value, "wrong", refTime, DefaultMaxAge))
	assert.False(t, Verify("GET", "/photos?since=1", ts, sig.Value, "secret", refTime, DefaultMaxAge))
}

func TestVerify_CaseInsensitive(t *testing.T) {
	sig := Sign("GET", "/photos", "secret", refTime)
	ts := strconv.FormatInt(sig.Timestamp, 10)
	assert.True(t, Verify("GET", "/photos", ts, strings.ToUpper(sig.Value), "secret", refTime, DefaultMaxAge))
}

func TestCanonicalPath(t *testing.T) {
	assert.Equal(t, "/photos", CanonicalPath("/photos?since=1700000000"))
	assert.Equal(t, "/photos", CanonicalPath("/photos"))
	assert.Equal(t, "/photos/a%2Fb/download", CanonicalPath("/photos/a%2Fb/download#frag"))
}

func TestSignature_Apply(t *testing.T) {
	h := http.Header{}
	Sign("GET", "/health", "secret", refTime).Apply(h)
	assert.Equal(t, "1700000000", h.Get(HeaderTimestamp))
	assert.Len(t, h.Get(HeaderSignature), 64)
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	clock := clockwork.NewFakeClockAt(refTime)

	r := gin.New()
	r.Use(Middleware(VerifierConfig{Secret: "secret", Clock: clock, Skip: []string{"/open"}}))
	r.GET("/photos", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/open", func(c *gin.Context) { c.String(http.StatusOK, "open") })

	do := func(target string, sig *Signature) int {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		if sig != nil {
			sig.Apply(req.Header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	good := Sign("GET", "/photos", "secret", refTime)
	assert.Equal(t, http.StatusOK, do("/photos", &good))
	assert.Equal(t, http.StatusOK, do("/photos?since=1700000000", &good), "query string is not signed")
	assert.Equal(t, http.StatusUnauthorized, do("/photos", nil))
	assert.Equal(t, http.StatusOK, do("/open", nil))

	bad := Sign("GET", "/photos", "other", refTime)
	assert.Equal(t, http.StatusUnauthorized, do("/photos", &bad))

	clock.Advance(301 * time.Second)
	assert.Equal(t, http.StatusUnauthorized, do("/photos", &good))
}

func TestMiddleware_EscapedPath(t *testing.T) {
	gin.SetMode(gin.TestMode)
	clock := clockwork.NewFakeClockAt(refTime)

	r := gin.New()
	r.UseRawPath = true
	r.Use(Middleware(VerifierConfig{Secret: "secret", Clock: clock}))
	r.GET("/photos/:id/download", func(c *gin.Context) { c.String(http.StatusOK, c.Param("id")) })

	sig := Sign("GET", "/photos/ABC%2FL0%2F001/download", "secret", refTime)
	req := httptest.NewRequest(http.MethodGet, "/photos/ABC%2FL0%2F001/download", nil)
	sig.Apply(req.Header)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
}
