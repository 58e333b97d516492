// Package hmacauth signs and verifies requests with a shared secret.
//
// The signed message is "{method}:{path}:{timestamp}" where path never
// includes the query string, even when the request on the wire has one.
package hmacauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	HeaderTimestamp = "X-Timestamp"
	HeaderSignature = "X-Signature"

	DefaultMaxAge = 300 * time.Second
)

// ErrAuth is returned by the verification path for a missing, invalid or expired signature.
var ErrAuth = errors.New("hmacauth: invalid or expired signature")

// Signature is generated fresh for every outgoing request.
type Signature struct {
	Method    string
	Path      string
	Timestamp int64
	Value     string // lowercase hex HMAC-SHA256
}

// Sign computes the signature of method and path at now.
// path must already be canonical, see CanonicalPath.
func Sign(method, path, secret string, now time.Time) Signature {
	ts := now.Unix()
	return Signature{
		Method:    method,
		Path:      path,
		Timestamp: ts,
		Value:     digest(method, path, strconv.FormatInt(ts, 10), secret),
	}
}

// Apply sets the signature headers on h.
func (s Signature) Apply(h http.Header) {
	h.Set(HeaderTimestamp, strconv.FormatInt(s.Timestamp, 10))
	h.Set(HeaderSignature, s.Value)
}

// Verify checks a received signature. It never panics or errors: every failure is false.
// Timestamps further than maxAge from now, in either direction, are rejected.
func Verify(method, path, timestamp, signature, secret string, now time.Time, maxAge time.Duration) bool {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}

	age := now.Unix() - ts
	if age < 0 {
		age = -age
	}
	if age > int64(maxAge/time.Second) {
		return false
	}

	expected := digest(method, path, timestamp, secret)
	return subtle.ConstantTimeCompare([]byte(strings.ToLower(signature)), []byte(expected)) == 1
}

// CanonicalPath strips the query string (and fragment) from a request target.
func CanonicalPath(target string) string {
	if i := strings.IndexAny(target, "?#"); i >= 0 {
		return target[:i]
	}
	return target
}

func digest(method, path, timestamp, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(method + ":" + path + ":" + timestamp))
	return hex.EncodeToString(mac.Sum(nil))
}
