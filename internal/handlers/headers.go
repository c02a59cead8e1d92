package handlers

import (
	"math"
	"net/http"
	"strconv"
	"time"
)

// Rate limit response headers.
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
	HeaderRequestID  = "X-Request-ID"
)

// RejectionHeaders builds the headers sent with a 429 response.
// Retry-After and X-RateLimit-Reset are whole seconds, rounded up.
func RejectionHeaders(limit int64, retryAfter time.Duration) http.Header {
	seconds := strconv.FormatInt(CeilSeconds(retryAfter), 10)

	h := http.Header{}
	h.Set(HeaderLimit, strconv.FormatInt(limit, 10))
	h.Set(HeaderRemaining, "0")
	h.Set(HeaderReset, seconds)
	h.Set(HeaderRetryAfter, seconds)

	return h
}

// CeilSeconds rounds d up to whole seconds; negative durations become zero.
func CeilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}

	return int64(math.Ceil(d.Seconds()))
}
