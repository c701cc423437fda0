// Package classify decides whether a send failure is worth retrying.
// It is pure: no I/O, no clock, no state.
package classify

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"syscall"
)

// HTTPError carries an HTTP status through the retry machinery so the
// classifier can reason about it without parsing strings.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.Status)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Body)
}

// Transient phrases seen from the messaging API and its edge proxy.
// Matched case-insensitively against the full error message.
var transientPhrases = []string{
	"connection reset",
	"connection refused",
	"no such host",
	"timeout",
	"timed out",
	"socket hang up",
	"network error",
	"fetch failed",
	"rate_limit",
	"error 1016", // edge proxy: origin DNS error, temporary
	"origin dns",
}

var retryableStatus = map[int]bool{
	408: true,
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
	522: true,
	524: true,
}

// Permanent client errors, checked explicitly so an unknown 4xx still falls
// through to the default rather than silently matching.
var permanentStatus = map[int]bool{
	400: true,
	401: true,
	403: true,
	404: true,
	405: true,
	422: true,
}

// IsRetryable reports whether err looks transient. Unrecognized conditions
// are not retryable: retrying a genuinely broken request forever is worse
// than dropping it.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Known transient network causes.
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}

	// Message phrases next: some providers report transient faults with a
	// misleading status, so the phrase list wins over the status code.
	msg := strings.ToLower(err.Error())
	for _, phrase := range transientPhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}

	if status, ok := Status(err); ok {
		if retryableStatus[status] {
			return true
		}
		if permanentStatus[status] {
			return false
		}
	}

	return false
}

// Status extracts an HTTP status from err, if one is attached.
func Status(err error) (int, bool) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status, true
	}
	return 0, false
}

var statusRe = regexp.MustCompile(`\b([1-5]\d{2})\b`)

// FromMessage rebuilds an error from a stored message, recovering an embedded
// 3-digit HTTP status when present. Used by the queue to classify failures
// that crossed a string boundary.
func FromMessage(msg string) error {
	if m := statusRe.FindStringSubmatch(msg); m != nil {
		status, _ := strconv.Atoi(m[1])
		return &HTTPError{Status: status, Body: msg}
	}
	return errors.New(msg)
}
