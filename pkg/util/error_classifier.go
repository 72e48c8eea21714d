package util

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"
)

// IsRetryableError classifies an error for MQ handlers: retryable errors
// are nacked and redelivered, non-retryable ones are acked (and usually
// parked on the DLQ). Returns (isRetryable, errorType).
func IsRetryableError(err error) (bool, string) {
	if err == nil {
		return false, ""
	}

	errStr := err.Error()

	// Malformed payloads never get better on redelivery.
	if _, ok := err.(*json.SyntaxError); ok {
		return false, "json_decode_error"
	}
	if _, ok := err.(*json.UnmarshalTypeError); ok {
		return false, "json_decode_error"
	}
	if strings.Contains(errStr, "json:") {
		return false, "json_decode_error"
	}

	// Database errors.
	if errors.Is(err, pgx.ErrNoRows) {
		return false, "record_not_found"
	}
	if strings.Contains(errStr, "duplicate key") || strings.Contains(errStr, "UNIQUE constraint") {
		return false, "duplicate_key"
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "timeout") {
		return true, "db_connection_error"
	}

	// Network errors.
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true, "network_timeout"
		}
		return true, "network_error"
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return true, "network_timeout"
		}
		return true, "network_error"
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true, "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return false, "context_canceled"
	}

	// Unknown errors are not retried; redelivering them forever would
	// wedge the queue.
	return false, "unknown_error"
}
