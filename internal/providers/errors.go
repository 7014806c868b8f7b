package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrExhausted is returned when every candidate of a call has failed.
	ErrExhausted = errors.New("all provider candidates exhausted")

	// ErrEmptyPayload marks a 2xx response without usable content.
	ErrEmptyPayload = errors.New("empty provider payload")
)

// StatusError is a non-2xx provider response.
type StatusError struct {
	Provider   string
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s error (status %d)", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// Outcome classifies one attempt against a candidate.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	// OutcomeTransient is capacity exhaustion (429/503): back off and rotate.
	OutcomeTransient Outcome = "transient"
	// OutcomeFailed is any other failure, including malformed output.
	OutcomeFailed Outcome = "failed"
)

// Classify maps an attempt error to an Outcome.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	var se *StatusError
	if errors.As(err, &se) {
		switch se.StatusCode {
		case http.StatusTooManyRequests, http.StatusServiceUnavailable:
			return OutcomeTransient
		}
	}
	return OutcomeFailed
}

// Attempt records one candidate tried by the fallback client.
type Attempt struct {
	Kind     Kind          `json:"kind"`
	Provider string        `json:"provider"`
	Model    string        `json:"model"`
	KeyLabel string        `json:"key"`
	Outcome  Outcome       `json:"outcome"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// ExhaustedError is the single terminal error of a call whose candidates all failed.
type ExhaustedError struct {
	Kind     Kind
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s call failed after %d candidates", e.Kind, len(e.Attempts))
	if n := len(e.Attempts); n > 0 && e.Attempts[n-1].Err != nil {
		fmt.Fprintf(&b, ": last error: %v", e.Attempts[n-1].Err)
	}
	return b.String()
}

func (e *ExhaustedError) Unwrap() error { return ErrExhausted }

// IsExhausted returns the ExhaustedError in err's chain, if any.
func IsExhausted(err error) (*ExhaustedError, bool) {
	var ee *ExhaustedError
	if errors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}

// isNetworkError reports errors worth retrying against the same candidate.
func isNetworkError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// parseRetryAfter accepts either delay-seconds or an HTTP date.
func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
