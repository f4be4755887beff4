package epa

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrRetriesExhausted marks a site fetch that consumed its full attempt
	// budget without reaching a terminal response.
	ErrRetriesExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled while
	// waiting for rate limiter admission or backoff.
	ErrContextCancelled = errors.New("context cancelled")
)

// Outcome classifies the terminal state of a single-site fetch. Every fetch
// ends in exactly one of these; no raw error crosses the worker pool boundary.
type Outcome string

const (
	// OutcomeSuccess means the gateway returned a decodable payload.
	OutcomeSuccess Outcome = "success"

	// OutcomeNotFound means the gateway answered 404: the site exists in the
	// listing but has no parameter data. This is data, not an error.
	OutcomeNotFound Outcome = "not_found"

	// OutcomeExhausted means the fetch gave up: the retry budget ran out on
	// repeated 429s, or the gateway returned an unexpected status.
	OutcomeExhausted Outcome = "exhausted"
)

// Result is the terminal outcome of fetching one site's parameters. It is
// created once by the worker task that produced it and never mutated.
type Result struct {
	SiteID  string
	Outcome Outcome
	Payload ParametersPayload
	Err     error
}

// Usable reports whether the result contributes a payload downstream.
// NotFound counts: it is an empty payload, not a failure.
func (r Result) Usable() bool {
	return r.Outcome == OutcomeSuccess || r.Outcome == OutcomeNotFound
}

// APIError carries the HTTP status detail of an unexpected gateway response.
type APIError struct {
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("EPA gateway error (status %d): %s: %v",
			e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("EPA gateway error (status %d): %s",
		e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}
