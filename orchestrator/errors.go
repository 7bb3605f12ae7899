package orchestrator

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/maastricht-university/audioscore/audio"
	"github.com/maastricht-university/audioscore/metrics"
)

// Failure kinds. Input-stage kinds fail a single request; UnknownMetricError
// fails a whole call; the rest are recorded per (request, metric) pair.
var (
	ErrInputNotFound       = errors.New("input not found")
	ErrUnsupportedFormat   = audio.ErrUnsupportedFormat
	ErrManifestFormat      = errors.New("malformed manifest")
	ErrConstraintViolation = errors.New("constraint violation")
	ErrScoring             = errors.New("scoring failed")
	ErrCanceled            = errors.New("canceled")
)

// UnknownMetricError is returned when a call names an unregistered metric.
type UnknownMetricError = metrics.UnknownMetricError

var kinds = []struct {
	err  error
	name string
}{
	{ErrInputNotFound, "input_not_found"},
	{ErrUnsupportedFormat, "unsupported_format"},
	{ErrManifestFormat, "manifest_format"},
	{ErrConstraintViolation, "constraint_violation"},
	{ErrCanceled, "canceled"},
	{ErrScoring, "scoring_failed"},
}

// RequestError marks one (request, metric) pair that could not be scored.
// Err is one of the failure kinds above.
type RequestError struct {
	ID     string
	Metric string
	Reason string
	Err    error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s [%s]: %s: %s", e.ID, e.Metric, e.Kind(), e.Reason)
}

func (e *RequestError) Unwrap() error { return e.Err }

// Kind returns the snake_case name of the failure kind.
func (e *RequestError) Kind() string {
	for _, k := range kinds {
		if errors.Is(e.Err, k.err) {
			return k.name
		}
	}
	return "request_error"
}

type requestErrorJSON struct {
	Kind   string `json:"kind" yaml:"kind"`
	Reason string `json:"reason" yaml:"reason"`
}

func (e *RequestError) MarshalJSON() ([]byte, error) {
	return json.Marshal(requestErrorJSON{Kind: e.Kind(), Reason: e.Reason})
}

func (e *RequestError) MarshalYAML() (any, error) {
	return requestErrorJSON{Kind: e.Kind(), Reason: e.Reason}, nil
}

// failure builds a RequestError for req and metric. When cause already
// wraps one of the failure kinds it is kept; otherwise kind is used.
func failure(req *Request, metric string, kind, cause error) *RequestError {
	err := kind
	if cause != nil {
		for _, k := range kinds {
			if errors.Is(cause, k.err) {
				err = k.err
				break
			}
		}
	}
	reason := kind.Error()
	if cause != nil {
		reason = cause.Error()
	}
	return &RequestError{ID: req.ID, Metric: metric, Reason: reason, Err: err}
}
