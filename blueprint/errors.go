package blueprint

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Reason is a machine-readable code carried by NeedsInputError.
type Reason string

const (
	ReasonScaleAmbiguous        Reason = "scale_ambiguous"
	ReasonScaleUnconfirmed      Reason = "scale_unconfirmed"
	ReasonQualityTooLow         Reason = "quality_too_low"
	ReasonRoomsTooSmall         Reason = "average_room_area_too_small"
	ReasonTotalAreaOutOfBounds  Reason = "total_area_out_of_bounds"
	ReasonTooManyRooms          Reason = "room_count_exceeded"
	ReasonPageScaleInconsistent Reason = "page_scale_inconsistent"
	ReasonFilterCollapsed       Reason = "filter_collapsed"
	ReasonClimateUnresolved     Reason = "climate_unresolved"
	ReasonInvalidInput          Reason = "invalid_input"
)

// NeedsInputError means the job cannot proceed safely without corrected
// input or an explicit override. It is never retried.
type NeedsInputError struct {
	Reason         Reason         `json:"reason"`
	Message        string         `json:"message"`
	Recommendation string         `json:"recommendation"`
	Details        map[string]any `json:"details,omitempty"`
}

func (e *NeedsInputError) Error() string {
	return fmt.Sprintf("needs input (%s): %s", e.Reason, e.Message)
}

// NeedsInput builds a NeedsInputError.
func NeedsInput(reason Reason, recommendation, format string, args ...any) *NeedsInputError {
	return &NeedsInputError{
		Reason:         reason,
		Message:        fmt.Sprintf(format, args...),
		Recommendation: recommendation,
	}
}

// With attaches a detail value and returns the receiver.
func (e *NeedsInputError) With(key string, v any) *NeedsInputError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = v
	return e
}

// Degradation records a stage that produced a partial or low-confidence
// result. The job continues; the degradation lowers confidence and is
// reported as a warning.
type Degradation struct {
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
}

func (d Degradation) String() string { return d.Stage + ": " + d.Reason }

// ExternalServiceError wraps a failed call to the vision model or the
// climate service after retries were exhausted.
type ExternalServiceError struct {
	Service  string
	Attempts int
	Cause    error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("external service %s failed after %d attempt(s): %v", e.Service, e.Attempts, e.Cause)
}

func (e *ExternalServiceError) Unwrap() error { return e.Cause }

// FatalParsingError means no room strategy produced a usable structure.
type FatalParsingError struct {
	Attempts map[string]string
}

func (e *FatalParsingError) Error() string {
	var parts []string
	for _, name := range sortedKeys(e.Attempts) {
		parts = append(parts, name+": "+e.Attempts[name])
	}
	return "document could not be parsed, re-submit a clearer PDF (" + strings.Join(parts, "; ") + ")"
}

// StageTimeoutError is returned when a stage exceeds its time limit and has
// no fallback.
type StageTimeoutError struct {
	Stage string
	Limit time.Duration
}

func (e *StageTimeoutError) Error() string {
	return fmt.Sprintf("stage %s exceeded %s", e.Stage, e.Limit)
}

// ErrCancelled is returned when a job is cancelled at a stage boundary.
var ErrCancelled = errors.New("job cancelled")

// Error kinds reported in job status.
const (
	KindNeedsInput      = "needs_input"
	KindExternalService = "external_service"
	KindFatalParsing    = "fatal_parsing"
	KindTimeout         = "timeout"
	KindCancelled       = "cancelled"
	KindInternal        = "internal"
)

// ErrorKind classifies err into one of the Kind constants.
func ErrorKind(err error) string {
	var ni *NeedsInputError
	var es *ExternalServiceError
	var fp *FatalParsingError
	var st *StageTimeoutError
	switch {
	case errors.As(err, &ni):
		return KindNeedsInput
	case errors.As(err, &fp):
		return KindFatalParsing
	case errors.As(err, &st):
		return KindTimeout
	case errors.As(err, &es):
		return KindExternalService
	case errors.Is(err, ErrCancelled):
		return KindCancelled
	}
	return KindInternal
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
