package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType defines distinct categories for errors originating from HLSgrab components.
type ErrorType string

const (
	// InvalidInputURL is returned when the user-supplied URL cannot be normalized into an absolute http(s) URL.
	// No network activity happens before this error is raised.
	InvalidInputURL ErrorType = "invalid_input_url"
	// PlaylistFetchFailed covers non-2xx responses, transport failures and non UTF-8 bodies for playlist requests.
	PlaylistFetchFailed ErrorType = "playlist_fetch_failed"
	// NoPlayableVariant means every variant candidate of a master playlist failed to resolve.
	NoPlayableVariant ErrorType = "no_playable_variant"
	// RemuxFailed is a terminal failure of the primary remux path.
	RemuxFailed ErrorType = "remux_failed"
	// NoSupportedOutputType means the remux service offered no usable container.
	NoSupportedOutputType ErrorType = "no_supported_output_type"
	// SegmentFetchFailed means one fallback segment download failed. Index and Status are set.
	SegmentFetchFailed ErrorType = "segment_fetch_failed"
	// EmptyMediaPlaylist means the fallback path found no segments to download.
	EmptyMediaPlaylist ErrorType = "empty_media_playlist"
	// Cancelled is a user-initiated cancellation observed at a checkpoint.
	Cancelled ErrorType = "cancelled"
	// ValidationError represents errors caused by invalid configuration.
	ValidationError ErrorType = "validation_error"
	// DiskSpaceError indicates the destination volume cannot hold the merged output.
	DiskSpaceError ErrorType = "disk_space_error"
	// SystemError represents underlying system issues, such as file I/O errors or command execution problems.
	SystemError ErrorType = "system_error"
)

// StructuredError represents a detailed error originating from HLSgrab operations.
// It includes a type, message, optional details, timestamp, and a specific error code.
// It implements the standard Go `error` interface.
type StructuredError struct {
	// Type categorizes the error (e.g., SegmentFetchFailed, Cancelled).
	Type ErrorType `json:"type"`
	// Message provides a concise, human-readable description of the error.
	Message string `json:"message"`
	// Details offers additional context or the underlying error message, if available.
	Details string `json:"details,omitempty"`
	// Timestamp marks when the error occurred in RFC3339 format.
	Timestamp string `json:"timestamp"`
	// Code provides a specific integer code, see error_codes.go.
	Code int `json:"code"`
	// Index is the segment index for SegmentFetchFailed (-1 for the initialization segment).
	Index int `json:"index,omitempty"`
	// Status is the HTTP status code for fetch failures, 0 when the request never got a response.
	Status int `json:"status,omitempty"`

	cause error
}

// Error implements the standard `error` interface for StructuredError.
// It returns a formatted string including the error type, message, and details.
func (e *StructuredError) Error() string {
	if e.Details == "" {
		return fmt.Sprintf("[%s] %s", e.Type, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Message, e.Details)
}

// Unwrap returns the underlying cause, if any.
func (e *StructuredError) Unwrap() error {
	return e.cause
}

// Is reports whether target is a StructuredError of the same Type.
// This lets callers write errors.Is(err, errors.New(errors.Cancelled, "", "", 0)) or use IsType.
func (e *StructuredError) Is(target error) bool {
	t, ok := target.(*StructuredError)
	if !ok {
		return false
	}
	return t.Type == e.Type
}

// JSON returns the StructuredError serialized as a JSON string.
// Returns an empty string and an error if marshalling fails.
func (e *StructuredError) JSON() (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// WithStatus sets the HTTP status and returns the same error for chaining.
func (e *StructuredError) WithStatus(status int) *StructuredError {
	e.Status = status
	return e
}

// WithIndex sets the segment index and returns the same error for chaining.
func (e *StructuredError) WithIndex(index int) *StructuredError {
	e.Index = index
	return e
}

// New creates a new StructuredError instance.
// It automatically sets the Timestamp to the current time.
func New(errorType ErrorType, message, details string, code int) *StructuredError {
	return &StructuredError{
		Type:      errorType,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().Format(time.RFC3339),
		Code:      code,
	}
}

// Wrap creates a new StructuredError, using the message from an existing standard Go error
// as the Details field and keeping it as the unwrap cause.
// If the input error `err` is nil, Details will be empty.
func Wrap(err error, errorType ErrorType, message string, code int) *StructuredError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	se := New(errorType, message, details, code)
	se.cause = err
	return se
}

// NewCancelled returns the standard cancellation error.
func NewCancelled(details string) *StructuredError {
	return New(Cancelled, GetErrorMessage(ErrJobCancelled), details, ErrJobCancelled)
}

// TypeOf returns the ErrorType of the first StructuredError in err's chain, or "" if there is none.
func TypeOf(err error) ErrorType {
	var se *StructuredError
	if stderrors.As(err, &se) {
		return se.Type
	}
	return ""
}

// IsType reports whether err's chain contains a StructuredError of the given type.
func IsType(err error, errorType ErrorType) bool {
	return TypeOf(err) == errorType
}

// As is a passthrough to the standard library so callers importing this package
// under the name errors keep access to it.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// CaptureError creates a StructuredError and returns its JSON form, for
// callers that print machine-readable failures to stdout.
func CaptureError(errorType ErrorType, message, details string, code int) (string, error) {
	return New(errorType, message, details, code).JSON()
}
