package errors

import (
	"errors"
	"fmt"
)

// Common application errors
var (
	// Queue errors
	ErrDuplicateInFlight = errors.New("retrain job already in flight for this task and network")
	ErrJobNotFound       = errors.New("retrain job not found")
	ErrJobNotClaimable   = errors.New("retrain job is not claimable")

	// Registry errors
	ErrModelNotFound      = errors.New("model version not found")
	ErrModelAlreadyExists = errors.New("model version already registered")
	ErrModelNotShadow     = errors.New("model version is not in shadow status")

	// Active state errors
	ErrStateNotFound  = errors.New("active model state not found for horizon")
	ErrStateConflict  = errors.New("active model state changed since it was read")
	ErrNothingToRoll  = errors.New("no previous model version to roll back to")
	ErrInvalidHorizon = errors.New("invalid horizon")

	// Guard errors
	ErrGuardBlocked    = errors.New("blocked by rollback guard")
	ErrKillSwitchOn    = errors.New("kill switch is enabled")
	ErrCooldownActive  = errors.New("cooldown period has not elapsed")
	ErrDriftTooHigh    = errors.New("drift severity above configured ceiling")
	ErrTooFewSamples   = errors.New("minimum sample count not available")
	ErrSchemaIntegrity = errors.New("dataset schema integrity check failed")

	// Training errors
	ErrTrainingFailed  = errors.New("model training failed")
	ErrTrainingTimeout = errors.New("model training timed out")
	ErrDatasetMissing  = errors.New("no dataset reference available")

	// Comparison errors
	ErrSampleMismatch = errors.New("active and shadow predictions cover different rows")
	ErrEmptySample    = errors.New("held-out sample is empty")

	// Configuration errors
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrMissingConfiguration = errors.New("missing configuration")

	// Storage errors
	ErrStorageConnectionFailed = errors.New("storage connection failed")
	ErrStorageWriteFailed      = errors.New("storage write failed")
	ErrStorageReadFailed       = errors.New("storage read failed")
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeQueue         ErrorType = "queue"
	ErrorTypeRegistry      ErrorType = "registry"
	ErrorTypeState         ErrorType = "state"
	ErrorTypeGuard         ErrorType = "guard"
	ErrorTypeTraining      ErrorType = "training"
	ErrorTypeStorage       ErrorType = "storage"
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeInternal      ErrorType = "internal"
)

// AppError represents an application-specific error with additional context
type AppError struct {
	Type       ErrorType              `json:"type"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    string                 `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	Context    map[string]interface{} `json:"context,omitempty"`
	Retryable  bool                   `json:"retryable"`
	HTTPStatus int                    `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// IsCode reports whether err carries the given application error code
// anywhere in its chain.
func IsCode(err error, code string) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Code == code
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:       errType,
		Code:       code,
		Message:    message,
		Retryable:  false,
		HTTPStatus: getDefaultHTTPStatus(errType),
	}
}

// WrapError wraps an existing error with application context
func WrapError(err error, errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:       errType,
		Code:       code,
		Message:    message,
		Cause:      err,
		Retryable:  isRetryable(err),
		HTTPStatus: getDefaultHTTPStatus(errType),
	}
}

// NewValidationError creates a validation error
func NewValidationError(code, message string) *AppError {
	return NewAppError(ErrorTypeValidation, code, message)
}

// NewQueueError creates a retrain-queue error
func NewQueueError(code, message string) *AppError {
	return NewAppError(ErrorTypeQueue, code, message)
}

// NewRegistryError creates a model-registry error
func NewRegistryError(code, message string) *AppError {
	return NewAppError(ErrorTypeRegistry, code, message)
}

// NewStateError creates an active-model-state error
func NewStateError(code, message string) *AppError {
	return NewAppError(ErrorTypeState, code, message)
}

// NewGuardError creates a guard error. Guard blocks are expected policy
// outcomes, never retryable.
func NewGuardError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeGuard,
		Code:       code,
		Message:    message,
		Retryable:  false,
		HTTPStatus: 409,
	}
}

// NewTrainingError creates a training-executor error. Training failures
// are transient by default and retried on the next scheduled cycle.
func NewTrainingError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeTraining,
		Code:       code,
		Message:    message,
		Retryable:  true,
		HTTPStatus: 502,
	}
}

// NewStorageError creates a storage error
func NewStorageError(code, message string) *AppError {
	return NewAppError(ErrorTypeStorage, code, message)
}

// NewConfigurationError creates a configuration error
func NewConfigurationError(code, message string) *AppError {
	return NewAppError(ErrorTypeConfiguration, code, message)
}

// NewInternalError creates an internal error
func NewInternalError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       CodeInternalError,
		Message:    message,
		Retryable:  false,
		HTTPStatus: 500,
	}
}

// getDefaultHTTPStatus returns the default HTTP status for an error type
func getDefaultHTTPStatus(errType ErrorType) int {
	switch errType {
	case ErrorTypeValidation:
		return 400
	case ErrorTypeQueue, ErrorTypeState, ErrorTypeGuard:
		return 409
	case ErrorTypeRegistry:
		return 404
	case ErrorTypeTraining:
		return 502
	case ErrorTypeStorage, ErrorTypeConfiguration:
		return 503
	default:
		return 500
	}
}

// isRetryable determines if an error is retryable
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, ErrTrainingFailed):
		return true
	case errors.Is(err, ErrTrainingTimeout):
		return true
	case errors.Is(err, ErrStorageConnectionFailed):
		return true
	case errors.Is(err, ErrStorageWriteFailed):
		return true
	case errors.Is(err, ErrStorageReadFailed):
		return true
	default:
		return false
	}
}

// ErrorResponse represents an error response for APIs
type ErrorResponse struct {
	Error     *AppError `json:"error"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp string    `json:"timestamp"`
	Path      string    `json:"path,omitempty"`
}

// Error codes for different error scenarios
const (
	// Validation error codes
	CodeInvalidInput   = "INVALID_INPUT"
	CodeMissingField   = "MISSING_FIELD"
	CodeInvalidHorizon = "INVALID_HORIZON"
	CodeInvalidTask    = "INVALID_TASK"

	// Queue error codes
	CodeDuplicateInFlight = "DUPLICATE_IN_FLIGHT"
	CodeJobNotFound       = "JOB_NOT_FOUND"
	CodeJobNotClaimable   = "JOB_NOT_CLAIMABLE"

	// Registry error codes
	CodeModelNotFound      = "MODEL_NOT_FOUND"
	CodeModelAlreadyExists = "MODEL_ALREADY_EXISTS"
	CodeModelNotShadow     = "MODEL_NOT_SHADOW"

	// State error codes
	CodeStateNotFound = "STATE_NOT_FOUND"
	CodeStateConflict = "STATE_CONFLICT"
	CodeNothingToRoll = "NOTHING_TO_ROLL_BACK"

	// Guard error codes
	CodeGuardBlocked = "GUARD_BLOCKED"
	CodeKillSwitchOn = "KILL_SWITCH_ON"

	// Training error codes
	CodeTrainingFailed  = "TRAINING_FAILED"
	CodeTrainingTimeout = "TRAINING_TIMEOUT"
	CodeDatasetMissing  = "DATASET_MISSING"

	// Storage error codes
	CodeStorageError     = "STORAGE_ERROR"
	CodeConnectionFailed = "CONNECTION_FAILED"
	CodeWriteFailed      = "WRITE_FAILED"
	CodeReadFailed       = "READ_FAILED"

	// Internal error codes
	CodeInternalError = "INTERNAL_ERROR"
)
