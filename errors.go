package smallbin

import (
	"errors"
	"fmt"
)

// Error types represent different categories of errors

// ArgumentError reports a missing or blank required argument.
type ArgumentError struct {
	Name    string // The argument that was missing or blank
	Message string // Human-readable error message
}

func (e *ArgumentError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("argument error: %s: %s", e.Name, e.Message)
	}
	return fmt.Sprintf("argument error: %s", e.Message)
}

// NotFoundError reports a lookup for an id or version that is not in the catalog.
type NotFoundError struct {
	ID      string // The entry id that was requested
	Version int    // The version number, if the lookup was by version
	Message string // Human-readable error message
}

func (e *NotFoundError) Error() string {
	if e.Version > 0 {
		return fmt.Sprintf("not found: entry %s version %d: %s", e.ID, e.Version, e.Message)
	}
	if e.ID != "" {
		return fmt.Sprintf("not found: entry %s: %s", e.ID, e.Message)
	}
	return fmt.Sprintf("not found: %s", e.Message)
}

// ValidationError reports a value that failed validation.
type ValidationError struct {
	Field   string // The field or parameter that failed validation
	Value   any    // The invalid value
	Message string // Human-readable error message
	Err     error  // Underlying error, if any
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// EncryptionError reports an encryption or decryption failure. A wrong
// password surfaces as a decryption failure of this type.
type EncryptionError struct {
	Operation string // "encrypt" or "decrypt"
	Message   string // Human-readable error message
	Err       error  // Underlying error
}

func (e *EncryptionError) Error() string {
	return fmt.Sprintf("%s error: %s", e.Operation, e.Message)
}

func (e *EncryptionError) Unwrap() error {
	return e.Err
}

// CorruptionError reports damaged stored data: a truncated database file,
// an unparseable catalog, a checksum mismatch, a corrupt compressed
// stream, or a duplicate whose original is gone.
type CorruptionError struct {
	Path    string // Database file path, if applicable
	ID      string // Entry id, if applicable
	Message string // Human-readable error message
	Err     error  // Underlying error
}

func (e *CorruptionError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("corruption error: entry %s: %s", e.ID, e.Message)
	}
	if e.Path != "" {
		return fmt.Sprintf("corruption error: %s: %s", e.Path, e.Message)
	}
	return fmt.Sprintf("corruption error: %s", e.Message)
}

func (e *CorruptionError) Unwrap() error {
	return e.Err
}

// StateError reports an operation that is not valid in the current state:
// a closed handle, versioning a version, verifying an entry without a
// stored checksum, or an invalid database state during save.
type StateError struct {
	Operation string // The operation that was attempted
	Message   string // Human-readable error message
}

func (e *StateError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("state error: %s: %s", e.Operation, e.Message)
	}
	return fmt.Sprintf("state error: %s", e.Message)
}

// OperationError reports a failed catalog operation. When a failed save
// is followed by a failed backup restore, RestoreErr carries the second
// failure alongside the first.
type OperationError struct {
	Operation  string // The operation that failed
	Message    string // Human-readable error message
	Err        error  // Underlying error
	RestoreErr error  // Backup restore failure, if the restore also failed
}

func (e *OperationError) Error() string {
	if e.RestoreErr != nil {
		return fmt.Sprintf("operation error: %s: %s (backup restore also failed: %v)", e.Operation, e.Message, e.RestoreErr)
	}
	if e.Operation != "" {
		return fmt.Sprintf("operation error: %s: %s", e.Operation, e.Message)
	}
	return fmt.Sprintf("operation error: %s", e.Message)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// Common sentinel errors
var (
	ErrClosed          = errors.New("database is closed")
	ErrEmptyPlaintext  = errors.New("cannot encrypt empty data")
	ErrInvalidPadding  = errors.New("invalid padding - wrong password or corrupted data")
	ErrInvalidKey      = errors.New("invalid encryption key")
	ErrMissingChecksum = errors.New("entry has no stored checksum")
)

// Helper functions for creating structured errors

// NewArgumentError creates a new argument error
func NewArgumentError(name, message string) error {
	return &ArgumentError{
		Name:    name,
		Message: message,
	}
}

// NewNotFoundError creates a new not-found error for an entry id
func NewNotFoundError(id string) error {
	return &NotFoundError{
		ID:      id,
		Message: "no such entry",
	}
}

// NewValidationError creates a new validation error
func NewValidationError(field string, value any, message string) error {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// NewEncryptionError creates a new encryption error
func NewEncryptionError(operation string, err error) error {
	return &EncryptionError{
		Operation: operation,
		Message:   err.Error(),
		Err:       err,
	}
}

// NewCorruptionError creates a new corruption error
func NewCorruptionError(path, message string) error {
	return &CorruptionError{
		Path:    path,
		Message: message,
	}
}

// NewStateError creates a new state error
func NewStateError(operation, message string) error {
	return &StateError{
		Operation: operation,
		Message:   message,
	}
}

// NewOperationError creates a new operation error
func NewOperationError(operation string, err error) error {
	return &OperationError{
		Operation: operation,
		Message:   err.Error(),
		Err:       err,
	}
}

// Error checking helpers

// IsArgumentError checks if an error is an argument error
func IsArgumentError(err error) bool {
	var ae *ArgumentError
	return errors.As(err, &ae)
}

// IsNotFoundError checks if an error is a not-found error
func IsNotFoundError(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsEncryptionError checks if an error is an encryption error
func IsEncryptionError(err error) bool {
	var ee *EncryptionError
	return errors.As(err, &ee)
}

// IsCorruptionError checks if an error is a corruption error
func IsCorruptionError(err error) bool {
	var ce *CorruptionError
	return errors.As(err, &ce)
}

// IsStateError checks if an error is a state error
func IsStateError(err error) bool {
	var se *StateError
	return errors.As(err, &se)
}

// IsOperationError checks if an error is an operation error
func IsOperationError(err error) bool {
	var oe *OperationError
	return errors.As(err, &oe)
}
