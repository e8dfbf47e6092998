// Package errors provides typed errors for YubiAge batch operations.
// This enables callers to use errors.Is() and errors.As() for specific error handling.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common error conditions.
// Use errors.Is(err, errors.ErrCancelled) to check for specific errors.
var (
	// Operation errors
	ErrCancelled = errors.New("operation cancelled")
	ErrBusy      = errors.New("a batch is already running")

	// ErrNoPendingFiles is returned when keys are dropped with no files waiting.
	ErrNoPendingFiles = errors.New("no files are waiting for keys")

	// Input validation errors
	ErrNoValidPaths     = errors.New("no valid paths")
	ErrNoValidFiles     = errors.New("no valid files found for encryption")
	ErrMixedInputs      = errors.New("do not mix .age files with other files or folders")
	ErrSingleFileOnly   = errors.New("single file only")
	ErrNoRecipients     = errors.New("no recipients")
	ErrNoIdentities     = errors.New("no identity")
	ErrEmptyKeyMaterial = errors.New("recipient key file is empty or invalid")

	// File errors
	ErrOutputMissing = errors.New("tool returned success, but output file not found")

	// Tool errors
	ErrToolNotFound = errors.New("age executable not found")
)

// ValidationError represents an input validation error.
type ValidationError struct {
	Field   string // Field name that failed validation
	Message string // Human-readable error message
	Err     error  // Optional sentinel for errors.Is
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// Invalid creates a ValidationError whose message comes from a sentinel error.
func Invalid(field string, sentinel error) *ValidationError {
	return &ValidationError{Field: field, Message: sentinel.Error(), Err: sentinel}
}

// FileError represents an error during file operations (archive creation,
// missing output, rename failure).
type FileError struct {
	Op   string // Operation: "archive", "rename", "stat", "write", "create"
	Path string // File path
	Err  error  // Underlying error
}

func (e *FileError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s %s failed", e.Op, e.Path)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// NewFileError creates a new FileError.
func NewFileError(op, path string, err error) *FileError {
	return &FileError{Op: op, Path: path, Err: err}
}

// ToolError reports a non-zero exit of the external encryption tool.
// The message is the tool's stderr verbatim, or a generic exit code message.
type ToolError struct {
	ExitCode int
	Stderr   string
}

func (e *ToolError) Error() string {
	if msg := strings.TrimSpace(e.Stderr); msg != "" {
		return msg
	}
	return fmt.Sprintf("failed, exit code: %d", e.ExitCode)
}

// NewToolError creates a ToolError from an exit code and raw stderr.
func NewToolError(exitCode int, stderr []byte) *ToolError {
	return &ToolError{ExitCode: exitCode, Stderr: strings.ToValidUTF8(string(stderr), "")}
}

// Is checks if target matches any of our sentinel errors.
// This is a convenience function for common error checks.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// IsCancelled checks if the error indicates a cancelled operation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
