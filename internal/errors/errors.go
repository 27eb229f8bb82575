package errors

import (
	"errors"
	"fmt"
	"strings"
)

// UserError represents an error that should be shown to the user with helpful context
type UserError struct {
	Message    string
	Suggestion string
	Details    string
	Err        error
}

func (e UserError) Error() string {
	var parts []string

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}

	if e.Suggestion != "" {
		parts = append(parts, "\n  Try: "+e.Suggestion)
	}

	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error with helpful context
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  " + e.Suggestion
	}

	return msg
}

// ValidationError reports a missing or invalid key configuration field.
// It is always returned before any key generation or store call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid lifecycle event: " + e.Message
	}
	return fmt.Sprintf("invalid lifecycle event: %s: %s", e.Field, e.Message)
}

// GenerationError reports a failure of the external key tool, either a
// non-zero exit or output that could not be interpreted.
type GenerationError struct {
	Op     string // "generate", "export-secret", "export-public", "import"
	Stderr string // already redacted
	Err    error
}

func (e *GenerationError) Error() string {
	msg := fmt.Sprintf("key tool %s failed", e.Op)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += " (" + s + ")"
	}
	return msg
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// StoreError reports a failed secret store call.
type StoreError struct {
	Op       string // "create", "update", "get"
	Location string
	Err      error
}

func (e *StoreError) Error() string {
	if e.Location == "" {
		return fmt.Sprintf("secret store %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("secret store %s of %s failed: %v", e.Op, e.Location, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// CleanupWarning reports that the legacy parameter deletion failed after the
// metadata update already succeeded. The secret store holds the new
// metadata; only the migration cleanup is outstanding.
type CleanupWarning struct {
	Parameter string
	Retryable bool
	Err       error
}

func (e *CleanupWarning) Error() string {
	msg := fmt.Sprintf("metadata updated but legacy parameter %q could not be deleted: %v", e.Parameter, e.Err)
	if e.Retryable {
		msg += " (transient, safe to retry)"
	}
	return msg
}

func (e *CleanupWarning) Unwrap() error {
	return e.Err
}

// NewCleanupWarning wraps a parameter deletion failure, classifying it as
// transient or not.
func NewCleanupWarning(parameter string, err error) *CleanupWarning {
	return &CleanupWarning{
		Parameter: parameter,
		Retryable: IsRetryable(err),
		Err:       err,
	}
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"timeout",
		"deadline exceeded",
		"temporary failure",
		"connection reset",
		"broken pipe",
		"rate limit",
		"throttling",
		"too many requests",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// SimplifyError turns lifecycle errors into messages suitable for the CLI.
func SimplifyError(err error) error {
	if err == nil {
		return nil
	}

	var validation *ValidationError
	if errors.As(err, &validation) {
		return UserError{
			Message:    validation.Error(),
			Suggestion: "Check the ResourceProperties of the event against the required fields",
			Err:        err,
		}
	}

	var generation *GenerationError
	if errors.As(err, &generation) {
		suggestion := "Check that gpg is installed and supports unattended key generation"
		if strings.Contains(generation.Stderr, "not found") || strings.Contains(err.Error(), "executable file not found") {
			suggestion = "Install GnuPG (apt install gnupg, brew install gnupg) or set keytool.binary"
		}
		return UserError{
			Message:    generation.Error(),
			Suggestion: suggestion,
			Err:        err,
		}
	}

	var store *StoreError
	if errors.As(err, &store) {
		return UserError{
			Message:    store.Error(),
			Suggestion: getStoreSuggestion(store.Err),
			Err:        err,
		}
	}

	return err
}

// getStoreSuggestion returns helpful suggestions based on the store error text
func getStoreSuggestion(err error) string {
	if err == nil {
		return ""
	}
	errStr := err.Error()

	switch {
	case strings.Contains(errStr, "credentials") || strings.Contains(errStr, "authorization"):
		return "Configure cloud credentials for the secret store (AWS_PROFILE, GOOGLE_APPLICATION_CREDENTIALS, az login)"
	case strings.Contains(errStr, "AccessDenied") || strings.Contains(errStr, "PermissionDenied") || strings.Contains(errStr, "Forbidden"):
		return "Check that the caller may create, update and read the secret"
	case strings.Contains(errStr, "ResourceExistsException") || strings.Contains(errStr, "AlreadyExists"):
		return "A secret with this name already exists; choose another SecretName"
	case strings.Contains(errStr, "ResourceNotFoundException") || strings.Contains(errStr, "NotFound"):
		return "Verify the secret location and region"
	case IsRetryable(err):
		return "The secret store is throttling or unreachable. Wait a moment and try again"
	}
	return ""
}
