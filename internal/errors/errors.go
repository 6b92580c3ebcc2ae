package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// IndexError is the structured error type for shardex.
// It provides rich context for error handling, logging, and user presentation.
type IndexError struct {
	// Code is the unique error code (e.g., "ERR_510_SHARD_OPERATION").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Shard, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *IndexError) Error() string {
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *IndexError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with IndexError sentinels.
func (e *IndexError) Is(target error) bool {
	if t, ok := target.(*IndexError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *IndexError) WithDetail(key, value string) *IndexError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *IndexError) WithSuggestion(suggestion string) *IndexError {
	e.Suggestion = suggestion
	return e
}

// New creates a new IndexError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *IndexError {
	return &IndexError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an IndexError from an existing error.
// The error's message becomes the IndexError message.
func Wrap(code string, err error) *IndexError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Sentinels for errors.Is comparisons. Matching is by code only.
var (
	ErrRouting           = New(ErrCodeRouting, "routing failed", nil)
	ErrNamespace         = New(ErrCodeNamespace, "namespace inconsistency", nil)
	ErrShardOperation    = New(ErrCodeShardOperation, "shard operation failed", nil)
	ErrPartialCommit     = New(ErrCodePartialCommit, "partial commit", nil)
	ErrAggregateClose    = New(ErrCodeAggregateClose, "close failed", nil)
	ErrAlreadyClosed     = New(ErrCodeAlreadyClosed, "already closed", nil)
	ErrLockHeld          = New(ErrCodeLockHeld, "lock held", nil)
	ErrCommitUnavailable = New(ErrCodeCommitUnavailable, "commit unavailable", nil)
	ErrTragic            = New(ErrCodeTragic, "tragic failure", nil)
)

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *IndexError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// IOError creates an I/O-related error.
func IOError(message string, cause error) *IndexError {
	return New(ErrCodeFileNotFound, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *IndexError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *IndexError {
	return New(ErrCodeInternal, message, cause)
}

// RoutingError reports a document batch that maps to no registered shard.
func RoutingError(criteria string) *IndexError {
	return New(ErrCodeRouting, fmt.Sprintf("no shard registered for criteria %q", criteria), nil).
		WithDetail("criteria", criteria)
}

// NamespaceError reports a virtual file name that cannot be resolved, or a
// collision between two owners of the same virtual name.
func NamespaceError(name, reason string) *IndexError {
	return New(ErrCodeNamespace, fmt.Sprintf("%s: %s", reason, name), nil).
		WithDetail("name", name)
}

// ShardError wraps a failure from one shard's engine with the failing criteria.
func ShardError(criteria, op string, cause error) *IndexError {
	return New(ErrCodeShardOperation, fmt.Sprintf("%s failed on shard %q", op, criteria), cause).
		WithDetail("criteria", criteria).
		WithDetail("op", op)
}

// PartialCommitError reports a commit that persisted on some shards before
// another shard failed. Committed shards are not rolled back.
func PartialCommitError(committed []string, failed string, cause error) *IndexError {
	return New(ErrCodePartialCommit,
		fmt.Sprintf("commit failed on shard %q after %d shard(s) committed", failed, len(committed)), cause).
		WithDetail("criteria", failed).
		WithDetail("committed", strings.Join(committed, ","))
}

// AggregateCloseError reports that one or more shards failed to close.
// The cause is the first failure; every shard was still attempted.
func AggregateCloseError(failed []string, first error) *IndexError {
	return New(ErrCodeAggregateClose,
		fmt.Sprintf("close failed on %d shard(s)", len(failed)), first).
		WithDetail("failed", strings.Join(failed, ","))
}

// ClosedError reports use of a closed writer, reader or directory.
func ClosedError(what string) *IndexError {
	return New(ErrCodeAlreadyClosed, what+" is closed", nil)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error chain contains an IndexError with Retryable set.
func IsRetryable(err error) bool {
	var ie *IndexError
	if stderrors.As(err, &ie) {
		return ie.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	var ie *IndexError
	if stderrors.As(err, &ie) {
		return ie.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code of the outermost IndexError.
// Returns empty string if the chain holds no IndexError.
func GetCode(err error) string {
	var ie *IndexError
	if stderrors.As(err, &ie) {
		return ie.Code
	}
	return ""
}

// GetCategory extracts the category of the outermost IndexError.
func GetCategory(err error) Category {
	var ie *IndexError
	if stderrors.As(err, &ie) {
		return ie.Category
	}
	return ""
}

// Criteria returns the shard criteria recorded on the outermost IndexError
// that carries one, or "" when none does.
func Criteria(err error) string {
	for err != nil {
		if ie, ok := err.(*IndexError); ok {
			if c, ok := ie.Details["criteria"]; ok {
				return c
			}
		}
		err = stderrors.Unwrap(err)
	}
	return ""
}
