// Package errors provides structured error handling for shardex.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (storage, locks, commit files)
//   - 4XX: Validation errors (routing, namespace)
//   - 5XX: Internal errors; 51X are shard fan-out failures
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates storage and lock errors.
	CategoryIO Category = "IO"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryShard indicates a failure reported by one or more shards.
	CategoryShard Category = "SHARD"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// IO errors (200-299)
	ErrCodeFileNotFound      = "ERR_201_FILE_NOT_FOUND"
	ErrCodeFilePermission    = "ERR_202_FILE_PERMISSION"
	ErrCodeCorruptIndex      = "ERR_205_CORRUPT_INDEX"
	ErrCodeFileCorrupt       = "ERR_206_FILE_CORRUPT"
	ErrCodeLockHeld          = "ERR_207_LOCK_HELD"
	ErrCodeCommitUnavailable = "ERR_208_COMMIT_UNAVAILABLE"

	// Validation errors (400-499)
	ErrCodeInvalidInput = "ERR_401_INVALID_INPUT"
	ErrCodeRouting      = "ERR_410_ROUTING"
	ErrCodeNamespace    = "ERR_411_NAMESPACE"

	// Internal errors (500-599)
	ErrCodeInternal       = "ERR_501_INTERNAL"
	ErrCodeShardOperation = "ERR_510_SHARD_OPERATION"
	ErrCodePartialCommit  = "ERR_511_PARTIAL_COMMIT"
	ErrCodeAggregateClose = "ERR_512_AGGREGATE_CLOSE"
	ErrCodeAlreadyClosed  = "ERR_513_ALREADY_CLOSED"
	ErrCodeTragic         = "ERR_514_TRAGIC"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "101" from "ERR_101_CONFIG_NOT_FOUND")
	numStr := code[4:7]

	switch numStr[0] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '4':
		return CategoryValidation
	case '5':
		if numStr[1] == '1' {
			return CategoryShard
		}
		return CategoryInternal
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptIndex, ErrCodeTragic:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
// A held write lock is the only condition worth waiting out.
func isRetryableCode(code string) bool {
	return code == ErrCodeLockHeld
}
