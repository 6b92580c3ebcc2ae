package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
)

// FormatForCLI renders err for a terminal: the message, the shard it
// happened on, the root cause, a hint and the code. Errors that are not
// IndexErrors print as internal errors.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	var ie *IndexError
	if !stderrors.As(err, &ie) {
		ie = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Error: %s\n", ie.Message)
	if c := Criteria(err); c != "" {
		fmt.Fprintf(&sb, "  Shard: %s\n", c)
	}
	if root := rootCause(ie); root != nil && root.Error() != ie.Message {
		fmt.Fprintf(&sb, "  Cause: %s\n", root.Error())
	}
	if ie.Suggestion != "" {
		fmt.Fprintf(&sb, "  Hint: %s\n", ie.Suggestion)
	}
	fmt.Fprintf(&sb, "  Code: %s\n", ie.Code)
	return sb.String()
}

// rootCause follows Unwrap to the innermost error below ie.
func rootCause(ie *IndexError) error {
	err := ie.Cause
	for err != nil {
		next := stderrors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
	return nil
}

// jsonError is the JSON representation of an error.
type jsonError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Category   string            `json:"category"`
	Severity   string            `json:"severity"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	Cause      string            `json:"cause,omitempty"`
	Retryable  bool              `json:"retryable"`
}

// FormatJSON returns a JSON representation of the error.
func FormatJSON(err error) ([]byte, error) {
	if err == nil {
		return json.Marshal(nil)
	}

	var ie *IndexError
	if !stderrors.As(err, &ie) {
		ie = Wrap(ErrCodeInternal, err)
	}

	je := jsonError{
		Code:       ie.Code,
		Message:    ie.Message,
		Category:   string(ie.Category),
		Severity:   string(ie.Severity),
		Details:    ie.Details,
		Suggestion: ie.Suggestion,
		Retryable:  ie.Retryable,
	}
	if ie.Cause != nil {
		je.Cause = ie.Cause.Error()
	}
	return json.Marshal(je)
}

// LogAttrs returns slog attributes for err: always "error", plus the code,
// criteria and retryable flag when the chain holds an IndexError. Details
// other than criteria follow in key order.
func LogAttrs(err error) []slog.Attr {
	if err == nil {
		return nil
	}
	attrs := []slog.Attr{slog.String("error", err.Error())}

	var ie *IndexError
	if !stderrors.As(err, &ie) {
		return attrs
	}
	attrs = append(attrs, slog.String("error_code", ie.Code))
	if c := Criteria(err); c != "" {
		attrs = append(attrs, slog.String("criteria", c))
	}
	if ie.Retryable {
		attrs = append(attrs, slog.Bool("retryable", true))
	}
	for _, k := range slices.Sorted(maps.Keys(ie.Details)) {
		if k == "criteria" {
			continue
		}
		attrs = append(attrs, slog.String(k, ie.Details[k]))
	}
	return attrs
}
