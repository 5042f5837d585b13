// Package apierr defines the error taxonomy shared across the execution
// substrate. Every error surfaced to a caller carries a stable Code so
// operators and callers can branch on it without string-matching
// messages, grounded on the sentinel-error + fmt.Errorf("%w: ...")
// convention used throughout the teacher's domain/services package.
package apierr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for retry/propagation decisions (spec §7).
type Kind string

const (
	KindValidation       Kind = "validation"        // never retried
	KindPolicyViolation  Kind = "policy_violation"   // never retried
	KindRateLimited      Kind = "rate_limited"       // retried by caller
	KindNotFound         Kind = "not_found"          // surfaced
	KindDecryptionFailed Kind = "decryption_failed"  // never retried
	KindExecutorTransient Kind = "executor_transient" // retried by scheduler
	KindExecutorPermanent Kind = "executor_permanent" // recorded, not retried
	KindTimeout          Kind = "timeout"            // execution-level fatal
	KindCancelled        Kind = "cancelled"          // execution-level fatal
	KindInternal         Kind = "internal"           // operator alert
)

// Stable codes referenced throughout spec §7.
const (
	CodePolicyNodeBlocked       = "POLICY_NODE_BLOCKED"
	CodePolicyModelBlocked      = "POLICY_MODEL_BLOCKED"
	CodePolicyCostExceeded      = "POLICY_COST_EXCEEDED"
	CodePolicyTokenCapExceeded  = "POLICY_TOKEN_CAP_EXCEEDED"
	CodeTypeMismatch            = "TYPE_MISMATCH"
	CodeMissingRequiredField    = "MISSING_REQUIRED_FIELD"
	CodeUnknownSourcePath       = "UNKNOWN_SOURCE_PATH"
	CodeInvalidEdge             = "INVALID_EDGE"
	CodeNoEntry                 = "NO_ENTRY"
	CodeCycleDetected           = "CYCLE_DETECTED"
	CodeCredentialNotFound      = "CREDENTIAL_NOT_FOUND"
	CodeDecryptionFailed        = "DECRYPTION_FAILED"
	CodeWorkflowInactive        = "WORKFLOW_INACTIVE"
	CodeContractInvalid         = "CONTRACT_INVALID"
	CodeRateLimited             = "RATE_LIMITED"
	CodeInsufficientCredit      = "INSUFFICIENT_CREDIT"
	CodeFixtureMissing          = "FIXTURE_MISSING"
)

// Error wraps an underlying cause with a Kind and stable Code. It is
// errors.Is/As-compatible via Unwrap.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Err.Error())
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an Error.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap constructs an Error around an existing cause.
func Wrap(kind Kind, code string, err error) *Error {
	return &Error{Kind: kind, Code: code, Err: err}
}

// Retryable reports whether the scheduler should retry an error produced
// by a NodeExecutor, per spec §7's propagation policy.
func Retryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindExecutorTransient || e.Kind == KindRateLimited
	}
	return false
}

// KindOf extracts the Kind carried by err, or KindInternal if err does
// not wrap an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
