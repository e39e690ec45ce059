package shared

import (
	"errors"
	"fmt"
)

// Kind classifies a posting failure.
type Kind string

const (
	// KindValidation marks malformed input rejected before any write.
	KindValidation Kind = "VALIDATION"
	// KindBusiness marks a domain rule violation.
	KindBusiness Kind = "BUSINESS"
	// KindIntegrity marks a broken ledger invariant. Always rolled back and alerted.
	KindIntegrity Kind = "INTEGRITY"
)

// Error codes surfaced in posting results.
const (
	CodeInvalidRequest        = "INVALID_REQUEST"
	CodeUnknownPostingType    = "UNKNOWN_POSTING_TYPE"
	CodeInvalidLine           = "INVALID_LINE"
	CodeNotFound              = "NOT_FOUND"
	CodeAlreadyReversed       = "ALREADY_REVERSED"
	CodeCannotReverseReversal = "CANNOT_REVERSE_REVERSAL"
	CodeControlAccount        = "CONTROL_ACCOUNT"
	CodeAccountNotPostable    = "ACCOUNT_NOT_POSTABLE"
	CodeAccountNotFound       = "ACCOUNT_NOT_FOUND"
	CodeCurrencyMismatch      = "CURRENCY_MISMATCH"
	CodeMappingNotFound       = "MAPPING_NOT_FOUND"
	CodeDoubleEntryImbalance  = "DOUBLE_ENTRY_IMBALANCE"
	CodeIdempotencyKeyReused  = "IDEMPOTENCY_KEY_REUSED"
	CodeAmountPrecision       = "AMOUNT_PRECISION"
	CodeInternal              = "INTERNAL_ERROR"
)

// Error is the typed failure returned by the posting engine and its strategies.
type Error struct {
	Kind    Kind
	Code    string
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := "accounting: " + e.Message
	if e.Field != "" {
		msg = fmt.Sprintf("accounting: %s: %s", e.Field, e.Message)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by code, so sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// Validation builds a KindValidation error for the offending field.
func Validation(field, code, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Field: field, Message: message}
}

// Business builds a KindBusiness error.
func Business(code, message string) *Error {
	return &Error{Kind: KindBusiness, Code: code, Message: message}
}

// Integrity builds a KindIntegrity error.
func Integrity(code, message string) *Error {
	return &Error{Kind: KindIntegrity, Code: code, Message: message}
}

// Wrap attaches a cause to a copy of e.
func (e *Error) Wrap(err error) *Error {
	cp := *e
	cp.Err = err
	return &cp
}

// KindOf reports the Kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// CodeOf reports the code carried by err, CodeInternal for foreign errors.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

var (
	// ErrUnknownPostingType indicates no strategy is registered for the type.
	ErrUnknownPostingType = Validation("postingType", CodeUnknownPostingType, "unknown posting type")
	// ErrJournalNotFound indicates missing entry.
	ErrJournalNotFound = Business(CodeNotFound, "journal entry not found")
	// ErrAlreadyReversed indicates the original entry was reversed before.
	ErrAlreadyReversed = Business(CodeAlreadyReversed, "journal entry already reversed")
	// ErrCannotReverseReversal indicates an attempt to reverse a reversal entry.
	ErrCannotReverseReversal = Business(CodeCannotReverseReversal, "reversal entries cannot be reversed")
	// ErrControlAccount indicates a posting against a rollup-only account.
	ErrControlAccount = Business(CodeControlAccount, "control accounts do not accept postings")
	// ErrAccountNotPostable indicates the resolver reported the account as not postable.
	ErrAccountNotPostable = Business(CodeAccountNotPostable, "account does not allow posting")
	// ErrAccountNotFound indicates the GL code is not in the chart of accounts.
	ErrAccountNotFound = Business(CodeAccountNotFound, "gl account not found")
	// ErrCurrencyMismatch indicates a line currency differs from its account or the entry.
	ErrCurrencyMismatch = Business(CodeCurrencyMismatch, "currency does not match account")
	// ErrMappingNotFound indicates account mapping missing.
	ErrMappingNotFound = Business(CodeMappingNotFound, "account mapping not found")
	// ErrIdempotencyKeyReused indicates the key was committed by a different operation.
	ErrIdempotencyKeyReused = Validation("idempotencyKey", CodeIdempotencyKeyReused, "idempotency key already used by another entry")
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = Integrity(CodeDoubleEntryImbalance, "journal lines must balance")
	// ErrDuplicateKey indicates the idempotency key is already committed. Translated into
	// the success path by the engine, never returned to callers.
	ErrDuplicateKey = errors.New("accounting: idempotency key already committed")
)
