package lineage

import "errors"

// Kind is a stable category for programmatic error handling.
//
// Callers should branch on Kind/RuleID rather than matching error strings;
// Error() text is for humans and may change.
//
// Integrity findings (leaf mismatches, bad signatures) are NOT errors: they
// are Issue values collected into a Report. Errors are reserved for
// structural problems that abort an operation before any mutation.
type Kind string

const (
	KindParse      Kind = "Parse"
	KindCanonical  Kind = "Canonical"
	KindValidation Kind = "Validation"
	KindCrypto     Kind = "Crypto"
	KindStorage    Kind = "Storage"
	KindInternal   Kind = "Internal"
)

// Error is the library's structured error type.
//
// RuleID is a stable identifier (e.g., SIGIL-VAL-101) naming the violated
// invariant.
type Error struct {
	Kind    Kind
	RuleID  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func newError(kind Kind, ruleID, msg string) error {
	return &Error{Kind: kind, RuleID: ruleID, Message: msg}
}

func wrapError(kind Kind, ruleID, msg string, cause error) error {
	if cause == nil {
		return newError(kind, ruleID, msg)
	}
	return &Error{Kind: kind, RuleID: ruleID, Message: msg, Cause: cause}
}

// IsKind reports whether err is (or wraps) a *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// RuleID returns the stable RuleID for a structured error, or "" if unknown.
func RuleID(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.RuleID
}
