package authcore

import "errors"

// ErrorKind classifies every failure an Engine operation reports. Transport
// layers map kinds to responses; anything unclassified is KindInternal.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindAuthentication
	KindToken
	KindConflict
	KindNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindToken:
		return "token"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// TokenReason refines KindToken errors.
type TokenReason int

const (
	ReasonNone TokenReason = iota
	ReasonInvalid
	ReasonExpired
)

// Error is the classified error type returned by Engine operations.
type Error struct {
	Kind    ErrorKind
	Reason  TokenReason
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	switch e.Kind {
	case KindValidation:
		return "invalid request"
	case KindAuthentication:
		return "invalid email or password"
	case KindToken:
		if e.Reason == ReasonExpired {
			return "token expired"
		}
		return "invalid or revoked token"
	case KindConflict:
		return "an account with this email already exists"
	case KindNotFound:
		return "not found"
	default:
		return "internal error"
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind. A target with a Reason or Message
// additionally requires those to be equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	if t.Reason != ReasonNone && t.Reason != e.Reason {
		return false
	}
	return t.Message == "" || t.Message == e.Message
}

var (
	ErrValidation     = &Error{Kind: KindValidation}
	ErrAuthentication = &Error{Kind: KindAuthentication}
	ErrTokenInvalid   = &Error{Kind: KindToken, Reason: ReasonInvalid}
	ErrTokenExpired   = &Error{Kind: KindToken, Reason: ReasonExpired}
	ErrConflict       = &Error{Kind: KindConflict}
	ErrNotFound       = &Error{Kind: KindNotFound}

	// ErrRateLimited is a validation failure raised by the optional throttles.
	ErrRateLimited = &Error{Kind: KindValidation, Message: "too many requests"}
	// ErrIncorrectPassword is returned when an authenticated user supplies the
	// wrong current password.
	ErrIncorrectPassword = &Error{Kind: KindAuthentication, Message: "current password is incorrect"}
	// ErrVerificationQuota is returned when too many verification emails were
	// requested within the window.
	ErrVerificationQuota = &Error{Kind: KindValidation, Message: "too many verification emails requested"}

	// ErrEngineNotReady is returned by a zero-value or closed Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// KindOf returns the kind of err, or KindInternal when err is not classified.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func validationError(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}
