package intent

import (
	stdErrors "errors"
	"fmt"
)

// Code identifies a failure reason that hosts can branch on.
type Code string

const (
	CodeUnknown                Code = "UNKNOWN"
	CodeUserDidntSign          Code = "USER_DIDNT_SIGN"
	CodePopupBlocked           Code = "WALLET_POPUP_BLOCKED"
	CodeCannotVerifySignature  Code = "CANNOT_VERIFY_SIGNATURE"
	CodeSignedDifferentAccount Code = "SIGNED_DIFFERENT_ACCOUNT"
	CodePublicKeyNotVerified   Code = "PUBLIC_KEY_NOT_VERIFIED"
	CodeSigningFailed          Code = "SIGNING_FAILED"
	CodeNoQuotes               Code = "NO_QUOTES"
	CodeInsufficientAmount     Code = "INSUFFICIENT_AMOUNT"
	CodeQuoteProviderError     Code = "QUOTE_PROVIDER_ERROR"
	CodeQuoteExpired           Code = "QUOTE_EXPIRED"
	CodePublishFailed          Code = "PUBLISH_FAILED"
	CodeNonceAlreadyUsed       Code = "NONCE_ALREADY_USED"
	CodeActorCrashed           Code = "ACTOR_CRASHED"
	CodeDealExpired            Code = "DEAL_EXPIRED"
)

// Attributes describe the default behaviour attached to a code.
type Attributes struct {
	Message     string
	Remediation string
	Retryable   bool
}

var registry = map[Code]Attributes{
	CodeUnknown: {
		Message:     "unknown error",
		Remediation: "Something went wrong. Please try again.",
	},
	CodeUserDidntSign: {
		Message:     "signing was cancelled",
		Remediation: "The request was not signed. Confirm it in your wallet to continue.",
		Retryable:   true,
	},
	CodePopupBlocked: {
		Message:     "wallet window was blocked",
		Remediation: "Your wallet window was blocked. Allow it and try again.",
		Retryable:   true,
	},
	CodeCannotVerifySignature: {
		Message:     "signature could not be verified",
		Remediation: "The wallet returned a signature that could not be verified. Try again or switch wallets.",
	},
	CodeSignedDifferentAccount: {
		Message:     "message signed by a different account",
		Remediation: "The message was signed by a different account. Switch your wallet to the connected account.",
	},
	CodePublicKeyNotVerified: {
		Message:     "public key is not registered",
		Remediation: "Register this wallet's public key with the intents contract before signing.",
		Retryable:   true,
	},
	CodeSigningFailed: {
		Message:     "wallet failed to sign",
		Remediation: "The wallet reported an error while signing. Try again.",
		Retryable:   true,
	},
	CodeNoQuotes: {
		Message:     "no quotes available",
		Remediation: "No solver offered a quote for this pair. Try a different amount.",
		Retryable:   true,
	},
	CodeInsufficientAmount: {
		Message:     "amount is too small",
		Remediation: "The amount is below the minimum solvers accept. Increase the amount.",
	},
	CodeQuoteProviderError: {
		Message:     "quote provider failed",
		Remediation: "Quotes are temporarily unavailable. They will refresh automatically.",
		Retryable:   true,
	},
	CodeQuoteExpired: {
		Message:     "quote expired",
		Remediation: "The quote expired before signing. Wait for a fresh quote and submit again.",
		Retryable:   true,
	},
	CodePublishFailed: {
		Message:     "intent publication failed",
		Remediation: "The signed intent could not be published. Submit again.",
		Retryable:   true,
	},
	CodeNonceAlreadyUsed: {
		Message:     "nonce already used",
		Remediation: "This deal was already filled or cancelled.",
	},
	CodeActorCrashed: {
		Message:     "actor crashed unexpectedly",
		Remediation: "An internal error interrupted the operation. Please try again.",
		Retryable:   true,
	},
	CodeDealExpired: {
		Message:     "deal expired",
		Remediation: "The maker's signature on this deal has expired. Ask the maker for a new link.",
	},
}

// AttributesOf returns the attributes registered for code, falling back to UNKNOWN.
func AttributesOf(code Code) Attributes {
	if attr, ok := registry[code]; ok {
		return attr
	}
	return registry[CodeUnknown]
}

// Remediation returns the user-facing sentence for code.
func Remediation(code Code) string {
	return AttributesOf(code).Remediation
}

// Error is the typed error carried by err results.
type Error struct {
	code    Code
	message string
	cause   error
}

// NewError creates an error with the registered default message when message is empty.
func NewError(code Code, message string) *Error {
	if message == "" {
		message = AttributesOf(code).Message
	}
	return &Error{code: code, message: message}
}

// WrapError attaches code to an underlying cause.
func WrapError(code Code, cause error, message string) *Error {
	e := NewError(code, message)
	e.cause = cause
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is matches errors with the same code.
func (e *Error) Is(target error) bool {
	if e == nil || target == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.code == t.code
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeUnknown
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Retryable() bool {
	return AttributesOf(e.Code()).Retryable
}

// CodeOf extracts the code from err, or UNKNOWN.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if stdErrors.As(err, &e) {
		return e.code
	}
	return CodeUnknown
}

// AsError converts any error into *Error, keeping an existing code.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if stdErrors.As(err, &e) {
		return e
	}
	return WrapError(CodeUnknown, err, "")
}

// ErrPopupBlocked is returned by wallets whose signing window could not be opened.
var ErrPopupBlocked = stdErrors.New("wallet popup blocked")
