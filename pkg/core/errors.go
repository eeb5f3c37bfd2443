package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorType categorizes a failure for programmatic handling.
type ErrorType int

const (
	// ErrorTypeUnknown indicates an unclassified error.
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeNetwork indicates a transport-level failure (timeout,
	// connection refused, TLS failure).
	ErrorTypeNetwork
	// ErrorTypeHTTP indicates a non-2xx response with no parseable
	// Kraken error body.
	ErrorTypeHTTP
	// ErrorTypeConfig indicates bad credential encoding or other
	// configuration problems.
	ErrorTypeConfig
	// ErrorTypeRateLimited indicates the exchange rejected the call for
	// exceeding its rate limits.
	ErrorTypeRateLimited
	// ErrorTypeInvalidUsage indicates the caller misused the client,
	// e.g. a private call without credentials.
	ErrorTypeInvalidUsage
	// ErrorTypeOrder indicates an order-validation error (EOrder family).
	ErrorTypeOrder
	// ErrorTypeTrading indicates a trading error (ETrade family).
	ErrorTypeTrading
	// ErrorTypeService indicates the exchange service is unavailable or
	// degraded (EService family).
	ErrorTypeService
	// ErrorTypeAPI indicates an API usage error reported by the exchange
	// (EAPI family).
	ErrorTypeAPI
	// ErrorTypeGeneral covers the remaining known Kraken families
	// (EGeneral, EQuery, EMarket, EData, EFunding).
	ErrorTypeGeneral
	// ErrorTypeUnrecognized indicates at least one error token did not
	// match any known family; the full raw token list is preserved.
	ErrorTypeUnrecognized
	// ErrorTypeClosed indicates an operation on a terminated WS session.
	ErrorTypeClosed
	// ErrorTypeMalformed indicates the response envelope violated the
	// expected shape.
	ErrorTypeMalformed
)

// String returns the string representation of the error type.
func (t ErrorType) String() string {
	return [...]string{
		"UNKNOWN",
		"NETWORK",
		"HTTP",
		"CONFIG",
		"RATE_LIMITED",
		"INVALID_USAGE",
		"ORDER",
		"TRADING",
		"SERVICE",
		"API",
		"GENERAL",
		"UNRECOGNIZED_KRAKEN",
		"CLOSED",
		"MALFORMED_RESPONSE",
	}[t]
}

// Error is a structured failure from the dispatch engine. Raw Kraken error
// tokens are preserved verbatim so new exchange error codes never produce
// silent misclassification.
type Error struct {
	// Type categorizes the error.
	Type ErrorType `json:"type"`
	// Status is the HTTP status code, set for ErrorTypeHTTP.
	Status int `json:"status,omitempty"`
	// Message is the human-readable description.
	Message string `json:"message"`
	// Tokens holds the raw error tokens from the exchange response.
	Tokens []string `json:"tokens,omitempty"`
	// Timestamp is when the error was constructed.
	Timestamp time.Time `json:"timestamp"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Type == ErrorTypeHTTP:
		return fmt.Sprintf("kraken: %s (%d): %s", e.Type, e.Status, e.Message)
	case len(e.Tokens) > 0 && e.Message == "":
		return fmt.Sprintf("kraken: %s: %s", e.Type, strings.Join(e.Tokens, ", "))
	default:
		return fmt.Sprintf("kraken: %s: %s", e.Type, e.Message)
	}
}

// NewError creates an Error of the given type.
func NewError(t ErrorType, message string) *Error {
	return &Error{Type: t, Message: message, Timestamp: time.Now()}
}

// NewHTTPError creates an Error for a non-2xx response without a parseable
// Kraken error body.
func NewHTTPError(status int, message string) *Error {
	return &Error{Type: ErrorTypeHTTP, Status: status, Message: message, Timestamp: time.Now()}
}

// NewNetworkError wraps a transport-level failure.
func NewNetworkError(cause error) *Error {
	return &Error{Type: ErrorTypeNetwork, Message: cause.Error(), Timestamp: time.Now()}
}

// knownFamilies maps Kraken error-token prefixes to error types, most
// specific first. Classification precedence follows slice order.
var knownFamilies = []struct {
	prefix string
	typ    ErrorType
}{
	{"EOrder:", ErrorTypeOrder},
	{"ETrade:", ErrorTypeTrading},
	{"EService:", ErrorTypeService},
	{"EAPI:", ErrorTypeAPI},
	{"EGeneral:", ErrorTypeGeneral},
	{"EQuery:", ErrorTypeGeneral},
	{"EMarket:", ErrorTypeGeneral},
	{"EData:", ErrorTypeGeneral},
	{"EFunding:", ErrorTypeGeneral},
}

// ClassifyTokens maps the raw error tokens of a Kraken response envelope
// to a structured Error. An empty token list on an otherwise-failed call
// is itself an error condition. If any token does not match a known
// family the whole list is preserved on an UNRECOGNIZED_KRAKEN error so
// no information is dropped.
func ClassifyTokens(tokens []string) *Error {
	if len(tokens) == 0 {
		return NewError(ErrorTypeMalformed, "error response with empty error list")
	}

	for _, tok := range tokens {
		if !recognized(tok) {
			e := NewError(ErrorTypeUnrecognized, "")
			e.Tokens = tokens
			return e
		}
	}

	best := ErrorTypeUnknown
	bestMsg := ""
	for _, tok := range tokens {
		// Rate limiting outranks everything else regardless of family.
		if strings.Contains(tok, "Rate limit exceeded") {
			e := NewError(ErrorTypeRateLimited, tok)
			e.Tokens = tokens
			return e
		}
		for _, fam := range knownFamilies {
			if strings.HasPrefix(tok, fam.prefix) {
				if best == ErrorTypeUnknown || precedence(fam.typ) < precedence(best) {
					best = fam.typ
					bestMsg = tok
				}
				break
			}
		}
	}

	e := NewError(best, bestMsg)
	e.Tokens = tokens
	return e
}

func recognized(token string) bool {
	if strings.Contains(token, "Rate limit exceeded") {
		return true
	}
	for _, fam := range knownFamilies {
		if strings.HasPrefix(token, fam.prefix) {
			return true
		}
	}
	return false
}

func precedence(t ErrorType) int {
	for i, fam := range knownFamilies {
		if fam.typ == t {
			return i
		}
	}
	return len(knownFamilies)
}

// IsType reports whether err is an *Error of the given type.
func IsType(err error, t ErrorType) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == t
	}
	return false
}

// IsRateLimited reports whether err is a rate-limit rejection.
func IsRateLimited(err error) bool { return IsType(err, ErrorTypeRateLimited) }

// IsNetworkError reports whether err is a transport failure.
func IsNetworkError(err error) bool { return IsType(err, ErrorTypeNetwork) }

// IsInvalidUsage reports whether err is a client misuse error.
func IsInvalidUsage(err error) bool { return IsType(err, ErrorTypeInvalidUsage) }

// IsClosed reports whether err resulted from using a terminated session.
func IsClosed(err error) bool { return IsType(err, ErrorTypeClosed) }

// IsOrderError reports whether err is an order-validation error.
func IsOrderError(err error) bool { return IsType(err, ErrorTypeOrder) }

// IsUnrecognized reports whether err carries unclassified Kraken tokens.
func IsUnrecognized(err error) bool { return IsType(err, ErrorTypeUnrecognized) }
