// Package gwerrors defines the gateway's error taxonomy and its mapping to
// JSON-RPC error objects returned to MCP clients.
package gwerrors

import (
	"errors"
	"fmt"
)

// Kind classifies a gateway error into one of the stable categories the
// gateway promises callers. Every error that crosses a JSON-RPC boundary
// is translated into exactly one Kind.
type Kind string

// The error taxonomy.
const (
	KindParseError          Kind = "ParseError"
	KindInvalidRequest      Kind = "InvalidRequest"
	KindNotInitialized      Kind = "NotInitialized"
	KindToolNotFound        Kind = "ToolNotFound"
	KindSchemaValidation    Kind = "SchemaValidation"
	KindProviderUnavailable Kind = "ProviderUnavailable"
	KindProviderBusy        Kind = "ProviderBusy"
	KindProviderShutdown    Kind = "ProviderShutdown"
	KindTimeout             Kind = "Timeout"
	KindCancelled           Kind = "Cancelled"
	KindChildError          Kind = "ChildError"
	KindSandboxError        Kind = "SandboxError"
	KindNetworkBlocked      Kind = "NetworkBlocked"
	KindInternal            Kind = "Internal"
)

// jsonRPCCode is the stable wire code for each Kind. Standard JSON-RPC 2.0
// codes are used where the failure is protocol-level; gateway-specific
// kinds get a reserved application range starting at 1000, chosen so they
// never collide with a downstream child's own error codes when forwarded
// verbatim (ChildError is never renumbered).
var jsonRPCCode = map[Kind]int{
	KindParseError:          -32700,
	KindInvalidRequest:      -32600,
	KindNotInitialized:      -32002,
	KindToolNotFound:        -32601,
	KindSchemaValidation:    -32602,
	KindProviderUnavailable: 1000,
	KindProviderBusy:        1001,
	KindProviderShutdown:    1002,
	KindTimeout:             1003,
	KindCancelled:           1004,
	KindChildError:          1005,
	KindSandboxError:        1006,
	KindNetworkBlocked:      1007,
	KindInternal:            1008,
}

// Error is the gateway's concrete error type. It always carries a Kind so
// callers can branch on category with errors.As, and wraps an optional
// underlying Cause for %w-based unwrapping.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/As.
func (e *Error) Unwrap() error { return e.Cause }

// New constructs an Error of the given Kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an Error of the given Kind around an existing error.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// As extracts the gateway Error from err, if any is present in its chain.
func As(err error) (*Error, bool) {
	var ge *Error
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it (or something it wraps) is a
// gateway Error, and KindInternal otherwise — the bug-class fallback of
// §7, used at translation boundaries so an unclassified error never
// leaks a stack trace or an unstable message to a client.
func KindOf(err error) Kind {
	if ge, ok := As(err); ok {
		return ge.Kind
	}
	return KindInternal
}

// JSONRPCError is the wire shape returned in a JSON-RPC response's
// "error" field.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ToJSONRPC converts a gateway error into the JSON-RPC error object sent
// back over the wire. Any non-gateway error is classified as Internal
// first so the caller never sees raw Go error text for bugs.
func ToJSONRPC(err error) JSONRPCError {
	ge, ok := As(err)
	if !ok {
		return JSONRPCError{Code: jsonRPCCode[KindInternal], Message: "internal error"}
	}
	return JSONRPCError{
		Code:    jsonRPCCode[ge.Kind],
		Message: ge.Error(),
		Data:    map[string]string{"kind": string(ge.Kind)},
	}
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	ge, ok := As(err)
	return ok && ge.Kind == kind
}
