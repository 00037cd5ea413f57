package mcpbridge

import (
	"context"
	"errors"
	"fmt"

	engerrors "github.com/Aman-CERP/docquery/internal/errors"
)

// Standard JSON-RPC error codes, plus a small range of engine-specific ones,
// following the teacher's internal/mcp/errors.go numbering scheme.
const (
	ErrCodeNoChunks       = -32001
	ErrCodeTimeout        = -32003
	ErrCodeResourceNotFound = -32004

	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// RPCError is an MCP/JSON-RPC protocol error with a numeric code.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("mcp error %d: %s", e.Code, e.Message)
}

// MapError converts an engine error into an RPCError, preserving the §7
// Kind-to-recovery-policy mapping at the transport boundary.
func MapError(err error) *RPCError {
	if err == nil {
		return nil
	}

	var ee *engerrors.EngineError
	if errors.As(err, &ee) {
		return mapEngineError(ee)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &RPCError{Code: ErrCodeTimeout, Message: "request timed out"}
	case errors.Is(err, context.Canceled):
		return &RPCError{Code: ErrCodeTimeout, Message: "request was canceled"}
	default:
		return &RPCError{Code: ErrCodeInternalError, Message: "internal server error"}
	}
}

func mapEngineError(ee *engerrors.EngineError) *RPCError {
	message := ee.Message
	if ee.Suggestion != "" {
		message = fmt.Sprintf("%s %s", ee.Message, ee.Suggestion)
	}

	switch ee.Kind {
	case engerrors.KindNotFound:
		return &RPCError{Code: ErrCodeMethodNotFound, Message: message}
	case engerrors.KindInvalidArgument, engerrors.KindParseError:
		return &RPCError{Code: ErrCodeInvalidParams, Message: message}
	case engerrors.KindNoChunks:
		return &RPCError{Code: ErrCodeNoChunks, Message: message}
	case engerrors.KindProviderTransient:
		return &RPCError{Code: ErrCodeTimeout, Message: message}
	case engerrors.KindCancelled:
		return &RPCError{Code: ErrCodeTimeout, Message: message}
	default:
		return &RPCError{Code: ErrCodeInternalError, Message: message}
	}
}

func newInvalidParamsError(msg string) *RPCError {
	return &RPCError{Code: ErrCodeInvalidParams, Message: msg}
}

func newResourceNotFoundError(uri string) *RPCError {
	return &RPCError{Code: ErrCodeResourceNotFound, Message: fmt.Sprintf("resource %q not found", uri)}
}
