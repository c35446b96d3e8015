// Package mcp implements the Model Context Protocol server for trialscope.
package mcp

import (
	"context"
	"errors"
	"fmt"

	trialerrors "github.com/Aman-CERP/trialscope/internal/errors"
)

// Custom MCP error codes for trialscope.
const (
	// ErrCodeStoreUnavailable indicates the search store could not be reached.
	ErrCodeStoreUnavailable = -32001

	// ErrCodeOracleUnavailable indicates the language model could not be used.
	ErrCodeOracleUnavailable = -32002

	// ErrCodeTimeout indicates the request timed out.
	ErrCodeTimeout = -32003

	// ErrCodeSuperseded indicates a newer query in the same session won.
	ErrCodeSuperseded = -32004

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}
	var te *trialerrors.TrialError
	if errors.As(err, &te) {
		return mapTrialError(te)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{
		Code:    ErrCodeInvalidParams,
		Message: msg,
	}
}

// NewMethodNotFoundError creates an error for unknown tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Tool '%s' not found.", name),
	}
}

func mapTrialError(te *trialerrors.TrialError) *MCPError {
	message := trialerrors.FormatForUser(te)

	switch te.Code {
	case trialerrors.ErrCodeSuperseded:
		return &MCPError{Code: ErrCodeSuperseded, Message: message}
	case trialerrors.ErrCodeStoreUnavailable:
		return &MCPError{Code: ErrCodeStoreUnavailable, Message: message}
	case trialerrors.ErrCodeOracleUnavailable:
		return &MCPError{Code: ErrCodeOracleUnavailable, Message: message}
	}

	switch te.Category {
	case trialerrors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case trialerrors.CategoryNetwork:
		return &MCPError{Code: ErrCodeTimeout, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
