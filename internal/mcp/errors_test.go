package mcp

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	trialerrors "github.com/Aman-CERP/trialscope/internal/errors"
)

func TestMapError_NilError(t *testing.T) {
	assert.Nil(t, MapError(nil))
}

func TestMapError_TrialErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"superseded", trialerrors.New(trialerrors.ErrCodeSuperseded, "newer query", nil), ErrCodeSuperseded},
		{"store", trialerrors.StoreUnavailable("store down", nil), ErrCodeStoreUnavailable},
		{"oracle", trialerrors.OracleUnavailable("model down", nil), ErrCodeOracleUnavailable},
		{"validation", trialerrors.ValidationError("bad filter", nil), ErrCodeInvalidParams},
		{"issue not found", trialerrors.New(trialerrors.ErrCodeIssueNotFound, "no issue", nil), ErrCodeInvalidParams},
		{"network", trialerrors.NetworkError("timeout", nil), ErrCodeTimeout},
		{"internal", trialerrors.InternalError("boom", nil), ErrCodeInternalError},
		{"wrapped", fmt.Errorf("search: %w", trialerrors.StoreUnavailable("store down", nil)), ErrCodeStoreUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.code, got.Code)
			assert.NotEmpty(t, got.Message)
		})
	}
}

func TestMapError_SuggestionAppended(t *testing.T) {
	err := trialerrors.ValidationError("bad phase", nil).WithSuggestion("Use PHASE1 to PHASE4.")

	got := MapError(err)

	assert.Equal(t, "bad phase Use PHASE1 to PHASE4. ["+trialerrors.ErrCodeInvalidInput+"]", got.Message)
}

func TestMapError_ContextErrors(t *testing.T) {
	got := MapError(context.DeadlineExceeded)
	assert.Equal(t, ErrCodeTimeout, got.Code)
	assert.Contains(t, got.Message, "timed out")

	got = MapError(context.Canceled)
	assert.Equal(t, ErrCodeTimeout, got.Code)
	assert.Contains(t, got.Message, "canceled")
}

func TestMapError_PassesThroughMCPError(t *testing.T) {
	orig := NewInvalidParamsError("query parameter is required")

	got := MapError(fmt.Errorf("wrapped: %w", orig))

	assert.Same(t, orig, got)
}

func TestMapError_UnknownIsInternal(t *testing.T) {
	got := MapError(assert.AnError)

	assert.Equal(t, ErrCodeInternalError, got.Code)
	assert.NotContains(t, got.Message, assert.AnError.Error())
}

func TestMCPError_Error(t *testing.T) {
	err := NewMethodNotFoundError("nope")

	assert.Equal(t, "MCP error -32601: Tool 'nope' not found.", err.Error())
}
