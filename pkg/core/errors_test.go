package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorType_String(t *testing.T) {
	tests := []struct {
		name      string
		errorType ErrorType
		want      string
	}{
		{"unknown", ErrorTypeUnknown, "UNKNOWN"},
		{"network", ErrorTypeNetwork, "NETWORK"},
		{"http", ErrorTypeHTTP, "HTTP"},
		{"config", ErrorTypeConfig, "CONFIG"},
		{"rate_limited", ErrorTypeRateLimited, "RATE_LIMITED"},
		{"invalid_usage", ErrorTypeInvalidUsage, "INVALID_USAGE"},
		{"order", ErrorTypeOrder, "ORDER"},
		{"trading", ErrorTypeTrading, "TRADING"},
		{"service", ErrorTypeService, "SERVICE"},
		{"api", ErrorTypeAPI, "API"},
		{"general", ErrorTypeGeneral, "GENERAL"},
		{"unrecognized", ErrorTypeUnrecognized, "UNRECOGNIZED_KRAKEN"},
		{"closed", ErrorTypeClosed, "CLOSED"},
		{"malformed", ErrorTypeMalformed, "MALFORMED_RESPONSE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.errorType.String())
		})
	}
}

func TestClassifyTokens(t *testing.T) {
	tests := []struct {
		name   string
		tokens []string
		want   ErrorType
	}{
		{"rate_limit", []string{"EAPI:Rate limit exceeded"}, ErrorTypeRateLimited},
		{"order", []string{"EOrder:Invalid order"}, ErrorTypeOrder},
		{"trading", []string{"ETrade:Locked"}, ErrorTypeTrading},
		{"service", []string{"EService:Unavailable"}, ErrorTypeService},
		{"api", []string{"EAPI:Invalid key"}, ErrorTypeAPI},
		{"general", []string{"EGeneral:Invalid arguments"}, ErrorTypeGeneral},
		{"query", []string{"EQuery:Unknown asset pair"}, ErrorTypeGeneral},
		{"funding", []string{"EFunding:Unknown withdraw key"}, ErrorTypeGeneral},
		{"unknown_family", []string{"EFoo:Unknown"}, ErrorTypeUnrecognized},
		{"empty_list", nil, ErrorTypeMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ClassifyTokens(tt.tokens)
			require.NotNil(t, err)
			assert.Equal(t, tt.want, err.Type)
		})
	}
}

func TestClassifyTokens_MostSpecificWins(t *testing.T) {
	err := ClassifyTokens([]string{"EGeneral:Temporary lockout", "EOrder:Insufficient funds"})

	assert.Equal(t, ErrorTypeOrder, err.Type)
	assert.Equal(t, "EOrder:Insufficient funds", err.Message)
	assert.Len(t, err.Tokens, 2)
}

func TestClassifyTokens_AnyUnknownPreservesAll(t *testing.T) {
	tokens := []string{"EOrder:Invalid order", "EFoo:Mystery"}
	err := ClassifyTokens(tokens)

	assert.Equal(t, ErrorTypeUnrecognized, err.Type)
	assert.Equal(t, tokens, err.Tokens)
}

func TestClassifyTokens_RateLimitOutranksFamily(t *testing.T) {
	err := ClassifyTokens([]string{"EOrder:Rate limit exceeded"})

	assert.Equal(t, ErrorTypeRateLimited, err.Type)
}

func TestError_Error(t *testing.T) {
	httpErr := NewHTTPError(502, "bad gateway")
	assert.Equal(t, "kraken: HTTP (502): bad gateway", httpErr.Error())

	unrec := ClassifyTokens([]string{"EFoo:Unknown"})
	assert.Contains(t, unrec.Error(), "EFoo:Unknown")

	usage := NewError(ErrorTypeInvalidUsage, "API key not set")
	assert.Equal(t, "kraken: INVALID_USAGE: API key not set", usage.Error())
}

func TestIsHelpers(t *testing.T) {
	wrapped := fmt.Errorf("dispatch: %w", ClassifyTokens([]string{"EAPI:Rate limit exceeded"}))

	assert.True(t, IsRateLimited(wrapped))
	assert.False(t, IsOrderError(wrapped))
	assert.False(t, IsRateLimited(errors.New("plain")))

	assert.True(t, IsClosed(NewError(ErrorTypeClosed, "session closed")))
	assert.True(t, IsInvalidUsage(NewError(ErrorTypeInvalidUsage, "no credentials")))
	assert.True(t, IsNetworkError(NewNetworkError(errors.New("connection refused"))))
	assert.True(t, IsUnrecognized(ClassifyTokens([]string{"EBar:?"})))
}
