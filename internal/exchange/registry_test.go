package exchange_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bonsaidca/bonsai/internal/exchange"
	"github.com/bonsaidca/bonsai/internal/exchange/mock"
	"github.com/bonsaidca/bonsai/internal/types"
)

func TestRegistryBuildsClientForExchange(t *testing.T) {
	registry := exchange.NewRegistry()
	client := mock.NewClient()
	registry.Register(types.ExchangeGemini, client.Factory())

	got, err := registry.ClientFor(&types.Credential{Exchange: types.ExchangeGemini})
	require.NoError(t, err)
	assert.Same(t, client, got)
}

func TestRegistryUnsupportedExchange(t *testing.T) {
	registry := exchange.NewRegistry()

	_, err := registry.ClientFor(&types.Credential{Exchange: types.ExchangeCoinbase})
	assert.ErrorIs(t, err, exchange.ErrUnsupportedExchange)
}

func TestRegistryReplacesRegistration(t *testing.T) {
	registry := exchange.NewRegistry()
	first := mock.NewClient()
	second := mock.NewClient()

	registry.Register(types.ExchangeGemini, first.Factory())
	registry.Register(types.ExchangeGemini, second.Factory())

	got, err := registry.ClientFor(&types.Credential{Exchange: types.ExchangeGemini})
	require.NoError(t, err)
	assert.Same(t, second, got)
}

func TestRequestErrorUnwrapsToSentinel(t *testing.T) {
	tests := []struct {
		statusCode int
		want       error
	}{
		{401, exchange.ErrAuthFailed},
		{403, exchange.ErrAuthFailed},
		{404, exchange.ErrMarketNotFound},
		{429, exchange.ErrRateLimited},
		{500, exchange.ErrTransport},
	}

	for _, tt := range tests {
		err := &exchange.RequestError{StatusCode: tt.statusCode}
		assert.ErrorIs(t, err, tt.want, "status %d", tt.statusCode)
	}
}
