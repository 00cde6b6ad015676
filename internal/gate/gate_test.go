package gate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/arbor/internal/apperr"
	"github.com/scrypster/arbor/internal/config"
	"github.com/scrypster/arbor/internal/gate"
)

func readOnlyGate() *gate.Gate {
	return gate.New(config.GateConfig{
		Auth: config.GateAuthConfig{
			Enabled:        true,
			RequiredScopes: []string{"read"},
			BearerTokens:   map[string]string{"reader-token": "reader"},
		},
		Rate: config.GateRateConfig{Enabled: false},
	})
}

func TestAdmit_ReadScopedCallerRejectedForWriteTool(t *testing.T) {
	g := readOnlyGate()
	defer g.Close()

	_, err := g.Admit(context.Background(), gate.Credential{BearerToken: "reader-token"}, "store_memory", false)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
}

func TestAdmit_ReadScopedCallerAllowedForReadTool(t *testing.T) {
	g := readOnlyGate()
	defer g.Close()

	ctx, err := g.Admit(context.Background(), gate.Credential{BearerToken: "reader-token"}, "search_memory", false)
	require.NoError(t, err)
	require.NotNil(t, ctx)
	assert.Equal(t, "reader", ctx.ClientID)
}

func TestAdmit_UnknownToolDefaultsToReadScope(t *testing.T) {
	g := readOnlyGate()
	defer g.Close()

	_, err := g.Admit(context.Background(), gate.Credential{BearerToken: "reader-token"}, "some_future_tool", false)
	require.NoError(t, err)
}

func TestAdmit_WriteScopedCallerAllowedForWriteTool(t *testing.T) {
	g := gate.New(config.GateConfig{
		Auth: config.GateAuthConfig{
			Enabled:        true,
			RequiredScopes: []string{"read", "write"},
			BearerTokens:   map[string]string{"writer-token": "writer"},
		},
		Rate: config.GateRateConfig{Enabled: false},
	})
	defer g.Close()

	_, err := g.Admit(context.Background(), gate.Credential{BearerToken: "writer-token"}, "delete_memory", false)
	require.NoError(t, err)
}

func TestAdmit_AuthDisabledSkipsScopeCheck(t *testing.T) {
	g := gate.New(config.GateConfig{
		Auth: config.GateAuthConfig{Enabled: false},
		Rate: config.GateRateConfig{Enabled: false},
	})
	defer g.Close()

	_, err := g.Admit(context.Background(), gate.Credential{}, "delete_memory", false)
	require.NoError(t, err)
}
