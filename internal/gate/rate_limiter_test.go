package gate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/arbor/internal/config"
	"github.com/scrypster/arbor/internal/gate"
)

func TestRateLimiter_DisabledAlwaysAllows(t *testing.T) {
	rl := gate.NewRateLimiter(config.GateRateConfig{Enabled: false})
	defer rl.Close()

	for i := 0; i < 100; i++ {
		require.NoError(t, rl.Allow("client-a", "store_memory", false))
	}
}

func TestRateLimiter_WhitelistedClientBypassesLimits(t *testing.T) {
	rl := gate.NewRateLimiter(config.GateRateConfig{
		Enabled:        true,
		GlobalRPM:      1,
		GlobalBurst:    1,
		PerClientRPM:   1,
		PerClientBurst: 1,
		WhitelistClients: []string{"vip"},
	})
	defer rl.Close()

	for i := 0; i < 10; i++ {
		require.NoError(t, rl.Allow("vip", "store_memory", false))
	}
}

func TestRateLimiter_PerClientBurstExhausts(t *testing.T) {
	rl := gate.NewRateLimiter(config.GateRateConfig{
		Enabled:        true,
		GlobalRPM:      6000,
		GlobalBurst:    1000,
		PerClientRPM:   60,
		PerClientBurst: 1,
	})
	defer rl.Close()

	require.NoError(t, rl.Allow("client-a", "store_memory", false))
	assert.Error(t, rl.Allow("client-a", "store_memory", false))
}

func TestRateLimiter_SeparateClientsHaveIndependentBudgets(t *testing.T) {
	rl := gate.NewRateLimiter(config.GateRateConfig{
		Enabled:        true,
		GlobalRPM:      6000,
		GlobalBurst:    1000,
		PerClientRPM:   60,
		PerClientBurst: 1,
	})
	defer rl.Close()

	require.NoError(t, rl.Allow("client-a", "store_memory", false))
	require.NoError(t, rl.Allow("client-b", "store_memory", false))
}

func TestRateLimiter_PerToolBudgetAppliesAcrossClients(t *testing.T) {
	rl := gate.NewRateLimiter(config.GateRateConfig{
		Enabled:        true,
		GlobalRPM:      6000,
		GlobalBurst:    1000,
		PerClientRPM:   6000,
		PerClientBurst: 1000,
		PerToolRPM:     map[string]float64{"delete_memory": 60},
		PerToolBurst:   map[string]int{"delete_memory": 1},
	})
	defer rl.Close()

	require.NoError(t, rl.Allow("client-a", "delete_memory", false))
	assert.Error(t, rl.Allow("client-b", "delete_memory", false))
}
