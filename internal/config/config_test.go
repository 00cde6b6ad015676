package config_test

import (
	"os"
	"testing"

	"github.com/scrypster/arbor/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenNoFileOrEnv(t *testing.T) {
	for _, key := range []string{
		"ARBOR_SCORING_RECENCY_WEIGHT", "ARBOR_SCORING_IMPORTANCE_WEIGHT",
		"ARBOR_SCORING_RELEVANCE_WEIGHT", "ARBOR_STORAGE_ENGINE",
	} {
		_ = os.Unsetenv(key)
	}

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Storage.Engine)
	assert.InDelta(t, 1.0, cfg.Scoring.RecencyWeight+cfg.Scoring.ImportanceWeight+cfg.Scoring.RelevanceWeight, 1e-9)
}

func TestLoad_EnvOverridesStorageEngine(t *testing.T) {
	t.Setenv("ARBOR_STORAGE_ENGINE", "postgres")
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Storage.Engine)
}

func TestNormalize_RescalesUnequalWeights(t *testing.T) {
	cfg := config.Default()
	cfg.Scoring.RecencyWeight = 2
	cfg.Scoring.ImportanceWeight = 1
	cfg.Scoring.RelevanceWeight = 1
	cfg.Normalize()

	assert.InDelta(t, 0.5, cfg.Scoring.RecencyWeight, 1e-9)
	assert.InDelta(t, 0.25, cfg.Scoring.ImportanceWeight, 1e-9)
	assert.InDelta(t, 0.25, cfg.Scoring.RelevanceWeight, 1e-9)
}

func TestValidate_RejectsNonPositiveLambda(t *testing.T) {
	cfg := config.Default()
	cfg.Scoring.DecayLambda = 0
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestStore_ReloadSwapsSnapshot(t *testing.T) {
	base := config.Default()
	store := config.NewStore(base)
	assert.Equal(t, "sqlite", store.Get().Storage.Engine)

	updated := config.Default()
	updated.Storage.Engine = "postgres"
	store.Reload(updated)

	assert.Equal(t, "postgres", store.Get().Storage.Engine)
}
