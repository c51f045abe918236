package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnabledModels(t *testing.T) {
	models := EnabledModels()
	require.NotEmpty(t, models)
	for _, m := range models {
		assert.True(t, m.Enabled, m.ID)
	}
	assert.Less(t, len(models), len(ModelCatalog), "catalog carries at least one disabled model")
}

func TestLookupModel(t *testing.T) {
	m, ok := LookupModel("gpt-4o-mini")
	require.True(t, ok)
	assert.Equal(t, "GPT-4o Mini", m.Name)

	_, ok = LookupModel("no-such-model")
	assert.False(t, ok)
}

func TestEstimateCost(t *testing.T) {
	// 1000 input and 1000 output tokens at the listed per-1K prices.
	cost := EstimateCost("gpt-4o-mini", 1000, 1000)
	assert.InDelta(t, 0.00015+0.0006, cost, 1e-9)

	assert.Zero(t, EstimateCost("no-such-model", 1000, 1000))
}
