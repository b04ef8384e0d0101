package drawcull

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProfileResolve(t *testing.T) {
	assert.Equal(t, ProfileDevParity, ProfileDevParity.Resolve())
	assert.Equal(t, ProfileShippingFast, ProfileShippingFast.Resolve())
	assert.Equal(t, ProfileDiagnostics, ProfileDiagnostics.Resolve())

	// Auto resolves to whatever the build configuration selected, never to
	// itself.
	assert.NotEqual(t, ProfileAuto, ProfileAuto.Resolve())
}

func TestProfileAllowsReadback(t *testing.T) {
	assert.True(t, ProfileDevParity.AllowsReadback())
	assert.True(t, ProfileDiagnostics.AllowsReadback())
	assert.False(t, ProfileShippingFast.AllowsReadback())
}

func TestModeStrings(t *testing.T) {
	assert.Equal(t, "hi-z", OcclusionHiZ.String())
	assert.Equal(t, "async-query", OcclusionAsyncQuery.String())
	assert.Equal(t, "disabled", OcclusionDisabled.String())
	assert.Equal(t, "diagnostics", ProfileDiagnostics.String())
	assert.Equal(t, "unknown", FeatureProfile(99).String())
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Greater(t, cfg.CapacityCeiling, cfg.MaxObjects)
	assert.NotZero(t, cfg.MaxIndirectDraws)
	assert.GreaterOrEqual(t, cfg.OcclusionHideDelay, 1)
}
