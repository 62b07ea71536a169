package inference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupBuiltins(t *testing.T) {
	for _, name := range []string{"u2net", "u2netp", "isnet-general-use"} {
		cfg, err := Lookup(name)
		require.NoError(t, err, "built-in model %s is registered", name)
		assert.Equal(t, name, cfg.Name)
		assert.NotEmpty(t, cfg.URL)
		assert.Positive(t, cfg.TargetSize)
		assert.NotNil(t, cfg.Postprocess)
	}

	_, err := Lookup("not-registered")
	assert.Error(t, err)
}

func TestNamesIncludeBuiltinsSorted(t *testing.T) {
	names := Names()
	assert.Contains(t, names, "u2net")
	assert.Contains(t, names, "u2netp")
	assert.Contains(t, names, "isnet-general-use")
	assert.IsIncreasing(t, names)
}

func TestMinMaxMaskRescales(t *testing.T) {
	raw := []float32{0.2, 0.4, 0.6, 0.2}
	masks, err := MinMaxMask(raw, 2, 2)
	require.NoError(t, err)
	require.Len(t, masks, 1)

	mask := masks[0]
	assert.Equal(t, uint8(0), mask.Pix[0], "the minimum maps to 0")
	assert.Equal(t, uint8(255), mask.Pix[2], "the maximum maps to 255")
	assert.InDelta(t, 127, float64(mask.Pix[1]), 1, "midpoints land mid-range")
}

func TestMinMaxMaskConstantMap(t *testing.T) {
	raw := []float32{0.7, 0.7, 0.7, 0.7}
	masks, err := MinMaxMask(raw, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 0, 0, 0}, masks[0].Pix, "a constant map rescales to zeros, not NaNs")
}

func TestMinMaxMaskShortOutput(t *testing.T) {
	_, err := MinMaxMask(make([]float32, 3), 2, 2)
	assert.Error(t, err)
}

func TestMinMaxMaskIgnoresTrailingChannels(t *testing.T) {
	// Models that emit several maps stacked in one tensor decode from the
	// first plane only.
	raw := []float32{0, 1, 0, 1 /* second plane: */, 9, 9, 9, 9}
	masks, err := MinMaxMask(raw, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 255, 0, 255}, masks[0].Pix)
}
