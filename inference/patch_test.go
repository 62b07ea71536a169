package inference

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatchGraphNoop(t *testing.T) {
	model := []byte("a serialized graph without the attribute")
	out, sites := PatchGraph(model)
	assert.Zero(t, sites)
	assert.Same(t, &model[0], &out[0], "a clean graph passes through without copying")
}

func TestPatchGraphTogglesEverySite(t *testing.T) {
	var model []byte
	model = append(model, bytes.Repeat([]byte{0xff}, 11)...)
	model = append(model, compatPattern...)
	model = append(model, bytes.Repeat([]byte{0x00}, 5)...)
	model = append(model, compatPattern...)
	model = append(model, "trailer"...)

	out, sites := PatchGraph(model)
	assert.Equal(t, 2, sites)
	require.Len(t, out, len(model))

	assert.Equal(t, compatPatched, out[11:11+len(compatPatched)], "first site at offset 11 is toggled")
	second := 11 + len(compatPattern) + 5
	assert.Equal(t, compatPatched, out[second:second+len(compatPatched)], "second site is toggled")

	assert.Equal(t, model[:11], out[:11], "leading bytes survive untouched")
	assert.Equal(t, []byte("trailer"), out[len(out)-7:], "trailing bytes survive untouched")
	assert.True(t, bytes.Contains(model, compatPattern), "the input slice itself is never mutated")
}

func TestPatchGraphIdempotent(t *testing.T) {
	model := append([]byte("x"), compatPattern...)
	once, sites := PatchGraph(model)
	require.Equal(t, 1, sites)
	twice, sites := PatchGraph(once)
	assert.Zero(t, sites, "a patched graph has no remaining sites")
	assert.Equal(t, once, twice)
}
