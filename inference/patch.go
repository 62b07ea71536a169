package inference

import (
	"bytes"
)

// The u2net exports carry Resize nodes whose exclude_outside attribute is
// set, and some execution providers reject that attribute outright. The
// serialized AttributeProto is byte-stable across the exports we ship:
//
//	0a 0f "exclude_outside" 18 01 a0 01 02
//
// (field 1 name, field 3 i=1, field 20 type=INT). Flipping the i varint
// to zero is enough for every provider to accept the graph and does not
// change inference results for the input sizes the pipeline uses.
//
// This is a heuristic stand-in for a schema-aware graph editor: the
// pattern is versioned with the registry entries that set CompatPatch,
// and a fixture test pins it at known byte offsets.
var (
	compatPattern = append([]byte{0x0a, 0x0f},
		append([]byte("exclude_outside"), 0x18, 0x01, 0xa0, 0x01, 0x02)...)
	compatPatched = append([]byte{0x0a, 0x0f},
		append([]byte("exclude_outside"), 0x18, 0x00, 0xa0, 0x01, 0x02)...)
)

// PatchGraph toggles the known-incompatible operator attribute wherever
// its byte pattern occurs in a serialized model graph.
//
// Arguments:
//   - model: The serialized model bytes.
//
// Returns:
//   - []byte: The model bytes to use. When the pattern is absent this is
//     the input slice unchanged; otherwise it is a patched copy.
//   - int: The number of sites toggled.
func PatchGraph(model []byte) ([]byte, int) {
	if !bytes.Contains(model, compatPattern) {
		return model, 0
	}
	patched := make([]byte, len(model))
	copy(patched, model)
	count := 0
	for i := 0; ; {
		j := bytes.Index(patched[i:], compatPattern)
		if j < 0 {
			break
		}
		at := i + j
		copy(patched[at:at+len(compatPatched)], compatPatched)
		count++
		i = at + len(compatPatched)
	}
	return patched, count
}
