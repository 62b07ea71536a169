package images

import (
	"github.com/nfnt/resize"
)

// Resize scales the buffer to the given dimensions.
//
// The resampling policy is fixed at Lanczos3 for every resize in the
// pipeline, so model input downscaling and mask upscaling stay consistent
// with each other.
//
// Arguments:
//   - width: Target width in pixels.
//   - height: Target height in pixels.
//
// Returns:
//   - *Buffer: A new buffer in the same color mode as the source.
func (b *Buffer) Resize(width, height int) *Buffer {
	if width == b.Width && height == b.Height {
		return b.Clone()
	}
	scaled := resize.Resize(uint(width), uint(height), b.ToImage(), resize.Lanczos3)
	out := FromImage(scaled)
	if out.Mode != b.Mode {
		converted, err := out.Convert(b.Mode)
		if err == nil {
			return converted
		}
	}
	return out
}
