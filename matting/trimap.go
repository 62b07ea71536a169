// Package matting - Trimap construction and alpha-matte estimation.
package matting

import (
	"github.com/crbuch/rembg-go/images"
)

// Trimap pixel values. Background is written before foreground, so a
// pixel claimed by both eroded sets ends up foreground.
const (
	// TrimapBackground marks definite background.
	TrimapBackground uint8 = 0
	// TrimapUnknown marks the band where alpha must be estimated.
	TrimapUnknown uint8 = 128
	// TrimapForeground marks definite foreground.
	TrimapForeground uint8 = 255
)

// Trimap derives a three-valued map from a coarse mask.
//
// Pixels strictly above fgThreshold seed the foreground set, pixels
// strictly below bgThreshold seed the background set, and both sets are
// eroded with a square structuring element of side erodeSize before being
// written into the map. Everything else stays unknown.
//
// The border policy is asymmetric: out-of-bounds neighbors count as set
// when eroding the background and as unset when eroding the foreground.
// Foreground touching the image edge is therefore never trusted outright,
// while background keeps shrinking toward the border.
//
// Arguments:
//   - mask: Single-channel coarse mask.
//   - fgThreshold: Strict lower bound for foreground seeds.
//   - bgThreshold: Strict upper bound for background seeds.
//   - erodeSize: Structuring element side length; 0 (and 1) leave the
//     seed sets untouched.
//
// Returns:
//   - *images.Buffer: Grayscale buffer over {0, 128, 255}, same
//     dimensions as the mask.
func Trimap(mask *images.Buffer, fgThreshold, bgThreshold uint8, erodeSize int) *images.Buffer {
	w, h := mask.Width, mask.Height
	n := w * h

	isFg := make([]bool, n)
	isBg := make([]bool, n)
	for i := 0; i < n; i++ {
		v := mask.GrayAt(i%w, i/w)
		isFg[i] = v > fgThreshold
		isBg[i] = v < bgThreshold
	}

	isFg = erode(isFg, w, h, erodeSize, false)
	isBg = erode(isBg, w, h, erodeSize, true)

	out, _ := images.NewBuffer(w, h, images.ModeGray)
	for i := 0; i < n; i++ {
		out.Pix[i] = TrimapUnknown
	}
	for i := 0; i < n; i++ {
		if isBg[i] {
			out.Pix[i] = TrimapBackground
		}
	}
	for i := 0; i < n; i++ {
		if isFg[i] {
			out.Pix[i] = TrimapForeground
		}
	}
	return out
}

// erode shrinks a boolean set with a size x size square structuring
// element: a pixel survives only if every covered neighbor is set.
// Out-of-bounds neighbors count as oob. Element sizes below 2 cover a
// single pixel and act as identity.
func erode(set []bool, w, h, size int, oob bool) []bool {
	if size < 2 {
		out := make([]bool, len(set))
		copy(out, set)
		return out
	}
	lo := -(size / 2)
	hi := size - 1 + lo

	out := make([]bool, len(set))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			if !set[i] {
				continue
			}
			keep := true
			for dy := lo; dy <= hi && keep; dy++ {
				for dx := lo; dx <= hi; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						if !oob {
							keep = false
							break
						}
						continue
					}
					if !set[ny*w+nx] {
						keep = false
						break
					}
				}
			}
			out[i] = keep
		}
	}
	return out
}
