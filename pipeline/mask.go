package pipeline

import (
	"math"

	"github.com/crbuch/rembg-go/images"
)

// Mask post-processing constants: a 3x3 open, then a radius-2 Gaussian
// with sigma 2, then a midpoint rethreshold. The open is idempotent, so
// applying the pass twice changes nothing.
const (
	openRadius    = 1
	gaussRadius   = 2
	gaussSigma    = 2.0
	maskThreshold = 128
)

// PostProcessMask cleans a coarse mask into a sharp binary boundary:
// morphological open removes speckle, Gaussian smoothing rounds the
// boundary, and the midpoint rethreshold removes every intermediate gray
// value the smoothing introduced.
//
// The pass is a fixed point on its own output. An already binary mask
// takes only the open, which is idempotent; the blur would otherwise keep
// nibbling convex corners on every application. Gray masks get the full
// sequence, with a trailing open so the result is stable when fed back.
func PostProcessMask(mask *images.Buffer) *images.Buffer {
	opened := dilateGray(erodeGray(mask, openRadius), openRadius)
	if isBinary(opened) {
		return opened
	}
	smoothed := gaussianGray(opened, gaussRadius, gaussSigma)
	for i, v := range smoothed.Pix {
		if v >= maskThreshold {
			smoothed.Pix[i] = 255
		} else {
			smoothed.Pix[i] = 0
		}
	}
	return dilateGray(erodeGray(smoothed, openRadius), openRadius)
}

// isBinary reports whether every pixel is fully set or fully unset.
func isBinary(mask *images.Buffer) bool {
	for _, v := range mask.Pix {
		if v != 0 && v != 255 {
			return false
		}
	}
	return true
}

// erodeGray is a grayscale min filter over a square window. Out-of-bounds
// samples are ignored (replicate-style border).
func erodeGray(src *images.Buffer, radius int) *images.Buffer {
	return slideWindow(src, radius, func(best, v uint8) bool { return v < best })
}

// dilateGray is a grayscale max filter over a square window.
func dilateGray(src *images.Buffer, radius int) *images.Buffer {
	return slideWindow(src, radius, func(best, v uint8) bool { return v > best })
}

func slideWindow(src *images.Buffer, radius int, better func(best, v uint8) bool) *images.Buffer {
	w, h := src.Width, src.Height
	out, _ := images.NewBuffer(w, h, images.ModeGray)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			best := src.Pix[y*w+x]
			for dy := -radius; dy <= radius; dy++ {
				for dx := -radius; dx <= radius; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					if v := src.Pix[ny*w+nx]; better(best, v) {
						best = v
					}
				}
			}
			out.Pix[y*w+x] = best
		}
	}
	return out
}

// gaussianGray applies a separable Gaussian blur with replicated edges.
func gaussianGray(src *images.Buffer, radius int, sigma float64) *images.Buffer {
	kernel := gaussianKernel(radius, sigma)
	w, h := src.Width, src.Height

	horiz, _ := images.NewBuffer(w, h, images.ModeGray)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum float64
			for k := -radius; k <= radius; k++ {
				sx := x + k
				if sx < 0 {
					sx = 0
				} else if sx >= w {
					sx = w - 1
				}
				sum += kernel[k+radius] * float64(src.Pix[y*w+sx])
			}
			horiz.Pix[y*w+x] = roundPix(sum)
		}
	}

	out, _ := images.NewBuffer(w, h, images.ModeGray)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum float64
			for k := -radius; k <= radius; k++ {
				sy := y + k
				if sy < 0 {
					sy = 0
				} else if sy >= h {
					sy = h - 1
				}
				sum += kernel[k+radius] * float64(horiz.Pix[sy*w+x])
			}
			out.Pix[y*w+x] = roundPix(sum)
		}
	}
	return out
}

func gaussianKernel(radius int, sigma float64) []float64 {
	kernel := make([]float64, 2*radius+1)
	var sum float64
	for i := -radius; i <= radius; i++ {
		v := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		kernel[i+radius] = v
		sum += v
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

func roundPix(v float64) uint8 {
	r := math.Round(v)
	if r <= 0 {
		return 0
	}
	if r >= 255 {
		return 255
	}
	return uint8(r)
}
