package matting

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/crbuch/rembg-go/images"
)

// EstimationError reports that an estimator could not produce a matte.
// The engine recovers from it per item by falling back to the raw mask;
// the batch continues.
type EstimationError struct {
	// Reason describes why estimation failed.
	Reason string
	// Err is the underlying cause, if any.
	Err error
}

func (e *EstimationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("matting estimation: %s: %v", e.Reason, e.Err)
	}
	return "matting estimation: " + e.Reason
}

func (e *EstimationError) Unwrap() error { return e.Err }

// Estimator produces an alpha matte and a per-pixel foreground color from
// an image and its trimap. Both the image and the trimap are normalized
// to [0, 1] by the estimator before any math runs.
//
// Implementations must document their foreground policy: whether the
// foreground is solved jointly with alpha or derived under the simplified
// image/alpha rule.
type Estimator interface {
	// Estimate returns alpha (len W*H) and foreground (len W*H*3,
	// interleaved RGB), both in [0, 1].
	Estimate(img *images.Buffer, trimap *images.Buffer) (alpha []float32, foreground []float32, err error)
}

// PropagationEstimator solves alpha in the unknown band by iterative
// color-affinity propagation: each unknown pixel repeatedly takes the
// affinity-weighted average of its 3x3 neighborhood while trimap-known
// pixels stay pinned at 0 or 1. It is a local closed-form-style
// optimization, not a learned model.
//
// Foreground policy (simplified): foreground = image / alpha where
// alpha > epsilon, clamped to [0, 1]; elsewhere the original pixel passes
// through unchanged.
type PropagationEstimator struct {
	// Iterations is the number of propagation sweeps. More sweeps widen
	// the distance alpha can travel into the unknown band.
	Iterations int
	// Sigma controls the color-affinity falloff in normalized RGB space.
	Sigma float32
}

// NewPropagationEstimator returns an estimator with defaults tuned for
// trimaps whose unknown band is a few erode-sizes wide.
func NewPropagationEstimator() *PropagationEstimator {
	return &PropagationEstimator{Iterations: 40, Sigma: 0.1}
}

const foregroundEpsilon = 1e-3

// Estimate implements Estimator.
func (p *PropagationEstimator) Estimate(img *images.Buffer, trimap *images.Buffer) ([]float32, []float32, error) {
	if img.Width != trimap.Width || img.Height != trimap.Height {
		return nil, nil, &EstimationError{Reason: fmt.Sprintf(
			"image %dx%d and trimap %dx%d differ", img.Width, img.Height, trimap.Width, trimap.Height)}
	}
	rgbBuf, err := img.Convert(images.ModeRGB)
	if err != nil {
		return nil, nil, &EstimationError{Reason: "converting image", Err: err}
	}

	w, h := img.Width, img.Height
	n := w * h

	// Normalize both inputs to [0, 1].
	rgb := make([]float32, n*3)
	for i, v := range rgbBuf.Pix {
		rgb[i] = float32(v) / 255
	}
	alpha := make([]float32, n)
	known := make([]bool, n)
	anyKnown := false
	for i := 0; i < n; i++ {
		switch trimap.Pix[i] {
		case TrimapForeground:
			alpha[i] = 1
			known[i] = true
			anyKnown = true
		case TrimapBackground:
			alpha[i] = 0
			known[i] = true
			anyKnown = true
		default:
			alpha[i] = 0.5
		}
	}
	if !anyKnown {
		return nil, nil, &EstimationError{Reason: "degenerate trimap: no known foreground or background"}
	}

	iterations := p.Iterations
	if iterations <= 0 {
		iterations = 1
	}
	sigma := p.Sigma
	if sigma <= 0 {
		sigma = 0.1
	}
	inv2s2 := 1 / (2 * sigma * sigma)

	next := make([]float32, n)
	for it := 0; it < iterations; it++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				i := y*w + x
				if known[i] {
					next[i] = alpha[i]
					continue
				}
				var sum, wsum float32
				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						nx, ny := x+dx, y+dy
						if nx < 0 || ny < 0 || nx >= w || ny >= h {
							continue
						}
						j := ny*w + nx
						d0 := rgb[i*3] - rgb[j*3]
						d1 := rgb[i*3+1] - rgb[j*3+1]
						d2 := rgb[i*3+2] - rgb[j*3+2]
						wgt := math32.Exp(-(d0*d0 + d1*d1 + d2*d2) * inv2s2)
						sum += wgt * alpha[j]
						wsum += wgt
					}
				}
				// wsum always covers at least the pixel itself (weight 1).
				next[i] = sum / wsum
			}
		}
		alpha, next = next, alpha
	}

	foreground := make([]float32, n*3)
	for i := 0; i < n; i++ {
		a := alpha[i]
		if a > foregroundEpsilon {
			for c := 0; c < 3; c++ {
				v := rgb[i*3+c] / a
				if v > 1 {
					v = 1
				}
				foreground[i*3+c] = v
			}
		} else {
			copy(foreground[i*3:i*3+3], rgb[i*3:i*3+3])
		}
	}
	return alpha, foreground, nil
}
