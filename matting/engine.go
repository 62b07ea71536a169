package matting

import (
	"log/slog"

	"github.com/pkg/errors"

	"github.com/crbuch/rembg-go/images"
)

// Params are the trimap construction parameters for one cutout.
type Params struct {
	// ForegroundThreshold seeds foreground where mask > threshold.
	ForegroundThreshold uint8
	// BackgroundThreshold seeds background where mask < threshold.
	BackgroundThreshold uint8
	// ErodeSize is the structuring element side for both erosions.
	ErodeSize int
}

// Engine turns an image and a coarse mask into an RGBA cutout with an
// estimated alpha matte.
//
// When the estimator fails, the engine logs the failure and falls back to
// the raw mask as the alpha channel, with no trimap and no erosion, so
// matting never degrades a result below plain-cutout quality.
type Engine struct {
	estimator Estimator
	logger    *slog.Logger
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithEstimator replaces the alpha estimator.
func WithEstimator(est Estimator) EngineOption {
	return func(e *Engine) { e.estimator = est }
}

// WithEngineLogger replaces the engine's logger.
func WithEngineLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates an engine with the propagation estimator by default.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		estimator: NewPropagationEstimator(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Cutout composites an RGBA cutout from an image and its mask.
//
// The mask and image must share dimensions. Alpha is estimated through
// the trimap and the configured estimator; foreground color follows the
// estimator's documented policy. Output channels are the estimated
// values scaled by 255, clamped to [0, 255], truncated to integers.
//
// Arguments:
//   - img: The source image.
//   - mask: The single-channel coarse mask, same dimensions as img.
//   - p: Trimap parameters.
//
// Returns:
//   - *images.Buffer: The RGBA cutout.
//   - error: An error only for dimension mismatches; estimator failures
//     are recovered via the raw-mask fallback.
func (e *Engine) Cutout(img *images.Buffer, mask *images.Buffer, p Params) (*images.Buffer, error) {
	if img.Width != mask.Width || img.Height != mask.Height {
		return nil, errors.Errorf("mask %dx%d does not match image %dx%d",
			mask.Width, mask.Height, img.Width, img.Height)
	}

	trimap := Trimap(mask, p.ForegroundThreshold, p.BackgroundThreshold, p.ErodeSize)
	alpha, foreground, err := e.estimator.Estimate(img, trimap)
	if err != nil {
		e.logger.Warn("matting estimation failed, falling back to raw mask", "error", err)
		return RawMaskCutout(img, mask)
	}

	w, h := img.Width, img.Height
	out, err := images.NewBuffer(w, h, images.ModeRGBA)
	if err != nil {
		return nil, err
	}
	for i := 0; i < w*h; i++ {
		out.Pix[i*4] = clampChannel(foreground[i*3] * 255)
		out.Pix[i*4+1] = clampChannel(foreground[i*3+1] * 255)
		out.Pix[i*4+2] = clampChannel(foreground[i*3+2] * 255)
		out.Pix[i*4+3] = clampChannel(alpha[i] * 255)
	}
	return out, nil
}

// RawMaskCutout composites the plain cutout: RGB from the original
// pixels, alpha taken directly from the mask.
func RawMaskCutout(img *images.Buffer, mask *images.Buffer) (*images.Buffer, error) {
	if img.Width != mask.Width || img.Height != mask.Height {
		return nil, errors.Errorf("mask %dx%d does not match image %dx%d",
			mask.Width, mask.Height, img.Width, img.Height)
	}
	rgb, err := img.Convert(images.ModeRGB)
	if err != nil {
		return nil, err
	}
	out, err := images.NewBuffer(img.Width, img.Height, images.ModeRGBA)
	if err != nil {
		return nil, err
	}
	for i := 0; i < img.Width*img.Height; i++ {
		out.Pix[i*4] = rgb.Pix[i*3]
		out.Pix[i*4+1] = rgb.Pix[i*3+1]
		out.Pix[i*4+2] = rgb.Pix[i*3+2]
		out.Pix[i*4+3] = mask.Pix[i]
	}
	return out, nil
}

func clampChannel(v float32) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}
