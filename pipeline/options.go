package pipeline

import (
	"log/slog"

	"github.com/crbuch/rembg-go/inference"
	"github.com/crbuch/rembg-go/matting"
	"github.com/crbuch/rembg-go/profiler"
)

// DefaultModel is the model used when the caller supplies neither a
// session nor a model name.
const DefaultModel = "u2net"

// Options configures one Remove call.
//
// AlphaMatting carries no implicit default: the zero value is false and
// callers enable it explicitly.
type Options struct {
	// Session is the model session to use. When nil, a session for Model
	// is created lazily and owned by the call.
	Session *inference.Session
	// Model names the registry entry used when Session is nil. Empty
	// means DefaultModel.
	Model string
	// SessionOptions are applied when the session is created lazily for
	// the call. Ignored when Session is set.
	SessionOptions []inference.SessionOption

	// AlphaMatting routes cutouts through the matting engine instead of
	// assigning the mask directly as the alpha channel.
	AlphaMatting bool
	// ForegroundThreshold seeds the trimap foreground (mask > threshold).
	ForegroundThreshold uint8
	// BackgroundThreshold seeds the trimap background (mask < threshold).
	BackgroundThreshold uint8
	// ErodeSize is the trimap structuring element side length.
	ErodeSize int

	// OnlyMask returns the (optionally post-processed) mask itself and
	// skips compositing entirely.
	OnlyMask bool
	// PostProcessMask cleans the mask (morphological open, Gaussian
	// smoothing, midpoint rethreshold) before any use.
	PostProcessMask bool
	// ForceBytes forces PNG bytes for every item regardless of its input
	// representation.
	ForceBytes bool

	// Engine overrides the matting engine. When nil and AlphaMatting is
	// set, a default engine is created for the call.
	Engine *matting.Engine
	// Logger replaces the pipeline's logger.
	Logger *slog.Logger
	// Profiler, when set, records per-phase timings across calls.
	Profiler *profiler.Profiler
}

// DefaultOptions returns options with the conventional trimap parameters
// for the u2net family. AlphaMatting stays false; callers opt in.
func DefaultOptions() Options {
	return Options{
		Model:               DefaultModel,
		ForegroundThreshold: 240,
		BackgroundThreshold: 10,
		ErodeSize:           10,
	}
}

func (o Options) matting() matting.Params {
	return matting.Params{
		ForegroundThreshold: o.ForegroundThreshold,
		BackgroundThreshold: o.BackgroundThreshold,
		ErodeSize:           o.ErodeSize,
	}
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}
