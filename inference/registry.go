package inference

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/crbuch/rembg-go/images"
)

// PostprocessFunc decodes one raw model output into one or more
// single-channel masks at the model's native resolution. Most
// segmentation models emit exactly one mask; multi-instance models may
// emit several.
type PostprocessFunc func(raw []float32, width, height int) ([]*images.Buffer, error)

// ModelConfig is the full description of one segmentation model: where
// its bytes live, how input pixels become its tensor layout, and how its
// output becomes a mask. One session type parameterized by a ModelConfig
// replaces per-model subclassing.
type ModelConfig struct {
	// Name is the registry identifier of the model.
	Name string
	// URL is the location of the serialized model bytes.
	URL string
	// TargetSize is the square side length of the model input.
	TargetSize int
	// Mean is the per-channel mean subtracted during standardization.
	Mean [3]float32
	// Std is the per-channel divisor applied during standardization.
	Std [3]float32
	// InputName is the input node name expected by the graph.
	InputName string
	// OutputName is the output node name read after a forward pass.
	OutputName string
	// CompatPatch enables the serialized-graph compatibility patch before
	// the graph is built. See PatchGraph.
	CompatPatch bool
	// Postprocess decodes the raw output tensor into masks.
	Postprocess PostprocessFunc
}

var registry = map[string]ModelConfig{}

// Register adds a model configuration to the registry, replacing any
// existing entry with the same name.
func Register(cfg ModelConfig) {
	registry[cfg.Name] = cfg
}

// Lookup returns the configuration registered under name.
func Lookup(name string) (ModelConfig, error) {
	cfg, ok := registry[name]
	if !ok {
		return ModelConfig{}, errors.Errorf("unknown model %q", name)
	}
	return cfg, nil
}

// Names returns the registered model names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MinMaxMask rescales a raw saliency map to the full [0, 255] range and
// returns it as a single grayscale mask. A constant map rescales to all
// zeros rather than dividing by zero.
func MinMaxMask(raw []float32, width, height int) ([]*images.Buffer, error) {
	if len(raw) < width*height {
		return nil, errors.Errorf("output has %d elements, need %d", len(raw), width*height)
	}
	raw = raw[:width*height]

	lo, hi := raw[0], raw[0]
	for _, v := range raw[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	mask, err := images.NewBuffer(width, height, images.ModeGray)
	if err != nil {
		return nil, err
	}
	if hi > lo {
		scale := 255 / (hi - lo)
		for i, v := range raw {
			mask.Pix[i] = clampMaskValue((v - lo) * scale)
		}
	}
	return []*images.Buffer{mask}, nil
}

func clampMaskValue(v float32) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}

func init() {
	// The u2net family standardizes with ImageNet statistics at 320px; the
	// isnet general-use model runs at 1024px with a symmetric half/one
	// normalization. All of them decode through min/max rescaling of the
	// first output map.
	Register(ModelConfig{
		Name:        "u2net",
		URL:         "https://github.com/danielgatis/rembg/releases/download/v0.0.0/u2net.onnx",
		TargetSize:  320,
		Mean:        [3]float32{0.485, 0.456, 0.406},
		Std:         [3]float32{0.229, 0.224, 0.225},
		InputName:   "input.1",
		OutputName:  "1959",
		CompatPatch: true,
		Postprocess: MinMaxMask,
	})
	Register(ModelConfig{
		Name:        "u2netp",
		URL:         "https://github.com/danielgatis/rembg/releases/download/v0.0.0/u2netp.onnx",
		TargetSize:  320,
		Mean:        [3]float32{0.485, 0.456, 0.406},
		Std:         [3]float32{0.229, 0.224, 0.225},
		InputName:   "input.1",
		OutputName:  "1959",
		CompatPatch: true,
		Postprocess: MinMaxMask,
	})
	Register(ModelConfig{
		Name:        "isnet-general-use",
		URL:         "https://github.com/danielgatis/rembg/releases/download/v0.0.0/isnet-general-use.onnx",
		TargetSize:  1024,
		Mean:        [3]float32{0.5, 0.5, 0.5},
		Std:         [3]float32{1, 1, 1},
		InputName:   "input",
		OutputName:  "output",
		Postprocess: MinMaxMask,
	})
}
