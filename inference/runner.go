package inference

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// Runner executes forward passes over a loaded graph. The session drives
// exactly one Runner; separating the interface keeps the batching and
// lifecycle discipline testable without the native runtime.
type Runner interface {
	// Run executes one forward pass. The input is a flat
	// [1, 3, size, size] tensor; the result is the flat output map.
	Run(ctx context.Context, input []float32) ([]float32, error)
	// Close releases backend resources.
	Close() error
}

// RunnerFactory builds a Runner from serialized model bytes, walking the
// provider preference list until one backend accepts the graph.
type RunnerFactory func(model []byte, cfg ModelConfig, providers []Provider) (Runner, error)

var ortInitOnce sync.Once
var ortInitErr error

// initORT prepares the native ONNX Runtime environment once per process.
func initORT() error {
	ortInitOnce.Do(func() {
		if ort.IsInitialized() {
			return
		}
		ort.SetSharedLibraryPath(SharedLibPath())
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

// ortRunner wraps an ONNX Runtime session with preallocated input and
// output tensors. Forward passes are serialized with a mutex because the
// tensors are shared; the pipeline's cooperative scheduling never issues
// overlapping passes anyway.
type ortRunner struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

// NewORTRunner builds an ONNX Runtime backed runner from model bytes.
//
// Providers are tried in preference order: the first backend that accepts
// the graph wins, and CPU (no execution provider appended) acts as the
// terminal fallback when it is present in the list.
func NewORTRunner(model []byte, cfg ModelConfig, providers []Provider) (Runner, error) {
	if err := initORT(); err != nil {
		return nil, errors.Wrap(err, "initializing onnxruntime")
	}
	if len(providers) == 0 {
		providers = []Provider{CPUProvider}
	}

	var lastErr error
	for _, provider := range providers {
		runner, err := buildORTSession(model, cfg, provider)
		if err == nil {
			return runner, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func buildORTSession(model []byte, cfg ModelConfig, provider Provider) (*ortRunner, error) {
	size := int64(cfg.TargetSize)
	input, err := ort.NewTensor(ort.NewShape(1, 3, size, size),
		make([]float32, 3*size*size))
	if err != nil {
		return nil, errors.Wrap(err, "creating input tensor")
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1, size, size))
	if err != nil {
		input.Destroy()
		return nil, errors.Wrap(err, "creating output tensor")
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errors.Wrap(err, "creating session options")
	}
	defer options.Destroy()
	options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended)

	switch provider {
	case CoreMLProvider:
		err = options.AppendExecutionProviderCoreML(0)
	case CUDAProvider:
		var cuda *ort.CUDAProviderOptions
		cuda, err = ort.NewCUDAProviderOptions()
		if err == nil {
			defer cuda.Destroy()
			err = options.AppendExecutionProviderCUDA(cuda)
		}
	case OpenVINOProvider:
		err = options.AppendExecutionProviderOpenVINO(map[string]string{
			"device_type": "CPU",
			"precision":   "FP32",
		})
	}
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errors.Wrapf(err, "enabling %s provider", provider)
	}

	session, err := ort.NewAdvancedSessionWithONNXData(
		model,
		[]string{cfg.InputName},
		[]string{cfg.OutputName},
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{output},
		options,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errors.Wrapf(err, "building graph on %s", provider)
	}

	return &ortRunner{session: session, input: input, output: output}, nil
}

func (r *ortRunner) Run(ctx context.Context, input []float32) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	data := r.input.GetData()
	if len(input) != len(data) {
		return nil, errors.Errorf("input has %d elements, tensor holds %d", len(input), len(data))
	}
	copy(data, input)

	if err := r.session.Run(); err != nil {
		return nil, errors.Wrap(err, "running inference")
	}

	out := r.output.GetData()
	result := make([]float32, len(out))
	copy(result, out)
	return result, nil
}

func (r *ortRunner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.input != nil {
		r.input.Destroy()
		r.input = nil
	}
	if r.output != nil {
		r.output.Destroy()
		r.output = nil
	}
	if r.session != nil {
		if err := r.session.Destroy(); err != nil {
			return errors.Wrap(err, "destroying session")
		}
		r.session = nil
	}
	return nil
}
