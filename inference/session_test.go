package inference

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crbuch/rembg-go/images"
)

// fakeRunner echoes a gradient scaled by the mean of its input, so tests
// can tie each output back to the input that produced it.
type fakeRunner struct {
	mu     sync.Mutex
	means  []float32
	closed bool
}

func (r *fakeRunner) Run(ctx context.Context, input []float32) ([]float32, error) {
	var sum float32
	for _, v := range input {
		sum += v
	}
	mean := sum / float32(len(input))

	r.mu.Lock()
	r.means = append(r.means, mean)
	r.mu.Unlock()

	// One plane of the input size, a ramp so MinMaxMask has a range.
	plane := len(input) / 3
	out := make([]float32, plane)
	for i := range out {
		out[i] = float32(i)
	}
	return out, nil
}

func (r *fakeRunner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func registerTestModel(t *testing.T, size int) string {
	t.Helper()
	name := fmt.Sprintf("test-%s-%d", t.Name(), size)
	Register(ModelConfig{
		Name:        name,
		TargetSize:  size,
		Mean:        [3]float32{0, 0, 0},
		Std:         [3]float32{1, 1, 1},
		InputName:   "input",
		OutputName:  "output",
		Postprocess: MinMaxMask,
	})
	return name
}

func solidImage(t *testing.T, w, h int, fill uint8) *images.Buffer {
	t.Helper()
	b, err := images.NewBuffer(w, h, images.ModeRGB)
	require.NoError(t, err)
	for i := range b.Pix {
		b.Pix[i] = fill
	}
	return b
}

func TestNewSessionUnknownModel(t *testing.T) {
	_, err := NewSession("no-such-model")
	assert.Error(t, err)
}

func TestPredictBatchEmpty(t *testing.T) {
	name := registerTestModel(t, 16)
	s, err := NewSession(name,
		WithModelBytes([]byte("model")),
		WithRunnerFactory(func([]byte, ModelConfig, []Provider) (Runner, error) {
			return &fakeRunner{}, nil
		}))
	require.NoError(t, err)

	_, err = s.PredictBatch(context.Background(), nil)
	var emptyErr *EmptyBatchError
	assert.ErrorAs(t, err, &emptyErr, "a zero-length batch is rejected before any work runs")
	assert.Equal(t, StateUninitialized, s.State(), "rejecting an empty batch must not initialize")
}

func TestPredictBatchOrderAndDimensions(t *testing.T) {
	name := registerTestModel(t, 16)
	runner := &fakeRunner{}
	s, err := NewSession(name,
		WithModelBytes([]byte("model")),
		WithRunnerFactory(func([]byte, ModelConfig, []Provider) (Runner, error) {
			return runner, nil
		}))
	require.NoError(t, err)

	// Distinct fills produce distinct input means; distinct dimensions tie
	// result i back to input i.
	batch := []*images.Buffer{
		solidImage(t, 10, 20, 30),
		solidImage(t, 7, 5, 200),
		solidImage(t, 16, 16, 120),
	}
	results, err := s.PredictBatch(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i, masks := range results {
		require.Len(t, masks, 1)
		assert.Equal(t, batch[i].Width, masks[0].Width, "mask %d keeps its source width", i)
		assert.Equal(t, batch[i].Height, masks[0].Height, "mask %d keeps its source height", i)
		assert.Equal(t, images.ModeGray, masks[0].Mode)
	}

	require.Len(t, runner.means, 3, "one forward pass per input, no skips")
	assert.InDelta(t, 30.0/255, float64(runner.means[0]), 1e-3, "pass 0 saw the first image")
	assert.InDelta(t, 200.0/255, float64(runner.means[1]), 1e-3, "pass 1 saw the second image")
	assert.InDelta(t, 120.0/255, float64(runner.means[2]), 1e-3, "pass 2 saw the third image")
}

func TestPredictImplicitInitialize(t *testing.T) {
	name := registerTestModel(t, 16)
	s, err := NewSession(name,
		WithModelBytes([]byte("model")),
		WithRunnerFactory(func([]byte, ModelConfig, []Provider) (Runner, error) {
			return &fakeRunner{}, nil
		}))
	require.NoError(t, err)
	require.Equal(t, StateUninitialized, s.State())

	masks, err := s.Predict(context.Background(), solidImage(t, 8, 8, 50))
	require.NoError(t, err)
	require.Len(t, masks, 1)
	assert.Equal(t, StateReady, s.State(), "the first predict initializes the session")
}

func TestInitializeSingleFlight(t *testing.T) {
	name := registerTestModel(t, 16)
	var factoryCalls int32
	s, err := NewSession(name,
		WithModelBytes([]byte("model")),
		WithRunnerFactory(func([]byte, ModelConfig, []Provider) (Runner, error) {
			atomic.AddInt32(&factoryCalls, 1)
			time.Sleep(20 * time.Millisecond)
			return &fakeRunner{}, nil
		}))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.Initialize(context.Background())
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "caller %d attaches to the shared load", i)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&factoryCalls), "the graph is built exactly once")
	assert.Equal(t, StateReady, s.State())
}

func TestInitializeFailureIsPermanent(t *testing.T) {
	name := registerTestModel(t, 16)
	var factoryCalls int32
	s, err := NewSession(name,
		WithModelBytes([]byte("model")),
		WithRunnerFactory(func([]byte, ModelConfig, []Provider) (Runner, error) {
			atomic.AddInt32(&factoryCalls, 1)
			return nil, errors.New("no backend available")
		}))
	require.NoError(t, err)

	err1 := s.Initialize(context.Background())
	require.Error(t, err1)
	var loadErr *ModelLoadError
	assert.ErrorAs(t, err1, &loadErr, "load failures surface as a typed model load error")
	assert.Equal(t, name, loadErr.Model)
	assert.Equal(t, StateFailed, s.State())

	err2 := s.Initialize(context.Background())
	assert.Same(t, err1, err2, "a failed session keeps returning the original error")
	assert.Equal(t, int32(1), atomic.LoadInt32(&factoryCalls), "failure is never retried")

	_, err3 := s.Predict(context.Background(), solidImage(t, 4, 4, 10))
	assert.ErrorAs(t, err3, &loadErr, "predict on a failed session reports the load error")
}

func TestInitializeAppliesCompatPatch(t *testing.T) {
	name := fmt.Sprintf("test-%s", t.Name())
	Register(ModelConfig{
		Name:        name,
		TargetSize:  16,
		Mean:        [3]float32{0, 0, 0},
		Std:         [3]float32{1, 1, 1},
		CompatPatch: true,
		Postprocess: MinMaxMask,
	})

	model := append([]byte("head"), compatPattern...)
	model = append(model, "tail"...)

	var seen []byte
	s, err := NewSession(name,
		WithModelBytes(model),
		WithRunnerFactory(func(m []byte, _ ModelConfig, _ []Provider) (Runner, error) {
			seen = m
			return &fakeRunner{}, nil
		}))
	require.NoError(t, err)
	require.NoError(t, s.Initialize(context.Background()))

	want, sites := PatchGraph(model)
	require.Equal(t, 1, sites)
	assert.Equal(t, want, seen, "the factory receives the patched bytes")
}

func TestNormalizeLayout(t *testing.T) {
	name := registerTestModel(t, 2)
	s, err := NewSession(name,
		WithModelBytes([]byte("model")),
		WithRunnerFactory(func([]byte, ModelConfig, []Provider) (Runner, error) {
			return &fakeRunner{}, nil
		}))
	require.NoError(t, err)

	img, err := images.NewBuffer(2, 2, images.ModeRGB)
	require.NoError(t, err)
	copy(img.Pix, []uint8{
		255, 0, 0 /**/, 0, 255, 0,
		0, 0, 255 /**/, 255, 255, 255,
	})

	out, err := s.Normalize(img)
	require.NoError(t, err)
	require.Len(t, out, 3*2*2, "one float per channel per pixel plus the batch dimension")

	// CHW: the red plane first, then green, then blue.
	assert.Equal(t, []float32{1, 0, 0, 1}, out[0:4], "red plane")
	assert.Equal(t, []float32{0, 1, 0, 1}, out[4:8], "green plane")
	assert.Equal(t, []float32{0, 0, 1, 1}, out[8:12], "blue plane")
}

func TestSessionClose(t *testing.T) {
	name := registerTestModel(t, 16)
	runner := &fakeRunner{}
	s, err := NewSession(name,
		WithModelBytes([]byte("model")),
		WithRunnerFactory(func([]byte, ModelConfig, []Provider) (Runner, error) {
			return runner, nil
		}))
	require.NoError(t, err)
	require.NoError(t, s.Initialize(context.Background()))
	require.NoError(t, s.Close())
	assert.True(t, runner.closed)
	assert.NoError(t, s.Close(), "closing twice is harmless")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "uninitialized", StateUninitialized.String())
	assert.Equal(t, "loading", StateLoading.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "failed", StateFailed.String())
}
