package inference

import (
	"context"
	"log/slog"
	"sync"

	"github.com/segmentio/ksuid"

	"github.com/crbuch/rembg-go/images"
)

// State is the lifecycle state of a Session. Transitions happen exactly
// once and never revert: Uninitialized -> Loading -> Ready or Failed.
type State int32

const (
	// StateUninitialized means Initialize has not been called.
	StateUninitialized State = iota
	// StateLoading means one initialize operation is in flight.
	StateLoading
	// StateReady means the graph is built and predictions may run.
	StateReady
	// StateFailed means loading failed; the session is unusable.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Session owns one loaded segmentation model: it resolves the model
// bytes, builds the executable graph on the preferred backend, and runs
// single or batched predictions.
//
// A session initializes at most once. Concurrent Initialize calls attach
// to the same in-flight operation, and Predict before Ready triggers an
// implicit initialize shared the same way. Once Ready the session may be
// shared across concurrent read-only Predict calls.
type Session struct {
	id        string
	cfg       ModelConfig
	providers []Provider
	store     *Store
	model     []byte
	factory   RunnerFactory
	progress  ProgressFunc
	logger    *slog.Logger

	mu       sync.Mutex
	state    State
	inflight chan struct{}
	runner   Runner
	initErr  error
}

// SessionOption customizes a Session.
type SessionOption func(*Session)

// WithStore sets the model byte store. Required unless WithModelBytes is
// supplied.
func WithStore(store *Store) SessionOption {
	return func(s *Session) { s.store = store }
}

// WithModelBytes supplies the serialized model directly, bypassing the
// store. Useful for embedded models and tests.
func WithModelBytes(model []byte) SessionOption {
	return func(s *Session) { s.model = model }
}

// WithProviders overrides the platform-detected provider preference list.
func WithProviders(providers []Provider) SessionOption {
	return func(s *Session) { s.providers = providers }
}

// WithRunnerFactory overrides how the executable graph is built.
func WithRunnerFactory(factory RunnerFactory) SessionOption {
	return func(s *Session) { s.factory = factory }
}

// WithProgress sets the fetch progress callback used during initialize.
func WithProgress(progress ProgressFunc) SessionOption {
	return func(s *Session) { s.progress = progress }
}

// WithLogger replaces the session's logger.
func WithLogger(l *slog.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// NewSession creates a session for a registered model name.
//
// Arguments:
//   - name: The registry name of the model, e.g. "u2net".
//   - opts: Session options.
//
// Returns:
//   - *Session: The uninitialized session.
//   - error: An error if the model name is not registered.
func NewSession(name string, opts ...SessionOption) (*Session, error) {
	cfg, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	s := &Session{
		id:        ksuid.New().String(),
		cfg:       cfg,
		providers: DetectProviders(),
		factory:   NewORTRunner,
		logger:    slog.Default(),
		state:     StateUninitialized,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Model returns the registry name of the session's model.
func (s *Session) Model() string { return s.cfg.Name }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Initialize resolves the model bytes, applies the compatibility patch
// when the registry entry asks for it, and builds the executable graph.
//
// A second call while one is in flight waits for that operation instead
// of starting a duplicate load; a call after success is a no-op; a call
// after failure returns the original load error.
func (s *Session) Initialize(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateReady:
		s.mu.Unlock()
		return nil
	case StateFailed:
		err := s.initErr
		s.mu.Unlock()
		return err
	case StateLoading:
		done := s.inflight
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		s.mu.Lock()
		err := s.initErr
		s.mu.Unlock()
		return err
	}

	done := make(chan struct{})
	s.state = StateLoading
	s.inflight = done
	s.mu.Unlock()

	runner, err := s.load(ctx)

	s.mu.Lock()
	if err != nil {
		s.state = StateFailed
		s.initErr = &ModelLoadError{Model: s.cfg.Name, Err: err}
		s.logger.Error("model load failed", "session", s.id, "model", s.cfg.Name, "error", err)
	} else {
		s.state = StateReady
		s.runner = runner
		s.logger.Info("model ready", "session", s.id, "model", s.cfg.Name)
	}
	initErr := s.initErr
	close(done)
	s.mu.Unlock()
	return initErr
}

func (s *Session) load(ctx context.Context) (Runner, error) {
	model := s.model
	if model == nil {
		if s.store == nil {
			s.store = NewStore(defaultCacheDir())
		}
		var err error
		model, err = s.store.Resolve(ctx, s.cfg, s.progress)
		if err != nil {
			return nil, err
		}
	}
	if s.cfg.CompatPatch {
		patched, sites := PatchGraph(model)
		if sites > 0 {
			s.logger.Debug("applied graph compatibility patch",
				"model", s.cfg.Name, "sites", sites)
		}
		model = patched
	}
	return s.factory(model, s.cfg, s.providers)
}

// Close releases the runner's backend resources. The lifecycle state is
// unchanged; a closed session must not be used again.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runner == nil {
		return nil
	}
	err := s.runner.Close()
	s.runner = nil
	return err
}

// Normalize converts an image into the model's input tensor layout:
// Lanczos3 resize to the target size, RGB conversion, scaling to [0, 1],
// per-channel standardization, HWC to CHW transposition, and a leading
// batch dimension.
//
// Returns the flat [1, 3, size, size] tensor data.
func (s *Session) Normalize(img *images.Buffer) ([]float32, error) {
	size := s.cfg.TargetSize
	rgb, err := img.Resize(size, size).Convert(images.ModeRGB)
	if err != nil {
		return nil, err
	}

	plane := size * size
	out := make([]float32, 3*plane)
	for p := 0; p < plane; p++ {
		for c := 0; c < 3; c++ {
			v := float32(rgb.Pix[p*3+c]) / 255
			out[c*plane+p] = (v - s.cfg.Mean[c]) / s.cfg.Std[c]
		}
	}
	return out, nil
}

// Predict runs one forward pass over a single image and returns the
// resulting masks resized back to the image's original dimensions.
//
// Calling Predict before the session is Ready triggers an implicit
// initialize, shared across concurrent callers.
func (s *Session) Predict(ctx context.Context, img *images.Buffer) ([]*images.Buffer, error) {
	results, err := s.PredictBatch(ctx, []*images.Buffer{img})
	if err != nil {
		return nil, err
	}
	return results[0], nil
}

// PredictBatch runs the whole batch through the model in three strict
// stages: every image is normalized first, then forward passes run in
// input order with no reordering or interleaving, then every output is
// decoded. Index i of the result always corresponds to index i of the
// input.
//
// Arguments:
//   - ctx: Cancels waiting on initialization; an in-flight forward pass
//     is never aborted mid-run.
//   - imgs: The batch of decoded images, at least one.
//
// Returns:
//   - [][]*images.Buffer: Per input, the masks resized to that input's
//     dimensions.
//   - error: EmptyBatchError for a zero-length batch, a ModelLoadError if
//     the implicit initialize fails, or the first inference failure.
func (s *Session) PredictBatch(ctx context.Context, imgs []*images.Buffer) ([][]*images.Buffer, error) {
	if len(imgs) == 0 {
		return nil, &EmptyBatchError{}
	}
	if err := s.Initialize(ctx); err != nil {
		return nil, err
	}

	inputs := make([][]float32, len(imgs))
	for i, img := range imgs {
		input, err := s.Normalize(img)
		if err != nil {
			return nil, err
		}
		inputs[i] = input
	}

	s.mu.Lock()
	runner := s.runner
	s.mu.Unlock()

	raws := make([][]float32, len(inputs))
	for i, input := range inputs {
		raw, err := runner.Run(ctx, input)
		if err != nil {
			return nil, err
		}
		raws[i] = raw
	}

	size := s.cfg.TargetSize
	results := make([][]*images.Buffer, len(raws))
	for i, raw := range raws {
		masks, err := s.cfg.Postprocess(raw, size, size)
		if err != nil {
			return nil, err
		}
		resized := make([]*images.Buffer, len(masks))
		for j, mask := range masks {
			resized[j] = mask.Resize(imgs[i].Width, imgs[i].Height)
		}
		results[i] = resized
	}
	return results, nil
}
