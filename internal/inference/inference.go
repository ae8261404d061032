// internal/inference/inference.go
package inference

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/SyedDaiam9101/headpose-service/internal/logger"
	"github.com/SyedDaiam9101/headpose-service/internal/metrics"
	"github.com/SyedDaiam9101/headpose-service/internal/model"
)

// session serializes runs against one ONNX session
type session struct {
	mu sync.Mutex
	s  *ort.DynamicAdvancedSession
}

// ONNX runs models through ONNX Runtime. Each loaded model gets one
// dynamic session that accepts variable batch sizes. Batches execute on
// their own goroutine; Submit returns as soon as the batch is accepted.
type ONNX struct {
	mu       sync.RWMutex
	sessions map[string]*session
	threads  int
	wg       sync.WaitGroup
	log      *logger.Logger
}

// ONNXOptions configures the runtime
type ONNXOptions struct {
	// SharedLibraryPath points at libonnxruntime; empty uses the default lookup
	SharedLibraryPath string
	// IntraOpThreads defaults to runtime.NumCPU()
	IntraOpThreads int
}

// NewONNX initializes the ONNX Runtime environment
func NewONNX(opts ONNXOptions, log *logger.Logger) (*ONNX, error) {
	if opts.SharedLibraryPath != "" {
		ort.SetSharedLibraryPath(opts.SharedLibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}

	threads := opts.IntraOpThreads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	return &ONNX{
		sessions: make(map[string]*session),
		threads:  threads,
		log:      log,
	}, nil
}

// Load creates the session for m. Loading the same path twice is a no-op.
func (e *ONNX) Load(m *model.Model) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.sessions[m.Path]; ok {
		return nil
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	if err := options.SetIntraOpNumThreads(e.threads); err != nil {
		return fmt.Errorf("failed to set intra-op threads: %w", err)
	}

	s, err := ort.NewDynamicAdvancedSession(m.Path, []string{m.Input}, m.OutputNames(), options)
	if err != nil {
		return fmt.Errorf("failed to create ONNX session for %s: %w", m.Name, err)
	}

	e.sessions[m.Path] = &session{s: s}
	e.log.Info("model loaded", "model", m.Name, "path", m.Path, "outputs", m.OutputNames())
	return nil
}

// Submit validates the batch and runs it asynchronously
func (e *ONNX) Submit(ctx context.Context, m *model.Model, batch [][]float32) (*Request, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateBatch(m, batch); err != nil {
		return nil, err
	}

	e.mu.RLock()
	s, ok := e.sessions[m.Path]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModelNotLoaded, m.Name)
	}

	req := NewRequest()
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		req.Resolve(s.run(m, batch))
	}()
	return req, nil
}

func (s *session) run(m *model.Model, batch [][]float32) ([]Output, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.s == nil {
		return nil, fmt.Errorf("inference session is nil")
	}

	n := int64(len(batch))
	data := make([]float32, 0, n*m.InputSize())
	for _, in := range batch {
		data = append(data, in...)
	}

	input, err := ort.NewTensor(ort.NewShape(n, m.Channels, m.Height, m.Width), data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer input.Destroy()

	outputs := make([]*ort.Tensor[float32], len(m.Outputs))
	values := make([]ort.ArbitraryTensor, len(m.Outputs))
	for i, o := range m.Outputs {
		dims := append([]int64{n}, o.Shape...)
		t, err := ort.NewEmptyTensor[float32](ort.NewShape(dims...))
		if err != nil {
			return nil, fmt.Errorf("failed to create output tensor %s: %w", o.Name, err)
		}
		defer t.Destroy()
		outputs[i] = t
		values[i] = t
	}

	timer := metrics.NewInferenceTimer(m.Name)
	err = s.s.Run([]ort.ArbitraryTensor{input}, values)
	timer.ObserveDuration()
	if err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	flat := make([][]float32, len(outputs))
	for i, t := range outputs {
		flat[i] = t.GetData()
	}
	return split(m, n, flat), nil
}

// split cuts batched output data, one flat slice per declared output,
// into per-slot vectors concatenated in declared output order
func split(m *model.Model, n int64, outputs [][]float32) []Output {
	slots := make([]Output, n)
	for i := int64(0); i < n; i++ {
		vec := make([]float32, 0, m.SlotSize())
		for j, o := range m.Outputs {
			size := o.Size()
			all := outputs[j]
			if int64(len(all)) < (i+1)*size {
				slots[i].Err = fmt.Errorf("output %s short for slot %d", o.Name, i)
				break
			}
			vec = append(vec, all[i*size:(i+1)*size]...)
		}
		if slots[i].Err == nil {
			slots[i].Data = vec
		}
	}
	return slots
}

// Close waits for in-flight batches and releases sessions and the environment
func (e *ONNX) Close() error {
	e.wg.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()

	var firstErr error
	for path, s := range e.sessions {
		s.mu.Lock()
		if s.s != nil {
			if err := s.s.Destroy(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("failed to destroy session %s: %w", path, err)
			}
			s.s = nil
		}
		s.mu.Unlock()
	}
	e.sessions = map[string]*session{}

	if err := ort.DestroyEnvironment(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func validateBatch(m *model.Model, batch [][]float32) error {
	if m == nil {
		return ErrModelNotLoaded
	}
	if len(batch) == 0 {
		return ErrEmptyBatch
	}
	if len(batch) > m.MaxBatch {
		return fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(batch), m.MaxBatch)
	}
	want := m.InputSize()
	for i, in := range batch {
		if int64(len(in)) != want {
			return fmt.Errorf("%w: slot %d got %d, expected %d", ErrInputSize, i, len(in), want)
		}
	}
	return nil
}

// Ensure ONNX implements Engine at compile time
var _ Engine = (*ONNX)(nil)
