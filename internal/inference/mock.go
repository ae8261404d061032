// internal/inference/mock.go
package inference

import (
	"context"
	"fmt"
	"sync"

	"github.com/SyedDaiam9101/headpose-service/internal/model"
)

// MockEngine is an Engine for tests and --mock runs. It returns
// deterministic outputs without requiring the ONNX shared library.
//
// Without scripted responses every slot resolves to DefaultOutput.
// Script queues per-call responses consumed in order. Hold keeps requests
// pending until Release, which lets callers observe the in-flight state.
type MockEngine struct {
	mu sync.Mutex

	// DefaultOutput is returned for every slot when nothing is scripted
	DefaultOutput []float32
	// ShouldError makes Submit reject the batch
	ShouldError bool
	// ErrorMessage is the rejection message when ShouldError is true
	ErrorMessage string
	// RunError, when set, resolves requests with this error
	RunError error
	// CallCount counts accepted and rejected Submit calls
	CallCount int
	// Batches records every accepted batch
	Batches [][][]float32

	script [][]Output
	hold   bool
	held   []heldRequest
}

type heldRequest struct {
	req     *Request
	outputs []Output
	err     error
}

// NewMock creates a MockEngine whose default slot output is [0.1, 0.2, 0.3]
func NewMock() *MockEngine {
	return &MockEngine{DefaultOutput: []float32{0.1, 0.2, 0.3}}
}

// NewMockWithOutput creates a MockEngine with a custom slot output
func NewMockWithOutput(output []float32) *MockEngine {
	return &MockEngine{DefaultOutput: output}
}

// Submit validates the batch like the real engine and resolves it from
// the script or the default output.
func (m *MockEngine) Submit(ctx context.Context, md *model.Model, batch [][]float32) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallCount++

	if m.ShouldError {
		if m.ErrorMessage != "" {
			return nil, fmt.Errorf("%s", m.ErrorMessage)
		}
		return nil, fmt.Errorf("mock inference error")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateBatch(md, batch); err != nil {
		return nil, err
	}

	m.Batches = append(m.Batches, batch)

	var outputs []Output
	if len(m.script) > 0 {
		outputs = m.script[0]
		m.script = m.script[1:]
	} else {
		outputs = make([]Output, len(batch))
		for i := range outputs {
			outputs[i] = Output{Data: append([]float32(nil), m.DefaultOutput...)}
		}
	}

	req := NewRequest()
	if m.hold {
		m.held = append(m.held, heldRequest{req: req, outputs: outputs, err: m.RunError})
		return req, nil
	}
	req.Resolve(outputs, m.RunError)
	return req, nil
}

// Script queues the outputs for subsequent Submit calls, one slice per call
func (m *MockEngine) Script(calls ...[]Output) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, calls...)
}

// Hold leaves subsequent requests unresolved until Release
func (m *MockEngine) Hold() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hold = true
}

// Release resolves every held request and stops holding
func (m *MockEngine) Release() {
	m.mu.Lock()
	held := m.held
	m.held = nil
	m.hold = false
	m.mu.Unlock()

	for _, h := range held {
		h.req.Resolve(h.outputs, h.err)
	}
}

// SetError configures the mock to reject the next batches
func (m *MockEngine) SetError(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ShouldError = true
	m.ErrorMessage = msg
}

// ClearError clears any configured rejection
func (m *MockEngine) ClearError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ShouldError = false
	m.ErrorMessage = ""
}

// Calls returns CallCount under the lock
func (m *MockEngine) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}

// Close is a no-op for the mock implementation
func (m *MockEngine) Close() error {
	return nil
}

// Ensure MockEngine implements Engine at compile time
var _ Engine = (*MockEngine)(nil)
