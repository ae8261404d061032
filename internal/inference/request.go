// internal/inference/request.go
package inference

import "sync"

// Request is a single-assignment future for a submitted batch.
// Done is closed once the outputs are available. Resolve may be called
// any number of times; only the first call has effect.
type Request struct {
	done    chan struct{}
	once    sync.Once
	outputs []Output
	err     error
}

func NewRequest() *Request {
	return &Request{done: make(chan struct{})}
}

// Resolved returns an already completed request
func Resolved(outputs []Output, err error) *Request {
	r := NewRequest()
	r.Resolve(outputs, err)
	return r
}

// Resolve completes the request
func (r *Request) Resolve(outputs []Output, err error) {
	r.once.Do(func() {
		r.outputs = outputs
		r.err = err
		close(r.done)
	})
}

// Done is closed when the request has completed
func (r *Request) Done() <-chan struct{} {
	return r.done
}

// Ready reports whether the request has completed, without blocking
func (r *Request) Ready() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Outputs returns the resolved outputs, or ErrNotReady if the request is
// still in flight. It never blocks.
func (r *Request) Outputs() ([]Output, error) {
	if !r.Ready() {
		return nil, ErrNotReady
	}
	return r.outputs, r.err
}
