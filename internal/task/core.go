package task

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/SyedDaiam9101/headpose-service/internal/imageproc"
	"github.com/SyedDaiam9101/headpose-service/internal/inference"
	"github.com/SyedDaiam9101/headpose-service/internal/logger"
	"github.com/SyedDaiam9101/headpose-service/internal/metrics"
	"github.com/SyedDaiam9101/headpose-service/internal/model"
)

var closed = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

// slot is one enqueued region. region is what the caller passed; clip is
// the part of it inside the frame that was actually cropped.
type slot struct {
	region image.Rectangle
	clip   image.Rectangle
	input  []float32
}

// decodeFunc turns one slot's raw output into zero or more records
type decodeFunc[R Result] func(index int, s slot, data []float32) ([]R, error)

// Option configures a task
type Option func(*options)

type options struct {
	maxBatch   int
	log        *logger.Logger
	confidence float32
}

// WithMaxBatch caps the batch below the model's own limit
func WithMaxBatch(n int) Option {
	return func(o *options) { o.maxBatch = n }
}

func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithConfidence sets the face detection score threshold
func WithConfidence(c float32) Option {
	return func(o *options) { o.confidence = c }
}

func buildOptions(opts []Option) options {
	o := options{confidence: defaultConfidence}
	for _, fn := range opts {
		fn(&o)
	}
	if o.log == nil {
		o.log = logger.NewNopLogger()
	}
	return o
}

// core is the state machine shared by all task kinds
type core[R Result] struct {
	name       string
	engine     inference.Engine
	model      *model.Model
	limit      int
	batchLimit int
	decode     decodeFunc[R]
	log        *logger.Logger
	state      State
	pending    []slot
	req        *inference.Request
	buf        buffer[R]
	skipped    []SlotError
}

func newCore[R Result](name string, engine inference.Engine, decode decodeFunc[R], o options) core[R] {
	return core[R]{
		name:   name,
		engine: engine,
		limit:  o.maxBatch,
		decode: decode,
		log:    o.log.With("task", name),
	}
}

// LoadNetwork sets the model handle. Pending inputs were prepared for the
// previous model and are dropped.
func (c *core[R]) LoadNetwork(m *model.Model) error {
	if m == nil {
		return ErrNoModel
	}
	if c.state == Submitted {
		return ErrInFlight
	}
	c.model = m
	c.batchLimit = m.MaxBatch
	if c.limit > 0 && c.limit < c.batchLimit {
		c.batchLimit = c.limit
	}
	c.pending = nil
	c.state = Idle
	c.log.Debug("network loaded", "model", m.Name, "max_batch", c.batchLimit)
	return nil
}

func (c *core[R]) Name() string { return c.name }

func (c *core[R]) State() State { return c.state }

func (c *core[R]) Pending() int { return len(c.pending) }

func (c *core[R]) MaxBatch() int { return c.batchLimit }

// Enqueue crops region out of frame and buffers it for the next batch
func (c *core[R]) Enqueue(frame image.Image, region image.Rectangle) (err error) {
	defer func() { metrics.RecordTaskOp(c.name, "enqueue", err) }()

	if c.model == nil {
		return ErrNoModel
	}
	if c.state == Submitted {
		return ErrInFlight
	}
	if len(c.pending) >= c.batchLimit {
		return fmt.Errorf("%w: limit %d", ErrCapacityExceeded, c.batchLimit)
	}

	clip, input, err := imageproc.Prepare(frame, region, c.model)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRegion, err)
	}

	c.pending = append(c.pending, slot{region: region, clip: clip, input: input})
	c.state = Buffering
	return nil
}

// Submit hands every pending input to the engine as one batch. On error
// the pending inputs are kept so the caller may retry.
func (c *core[R]) Submit(ctx context.Context) (err error) {
	defer func() { metrics.RecordTaskOp(c.name, "submit", err) }()

	switch {
	case c.model == nil:
		return ErrNoModel
	case c.engine == nil:
		return ErrNoEngine
	case c.state == Submitted:
		return ErrInFlight
	case len(c.pending) == 0:
		return ErrEmptyBatch
	}

	batch := make([][]float32, len(c.pending))
	for i, s := range c.pending {
		batch[i] = s.input
	}

	req, err := c.engine.Submit(ctx, c.model, batch)
	if err != nil {
		c.log.Warn("submit rejected", "batch", len(batch), "error", err)
		return fmt.Errorf("%w: %w", ErrEngineRejected, err)
	}

	c.req = req
	c.state = Submitted
	metrics.RecordInferenceBatch(c.name, len(batch))
	c.log.Debug("batch submitted", "batch", len(batch))
	return nil
}

func (c *core[R]) Ready() <-chan struct{} {
	if c.req == nil {
		return closed
	}
	return c.req.Done()
}

// FetchResults decodes the completed batch into a fresh result buffer.
// On any error the previous buffer is left untouched.
func (c *core[R]) FetchResults() (err error) {
	defer func() { metrics.RecordTaskOp(c.name, "fetch", err) }()

	if c.state != Submitted || c.req == nil {
		return ErrPrematureFetch
	}

	outputs, err := c.req.Outputs()
	if errors.Is(err, inference.ErrNotReady) {
		return ErrNotReady
	}
	if err != nil {
		// the batch is gone; keep its inputs so the caller can resubmit
		c.req = nil
		c.state = Buffering
		c.log.Warn("batch failed", "batch", len(c.pending), "error", err)
		return fmt.Errorf("%w: %w", ErrEngineFailed, err)
	}

	var (
		results []R
		skipped []SlotError
	)
	for i, s := range c.pending {
		var derr error
		switch {
		case i >= len(outputs):
			derr = errors.New("missing output")
		case outputs[i].Err != nil:
			derr = outputs[i].Err
		default:
			var recs []R
			recs, derr = c.decode(i, s, outputs[i].Data)
			if derr == nil {
				results = append(results, recs...)
				continue
			}
		}
		skipped = append(skipped, SlotError{Slot: i, Region: s.region, Err: fmt.Errorf("%w: %w", ErrDecodeSkipped, derr)})
	}

	c.buf.replace(results)
	c.skipped = skipped
	c.pending = nil
	c.req = nil
	c.state = Idle

	metrics.RecordFetch(c.name, len(results), len(skipped))
	if len(skipped) > 0 {
		c.log.Debug("slots skipped", "skipped", len(skipped), "results", len(results))
	}
	return nil
}

func (c *core[R]) ResultsLength() int { return c.buf.len() }

// LocationResult borrows record index; see Ref for the validity rule
func (c *core[R]) LocationResult(index int) (Ref, error) {
	return c.buf.ref(index)
}

func (c *core[R]) Results() []Result { return c.buf.results() }

func (c *core[R]) Skipped() []SlotError {
	return append([]SlotError(nil), c.skipped...)
}

// ObserveOutput pushes the current results to sink
func (c *core[R]) ObserveOutput(ctx context.Context, sink Sink) {
	if sink == nil {
		return
	}
	if err := sink.Publish(ctx, c.name, c.Results()); err != nil {
		c.log.Warn("publish failed", "error", err)
	}
}
