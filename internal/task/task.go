// Package task implements inference tasks: stateful units that buffer
// image regions, submit them to an engine as one batch, and decode the
// engine outputs into result records correlated with their regions.
//
// A task is driven by a single caller:
//
//	Enqueue... → Submit → <-Ready() → FetchResults → query results
//
// Tasks do no locking and never block. Submit dispatches the batch;
// Ready exposes the engine's completion so the caller decides how to
// wait; FetchResults only succeeds once that completion has happened.
package task

import (
	"context"
	"errors"
	"image"
)

var (
	// ErrNoModel is returned when no model has been loaded
	ErrNoModel = errors.New("model not loaded")
	// ErrNoEngine is returned by Submit when the task has no engine
	ErrNoEngine = errors.New("engine not configured")
	// ErrCapacityExceeded is returned by Enqueue at the max batch size
	ErrCapacityExceeded = errors.New("batch capacity exceeded")
	// ErrInvalidRegion is returned by Enqueue for regions outside the frame
	ErrInvalidRegion = errors.New("invalid region")
	// ErrEmptyBatch is returned by Submit with nothing enqueued
	ErrEmptyBatch = errors.New("no pending inputs")
	// ErrInFlight is returned while a submitted batch awaits fetch
	ErrInFlight = errors.New("batch already submitted")
	// ErrEngineRejected wraps engine errors from Submit
	ErrEngineRejected = errors.New("engine rejected batch")
	// ErrPrematureFetch is returned by FetchResults without a submitted batch
	ErrPrematureFetch = errors.New("fetch without submitted batch")
	// ErrNotReady is returned by FetchResults while the engine is still running
	ErrNotReady = errors.New("engine output not ready")
	// ErrEngineFailed wraps an engine error surfaced at fetch time
	ErrEngineFailed = errors.New("engine failed batch")
	// ErrOutOfRange is returned for result indices outside [0, length)
	ErrOutOfRange = errors.New("result index out of range")
	// ErrStaleResult is returned by a Ref used after the next fetch
	ErrStaleResult = errors.New("result reference invalidated by fetch")
	// ErrDecodeSkipped marks a slot whose output could not be decoded
	ErrDecodeSkipped = errors.New("slot output not decoded")
)

// State is the lifecycle position of a task
type State int

const (
	Idle State = iota
	Buffering
	Submitted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Buffering:
		return "buffering"
	case Submitted:
		return "submitted"
	default:
		return "unknown"
	}
}

// Sink receives a task's results. Publish is a one-way push; tasks log
// and otherwise ignore its error.
type Sink interface {
	Publish(ctx context.Context, task string, results []Result) error
}

// Task is the capability set shared by every inference kind.
type Task interface {
	// Name identifies the inference kind, e.g. for sink dispatch
	Name() string
	Enqueue(frame image.Image, region image.Rectangle) error
	Submit(ctx context.Context) error
	// Ready is closed once the submitted batch can be fetched. With no
	// batch in flight it returns an already closed channel.
	Ready() <-chan struct{}
	FetchResults() error
	ResultsLength() int
	LocationResult(index int) (Ref, error)
	Results() []Result
	// Skipped lists slots of the last fetch that produced no result
	Skipped() []SlotError
	ObserveOutput(ctx context.Context, sink Sink)
	State() State
	Pending() int
	MaxBatch() int
}

var (
	_ Task = (*HeadPoseDetection)(nil)
	_ Task = (*FaceDetection)(nil)
)
