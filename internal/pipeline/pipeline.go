// Package pipeline runs the inference tasks for one frame: face
// detection when no regions are supplied, then head pose estimation over
// every region in batches.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/SyedDaiam9101/headpose-service/internal/inference"
	"github.com/SyedDaiam9101/headpose-service/internal/logger"
	"github.com/SyedDaiam9101/headpose-service/internal/model"
	"github.com/SyedDaiam9101/headpose-service/internal/task"
)

const tracerName = "github.com/SyedDaiam9101/headpose-service/internal/pipeline"

var (
	// ErrNoRegions is returned when there are no regions and no face model
	// to find them
	ErrNoRegions = errors.New("no regions and face detection disabled")
	// ErrNilFrame is returned for a nil frame
	ErrNilFrame = errors.New("frame is nil")
)

// Config holds the models and options shared by every call
type Config struct {
	HeadPose *model.Model
	// Face is optional; without it callers must pass regions
	Face       *model.Model
	MaxBatch   int
	Confidence float32
	Sink       task.Sink
	Log        *logger.Logger
}

// Pipeline is safe for concurrent use. Each call builds its own tasks
// over the shared engine and models.
type Pipeline struct {
	engine inference.Engine
	cfg    Config
	log    *logger.Logger
	tracer trace.Tracer
}

// Report is the outcome of one Process call
type Report struct {
	// Regions are the regions head pose ran on, detected or given
	Regions []image.Rectangle
	Faces   []task.FaceResult
	Poses   []task.HeadPoseResult
	// Skipped lists regions without a pose. Slot is the index in Regions.
	Skipped []task.SlotError
}

func New(engine inference.Engine, cfg Config) (*Pipeline, error) {
	if engine == nil {
		return nil, task.ErrNoEngine
	}
	if cfg.HeadPose == nil {
		return nil, fmt.Errorf("head pose %w", task.ErrNoModel)
	}
	if cfg.Log == nil {
		cfg.Log = logger.NewNopLogger()
	}
	return &Pipeline{
		engine: engine,
		cfg:    cfg,
		log:    cfg.Log.With("component", "pipeline"),
		tracer: otel.Tracer(tracerName),
	}, nil
}

// FaceDetection reports whether regions can be detected
func (p *Pipeline) FaceDetection() bool { return p.cfg.Face != nil }

// MaxBatch is the head pose batch size
func (p *Pipeline) MaxBatch() int {
	n := p.cfg.HeadPose.MaxBatch
	if p.cfg.MaxBatch > 0 && p.cfg.MaxBatch < n {
		n = p.cfg.MaxBatch
	}
	return n
}

func (p *Pipeline) options() []task.Option {
	opts := []task.Option{task.WithLogger(p.log)}
	if p.cfg.MaxBatch > 0 {
		opts = append(opts, task.WithMaxBatch(p.cfg.MaxBatch))
	}
	if p.cfg.Confidence > 0 {
		opts = append(opts, task.WithConfidence(p.cfg.Confidence))
	}
	return opts
}

// Process estimates head pose for every region of frame. With no regions
// faces are detected on the whole frame first.
func (p *Pipeline) Process(ctx context.Context, frame image.Image, regions []image.Rectangle) (*Report, error) {
	if frame == nil {
		return nil, ErrNilFrame
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.Process")
	defer span.End()

	rep := &Report{Regions: regions}
	if len(regions) == 0 {
		if p.cfg.Face == nil {
			return nil, ErrNoRegions
		}
		faces, err := p.detect(ctx, frame)
		if err != nil {
			return nil, fail(span, err)
		}
		rep.Faces = faces
		rep.Regions = make([]image.Rectangle, len(faces))
		for i, f := range faces {
			rep.Regions[i] = f.Location()
		}
	}
	span.SetAttributes(attribute.Int("regions", len(rep.Regions)))

	if err := p.estimate(ctx, frame, rep); err != nil {
		return nil, fail(span, err)
	}

	p.log.Debug("frame processed", "regions", len(rep.Regions), "poses", len(rep.Poses), "skipped", len(rep.Skipped))
	return rep, nil
}

func (p *Pipeline) detect(ctx context.Context, frame image.Image) ([]task.FaceResult, error) {
	fd, err := task.NewFaceDetectionFor(p.engine, p.cfg.Face, p.options()...)
	if err != nil {
		return nil, err
	}
	if err := fd.Enqueue(frame, frame.Bounds()); err != nil {
		return nil, err
	}
	if err := p.run(ctx, fd); err != nil {
		return nil, err
	}
	fd.ObserveOutput(ctx, p.cfg.Sink)
	for _, s := range fd.Skipped() {
		p.log.Warn("face detection output dropped", "error", s)
	}
	return fd.Faces(), nil
}

// estimate runs head pose over rep.Regions in chunks of the batch size.
// The poses of all chunks are published together once the frame is done.
func (p *Pipeline) estimate(ctx context.Context, frame image.Image, rep *Report) error {
	hp, err := task.NewHeadPoseDetectionFor(p.engine, p.cfg.HeadPose, p.options()...)
	if err != nil {
		return err
	}

	ran := false
	for start := 0; start < len(rep.Regions); start += hp.MaxBatch() {
		end := min(start+hp.MaxBatch(), len(rep.Regions))

		// hp slot k holds region enqueued[k]
		enqueued := make([]int, 0, end-start)
		for i := start; i < end; i++ {
			if err := hp.Enqueue(frame, rep.Regions[i]); err != nil {
				if !errors.Is(err, task.ErrInvalidRegion) {
					return err
				}
				rep.Skipped = append(rep.Skipped, task.SlotError{Slot: i, Region: rep.Regions[i], Err: err})
				continue
			}
			enqueued = append(enqueued, i)
		}
		if len(enqueued) == 0 {
			continue
		}

		if err := p.run(ctx, hp); err != nil {
			return err
		}
		ran = true
		rep.Poses = append(rep.Poses, hp.Poses()...)
		for _, s := range hp.Skipped() {
			s.Slot = enqueued[s.Slot]
			rep.Skipped = append(rep.Skipped, s)
		}
	}
	if ran {
		p.publish(ctx, hp.Name(), rep.Poses)
	}
	return nil
}

func (p *Pipeline) publish(ctx context.Context, name string, poses []task.HeadPoseResult) {
	if p.cfg.Sink == nil {
		return
	}
	results := make([]task.Result, len(poses))
	for i, r := range poses {
		results[i] = r
	}
	if err := p.cfg.Sink.Publish(ctx, name, results); err != nil {
		p.log.Warn("publish failed", "task", name, "error", err)
	}
}

// run submits the task's pending batch, waits for it under ctx and
// fetches the results
func (p *Pipeline) run(ctx context.Context, t task.Task) error {
	ctx, span := p.tracer.Start(ctx, "task.Run", trace.WithAttributes(
		attribute.String("task", t.Name()),
		attribute.Int("batch", t.Pending()),
	))
	defer span.End()

	if err := t.Submit(ctx); err != nil {
		return fail(span, err)
	}

	select {
	case <-ctx.Done():
		return fail(span, ctx.Err())
	case <-t.Ready():
	}

	if err := t.FetchResults(); err != nil {
		return fail(span, err)
	}
	span.SetAttributes(
		attribute.Int("results", t.ResultsLength()),
		attribute.Int("skipped", len(t.Skipped())),
	)
	return nil
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
