// internal/handler/handler.go
package handler

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/SyedDaiam9101/headpose-service/internal/imageproc"
	"github.com/SyedDaiam9101/headpose-service/internal/logger"
	"github.com/SyedDaiam9101/headpose-service/internal/middleware"
	"github.com/SyedDaiam9101/headpose-service/internal/output"
	"github.com/SyedDaiam9101/headpose-service/internal/pipeline"
	"github.com/SyedDaiam9101/headpose-service/internal/task"
)

// Estimator runs inference for one frame
type Estimator interface {
	Process(ctx context.Context, frame image.Image, regions []image.Rectangle) (*pipeline.Report, error)
}

// LatestStore returns the last results published for a stream
type LatestStore interface {
	Latest(ctx context.Context, stream, taskName string) (*output.Message, error)
}

// Handler implements HeadPoseEstimatorServer and the HTTP API.
type Handler struct {
	pipe  Estimator
	store LatestStore
	log   *logger.Logger
}

// New creates a Handler. store may be nil, which disables the latest
// results endpoint.
func New(pipe Estimator, store LatestStore, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Handler{pipe: pipe, store: store, log: log}
}

// Estimate handles a single request by delegating to BatchEstimate
func (h *Handler) Estimate(ctx context.Context, req *EstimateRequest) (*EstimateResponse, error) {
	if req == nil {
		return nil, invalidArgumentError("request cannot be nil")
	}

	batchResp, err := h.BatchEstimate(ctx, &BatchEstimateRequest{Requests: []*EstimateRequest{req}})
	if err != nil {
		return nil, err
	}
	if len(batchResp.Responses) == 0 {
		return nil, internalError("no response from batch estimate")
	}
	return batchResp.Responses[0], nil
}

// BatchEstimate handles batch requests. Requests share nothing but the
// engine; a failing request fails the whole call.
func (h *Handler) BatchEstimate(ctx context.Context, req *BatchEstimateRequest) (*BatchEstimateResponse, error) {
	start := time.Now()

	requestID := middleware.GetRequestID(ctx)
	if requestID == "" {
		requestID = "unknown"
	}
	log := h.log.With("request_id", requestID)

	if req == nil || len(req.Requests) == 0 {
		return nil, invalidArgumentError("batch request cannot be nil or empty")
	}
	if h.pipe == nil {
		return nil, failedPreconditionError("inference pipeline not initialized")
	}

	responses := make([]*EstimateResponse, len(req.Requests))
	for i, r := range req.Requests {
		if r == nil {
			return nil, invalidArgumentError("request %d is nil", i)
		}
		if len(r.Image) == 0 {
			return nil, invalidArgumentError("request %d has no image", i)
		}

		frame, err := imageproc.Decode(r.Image)
		if err != nil {
			return nil, invalidArgumentError("request %d: %v", i, err)
		}

		regions := make([]image.Rectangle, len(r.Regions))
		for k, b := range r.Regions {
			if err := checkRegion(b, frame.Bounds()); err != nil {
				return nil, invalidArgumentError("request %d region %d %v", i, k, err)
			}
			regions[k] = b.Rect()
		}

		itemStart := time.Now()
		rep, err := h.pipe.Process(output.WithStream(ctx, r.Stream), frame, regions)
		if err != nil {
			log.Warn("estimate failed", "index", i, "stream", r.Stream, "error", err)
			return nil, grpcError(err)
		}

		resp := toResponse(rep)
		resp.LatencyMs = float64(time.Since(itemStart).Microseconds()) / 1000.0
		responses[i] = resp
	}

	log.Info("batch estimate",
		"batch_size", len(req.Requests),
		"total_ms", float64(time.Since(start).Microseconds())/1000.0)

	return &BatchEstimateResponse{Responses: responses}, nil
}

// checkRegion bounds a caller box before it becomes a rectangle. Boxes
// may lie partly or wholly outside the frame, and those are skipped
// later, but no further than one frame size away.
func checkRegion(b task.Box, bounds image.Rectangle) error {
	w, h := bounds.Dx(), bounds.Dy()
	switch {
	case b.Width <= 0 || b.Height <= 0:
		return errors.New("has non-positive size")
	case b.Width > w || b.Height > h:
		return fmt.Errorf("is larger than the %dx%d frame", w, h)
	case b.X < bounds.Min.X-w || b.X > bounds.Max.X+w || b.Y < bounds.Min.Y-h || b.Y > bounds.Max.Y+h:
		return fmt.Errorf("at (%d, %d) is too far outside the frame", b.X, b.Y)
	}
	return nil
}

func toResponse(rep *pipeline.Report) *EstimateResponse {
	resp := &EstimateResponse{Poses: make([]Pose, 0, len(rep.Poses))}
	for _, f := range rep.Faces {
		resp.Faces = append(resp.Faces, Face{Location: task.BoxOf(f.Location()), Confidence: f.Confidence()})
	}
	for _, p := range rep.Poses {
		resp.Poses = append(resp.Poses, Pose{
			Location: task.BoxOf(p.Location()),
			Yaw:      p.AngleY(),
			Pitch:    p.AngleP(),
			Roll:     p.AngleR(),
		})
	}
	for _, s := range rep.Skipped {
		resp.Skipped = append(resp.Skipped, Skip{Index: s.Slot, Region: task.BoxOf(s.Region), Reason: s.Err.Error()})
	}
	return resp
}
