package task

import (
	"fmt"

	"github.com/SyedDaiam9101/headpose-service/internal/inference"
	"github.com/SyedDaiam9101/headpose-service/internal/model"
)

// HeadPoseName identifies head pose tasks to sinks and orchestration
const HeadPoseName = "Head Pose Detection"

// HeadPoseDetection estimates yaw, pitch and roll for face regions.
// Each enqueued region yields at most one HeadPoseResult, in enqueue order.
type HeadPoseDetection struct {
	core[HeadPoseResult]
}

// NewHeadPoseDetection creates a task bound to engine. Call LoadNetwork
// before enqueueing.
func NewHeadPoseDetection(engine inference.Engine, opts ...Option) *HeadPoseDetection {
	o := buildOptions(opts)
	return &HeadPoseDetection{core: newCore[HeadPoseResult](HeadPoseName, engine, decodeHeadPose, o)}
}

// NewHeadPoseDetectionFor creates a task and loads m in one step
func NewHeadPoseDetectionFor(engine inference.Engine, m *model.Model, opts ...Option) (*HeadPoseDetection, error) {
	t := NewHeadPoseDetection(engine, opts...)
	if err := t.LoadNetwork(m); err != nil {
		return nil, err
	}
	return t, nil
}

// Poses returns a copy of the current results in enqueue order
func (t *HeadPoseDetection) Poses() []HeadPoseResult {
	return t.buf.snapshot()
}

// Pose resolves a Ref taken from this task
func (t *HeadPoseDetection) Pose(ref Ref) (HeadPoseResult, error) {
	if ref.src != resolver(&t.buf) {
		return HeadPoseResult{}, fmt.Errorf("%w: reference belongs to another task", ErrStaleResult)
	}
	res, err := ref.Result()
	if err != nil {
		return HeadPoseResult{}, err
	}
	return res.(HeadPoseResult), nil
}

func decodeHeadPose(_ int, s slot, data []float32) ([]HeadPoseResult, error) {
	r, err := DecodeHeadPose(s.region, data)
	if err != nil {
		return nil, err
	}
	return []HeadPoseResult{r}, nil
}
