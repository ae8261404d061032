package pipeline

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SyedDaiam9101/headpose-service/internal/inference"
	"github.com/SyedDaiam9101/headpose-service/internal/model"
	"github.com/SyedDaiam9101/headpose-service/internal/output"
	"github.com/SyedDaiam9101/headpose-service/internal/task"
)

func testFrame(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 64, A: 255})
		}
	}
	return img
}

func headPoseModel(t *testing.T) *model.Model {
	t.Helper()
	m, err := model.LoadHeadPose(model.Options{})
	require.NoError(t, err)
	return m
}

func faceModel(t *testing.T) *model.Model {
	t.Helper()
	m := model.FaceDetection
	m.Height, m.Width = 32, 32
	m.Outputs = []model.Output{{Name: "output0", Shape: []int64{5, 1}}}
	loaded, err := model.Load(m, model.Options{})
	require.NoError(t, err)
	return loaded
}

type recordingSink struct {
	mu    sync.Mutex
	calls map[string][]int
}

func (s *recordingSink) Publish(_ context.Context, name string, results []task.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = map[string][]int{}
	}
	s.calls[name] = append(s.calls[name], len(results))
	return nil
}

func TestNew_Errors(t *testing.T) {
	_, err := New(nil, Config{HeadPose: headPoseModel(t)})
	assert.ErrorIs(t, err, task.ErrNoEngine)

	_, err = New(inference.NewMock(), Config{})
	assert.ErrorIs(t, err, task.ErrNoModel)
}

func TestProcess_RegionsInBatches(t *testing.T) {
	mock := inference.NewMock()
	sink := &recordingSink{}
	p, err := New(mock, Config{HeadPose: headPoseModel(t), MaxBatch: 2, Sink: sink})
	require.NoError(t, err)
	assert.Equal(t, 2, p.MaxBatch())
	assert.False(t, p.FaceDetection())

	regions := []image.Rectangle{
		image.Rect(0, 0, 20, 20),
		image.Rect(20, 0, 40, 20),
		image.Rect(0, 20, 20, 40),
	}
	rep, err := p.Process(context.Background(), testFrame(64, 64), regions)
	require.NoError(t, err)

	assert.Equal(t, 2, mock.Calls())
	require.Len(t, rep.Poses, 3)
	for i, pose := range rep.Poses {
		assert.Equal(t, regions[i], pose.Location())
		assert.Equal(t, float32(0.1), pose.AngleY())
	}
	assert.Empty(t, rep.Skipped)
	assert.Empty(t, rep.Faces)
	assert.Equal(t, []int{3}, sink.calls[task.HeadPoseName], "one publish per frame")
}

func TestProcess_LatestHoldsEveryBatch(t *testing.T) {
	mr := miniredis.RunT(t)
	sink, err := output.NewRedisSink(context.Background(), output.RedisOptions{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { sink.Close() })

	p, err := New(inference.NewMock(), Config{HeadPose: headPoseModel(t), MaxBatch: 2, Sink: sink})
	require.NoError(t, err)

	regions := []image.Rectangle{
		image.Rect(0, 0, 20, 20),
		image.Rect(20, 0, 40, 20),
		image.Rect(0, 20, 20, 40),
	}
	ctx := output.WithStream(context.Background(), "cam1")
	rep, err := p.Process(ctx, testFrame(64, 64), regions)
	require.NoError(t, err)
	require.Len(t, rep.Poses, 3)

	msg, err := sink.Latest(context.Background(), "cam1", task.HeadPoseName)
	require.NoError(t, err)
	require.NotNil(t, msg)

	var cached []struct {
		Location task.Box `json:"location"`
	}
	require.NoError(t, json.Unmarshal(msg.Results, &cached))
	require.Len(t, cached, len(regions))
	for i, c := range cached {
		assert.Equal(t, regions[i], c.Location.Rect())
	}
}

func TestProcess_InvalidRegionSkipped(t *testing.T) {
	p, err := New(inference.NewMock(), Config{HeadPose: headPoseModel(t)})
	require.NoError(t, err)

	regions := []image.Rectangle{
		image.Rect(0, 0, 20, 20),
		image.Rect(500, 500, 520, 520),
		image.Rect(20, 20, 40, 40),
	}
	rep, err := p.Process(context.Background(), testFrame(64, 64), regions)
	require.NoError(t, err)

	require.Len(t, rep.Poses, 2)
	assert.Equal(t, regions[2], rep.Poses[1].Location())
	require.Len(t, rep.Skipped, 1)
	assert.Equal(t, 1, rep.Skipped[0].Slot)
	assert.ErrorIs(t, rep.Skipped[0], task.ErrInvalidRegion)
}

func TestProcess_DecodeSkipMapsToRegion(t *testing.T) {
	mock := inference.NewMock()
	good := inference.Output{Data: []float32{1, 2, 3}}
	mock.Script(
		[]inference.Output{good, good},
		[]inference.Output{{Data: []float32{1}}},
	)
	p, err := New(mock, Config{HeadPose: headPoseModel(t), MaxBatch: 2})
	require.NoError(t, err)

	regions := []image.Rectangle{
		image.Rect(0, 0, 20, 20),
		image.Rect(20, 0, 40, 20),
		image.Rect(0, 20, 20, 40),
	}
	rep, err := p.Process(context.Background(), testFrame(64, 64), regions)
	require.NoError(t, err)

	assert.Len(t, rep.Poses, 2)
	require.Len(t, rep.Skipped, 1)
	assert.Equal(t, 2, rep.Skipped[0].Slot)
	assert.ErrorIs(t, rep.Skipped[0], task.ErrDecodeSkipped)
}

func TestProcess_DetectsFacesWithoutRegions(t *testing.T) {
	mock := inference.NewMock()
	mock.Script([]inference.Output{{Data: []float32{0.5, 0.5, 0.25, 0.5, 0.99}}})
	sink := &recordingSink{}
	p, err := New(mock, Config{HeadPose: headPoseModel(t), Face: faceModel(t), Sink: sink})
	require.NoError(t, err)
	assert.True(t, p.FaceDetection())

	rep, err := p.Process(context.Background(), testFrame(64, 64), nil)
	require.NoError(t, err)

	require.Len(t, rep.Faces, 1)
	assert.Equal(t, []image.Rectangle{image.Rect(24, 16, 40, 48)}, rep.Regions)
	require.Len(t, rep.Poses, 1)
	assert.Equal(t, image.Rect(24, 16, 40, 48), rep.Poses[0].Location())
	assert.Equal(t, []int{1}, sink.calls[task.FaceDetectionName])
	assert.Equal(t, []int{1}, sink.calls[task.HeadPoseName])
}

func TestProcess_NoFacesFound(t *testing.T) {
	mock := inference.NewMock()
	mock.Script([]inference.Output{{Data: []float32{0.5, 0.5, 0.25, 0.5, 0.1}}})
	p, err := New(mock, Config{HeadPose: headPoseModel(t), Face: faceModel(t)})
	require.NoError(t, err)

	rep, err := p.Process(context.Background(), testFrame(64, 64), nil)
	require.NoError(t, err)
	assert.Empty(t, rep.Regions)
	assert.Empty(t, rep.Poses)
	assert.Equal(t, 1, mock.Calls())
}

func TestProcess_NoRegionsNoDetector(t *testing.T) {
	p, err := New(inference.NewMock(), Config{HeadPose: headPoseModel(t)})
	require.NoError(t, err)

	_, err = p.Process(context.Background(), testFrame(64, 64), nil)
	assert.ErrorIs(t, err, ErrNoRegions)

	_, err = p.Process(context.Background(), nil, []image.Rectangle{image.Rect(0, 0, 1, 1)})
	assert.ErrorIs(t, err, ErrNilFrame)
}

func TestProcess_ContextCanceledWhileWaiting(t *testing.T) {
	mock := inference.NewMock()
	mock.Hold()
	defer mock.Release()

	p, err := New(mock, Config{HeadPose: headPoseModel(t)})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Process(ctx, testFrame(64, 64), []image.Rectangle{image.Rect(0, 0, 20, 20)})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestProcess_EngineFailure(t *testing.T) {
	mock := inference.NewMock()
	mock.SetError("device lost")
	p, err := New(mock, Config{HeadPose: headPoseModel(t)})
	require.NoError(t, err)

	_, err = p.Process(context.Background(), testFrame(64, 64), []image.Rectangle{image.Rect(0, 0, 20, 20)})
	assert.ErrorIs(t, err, task.ErrEngineRejected)
}

func TestProcess_Concurrent(t *testing.T) {
	p, err := New(inference.NewMock(), Config{HeadPose: headPoseModel(t), MaxBatch: 4})
	require.NoError(t, err)
	frame := testFrame(64, 64)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rep, err := p.Process(context.Background(), frame, []image.Rectangle{image.Rect(0, 0, 30, 30), image.Rect(30, 30, 60, 60)})
			assert.NoError(t, err)
			if rep != nil {
				assert.Len(t, rep.Poses, 2)
			}
		}()
	}
	wg.Wait()
}
