// internal/inference/inference_test.go
package inference

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SyedDaiam9101/headpose-service/internal/logger"
	"github.com/SyedDaiam9101/headpose-service/internal/model"
)

func tinyModel() *model.Model {
	return &model.Model{
		Name: "tiny", Input: "in", Channels: 1, Height: 2, Width: 2,
		Order: model.RGB, Scale: 1, MaxBatch: 2,
		Outputs: []model.Output{{Name: "a", Shape: []int64{1}}, {Name: "b", Shape: []int64{2}}},
	}
}

func TestRequest_ResolveOnce(t *testing.T) {
	req := NewRequest()
	assert.False(t, req.Ready())

	_, err := req.Outputs()
	assert.ErrorIs(t, err, ErrNotReady)

	req.Resolve([]Output{{Data: []float32{1}}}, nil)
	req.Resolve(nil, errors.New("late"))

	<-req.Done()
	outs, err := req.Outputs()
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.Equal(t, []float32{1}, outs[0].Data)
}

func TestResolved(t *testing.T) {
	req := Resolved(nil, errors.New("boom"))
	assert.True(t, req.Ready())
	_, err := req.Outputs()
	assert.EqualError(t, err, "boom")
}

func TestMockEngine_Default(t *testing.T) {
	mock := NewMock()
	batch := [][]float32{{0.1, 0.2, 0.3, 0.4}, {0.5, 0.6, 0.7, 0.8}}

	req, err := mock.Submit(context.Background(), tinyModel(), batch)
	require.NoError(t, err)

	outs, err := req.Outputs()
	require.NoError(t, err)
	require.Len(t, outs, 2)
	for _, o := range outs {
		assert.Equal(t, []float32{0.1, 0.2, 0.3}, o.Data)
	}
	assert.Equal(t, 1, mock.Calls())
	assert.Len(t, mock.Batches, 1)
}

func TestMockEngine_SetError(t *testing.T) {
	mock := NewMock()
	mock.SetError("device busy")

	_, err := mock.Submit(context.Background(), tinyModel(), [][]float32{{1, 2, 3, 4}})
	assert.EqualError(t, err, "device busy")

	mock.ClearError()
	_, err = mock.Submit(context.Background(), tinyModel(), [][]float32{{1, 2, 3, 4}})
	assert.NoError(t, err)
	assert.Equal(t, 2, mock.Calls())
}

func TestMockEngine_Validation(t *testing.T) {
	mock := NewMock()
	ctx := context.Background()

	_, err := mock.Submit(ctx, tinyModel(), nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)

	_, err = mock.Submit(ctx, tinyModel(), [][]float32{{1, 2}})
	assert.ErrorIs(t, err, ErrInputSize)

	_, err = mock.Submit(ctx, tinyModel(), [][]float32{{1, 2, 3, 4}, {1, 2, 3, 4}, {1, 2, 3, 4}})
	assert.ErrorIs(t, err, ErrBatchTooLarge)

	_, err = mock.Submit(ctx, nil, [][]float32{{1, 2, 3, 4}})
	assert.ErrorIs(t, err, ErrModelNotLoaded)

	assert.Empty(t, mock.Batches)
}

func TestMockEngine_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMock().Submit(ctx, tinyModel(), [][]float32{{1, 2, 3, 4}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMockEngine_ScriptAndHold(t *testing.T) {
	mock := NewMock()
	mock.Script([]Output{{Data: []float32{9}}, {Err: errors.New("bad slot")}})
	mock.Hold()

	req, err := mock.Submit(context.Background(), tinyModel(), [][]float32{{1, 2, 3, 4}, {1, 2, 3, 4}})
	require.NoError(t, err)
	assert.False(t, req.Ready())

	mock.Release()
	<-req.Done()
	outs, err := req.Outputs()
	require.NoError(t, err)
	assert.Equal(t, []float32{9}, outs[0].Data)
	assert.Error(t, outs[1].Err)

	// script exhausted, back to default
	req, err = mock.Submit(context.Background(), tinyModel(), [][]float32{{1, 2, 3, 4}})
	require.NoError(t, err)
	assert.True(t, req.Ready())
}

func TestMockEngine_RunError(t *testing.T) {
	mock := NewMock()
	mock.RunError = errors.New("device lost")

	req, err := mock.Submit(context.Background(), tinyModel(), [][]float32{{1, 2, 3, 4}})
	require.NoError(t, err)
	_, err = req.Outputs()
	assert.EqualError(t, err, "device lost")
}

func TestSplit_HeadPoseOutputOrder(t *testing.T) {
	m := model.HeadPose
	slots := split(&m, 2, [][]float32{
		{10, 20}, // angle_y_fc
		{1, 2},   // angle_p_fc
		{-5, -6}, // angle_r_fc
	})

	require.Len(t, slots, 2)
	for _, s := range slots {
		require.NoError(t, s.Err)
	}
	assert.Equal(t, []float32{10, 1, -5}, slots[0].Data)
	assert.Equal(t, []float32{20, 2, -6}, slots[1].Data)
}

func TestSplit_ShortOutput(t *testing.T) {
	slots := split(tinyModel(), 2, [][]float32{
		{1, 2},
		{3, 4, 5},
	})

	require.Len(t, slots, 2)
	require.NoError(t, slots[0].Err)
	assert.Equal(t, []float32{1, 3, 4}, slots[0].Data)
	assert.Error(t, slots[1].Err)
	assert.Contains(t, slots[1].Err.Error(), "output b short for slot 1")
	assert.Nil(t, slots[1].Data)
}

func TestONNX_WithModel(t *testing.T) {
	// Skip if the ONNX model or library is not available
	modelPath := "testdata/head-pose.onnx"
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		t.Skip("Skipping real inference test: testdata/head-pose.onnx not found")
	}

	engine, err := NewONNX(ONNXOptions{SharedLibraryPath: os.Getenv("ONNXRUNTIME_LIB")}, logger.NewNopLogger())
	if err != nil {
		t.Skipf("Skipping real inference test: %v", err)
	}
	defer engine.Close()

	m, err := model.LoadHeadPose(model.Options{Path: modelPath, RequireFile: true})
	require.NoError(t, err)
	require.NoError(t, engine.Load(m))

	batch := [][]float32{make([]float32, m.InputSize()), make([]float32, m.InputSize())}
	req, err := engine.Submit(context.Background(), m, batch)
	require.NoError(t, err)

	<-req.Done()
	outs, err := req.Outputs()
	require.NoError(t, err)
	require.Len(t, outs, 2)
	for _, o := range outs {
		require.NoError(t, o.Err)
		assert.Len(t, o.Data, 3)
	}
}
