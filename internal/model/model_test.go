package model

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadHeadPose_Defaults(t *testing.T) {
	m, err := LoadHeadPose(Options{})
	require.NoError(t, err)

	assert.Equal(t, int64(3*60*60), m.InputSize())
	assert.Equal(t, int64(3), m.SlotSize())
	assert.Equal(t, []string{"angle_y_fc", "angle_p_fc", "angle_r_fc"}, m.OutputNames())
	assert.Equal(t, 16, m.MaxBatch)
}

func TestLoad_OverridesDoNotLeakIntoCatalog(t *testing.T) {
	m, err := LoadHeadPose(Options{MaxBatch: 4, Path: "x.onnx"})
	require.NoError(t, err)
	m.Outputs[0].Shape[0] = 99

	assert.Equal(t, 4, m.MaxBatch)
	assert.Equal(t, 16, HeadPose.MaxBatch)
	assert.Equal(t, int64(1), HeadPose.Outputs[0].Shape[0])
	assert.Equal(t, "", HeadPose.Path)
}

func TestLoad_RequireFile(t *testing.T) {
	_, err := LoadHeadPose(Options{RequireFile: true})
	assert.True(t, errors.Is(err, ErrInvalidModel))

	_, err = LoadHeadPose(Options{RequireFile: true, Path: filepath.Join(t.TempDir(), "missing.onnx")})
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "hp.onnx")
	require.NoError(t, os.WriteFile(path, []byte("onnx"), 0o644))
	m, err := LoadHeadPose(Options{RequireFile: true, Path: path})
	require.NoError(t, err)
	assert.Equal(t, path, m.Path)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Model)
	}{
		{"no name", func(m *Model) { m.Name = "" }},
		{"no input", func(m *Model) { m.Input = "" }},
		{"channels", func(m *Model) { m.Channels = 2 }},
		{"size", func(m *Model) { m.Width = 0 }},
		{"order", func(m *Model) { m.Order = "hsv" }},
		{"outputs", func(m *Model) { m.Outputs = nil }},
		{"batch", func(m *Model) { m.MaxBatch = 0 }},
		{"empty output", func(m *Model) { m.Outputs[1].Shape = []int64{0} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := clone(HeadPose)
			tt.mutate(&m)
			assert.ErrorIs(t, m.Validate(), ErrInvalidModel)
		})
	}
}

func TestFaceDetection_SlotSize(t *testing.T) {
	m, err := LoadFaceDetection(Options{})
	require.NoError(t, err)
	assert.Equal(t, int64(5*FaceCandidates), m.SlotSize())
	assert.Equal(t, RGB, m.Order)
}
