package task

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIOU(t *testing.T) {
	a := image.Rect(0, 0, 10, 10)
	assert.Equal(t, 1.0, iou(a, a))
	assert.Equal(t, 0.0, iou(a, image.Rect(20, 20, 30, 30)))
	assert.InDelta(t, 25.0/175.0, iou(a, image.Rect(5, 5, 15, 15)), 1e-9)
}

func TestClusterBoxes_Empty(t *testing.T) {
	assert.Nil(t, clusterBoxes(nil))
}

func TestClusterBoxes_SeparateFaces(t *testing.T) {
	out := clusterBoxes([]candidate{
		{box: image.Rect(0, 0, 40, 40), conf: 0.9},
		{box: image.Rect(200, 0, 240, 40), conf: 0.8},
	})
	require.Len(t, out, 2)
	assert.Equal(t, float32(0.9), out[0].conf)
}

func TestClusterBoxes_DenseGroupMerges(t *testing.T) {
	// more than three candidates needs two neighbours per core point
	out := clusterBoxes([]candidate{
		{box: image.Rect(10, 10, 50, 50), conf: 0.81},
		{box: image.Rect(12, 10, 52, 50), conf: 0.93},
		{box: image.Rect(10, 12, 50, 52), conf: 0.85},
		{box: image.Rect(300, 300, 340, 340), conf: 0.99},
	})
	require.Len(t, out, 2)
	assert.Equal(t, image.Rect(300, 300, 340, 340), out[0].box)
	assert.Equal(t, image.Rect(10, 10, 52, 52), out[1].box)
	assert.Equal(t, float32(0.93), out[1].conf)
}
