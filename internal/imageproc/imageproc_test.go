package imageproc

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SyedDaiam9101/headpose-service/internal/model"
)

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func tinyModel(order model.ChannelOrder, channels int64, scale float32) *model.Model {
	return &model.Model{
		Name: "tiny", Input: "in", Channels: channels, Height: 2, Width: 2,
		Order: order, Scale: scale, MaxBatch: 1,
		Outputs: []model.Output{{Name: "out", Shape: []int64{1}}},
	}
}

func TestClip(t *testing.T) {
	frame := solid(20, 20, color.NRGBA{A: 255})

	r, err := Clip(frame, image.Rect(15, 15, 30, 30))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(15, 15, 20, 20), r)

	r, err = Clip(frame, image.Rect(10, 10, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 10, 10), r)

	_, err = Clip(frame, image.Rect(25, 25, 30, 30))
	assert.ErrorIs(t, err, ErrEmptyRegion)

	_, err = Clip(nil, image.Rect(0, 0, 1, 1))
	assert.ErrorIs(t, err, ErrEmptyRegion)
}

func TestTensor_BGROrder(t *testing.T) {
	img := solid(4, 4, color.NRGBA{R: 200, G: 100, B: 50, A: 255})
	data := Tensor(img, tinyModel(model.BGR, 3, 1))

	require.Len(t, data, 12)
	assert.InDelta(t, 50, data[0], 0.5)
	assert.InDelta(t, 100, data[4], 0.5)
	assert.InDelta(t, 200, data[8], 0.5)
}

func TestTensor_RGBScaled(t *testing.T) {
	img := solid(4, 4, color.NRGBA{R: 255, G: 0, B: 51, A: 255})
	data := Tensor(img, tinyModel(model.RGB, 3, 1.0/255.0))

	assert.InDelta(t, 1.0, data[0], 0.01)
	assert.InDelta(t, 0.0, data[4], 0.01)
	assert.InDelta(t, 0.2, data[8], 0.01)
}

func TestTensor_Gray(t *testing.T) {
	img := solid(4, 4, color.NRGBA{R: 100, G: 100, B: 100, A: 255})
	data := Tensor(img, tinyModel(model.RGB, 1, 1))
	require.Len(t, data, 4)
	assert.InDelta(t, 100, data[3], 0.5)
}

func TestPrepare(t *testing.T) {
	frame := solid(10, 10, color.NRGBA{G: 255, A: 255})
	r, data, err := Prepare(frame, image.Rect(-5, -5, 4, 4), tinyModel(model.RGB, 3, 1))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 4, 4), r)
	assert.Len(t, data, 12)
}

func TestDecode(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solid(3, 2, color.NRGBA{A: 255})))

	img, err := Decode(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 3, img.Bounds().Dx())

	_, err = Decode([]byte("not an image"))
	assert.Error(t, err)
}
