// Package imageproc prepares image regions for network input
package imageproc

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/SyedDaiam9101/headpose-service/internal/model"
)

var ErrEmptyRegion = errors.New("region does not intersect frame")

// Clip returns region limited to the frame bounds
func Clip(frame image.Image, region image.Rectangle) (image.Rectangle, error) {
	if frame == nil {
		return image.Rectangle{}, fmt.Errorf("%w: nil frame", ErrEmptyRegion)
	}
	r := region.Canon().Intersect(frame.Bounds())
	if r.Empty() {
		return image.Rectangle{}, fmt.Errorf("%w: %v outside %v", ErrEmptyRegion, region, frame.Bounds())
	}
	return r, nil
}

// Tensor resizes img to the model input and packs it planar (CHW) as
// float32 in the model's channel order and scale.
func Tensor(img image.Image, m *model.Model) []float32 {
	w, h := int(m.Width), int(m.Height)
	resized := imaging.Resize(img, w, h, imaging.Linear)

	plane := w * h
	out := make([]float32, int(m.Channels)*plane)
	scale := m.Scale
	if scale == 0 {
		scale = 1
	}

	for y := 0; y < h; y++ {
		row := resized.Pix[y*resized.Stride:]
		offset := y * w
		for x := 0; x < w; x++ {
			i := offset + x
			r := float32(row[x*4])
			g := float32(row[x*4+1])
			b := float32(row[x*4+2])

			if m.Channels == 1 {
				out[i] = (0.299*r + 0.587*g + 0.114*b) * scale
				continue
			}
			if m.Order == model.BGR {
				r, b = b, r
			}
			out[i] = r * scale
			out[plane+i] = g * scale
			out[plane*2+i] = b * scale
		}
	}
	return out
}

// Prepare crops region out of frame and converts it for m
func Prepare(frame image.Image, region image.Rectangle, m *model.Model) (image.Rectangle, []float32, error) {
	r, err := Clip(frame, region)
	if err != nil {
		return image.Rectangle{}, nil, err
	}
	return r, Tensor(imaging.Crop(frame, r), m), nil
}

// Decode reads a JPEG/PNG/GIF/BMP/TIFF image, applying EXIF orientation
func Decode(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}
