package task

import (
	"fmt"
	"image"
	"math"

	"github.com/SyedDaiam9101/headpose-service/internal/inference"
	"github.com/SyedDaiam9101/headpose-service/internal/model"
)

// FaceDetectionName identifies face detection tasks
const FaceDetectionName = "Face Detection"

const (
	defaultConfidence = 0.8
	faceRow           = 5
)

// FaceDetection finds faces inside enqueued regions, usually whole
// frames. One slot may produce any number of FaceResults; results keep
// slot order and, within a slot, descending confidence.
type FaceDetection struct {
	core[FaceResult]
	confidence float32
}

func NewFaceDetection(engine inference.Engine, opts ...Option) *FaceDetection {
	o := buildOptions(opts)
	t := &FaceDetection{confidence: o.confidence}
	t.core = newCore[FaceResult](FaceDetectionName, engine, t.decode, o)
	return t
}

// NewFaceDetectionFor creates a task and loads m in one step
func NewFaceDetectionFor(engine inference.Engine, m *model.Model, opts ...Option) (*FaceDetection, error) {
	t := NewFaceDetection(engine, opts...)
	if err := t.LoadNetwork(m); err != nil {
		return nil, err
	}
	return t, nil
}

// Faces returns a copy of the current results
func (t *FaceDetection) Faces() []FaceResult {
	return t.buf.snapshot()
}

// decode reads a planar [cx, cy, w, h, conf] x N block. Coordinates are
// normalized to the network input, which is the stretched crop of the
// slot's clipped region, so they scale straight back onto that region.
func (t *FaceDetection) decode(index int, s slot, data []float32) ([]FaceResult, error) {
	if len(data) == 0 || len(data)%faceRow != 0 {
		return nil, fmt.Errorf("got %d values, want a multiple of %d", len(data), faceRow)
	}
	n := len(data) / faceRow
	w, h := float32(s.clip.Dx()), float32(s.clip.Dy())

	var cands []candidate
	for i := 0; i < n; i++ {
		row := [faceRow]float32{data[i], data[n+i], data[2*n+i], data[3*n+i], data[4*n+i]}
		if !finite(row[:]) || row[4] < t.confidence {
			continue
		}
		conf := row[4]
		cx, cy := row[0]*w, row[1]*h
		bw, bh := row[2]*w, row[3]*h

		box := image.Rect(
			s.clip.Min.X+edge(cx-bw/2, w),
			s.clip.Min.Y+edge(cy-bh/2, h),
			s.clip.Min.X+edge(cx+bw/2, w),
			s.clip.Min.Y+edge(cy+bh/2, h),
		)
		if box.Empty() {
			continue
		}
		cands = append(cands, candidate{box: box, conf: conf})
	}

	merged := clusterBoxes(cands)
	out := make([]FaceResult, len(merged))
	for i, c := range merged {
		out[i] = NewFaceResult(c.box, c.conf, index)
	}
	return out, nil
}

func finite(vals []float32) bool {
	for _, v := range vals {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return false
		}
	}
	return true
}

// edge clamps a coordinate to [0, size] before converting it. Scaling a
// huge finite value can still overflow, so NaN maps to 0.
func edge(v, size float32) int {
	if math.IsNaN(float64(v)) {
		return 0
	}
	return int(min(max(v, 0), size))
}
