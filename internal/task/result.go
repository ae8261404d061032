package task

import (
	"encoding/json"
	"fmt"
	"image"
	"math"
)

// Result is one decoded record. The set of implementations is closed:
// HeadPoseResult and FaceResult.
type Result interface {
	Location() image.Rectangle
	isResult()
}

// Box is the JSON form of a rectangle
type Box struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func BoxOf(r image.Rectangle) Box {
	return Box{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height)
}

// AngleUnset is the value of every angle on an undecoded record
const AngleUnset float32 = -1

const headPoseValues = 3

// HeadPoseResult holds the head orientation for one face region.
// Angles are in degrees.
type HeadPoseResult struct {
	location image.Rectangle
	yaw      float32
	pitch    float32
	roll     float32
	decoded  bool
}

// NewHeadPoseResult returns an undecoded record for location
func NewHeadPoseResult(location image.Rectangle) HeadPoseResult {
	return HeadPoseResult{
		location: location,
		yaw:      AngleUnset,
		pitch:    AngleUnset,
		roll:     AngleUnset,
	}
}

// DecodeHeadPose maps a slot vector [yaw, pitch, roll] onto a record.
func DecodeHeadPose(location image.Rectangle, vec []float32) (HeadPoseResult, error) {
	if len(vec) != headPoseValues {
		return HeadPoseResult{}, fmt.Errorf("got %d values, want %d", len(vec), headPoseValues)
	}
	for i, v := range vec {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return HeadPoseResult{}, fmt.Errorf("value %d is not finite", i)
		}
	}

	r := NewHeadPoseResult(location)
	r.yaw, r.pitch, r.roll = vec[0], vec[1], vec[2]
	r.decoded = true
	return r, nil
}

func (r HeadPoseResult) Location() image.Rectangle { return r.location }

// AngleY is the yaw
func (r HeadPoseResult) AngleY() float32 { return r.yaw }

// AngleP is the pitch
func (r HeadPoseResult) AngleP() float32 { return r.pitch }

// AngleR is the roll
func (r HeadPoseResult) AngleR() float32 { return r.roll }

// Decoded reports whether the angles came from a successful decode
func (r HeadPoseResult) Decoded() bool { return r.decoded }

func (HeadPoseResult) isResult() {}

func (r HeadPoseResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind     string  `json:"kind"`
		Location Box     `json:"location"`
		Yaw      float32 `json:"yaw"`
		Pitch    float32 `json:"pitch"`
		Roll     float32 `json:"roll"`
		Decoded  bool    `json:"decoded"`
	}{"head_pose", BoxOf(r.location), r.yaw, r.pitch, r.roll, r.decoded})
}

// FaceResult is one detected face
type FaceResult struct {
	location   image.Rectangle
	confidence float32
	slot       int
}

func NewFaceResult(location image.Rectangle, confidence float32, slot int) FaceResult {
	return FaceResult{location: location, confidence: confidence, slot: slot}
}

func (r FaceResult) Location() image.Rectangle { return r.location }

func (r FaceResult) Confidence() float32 { return r.confidence }

// Slot is the batch position of the region the face was found in
func (r FaceResult) Slot() int { return r.slot }

func (FaceResult) isResult() {}

func (r FaceResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind       string  `json:"kind"`
		Location   Box     `json:"location"`
		Confidence float32 `json:"confidence"`
		Slot       int     `json:"slot"`
	}{"face", BoxOf(r.location), r.confidence, r.slot})
}

// SlotError describes a slot dropped during decode
type SlotError struct {
	Slot   int
	Region image.Rectangle
	Err    error
}

func (e SlotError) Error() string {
	return fmt.Sprintf("slot %d %v: %v", e.Slot, e.Region, e.Err)
}

func (e SlotError) Unwrap() error { return e.Err }
