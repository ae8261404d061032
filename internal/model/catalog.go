package model

// HeadPose is head-pose-estimation-adas-0001: a 60x60 BGR face crop in,
// three single-value angle outputs (degrees) out.
var HeadPose = Model{
	Name:     "head-pose-estimation",
	Input:    "data",
	Channels: 3,
	Height:   60,
	Width:    60,
	Order:    BGR,
	Scale:    1,
	Outputs: []Output{
		{Name: "angle_y_fc", Shape: []int64{1}},
		{Name: "angle_p_fc", Shape: []int64{1}},
		{Name: "angle_r_fc", Shape: []int64{1}},
	},
	MaxBatch: 16,
}

// FaceCandidates is the anchor count of a 640x640 YOLO face head
const FaceCandidates = 8400

// FaceDetection is a single-class YOLO face detector emitting
// [cx, cy, w, h, conf] rows over FaceCandidates anchors, normalized.
var FaceDetection = Model{
	Name:     "face-detection",
	Input:    "images",
	Channels: 3,
	Height:   640,
	Width:    640,
	Order:    RGB,
	Scale:    1.0 / 255.0,
	Outputs: []Output{
		{Name: "output0", Shape: []int64{5, FaceCandidates}},
	},
	MaxBatch: 1,
}

// LoadHeadPose loads the head pose description with opts applied
func LoadHeadPose(opts Options) (*Model, error) {
	return Load(clone(HeadPose), opts)
}

// LoadFaceDetection loads the face detector description with opts applied
func LoadFaceDetection(opts Options) (*Model, error) {
	return Load(clone(FaceDetection), opts)
}

func clone(m Model) Model {
	outs := make([]Output, len(m.Outputs))
	for i, o := range m.Outputs {
		outs[i] = Output{Name: o.Name, Shape: append([]int64(nil), o.Shape...)}
	}
	m.Outputs = outs
	return m
}
