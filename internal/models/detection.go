package models

// BoundingBox locates a detection within a frame, in pixel coordinates.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// FaceDetection is one face reported by the face detector.
type FaceDetection struct {
	Box BoundingBox `json:"box"`
}

// ObjectDetection is one labeled object reported by the object detector.
type ObjectDetection struct {
	Label      string      `json:"label"`
	Confidence float64     `json:"confidence"` // 0.0 - 1.0
	Box        BoundingBox `json:"box"`
}
