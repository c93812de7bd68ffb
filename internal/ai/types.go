package ai

// InferenceRequest represents a request to the detector service
type InferenceRequest struct {
	Image               string   `json:"image"`                          // Base64-encoded JPEG image
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty"` // Optional override
	EnabledClasses      []int    `json:"enabled_classes,omitempty"`      // Optional class ID filter
	ImageSize           int      `json:"imgsz,omitempty"`                // Model input width
}

// BoundingBox represents a detected object's bounding box
type BoundingBox struct {
	X1         float64 `json:"x1"`         // Left coordinate
	Y1         float64 `json:"y1"`         // Top coordinate
	X2         float64 `json:"x2"`         // Right coordinate
	Y2         float64 `json:"y2"`         // Bottom coordinate
	Confidence float64 `json:"confidence"` // Detection confidence (0.0 to 1.0)
	ClassID    int     `json:"class_id"`   // COCO class ID
	ClassName  string  `json:"class_name"` // Human-readable class name
}

// InferenceResponse represents the response from the detector service
type InferenceResponse struct {
	BoundingBoxes   []BoundingBox `json:"bounding_boxes"`    // Detected objects
	InferenceTimeMs float64       `json:"inference_time_ms"` // Inference duration
	FrameShape      []int         `json:"frame_shape"`       // [height, width]
	DetectionCount  int           `json:"detection_count"`   // Number of detections
}

// InferenceStats represents inference statistics
type InferenceStats struct {
	TotalInferences int     `json:"total_inferences"`
	TotalTimeMs     float64 `json:"total_time_ms"`
	AverageTimeMs   float64 `json:"average_time_ms"`
}

// Box is an axis-aligned rectangle in pixels of the processed frame
type Box struct {
	X1, Y1, X2, Y2 float64
}

// Detection is one object reported by the detector
type Detection struct {
	ClassID    int
	ClassName  string
	Confidence float64
	Box        Box
}

// toDetection converts the wire representation
func (b BoundingBox) toDetection() Detection {
	return Detection{
		ClassID:    b.ClassID,
		ClassName:  b.ClassName,
		Confidence: b.Confidence,
		Box:        Box{X1: b.X1, Y1: b.Y1, X2: b.X2, Y2: b.Y2},
	}
}
