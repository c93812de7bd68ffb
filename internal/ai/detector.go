package ai

import (
	"context"
	"image"
)

// Detector finds objects in an image. Implementations must honour ctx.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]Detection, error)
}

// DetectorFunc adapts a function to the Detector interface
type DetectorFunc func(ctx context.Context, img image.Image) ([]Detection, error)

// Detect calls f
func (f DetectorFunc) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	return f(ctx, img)
}

// Filter keeps detections whose class is in classes (all classes when
// empty) and whose confidence is strictly above minConfidence.
func Filter(dets []Detection, classes []int, minConfidence float64) []Detection {
	var allowed map[int]bool
	if len(classes) > 0 {
		allowed = make(map[int]bool, len(classes))
		for _, c := range classes {
			allowed[c] = true
		}
	}

	kept := make([]Detection, 0, len(dets))
	for _, d := range dets {
		if allowed != nil && !allowed[d.ClassID] {
			continue
		}
		if d.Confidence <= minConfidence {
			continue
		}
		kept = append(kept, d)
	}
	return kept
}

// Best returns the detection with the highest confidence
func Best(dets []Detection) (Detection, bool) {
	if len(dets) == 0 {
		return Detection{}, false
	}
	best := dets[0]
	for _, d := range dets[1:] {
		if d.Confidence > best.Confidence {
			best = d
		}
	}
	return best, true
}
