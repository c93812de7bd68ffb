// Package zone drops detections whose footprint lies inside an exclusion
// zone of the camera.
package zone

import (
	"github.com/Orlik-B/NVR-surveillance/internal/ai"
	"github.com/Orlik-B/NVR-surveillance/internal/config"
)

// Point returns the bottom-centre of box normalized by the frame size. The
// bottom edge is where an object touches the ground.
func Point(box ai.Box, frameW, frameH int) (float64, float64) {
	bottom := box.Y1
	if box.Y2 > bottom {
		bottom = box.Y2
	}
	return (box.X1 + box.X2) / 2 / float64(frameW), bottom / float64(frameH)
}

// IsExcluded reports whether the bottom-centre of box falls inside any zone.
// Bounds are inclusive. No zones, or a degenerate frame, exclude nothing.
func IsExcluded(box ai.Box, zones []config.Zone, frameW, frameH int) bool {
	if len(zones) == 0 || frameW <= 0 || frameH <= 0 {
		return false
	}

	x, y := Point(box, frameW, frameH)
	for _, z := range zones {
		if x >= z[0] && x <= z[2] && y >= z[1] && y <= z[3] {
			return true
		}
	}
	return false
}

// Filter returns the detections that are not excluded by any zone
func Filter(dets []ai.Detection, zones []config.Zone, frameW, frameH int) []ai.Detection {
	if len(zones) == 0 {
		return dets
	}

	kept := make([]ai.Detection, 0, len(dets))
	for _, d := range dets {
		if !IsExcluded(d.Box, zones, frameW, frameH) {
			kept = append(kept, d)
		}
	}
	return kept
}
