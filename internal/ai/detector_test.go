package ai

import (
	"context"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilter(t *testing.T) {
	dets := []Detection{
		{ClassID: 0, ClassName: "person", Confidence: 0.9},
		{ClassID: 2, ClassName: "car", Confidence: 0.8},
		{ClassID: 0, ClassName: "person", Confidence: 0.5},
		{ClassID: 0, ClassName: "person", Confidence: 0.3},
	}

	kept := Filter(dets, []int{0}, 0.5)
	assert.Equal(t, []Detection{dets[0]}, kept, "threshold is exclusive")

	kept = Filter(dets, nil, 0.4)
	assert.Equal(t, dets[:3], kept, "empty class list keeps every class")

	assert.Empty(t, Filter(nil, nil, 0))
}

func TestBest(t *testing.T) {
	_, ok := Best(nil)
	assert.False(t, ok)

	best, ok := Best([]Detection{
		{ClassName: "car", Confidence: 0.6},
		{ClassName: "person", Confidence: 0.95},
		{ClassName: "dog", Confidence: 0.7},
	})
	assert.True(t, ok)
	assert.Equal(t, "person", best.ClassName)
}

func TestDetectorFunc(t *testing.T) {
	var d Detector = DetectorFunc(func(ctx context.Context, img image.Image) ([]Detection, error) {
		return []Detection{{ClassName: "person"}}, nil
	})
	dets, err := d.Detect(context.Background(), nil)
	assert.NoError(t, err)
	assert.Len(t, dets, 1)
}
