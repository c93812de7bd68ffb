package zone

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Orlik-B/NVR-surveillance/internal/ai"
	"github.com/Orlik-B/NVR-surveillance/internal/config"
)

func TestIsExcluded(t *testing.T) {
	leftHalf := []config.Zone{{0, 0, 0.5, 1}}

	tests := []struct {
		name  string
		box   ai.Box
		zones []config.Zone
		want  bool
	}{
		{
			name:  "bottom centre in left half",
			box:   ai.Box{X1: 100, Y1: 100, X2: 200, Y2: 300},
			zones: leftHalf,
			want:  true,
		},
		{
			name:  "bottom centre in right half",
			box:   ai.Box{X1: 700, Y1: 100, X2: 900, Y2: 300},
			zones: leftHalf,
			want:  false,
		},
		{
			name:  "exactly on the boundary is inclusive",
			box:   ai.Box{X1: 400, Y1: 0, X2: 600, Y2: 720},
			zones: leftHalf,
			want:  true,
		},
		{
			name:  "top inside zone but feet outside",
			box:   ai.Box{X1: 600, Y1: 0, X2: 700, Y2: 700},
			zones: []config.Zone{{0, 0, 1, 0.5}},
			want:  false,
		},
		{
			name:  "inverted y uses the larger value",
			box:   ai.Box{X1: 600, Y1: 700, X2: 700, Y2: 0},
			zones: []config.Zone{{0, 0.9, 1, 1}},
			want:  true,
		},
		{
			name:  "any of several zones",
			box:   ai.Box{X1: 700, Y1: 600, X2: 800, Y2: 700},
			zones: []config.Zone{{0, 0, 0.1, 0.1}, {0.7, 0.9, 0.8, 1}},
			want:  true,
		},
		{
			name:  "no zones",
			box:   ai.Box{X1: 0, Y1: 0, X2: 10, Y2: 10},
			zones: nil,
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsExcluded(tt.box, tt.zones, 1000, 720))
		})
	}
}

func TestIsExcluded_DegenerateFrame(t *testing.T) {
	assert.False(t, IsExcluded(ai.Box{X2: 1, Y2: 1}, []config.Zone{{0, 0, 1, 1}}, 0, 0))
}

func TestFilter(t *testing.T) {
	dets := []ai.Detection{
		{ClassName: "left", Box: ai.Box{X1: 10, Y1: 10, X2: 100, Y2: 200}},
		{ClassName: "right", Box: ai.Box{X1: 600, Y1: 10, X2: 700, Y2: 200}},
	}

	kept := Filter(dets, []config.Zone{{0, 0, 0.5, 1}}, 1000, 720)
	assert.Len(t, kept, 1)
	assert.Equal(t, "right", kept[0].ClassName)

	assert.Equal(t, dets, Filter(dets, nil, 1000, 720))
}
