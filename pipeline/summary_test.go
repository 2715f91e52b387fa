package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"storyreel/types"
)

func TestPrintPlan(t *testing.T) {
	plan := &types.TimelinePlan{
		VisualClips: []types.VisualClip{
			{ImagePath: "cache/s/images/image_1.jpg", Start: 0, Duration: 5},
			{ImagePath: "cache/s/images/image_2.jpg", Start: 4.5, Duration: 5,
				TransitionIn: &types.Transition{Kind: types.TransitionCrossfade, Duration: 0.5}},
		},
		Overlays:    []types.Overlay{{Text: "hi"}},
		TotalSec:    9.5,
		AudioTracks: []types.AudioTrack{{Path: "narration.mp3"}},
	}

	var sb strings.Builder
	PrintPlan(&sb, plan)
	out := sb.String()

	assert.Contains(t, out, "image_1.jpg")
	assert.Contains(t, out, "crossfade")
	assert.Contains(t, out, "total 9.50s")
	assert.Contains(t, out, "overlays: 1, audio tracks: 1")
}
