package timeline

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyreel/config"
	"storyreel/types"
)

func testStyle() config.StyleConfig {
	return config.StyleConfig{
		FontPath:         "cache/fonts/inter.ttf",
		FontSizePx:       40,
		FontColor:        "white",
		HighlightColor:   "yellow",
		StrokeColor:      "black",
		StrokeWidth:      1.5,
		SubtitlePosition: "bottom",
		ZoomFactor:       0.2,
		Transitions:      false,
		TransitionSec:    0.5,
		PaddingSec:       5,
		MusicGain:        0.15,
	}
}

func testAssets(n int) *types.AssetSet {
	paths := make([]string, n)
	for i := range paths {
		paths[i] = fmt.Sprintf("cache/s/images/image_%d.jpg", i+1)
	}
	return &types.AssetSet{ImagePaths: paths, NarrationAudioPath: "cache/s/audio/narration.mp3"}
}

func testSpec(n int) *types.StorySpec {
	spec := &types.StorySpec{Title: "a lonely robot", Lang: "en"}
	for i := 0; i < n; i++ {
		spec.Segments = append(spec.Segments, types.Segment{
			VoicePrompt: fmt.Sprintf("sentence %d", i+1),
			ImagePrompt: fmt.Sprintf("image %d", i+1),
		})
	}
	return spec
}

func sentenceTrack(n int) types.SubtitleTrack {
	track := types.SubtitleTrack{Kind: types.TrackSentence}
	for i := 0; i < n; i++ {
		track.Sentences = append(track.Sentences, types.SentenceLine{
			Text:         fmt.Sprintf("sentence %d", i+1),
			SegmentIndex: i,
		})
	}
	return track
}

func wordTrack() types.SubtitleTrack {
	return types.SubtitleTrack{
		Kind: types.TrackWordTimed,
		Timed: []types.TimedSegment{
			{
				Text: "A lonely robot wakes.", Start: 0, End: 2.4,
				Words: []types.TimedWord{
					{Text: "A", Start: 0, End: 0.3},
					{Text: "lonely", Start: 0.3, End: 0.9},
					{Text: "robot", Start: 0.9, End: 1.5},
					{Text: "wakes.", Start: 1.5, End: 2.4},
				},
			},
			{
				Text: "It walks on.", Start: 2.4, End: 5.0,
				Words: []types.TimedWord{
					{Text: "It", Start: 2.4, End: 2.7},
					{Text: "walks", Start: 2.7, End: 3.6},
					{Text: "on.", Start: 3.6, End: 5.0},
				},
			},
		},
	}
}

func TestComposeSentenceRegime(t *testing.T) {
	const narration = 50.0
	plan, err := New(testStyle(), 1).Compose(testSpec(5), testAssets(5), sentenceTrack(5), narration)
	require.NoError(t, err)

	// intro + 5 content clips + outro
	require.Len(t, plan.VisualClips, 7)
	assert.InDelta(t, 60.0, plan.TotalSec, 1e-9)

	intro := plan.VisualClips[0]
	assert.Equal(t, 0.0, intro.Start)
	assert.Equal(t, 5.0, intro.Duration)
	assert.Equal(t, 1.0, intro.FadeInSec)
	assert.Equal(t, "cache/s/images/image_1.jpg", intro.ImagePath)

	outro := plan.VisualClips[6]
	assert.InDelta(t, 55.0, outro.Start, 1e-9)
	assert.Equal(t, 1.0, outro.FadeOutSec)
	assert.Equal(t, "cache/s/images/image_5.jpg", outro.ImagePath)

	for i, clip := range plan.VisualClips[1:6] {
		assert.InDelta(t, 5.0+float64(i)*10.0, clip.Start, 1e-9)
		assert.InDelta(t, 10.0, clip.Duration, 1e-9, "even split of narration across images")
		assert.Nil(t, clip.TransitionIn)
	}

	require.Len(t, plan.Overlays, 5)
	for i, ov := range plan.Overlays {
		assert.Equal(t, fmt.Sprintf("sentence %d", i+1), ov.Text)
		assert.InDelta(t, plan.VisualClips[i+1].Start, ov.Start, 1e-9)
		assert.InDelta(t, plan.VisualClips[i+1].Duration, ov.Duration, 1e-9)
		assert.Equal(t, "white", ov.Style.Color)
		assert.Equal(t, "black", ov.Style.StrokeColor)
		assert.Equal(t, "bottom", ov.Style.Anchor)
	}

	require.Len(t, plan.AudioTracks, 1)
	narrTrack := plan.AudioTracks[0]
	assert.Equal(t, "cache/s/audio/narration.mp3", narrTrack.Path)
	assert.InDelta(t, 5.0, narrTrack.Offset, 1e-9, "narration starts after the intro padding")
	assert.Equal(t, 1.0, narrTrack.Gain)
	assert.False(t, narrTrack.Loop)
}

func TestComposeZoomCurve(t *testing.T) {
	plan, err := New(testStyle(), 1).Compose(testSpec(5), testAssets(5), sentenceTrack(5), 50)
	require.NoError(t, err)

	clip := plan.VisualClips[1]
	assert.InDelta(t, 1.0, clip.Zoom(0), 1e-9)
	assert.InDelta(t, 1.1, clip.Zoom(clip.Duration/2), 1e-9)
	assert.InDelta(t, 1.2, clip.Zoom(clip.Duration), 1e-9)

	// Padding clips hold still.
	assert.InDelta(t, 1.0, plan.VisualClips[0].Zoom(3), 1e-9)
}

func TestComposeTransitionsShrinkTimeline(t *testing.T) {
	style := testStyle()
	style.Transitions = true

	const narration = 50.0
	plan, err := New(style, 7).Compose(testSpec(5), testAssets(5), sentenceTrack(5), narration)
	require.NoError(t, err)

	var transitions int
	for _, clip := range plan.VisualClips {
		if clip.TransitionIn != nil {
			transitions++
			assert.InDelta(t, 0.5, clip.TransitionIn.Duration, 1e-9)
			assert.Contains(t, transitionKinds, clip.TransitionIn.Kind)
		}
	}
	assert.Equal(t, 4, transitions, "one transition per adjacent middle pair")

	// Each overlap shrinks the middle section: 50 - 4*0.5 = 48.
	assert.InDelta(t, 5+48+5, plan.TotalSec, 1e-9)

	// Starts come from elapsed composed time, not naive per-clip addition.
	middle := plan.VisualClips[1:6]
	assert.InDelta(t, 5.0, middle[0].Start, 1e-9)
	for i := 1; i < len(middle); i++ {
		assert.InDelta(t, 5.0+float64(i)*9.5, middle[i].Start, 1e-9)
	}
}

func TestComposeTransitionsDeterministicPerSeed(t *testing.T) {
	style := testStyle()
	style.Transitions = true

	kinds := func(seed int64) []types.TransitionKind {
		plan, err := New(style, seed).Compose(testSpec(5), testAssets(5), sentenceTrack(5), 50)
		require.NoError(t, err)
		var out []types.TransitionKind
		for _, clip := range plan.VisualClips {
			if clip.TransitionIn != nil {
				out = append(out, clip.TransitionIn.Kind)
			}
		}
		return out
	}

	assert.Equal(t, kinds(42), kinds(42))
}

func TestComposeWordRegime(t *testing.T) {
	track := wordTrack()
	// Narration file duration differs; the transcription clock wins.
	plan, err := New(testStyle(), 1).Compose(testSpec(5), testAssets(5), track, 99)
	require.NoError(t, err)

	// Middle duration is the last transcribed segment's end: 5.0s.
	assert.InDelta(t, 5+5.0+5, plan.TotalSec, 1e-9)

	// Even split across all images, decoupled from transcription segments.
	for _, clip := range plan.VisualClips[1:6] {
		assert.InDelta(t, 1.0, clip.Duration, 1e-9)
	}

	// One karaoke overlay per word, shifted past the intro padding.
	require.Len(t, plan.Overlays, 7)
	assert.Equal(t, "A", plan.Overlays[0].Text)
	assert.Equal(t, "A lonely", plan.Overlays[1].Text)
	assert.Equal(t, "A lonely robot wakes.", plan.Overlays[3].Text)
	assert.Equal(t, "It walks", plan.Overlays[5].Text)
	assert.InDelta(t, 5.0+0.3, plan.Overlays[1].Start, 1e-9)
	assert.InDelta(t, 0.6, plan.Overlays[1].Duration, 1e-9)

	assert.Equal(t, "yellow", plan.Overlays[0].Style.Color)
	assert.Empty(t, plan.Overlays[0].Style.StrokeColor)
}

// Word overlays within one segment tile the segment without gaps or
// overlaps: each overlay ends exactly where the next begins.
func TestComposeKaraokeOverlaysTile(t *testing.T) {
	plan, err := New(testStyle(), 1).Compose(testSpec(5), testAssets(5), wordTrack(), 99)
	require.NoError(t, err)

	firstSegment := plan.Overlays[:4]
	for i := 1; i < len(firstSegment); i++ {
		prevEnd := firstSegment[i-1].Start + firstSegment[i-1].Duration
		assert.InDelta(t, prevEnd, firstSegment[i].Start, 1e-6)
	}
}

func TestComposeNonPaddedTruncatesToNarration(t *testing.T) {
	style := testStyle()
	style.PaddingSec = 0

	track := wordTrack()
	track.Timed[1].End = 40 // transcription claims 40s
	const narration = 35.0

	plan, err := New(style, 1).Compose(testSpec(5), testAssets(5), track, narration)
	require.NoError(t, err)

	assert.InDelta(t, narration, plan.TotalSec, 1e-9, "no trailing silent video")
	last := plan.VisualClips[len(plan.VisualClips)-1]
	assert.InDelta(t, narration, last.Start+last.Duration, 1e-9)
	for _, ov := range plan.Overlays {
		assert.LessOrEqual(t, ov.Start+ov.Duration, narration+1e-9)
	}
}

func TestComposeDurationReconciliation(t *testing.T) {
	// Final plan duration equals the visual end for both regimes; the
	// compositor forces audio to this exact length.
	for name, track := range map[string]types.SubtitleTrack{
		"sentence": sentenceTrack(5),
		"word":     wordTrack(),
	} {
		plan, err := New(testStyle(), 1).Compose(testSpec(5), testAssets(5), track, 50)
		require.NoError(t, err, name)
		last := plan.VisualClips[len(plan.VisualClips)-1]
		assert.InDelta(t, plan.TotalSec, last.Start+last.Duration, 1e-9, name)
	}
}

func TestComposeBackgroundMusic(t *testing.T) {
	style := testStyle()
	style.MusicPath = "bgm.mp3"

	plan, err := New(style, 1).Compose(testSpec(5), testAssets(5), sentenceTrack(5), 50)
	require.NoError(t, err)

	require.Len(t, plan.AudioTracks, 2)
	music := plan.AudioTracks[1]
	assert.Equal(t, "bgm.mp3", music.Path)
	assert.InDelta(t, 0.15, music.Gain, 1e-9)
	assert.True(t, music.Loop)
	assert.Equal(t, 0.0, music.Offset)
}

func TestComposeErrors(t *testing.T) {
	c := New(testStyle(), 1)

	_, err := c.Compose(testSpec(5), &types.AssetSet{}, sentenceTrack(5), 50)
	assert.Error(t, err, "no images")

	_, err = c.Compose(testSpec(5), testAssets(5), sentenceTrack(5), 0)
	assert.Error(t, err, "non-positive narration duration")

	_, err = c.Compose(testSpec(5), testAssets(3), sentenceTrack(5), 50)
	assert.Error(t, err, "sentence count must match image count")

	_, err = c.Compose(testSpec(5), testAssets(5), types.SubtitleTrack{Kind: "bogus"}, 50)
	assert.Error(t, err, "unknown track kind")

	_, err = c.Compose(testSpec(5), testAssets(5), types.SubtitleTrack{Kind: types.TrackWordTimed}, 50)
	assert.Error(t, err, "empty word-timed track")

	// All-zero timestamps would make every clip zero-length and poison the
	// zoom curves with divisions by zero.
	zeroTrack := types.SubtitleTrack{
		Kind:  types.TrackWordTimed,
		Timed: []types.TimedSegment{{Text: "x", Start: 0, End: 0}},
	}
	_, err = c.Compose(testSpec(5), testAssets(5), zeroTrack, 50)
	assert.Error(t, err, "zero-length word-timed track")
}

// Baseline layout: five segments, word mode off, no transitions, no
// padding. Five equal clips summing to the narration duration, five
// full-sentence overlays, zero transitions.
func TestComposeExampleScenario(t *testing.T) {
	style := testStyle()
	style.PaddingSec = 0
	style.Transitions = false

	const d = 42.0
	plan, err := New(style, 1).Compose(testSpec(5), testAssets(5), sentenceTrack(5), d)
	require.NoError(t, err)

	require.Len(t, plan.VisualClips, 5)
	var sum float64
	for _, clip := range plan.VisualClips {
		assert.InDelta(t, d/5, clip.Duration, 1e-9)
		assert.Nil(t, clip.TransitionIn)
		sum += clip.Duration
	}
	assert.InDelta(t, d, sum, 1e-9)
	assert.InDelta(t, d, plan.TotalSec, 1e-9)
	assert.Len(t, plan.Overlays, 5)

	style.Transitions = true
	plan, err = New(style, 1).Compose(testSpec(5), testAssets(5), sentenceTrack(5), d)
	require.NoError(t, err)
	var transitions int
	for _, clip := range plan.VisualClips {
		if clip.TransitionIn != nil {
			transitions++
		}
	}
	assert.Equal(t, 4, transitions)
}
