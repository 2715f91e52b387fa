package timeline

import (
	"fmt"
	"math/rand"

	"github.com/rs/zerolog"

	"storyreel/config"
	"storyreel/logging"
	"storyreel/types"
)

// fadeSec is the intro fade-in / outro fade-out length inside the padding
// clips.
const fadeSec = 1.0

var transitionKinds = []types.TransitionKind{
	types.TransitionCrossfade,
	types.TransitionSlideLeft,
	types.TransitionSlideTop,
	types.TransitionHardFade,
}

// Composer converts story segments, downloaded assets and a subtitle track
// into the timed composition plan the compositor renders. It owns every
// scheduling decision: per-clip durations, zoom curves, transition overlaps,
// padding, and audio/video length reconciliation.
type Composer struct {
	style config.StyleConfig
	rng   *rand.Rand
	log   zerolog.Logger
}

// New creates a Composer. The seed drives transition selection, so a fixed
// seed yields a reproducible transition schedule.
func New(style config.StyleConfig, seed int64) *Composer {
	return &Composer{
		style: style,
		rng:   rand.New(rand.NewSource(seed)),
		log:   logging.Component("timeline"),
	}
}

// Compose builds the plan. narrationDur is the probed duration of the
// narration track in seconds.
//
// Sentence regime: total visual duration equals narrationDur, split evenly
// across the images, one full-sentence overlay per slot.
//
// Word-timed regime: total visual duration equals the end timestamp of the
// last transcribed segment, which is authoritative over the audio file
// duration because transcription timing is the reference clock for subtitle
// sync. Images take an even split of that total regardless of how many
// transcription segments exist; overlays are karaoke-style growing prefixes
// per word.
func (c *Composer) Compose(spec *types.StorySpec, assetSet *types.AssetSet, track types.SubtitleTrack, narrationDur float64) (*types.TimelinePlan, error) {
	if len(assetSet.ImagePaths) == 0 {
		return nil, fmt.Errorf("compose: no images in asset set")
	}
	if narrationDur <= 0 {
		return nil, fmt.Errorf("compose: narration duration %.3f is not positive", narrationDur)
	}

	var (
		middleDur float64
		overlays  []types.Overlay
	)
	switch track.Kind {
	case types.TrackSentence:
		if len(track.Sentences) != len(assetSet.ImagePaths) {
			return nil, fmt.Errorf("compose: %d sentence lines for %d images",
				len(track.Sentences), len(assetSet.ImagePaths))
		}
		middleDur = narrationDur
	case types.TrackWordTimed:
		if len(track.Timed) == 0 {
			return nil, fmt.Errorf("compose: word-timed track has no segments")
		}
		middleDur = track.Timed[len(track.Timed)-1].End
		if middleDur <= 0 {
			return nil, fmt.Errorf("compose: word-timed track ends at %.3f", middleDur)
		}
	default:
		return nil, fmt.Errorf("compose: unknown subtitle track kind %q", track.Kind)
	}

	pad := c.style.PaddingSec
	clips := c.middleClips(assetSet.ImagePaths, middleDur, pad)
	middleComposed := composedDuration(clips, pad)

	switch track.Kind {
	case types.TrackSentence:
		overlays = c.sentenceOverlays(track.Sentences, clips)
	case types.TrackWordTimed:
		overlays = c.karaokeOverlays(track.Timed, pad)
	}

	if pad > 0 {
		intro := types.VisualClip{
			ImagePath: assetSet.ImagePaths[0],
			Start:     0,
			Duration:  pad,
			Zoom:      flatZoom,
			FadeInSec: fadeSec,
		}
		outro := types.VisualClip{
			ImagePath:  assetSet.ImagePaths[len(assetSet.ImagePaths)-1],
			Start:      pad + middleComposed,
			Duration:   pad,
			Zoom:       flatZoom,
			FadeOutSec: fadeSec,
		}
		clips = append(append([]types.VisualClip{intro}, clips...), outro)
	}

	total := 2*pad + middleComposed

	plan := &types.TimelinePlan{
		VisualClips: clips,
		Overlays:    overlays,
		TotalSec:    total,
		AudioTracks: c.audioTracks(assetSet.NarrationAudioPath, pad),
	}

	// Simpler non-padded variant: never leave trailing silent video.
	if pad == 0 && plan.TotalSec > narrationDur {
		c.truncate(plan, narrationDur)
	}

	c.log.Info().
		Str("regime", string(track.Kind)).
		Int("clips", len(plan.VisualClips)).
		Int("overlays", len(plan.Overlays)).
		Float64("total_sec", plan.TotalSec).
		Msg("timeline composed")
	return plan, nil
}

// middleClips lays out the main image clips over an even split of totalDur,
// starting at offset. When transitions are on, each clip after the first
// overlaps its predecessor by the transition duration; starts are computed
// from the actual elapsed composed time so the overlap drift accumulates
// correctly instead of compounding rounding into later clips.
func (c *Composer) middleClips(imagePaths []string, totalDur, offset float64) []types.VisualClip {
	n := len(imagePaths)
	clipDur := totalDur / float64(n)

	clips := make([]types.VisualClip, 0, n)
	elapsed := offset
	for i, path := range imagePaths {
		start := elapsed
		var trans *types.Transition
		if c.style.Transitions && i > 0 {
			kind := transitionKinds[c.rng.Intn(len(transitionKinds))]
			trans = &types.Transition{Kind: kind, Duration: c.style.TransitionSec}
			start = elapsed - c.style.TransitionSec
		}
		clips = append(clips, types.VisualClip{
			ImagePath:    path,
			Start:        start,
			Duration:     clipDur,
			Zoom:         pushInZoom(c.style.ZoomFactor, clipDur),
			TransitionIn: trans,
		})
		elapsed = start + clipDur
	}
	return clips
}

// composedDuration is the actual middle-section length after transition
// overlaps shrank it.
func composedDuration(clips []types.VisualClip, offset float64) float64 {
	if len(clips) == 0 {
		return 0
	}
	last := clips[len(clips)-1]
	return last.Start + last.Duration - offset
}

// pushInZoom is the slow push-in effect: scale(t) = 1 + k*(t/clipDur), with
// t local to the clip.
func pushInZoom(k, clipDur float64) types.ZoomCurve {
	return func(t float64) float64 {
		return 1 + k*(t/clipDur)
	}
}

func flatZoom(float64) float64 { return 1 }

// sentenceOverlays shows each segment's full narration text for its image's
// whole slot.
func (c *Composer) sentenceOverlays(lines []types.SentenceLine, clips []types.VisualClip) []types.Overlay {
	style := c.overlayStyle(c.style.FontColor, true)
	overlays := make([]types.Overlay, 0, len(lines))
	for i, line := range lines {
		overlays = append(overlays, types.Overlay{
			Text:     line.Text,
			Start:    clips[i].Start,
			Duration: clips[i].Duration,
			Style:    style,
		})
	}
	return overlays
}

// karaokeOverlays emits one overlay per word: the space-joined prefix of
// every word in the segment whose start is <= this word's start, active for
// exactly [word.Start, word.End). Within a segment the word intervals tile
// the segment without gaps or overlaps, up to source timing imprecision.
func (c *Composer) karaokeOverlays(segments []types.TimedSegment, offset float64) []types.Overlay {
	style := c.overlayStyle(c.style.HighlightColor, false)
	var overlays []types.Overlay
	for _, seg := range segments {
		for _, w := range seg.Words {
			text := ""
			for _, prev := range seg.Words {
				if prev.Start <= w.Start {
					if text != "" {
						text += " "
					}
					text += prev.Text
				}
			}
			overlays = append(overlays, types.Overlay{
				Text:     text,
				Start:    offset + w.Start,
				Duration: w.End - w.Start,
				Style:    style,
			})
		}
	}
	return overlays
}

func (c *Composer) overlayStyle(color string, stroke bool) types.OverlayStyle {
	s := types.OverlayStyle{
		Color:    color,
		FontPath: c.style.FontPath,
		SizePx:   c.style.FontSizePx,
		HAlign:   "center",
		Anchor:   c.style.SubtitlePosition,
	}
	if stroke {
		s.StrokeColor = c.style.StrokeColor
		s.StrokeWidth = c.style.StrokeWidth
	}
	return s
}

// audioTracks builds the final mix: narration shifted past the intro
// padding so it begins exactly when the main content does, plus optional
// attenuated background music looped over the whole plan.
func (c *Composer) audioTracks(narrationPath string, pad float64) []types.AudioTrack {
	tracks := []types.AudioTrack{{
		Path:   narrationPath,
		Offset: pad,
		Gain:   1.0,
	}}
	if c.style.MusicPath != "" {
		tracks = append(tracks, types.AudioTrack{
			Path: c.style.MusicPath,
			Gain: c.style.MusicGain,
			Loop: true,
		})
	}
	return tracks
}

// truncate cuts the plan to maxDur: clips and overlays past the cut are
// dropped, the ones straddling it are shortened, and the plan total becomes
// exactly maxDur so audio and video lengths agree.
func (c *Composer) truncate(plan *types.TimelinePlan, maxDur float64) {
	c.log.Info().Float64("from", plan.TotalSec).Float64("to", maxDur).Msg("truncating plan to narration length")

	keepClips := plan.VisualClips[:0]
	for _, clip := range plan.VisualClips {
		if clip.Start >= maxDur {
			break
		}
		if clip.Start+clip.Duration > maxDur {
			clip.Duration = maxDur - clip.Start
		}
		keepClips = append(keepClips, clip)
	}
	plan.VisualClips = keepClips

	keepOverlays := plan.Overlays[:0]
	for _, ov := range plan.Overlays {
		if ov.Start >= maxDur {
			continue
		}
		if ov.Start+ov.Duration > maxDur {
			ov.Duration = maxDur - ov.Start
		}
		keepOverlays = append(keepOverlays, ov)
	}
	plan.Overlays = keepOverlays
	plan.TotalSec = maxDur
}
