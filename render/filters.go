package render

import (
	"fmt"
	"strings"

	"storyreel/types"
)

// zoomFilter builds the zoompan push-in filter for one still-image clip.
// The image is upscaled first so the pan window has sub-pixel room to move,
// then brought back down to the output size (otherwise zoompan jitters).
func zoomFilter(clip types.VisualClip, width, height, fps int) string {
	totalFrames := int(clip.Duration * float64(fps))
	if totalFrames < 1 {
		totalFrames = 1
	}
	endScale := clip.Zoom(clip.Duration)
	zoomStep := (endScale - 1.0) / float64(totalFrames)
	return fmt.Sprintf(
		"scale=%d:%d,zoompan=z='min(zoom+%.6f,%.3f)':x='iw/2-(iw/zoom/2)':y='ih/2-(ih/zoom/2)':d=%d:fps=%d:s=%dx%d",
		width*2, height*2,
		zoomStep, endScale,
		totalFrames, fps,
		width, height,
	)
}

// xfadeName maps a transition kind to its ffmpeg xfade transition name.
func xfadeName(kind types.TransitionKind) string {
	switch kind {
	case types.TransitionCrossfade:
		return "fade"
	case types.TransitionSlideLeft:
		return "slideleft"
	case types.TransitionSlideTop:
		return "slideup"
	case types.TransitionHardFade:
		return "fadeblack"
	default:
		return "fade"
	}
}

// captionWidthRatio is the fraction of the frame width a caption may span.
const captionWidthRatio = 0.9

// captionMaxChars estimates how many characters fit in the caption band,
// assuming an average glyph advance just over half the font size.
func captionMaxChars(frameWidth, fontSize int) int {
	if frameWidth <= 0 || fontSize <= 0 {
		return 0
	}
	return int(float64(frameWidth) * captionWidthRatio / (0.55 * float64(fontSize)))
}

// wrapText breaks s into newline-separated lines of at most maxChars
// characters, never splitting inside a word. maxChars <= 0 disables
// wrapping; a single word longer than maxChars gets its own line.
func wrapText(s string, maxChars int) string {
	if maxChars <= 0 {
		return s
	}
	var lines []string
	var line string
	for _, w := range strings.Fields(s) {
		switch {
		case line == "":
			line = w
		case len(line)+1+len(w) <= maxChars:
			line += " " + w
		default:
			lines = append(lines, line)
			line = w
		}
	}
	if line != "" {
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// drawtextFilter builds one subtitle overlay as a drawtext filter gated on
// its active interval, wrapped to maxChars per line.
func drawtextFilter(ov types.Overlay, maxChars int) string {
	var b strings.Builder
	b.WriteString("drawtext=text='")
	b.WriteString(escapeText(wrapText(ov.Text, maxChars)))
	b.WriteString("'")
	if ov.Style.FontPath != "" {
		fmt.Fprintf(&b, ":fontfile='%s'", escapeText(ov.Style.FontPath))
	}
	fmt.Fprintf(&b, ":fontsize=%d:fontcolor=%s", ov.Style.SizePx, ov.Style.Color)
	if ov.Style.StrokeColor != "" {
		fmt.Fprintf(&b, ":bordercolor=%s:borderw=%.1f", ov.Style.StrokeColor, ov.Style.StrokeWidth)
	}
	b.WriteString(":x=(w-text_w)/2")
	switch ov.Style.Anchor {
	case "top":
		fmt.Fprintf(&b, ":y=h*0.1")
	case "center":
		b.WriteString(":y=(h-text_h)/2")
	default: // bottom
		fmt.Fprintf(&b, ":y=h*0.8")
	}
	fmt.Fprintf(&b, ":enable='between(t,%.3f,%.3f)'", ov.Start, ov.Start+ov.Duration)
	return b.String()
}

// escapeText escapes a string for use inside a single-quoted ffmpeg filter
// argument.
func escapeText(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	s = strings.ReplaceAll(s, `:`, `\:`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	return s
}

// audioFilter builds the filter_complex for the final mix: the narration
// delayed past the intro padding, an optional looped and attenuated music
// bed, and an apad+atrim pair that forces the mixed track to exactly the
// plan's visual duration.
func audioFilter(tracks []types.AudioTrack, totalSec float64) string {
	var stages []string
	var mixIn []string
	for i, tr := range tracks {
		label := fmt.Sprintf("a%d", i)
		var ops []string
		if tr.Offset > 0 {
			delayMs := int(tr.Offset * 1000)
			ops = append(ops, fmt.Sprintf("adelay=%d|%d", delayMs, delayMs))
		}
		if tr.Gain != 1.0 {
			ops = append(ops, fmt.Sprintf("volume=%.3f", tr.Gain))
		}
		if tr.Loop {
			ops = append(ops, fmt.Sprintf("aloop=loop=-1:size=2e9,atrim=0:%.3f", totalSec))
		}
		if len(ops) == 0 {
			ops = append(ops, "anull")
		}
		stages = append(stages, fmt.Sprintf("[%d:a]%s[%s]", i, strings.Join(ops, ","), label))
		mixIn = append(mixIn, "["+label+"]")
	}
	mix := fmt.Sprintf("%samix=inputs=%d:normalize=0,apad,atrim=0:%.3f[aout]",
		strings.Join(mixIn, ""), len(tracks), totalSec)
	return strings.Join(stages, ";") + ";" + mix
}
