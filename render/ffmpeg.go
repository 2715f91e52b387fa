package render

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"storyreel/config"
	"storyreel/logging"
	"storyreel/types"
)

// FFmpeg renders plans with the ffmpeg CLI in three passes: per-clip
// zoompan renders, a transition/concat + subtitle pass, and a final mux
// with the reconciled audio mix.
type FFmpeg struct {
	cfg     config.RenderConfig
	workDir string
	runner  func(ctx context.Context, name string, args ...string) error
	log     zerolog.Logger
}

// NewFFmpeg creates the compositor. workDir holds intermediate files.
func NewFFmpeg(cfg config.RenderConfig, workDir string) *FFmpeg {
	return &FFmpeg{
		cfg:     cfg,
		workDir: workDir,
		log:     logging.Component("render"),
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func (f *FFmpeg) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) *FFmpeg {
	f.runner = runner
	return f
}

// Render writes the plan to outputPath. With preferGPU the first encode uses
// the GPU codec and a failure downgrades to the CPU codec once; without it a
// failure is final.
func (f *FFmpeg) Render(ctx context.Context, plan *types.TimelinePlan, outputPath string, preferGPU bool) error {
	if err := os.MkdirAll(f.workDir, 0o755); err != nil {
		return fmt.Errorf("create render work dir: %w", err)
	}
	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	clipFiles, err := f.renderClips(ctx, plan)
	if err != nil {
		return err
	}

	visuals, err := f.assembleVisuals(ctx, plan, clipFiles)
	if err != nil {
		return err
	}

	codec := f.cfg.CPUCodec
	if preferGPU {
		codec = f.cfg.GPUCodec
	}
	f.log.Info().Str("codec", codec).Str("output", outputPath).Msg("encoding final video")
	if err := f.mux(ctx, plan, visuals, outputPath, codec); err != nil {
		if !preferGPU {
			return fmt.Errorf("%w: %v", ErrEncode, err)
		}
		f.log.Warn().Err(err).Str("fallback", f.cfg.CPUCodec).Msg("GPU encode failed, retrying on CPU")
		if err := f.mux(ctx, plan, visuals, outputPath, f.cfg.CPUCodec); err != nil {
			return fmt.Errorf("%w: %v", ErrEncode, err)
		}
	}

	f.log.Info().Str("output", outputPath).Msg("render complete")
	return nil
}

// renderClips turns every still image into a timed clip with its zoom curve
// and any fade applied.
func (f *FFmpeg) renderClips(ctx context.Context, plan *types.TimelinePlan) ([]string, error) {
	files := make([]string, 0, len(plan.VisualClips))
	for i, clip := range plan.VisualClips {
		outFile := filepath.Join(f.workDir, fmt.Sprintf("clip_%03d.mp4", i))

		vf := zoomFilter(clip, f.cfg.Width, f.cfg.Height, f.cfg.FPS)
		if clip.FadeInSec > 0 {
			vf += fmt.Sprintf(",fade=t=in:st=0:d=%.2f", clip.FadeInSec)
		}
		if clip.FadeOutSec > 0 {
			vf += fmt.Sprintf(",fade=t=out:st=%.3f:d=%.2f", clip.Duration-clip.FadeOutSec, clip.FadeOutSec)
		}

		args := []string{"-y",
			"-loop", "1",
			"-i", clip.ImagePath,
			"-vf", vf,
			"-t", fmt.Sprintf("%.3f", clip.Duration),
			"-c:v", f.cfg.CPUCodec,
			"-preset", "fast",
			"-pix_fmt", "yuv420p",
			"-an",
			outFile,
		}
		if err := f.run(ctx, "ffmpeg", args...); err != nil {
			return nil, fmt.Errorf("render clip %d: %w", i, err)
		}
		files = append(files, outFile)
	}
	return files, nil
}

// assembleVisuals joins the clips into one silent track. Clips that carry a
// transition are joined with xfade at the start time the composer already
// drift-corrected; otherwise a plain concat list does (subtitle overlays are
// burned in the same pass).
func (f *FFmpeg) assembleVisuals(ctx context.Context, plan *types.TimelinePlan, clipFiles []string) (string, error) {
	outFile := filepath.Join(f.workDir, "visuals.mp4")

	hasTransitions := false
	for _, clip := range plan.VisualClips {
		if clip.TransitionIn != nil {
			hasTransitions = true
			break
		}
	}

	var args []string
	if hasTransitions && len(clipFiles) > 1 {
		args = append(args, "-y")
		for _, file := range clipFiles {
			args = append(args, "-i", file)
		}
		args = append(args,
			"-filter_complex", f.xfadeGraph(plan),
			"-map", "[vout]",
		)
	} else {
		listFile := filepath.Join(f.workDir, "clips_concat.txt")
		var lines []string
		for _, file := range clipFiles {
			lines = append(lines, fmt.Sprintf("file '%s'", file))
		}
		if err := os.WriteFile(listFile, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
			return "", err
		}
		args = append(args, "-y",
			"-f", "concat",
			"-safe", "0",
			"-i", listFile,
		)
		if len(plan.Overlays) > 0 {
			args = append(args, "-vf", f.overlayChain(plan))
		}
	}

	args = append(args,
		"-c:v", f.cfg.CPUCodec,
		"-preset", "fast",
		"-pix_fmt", "yuv420p",
		"-r", fmt.Sprintf("%d", f.cfg.FPS),
		"-an",
		outFile,
	)
	if err := f.run(ctx, "ffmpeg", args...); err != nil {
		return "", fmt.Errorf("assemble visuals: %w", err)
	}
	return outFile, nil
}

// xfadeGraph chains every clip with its transition and appends the subtitle
// overlays on the joined stream.
func (f *FFmpeg) xfadeGraph(plan *types.TimelinePlan) string {
	var b strings.Builder
	prev := "[0:v]"
	for i := 1; i < len(plan.VisualClips); i++ {
		clip := plan.VisualClips[i]
		out := fmt.Sprintf("[x%d]", i)
		if clip.TransitionIn != nil {
			fmt.Fprintf(&b, "%s[%d:v]xfade=transition=%s:duration=%.3f:offset=%.3f%s;",
				prev, i, xfadeName(clip.TransitionIn.Kind), clip.TransitionIn.Duration, clip.Start, out)
		} else {
			// Padding clips join back to back; concat consumes no overlap,
			// so overlay enable windows stay aligned with the frames.
			fmt.Fprintf(&b, "%s[%d:v]concat=n=2:v=1:a=0%s;", prev, i, out)
		}
		prev = out
	}
	overlay := f.overlayChain(plan)
	if overlay == "" {
		overlay = "null"
	}
	fmt.Fprintf(&b, "%s%s[vout]", prev, overlay)
	return b.String()
}

// overlayChain burns every subtitle overlay as a chained drawtext filter.
func (f *FFmpeg) overlayChain(plan *types.TimelinePlan) string {
	filters := make([]string, 0, len(plan.Overlays))
	for _, ov := range plan.Overlays {
		filters = append(filters, drawtextFilter(ov, captionMaxChars(f.cfg.Width, ov.Style.SizePx)))
	}
	return strings.Join(filters, ",")
}

// mux combines the silent visual track with the reconciled audio mix and
// encodes the final file.
func (f *FFmpeg) mux(ctx context.Context, plan *types.TimelinePlan, visuals, outputPath, codec string) error {
	args := []string{"-y", "-i", visuals}
	for _, tr := range plan.AudioTracks {
		args = append(args, "-i", tr.Path)
	}

	// Audio input indices in the filter are offset by the video input.
	tracks := make([]types.AudioTrack, len(plan.AudioTracks))
	copy(tracks, plan.AudioTracks)
	filter := shiftedAudioFilter(tracks, plan.TotalSec)

	args = append(args,
		"-filter_complex", filter,
		"-map", "0:v",
		"-map", "[aout]",
		"-c:v", codec,
		"-preset", f.cfg.Preset,
		"-c:a", f.cfg.AudioCodec,
		"-b:a", "192k",
		"-t", fmt.Sprintf("%.3f", plan.TotalSec),
		"-r", fmt.Sprintf("%d", f.cfg.FPS),
		"-threads", fmt.Sprintf("%d", f.cfg.Threads),
		"-movflags", "+faststart",
		outputPath,
	)
	return f.run(ctx, "ffmpeg", args...)
}

// shiftedAudioFilter is audioFilter with input indices starting at 1, since
// input 0 is the video in the mux pass.
func shiftedAudioFilter(tracks []types.AudioTrack, totalSec float64) string {
	filter := audioFilter(tracks, totalSec)
	for i := len(tracks) - 1; i >= 0; i-- {
		filter = strings.Replace(filter, fmt.Sprintf("[%d:a]", i), fmt.Sprintf("[%d:a]", i+1), 1)
	}
	return filter
}

func (f *FFmpeg) run(ctx context.Context, name string, args ...string) error {
	if f.runner != nil {
		return f.runner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, tail(string(output), 400))
	}
	return nil
}

// tail keeps the last n bytes of ffmpeg's chatter, where the actual error is.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
