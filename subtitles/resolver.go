package subtitles

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"

	"storyreel/cache"
	"storyreel/logging"
	"storyreel/types"
)

// Options selects the subtitle mode and the transcription executable.
type Options struct {
	WordLevel  bool
	Executable string
	Model      string
}

// Resolver produces one of the two subtitle representations. Word-level mode
// depends on an external transcription subprocess; any subprocess failure
// downgrades to sentence mode exactly once and never loops, because the
// downgraded pass cannot re-enter the word-level branch.
type Resolver struct {
	opts   Options
	runner func(ctx context.Context, name string, args ...string) error
	log    zerolog.Logger
}

// New creates a Resolver.
func New(opts Options) *Resolver {
	if opts.Executable == "" {
		opts.Executable = "whisper"
	}
	if opts.Model == "" {
		opts.Model = "base"
	}
	return &Resolver{opts: opts, log: logging.Component("subtitles")}
}

// WithCommandRunner sets a custom command runner (for testing).
func (r *Resolver) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) *Resolver {
	r.runner = runner
	return r
}

// Resolve returns the terminal subtitle track for this run. Sentence mode
// uses the story's segments verbatim with no timing; timing is derived later
// by the composer from the narration duration.
func (r *Resolver) Resolve(ctx context.Context, spec *types.StorySpec, audioPath string, dirs cache.Dirs) types.SubtitleTrack {
	if r.opts.WordLevel {
		track, err := r.wordTimed(ctx, spec, audioPath, dirs)
		if err == nil {
			return track
		}
		// Single downgrade: mode is forced off for the second pass, so the
		// resolver always terminates in the sentence branch below.
		r.log.Warn().Err(err).Msg("word-level transcription unavailable, falling back to sentence subtitles")
	}
	return sentenceTrack(spec)
}

func sentenceTrack(spec *types.StorySpec) types.SubtitleTrack {
	lines := make([]types.SentenceLine, 0, len(spec.Segments))
	for i, seg := range spec.Segments {
		lines = append(lines, types.SentenceLine{Text: seg.VoicePrompt, SegmentIndex: i})
	}
	return types.SubtitleTrack{Kind: types.TrackSentence, Sentences: lines}
}

// wordTimed returns the word-timed track, invoking the transcription
// subprocess unless its output is already cached. The subprocess writes its
// JSON directly into the subtitles cache dir, so a successful invocation is
// its own persistence step.
func (r *Resolver) wordTimed(ctx context.Context, spec *types.StorySpec, audioPath string, dirs cache.Dirs) (types.SubtitleTrack, error) {
	outPath := dirs.TranscriptionPath(audioPath)
	if cache.Exists(outPath) {
		r.log.Info().Str("path", outPath).Msg("using cached transcription")
		return loadWordTimed(outPath)
	}

	args := []string{
		audioPath,
		"--model", r.opts.Model,
		"--word_timestamps", "True",
		"--output_format", "json",
		"--output_dir", dirs.Subtitles,
	}
	if spec.Lang != "" {
		args = append(args, "--language", spec.Lang)
	} else {
		r.log.Warn().Msg("no language code in story, transcription will auto-detect")
	}

	r.log.Info().Str("executable", r.opts.Executable).Msg("running transcription")
	if err := r.run(ctx, r.opts.Executable, args...); err != nil {
		return types.SubtitleTrack{}, err
	}

	return loadWordTimed(outPath)
}

func (r *Resolver) run(ctx context.Context, name string, args ...string) error {
	if r.runner != nil {
		return r.runner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// Whisper's JSON output shape, reduced to what the composer consumes.
type whisperOutput struct {
	Segments []whisperSegment `json:"segments"`
}

type whisperSegment struct {
	Text  string        `json:"text"`
	Start float64       `json:"start"`
	End   float64       `json:"end"`
	Words []whisperWord `json:"words"`
}

type whisperWord struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func loadWordTimed(path string) (types.SubtitleTrack, error) {
	var out whisperOutput
	if err := cache.LoadJSON(path, &out); err != nil {
		return types.SubtitleTrack{}, fmt.Errorf("read transcription: %w", err)
	}
	if len(out.Segments) == 0 {
		return types.SubtitleTrack{}, fmt.Errorf("transcription %s has no segments", path)
	}

	segments := make([]types.TimedSegment, 0, len(out.Segments))
	for i, seg := range out.Segments {
		if seg.End < seg.Start {
			return types.SubtitleTrack{}, fmt.Errorf("transcription segment %d has end before start", i)
		}
		words := make([]types.TimedWord, 0, len(seg.Words))
		for j, w := range seg.Words {
			if w.End < w.Start {
				return types.SubtitleTrack{}, fmt.Errorf("transcription segment %d word %d has end before start", i, j)
			}
			if j > 0 && w.Start < seg.Words[j-1].Start {
				return types.SubtitleTrack{}, fmt.Errorf("transcription segment %d words are not time-ordered", i)
			}
			words = append(words, types.TimedWord{
				Text:  strings.TrimSpace(w.Word),
				Start: w.Start,
				End:   w.End,
			})
		}
		segments = append(segments, types.TimedSegment{
			Text:  strings.TrimSpace(seg.Text),
			Start: seg.Start,
			End:   seg.End,
			Words: words,
		})
	}
	return types.SubtitleTrack{Kind: types.TrackWordTimed, Timed: segments}, nil
}
