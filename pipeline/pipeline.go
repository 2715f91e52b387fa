package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"storyreel/assets"
	"storyreel/cache"
	"storyreel/config"
	"storyreel/fetch"
	"storyreel/logging"
	"storyreel/media"
	"storyreel/render"
	"storyreel/story"
	"storyreel/subtitles"
	"storyreel/timeline"
	"storyreel/types"
)

// DefaultSeed is used when the caller does not pin an image seed.
const DefaultSeed = 5000

// Options are the per-run knobs. Style is constructed once by the caller
// and never re-read from global state mid-run.
type Options struct {
	Topic         string
	Seed          int
	WordSubtitles bool
	UseGPU        bool
	OutputPath    string
	WhisperPath   string
	PrintPlan     bool
	Style         config.StyleConfig
}

// Pipeline drives the strictly ordered run:
// story -> assets -> subtitles -> timeline -> render.
// Every stage checks its cache first, so re-running after a fatal abort
// never repeats completed work.
type Pipeline struct {
	cfg        *config.Config
	fetcher    *fetch.Fetcher
	compositor render.Compositor
	probe      func(ctx context.Context, path string) (float64, error)
	log        zerolog.Logger
}

// New wires a Pipeline with the production collaborators.
func New(cfg *config.Config) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		fetcher: fetch.New(),
		probe:   media.Duration,
		log:     logging.Component("pipeline"),
	}
}

// WithCompositor overrides the render backend (used in tests).
func (p *Pipeline) WithCompositor(c render.Compositor) *Pipeline {
	p.compositor = c
	return p
}

// WithFetcher overrides the asset fetcher (used in tests).
func (p *Pipeline) WithFetcher(f *fetch.Fetcher) *Pipeline {
	p.fetcher = f
	return p
}

// WithDurationProbe overrides the media duration probe (used in tests).
func (p *Pipeline) WithDurationProbe(probe func(ctx context.Context, path string) (float64, error)) *Pipeline {
	p.probe = probe
	return p
}

// Run executes one full topic-to-video run. The returned state is also
// persisted next to the cached assets; on error, cache contents stay intact
// for a resumable re-run.
func (p *Pipeline) Run(ctx context.Context, opts Options) (state *types.RunState, err error) {
	state = &types.RunState{
		RunID:     uuid.NewString()[:8],
		Topic:     opts.Topic,
		StartedAt: time.Now().UTC().Format(time.RFC3339),
	}
	p.log.Info().Str("run_id", state.RunID).Str("topic", opts.Topic).Msg("pipeline starting")

	dirs, err := cache.Resolve(p.cfg.Paths.CacheDir, opts.Topic)
	if err != nil {
		return state, err
	}
	defer func() {
		state.CompletedAt = time.Now().UTC().Format(time.RFC3339)
		if err != nil {
			state.Error = err.Error()
		}
		if saveErr := cache.SaveJSON(filepath.Join(dirs.Base, "run_state.json"), state); saveErr != nil {
			p.log.Warn().Err(saveErr).Msg("could not save run state")
		}
	}()

	style := opts.Style
	style.FontPath, err = p.fetchFont(ctx, style.FontID)
	if err != nil {
		return state, err
	}

	spec, err := story.New(p.cfg.Endpoints.StoryURL).Obtain(ctx, opts.Topic, dirs)
	if err != nil {
		return state, fmt.Errorf("story: %w", err)
	}
	state.Story = spec

	seed := opts.Seed
	if seed <= 0 {
		seed = DefaultSeed
	}
	assetSet, err := assets.New(p.fetcher, p.cfg.Endpoints.ImageURL, p.cfg.Endpoints.AudioURL).
		Acquire(ctx, spec, seed, dirs)
	if err != nil {
		return state, fmt.Errorf("assets: %w", err)
	}
	state.Assets = assetSet

	narrationDur, err := p.probe(ctx, assetSet.NarrationAudioPath)
	if err != nil {
		return state, fmt.Errorf("probe narration: %w", err)
	}
	p.log.Info().Float64("narration_sec", narrationDur).Msg("narration probed")

	track := subtitles.New(p.subtitleOptions(opts)).
		Resolve(ctx, spec, assetSet.NarrationAudioPath, dirs)
	state.SubtitleMode = string(track.Kind)

	plan, err := timeline.New(style, int64(seed)).Compose(spec, assetSet, track, narrationDur)
	if err != nil {
		return state, fmt.Errorf("timeline: %w", err)
	}
	if opts.PrintPlan {
		PrintPlan(os.Stdout, plan)
	}

	outputPath := opts.OutputPath
	if outputPath == "" {
		outputPath = cache.Slugify(spec.Title) + ".mp4"
	}

	compositor := p.compositor
	if compositor == nil {
		compositor = render.NewFFmpeg(p.cfg.Render, filepath.Join(dirs.Base, "render"))
	}
	if err := compositor.Render(ctx, plan, outputPath, opts.UseGPU); err != nil {
		return state, fmt.Errorf("render: %w", err)
	}
	state.VideoFile = outputPath

	p.log.Info().Str("output", outputPath).Msg("pipeline complete")
	return state, nil
}

// subtitleOptions builds the resolver options for one run. The transcription
// executable comes from the config file unless the run overrides it.
func (p *Pipeline) subtitleOptions(opts Options) subtitles.Options {
	exe := opts.WhisperPath
	if exe == "" {
		exe = p.cfg.Whisper.Executable
	}
	return subtitles.Options{
		WordLevel:  opts.WordSubtitles,
		Executable: exe,
		Model:      p.cfg.Whisper.Model,
	}
}

// fetchFont downloads the subtitle font into the shared font cache. A font
// that cannot be obtained is fatal: every overlay depends on it.
func (p *Pipeline) fetchFont(ctx context.Context, fontID string) (string, error) {
	fontPath, err := cache.FontPath(p.cfg.Paths.CacheDir, fontID)
	if err != nil {
		return "", err
	}
	url := fmt.Sprintf(p.cfg.Endpoints.FontURL, fontID)
	if err := p.fetcher.Fetch(ctx, url, fontPath); err != nil {
		return "", fmt.Errorf("font %s: %w", fontID, err)
	}
	return fontPath, nil
}
