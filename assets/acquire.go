package assets

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"storyreel/cache"
	"storyreel/fetch"
	"storyreel/logging"
	"storyreel/types"
)

// ErrIncomplete marks a run where at least one required asset could not be
// obtained after retries. Partial asset sets are never handed downstream.
var ErrIncomplete = errors.New("asset set incomplete")

const (
	audioPromptPrefix = "Use a storyteller tone and read the following text exactly as it is, without any changes: "
	fallbackPrompt    = "a blank white background"

	// imageWorkers bounds the concurrent image downloads. Downloads are
	// independent, so this is the one stage that parallelizes.
	imageWorkers = 4
)

// Acquirer downloads every per-segment image plus the single narration
// track, using the story's segments as its task list.
type Acquirer struct {
	fetcher  *fetch.Fetcher
	imageURL string // template: URL-encoded prompt, integer seed
	audioURL string // template: URL-encoded prompt
	log      zerolog.Logger
}

// New creates an Acquirer.
func New(fetcher *fetch.Fetcher, imageURL, audioURL string) *Acquirer {
	return &Acquirer{
		fetcher:  fetcher,
		imageURL: imageURL,
		audioURL: audioURL,
		log:      logging.Component("assets"),
	}
}

// ImageURL builds the image request for one segment. A fixed prompt and
// seed always produce the same URL and the same cache path, which is what
// makes image acquisition reproducible across runs.
func (ac *Acquirer) ImageURL(prompt string, seed int) string {
	if prompt == "" {
		prompt = fallbackPrompt
	}
	return fmt.Sprintf(ac.imageURL, url.PathEscape(prompt), seed)
}

// Acquire fetches all assets for the story. Images download concurrently
// under a bounded worker group; the first exhausted-retries failure cancels
// the group and fails the whole run. The narration is requested as one
// continuous track built from the space-joined segment texts, because
// word-level subtitle timing downstream needs a single continuous timeline.
func (ac *Acquirer) Acquire(ctx context.Context, spec *types.StorySpec, seed int, dirs cache.Dirs) (*types.AssetSet, error) {
	ac.log.Info().Int("segments", len(spec.Segments)).Int("seed", seed).Msg("acquiring assets")

	imagePaths := make([]string, len(spec.Segments))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(imageWorkers)
	for i, seg := range spec.Segments {
		i, seg := i, seg
		g.Go(func() error {
			dest := dirs.ImagePath(i)
			if err := ac.fetcher.Fetch(gctx, ac.ImageURL(seg.ImagePrompt, seed), dest); err != nil {
				return fmt.Errorf("image %d: %w", i+1, err)
			}
			imagePaths[i] = dest
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIncomplete, err)
	}
	ac.log.Info().Int("count", len(imagePaths)).Msg("all images ready")

	voices := make([]string, 0, len(spec.Segments))
	for _, seg := range spec.Segments {
		voices = append(voices, seg.VoicePrompt)
	}
	audioPrompt := audioPromptPrefix + strings.Join(voices, " ")
	audioURL := fmt.Sprintf(ac.audioURL, url.PathEscape(audioPrompt))

	narrationPath := dirs.NarrationPath()
	if err := ac.fetcher.Fetch(ctx, audioURL, narrationPath); err != nil {
		return nil, fmt.Errorf("%w: narration: %v", ErrIncomplete, err)
	}
	ac.log.Info().Str("path", narrationPath).Msg("narration ready")

	return &types.AssetSet{
		ImagePaths:         imagePaths,
		NarrationAudioPath: narrationPath,
	}, nil
}
