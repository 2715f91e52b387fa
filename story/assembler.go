package story

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"
	"golang.org/x/text/language"

	"storyreel/cache"
	"storyreel/logging"
	"storyreel/types"
)

// ErrMalformedResponse marks a story payload the generator returned that
// cannot be used: transport failure, unparseable JSON, or a segment count
// that breaks the generator contract. Structured-generation failures are
// non-transient, so there is no retry at this layer.
var ErrMalformedResponse = errors.New("malformed story response")

const promptTemplate = `You are an expert multilingual storyteller AI. A user has provided a story topic. Your task is to generate a short story script based on this topic. The user's topic is: "%s". You MUST adhere to the following rules: 1. Detect the language of the user's topic. 2. The 'title' and all 'voice_prompt' values in your response MUST be in the same language as the user's topic. 3. The 'image_prompt' values MUST be in English and be highly descriptive for a text-to-image AI. 4. The output MUST be a single, valid JSON object. 5. The JSON structure must be: {"title": "A story title", "lang": "id", "segments": [{"voice_prompt": "A sentence for the narrator.", "image_prompt": "A descriptive English image prompt."}, ...]} 6. The story must contain exactly 5 segments. 7. The 'lang' field MUST contain the appropriate two-letter language code for the detected language.`

// Assembler obtains a structured story for a topic, through the cache.
type Assembler struct {
	client      *http.Client
	urlTemplate string
	log         zerolog.Logger
}

// New creates an Assembler. urlTemplate takes one URL-encoded prompt.
func New(urlTemplate string) *Assembler {
	return &Assembler{
		client:      &http.Client{Timeout: 60 * time.Second},
		urlTemplate: urlTemplate,
		log:         logging.Component("story"),
	}
}

// WithClient overrides the HTTP client (used in tests).
func (a *Assembler) WithClient(c *http.Client) *Assembler {
	a.client = c
	return a
}

// Obtain returns the story for a topic. A previously persisted story under
// the resolved cache path is deserialized and returned without any network
// call and without re-validation. On a cache miss, one generation request is
// issued; its raw payload is persisted verbatim before returning, so later
// runs for the same slug are fully offline.
func (a *Assembler) Obtain(ctx context.Context, topic string, dirs cache.Dirs) (*types.StorySpec, error) {
	storyPath := dirs.StoryPath()
	if cache.Exists(storyPath) {
		a.log.Info().Str("path", storyPath).Msg("using cached story")
		var spec types.StorySpec
		if err := cache.LoadJSON(storyPath, &spec); err != nil {
			return nil, fmt.Errorf("read cached story: %w", err)
		}
		return &spec, nil
	}

	a.log.Info().Str("topic", topic).Msg("requesting story generation")

	prompt := fmt.Sprintf(promptTemplate, topic)
	reqURL := fmt.Sprintf(a.urlTemplate, url.PathEscape(prompt))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrMalformedResponse, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	var spec types.StorySpec
	if err := json.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(spec.Segments) != types.ExpectedSegments {
		return nil, fmt.Errorf("%w: expected %d segments, got %d",
			ErrMalformedResponse, types.ExpectedSegments, len(spec.Segments))
	}
	a.checkLang(spec.Lang)

	// Persist the raw payload verbatim so the cached story is byte-identical
	// to what the generator produced.
	if err := renameio.WriteFile(storyPath, raw, 0o644); err != nil {
		return nil, fmt.Errorf("persist story: %w", err)
	}

	a.log.Info().Str("title", spec.Title).Str("lang", spec.Lang).Msg("story generated")
	return &spec, nil
}

// checkLang sanity-checks the generator's language code. An unparseable or
// missing code only costs the transcription pass its language hint, so this
// warns instead of failing.
func (a *Assembler) checkLang(code string) {
	if code == "" {
		a.log.Warn().Msg("story has no language code, transcription will auto-detect")
		return
	}
	if _, err := language.Parse(code); err != nil {
		a.log.Warn().Str("lang", code).Msg("story language code is not a valid BCP 47 tag")
	}
}
