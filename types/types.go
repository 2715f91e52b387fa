package types

// ExpectedSegments is the segment count the story generator is contracted
// to return. Validated defensively wherever a StorySpec enters the pipeline.
const ExpectedSegments = 5

// StorySpec is the generated story exactly as the text endpoint returned it.
// Immutable after creation; persisted verbatim to cache as story.json.
type StorySpec struct {
	Title    string    `json:"title"`
	Lang     string    `json:"lang"` // two-letter code, or "" when unknown
	Segments []Segment `json:"segments"`
}

// Segment is one narration-sentence/image-prompt pair. Its index inside the
// StorySpec correlates it with the downloaded image of the same index.
type Segment struct {
	VoicePrompt string `json:"voice_prompt"`
	ImagePrompt string `json:"image_prompt"`
}

// AssetSet holds the on-disk paths of every downloaded asset for one run.
// Read-only for everything downstream of the acquirer.
type AssetSet struct {
	ImagePaths         []string `json:"image_paths"`
	NarrationAudioPath string   `json:"narration_audio_path"`
}

// TrackKind discriminates the two subtitle representations.
type TrackKind string

const (
	TrackSentence  TrackKind = "sentence"
	TrackWordTimed TrackKind = "word_timed"
)

// SubtitleTrack is a tagged union: exactly one of Sentences or Timed is
// populated, selected by Kind.
type SubtitleTrack struct {
	Kind      TrackKind
	Sentences []SentenceLine // Kind == TrackSentence
	Timed     []TimedSegment // Kind == TrackWordTimed
}

// SentenceLine is a full-sentence caption with no timing of its own; the
// composer derives timing from the total narration duration.
type SentenceLine struct {
	Text         string
	SegmentIndex int
}

// TimedSegment carries explicit timestamps from the transcription pass.
// Words are sorted ascending by Start and do not overlap.
type TimedSegment struct {
	Text  string
	Start float64
	End   float64
	Words []TimedWord
}

// TimedWord is a single transcribed word with its spoken interval.
type TimedWord struct {
	Text  string
	Start float64
	End   float64
}

// ZoomCurve maps a clip-local time (seconds since clip start) to a scale
// factor. Scale 1.0 means no zoom.
type ZoomCurve func(t float64) float64

// TransitionKind names the supported inter-clip transitions.
type TransitionKind string

const (
	TransitionCrossfade TransitionKind = "crossfade"
	TransitionSlideLeft TransitionKind = "slide_left"
	TransitionSlideTop  TransitionKind = "slide_top"
	TransitionHardFade  TransitionKind = "hard_fade"
)

// Transition describes how a clip blends with its predecessor.
type Transition struct {
	Kind     TransitionKind
	Duration float64
}

// VisualClip is one timed still-image clip on the composed timeline.
type VisualClip struct {
	ImagePath    string
	Start        float64
	Duration     float64
	Zoom         ZoomCurve
	FadeInSec    float64
	FadeOutSec   float64
	TransitionIn *Transition // nil for the first clip or when transitions are off
}

// OverlayStyle is the visual styling of a subtitle overlay.
type OverlayStyle struct {
	Color       string
	StrokeColor string // "" for no stroke
	StrokeWidth float64
	FontPath    string
	SizePx      int
	HAlign      string // "center"
	Anchor      string // "top" | "center" | "bottom"
}

// Overlay is one subtitle caption with its active interval.
type Overlay struct {
	Text     string
	Start    float64
	Duration float64
	Style    OverlayStyle
}

// AudioTrack is one audio layer of the final mix.
type AudioTrack struct {
	Path   string
	Offset float64 // seconds into the timeline where playback starts
	Gain   float64 // 1.0 = unchanged
	Loop   bool    // loop to cover the full plan duration
}

// TimelinePlan is the composer's output, consumed exactly once by the
// compositor. Never mutated after emission.
type TimelinePlan struct {
	VisualClips []VisualClip
	Overlays    []Overlay
	TotalSec    float64
	AudioTracks []AudioTrack
}

// RunState tracks one pipeline run for the state JSON written next to the
// output video.
type RunState struct {
	RunID       string     `json:"run_id"`
	Topic       string     `json:"topic"`
	StartedAt   string     `json:"started_at"`
	CompletedAt string     `json:"completed_at"`
	Story       *StorySpec `json:"story,omitempty"`
	Assets      *AssetSet  `json:"assets,omitempty"`
	SubtitleMode string    `json:"subtitle_mode,omitempty"`
	VideoFile   string     `json:"video_file,omitempty"`
	Error       string     `json:"error,omitempty"`
}
