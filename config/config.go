package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full application configuration, loaded once at startup.
type Config struct {
	Endpoints EndpointsConfig `yaml:"endpoints"`
	Style     StyleConfig     `yaml:"style"`
	Whisper   WhisperConfig   `yaml:"whisper"`
	Render    RenderConfig    `yaml:"render"`
	Paths     PathsConfig     `yaml:"paths"`
	Log       LogConfig       `yaml:"log"`
}

// EndpointsConfig holds the URL templates for the generation endpoints.
// Story and audio templates take one URL-encoded prompt; the image template
// takes a prompt and an integer seed; the font template takes a font ID.
type EndpointsConfig struct {
	StoryURL string `yaml:"story_url"`
	ImageURL string `yaml:"image_url"`
	AudioURL string `yaml:"audio_url"`
	FontURL  string `yaml:"font_url"`
}

// StyleConfig is the immutable visual styling for one run. It is built once
// (config file + CLI flags) and passed by value into the composer and the
// compositor, never re-read from global state mid-pipeline.
type StyleConfig struct {
	FontID           string  `yaml:"font_id"`
	FontPath         string  `yaml:"-"` // resolved from the font cache at runtime
	FontSizePx       int     `yaml:"font_size_px"`
	FontColor        string  `yaml:"font_color"`
	HighlightColor   string  `yaml:"highlight_color"`
	StrokeColor      string  `yaml:"stroke_color"`
	StrokeWidth      float64 `yaml:"stroke_width"`
	SubtitlePosition string  `yaml:"subtitle_position"` // top | center | bottom
	ZoomFactor       float64 `yaml:"zoom_factor"`
	Transitions      bool    `yaml:"transitions"`
	TransitionSec    float64 `yaml:"transition_sec"`
	PaddingSec       float64 `yaml:"padding_sec"`
	MusicPath        string  `yaml:"-"` // from the --music flag
	MusicGain        float64 `yaml:"music_gain"`
}

// WhisperConfig describes the external transcription executable.
type WhisperConfig struct {
	Executable string `yaml:"executable"`
	Model      string `yaml:"model"`
}

// RenderConfig holds encode parameters for the ffmpeg compositor.
type RenderConfig struct {
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
	FPS        int    `yaml:"fps"`
	Preset     string `yaml:"preset"`
	AudioCodec string `yaml:"audio_codec"`
	GPUCodec   string `yaml:"gpu_codec"`
	CPUCodec   string `yaml:"cpu_codec"`
	Threads    int    `yaml:"threads"`
}

// PathsConfig holds filesystem roots.
type PathsConfig struct {
	CacheDir string `yaml:"cache_dir"`
}

// LogConfig controls logger construction.
type LogConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

// Default returns the built-in configuration, matching the public
// Pollinations and Fontsource endpoints.
func Default() *Config {
	return &Config{
		Endpoints: EndpointsConfig{
			StoryURL: "https://text.pollinations.ai/%s?model=openai&json=true",
			ImageURL: "https://image.pollinations.ai/prompt/%s?width=720&height=1280&nologo=true&safe=true&seed=%d",
			AudioURL: "https://text.pollinations.ai/%s?model=openai-audio&voice=nova",
			FontURL:  "https://cdn.jsdelivr.net/fontsource/fonts/%s@latest/latin-700-normal.ttf",
		},
		Style: StyleConfig{
			FontID:           "inter",
			FontSizePx:       40,
			FontColor:        "white",
			HighlightColor:   "yellow",
			StrokeColor:      "black",
			StrokeWidth:      1.5,
			SubtitlePosition: "bottom",
			ZoomFactor:       0.2,
			Transitions:      true,
			TransitionSec:    0.5,
			PaddingSec:       5.0,
			MusicGain:        0.15,
		},
		Whisper: WhisperConfig{
			Executable: "whisper",
			Model:      "base",
		},
		Render: RenderConfig{
			Width:      720,
			Height:     1280,
			FPS:        24,
			Preset:     "medium",
			AudioCodec: "aac",
			GPUCodec:   "h264_nvenc",
			CPUCodec:   "libx264",
			Threads:    8,
		},
		Paths: PathsConfig{CacheDir: "cache"},
		Log:   LogConfig{Level: "info", Console: true},
	}
}

// Load reads a yaml config file over the defaults. A missing file is not an
// error: the defaults are returned unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
