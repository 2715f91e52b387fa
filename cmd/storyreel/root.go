package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"storyreel/config"
	"storyreel/logging"
	"storyreel/pipeline"
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "storyreel <topic>",
		Short:         "Turn a text topic into a narrated short-form story video",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// .env is for local development; absent files are fine.
			_ = godotenv.Load()

			fs := cmd.Flags()
			configPath, _ := fs.GetString("config")
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logging.Configure(logging.Config{Level: cfg.Log.Level, Console: cfg.Log.Console})

			style, err := mergeStyle(cfg.Style, fs)
			if err != nil {
				return err
			}

			wordSubs, _ := fs.GetBool("word-subs")
			useGPU, _ := fs.GetBool("gpu")
			seed, _ := fs.GetInt("seed")
			output, _ := fs.GetString("output")
			whisperPath, _ := fs.GetString("whisper-path")
			printPlan, _ := fs.GetBool("print-plan")

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			_, err = pipeline.New(cfg).Run(ctx, pipeline.Options{
				Topic:         args[0],
				Seed:          seed,
				WordSubtitles: wordSubs,
				UseGPU:        useGPU,
				OutputPath:    output,
				WhisperPath:   whisperPath,
				PrintPlan:     printPlan,
				Style:         style,
			})
			return err
		},
	}

	rootCmd.Flags().StringP("config", "c", "config.yaml", "configuration file path")
	rootCmd.Flags().Bool("word-subs", false, "word-level karaoke subtitles via the transcription CLI")
	rootCmd.Flags().Bool("gpu", false, "prefer the GPU encoder, falling back to CPU on failure")
	rootCmd.Flags().Int("seed", pipeline.DefaultSeed, "image generation seed for reproducible visuals")
	rootCmd.Flags().String("music", "", "path to a background music file")
	rootCmd.Flags().String("font-id", "inter", "Fontsource font identifier")
	rootCmd.Flags().Int("font-size", 40, "subtitle font size in pixels")
	rootCmd.Flags().String("font-color", "white", "subtitle color")
	rootCmd.Flags().String("highlight-color", "yellow", "highlight color for word-level subtitles")
	rootCmd.Flags().String("subtitle-position", "bottom", "vertical subtitle position: top, center or bottom")
	rootCmd.Flags().StringP("output", "o", "", "output video path (defaults to <title slug>.mp4)")
	rootCmd.Flags().String("whisper-path", "", "transcription executable (overrides the config file)")
	rootCmd.Flags().Bool("print-plan", false, "print the composed timeline before rendering")

	return rootCmd
}

// mergeStyle overlays explicitly set style flags on the config file's style
// section. A flag left at its default does not override the file, so
// `style:` settings in config.yaml survive a plain invocation.
func mergeStyle(base config.StyleConfig, fs *pflag.FlagSet) (config.StyleConfig, error) {
	style := base
	if fs.Changed("font-id") {
		style.FontID, _ = fs.GetString("font-id")
	}
	if fs.Changed("font-size") {
		style.FontSizePx, _ = fs.GetInt("font-size")
	}
	if fs.Changed("font-color") {
		style.FontColor, _ = fs.GetString("font-color")
	}
	if fs.Changed("highlight-color") {
		style.HighlightColor, _ = fs.GetString("highlight-color")
	}
	if fs.Changed("subtitle-position") {
		style.SubtitlePosition, _ = fs.GetString("subtitle-position")
	}
	style.MusicPath, _ = fs.GetString("music")

	switch style.SubtitlePosition {
	case "top", "center", "bottom":
	default:
		return config.StyleConfig{}, fmt.Errorf("invalid subtitle position %q (want top, center or bottom)", style.SubtitlePosition)
	}
	return style, nil
}
