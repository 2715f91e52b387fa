package pipeline

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"

	"storyreel/types"
)

// PrintPlan writes a human-readable table of the composed timeline.
func PrintPlan(w io.Writer, plan *types.TimelinePlan) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"#", "Image", "Start", "Duration", "Transition"})
	for i, clip := range plan.VisualClips {
		trans := "-"
		if clip.TransitionIn != nil {
			trans = fmt.Sprintf("%s (%.2fs)", clip.TransitionIn.Kind, clip.TransitionIn.Duration)
		}
		t.AppendRow(table.Row{
			i + 1,
			filepath.Base(clip.ImagePath),
			fmt.Sprintf("%.2fs", clip.Start),
			fmt.Sprintf("%.2fs", clip.Duration),
			trans,
		})
	}
	t.AppendFooter(table.Row{"", "", "", fmt.Sprintf("total %.2fs", plan.TotalSec), ""})
	t.Render()

	fmt.Fprintf(w, "overlays: %d, audio tracks: %d\n", len(plan.Overlays), len(plan.AudioTracks))
}
