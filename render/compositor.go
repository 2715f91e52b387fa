package render

import (
	"context"
	"errors"

	"storyreel/types"
)

// ErrEncode marks a render failure. When GPU encoding was requested the
// ffmpeg compositor absorbs the first ErrEncode by downgrading to the CPU
// codec; anything after that is fatal to the run.
var ErrEncode = errors.New("encode failed")

// Compositor renders a composed plan into a video file. The pipeline treats
// it as an opaque capability; FFmpeg is the concrete implementation.
type Compositor interface {
	Render(ctx context.Context, plan *types.TimelinePlan, outputPath string, preferGPU bool) error
}
