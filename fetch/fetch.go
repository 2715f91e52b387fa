package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"storyreel/logging"
)

const (
	// MaxRetries is the attempt bound for a single resource.
	MaxRetries = 3

	defaultBackoff = 3 * time.Second
	defaultTimeout = 20 * time.Second
)

// Fetcher downloads a single remote resource to a local path with bounded
// retries. A destination that already exists is a cache hit and short-
// circuits without any network access, which is what makes every stage of
// the pipeline resumable after a fatal abort.
type Fetcher struct {
	client  *http.Client
	retries int
	backoff time.Duration
	log     zerolog.Logger
}

// New creates a Fetcher with the production retry policy.
func New() *Fetcher {
	return &Fetcher{
		client:  &http.Client{Timeout: defaultTimeout},
		retries: MaxRetries,
		backoff: defaultBackoff,
		log:     logging.Component("fetch"),
	}
}

// WithBackoff overrides the inter-attempt delay (used in tests).
func (f *Fetcher) WithBackoff(d time.Duration) *Fetcher {
	f.backoff = d
	return f
}

// WithClient overrides the HTTP client (used in tests).
func (f *Fetcher) WithClient(c *http.Client) *Fetcher {
	f.client = c
	return f
}

// Fetch downloads url to dest. If dest already exists it returns nil
// immediately. Otherwise it makes up to MaxRetries sequential attempts,
// sleeping a fixed backoff between attempts (never after the last). On
// failure the destination must be treated as unusable: a partially written
// file may remain.
func (f *Fetcher) Fetch(ctx context.Context, url, dest string) error {
	if _, err := os.Stat(dest); err == nil {
		f.log.Info().Str("file", filepath.Base(dest)).Msg("already cached, skipping download")
		return nil
	}

	var lastErr error
	for attempt := 1; attempt <= f.retries; attempt++ {
		f.log.Info().
			Str("file", filepath.Base(dest)).
			Int("attempt", attempt).
			Int("max", f.retries).
			Msg("downloading")

		lastErr = f.attempt(ctx, url, dest)
		if lastErr == nil {
			f.log.Info().Str("file", filepath.Base(dest)).Msg("download complete")
			return nil
		}

		f.log.Warn().Err(lastErr).Int("attempt", attempt).Msg("download attempt failed")
		if attempt < f.retries {
			select {
			case <-time.After(f.backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("download %s failed after %d attempts: %w", filepath.Base(dest), f.retries, lastErr)
}

func (f *Fetcher) attempt(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	// Chunked copy; success is only reported once the full body is written.
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
