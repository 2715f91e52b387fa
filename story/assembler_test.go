package story

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyreel/cache"
	"storyreel/types"
)

const validStory = `{
  "title": "Robot Kesepian",
  "lang": "id",
  "segments": [
    {"voice_prompt": "satu", "image_prompt": "a robot"},
    {"voice_prompt": "dua", "image_prompt": "a city"},
    {"voice_prompt": "tiga", "image_prompt": "a sunset"},
    {"voice_prompt": "empat", "image_prompt": "a storm"},
    {"voice_prompt": "lima", "image_prompt": "a star"}
  ]
}`

func storyServer(t *testing.T, body string, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testDirs(t *testing.T) cache.Dirs {
	t.Helper()
	dirs, err := cache.Resolve(t.TempDir(), "a lonely robot")
	require.NoError(t, err)
	return dirs
}

func TestObtainGeneratesAndPersists(t *testing.T) {
	srv := storyServer(t, validStory, nil)
	dirs := testDirs(t)

	spec, err := New(srv.URL + "/%s").Obtain(context.Background(), "a lonely robot", dirs)
	require.NoError(t, err)

	assert.Equal(t, "Robot Kesepian", spec.Title)
	assert.Equal(t, "id", spec.Lang)
	require.Len(t, spec.Segments, types.ExpectedSegments)
	assert.Equal(t, "satu", spec.Segments[0].VoicePrompt)
	assert.Equal(t, "a star", spec.Segments[4].ImagePrompt)

	// The cached payload is the raw response, byte for byte.
	raw, err := os.ReadFile(dirs.StoryPath())
	require.NoError(t, err)
	assert.Equal(t, validStory, string(raw))
}

func TestObtainCacheHitSkipsNetwork(t *testing.T) {
	var calls atomic.Int32
	srv := storyServer(t, validStory, &calls)
	dirs := testDirs(t)

	require.NoError(t, os.WriteFile(dirs.StoryPath(), []byte(validStory), 0o644))

	spec, err := New(srv.URL + "/%s").Obtain(context.Background(), "a lonely robot", dirs)
	require.NoError(t, err)
	assert.Equal(t, "Robot Kesepian", spec.Title)
	assert.Equal(t, int32(0), calls.Load(), "cache hit must not call the generator")
}

func TestObtainMalformedPayload(t *testing.T) {
	srv := storyServer(t, `this is not json {`, nil)
	dirs := testDirs(t)

	_, err := New(srv.URL + "/%s").Obtain(context.Background(), "topic", dirs)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.False(t, cache.Exists(dirs.StoryPath()), "malformed payload must not be cached")
}

func TestObtainWrongSegmentCount(t *testing.T) {
	srv := storyServer(t, `{"title":"x","lang":"en","segments":[{"voice_prompt":"a","image_prompt":"b"}]}`, nil)
	dirs := testDirs(t)

	_, err := New(srv.URL + "/%s").Obtain(context.Background(), "topic", dirs)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestObtainTransportError(t *testing.T) {
	srv := storyServer(t, validStory, nil)
	srv.Close() // refuse connections
	dirs := testDirs(t)

	_, err := New(srv.URL + "/%s").Obtain(context.Background(), "topic", dirs)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestObtainServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	dirs := testDirs(t)

	_, err := New(srv.URL + "/%s").Obtain(context.Background(), "topic", dirs)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}
