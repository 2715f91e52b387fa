package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/renameio/v2"
)

var (
	slugStrip    = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugCollapse = regexp.MustCompile(`[\s-]+`)
)

// Slugify derives the filesystem-safe cache namespace from a story title:
// lower-case, strip everything outside [a-z0-9\s-], collapse whitespace and
// dash runs into single dashes, trim leading/trailing dashes. Two titles
// that normalize to the same slug share a cache directory; last writer wins.
func Slugify(title string) string {
	s := strings.ToLower(title)
	s = slugStrip.ReplaceAllString(s, "")
	s = slugCollapse.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// Dirs is the resolved cache directory layout for one story slug.
type Dirs struct {
	Base      string
	Images    string
	Audio     string
	Subtitles string
}

// Resolve maps a story title to its cache directories under root, creating
// the tree if absent. Creation is idempotent; calling Resolve twice for the
// same title is side-effect-free on the second call.
func Resolve(root, title string) (Dirs, error) {
	d := Dirs{Base: filepath.Join(root, Slugify(title))}
	d.Images = filepath.Join(d.Base, "images")
	d.Audio = filepath.Join(d.Base, "audio")
	d.Subtitles = filepath.Join(d.Base, "subtitles")
	for _, p := range []string{d.Base, d.Images, d.Audio, d.Subtitles} {
		if err := os.MkdirAll(p, 0o755); err != nil {
			return Dirs{}, fmt.Errorf("create cache dir %s: %w", p, err)
		}
	}
	return d, nil
}

// FontPath returns the cache path for a font ID under root/fonts, creating
// the directory if needed.
func FontPath(root, fontID string) (string, error) {
	dir := filepath.Join(root, "fonts")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create font cache dir: %w", err)
	}
	return filepath.Join(dir, fontID+".ttf"), nil
}

// StoryPath is the persisted story JSON location.
func (d Dirs) StoryPath() string {
	return filepath.Join(d.Base, "story.json")
}

// ImagePath is the per-segment image location. Indexes are zero-based;
// filenames are one-based, matching the generator contract.
func (d Dirs) ImagePath(i int) string {
	return filepath.Join(d.Images, fmt.Sprintf("image_%d.jpg", i+1))
}

// NarrationPath is the single continuous narration track location.
func (d Dirs) NarrationPath() string {
	return filepath.Join(d.Audio, "narration.mp3")
}

// TranscriptionPath is where the transcription subprocess writes its JSON:
// the audio file's base name with a .json extension, in the subtitles dir.
func (d Dirs) TranscriptionPath(audioPath string) string {
	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	return filepath.Join(d.Subtitles, base+".json")
}

// Exists reports whether a cache file is already present.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// SaveJSON atomically persists v as indented JSON. renameio gives us the
// temp-file + fsync + rename dance so a crashed run never leaves a torn
// cache entry behind.
func SaveJSON(path string, v any) error {
	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending file for %s: %w", path, err)
	}
	defer func() { _ = pending.Cleanup() }()

	enc := json.NewEncoder(pending)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// LoadJSON reads a cached JSON file into v. No shape validation beyond what
// the JSON decoder enforces; cached entries are trusted on read.
func LoadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
