package narration

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
)

// DefaultPattern selects the files the store owns.
const DefaultPattern = "*.mp3"

// ErrInvalidName is returned for audio names that are not plain file names
// owned by the store.
var ErrInvalidName = errors.New("invalid audio file name")

// Store saves audio files under one directory.
type Store struct {
	dir     string
	pattern string
	logger  *slog.Logger
}

// NewStore creates a store rooted at dir. The directory is created on the
// first Save.
func NewStore(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dir: dir, pattern: DefaultPattern, logger: logger}
}

// Dir returns the audio directory.
func (s *Store) Dir() string {
	return s.dir
}

// Save writes audio to a new uniquely named file and returns its name.
func (s *Store) Save(audio []byte) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create audio dir: %w", err)
	}

	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	name := "description_" + id[:8] + ".mp3"

	// Write under a name outside the pattern so cleanup never sees a partial file.
	tmp := filepath.Join(s.dir, "."+name+".part")
	if err := os.WriteFile(tmp, audio, 0o644); err != nil {
		return "", fmt.Errorf("write audio: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(s.dir, name)); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("rename audio: %w", err)
	}

	s.logger.Debug("Audio saved", "file", name, "bytes", len(audio))
	return name, nil
}

// Path resolves name to a file inside the directory. Names containing path
// separators or not matching the store pattern are rejected.
func (s *Store) Path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return "", ErrInvalidName
	}
	ok, err := doublestar.Match(s.pattern, name)
	if err != nil || !ok {
		return "", ErrInvalidName
	}
	return filepath.Join(s.dir, name), nil
}

// Cleanup deletes all but the keepLatest most recently modified audio files.
// It returns how many files were removed. A missing directory is not an error.
func (s *Store) Cleanup(keepLatest int) (int, error) {
	if keepLatest < 0 {
		keepLatest = 0
	}

	// Globbing inside the directory keeps metacharacters in its own name literal.
	names, err := doublestar.Glob(os.DirFS(s.dir), s.pattern)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return 0, fmt.Errorf("list audio files: %w", err)
	}
	matches := make([]string, 0, len(names))
	for _, name := range names {
		matches = append(matches, filepath.Join(s.dir, filepath.FromSlash(name)))
	}

	type entry struct {
		path  string
		mtime int64
	}
	files := make([]entry, 0, len(matches))
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return 0, fmt.Errorf("stat %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		files = append(files, entry{path: path, mtime: info.ModTime().UnixNano()})
	}
	if len(files) <= keepLatest {
		return 0, nil
	}

	// Oldest first
	sort.Slice(files, func(i, j int) bool {
		if files[i].mtime != files[j].mtime {
			return files[i].mtime < files[j].mtime
		}
		return files[i].path < files[j].path
	})

	var errs []error
	removed := 0
	for _, f := range files[:len(files)-keepLatest] {
		if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
		s.logger.Debug("Removed old audio file", "file", filepath.Base(f.path))
	}
	return removed, errors.Join(errs...)
}
