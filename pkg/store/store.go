// Package store persists accepted uploads.
package store

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/pdxmph/imgdedup/pkg/classify"
)

// ErrInvalidName is returned for names that reduce to nothing usable.
var ErrInvalidName = errors.New("invalid file name")

// Saved describes a persisted file.
type Saved struct {
	Name    string // name as uploaded
	Path    string // location inside the store
	Size    int64
	MIME    string // sniffed from content, empty when unknown
	Renamed bool   // stored under a different name because of a collision
	Existed bool   // identical content was already stored under Path
}

// Sink receives the bytes of accepted items.
type Sink interface {
	Save(name string, data []byte) (Saved, error)
}

// DirStore writes files into a single directory.
type DirStore struct {
	fs  afero.Fs
	dir string
	mu  sync.Mutex
	log zerolog.Logger
}

// NewDirStore creates dir if needed and returns a store rooted there.
func NewDirStore(fs afero.Fs, dir string, log zerolog.Logger) (*DirStore, error) {
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	return &DirStore{fs: fs, dir: dir, log: log}, nil
}

// Dir returns the root directory.
func (s *DirStore) Dir() string { return s.dir }

// Save writes data under a sanitized form of name. When another file already
// holds that name with different content, the new file gets a content hash
// suffix instead of overwriting it.
func (s *DirStore) Save(name string, data []byte) (Saved, error) {
	base, err := SafeName(name)
	if err != nil {
		return Saved{}, fmt.Errorf("save %q: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	target := base
	for attempt := 0; ; attempt++ {
		full := filepath.Join(s.dir, target)
		existing, err := afero.ReadFile(s.fs, full)
		if errors.Is(err, os.ErrNotExist) {
			if err := afero.WriteFile(s.fs, full, data, 0644); err != nil {
				return Saved{}, fmt.Errorf("write %s: %w", full, err)
			}
			saved := s.saved(name, full, data, target != base, false)
			s.log.Debug().Str("file", name).Str("path", full).Str("mime", saved.MIME).
				Int64("bytes", saved.Size).Msg("stored upload")
			return saved, nil
		}
		if err != nil {
			return Saved{}, fmt.Errorf("read %s: %w", full, err)
		}
		if bytes.Equal(existing, data) {
			return s.saved(name, full, data, target != base, true), nil
		}
		target = suffixed(base, data, attempt)
	}
}

func (s *DirStore) saved(name, full string, data []byte, renamed, existed bool) Saved {
	return Saved{
		Name:    name,
		Path:    full,
		Size:    int64(len(data)),
		MIME:    classify.Sniff(data),
		Renamed: renamed,
		Existed: existed,
	}
}

// suffixed inserts a short content hash (and a counter after the first try) before the extension.
func suffixed(base string, data []byte, attempt int) string {
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	tag := fmt.Sprintf("%016x", xxhash.Sum64(data))[:8]
	if attempt > 0 {
		tag = fmt.Sprintf("%s-%d", tag, attempt)
	}
	return stem + "-" + tag + ext
}

// SafeName reduces an untrusted upload name to a plain base name.
func SafeName(name string) (string, error) {
	n := strings.ReplaceAll(name, "\\", "/")
	n = strings.TrimSpace(path.Base(n))
	n = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, n)
	switch n {
	case "", ".", "..", "/":
		return "", ErrInvalidName
	}
	return n, nil
}
