package store

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdxmph/imgdedup/internal/testimage"
)

func newStore(t *testing.T) (*DirStore, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	s, err := NewDirStore(fs, "uploaded_files", zerolog.Nop())
	require.NoError(t, err)
	return s, fs
}

func TestSafeName(t *testing.T) {
	tests := map[string]string{
		"a.jpg":                 "a.jpg",
		"../../etc/passwd":      "passwd",
		`C:\Users\me\photo.png`: "photo.png",
		"  spaced.txt ":         "spaced.txt",
		"dir/sub/file.pdf":      "file.pdf",
		"bell\a.txt":            "bell.txt",
	}
	for in, want := range tests {
		got, err := SafeName(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", ".", "..", "/", "a/..", "   "} {
		_, err := SafeName(bad)
		assert.ErrorIs(t, err, ErrInvalidName, "%q", bad)
	}
}

func TestSaveWritesFile(t *testing.T) {
	s, fs := newStore(t)
	png := testimage.PNG(testimage.Smooth(1, 8, 8))

	saved, err := s.Save("../evil/a.png", png)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("uploaded_files", "a.png"), saved.Path)
	assert.Equal(t, "image/png", saved.MIME)
	assert.EqualValues(t, len(png), saved.Size)
	assert.False(t, saved.Renamed)

	got, err := afero.ReadFile(fs, saved.Path)
	require.NoError(t, err)
	assert.Equal(t, png, got)
}

func TestSaveCollisionDifferentContent(t *testing.T) {
	s, fs := newStore(t)

	first, err := s.Save("notes.txt", []byte("first"))
	require.NoError(t, err)
	second, err := s.Save("notes.txt", []byte("second"))
	require.NoError(t, err)

	assert.NotEqual(t, first.Path, second.Path)
	assert.True(t, second.Renamed)
	assert.Regexp(t, `notes-[0-9a-f]{8}\.txt$`, second.Path)

	got, err := afero.ReadFile(fs, first.Path)
	require.NoError(t, err)
	assert.Equal(t, "first", string(got))
}

func TestSaveCollisionSameContent(t *testing.T) {
	s, _ := newStore(t)

	first, err := s.Save("notes.txt", []byte("same"))
	require.NoError(t, err)
	again, err := s.Save("notes.txt", []byte("same"))
	require.NoError(t, err)

	assert.Equal(t, first.Path, again.Path)
	assert.True(t, again.Existed)
	assert.False(t, again.Renamed)
}

func TestSaveRepeatedCollisions(t *testing.T) {
	s, fs := newStore(t)
	require.NoError(t, afero.WriteFile(fs, filepath.Join("uploaded_files", "x.txt"), []byte("a"), 0644))
	// Occupy the hashed name with unrelated content to force a counter.
	hashed := suffixed("x.txt", []byte("b"), 0)
	require.NoError(t, afero.WriteFile(fs, filepath.Join("uploaded_files", hashed), []byte("zzz"), 0644))

	saved, err := s.Save("x.txt", []byte("b"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("uploaded_files", suffixed("x.txt", []byte("b"), 1)), saved.Path)
}

func TestSaveInvalidName(t *testing.T) {
	s, _ := newStore(t)
	_, err := s.Save("..", []byte("x"))
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestNewDirStoreReadOnly(t *testing.T) {
	_, err := NewDirStore(afero.NewReadOnlyFs(afero.NewMemMapFs()), "x", zerolog.Nop())
	assert.Error(t, err)
}
