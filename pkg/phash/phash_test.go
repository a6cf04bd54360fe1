package phash

import (
	"errors"
	"image"
	"testing"

	"github.com/pdxmph/imgdedup/internal/testimage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistance(t *testing.T) {
	assert.Equal(t, 0, Distance(0, 0))
	assert.Equal(t, 64, Distance(0, ^Fingerprint(0)))
	assert.Equal(t, 3, Distance(0b1011, 0))
	assert.Equal(t, Distance(0xdeadbeef, 0x12345678), Distance(0x12345678, 0xdeadbeef))
}

func TestFingerprintStringRoundTrip(t *testing.T) {
	f := Fingerprint(0x00ff00ff00ff00ff)
	assert.Equal(t, "00ff00ff00ff00ff", f.String())
	got, err := ParseFingerprint(f.String())
	require.NoError(t, err)
	assert.Equal(t, f, got)

	_, err = ParseFingerprint("not-hex")
	assert.Error(t, err)
}

func TestHashDeterministic(t *testing.T) {
	data := testimage.PNG(testimage.Smooth(1, 128, 96))
	e := NewEngine()

	a, err := e.Hash(data)
	require.NoError(t, err)
	b, err := e.Hash(data)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestHashLosslessFormatsAgree(t *testing.T) {
	img := testimage.Smooth(2, 120, 120)
	e := NewEngine()

	fromPNG, err := e.Hash(testimage.PNG(img))
	require.NoError(t, err)
	fromBMP, err := e.Hash(testimage.BMP(img))
	require.NoError(t, err)
	assert.Equal(t, 0, Distance(fromPNG, fromBMP))
}

func TestHashRecompressedWithinThreshold(t *testing.T) {
	img := testimage.Smooth(3, 160, 120)
	e := NewEngine()

	orig, err := e.Hash(testimage.PNG(img))
	require.NoError(t, err)
	recompressed, err := e.Hash(testimage.JPEG(img, 90))
	require.NoError(t, err)
	assert.LessOrEqual(t, Distance(orig, recompressed), 5)
}

func TestHashDissimilarImagesFarApart(t *testing.T) {
	e := NewEngine()
	a, err := e.Hash(testimage.PNG(testimage.Smooth(10, 128, 128)))
	require.NoError(t, err)
	b, err := e.Hash(testimage.PNG(testimage.Smooth(11, 128, 128)))
	require.NoError(t, err)
	assert.Greater(t, Distance(a, b), 5)
}

func TestHashUndecodable(t *testing.T) {
	e := NewEngine()
	for name, data := range map[string][]byte{
		"empty":     nil,
		"text":      []byte("hello"),
		"truncated": testimage.Truncated(testimage.PNG(testimage.Smooth(4, 64, 64))),
	} {
		_, err := e.Hash(data)
		assert.True(t, errors.Is(err, ErrUndecodable), "%s: %v", name, err)
	}
}

func TestFromImageEmptyBounds(t *testing.T) {
	_, err := FromImage(image.NewRGBA(image.Rect(0, 0, 0, 0)))
	assert.ErrorIs(t, err, ErrUndecodable)

	_, err = FromImage(nil)
	assert.Error(t, err)
}

func TestHashRejectsOversizedHeader(t *testing.T) {
	data := testimage.HeaderOnlyPNG(30000, 30000)
	require.Less(t, len(data), 100)

	_, err := NewEngine().Hash(data)
	require.ErrorIs(t, err, ErrUndecodable)
	assert.Contains(t, err.Error(), "30000x30000 exceeds")
}

func TestHashMaxPixelsOption(t *testing.T) {
	data := testimage.PNG(testimage.Smooth(5, 64, 64))

	_, err := NewEngine(WithMaxPixels(64*64 - 1)).Hash(data)
	assert.ErrorIs(t, err, ErrUndecodable)

	_, err = NewEngine(WithMaxPixels(64 * 64)).Hash(data)
	assert.NoError(t, err)

	_, err = NewEngine(WithMaxPixels(0)).Hash(data)
	assert.NoError(t, err, "non-positive cap keeps the default")
}
