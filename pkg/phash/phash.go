// Package phash computes perceptual fingerprints of images.
//
// A fingerprint is a 64-bit DCT hash: visually similar images land within a
// small Hamming distance of each other, unrelated images land far apart.
package phash

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math/bits"
	"strconv"

	"github.com/corona10/goimagehash"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Bits is the fingerprint width.
const Bits = 64

// ErrUndecodable is returned when bytes cannot be decoded as an image.
var ErrUndecodable = errors.New("phash: undecodable image")

// Fingerprint is a perceptual hash. Compare with Distance, never with ==.
type Fingerprint uint64

// String returns the fingerprint as 16 hex digits.
func (f Fingerprint) String() string {
	return fmt.Sprintf("%016x", uint64(f))
}

// ParseFingerprint decodes the output of Fingerprint.String.
func ParseFingerprint(s string) (Fingerprint, error) {
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse fingerprint: %w", err)
	}
	return Fingerprint(v), nil
}

// Distance is the number of differing bits between a and b.
func Distance(a, b Fingerprint) int {
	return bits.OnesCount64(uint64(a) ^ uint64(b))
}

// DefaultMaxPixels bounds the declared width*height of an image the engine
// will decode, about 50 megapixels.
const DefaultMaxPixels = 50_000_000

// Engine decodes image bytes and fingerprints them.
type Engine struct {
	maxPixels int64
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithMaxPixels sets the largest declared pixel count accepted. n <= 0 keeps the default.
func WithMaxPixels(n int64) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxPixels = n
		}
	}
}

// NewEngine returns a perceptual hash engine.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{maxPixels: DefaultMaxPixels}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Hash decodes data and returns its fingerprint. Decode failures, including
// images whose header declares more pixels than the cap, wrap ErrUndecodable.
func (e *Engine) Hash(data []byte) (Fingerprint, error) {
	// The decoders allocate the full pixel buffer from the header alone.
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	if px := int64(cfg.Width) * int64(cfg.Height); px > e.maxPixels {
		return 0, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrUndecodable, cfg.Width, cfg.Height, e.maxPixels)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	fp, err := FromImage(img)
	if err != nil {
		return 0, fmt.Errorf("hash %s image: %w", format, err)
	}
	return fp, nil
}

// FromImage fingerprints an already decoded image.
func FromImage(img image.Image) (Fingerprint, error) {
	if img == nil {
		return 0, errors.New("phash: image is nil")
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return 0, fmt.Errorf("%w: empty bounds %v", ErrUndecodable, b)
	}
	h, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return 0, err
	}
	return Fingerprint(h.GetHash()), nil
}
