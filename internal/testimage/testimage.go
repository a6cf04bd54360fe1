// Package testimage generates deterministic images for tests.
package testimage

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand"

	"golang.org/x/image/bmp"
)

// Smooth returns a w×h image whose pixels are a bilinear blow-up of an 8×8
// random grid seeded by seed. Low-frequency structure like this survives lossy
// re-encoding, so perceptual hashes of variants stay close.
func Smooth(seed int64, w, h int) *image.RGBA {
	rng := rand.New(rand.NewSource(seed))
	const grid = 8
	var cells [grid + 1][grid + 1][3]float64
	for y := 0; y <= grid; y++ {
		for x := 0; x <= grid; x++ {
			for c := 0; c < 3; c++ {
				cells[y][x][c] = rng.Float64() * 255
			}
		}
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for py := 0; py < h; py++ {
		gy := float64(py) / float64(h) * grid
		y0 := int(gy)
		fy := gy - float64(y0)
		for px := 0; px < w; px++ {
			gx := float64(px) / float64(w) * grid
			x0 := int(gx)
			fx := gx - float64(x0)
			var rgb [3]uint8
			for c := 0; c < 3; c++ {
				top := cells[y0][x0][c]*(1-fx) + cells[y0][x0+1][c]*fx
				bot := cells[y0+1][x0][c]*(1-fx) + cells[y0+1][x0+1][c]*fx
				rgb[c] = uint8(top*(1-fy) + bot*fy)
			}
			img.SetRGBA(px, py, color.RGBA{R: rgb[0], G: rgb[1], B: rgb[2], A: 255})
		}
	}
	return img
}

// PNG encodes img losslessly.
func PNG(img image.Image) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// JPEG encodes img at the given quality.
func JPEG(img image.Image, quality int) []byte {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// BMP encodes img losslessly as a bitmap.
func BMP(img image.Image) []byte {
	var buf bytes.Buffer
	if err := bmp.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// Truncated returns the first half of data, which no decoder accepts as a full image.
func Truncated(data []byte) []byte {
	return data[:len(data)/2]
}

// HeaderOnlyPNG returns a PNG whose IHDR declares a w×h RGBA image followed
// by an empty IDAT. It is a few dozen bytes regardless of the declared size.
func HeaderOnlyPNG(w, h uint32) []byte {
	var buf bytes.Buffer
	buf.Write([]byte("\x89PNG\r\n\x1a\n"))

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], w)
	binary.BigEndian.PutUint32(ihdr[4:8], h)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 6 // RGBA
	writeChunk(&buf, "IHDR", ihdr)
	writeChunk(&buf, "IDAT", nil)
	writeChunk(&buf, "IEND", nil)
	return buf.Bytes()
}

func writeChunk(buf *bytes.Buffer, kind string, data []byte) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(data)))
	buf.Write(n[:])

	crc := crc32.NewIEEE()
	crc.Write([]byte(kind))
	crc.Write(data)
	buf.WriteString(kind)
	buf.Write(data)
	binary.BigEndian.PutUint32(n[:], crc.Sum32())
	buf.Write(n[:])
}
