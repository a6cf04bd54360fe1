// Package classify maps uploaded file names to a content family.
package classify

import (
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
)

// Family is the content family an item belongs to.
type Family int

const (
	Unsupported Family = iota
	Image
	Document
)

func (f Family) String() string {
	switch f {
	case Image:
		return "image"
	case Document:
		return "document"
	default:
		return "unsupported"
	}
}

// Default extension tables.
var (
	DefaultImageExtensions    = []string{"jpg", "jpeg", "png", "bmp", "gif", "tiff"}
	DefaultDocumentExtensions = []string{"pdf", "docx", "txt"}
)

// Classifier holds the extension tables. The zero value classifies everything as Unsupported.
type Classifier struct {
	images    map[string]struct{}
	documents map[string]struct{}
}

// New builds a classifier from extension lists. Extensions are matched
// case-insensitively and may be given with or without a leading dot.
func New(imageExts, documentExts []string) *Classifier {
	return &Classifier{
		images:    extSet(imageExts),
		documents: extSet(documentExts),
	}
}

// Default returns a classifier using the default tables.
func Default() *Classifier {
	return New(DefaultImageExtensions, DefaultDocumentExtensions)
}

// Classify returns the family for a file name based on its extension.
func (c *Classifier) Classify(name string) Family {
	ext := NormalizeExt(filepath.Ext(name))
	if ext == "" {
		return Unsupported
	}
	if _, ok := c.images[ext]; ok {
		return Image
	}
	if _, ok := c.documents[ext]; ok {
		return Document
	}
	return Unsupported
}

// NormalizeExt lowercases an extension and strips the leading dot.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

func extSet(exts []string) map[string]struct{} {
	set := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		if n := NormalizeExt(e); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

// Sniff returns the MIME type detected from the leading bytes of data, or ""
// when the type is unknown. It never affects classification.
func Sniff(data []byte) string {
	head := data
	if len(head) > 8192 {
		head = head[:8192]
	}
	kind, err := filetype.Match(head)
	if err != nil || kind == filetype.Unknown {
		return ""
	}
	return kind.MIME.Value
}
