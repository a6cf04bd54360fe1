package duplicate

import (
	"fmt"

	"github.com/pdxmph/imgdedup/pkg/classify"
	"github.com/pdxmph/imgdedup/pkg/digest"
	"github.com/pdxmph/imgdedup/pkg/phash"
)

// Outcome is the verdict for one item.
type Outcome int

const (
	Accepted Outcome = iota
	Duplicate
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Duplicate:
		return "duplicate"
	default:
		return "skipped"
	}
}

// Entry is one accepted item held by an Index.
type Entry struct {
	Seq         int
	Label       string
	Family      classify.Family
	Digest      digest.Digest     // documents
	Fingerprint phash.Fingerprint // images
}

// Key is the printable identity of the entry: the digest for documents, the fingerprint for images.
func (e Entry) Key() string {
	if e.Family == classify.Image {
		return e.Fingerprint.String()
	}
	return e.Digest.String()
}

// Decision is produced once per item, in input order.
type Decision struct {
	Name    string
	Family  classify.Family
	Outcome Outcome

	// MatchedLabel, MatchedSeq and Distance are set for duplicates. Distance is always 0 for documents.
	MatchedLabel string
	MatchedSeq   int
	Distance     int

	// Entry is the inserted entry for accepted items.
	Entry Entry

	// Reason explains a skip.
	Reason error
}

func (d Decision) String() string {
	switch d.Outcome {
	case Accepted:
		return fmt.Sprintf("Accepted(%s)", d.Name)
	case Duplicate:
		return fmt.Sprintf("DuplicateOf(%s, %s)", d.Name, d.MatchedLabel)
	default:
		return fmt.Sprintf("Skipped(%s)", d.Name)
	}
}
