package duplicate

import (
	"github.com/rs/zerolog"

	"github.com/pdxmph/imgdedup/pkg/classify"
	"github.com/pdxmph/imgdedup/pkg/digest"
	"github.com/pdxmph/imgdedup/pkg/phash"
)

// DefaultThreshold is the largest Hamming distance at which two images are still the same image.
const DefaultThreshold = 5

// Index holds the entries accepted so far. Entries are only ever appended.
//
// An Index is owned by a single batch and is not safe for concurrent use.
type Index struct {
	threshold int
	entries   []Entry
	docs      map[digest.Digest]int
	images    bkTree
	log       zerolog.Logger
}

// IndexOption configures an Index.
type IndexOption func(*Index)

// WithLogger sets the logger used for duplicate findings.
func WithLogger(l zerolog.Logger) IndexOption {
	return func(x *Index) { x.log = l }
}

// NewIndex returns an empty index. A negative threshold is treated as 0.
func NewIndex(threshold int, opts ...IndexOption) *Index {
	if threshold < 0 {
		threshold = 0
	}
	x := &Index{
		threshold: threshold,
		docs:      make(map[digest.Digest]int),
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Threshold returns the image distance threshold.
func (x *Index) Threshold() int { return x.threshold }

// Len returns the number of accepted entries across both families.
func (x *Index) Len() int { return len(x.entries) }

// QueryAndInsertDocument implements Checker.
func (x *Index) QueryAndInsertDocument(label string, d digest.Digest) Decision {
	if pos, ok := x.docs[d]; ok {
		match := x.entries[pos]
		x.log.Debug().Str("file", label).Str("match", match.Label).Msg("duplicate document")
		return Decision{Name: label, Family: classify.Document, Outcome: Duplicate, MatchedLabel: match.Label, MatchedSeq: match.Seq}
	}
	e := x.append(Entry{Label: label, Family: classify.Document, Digest: d})
	x.docs[d] = e.Seq
	return Decision{Name: label, Family: classify.Document, Outcome: Accepted, Entry: e}
}

// QueryAndInsertImage implements Checker. Among all entries within the
// threshold, the earliest inserted one is reported, so the surviving
// representative of a cluster is always its first occurrence.
func (x *Index) QueryAndInsertImage(label string, f phash.Fingerprint) Decision {
	best, bestDist := -1, 0
	x.images.within(f, x.threshold, func(pos, dist int) {
		if best < 0 || pos < best {
			best, bestDist = pos, dist
		}
	})
	if best >= 0 {
		match := x.entries[best]
		x.log.Debug().Str("file", label).Str("match", match.Label).Int("distance", bestDist).Msg("duplicate image")
		return Decision{Name: label, Family: classify.Image, Outcome: Duplicate, MatchedLabel: match.Label, MatchedSeq: match.Seq, Distance: bestDist}
	}
	e := x.append(Entry{Label: label, Family: classify.Image, Fingerprint: f})
	x.images.insert(f, e.Seq)
	return Decision{Name: label, Family: classify.Image, Outcome: Accepted, Entry: e}
}

// Seed loads previously accepted entries, in order, through the regular
// duplicate checks so the index invariant holds even if the stored entries
// were accepted under a looser threshold. It returns how many were kept.
func (x *Index) Seed(entries []Entry) int {
	kept := 0
	for _, e := range entries {
		var d Decision
		switch e.Family {
		case classify.Document:
			d = x.QueryAndInsertDocument(e.Label, e.Digest)
		case classify.Image:
			d = x.QueryAndInsertImage(e.Label, e.Fingerprint)
		default:
			continue
		}
		if d.Outcome == Accepted {
			kept++
		}
	}
	return kept
}

// Entries returns the accepted entries of a family in insertion order.
// classify.Unsupported returns every entry.
func (x *Index) Entries(f classify.Family) []Entry {
	out := make([]Entry, 0, len(x.entries))
	for _, e := range x.entries {
		if f == classify.Unsupported || e.Family == f {
			out = append(out, e)
		}
	}
	return out
}

func (x *Index) append(e Entry) Entry {
	e.Seq = len(x.entries)
	x.entries = append(x.entries, e)
	return e
}
