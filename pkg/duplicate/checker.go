package duplicate

import (
	"context"

	"github.com/pdxmph/imgdedup/pkg/digest"
	"github.com/pdxmph/imgdedup/pkg/phash"
)

// Checker provides duplicate detection for one batch.
type Checker interface {
	// QueryAndInsertDocument accepts d under label unless an equal digest was accepted before.
	QueryAndInsertDocument(label string, d digest.Digest) Decision

	// QueryAndInsertImage accepts f under label unless an earlier fingerprint is within the threshold.
	QueryAndInsertImage(label string, f phash.Fingerprint) Decision
}

// EntryStore persists accepted entries across batches.
type EntryStore interface {
	// Load returns every stored entry in insertion order.
	Load(ctx context.Context) ([]Entry, error)

	// Record appends accepted entries.
	Record(ctx context.Context, entries []Entry) error
}

var _ Checker = (*Index)(nil)
var _ EntryStore = (*Catalog)(nil)
