// Package batch runs the duplicate-detection engine over one ordered batch of items.
package batch

import (
	"errors"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog"

	"github.com/pdxmph/imgdedup/pkg/classify"
	"github.com/pdxmph/imgdedup/pkg/digest"
	"github.com/pdxmph/imgdedup/pkg/duplicate"
	"github.com/pdxmph/imgdedup/pkg/phash"
)

// ErrUnsupported marks items whose extension is in neither family.
var ErrUnsupported = errors.New("unsupported file type")

// Item is one named blob of a batch. Names are caller supplied and may repeat.
type Item struct {
	Name string
	Data []byte
}

// Skip records an item that appears in neither result list.
type Skip struct {
	Name   string
	Family classify.Family
	Reason error
}

// Result is the accept/reject partition of a batch.
type Result struct {
	Accepted   []string
	Duplicates []string
	Skipped    []Skip

	// Decisions holds one decision per input item, aligned with the input.
	Decisions []duplicate.Decision
}

// ImageHasher fingerprints image bytes.
type ImageHasher interface {
	Hash(data []byte) (phash.Fingerprint, error)
}

// Processor classifies, fingerprints and deduplicates batches. It keeps no
// state between calls and may be shared by concurrent callers.
type Processor struct {
	classifier *classify.Classifier
	hasher     ImageHasher
	threshold  int
	workers    int
	log        zerolog.Logger
}

// Option configures a Processor.
type Option func(*Processor)

// WithClassifier overrides the default extension tables.
func WithClassifier(c *classify.Classifier) Option {
	return func(p *Processor) { p.classifier = c }
}

// WithHasher overrides the perceptual hash engine.
func WithHasher(h ImageHasher) Option {
	return func(p *Processor) { p.hasher = h }
}

// WithThreshold sets the maximum Hamming distance for two images to count as the same.
func WithThreshold(n int) Option {
	return func(p *Processor) { p.threshold = n }
}

// WithWorkers fingerprints items on a pool of n goroutines. Duplicate
// decisions are still made one at a time in input order.
func WithWorkers(n int) Option {
	return func(p *Processor) { p.workers = n }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Processor) { p.log = l }
}

// New returns a processor with default tables, threshold 5 and a single worker.
func New(opts ...Option) *Processor {
	p := &Processor{
		classifier: classify.Default(),
		hasher:     phash.NewEngine(),
		threshold:  duplicate.DefaultThreshold,
		workers:    1,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewIndex returns an empty index configured like the processor.
func (p *Processor) NewIndex() *duplicate.Index {
	return duplicate.NewIndex(p.threshold, duplicate.WithLogger(p.log))
}

// Process runs items against a freshly created index.
func (p *Processor) Process(items []Item) *Result {
	return p.ProcessWith(p.NewIndex(), items)
}

// ProcessWith runs items against idx, which the caller may have seeded.
func (p *Processor) ProcessWith(idx *duplicate.Index, items []Item) *Result {
	ids := p.fingerprint(items)

	res := &Result{Decisions: make([]duplicate.Decision, 0, len(items))}
	for i, item := range items {
		id := ids[i]

		var d duplicate.Decision
		switch {
		case id.err != nil:
			d = duplicate.Decision{Name: item.Name, Family: id.family, Outcome: duplicate.Skipped, Reason: id.err}
		case id.family == classify.Image:
			d = idx.QueryAndInsertImage(item.Name, id.fingerprint)
		default:
			d = idx.QueryAndInsertDocument(item.Name, id.digest)
		}

		switch d.Outcome {
		case duplicate.Accepted:
			res.Accepted = append(res.Accepted, item.Name)
		case duplicate.Duplicate:
			p.log.Info().Str("file", item.Name).Str("match", d.MatchedLabel).
				Str("family", d.Family.String()).Msg("duplicate found")
			res.Duplicates = append(res.Duplicates, item.Name)
		case duplicate.Skipped:
			p.log.Debug().Err(d.Reason).Str("file", item.Name).Msg("item skipped")
			res.Skipped = append(res.Skipped, Skip{Name: item.Name, Family: d.Family, Reason: d.Reason})
		}
		res.Decisions = append(res.Decisions, d)
	}
	p.log.Debug().Int("items", len(items)).Int("threshold", idx.Threshold()).Int("indexed", idx.Len()).
		Int("accepted", len(res.Accepted)).Int("duplicates", len(res.Duplicates)).Msg("batch deduplicated")
	return res
}

type ident struct {
	family      classify.Family
	digest      digest.Digest
	fingerprint phash.Fingerprint
	err         error
}

func (p *Processor) identify(item Item) ident {
	family := p.classifier.Classify(item.Name)
	switch family {
	case classify.Image:
		fp, err := p.hasher.Hash(item.Data)
		if err != nil {
			p.log.Warn().Err(err).Str("file", item.Name).Msg("image hash failed")
			return ident{family: family, err: fmt.Errorf("hash %s: %w", item.Name, err)}
		}
		return ident{family: family, fingerprint: fp}
	case classify.Document:
		return ident{family: family, digest: digest.Sum(item.Data)}
	default:
		return ident{family: family, err: ErrUnsupported}
	}
}

// fingerprint computes per-item identities, in parallel when configured.
// The result is aligned with items.
func (p *Processor) fingerprint(items []Item) []ident {
	out := make([]ident, len(items))
	if p.workers <= 1 || len(items) < 2 {
		for i, item := range items {
			out[i] = p.identify(item)
		}
		return out
	}

	pool, err := ants.NewPool(p.workers)
	if err != nil {
		p.log.Warn().Err(err).Int("workers", p.workers).Msg("worker pool unavailable, hashing sequentially")
		for i, item := range items {
			out[i] = p.identify(item)
		}
		return out
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i := range items {
		i := i
		wg.Add(1)
		task := func() {
			defer wg.Done()
			out[i] = p.identify(items[i])
		}
		if err := pool.Submit(task); err != nil {
			task()
		}
	}
	wg.Wait()
	return out
}
