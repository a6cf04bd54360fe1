// Package upload ties the duplicate-detection engine to persistence for one
// upload batch at a time.
package upload

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pdxmph/imgdedup/pkg/auth"
	"github.com/pdxmph/imgdedup/pkg/batch"
	"github.com/pdxmph/imgdedup/pkg/classify"
	"github.com/pdxmph/imgdedup/pkg/duplicate"
	"github.com/pdxmph/imgdedup/pkg/store"
	"github.com/pdxmph/imgdedup/pkg/types"
)

// Skip reasons reported to clients
const (
	ReasonUnsupported = "unsupported"
	ReasonUndecodable = "undecodable"
)

// Uploader interface for the HTTP server
type Uploader interface {
	Run(ctx context.Context, who auth.Identity, items []batch.Item) (*types.UploadResponse, error)
}

// Service implements the Uploader interface
type Service struct {
	processor *batch.Processor
	sink      store.Sink
	catalog   duplicate.EntryStore

	// serializes batches while a catalog is in use
	mu  sync.Mutex
	log zerolog.Logger
}

// Option configures a Service
type Option func(*Service)

// WithSink persists accepted items. Without one the service only reports.
func WithSink(s store.Sink) Option {
	return func(svc *Service) { svc.sink = s }
}

// WithCatalog deduplicates each batch against everything previously recorded.
func WithCatalog(c duplicate.EntryStore) Option {
	return func(svc *Service) { svc.catalog = c }
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(svc *Service) { svc.log = l }
}

// New creates a new upload service
func New(p *batch.Processor, opts ...Option) *Service {
	s := &Service{processor: p, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run deduplicates items, persists the accepted ones and reports the outcome.
// Nothing is written when ctx is cancelled before persistence starts.
func (s *Service) Run(ctx context.Context, who auth.Identity, items []batch.Item) (*types.UploadResponse, error) {
	batchID := uuid.NewString()
	log := s.log.With().Str("batch", batchID).Str("user", who.Label()).Logger()

	if s.catalog != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
	}

	idx := s.processor.NewIndex()
	if s.catalog != nil {
		prior, err := s.catalog.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("load catalog: %w", err)
		}
		n := idx.Seed(prior)
		log.Debug().Int("loaded", len(prior)).Int("kept", n).Int("indexed", idx.Len()).Msg("index seeded from catalog")
	}

	res := s.processor.ProcessWith(idx, items)

	if err := ctx.Err(); err != nil {
		log.Warn().Err(err).Msg("batch abandoned before persisting")
		return nil, err
	}

	resp := &types.UploadResponse{
		BatchID:           batchID,
		SavedFiles:        []string{},
		DeletedDuplicates: []string{},
		SkippedFiles:      []types.SkippedFile{},
		FailedFiles:       []types.FailedFile{},
		User:              who.Label(),
		Decisions:         make([]types.DecisionView, 0, len(res.Decisions)),
	}

	var recorded []duplicate.Entry
	// index positions of accepted entries whose bytes were not stored
	unsaved := make(map[int]bool)
	for i, d := range res.Decisions {
		view := View(d)
		switch d.Outcome {
		case duplicate.Accepted:
			if s.sink == nil {
				view.MIME = classify.Sniff(items[i].Data)
				view.Size = int64(len(items[i].Data))
				resp.SavedFiles = append(resp.SavedFiles, d.Name)
				recorded = append(recorded, d.Entry)
				break
			}
			saved, err := s.sink.Save(d.Name, items[i].Data)
			if err != nil {
				log.Error().Err(err).Str("file", d.Name).Msg("failed to save upload")
				resp.FailedFiles = append(resp.FailedFiles, types.FailedFile{Name: d.Name, Error: err.Error()})
				unsaved[d.Entry.Seq] = true
				view.Status = "failed"
				break
			}
			view.Path = saved.Path
			view.MIME = saved.MIME
			view.Size = saved.Size
			view.Renamed = saved.Renamed
			view.Existed = saved.Existed
			log.Debug().Str("file", d.Name).Str("path", saved.Path).Str("mime", saved.MIME).
				Int64("bytes", saved.Size).Bool("renamed", saved.Renamed).Bool("existed", saved.Existed).
				Msg("upload saved")
			resp.SavedFiles = append(resp.SavedFiles, d.Name)
			recorded = append(recorded, d.Entry)
		case duplicate.Duplicate:
			// the match precedes d in input order, so unsaved is already complete for it
			view.MatchFailed = unsaved[d.MatchedSeq]
			resp.DeletedDuplicates = append(resp.DeletedDuplicates, d.Name)
		case duplicate.Skipped:
			resp.SkippedFiles = append(resp.SkippedFiles, types.SkippedFile{Name: d.Name, Reason: SkipReason(d.Reason)})
		}
		resp.Decisions = append(resp.Decisions, view)
	}

	if s.catalog != nil && len(recorded) > 0 {
		// ctx may be cancelled by now; the files are already on disk
		if err := s.catalog.Record(context.WithoutCancel(ctx), recorded); err != nil {
			return resp, fmt.Errorf("record catalog: %w", err)
		}
	}

	log.Info().
		Int("files", len(items)).
		Int("saved", len(resp.SavedFiles)).
		Int("duplicates", len(resp.DeletedDuplicates)).
		Int("skipped", len(resp.SkippedFiles)).
		Int("failed", len(resp.FailedFiles)).
		Msg("batch processed")

	return resp, nil
}

// View converts a decision to its wire form
func View(d duplicate.Decision) types.DecisionView {
	v := types.DecisionView{
		Name:   d.Name,
		Family: d.Family.String(),
		Status: d.Outcome.String(),
	}
	switch d.Outcome {
	case duplicate.Accepted:
		v.Key = d.Entry.Key()
	case duplicate.Duplicate:
		v.MatchedLabel = d.MatchedLabel
		v.Distance = d.Distance
	}
	return v
}

// SkipReason maps a skip error to the short reason reported to clients
func SkipReason(err error) string {
	if errors.Is(err, batch.ErrUnsupported) {
		return ReasonUnsupported
	}
	return ReasonUndecodable
}
