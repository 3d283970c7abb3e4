package ingest

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/millrun/millrun/pkg/engine"
)

// Target accepts validated batches. *engine.Engine satisfies it.
type Target interface {
	Ingest(ctx context.Context, batch *engine.Batch) error
}

// Summary reports what an ingestion added.
type Summary struct {
	Files     []string `json:"files"`
	Orders    int      `json:"orders"`
	Plans     int      `json:"plans"`
	Stages    int      `json:"stages"`
	Materials int      `json:"materials"`
	Equipment int      `json:"equipment"`
}

// String returns a one-line description of the summary.
func (s *Summary) String() string {
	return fmt.Sprintf("%d orders, %d plans (%d stages), %d materials, %d equipment from %d files",
		s.Orders, s.Plans, s.Stages, s.Materials, s.Equipment, len(s.Files))
}

// Ingester loads batch documents and hands them to the engine.
type Ingester struct {
	loader *Loader
	target Target
	logger zerolog.Logger
}

// NewIngester creates an ingester feeding target.
func NewIngester(target Target, logger zerolog.Logger) *Ingester {
	return &Ingester{
		loader: NewLoader(logger),
		target: target,
		logger: logger.With().Str("component", "ingester").Logger(),
	}
}

// IngestPaths loads every document under paths and ingests them as one
// batch. Nothing is ingested unless every document is valid and the engine
// accepts the batch as a whole.
func (i *Ingester) IngestPaths(ctx context.Context, paths ...string) (*Summary, error) {
	batch, files, err := i.loader.LoadPaths(ctx, paths)
	if err != nil {
		return nil, err
	}

	if err := i.target.Ingest(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to ingest batch: %w", err)
	}

	sum := summarize(batch)
	sum.Files = files

	i.logger.Info().
		Int("orders", sum.Orders).
		Int("plans", sum.Plans).
		Int("stages", sum.Stages).
		Int("materials", sum.Materials).
		Int("equipment", sum.Equipment).
		Msg("Batch ingested")

	return sum, nil
}

// IngestBytes parses and ingests a single in-memory document.
func (i *Ingester) IngestBytes(ctx context.Context, data []byte, name string) (*Summary, error) {
	batch, err := i.loader.Parse(data, name)
	if err != nil {
		return nil, err
	}
	if err := checkDuplicates(batch); err != nil {
		return nil, err
	}
	if err := i.target.Ingest(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to ingest batch: %w", err)
	}

	sum := summarize(batch)
	sum.Files = []string{name}
	return sum, nil
}

func summarize(b *engine.Batch) *Summary {
	s := &Summary{
		Orders:    len(b.Orders),
		Plans:     len(b.Plans),
		Materials: len(b.Materials),
		Equipment: len(b.Equipment),
	}
	for _, p := range b.Plans {
		s.Stages += len(p.Stages)
	}
	return s
}
