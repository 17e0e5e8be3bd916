package source

import (
	"context"
	"fmt"
	"io"

	"github.com/huangsam/backfill/internal/contract"
	"github.com/huangsam/backfill/internal/gcs"
	"github.com/huangsam/backfill/schema"
	"github.com/rs/zerolog"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New builds the extractor selected by cfg. The returned closer releases any client it opened.
func New(ctx context.Context, cfg *contract.Config, logger zerolog.Logger) (contract.Extractor, io.Closer, error) {
	logger = contract.Component(logger, "source")
	switch cfg.Source {
	case schema.LocalSource, "":
		return NewLocalExtractor(cfg.SourceDir, logger), nopCloser{}, nil
	case schema.GCSSource:
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, nil, err
		}
		return NewGCSExtractor(client, cfg.SourceBucket, cfg.SourcePrefix, logger), client, nil
	default:
		return nil, nil, fmt.Errorf("unsupported source: %s", cfg.Source)
	}
}
