package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/huangsam/backfill/internal/contract"
	"github.com/huangsam/backfill/internal/gcs"
	"github.com/huangsam/backfill/schema"
	"github.com/rs/zerolog"
)

// ObjectStore is the subset of the Cloud Storage client used by GCSExtractor.
type ObjectStore interface {
	List(ctx context.Context, bucket, prefix string) ([]gcs.ObjectInfo, error)
	Open(ctx context.Context, bucket, object string) (io.ReadCloser, error)
}

var _ ObjectStore = &gcs.Client{} // Compile-time check

// GCSExtractor reads exports from gs://<bucket>/<prefix>/<YYYYMMDD>/.
type GCSExtractor struct {
	store  ObjectStore
	bucket string
	prefix string
	logger zerolog.Logger
}

var _ contract.Extractor = &GCSExtractor{} // Compile-time check

// NewGCSExtractor creates an extractor over bucket and prefix.
func NewGCSExtractor(store ObjectStore, bucket, prefix string, logger zerolog.Logger) *GCSExtractor {
	return &GCSExtractor{store: store, bucket: bucket, prefix: prefix, logger: logger}
}

func (e *GCSExtractor) datePrefix(date schema.ProcessingDate) string {
	if e.prefix == "" {
		return date.String() + "/"
	}
	return path.Join(e.prefix, date.String()) + "/"
}

func (e *GCSExtractor) objects(ctx context.Context, date schema.ProcessingDate) ([]gcs.ObjectInfo, error) {
	listed, err := e.store.List(ctx, e.bucket, e.datePrefix(date))
	if err != nil {
		return nil, err
	}
	objects := slices.DeleteFunc(listed, func(o gcs.ObjectInfo) bool { return !isExport(o.Name) })
	slices.SortFunc(objects, func(a, b gcs.ObjectInfo) int { return strings.Compare(a.Name, b.Name) })
	return objects, nil
}

// Probe implements the Extractor interface. Objects are streamed, not staged.
func (e *GCSExtractor) Probe(ctx context.Context, date schema.ProcessingDate) ([]schema.FileStat, error) {
	objects, err := e.objects(ctx, date)
	if err != nil {
		return nil, err
	}

	stats := make([]schema.FileStat, 0, len(objects))
	for _, obj := range objects {
		stat, err := e.probeObject(ctx, obj)
		if err != nil {
			return nil, err
		}
		stats = append(stats, stat)
	}
	return stats, nil
}

func (e *GCSExtractor) probeObject(ctx context.Context, obj gcs.ObjectInfo) (schema.FileStat, error) {
	r, err := e.store.Open(ctx, e.bucket, obj.Name)
	if err != nil {
		return schema.FileStat{}, err
	}
	defer func() { _ = r.Close() }()
	return ProbeCSV(path.Base(obj.Name), r, obj.Size)
}

// Download implements the Extractor interface.
func (e *GCSExtractor) Download(ctx context.Context, date schema.ProcessingDate, dir string) ([]schema.LocalFile, error) {
	objects, err := e.objects(ctx, date)
	if err != nil {
		return nil, err
	}

	files := make([]schema.LocalFile, 0, len(objects))
	for _, obj := range objects {
		name := path.Base(obj.Name)
		dst := filepath.Join(dir, name)
		if err := e.downloadObject(ctx, obj.Name, dst); err != nil {
			return nil, fmt.Errorf("failed to download gs://%s/%s: %w", e.bucket, obj.Name, err)
		}
		files = append(files, schema.LocalFile{Name: name, Path: dst})
	}
	e.logger.Debug().Str("date", date.String()).Int("files", len(files)).Msg("Downloaded objects")
	return files, nil
}

func (e *GCSExtractor) downloadObject(ctx context.Context, object, dst string) error {
	r, err := e.store.Open(ctx, e.bucket, object)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
