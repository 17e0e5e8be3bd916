package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/huangsam/backfill/internal/contract"
	"github.com/huangsam/backfill/schema"
	"github.com/rs/zerolog"
)

// LocalExtractor reads exports from a directory tree on local disk or a mounted share.
type LocalExtractor struct {
	root   string
	logger zerolog.Logger
}

var _ contract.Extractor = &LocalExtractor{} // Compile-time check

// NewLocalExtractor creates an extractor rooted at root.
func NewLocalExtractor(root string, logger zerolog.Logger) *LocalExtractor {
	return &LocalExtractor{root: root, logger: logger}
}

// files lists the export files for date in name order. A missing folder yields no files.
func (e *LocalExtractor) files(date schema.ProcessingDate) ([]string, error) {
	dir := filepath.Join(e.root, date.String())
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.Type().IsRegular() && isExport(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}

// Probe implements the Extractor interface.
func (e *LocalExtractor) Probe(ctx context.Context, date schema.ProcessingDate) ([]schema.FileStat, error) {
	names, err := e.files(date)
	if err != nil {
		return nil, err
	}

	stats := make([]schema.FileStat, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		stat, err := e.probeFile(filepath.Join(e.root, date.String(), name), name)
		if err != nil {
			e.logger.Warn().Err(err).Str("file", name).Msg("Skipping unreadable file during probe")
			continue
		}
		stats = append(stats, stat)
	}
	return stats, nil
}

func (e *LocalExtractor) probeFile(path, name string) (schema.FileStat, error) {
	f, err := os.Open(path)
	if err != nil {
		return schema.FileStat{}, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return schema.FileStat{}, err
	}
	return ProbeCSV(name, f, info.Size())
}

// Download implements the Extractor interface.
func (e *LocalExtractor) Download(ctx context.Context, date schema.ProcessingDate, dir string) ([]schema.LocalFile, error) {
	names, err := e.files(date)
	if err != nil {
		return nil, err
	}

	files := make([]schema.LocalFile, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dst := filepath.Join(dir, name)
		if err := copyFile(filepath.Join(e.root, date.String(), name), dst); err != nil {
			return nil, fmt.Errorf("failed to stage %s: %w", name, err)
		}
		files = append(files, schema.LocalFile{Name: name, Path: dst})
	}
	e.logger.Debug().Str("date", date.String()).Int("files", len(files)).Msg("Staged files")
	return files, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
