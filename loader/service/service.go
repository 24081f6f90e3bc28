// Package service watches a source folder and ingests every file that has
// stopped changing, then moves it to a dated archive or bad folder.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"ragbridge/config"
	"ragbridge/loader/extract"
	"ragbridge/pipeline"
	"ragbridge/types"
)

// Ingester is the part of the pipeline the loader needs.
type Ingester interface {
	IngestDocuments(ctx context.Context, collection string, docs []types.Document, opts ...pipeline.IngestOption) (*types.IngestResult, error)
}

type Service struct {
	cfg      config.LoaderConfig
	margins  extract.Margins
	ingester Ingester
	logger   *slog.Logger
	tick     time.Duration
	now      func() time.Time

	fileMutex       sync.Mutex
	fileLastSeen    map[string]time.Time
	filesProcessing map[string]bool
}

func New(cfg config.LoaderConfig, ingester Ingester) *Service {
	return &Service{
		cfg:             cfg,
		margins:         extract.Margins{Top: cfg.CropTop, Bottom: cfg.CropBottom},
		ingester:        ingester,
		logger:          slog.Default().With("component", "loader"),
		tick:            time.Second,
		now:             time.Now,
		fileLastSeen:    make(map[string]time.Time),
		filesProcessing: make(map[string]bool),
	}
}

// Run watches the source folder until ctx is cancelled. A file being
// processed when ctx ends stays in the source folder and is picked up again
// on the next start.
func (s *Service) Run(ctx context.Context) error {
	if s.cfg.Pattern != "" && !doublestar.ValidatePattern(s.cfg.Pattern) {
		return types.NewConfigError(fmt.Errorf("invalid loader pattern %q", s.cfg.Pattern))
	}
	if err := createDirectories(s.cfg.SourceDir, s.cfg.ArchiveDir, s.cfg.BadDir); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fileChan := make(chan string, 10)
	var (
		wg       sync.WaitGroup
		watchErr error
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(fileChan)
		if err := s.watch(ctx, fileChan); err != nil {
			watchErr = err
			cancel()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.processFiles(ctx, fileChan)
	}()

	s.logger.Info("loader started", "source", s.cfg.SourceDir, "collection", s.cfg.Collection, "pattern", s.cfg.Pattern)
	wg.Wait()
	s.logger.Info("loader stopped")
	return watchErr
}

func (s *Service) processFiles(ctx context.Context, fileChan <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case path, ok := <-fileChan:
			if !ok {
				return
			}
			err := s.ProcessFile(ctx, path)

			s.fileMutex.Lock()
			delete(s.filesProcessing, path)
			if ctx.Err() == nil || err == nil {
				delete(s.fileLastSeen, path)
			}
			s.fileMutex.Unlock()

			if ctx.Err() != nil {
				return
			}
		}
	}
}

// ProcessFile extracts and ingests one file, then moves it to the archive
// folder on success or the bad folder on failure. Cancellation leaves the
// file where it is.
func (s *Service) ProcessFile(ctx context.Context, path string) error {
	log := s.logger.With("file", path)
	log.Info("processing file")

	docs, err := extract.FromFile(path, s.margins)
	if err == nil {
		var res *types.IngestResult
		res, err = s.ingester.IngestDocuments(ctx, s.cfg.Collection, docs)
		if err == nil {
			log.Info("file ingested", "collection", res.Collection, "chunks", res.Uploaded, "took", res.Took)
		}
	}
	if err != nil && ctx.Err() != nil {
		log.Warn("processing interrupted, file left in source", "err", err)
		return err
	}

	destRoot := s.cfg.ArchiveDir
	if err != nil {
		log.Error("file rejected", "err", err)
		destRoot = s.cfg.BadDir
	}
	dest, merr := MoveToArchive(path, destRoot, s.now())
	if merr != nil {
		log.Error("error moving file", "dest_root", destRoot, "err", merr)
		return errors.Join(err, merr)
	}
	log.Info("file moved", "dest", dest)
	return err
}

// MoveToArchive moves path into root/YYYY-MM-DD/. A name already taken there
// gets a _1, _2, ... suffix. Returns the final path.
func MoveToArchive(path, root string, now time.Time) (string, error) {
	destDir := filepath.Join(root, now.Format("2006-01-02"))
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("create archive directory: %w", err)
	}

	destPath := filepath.Join(destDir, filepath.Base(path))
	ext := filepath.Ext(destPath)
	baseName := strings.TrimSuffix(filepath.Base(destPath), ext)
	for counter := 1; ; counter++ {
		if _, err := os.Stat(destPath); errors.Is(err, os.ErrNotExist) {
			break
		}
		destPath = filepath.Join(destDir, fmt.Sprintf("%s_%d%s", baseName, counter, ext))
	}

	if err := os.Rename(path, destPath); err == nil {
		return destPath, nil
	}
	// rename fails across devices, fall back to copy and remove
	if err := copyFile(path, destPath); err != nil {
		return "", err
	}
	if err := os.Remove(path); err != nil {
		return destPath, fmt.Errorf("remove %s after copy: %w", path, err)
	}
	return destPath, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}

func createDirectories(dirs ...string) error {
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}
