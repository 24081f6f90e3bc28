package service

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// watch tracks candidate files from fsnotify events and a periodic rescan of
// the source folder. A file is sent for processing once it has seen no
// change for MonitoringTime.
func (s *Service) watch(ctx context.Context, fileChan chan<- string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := addWatchDirs(watcher, s.cfg.SourceDir); err != nil {
		return fmt.Errorf("watch %s: %w", s.cfg.SourceDir, err)
	}
	s.scan()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			s.handleEvent(watcher, event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("watch error", "err", err)
		case <-ticker.C:
			s.scan()
			for _, path := range s.ready() {
				select {
				case fileChan <- path:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}
}

func (s *Service) handleEvent(watcher *fsnotify.Watcher, event fsnotify.Event) {
	switch {
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		s.forget(event.Name)
	case event.Has(fsnotify.Create) || event.Has(fsnotify.Write):
		if isDir(event.Name) {
			if err := addWatchDirs(watcher, event.Name); err != nil {
				s.logger.Warn("error watching new directory", "dir", event.Name, "err", err)
			}
			return
		}
		if s.Matches(event.Name) {
			s.touch(event.Name)
		}
	}
}

// Matches reports whether path, taken relative to the source folder, is
// selected by the loader pattern. Dot files are always skipped since editors
// and copy tools use them as temporaries.
func (s *Service) Matches(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	if s.cfg.Pattern == "" {
		return true
	}
	rel, err := filepath.Rel(s.cfg.SourceDir, path)
	if err != nil {
		rel = base
	}
	if ok, _ := doublestar.Match(s.cfg.Pattern, filepath.ToSlash(rel)); ok {
		return true
	}
	ok, _ := doublestar.Match(s.cfg.Pattern, base)
	return ok
}

// touch restarts the quiet period of path.
func (s *Service) touch(path string) {
	s.fileMutex.Lock()
	defer s.fileMutex.Unlock()
	if s.filesProcessing[path] {
		return
	}
	if _, exists := s.fileLastSeen[path]; !exists {
		s.logger.Debug("new file detected", "file", path)
	}
	s.fileLastSeen[path] = s.now()
}

func (s *Service) forget(path string) {
	s.fileMutex.Lock()
	defer s.fileMutex.Unlock()
	if s.filesProcessing[path] {
		return
	}
	delete(s.fileLastSeen, path)
}

// scan picks up files that were already there or whose events were missed,
// and drops tracked files that disappeared.
func (s *Service) scan() {
	current := make(map[string]bool)
	err := filepath.WalkDir(s.cfg.SourceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != s.cfg.SourceDir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if s.Matches(path) {
			current[path] = true
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("error while reading source directory", "err", err)
		return
	}

	s.fileMutex.Lock()
	defer s.fileMutex.Unlock()
	for path := range current {
		if _, exists := s.fileLastSeen[path]; !exists {
			s.fileLastSeen[path] = s.now()
		}
	}
	for path := range s.fileLastSeen {
		if !current[path] && !s.filesProcessing[path] {
			delete(s.fileLastSeen, path)
			s.logger.Debug("file removed from tracking", "file", path)
		}
	}
}

// ready returns the files whose quiet period is over, in path order, and
// marks them as processing.
func (s *Service) ready() []string {
	s.fileMutex.Lock()
	defer s.fileMutex.Unlock()

	now := s.now()
	var paths []string
	for path, lastSeen := range s.fileLastSeen {
		if s.filesProcessing[path] || now.Sub(lastSeen) < s.cfg.MonitoringTime {
			continue
		}
		s.filesProcessing[path] = true
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

func addWatchDirs(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
