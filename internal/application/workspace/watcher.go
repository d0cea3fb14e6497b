package workspace

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/penwyp/go-trace-project/internal/core/storage"
	"github.com/penwyp/go-trace-project/internal/util"
)

// FileEvent is a change below the project directory.
type FileEvent struct {
	Path      string
	Operation string
}

type FileWatcher struct {
	watcher *fsnotify.Watcher
	root    string
	events  chan FileEvent
}

// NewFileWatcher watches every visible folder below root.
func NewFileWatcher(root string) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	fw := &FileWatcher{
		watcher: watcher,
		root:    root,
		events:  make(chan FileEvent, 100),
	}

	if err := fw.addPath(root); err != nil {
		watcher.Close()
		return nil, err
	}

	go fw.processEvents()

	return fw, nil
}

func (fw *FileWatcher) addPath(path string) error {
	return filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		if p != fw.root && fw.ignored(p) {
			return filepath.SkipDir
		}
		return fw.watcher.Add(p)
	})
}

// ignored reports whether p lies in a hidden folder such as the
// supplementary or metadata folders.
func (fw *FileWatcher) ignored(p string) bool {
	rel, err := filepath.Rel(fw.root, p)
	if err != nil || rel == "." {
		return false
	}
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		if storage.IsHidden(seg) {
			return true
		}
	}
	return false
}

func (fw *FileWatcher) processEvents() {
	defer close(fw.events)
	for {
		select {
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if fw.ignored(event.Name) || event.Op == fsnotify.Chmod {
				continue
			}

			// New folders must be watched too
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := fw.addPath(event.Name); err != nil {
						util.LogWarnf("Failed to watch %s: %v", event.Name, err)
					}
				}
			}

			select {
			case fw.events <- FileEvent{Path: event.Name, Operation: event.Op.String()}:
			default:
				// A refresh is already pending
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			util.LogError("File monitoring error: " + err.Error())
		}
	}
}

func (fw *FileWatcher) Events() <-chan FileEvent {
	return fw.events
}

func (fw *FileWatcher) Close() error {
	return fw.watcher.Close()
}

// Watch refreshes the project after changes on disk settle. It blocks
// until ctx is done.
func (w *Workspace) Watch(ctx context.Context, onRefresh func()) error {
	fw, err := NewFileWatcher(w.config.ProjectDir)
	if err != nil {
		return err
	}
	defer fw.Close()

	util.LogInfof("Watching %s for changes", w.config.ProjectDir)

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-fw.Events():
			if !ok {
				return nil
			}
			util.LogDebugf("Project change: %s %s", event.Operation, event.Path)
			if timer == nil {
				timer = time.NewTimer(w.config.Debounce)
			} else {
				timer.Reset(w.config.Debounce)
			}
			pending = timer.C

		case <-pending:
			pending = nil
			w.Refresh()
			if onRefresh != nil {
				onRefresh()
			}
		}
	}
}
