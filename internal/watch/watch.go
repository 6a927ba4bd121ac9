// Package watch re-runs a callback when lead-sheet files change on disk.
//
// The parent directory of each file is watched rather than the file itself,
// so editors that save by writing a temporary file and renaming it over the
// original are still seen. Bursts of events are collapsed by a debounce
// delay, and a file whose content hash is unchanged does not fire.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/FocuswithJustin/LeadSheetML/core/errors"
	"github.com/FocuswithJustin/LeadSheetML/internal/catalog"
	"github.com/FocuswithJustin/LeadSheetML/internal/logging"
)

// DefaultDebounce is how long the watcher waits for more events before
// firing.
const DefaultDebounce = 200 * time.Millisecond

// Watcher watches a fixed set of files.
type Watcher struct {
	fsw      *fsnotify.Watcher
	debounce time.Duration
	files    map[string]bool
	hashes   map[string]string
}

// New watches paths. A non-positive debounce means DefaultDebounce.
func New(debounce time.Duration, paths ...string) (*Watcher, error) {
	if len(paths) == 0 {
		return nil, errors.NewValidation("paths", "nothing to watch")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.NewIO("create watcher", "", err)
	}
	w := &Watcher{
		fsw:      fsw,
		debounce: debounce,
		files:    make(map[string]bool),
		hashes:   make(map[string]string),
	}

	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			fsw.Close()
			return nil, errors.NewIO("resolve", p, err)
		}
		if _, err := os.Stat(abs); err != nil {
			fsw.Close()
			return nil, errors.NewIO("stat", p, err)
		}
		w.files[abs] = true
		w.hashes[abs] = hashFile(abs)

		dir := filepath.Dir(abs)
		if dirs[dir] {
			continue
		}
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return nil, errors.NewIO("watch", dir, err)
		}
		dirs[dir] = true
	}
	return w, nil
}

// Files returns the watched files, absolute and sorted.
func (w *Watcher) Files() []string {
	out := make([]string, 0, len(w.files))
	for p := range w.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Run delivers changes to onChange until ctx is cancelled, then closes the
// watcher. onChange runs on the Run goroutine, one file at a time.
func (w *Watcher) Run(ctx context.Context, onChange func(path string)) error {
	defer w.fsw.Close()

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	pending := make(map[string]bool)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			path := filepath.Clean(event.Name)
			if !w.files[path] {
				continue
			}
			if event.Has(fsnotify.Remove) {
				logging.WatchEvent("removed", path)
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				pending[path] = true
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			logging.OperationFailed("watch", err)

		case <-timer.C:
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			clear(pending)

			for _, p := range paths {
				if !w.changed(p) {
					continue
				}
				logging.WatchEvent("changed", p)
				onChange(p)
			}
		}
	}
}

// changed reports whether p's content differs from the last seen version
// and records the new hash.
func (w *Watcher) changed(p string) bool {
	h := hashFile(p)
	if h == "" || h == w.hashes[p] {
		return false
	}
	w.hashes[p] = h
	return true
}

func hashFile(p string) string {
	data, err := os.ReadFile(p)
	if err != nil {
		return ""
	}
	return catalog.Hash(data)
}
