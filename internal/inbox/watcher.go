package inbox

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/dossier/internal/storage"
)

const settleDelay = 200 * time.Millisecond

// Watch imports the inbox once and then follows fsnotify events on its root
// until ctx is cancelled. Writes are debounced per file because editors and
// copy tools emit several events for one save.
//
// New directories created at runtime are added to the watch list. Removing or
// renaming a card file forgets its import record, so putting it back imports
// it again.
func (im *Importer) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := im.files.Root()
	if err := addDirsRecursive(w, root); err != nil {
		return err
	}
	im.logger.Info("watcher: started", slog.String("root", root))

	if _, err := im.Sync(ctx, false); err != nil {
		im.logger.Warn("watcher: initial sync failed", slog.String("error", err.Error()))
	}

	pending := make(map[string]struct{})
	var settle *time.Timer
	var settleCh <-chan time.Time
	schedule := func(rel string) {
		pending[rel] = struct{}{}
		if settle == nil {
			settle = time.NewTimer(settleDelay)
			settleCh = settle.C
		} else {
			settle.Reset(settleDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if settle != nil {
				settle.Stop()
			}
			im.logger.Info("watcher: stopped")
			return nil

		case <-settleCh:
			for rel := range pending {
				if _, err := im.ImportFile(ctx, rel, false); err != nil {
					im.logger.Warn("watcher: import failed", slog.String("path", rel), slog.String("error", err.Error()))
				}
			}
			clear(pending)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			abs := ev.Name

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(abs); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, abs); addErr != nil {
						im.logger.Warn("watcher: add new dir failed", slog.String("path", abs), slog.String("error", addErr.Error()))
						continue
					}
					im.logger.Debug("watcher: watching new dir", slog.String("path", abs))
					im.scheduleDir(root, abs, schedule)
					continue
				}
			}

			if !storage.IsCard(abs) || isHidden(abs) {
				continue
			}
			rel, relErr := filepath.Rel(root, abs)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				schedule(rel)
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				delete(pending, rel)
				if err := im.Forget(ctx, rel); err != nil {
					im.logger.Warn("watcher: forget failed", slog.String("path", rel), slog.String("error", err.Error()))
					continue
				}
				im.logger.Debug("watcher: forgot", slog.String("path", rel))
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			im.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// scheduleDir queues every card already present in a newly created directory.
func (im *Importer) scheduleDir(root, dir string, schedule func(string)) {
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !storage.IsCard(p) || isHidden(p) {
			return nil
		}
		if rel, relErr := filepath.Rel(root, p); relErr == nil {
			schedule(filepath.ToSlash(rel))
		}
		return nil
	})
}

func isHidden(p string) bool {
	base := filepath.Base(p)
	return len(base) > 0 && base[0] == '.'
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
