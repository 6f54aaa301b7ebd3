package catalog

import (
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher monitors the catalog database file and invokes a callback when it
// changes, debounced so a burst of writes (one import batch) triggers a
// single refresh.
type Watcher struct {
	watcher  *fsnotify.Watcher
	dbPath   string
	debounce time.Duration
	onChange func()
	log      *slog.Logger
	done     chan struct{}
}

// NewWatcher creates a watcher for the database at dbPath. onChange runs on
// the watcher goroutine and should hand off quickly.
func NewWatcher(dbPath string, debounce time.Duration, onChange func(), log *slog.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &Watcher{
		watcher:  w,
		dbPath:   filepath.Clean(dbPath),
		debounce: debounce,
		onChange: onChange,
		log:      log,
		done:     make(chan struct{}),
	}, nil
}

// Start begins monitoring. The parent directory is watched because SQLite
// writes through journal/WAL sidecar files that replace the inode.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(filepath.Dir(w.dbPath)); err != nil {
		return err
	}
	w.log.Info("watching catalog", "path", w.dbPath)
	go w.processEvents()
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.watcher.Close()
}

func (w *Watcher) processEvents() {
	var timer *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if !w.isCatalogFile(event.Name) {
				continue
			}
			w.log.Debug("catalog change detected", "path", event.Name, "op", event.Op.String())
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			w.log.Info("catalog changed, triggering refresh")
			w.onChange()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("catalog watcher error", "error", err)

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

func (w *Watcher) isCatalogFile(path string) bool {
	clean := filepath.Clean(path)
	switch clean {
	case w.dbPath, w.dbPath + "-wal", w.dbPath + "-journal":
		return true
	}
	return false
}
