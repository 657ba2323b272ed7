package dashboard

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Iron-Ham/livecap/internal/logging"
	"github.com/Iron-Ham/livecap/internal/status"
)

// watchDebounce coalesces the bursts a single atomic record write produces.
const watchDebounce = 50 * time.Millisecond

// Watcher signals when a record in the status directory changes.
type Watcher struct {
	watcher *fsnotify.Watcher
	changes chan struct{}
	stopCh  chan struct{}
	logger  *logging.Logger
}

// NewWatcher starts watching dir. The directory must exist.
func NewWatcher(dir string, logger *logging.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, err
	}
	w := &Watcher{
		watcher: fw,
		changes: make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		logger:  logger,
	}
	go w.loop()
	return w, nil
}

// Changes receives one value per burst of record changes.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.stopCh)
	return w.watcher.Close()
}

func (w *Watcher) loop() {
	debounce := time.NewTimer(0)
	<-debounce.C // drain initial timer

	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !isRecordEvent(event) {
				continue
			}
			debounce.Reset(watchDebounce)

		case <-debounce.C:
			select {
			case w.changes <- struct{}{}:
			default:
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("status watcher error", "error", err.Error())
		}
	}
}

func isRecordEvent(event fsnotify.Event) bool {
	if filepath.Ext(event.Name) != status.RecordExt {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0
}
