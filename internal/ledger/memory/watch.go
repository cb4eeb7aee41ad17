package memory

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"budgetagent/internal/ledger"
	"budgetagent/internal/metrics"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the store from path whenever the file is written or
// replaced. A seed that fails to parse or validate leaves the current dataset
// in place. Call stop to end the watch.
func (s *Store) Watch(path string, logger *slog.Logger) (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("seed watcher: %w", err)
	}
	// Watch the directory so editors that rename over the file are seen too.
	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("seed watcher add %s: %w", dir, err)
	}
	target := filepath.Clean(path)

	done := make(chan struct{})
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
					continue
				}
				s.reload(path, logger)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("Seed watcher error", "error", err)
			case <-done:
				return
			}
		}
	}()

	return func() { close(done) }, nil
}

func (s *Store) reload(path string, logger *slog.Logger) {
	seed, err := ledger.LoadSeed(path)
	if err == nil {
		err = s.Replace(seed)
	}
	if err != nil {
		metrics.LedgerReloads.WithLabelValues("error").Inc()
		logger.Error("Seed reload failed, keeping previous ledger", "path", path, "error", err)
		return
	}
	metrics.LedgerReloads.WithLabelValues("ok").Inc()
	logger.Info("Ledger reloaded from seed", "path", path, "users", len(seed.Users))
}
