package cli

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/pressline/pressline/internal/config"
	"github.com/pressline/pressline/internal/scheduler"
)

const watchDebounce = 500 * time.Millisecond

// ConfigWatcher reloads logging settings and the poll interval when the
// config file changes. The rest of the config requires a restart;
// changing pipeline credentials or the database path under a running
// engine is not supported.
type ConfigWatcher struct {
	watcher *fsnotify.Watcher
	path    string
	sched   *scheduler.Scheduler
	wg      sync.WaitGroup

	mu      sync.Mutex
	pending *time.Timer
}

// watchConfig starts watching the active config file. It is a no-op
// error if no config file is in use.
func watchConfig(ctx context.Context, sched *scheduler.Scheduler) (*ConfigWatcher, error) {
	path, err := config.ConfigFilePath(cfgFile)
	if err != nil {
		return nil, err
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory; editors replace files on save, which drops
	// a watch registered on the file itself.
	if err := fsWatcher.Add(filepath.Dir(path)); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	w := &ConfigWatcher{
		watcher: fsWatcher,
		path:    path,
		sched:   sched,
	}

	w.wg.Add(1)
	go w.loop(ctx)

	log.Info().Str("file", path).Msg("Watching config file")
	return w, nil
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *ConfigWatcher) Close() error {
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

func (w *ConfigWatcher) loop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Config watcher error")
		}
	}
}

// scheduleReload coalesces the burst of events an editor emits on save
// into a single reload.
func (w *ConfigWatcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pending != nil {
		w.pending.Stop()
	}
	w.pending = time.AfterFunc(watchDebounce, w.reload)
}

func (w *ConfigWatcher) reload() {
	cfg, err := config.LoadFromFile(w.path)
	if err != nil {
		log.Warn().Err(err).Msg("Config reload failed, keeping previous settings")
		return
	}

	configureLogging(&cfg.Logging)
	w.sched.SetPollInterval(cfg.Scheduler.PollInterval)
	log.Info().Str("level", cfg.Logging.Level).Msg("Config reloaded")
}
