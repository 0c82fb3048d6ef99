package ingest

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"ai-voice-gateway/internal/observability/logging"
)

// DefaultDebounce is how long a file must stay quiet before it is ingested.
const DefaultDebounce = 500 * time.Millisecond

// FileIngester is implemented by *Ingestor.
type FileIngester interface {
	IngestFile(ctx context.Context, path string) (Report, error)
	Allowed(name string) bool
}

// Watcher ingests files written into a folder.
type Watcher struct {
	watcher  *fsnotify.Watcher
	ingester FileIngester
	logger   zerolog.Logger
	debounce time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewWatcher creates a watcher on dir and starts processing events.
func NewWatcher(ingester FileIngester, dir string, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		watcher:  fsw,
		ingester: ingester,
		logger:   logging.WithComponent("ingest-watcher").With().Str("dir", dir).Logger(),
		debounce: debounce,
		timers:   make(map[string]*time.Timer),
		ctx:      ctx,
		cancel:   cancel,
		stopCh:   make(chan struct{}),
	}

	w.wg.Add(1)
	go w.run()

	w.logger.Info().Msg("Watching folder for documents")
	return w, nil
}

// Stop stops the watcher and waits for in-flight ingestion to finish.
func (w *Watcher) Stop() error {
	close(w.stopCh)
	err := w.watcher.Close()

	w.mu.Lock()
	for path, t := range w.timers {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.timers, path)
	}
	w.mu.Unlock()

	w.cancel()
	w.wg.Wait()
	return err
}

func (w *Watcher) run() {
	defer w.wg.Done()
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.ingester.Allowed(event.Name) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.logger.Debug().
					Str("file", filepath.Base(event.Name)).
					Str("op", event.Op.String()).
					Msg("File change detected")
				w.schedule(event.Name)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("File watcher error")

		case <-w.stopCh:
			return
		}
	}
}

// schedule debounces ingestion per file; each write restarts the timer.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	select {
	case <-w.stopCh:
		return
	default:
	}

	if t, ok := w.timers[path]; ok && t.Stop() {
		w.wg.Done()
	}
	w.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()

		// Runs after schedule releases the lock, so t is set.
		w.mu.Lock()
		if w.timers[path] == t {
			delete(w.timers, path)
		}
		w.mu.Unlock()

		report, err := w.ingester.IngestFile(w.ctx, path)
		if err != nil {
			return
		}
		w.logger.Info().Str("file", filepath.Base(path)).Int("chunks", report.Chunks()).Msg("Watched file ingested")
	})
	w.timers[path] = t
}
