package notifications

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"campusbook/internal/api"
)

// Watcher refreshes a Feed on an interval and reports unread-count changes.
type Watcher struct {
	feed     *Feed
	interval time.Duration
	logger   zerolog.Logger
	onChange func(unread int)

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewWatcher creates a watcher. onChange may be nil.
func NewWatcher(feed *Feed, interval time.Duration, onChange func(unread int), logger zerolog.Logger) *Watcher {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Watcher{
		feed:     feed,
		interval: interval,
		logger:   logger.With().Str("component", "notifications").Logger(),
		onChange: onChange,
	}
}

// Start begins polling until ctx ends or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.stopCh = make(chan struct{})
	stop := w.stopCh
	w.mu.Unlock()

	w.wg.Add(1)
	go w.loop(ctx, stop)

	w.logger.Info().Dur("interval", w.interval).Msg("notification watcher started")
}

// Stop gracefully stops the watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	stop := w.stopCh
	w.mu.Unlock()

	close(stop)
	w.wg.Wait()

	w.logger.Info().Msg("notification watcher stopped")
}

func (w *Watcher) loop(ctx context.Context, stop <-chan struct{}) {
	defer w.wg.Done()

	// Run immediately on start
	last := w.poll(ctx, -1)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			last = w.poll(ctx, last)
		}
	}
}

func (w *Watcher) poll(ctx context.Context, last int) int {
	if _, err := w.feed.Refresh(ctx); err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			w.logger.Debug().Msg("not signed in, skipping refresh")
		} else if ctx.Err() == nil {
			w.logger.Warn().Err(err).Msg("refresh notifications")
		}
		return last
	}

	unread := w.feed.UnreadCount()
	if unread != last {
		w.logger.Info().Int("unread", unread).Msg("unread notifications changed")
		if w.onChange != nil {
			w.onChange(unread)
		}
	}
	return unread
}
