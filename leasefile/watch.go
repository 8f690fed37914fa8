package leasefile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"pkt.systems/pslog"

	"pkt.systems/robotrpc/internal/svcfields"
	"pkt.systems/robotrpc/lease"
)

// WatchOption customises Watch.
type WatchOption func(*Watcher)

// WithLogger supplies a logger for reload diagnostics.
func WithLogger(logger pslog.Base) WatchOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithOnReload registers a callback invoked after every reload attempt.
func WithOnReload(fn func(ApplyResult, error)) WatchOption {
	return func(w *Watcher) {
		w.onReload = fn
	}
}

// Watcher re-imports a lease file whenever it changes.
type Watcher struct {
	path     string
	wallet   *lease.Wallet
	watcher  *fsnotify.Watcher
	logger   pslog.Base
	onReload func(ApplyResult, error)
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once
}

// Watch imports path into w once, if it exists, and then keeps importing it
// on every change until ctx ends or Close is called. The parent directory is
// watched so files replaced by rename, as Save does, are picked up.
func Watch(ctx context.Context, path string, w *lease.Wallet, opts ...WatchOption) (*Watcher, error) {
	path = filepath.Clean(path)
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("leasefile: create watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("leasefile: watch %s: %w", dir, err)
	}
	lw := &Watcher{
		path:    path,
		wallet:  w,
		watcher: fw,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(lw)
	}
	lw.logger = svcfields.Ensure(lw.logger, svcfields.LeaseFile)
	if _, err := os.Stat(path); err == nil {
		lw.reload()
	}
	go lw.run(ctx)
	return lw, nil
}

// Close stops watching and waits for the watch loop to exit.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.stop)
		err = w.watcher.Close()
	})
	<-w.done
	return err
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			w.once.Do(func() {
				close(w.stop)
				w.watcher.Close()
			})
			return
		case <-w.stop:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("lease.file.watch_error", "path", w.path, "error", err)
		}
	}
}

func (w *Watcher) reload() {
	res, err := Import(w.path, w.wallet)
	if err != nil {
		w.logger.Warn("lease.file.reload_failed", "path", w.path, "error", err)
	} else {
		w.logger.Debug("lease.file.reloaded", "path", w.path, "applied", res.Applied, "stale", res.Stale)
	}
	if w.onReload != nil {
		w.onReload(res, err)
	}
}
