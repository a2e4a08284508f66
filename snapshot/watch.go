package snapshot

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"go.viam.com/usbinspector/logging"
)

// WatchDebounce coalesces bursts of file events (editors often write a file in several steps).
var WatchDebounce = 100 * time.Millisecond

// Watch calls onChange after the file at path is written or re-created, until ctx is done. The
// parent directory is watched so that atomic replaces are seen too. Watch blocks.
func Watch(ctx context.Context, path string, logger logging.Logger, onChange func()) error {
	target, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrapf(err, "cannot resolve %q", path)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "cannot create file watcher")
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			logger.Debugw("error closing file watcher", "error", err)
		}
	}()
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return errors.Wrapf(err, "cannot watch %q", filepath.Dir(target))
	}

	return watchEvents(ctx, target, watcher.Events, watcher.Errors, logger, onChange)
}

// changeGate stops onChange calls once closed. close waits for a call in progress.
type changeGate struct {
	ctx      context.Context
	mu       sync.Mutex
	closed   bool
	onChange func()
}

func (g *changeGate) fire() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.closed && g.ctx.Err() == nil {
		g.onChange()
	}
}

func (g *changeGate) close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
}

// watchEvents filters events for target until ctx is done or either channel closes. No onChange
// call starts after it returns, even one already debounced.
func watchEvents(
	ctx context.Context,
	target string,
	events <-chan fsnotify.Event,
	watchErrs <-chan error,
	logger logging.Logger,
	onChange func(),
) error {
	gate := &changeGate{ctx: ctx, onChange: onChange}
	debounced := debounce.New(WatchDebounce)
	defer func() {
		debounced(func() {})
		gate.close()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				logger.Debugw("snapshot changed", "path", target, "op", event.Op.String())
				debounced(gate.fire)
			}
		case err, ok := <-watchErrs:
			if !ok {
				return nil
			}
			logger.Warnw("file watcher error", "path", target, "error", err)
		}
	}
}
