package routetable

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/nazibul7/turboproxy/internal/proxylog"
)

// Watch watches path's containing directory (not path itself, so an
// editor that replaces the file via rename-into-place is still caught)
// and calls onReload with a freshly loaded Table every time a
// create/write/rename event touches path. It runs until ctx is canceled
// or the returned stop func is called.
func Watch(ctx context.Context, path string, onReload func(*Table, error)) (stop func(), err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				table, loadErr := LoadFile(path)
				onReload(table, loadErr)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				proxylog.Error("routetable: watch error: %v", err)
			}
		}
	}()

	stop = func() {
		watcher.Close()
		<-done
	}
	return stop, nil
}
