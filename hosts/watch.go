package hosts

import (
	"context"
	"errors"

	"github.com/fsnotify/fsnotify"
	"github.com/semihalev/zlog/v2"
)

// ErrNoPath is returned by Watch when the table was not loaded from a file.
var ErrNoPath = errors.New("hosts: no backing file to watch")

// Watch reloads the table whenever its backing file changes, until ctx is
// done. Editors that replace the file are handled by re-adding the watch
// after remove/rename events.
func (t *Table) Watch(ctx context.Context) error {
	t.mu.RLock()
	path := t.path
	t.mu.RUnlock()
	if path == "" {
		return ErrNoPath
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					if err := t.Reload(); err != nil {
						zlog.Warn("Hosts file reload failed", "path", path, "error", err.Error())
					}
				}
				if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
					// watch descriptor died with the old inode
					_ = watcher.Add(path)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				zlog.Warn("Hosts file watcher error", "path", path, "error", err.Error())
			}
		}
	}()

	return nil
}
