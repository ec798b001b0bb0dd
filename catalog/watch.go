package catalog

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const debounce = 200 * time.Millisecond

// IsURL reports whether source is fetched over http(s) rather than read from disk.
func IsURL(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// Watch reloads the catalog file whenever it changes and passes the new list
// to onChange. Failed reloads are logged and skipped. Watch returns once the
// watcher is running; it stops when ctx is done.
func Watch(ctx context.Context, path string, log *zap.Logger, onChange func([]string)) error {
	if log == nil {
		log = zap.NewNop()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// editors and atomic writers replace the file, so watch the directory
	err = w.Add(filepath.Dir(path))
	if err != nil {
		w.Close()
		return err
	}

	target := filepath.Clean(path)
	reload := make(chan struct{}, 1)
	go func() {
		defer w.Close()
		var t *time.Timer
		defer func() {
			if t != nil {
				t.Stop()
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if t != nil {
					t.Stop()
				}
				t = time.AfterFunc(debounce, func() {
					select {
					case reload <- struct{}{}:
					default:
					}
				})
			case <-reload:
				bits, err := Load(ctx, path)
				if err != nil {
					log.Warn("reload bit catalog", zap.String("path", path), zap.Error(err))
					continue
				}
				log.Info("bit catalog reloaded", zap.String("path", path), zap.Int("bits", len(bits)))
				onChange(bits)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn("watch bit catalog", zap.Error(err))
			}
		}
	}()
	return nil
}
