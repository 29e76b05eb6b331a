package ipc

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
)

// SocketsReady reports whether both compositor sockets exist.
func SocketsReady(inst Instance) bool {
	for _, path := range []string{inst.RequestSocket(), inst.EventSocket()} {
		if _, err := os.Stat(path); err != nil {
			return false
		}
	}
	return true
}

// WaitForSockets blocks until both sockets of inst exist, the timeout elapses
// or ctx is cancelled. A zero timeout waits for ctx only.
func WaitForSockets(ctx context.Context, inst Instance, timeout time.Duration) error {
	if SocketsReady(inst) {
		return nil
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "watch hyprland runtime dir")
	}
	defer watcher.Close()

	watched := ""
	for {
		// The instance dir may not exist yet; watch its closest existing
		// ancestor and move down as directories appear.
		target := nearestDir(inst.Dir)
		if target != watched {
			if watched != "" {
				_ = watcher.Remove(watched)
			}
			if err := watcher.Add(target); err != nil {
				return errors.Wrapf(err, "watch %s", target)
			}
			watched = target
			continue
		}
		if SocketsReady(inst) {
			return nil
		}

		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "wait for sockets in %s", inst.Dir)
		case _, ok := <-watcher.Events:
			if !ok {
				return errors.New("socket watcher closed")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("socket watcher closed")
			}
			return errors.Wrap(err, "socket watcher")
		}
	}
}

func nearestDir(dir string) string {
	for {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}
