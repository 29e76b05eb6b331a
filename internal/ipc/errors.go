package ipc

import (
	"os"
	"syscall"

	"github.com/cockroachdb/errors"
)

var (
	// ErrWindowNotFound is returned when no client owns the bell's address.
	ErrWindowNotFound = errors.New("window not found")

	// ErrQueryFailed marks a transient failure of the request socket or hyprctl.
	ErrQueryFailed = errors.New("compositor query failed")

	// ErrCompositorGone marks failures that mean Hyprland is no longer reachable.
	ErrCompositorGone = errors.New("compositor is gone")

	// ErrConnectionLost is returned by Listener.Next once the event stream ends.
	ErrConnectionLost = errors.New("event connection lost")

	// ErrNoInstance is returned when no Hyprland instance can be located.
	ErrNoInstance = errors.New("no running hyprland instance")
)

// markDial wraps a dial failure and marks it ErrCompositorGone when the socket
// is missing or nobody is listening on it.
func markDial(err error, msg string) error {
	wrapped := errors.Wrap(err, msg)
	if compositorGone(err) {
		return errors.Mark(wrapped, ErrCompositorGone)
	}
	return wrapped
}

func compositorGone(err error) bool {
	return errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, os.ErrNotExist)
}
