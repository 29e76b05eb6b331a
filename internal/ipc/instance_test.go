package ipc

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
)

func writeLock(t *testing.T, runtimeDir, sig, content string, mtime time.Time) string {
	t.Helper()
	dir := filepath.Join(runtimeDir, "hypr", sig)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	lock := filepath.Join(dir, lockFileName)
	if err := os.WriteFile(lock, []byte(content), 0o644); err != nil {
		t.Fatalf("write lock: %v", err)
	}
	if err := os.Chtimes(lock, mtime, mtime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	return dir
}

func TestLocateUsesSignatureEnv(t *testing.T) {
	runtimeDir := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", runtimeDir)
	t.Setenv(SignatureEnv, "abc_123")

	inst, err := Locate()
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	wantDir := filepath.Join(runtimeDir, "hypr", "abc_123")
	if inst.Dir != wantDir || inst.Signature != "abc_123" {
		t.Fatalf("Locate = %+v, want dir %s", inst, wantDir)
	}
	if got := inst.EventSocket(); got != filepath.Join(wantDir, ".socket2.sock") {
		t.Fatalf("EventSocket = %s", got)
	}
	if got := inst.RequestSocket(); got != filepath.Join(wantDir, ".socket.sock") {
		t.Fatalf("RequestSocket = %s", got)
	}
}

func TestDiscoverKeepsLiveInstancesNewestFirst(t *testing.T) {
	runtimeDir := t.TempDir()
	self := strconv.Itoa(os.Getpid())
	now := time.Now()

	writeLock(t, runtimeDir, "older", self+"\nwayland-1\n", now.Add(-time.Hour))
	writeLock(t, runtimeDir, "newer", self+"\nwayland-2\n", now)
	writeLock(t, runtimeDir, "dead", "2147483646\nwayland-3\n", now.Add(time.Minute))
	writeLock(t, runtimeDir, "garbage", "not a pid\n", now)
	writeLock(t, runtimeDir, "empty", "", now)
	if err := os.MkdirAll(filepath.Join(runtimeDir, "hypr", "nolock"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	found, err := Discover(runtimeDir)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("expected 2 live instances, got %+v", found)
	}
	if found[0].Signature != "newer" || found[1].Signature != "older" {
		t.Fatalf("unexpected order: %+v", found)
	}
	if found[0].PID != os.Getpid() {
		t.Fatalf("PID = %d, want %d", found[0].PID, os.Getpid())
	}
}

func TestLocateFallsBackToDiscovery(t *testing.T) {
	runtimeDir := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", runtimeDir)
	t.Setenv(SignatureEnv, "")

	if _, err := Locate(); !errors.Is(err, ErrNoInstance) {
		t.Fatalf("expected ErrNoInstance without instances, got %v", err)
	}

	dir := writeLock(t, runtimeDir, "live", strconv.Itoa(os.Getpid()), time.Now())
	inst, err := Locate()
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if inst.Dir != dir {
		t.Fatalf("Locate dir = %s, want %s", inst.Dir, dir)
	}
}

func TestDiscoverMissingRuntimeDir(t *testing.T) {
	found, err := Discover(filepath.Join(t.TempDir(), "nope"))
	if err != nil || len(found) != 0 {
		t.Fatalf("Discover on missing dir = %+v, %v", found, err)
	}
}
