package ipc

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWaitForSocketsReturnsWhenBothAppear(t *testing.T) {
	runtimeDir := t.TempDir()
	inst := Instance{Signature: "late", Dir: filepath.Join(runtimeDir, "hypr", "late")}

	go func() {
		time.Sleep(50 * time.Millisecond)
		os.MkdirAll(inst.Dir, 0o755)
		time.Sleep(20 * time.Millisecond)
		os.WriteFile(inst.RequestSocket(), nil, 0o600)
		time.Sleep(20 * time.Millisecond)
		os.WriteFile(inst.EventSocket(), nil, 0o600)
	}()

	if err := WaitForSockets(context.Background(), inst, 5*time.Second); err != nil {
		t.Fatalf("WaitForSockets: %v", err)
	}
	if !SocketsReady(inst) {
		t.Fatal("sockets should be ready")
	}
}

func TestWaitForSocketsTimesOut(t *testing.T) {
	inst := Instance{Dir: filepath.Join(t.TempDir(), "hypr", "never")}
	start := time.Now()
	err := WaitForSockets(context.Background(), inst, 100*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout")
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("timeout not honoured: %v", time.Since(start))
	}
}

func TestWaitForSocketsReadyImmediately(t *testing.T) {
	inst := Instance{Dir: t.TempDir()}
	os.WriteFile(inst.RequestSocket(), nil, 0o600)
	os.WriteFile(inst.EventSocket(), nil, 0o600)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := WaitForSockets(ctx, inst, 0); err != nil {
		t.Fatalf("expected immediate success, got %v", err)
	}
}
