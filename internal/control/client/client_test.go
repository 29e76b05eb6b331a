package client

import (
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/onion108/onionbell/internal/control"
	"github.com/onion108/onionbell/internal/engine"
	"github.com/onion108/onionbell/internal/metrics"
	"github.com/onion108/onionbell/internal/rules"
	"github.com/onion108/onionbell/internal/state"
)

func startTestServer(t *testing.T, handler func(net.Conn)) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "socket")
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("listen on unix socket: %v", err)
	}
	go func() {
		defer ln.Close()
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		handler(conn)
	}()
	return path
}

func expectAction(t *testing.T, conn net.Conn, action string) control.Request {
	t.Helper()
	var req control.Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		t.Errorf("decode request: %v", err)
		return req
	}
	if req.Action != action {
		t.Errorf("unexpected action %q, want %q", req.Action, action)
	}
	return req
}

func TestStatusSuccess(t *testing.T) {
	started := time.Now().UTC().Round(time.Second)
	path := startTestServer(t, func(conn net.Conn) {
		defer conn.Close()
		expectAction(t, conn, control.ActionStatus)
		resp := control.Response{Status: control.StatusOK, Data: engine.Status{
			Started: started,
			Uptime:  "1m0s",
			Rules:   2,
			Metrics: metrics.Snapshot{Totals: metrics.Totals{Bells: 3, Played: 2, Silenced: 1}},
		}}
		if err := json.NewEncoder(conn).Encode(resp); err != nil {
			t.Errorf("encode response: %v", err)
		}
	})

	status, err := New(path).Status(context.Background())
	if err != nil {
		t.Fatalf("Status returned error: %v", err)
	}
	if status.Rules != 2 || status.Uptime != "1m0s" || !status.Started.Equal(started) {
		t.Fatalf("unexpected status: %#v", status)
	}
	if status.Metrics.Totals.Bells != 3 || status.Metrics.Totals.Silenced != 1 {
		t.Fatalf("unexpected totals: %#v", status.Metrics.Totals)
	}
}

func TestRingSendsAddress(t *testing.T) {
	path := startTestServer(t, func(conn net.Conn) {
		defer conn.Close()
		req := expectAction(t, conn, control.ActionRing)
		if req.Params["address"] != "558e91924520" {
			t.Errorf("unexpected params: %#v", req.Params)
		}
		resp := control.Response{Status: control.StatusOK, Data: engine.BellRecord{
			Address: "558e91924520",
			Rule:    "kitty",
			Status:  engine.BellStatusPlayed,
		}}
		json.NewEncoder(conn).Encode(resp)
	})

	rec, err := New(path).Ring(context.Background(), "558e91924520")
	if err != nil {
		t.Fatalf("Ring returned error: %v", err)
	}
	if rec.Status != engine.BellStatusPlayed || rec.Rule != "kitty" {
		t.Fatalf("unexpected record: %#v", rec)
	}

	if _, err := New(path).Ring(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty address")
	}
}

func TestExplainSendsWindow(t *testing.T) {
	path := startTestServer(t, func(conn net.Conn) {
		defer conn.Close()
		req := expectAction(t, conn, control.ActionExplain)
		data, _ := json.Marshal(req.Params["window"])
		var win state.Window
		if err := json.Unmarshal(data, &win); err != nil || win.Class != "kitty" || !win.Floating {
			t.Errorf("unexpected window %#v (%v)", win, err)
		}
		json.NewEncoder(conn).Encode(control.Response{Status: control.StatusOK, Data: control.ExplainResult{
			Window: win,
			Rule:   "floating",
			Sound:  "/sfx/b.wav",
			Volume: 1,
			Traces: []rules.Trace{{Index: 0, Rule: "floating", Matched: true, Selected: true}},
		}})
	})

	result, err := New(path).Explain(context.Background(), state.Window{Class: "kitty", Floating: true})
	if err != nil {
		t.Fatalf("Explain returned error: %v", err)
	}
	if result.Rule != "floating" || len(result.Traces) != 1 || !result.Traces[0].Selected {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestServerErrorIsReturned(t *testing.T) {
	path := startTestServer(t, func(conn net.Conn) {
		defer conn.Close()
		expectAction(t, conn, control.ActionHistory)
		json.NewEncoder(conn).Encode(control.Response{Status: control.StatusError, Error: "boom"})
	})
	_, err := New(path).History(context.Background())
	if err == nil || err.Error() != "boom" || !errors.Is(err, ErrRemote) {
		t.Fatalf("expected remote boom, got %v", err)
	}
}

func TestUnavailableDaemon(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "absent.sock")).Status(context.Background())
	if !errors.Is(err, ErrDaemonUnavailable) {
		t.Fatalf("expected ErrDaemonUnavailable, got %v", err)
	}
}
