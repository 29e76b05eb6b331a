package client

import (
	"context"
	"encoding/json"
	"net"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/onion108/onionbell/internal/control"
	"github.com/onion108/onionbell/internal/state"
)

// defaultTimeout applies when the caller's context has no deadline.
const defaultTimeout = 3 * time.Second

var (
	// ErrDaemonUnavailable marks failures to reach the control socket.
	ErrDaemonUnavailable = errors.New("onionbell daemon is not running")
	// ErrRemote marks errors reported by the daemon itself.
	ErrRemote = errors.New("daemon returned an error")
)

// Client talks to the running onionbell daemon over its control socket.
type Client struct {
	socketPath string
}

type (
	// Status mirrors the daemon status payload.
	Status = control.DaemonStatus
	// BellRecord mirrors a single handled bell.
	BellRecord = control.BellRecord
	// ExplainResult mirrors the explain payload.
	ExplainResult = control.ExplainResult
	// History mirrors the recent bell log.
	History = control.History
)

// New creates a client for the socket at path, or DefaultSocketPath when empty.
func New(path string) *Client {
	if path == "" {
		path = control.DefaultSocketPath()
	}
	return &Client{socketPath: path}
}

// Status retrieves uptime, rule count and counters.
func (c *Client) Status(ctx context.Context) (Status, error) {
	return call[Status](ctx, c, control.ActionStatus, nil)
}

// History retrieves the most recent bells handled by the daemon.
func (c *Client) History(ctx context.Context) (History, error) {
	return call[History](ctx, c, control.ActionHistory, nil)
}

// Ring asks the daemon to handle a bell for the window at address.
func (c *Client) Ring(ctx context.Context, address string) (BellRecord, error) {
	if address == "" {
		return BellRecord{}, errors.New("window address cannot be empty")
	}
	return call[BellRecord](ctx, c, control.ActionRing, map[string]any{"address": address})
}

// Explain asks the daemon which rule would handle win.
func (c *Client) Explain(ctx context.Context, win state.Window) (ExplainResult, error) {
	return call[ExplainResult](ctx, c, control.ActionExplain, map[string]any{"window": win})
}

// reply is control.Response with the payload left undecoded.
type reply struct {
	Status string          `json:"status"`
	Error  string          `json:"error,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

func call[T any](ctx context.Context, c *Client, action string, params map[string]any) (T, error) {
	var out T
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTimeout)
		defer cancel()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return out, errors.Mark(errors.Wrapf(err, "dial control socket %s", c.socketPath), ErrDaemonUnavailable)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if err := json.NewEncoder(conn).Encode(control.Request{Action: action, Params: params}); err != nil {
		return out, errors.Wrapf(err, "send %s request", action)
	}
	var resp reply
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return out, errors.Wrapf(err, "read %s response", action)
	}
	if resp.Status != control.StatusOK {
		msg := resp.Error
		if msg == "" {
			msg = "unknown control error"
		}
		return out, errors.Mark(errors.New(msg), ErrRemote)
	}
	if len(resp.Data) == 0 || string(resp.Data) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(resp.Data, &out); err != nil {
		return out, errors.Wrapf(err, "decode %s payload", action)
	}
	return out, nil
}
