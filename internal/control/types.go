package control

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"

	"github.com/onion108/onionbell/internal/config"
	"github.com/onion108/onionbell/internal/engine"
	"github.com/onion108/onionbell/internal/rules"
	"github.com/onion108/onionbell/internal/state"
)

const (
	// SocketFileName is the filename of the control socket within the runtime dir.
	SocketFileName = "control.sock"

	// SocketEnv overrides the control socket location.
	SocketEnv = "ONIONBELL_CONTROL_SOCKET"

	// Action names supported by the control protocol.
	ActionStatus  = "status"
	ActionRing    = "ring"
	ActionExplain = "explain"
	ActionHistory = "history"

	// Response statuses.
	StatusOK    = "ok"
	StatusError = "error"
)

// Request represents a control API request.
type Request struct {
	Action string         `json:"action"`
	Params map[string]any `json:"params,omitempty"`
}

// Response represents a control API response.
type Response struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

type (
	// DaemonStatus is the payload of the status action.
	DaemonStatus = engine.Status
	// BellRecord is the outcome of a single bell, as returned by ring and history.
	BellRecord = engine.BellRecord
)

// ExplainResult reports which rule a window would select and why.
type ExplainResult struct {
	Window state.Window  `json:"window"`
	Rule   string        `json:"rule"`
	Sound  string        `json:"sound,omitempty"`
	Volume float64       `json:"volume"`
	Silent bool          `json:"silent"`
	Traces []rules.Trace `json:"traces,omitempty"`
}

// History is the payload of the history action, oldest first.
type History struct {
	Bells []BellRecord `json:"bells"`
}

// DefaultSocketPath returns the expected location of the onionbell control socket.
func DefaultSocketPath() string {
	if env := os.Getenv(SocketEnv); env != "" {
		return env
	}
	base := os.Getenv("XDG_RUNTIME_DIR")
	if base == "" {
		base = xdg.RuntimeDir
	}
	return filepath.Join(base, config.AppName, SocketFileName)
}
