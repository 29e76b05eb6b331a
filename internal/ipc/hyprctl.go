package ipc

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/onion108/onionbell/internal/config"
	"github.com/onion108/onionbell/internal/state"
	"github.com/onion108/onionbell/internal/util"
)

// Querier lists the compositor's clients.
type Querier interface {
	Clients(ctx context.Context) (state.Windows, error)
}

// Hyprctl wraps hyprctl shell-outs.
type Hyprctl struct {
	Binary    string
	Signature string
}

// NewHyprctl returns a hyprctl client using the binary on PATH, bound to inst.
func NewHyprctl(inst Instance) *Hyprctl {
	return &Hyprctl{Binary: "hyprctl", Signature: inst.Signature}
}

func (c *Hyprctl) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.Binary, args...)
	if c.Signature != "" {
		cmd.Env = append(os.Environ(), SignatureEnv+"="+c.Signature)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, errors.Wrapf(err, "hyprctl %s: %s", strings.Join(args, " "), strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// Clients runs `hyprctl -j clients`.
func (c *Hyprctl) Clients(ctx context.Context) (state.Windows, error) {
	data, err := c.run(ctx, "-j", "clients")
	if err != nil {
		return nil, err
	}
	return decodeClients(data)
}

var (
	_ Querier = (*Hyprctl)(nil)
	_ Querier = (*socketQuerier)(nil)
)

// NewQuerier returns a querier for the requested strategy. The socket
// strategy falls back to hyprctl when the request socket is absent and
// hyprctl is installed.
func NewQuerier(logger *util.Logger, inst Instance, requested config.QueryStrategy) (Querier, config.QueryStrategy, error) {
	switch requested {
	case config.QuerySocket, "":
		q := newSocketQuerier(inst)
		if _, err := os.Stat(q.path); err != nil {
			if _, lookErr := exec.LookPath("hyprctl"); lookErr == nil {
				if logger != nil {
					logger.Warnf("falling back to hyprctl queries: %v", err)
				}
				return NewHyprctl(inst), config.QueryHyprctl, nil
			}
		}
		if logger != nil {
			logger.Debugf("using socket queries at %s", q)
		}
		return q, config.QuerySocket, nil
	case config.QueryHyprctl:
		return NewHyprctl(inst), config.QueryHyprctl, nil
	default:
		return nil, "", errors.Newf("unknown query strategy %q", requested)
	}
}
