package ipc

import (
	"context"
	"encoding/json"
	"io"
	"net"

	"github.com/cockroachdb/errors"

	"github.com/onion108/onionbell/internal/state"
)

// clientsRequest asks the request socket for the client list as JSON.
const clientsRequest = "j/clients"

type socketQuerier struct {
	path string
}

func newSocketQuerier(inst Instance) *socketQuerier {
	return &socketQuerier{path: inst.RequestSocket()}
}

// Clients opens one connection per request, as Hyprland closes it after replying.
func (q *socketQuerier) Clients(ctx context.Context) (state.Windows, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", q.path)
	if err != nil {
		return nil, markDial(err, "connect request socket")
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if _, err := conn.Write([]byte(clientsRequest)); err != nil {
		return nil, errors.Wrap(err, "write clients request")
	}
	data, err := io.ReadAll(conn)
	if err != nil {
		return nil, errors.Wrap(err, "read clients reply")
	}
	return decodeClients(data)
}

func (q *socketQuerier) String() string {
	return q.path
}

func decodeClients(data []byte) (state.Windows, error) {
	var clients state.Windows
	if err := json.Unmarshal(data, &clients); err != nil {
		return nil, errors.Wrap(err, "decode clients")
	}
	return clients, nil
}
