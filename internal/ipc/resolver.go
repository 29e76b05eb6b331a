package ipc

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/onion108/onionbell/internal/state"
	"github.com/onion108/onionbell/internal/util"
)

// Resolver maps a bell address to a fresh attribute snapshot.
type Resolver struct {
	querier Querier
	logger  *util.Logger
}

// NewResolver returns a resolver backed by q.
func NewResolver(q Querier, logger *util.Logger) *Resolver {
	return &Resolver{querier: q, logger: logger}
}

// Resolve queries the client list and returns the window owning address.
// Errors are marked ErrWindowNotFound, ErrQueryFailed or ErrCompositorGone;
// only the last one should stop the caller.
func (r *Resolver) Resolve(ctx context.Context, address string) (state.Window, error) {
	if state.NormalizeAddress(address) == "" {
		return state.Window{}, errors.Mark(errors.New("bell without window address"), ErrWindowNotFound)
	}
	clients, err := r.querier.Clients(ctx)
	if err != nil {
		if errors.Is(err, ErrCompositorGone) {
			return state.Window{}, err
		}
		return state.Window{}, errors.Mark(err, ErrQueryFailed)
	}
	win := clients.FindByAddress(address)
	if win == nil {
		if r.logger != nil {
			r.logger.Tracef("no client among %d with address %s", len(clients), address)
		}
		return state.Window{}, errors.Mark(errors.Newf("no client with address 0x%s", state.NormalizeAddress(address)), ErrWindowNotFound)
	}
	return *win, nil
}
