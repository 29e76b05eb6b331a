package control

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/onion108/onionbell/internal/engine"
	"github.com/onion108/onionbell/internal/state"
	"github.com/onion108/onionbell/internal/util"
)

// connTimeout bounds a single request/response exchange.
const connTimeout = 5 * time.Second

// ErrAlreadyRunning is returned by Serve when another daemon answers on the
// control socket.
var ErrAlreadyRunning = errors.New("control socket is in use by another onionbell")

type handlerFunc func(ctx context.Context, params map[string]any) (any, error)

// Server answers control requests for one engine.
type Server struct {
	engine     *engine.Engine
	logger     *util.Logger
	socketPath string
	handlers   map[string]handlerFunc
}

// NewServer creates a new control server. An empty path selects DefaultSocketPath.
func NewServer(eng *engine.Engine, logger *util.Logger, path string) *Server {
	if path == "" {
		path = DefaultSocketPath()
	}
	s := &Server{
		engine:     eng,
		logger:     logger,
		socketPath: path,
	}
	s.handlers = map[string]handlerFunc{
		ActionStatus:  s.status,
		ActionHistory: s.history,
		ActionRing:    s.ring,
		ActionExplain: s.explain,
	}
	return s
}

// SocketPath is where the server listens.
func (s *Server) SocketPath() string {
	return s.socketPath
}

// Serve accepts connections until ctx is cancelled, then waits for in-flight
// requests and removes the socket.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := listen(s.socketPath)
	if err != nil {
		return err
	}
	s.logger.Infof("control server listening on %s", s.socketPath)

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	var wg sync.WaitGroup
	defer func() {
		ln.Close()
		wg.Wait()
		if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
			s.logger.Warnf("remove control socket: %v", err)
		}
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Errorf("control accept error: %v", err)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handle(ctx, conn)
		}()
	}
}

// listen binds path, replacing a socket file left behind by a dead daemon.
func listen(path string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.Wrap(err, "create control dir")
	}
	if _, err := os.Stat(path); err == nil {
		if conn, dialErr := net.DialTimeout("unix", path, 200*time.Millisecond); dialErr == nil {
			conn.Close()
			return nil, errors.Wrapf(ErrAlreadyRunning, "%s", path)
		}
		if err := os.Remove(path); err != nil {
			return nil, errors.Wrap(err, "remove stale socket")
		}
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, errors.Wrap(err, "listen on control socket")
	}
	if err := os.Chmod(path, 0o600); err != nil {
		ln.Close()
		return nil, errors.Wrap(err, "chmod control socket")
	}
	return ln, nil
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(connTimeout))

	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		s.reply(conn, nil, errors.Wrap(err, "decode request"))
		return
	}
	s.logger.Debugf("control request %s", req.Action)
	handler, ok := s.handlers[req.Action]
	if !ok {
		s.reply(conn, nil, errors.Newf("unknown action %q", req.Action))
		return
	}
	data, err := handler(ctx, req.Params)
	s.reply(conn, data, err)
}

func (s *Server) reply(conn net.Conn, data any, err error) {
	resp := Response{Status: StatusOK, Data: data}
	if err != nil {
		resp = Response{Status: StatusError, Error: err.Error()}
	}
	if encErr := json.NewEncoder(conn).Encode(resp); encErr != nil {
		s.logger.Debugf("control reply: %v", encErr)
	}
}

func (s *Server) status(context.Context, map[string]any) (any, error) {
	return s.engine.Status(), nil
}

func (s *Server) history(context.Context, map[string]any) (any, error) {
	return History{Bells: s.engine.History()}, nil
}

func (s *Server) ring(ctx context.Context, params map[string]any) (any, error) {
	address, _ := params["address"].(string)
	if strings.TrimSpace(address) == "" {
		return nil, errors.New("missing window address")
	}
	rec, err := s.engine.Ring(ctx, address)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Server) explain(_ context.Context, params map[string]any) (any, error) {
	var win state.Window
	if err := decodeParam(params, "window", &win); err != nil {
		return nil, err
	}
	sel, traces := s.engine.Explain(win)
	return ExplainResult{
		Window: win,
		Rule:   sel.RuleName,
		Sound:  sel.Sound,
		Volume: sel.Volume,
		Silent: sel.Silent(),
		Traces: traces,
	}, nil
}

// decodeParam converts the generic JSON value under key into out.
func decodeParam(params map[string]any, key string, out any) error {
	raw, ok := params[key]
	if !ok {
		return errors.Newf("missing %s", key)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return errors.Wrapf(err, "encode %s", key)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrapf(err, "decode %s", key)
	}
	return nil
}
