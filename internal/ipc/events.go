package ipc

import (
	"bufio"
	"context"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/onion108/onionbell/internal/util"
)

// BellEvent is the event name Hyprland emits for urgent/bell requests.
const BellEvent = "bell"

// MaxEventLine bounds a single event line. Longer lines, such as window
// titles pasted with megabytes of text, are skipped.
const MaxEventLine = 1 << 20

var errLineTooLong = errors.New("event line too long")

// Event represents a Hyprland event stream payload.
type Event struct {
	Kind    string
	Payload string
}

// Bell is a bell notification for the window at Address (hex, no 0x).
type Bell struct {
	Address string
}

// ParseEvent splits an EVENT>>DATA line. Lines without the separator are
// reported as malformed.
func ParseEvent(line string) (Event, bool) {
	kind, payload, ok := strings.Cut(strings.TrimRight(line, "\r"), ">>")
	if !ok || kind == "" {
		return Event{}, false
	}
	return Event{Kind: kind, Payload: payload}, true
}

// Listener yields bells read from the compositor event socket. It owns its
// connection.
type Listener struct {
	conn    net.Conn
	logger  *util.Logger
	maxLine int

	lines chan string
	done  chan struct{}
	// err is written before lines is closed.
	err       error
	closeOnce sync.Once
}

// Listen connects to the event socket of inst.
func Listen(ctx context.Context, inst Instance, logger *util.Logger) (*Listener, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", inst.EventSocket())
	if err != nil {
		return nil, markDial(err, "connect event socket")
	}
	return NewListener(conn, logger), nil
}

// NewListener starts reading events from conn.
func NewListener(conn net.Conn, logger *util.Logger) *Listener {
	return newListener(conn, logger, MaxEventLine)
}

func newListener(conn net.Conn, logger *util.Logger, maxLine int) *Listener {
	l := &Listener{
		conn:    conn,
		logger:  logger,
		maxLine: maxLine,
		lines:   make(chan string),
		done:    make(chan struct{}),
	}
	go l.read()
	return l
}

func (l *Listener) read() {
	defer close(l.lines)
	r := bufio.NewReader(l.conn)
	for {
		line, err := readLine(r, l.maxLine)
		if errors.Is(err, errLineTooLong) {
			l.logger.Warnf("skipping event line longer than %d bytes (%q...)", l.maxLine, line)
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				l.err = err
			}
			return
		}
		select {
		case l.lines <- line:
		case <-l.done:
			return
		}
	}
}

// readLine returns the next line without its terminator. A line longer than
// limit is consumed up to its newline and reported as errLineTooLong together
// with its first bytes. A final unterminated line is returned before io.EOF.
func readLine(r *bufio.Reader, limit int) (string, error) {
	var (
		buf       []byte
		oversized bool
	)
	for {
		chunk, err := r.ReadSlice('\n')
		if !oversized {
			if len(buf)+len(chunk) > limit {
				oversized = true
				buf = append(buf, chunk...)
				if len(buf) > 32 {
					buf = buf[:32]
				}
			} else {
				buf = append(buf, chunk...)
			}
		}
		switch {
		case err == nil:
			if oversized {
				return string(buf), errLineTooLong
			}
			return strings.TrimRight(string(buf), "\r\n"), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && len(buf) > 0 && !oversized:
			return string(buf), nil
		default:
			return "", err
		}
	}
}

// Next blocks until the next bell. Every other event and malformed lines are
// skipped. Once the stream ends it returns an error marked ErrConnectionLost;
// on ctx cancellation it closes the connection and returns ctx.Err().
func (l *Listener) Next(ctx context.Context) (Bell, error) {
	for {
		select {
		case <-ctx.Done():
			l.Close()
			return Bell{}, ctx.Err()
		case line, ok := <-l.lines:
			if !ok {
				return Bell{}, l.lost()
			}
			ev, ok := ParseEvent(line)
			if !ok {
				l.logger.Warnf("malformed event line %q", line)
				continue
			}
			if ev.Kind != BellEvent {
				l.logger.Tracef("ignoring event %s", ev.Kind)
				continue
			}
			return Bell{Address: strings.TrimSpace(ev.Payload)}, nil
		}
	}
}

func (l *Listener) lost() error {
	if l.err != nil {
		return errors.Mark(errors.Wrap(l.err, "read event socket"), ErrConnectionLost)
	}
	return errors.Mark(errors.New("event stream closed"), ErrConnectionLost)
}

// Close releases the connection. It is safe to call more than once.
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		err = l.conn.Close()
	})
	return err
}
