package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

type TCPConfig struct {
	Address     string
	DialTimeout time.Duration
	ReadTimeout time.Duration
}

// TCPTransport talks to an inverter behind a serial-to-IP gateway. A link
// that fails mid-exchange is dropped and redialled on the next Exchange, so
// a late reply can never be taken for the answer to a later request.
type TCPTransport struct {
	mu     sync.Mutex
	conn   net.Conn
	cfg    TCPConfig
	closed bool
}

// DialTCP connects to the gateway.
func DialTCP(ctx context.Context, cfg TCPConfig) (*TCPTransport, error) {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}

	t := &TCPTransport{cfg: cfg}
	if err := t.dial(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *TCPTransport) dial(ctx context.Context) error {
	d := net.Dialer{Timeout: t.cfg.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", t.cfg.Address)
	if err != nil {
		return fmt.Errorf("dial %s: %w", t.cfg.Address, err)
	}
	t.conn = conn
	return nil
}

func (t *TCPTransport) Exchange(ctx context.Context, frame []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if t.conn == nil {
		if err := t.dial(ctx); err != nil {
			return nil, err
		}
	}

	conn := t.conn
	if err := conn.SetDeadline(deadline(ctx, t.cfg.ReadTimeout)); err != nil {
		t.drop()
		return nil, fmt.Errorf("set deadline on %s: %w", t.cfg.Address, err)
	}
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	if _, err := conn.Write(frame); err != nil {
		t.drop()
		return nil, t.classify(ctx, "write to", err)
	}
	reply, err := readFrame(conn, func() error { return nil })
	if err != nil {
		t.drop()
		return nil, t.classify(ctx, "read from", err)
	}
	return reply, nil
}

func (t *TCPTransport) classify(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var netErr net.Error
	switch {
	case errors.As(err, &netErr) && netErr.Timeout():
		err = ErrTimeout
	case errors.Is(err, io.EOF):
		err = fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return fmt.Errorf("%s %s: %w", op, t.cfg.Address, err)
}

func (t *TCPTransport) drop() {
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
}

func (t *TCPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

func (t *TCPTransport) String() string {
	return "tcp://" + t.cfg.Address
}
