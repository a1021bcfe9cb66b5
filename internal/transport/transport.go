// Package transport moves request frames to an inverter and reads the reply
// back, over a serial line or a serial-to-IP gateway.
package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"github.com/TheFuji/mpp-solar-v0.9.01/pkg/protocol"
)

var (
	ErrTimeout       = errors.New("transport: timed out waiting for reply")
	ErrFrameTooLarge = errors.New("transport: reply exceeds maximum frame size")
	ErrClosed        = errors.New("transport: link closed")
)

const (
	DefaultBaudRate    = 2400
	DefaultReadTimeout = 2 * time.Second
	DefaultDialTimeout = 5 * time.Second

	// MaxFrameSize bounds a reply: header, a 999 byte body and the trailer.
	MaxFrameSize = 5 + protocol.MaxLength
)

// Transport performs one request/reply exchange at a time.
type Transport interface {
	Exchange(ctx context.Context, frame []byte) ([]byte, error)
	Close() error
}

// deadline returns the earlier of the context deadline and now+timeout.
func deadline(ctx context.Context, timeout time.Duration) time.Time {
	until := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(until) {
		return d
	}
	return until
}

// readFrame reads from r until the terminator. Checksum bytes are escaped
// away from CR, so the first CR always ends the frame. expired is consulted
// whenever a read returns no data, which is how serial read timeouts surface.
func readFrame(r io.Reader, expired func() error) ([]byte, error) {
	buf := make([]byte, 0, 128)
	chunk := make([]byte, 128)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			if i := bytes.IndexByte(buf, protocol.Terminator); i >= 0 {
				return buf[:i+1], nil
			}
			if len(buf) > MaxFrameSize {
				return nil, ErrFrameTooLarge
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		if err := expired(); err != nil {
			return nil, err
		}
	}
}
