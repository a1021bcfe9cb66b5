package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	serial "go.bug.st/serial"
)

// pollInterval is how long a single serial read blocks before the
// context and the overall deadline are checked again.
const pollInterval = 100 * time.Millisecond

type SerialConfig struct {
	Port        string
	BaudRate    int
	ReadTimeout time.Duration
}

// SerialTransport talks to an inverter over a local serial port (8N1).
type SerialTransport struct {
	mu   sync.Mutex
	port serial.Port
	cfg  SerialConfig
}

// OpenSerial opens the configured port.
func OpenSerial(cfg SerialConfig) (*SerialTransport, error) {
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}

	p, err := serial.Open(cfg.Port, &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", cfg.Port, err)
	}
	return newSerialTransport(p, cfg)
}

func newSerialTransport(p serial.Port, cfg SerialConfig) (*SerialTransport, error) {
	if err := p.SetReadTimeout(pollInterval); err != nil {
		p.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", cfg.Port, err)
	}
	return &SerialTransport{port: p, cfg: cfg}, nil
}

func (s *SerialTransport) Exchange(ctx context.Context, frame []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// stale bytes from an earlier timed-out exchange would be read as this reply
	if err := s.port.ResetInputBuffer(); err != nil {
		return nil, fmt.Errorf("reset input buffer on %s: %w", s.cfg.Port, err)
	}
	if _, err := s.port.Write(frame); err != nil {
		return nil, fmt.Errorf("write to %s: %w", s.cfg.Port, err)
	}

	until := deadline(ctx, s.cfg.ReadTimeout)
	reply, err := readFrame(s.port, func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if time.Now().After(until) {
			return ErrTimeout
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read from %s: %w", s.cfg.Port, err)
	}
	return reply, nil
}

func (s *SerialTransport) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}

func (s *SerialTransport) String() string {
	return fmt.Sprintf("serial://%s@%d", s.cfg.Port, s.cfg.BaudRate)
}
