// Package simulator emulates a PI18 inverter so the poller and the tools can
// be exercised without hardware.
package simulator

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/TheFuji/mpp-solar-v0.9.01/internal/parser"
	"github.com/TheFuji/mpp-solar-v0.9.01/pkg/protocol"
)

// Device answers request frames from the registry's test vectors. Queries
// get the first data reply listed for the command, setters get ACK and
// anything that does not parse gets NAK.
type Device struct {
	parser *parser.Parser
	log    logrus.FieldLogger

	mu      sync.RWMutex
	replies map[string][]byte
	delay   time.Duration

	requests atomic.Int64
	rejected atomic.Int64
}

func NewDevice(registry *protocol.Registry, log logrus.FieldLogger) *Device {
	return &Device{
		parser:  parser.NewParser(registry),
		log:     log,
		replies: make(map[string][]byte),
	}
}

// SetReply overrides the reply for a registered command name.
func (d *Device) SetReply(command string, raw []byte) {
	d.mu.Lock()
	d.replies[command] = append([]byte(nil), raw...)
	d.mu.Unlock()
}

// SetDelay makes every reply wait before it is written.
func (d *Device) SetDelay(delay time.Duration) {
	d.mu.Lock()
	d.delay = delay
	d.mu.Unlock()
}

// Handle returns the reply for one request frame.
func (d *Device) Handle(frame []byte) []byte {
	d.requests.Add(1)

	kind, name, params, err := d.parser.ParseRequest(frame)
	if err != nil {
		d.rejected.Add(1)
		d.log.Debugf("rejecting request %q: %v", frame, err)
		return protocol.NakFrame
	}
	d.log.Debugf("request %s%s (%s)", name, params, kind)

	d.mu.RLock()
	reply, ok := d.replies[name]
	d.mu.RUnlock()
	if ok {
		return reply
	}

	if kind == protocol.Setter {
		return protocol.AckFrame
	}
	spec, _ := d.parser.Registry().Command(name)
	for _, v := range spec.TestResponses {
		if !bytes.Equal(v, protocol.AckFrame) && !bytes.Equal(v, protocol.NakFrame) {
			return v
		}
	}
	return protocol.NakFrame
}

// Serve accepts connections on ln until ctx is cancelled.
func (d *Device) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			d.serveConn(ctx, conn)
		}()
	}
}

func (d *Device) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	remote := conn.RemoteAddr().String()
	d.log.Debugf("client connected: %s", remote)
	r := bufio.NewReader(conn)
	for {
		frame, err := r.ReadBytes(protocol.Terminator)
		if err != nil {
			d.log.Debugf("client disconnected: %s: %v", remote, err)
			return
		}

		reply := d.Handle(frame)
		d.mu.RLock()
		delay := d.delay
		d.mu.RUnlock()
		if delay > 0 {
			time.Sleep(delay)
		}
		if _, err := conn.Write(reply); err != nil {
			d.log.Warnf("write to %s failed: %v", remote, err)
			return
		}
	}
}

type Stats struct {
	Requests int64 `json:"requests"`
	Rejected int64 `json:"rejected"`
}

func (d *Device) Stats() Stats {
	return Stats{Requests: d.requests.Load(), Rejected: d.rejected.Load()}
}
