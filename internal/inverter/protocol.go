// Package inverter is the entry point for talking to a PI18 inverter: it
// validates and encodes a command, exchanges it over a transport and decodes
// the reply against the same command's schema.
package inverter

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/TheFuji/mpp-solar-v0.9.01/internal/parser"
	"github.com/TheFuji/mpp-solar-v0.9.01/internal/transport"
	"github.com/TheFuji/mpp-solar-v0.9.01/pkg/protocol"
)

type Option func(*Protocol)

// WithVerify checks the checksum and length of every reply before decoding.
func WithVerify(verify bool) Option {
	return func(p *Protocol) { p.verify = verify }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(p *Protocol) { p.log = log }
}

// Protocol holds only the shared registry and the transport; it is safe for
// concurrent use as long as the transport is.
type Protocol struct {
	registry  *protocol.Registry
	parser    *parser.Parser
	transport transport.Transport
	verify    bool
	log       logrus.FieldLogger
}

func New(registry *protocol.Registry, t transport.Transport, opts ...Option) *Protocol {
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)

	p := &Protocol{
		registry:  registry,
		parser:    parser.NewParser(registry),
		transport: t,
		log:       quiet,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Query sends command+params and returns the decoded reply.
func (p *Protocol) Query(ctx context.Context, command, params string) (*protocol.Reading, error) {
	frame, err := p.parser.Encode(command, params)
	if err != nil {
		return nil, err
	}

	log := p.log.WithField("command", command+params)
	log.Debugf("sending %q", frame)

	raw, err := p.transport.Exchange(ctx, frame)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", command, err)
	}
	log.Debugf("received %q", raw)

	if p.verify {
		if err := parser.VerifyFrame(raw); err != nil {
			return nil, fmt.Errorf("query %s: %w", command, err)
		}
	}
	return p.parser.Decode(command, raw)
}

// Run resolves a full command string such as "POP1" or "EY2018" and queries it.
func (p *Protocol) Run(ctx context.Context, input string) (*protocol.Reading, error) {
	name, params, err := p.registry.Resolve(input)
	if err != nil {
		return nil, err
	}
	return p.Query(ctx, name, params)
}

// Encode builds the request frame without sending it.
func (p *Protocol) Encode(command, params string) ([]byte, error) {
	return p.parser.Encode(command, params)
}

// Decode maps a captured reply onto command's schema.
func (p *Protocol) Decode(command string, raw []byte) (*protocol.Reading, error) {
	return p.parser.Decode(command, raw)
}

func (p *Protocol) Registry() *protocol.Registry { return p.registry }

func (p *Protocol) DefaultCommand() string { return p.registry.DefaultCommand() }

func (p *Protocol) StatusCommands() []string { return p.registry.StatusCommands() }

func (p *Protocol) SettingsCommands() []string { return p.registry.SettingsCommands() }

func (p *Protocol) Close() error {
	if p.transport == nil {
		return nil
	}
	return p.transport.Close()
}
