package parser

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/TheFuji/mpp-solar-v0.9.01/pkg/protocol"
)

// Parser encodes command frames and decodes replies against a registry.
// It keeps no state besides the registry and is safe for concurrent use.
type Parser struct {
	registry *protocol.Registry
}

func NewParser(registry *protocol.Registry) *Parser {
	return &Parser{registry: registry}
}

func (p *Parser) Registry() *protocol.Registry {
	return p.registry
}

// Decode maps a raw reply onto the response schema of command.
func (p *Parser) Decode(command string, raw []byte) (*protocol.Reading, error) {
	switch {
	case bytes.Equal(raw, protocol.AckFrame):
		return &protocol.Reading{Command: command, Ack: protocol.AckOK}, nil
	case bytes.Equal(raw, protocol.NakFrame):
		return &protocol.Reading{Command: command, Ack: protocol.AckFailed}, nil
	}

	spec, ok := p.registry.Command(command)
	if !ok {
		return nil, fmt.Errorf("%w: %q", protocol.ErrUnknownCommand, command)
	}

	body, err := payload(raw)
	if err != nil {
		return nil, err
	}

	tokens := strings.Split(string(body), string(protocol.Delimiter))
	if len(tokens) != len(spec.Response) {
		return nil, fmt.Errorf("%w: %s expects %d fields, got %d",
			protocol.ErrSchemaMismatch, command, len(spec.Response), len(tokens))
	}

	entries := make([]protocol.Entry, len(tokens))
	for i, token := range tokens {
		field := spec.Response[i]
		value, err := coerce(field, token)
		if err != nil {
			return nil, &protocol.FieldError{
				Command: command,
				Index:   i,
				Label:   field.Label,
				Token:   token,
				Err:     err,
			}
		}
		entries[i] = protocol.Entry{Label: field.Label, Unit: field.Unit, Value: value}
	}

	return &protocol.Reading{Command: command, Entries: entries}, nil
}

// payload strips the frame-type header and the checksum/terminator trailer.
func payload(raw []byte) ([]byte, error) {
	width := headerWidth(raw)
	if width == 0 {
		return nil, fmt.Errorf("%w: unrecognised header % x", protocol.ErrMalformedFrame, head(raw))
	}
	if len(raw) < width+protocol.TrailerSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than header and trailer", protocol.ErrMalformedFrame, len(raw))
	}
	return raw[width : len(raw)-protocol.TrailerSize], nil
}

// headerWidth returns the number of leading bytes identifying the frame
// type: "^Dnnn", "Dnnn" (captures without the caret) or the legacy "(".
func headerWidth(raw []byte) int {
	switch {
	case len(raw) >= 5 && raw[0] == protocol.FrameStart && raw[1] == protocol.MarkerData && digits(raw[2:5]):
		return 5
	case len(raw) >= 4 && raw[0] == protocol.MarkerData && digits(raw[1:4]):
		return 4
	case len(raw) >= 1 && raw[0] == protocol.LegacyStart:
		return 1
	default:
		return 0
	}
}

func digits(b []byte) bool {
	for _, c := range b {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(b) > 0
}

func head(raw []byte) []byte {
	if len(raw) > 5 {
		return raw[:5]
	}
	return raw
}

func coerce(field protocol.FieldSpec, token string) (protocol.Value, error) {
	v := protocol.Value{Kind: field.Type}
	switch field.Type {
	case protocol.FieldInt:
		n, err := strconv.ParseInt(token, 10, 64)
		if err != nil {
			return v, protocol.ErrMalformedField
		}
		v.Int = n
	case protocol.FieldScaledInt:
		n, err := strconv.ParseInt(token, 10, 64)
		if err != nil {
			return v, protocol.ErrMalformedField
		}
		v.Float = float64(n) / 10
	case protocol.FieldEnum:
		n, err := strconv.ParseInt(token, 10, 64)
		if err != nil {
			return v, protocol.ErrMalformedField
		}
		if n < 0 || n >= int64(len(field.Options)) {
			return v, protocol.ErrOutOfRangeEnum
		}
		v.Int = n
		v.Text = field.Options[n]
	case protocol.FieldAck:
		switch token {
		case protocol.AckMarker:
			v.OK = true
			v.Text = field.Options[1]
		case protocol.NakMarker:
			v.Text = field.Options[0]
		default:
			return v, protocol.ErrMalformedField
		}
	case protocol.FieldString:
		v.Text = token
	default:
		return v, protocol.ErrMalformedField
	}
	return v, nil
}
