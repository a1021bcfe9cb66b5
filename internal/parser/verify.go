package parser

import (
	"fmt"
	"strconv"

	"github.com/TheFuji/mpp-solar-v0.9.01/pkg/protocol"
)

// VerifyFrame checks the terminator, checksum and, for data replies, the
// declared length of a raw frame. The checksum covers every byte before it.
func VerifyFrame(raw []byte) error {
	if len(raw) < 1+protocol.TrailerSize {
		return fmt.Errorf("%w: %d bytes is too short", protocol.ErrMalformedFrame, len(raw))
	}
	if raw[len(raw)-1] != protocol.Terminator {
		return fmt.Errorf("%w: missing terminator", protocol.ErrMalformedFrame)
	}

	end := len(raw) - protocol.TrailerSize
	high, low := protocol.Checksum(raw[:end])
	if raw[end] != high || raw[end+1] != low {
		return fmt.Errorf("%w: got %02x%02x, want %02x%02x", protocol.ErrChecksum, raw[end], raw[end+1], high, low)
	}

	if width := headerWidth(raw); width >= 4 {
		declared, _ := strconv.Atoi(string(raw[width-protocol.LengthDigits : width]))
		if declared != len(raw)-width {
			return fmt.Errorf("%w: length field %d, frame carries %d", protocol.ErrMalformedFrame, declared, len(raw)-width)
		}
	}
	return nil
}

// ParseRequest is the inverse of Encode. It checks the framing of a request
// and returns the command kind, registered name and parameter suffix.
func (p *Parser) ParseRequest(frame []byte) (protocol.Kind, string, string, error) {
	if len(frame) < protocol.RequestHeader+1+protocol.TrailerSize {
		return 0, "", "", fmt.Errorf("%w: request of %d bytes is too short", protocol.ErrMalformedFrame, len(frame))
	}
	if frame[0] != protocol.FrameStart {
		return 0, "", "", fmt.Errorf("%w: request must start with ^", protocol.ErrMalformedFrame)
	}

	var kind protocol.Kind
	switch frame[1] {
	case protocol.MarkerQuery:
		kind = protocol.Query
	case protocol.MarkerSetter:
		kind = protocol.Setter
	default:
		return 0, "", "", fmt.Errorf("%w: unknown marker %q", protocol.ErrMalformedFrame, frame[1])
	}

	lengthField := frame[2:protocol.RequestHeader]
	if !digits(lengthField) {
		return 0, "", "", fmt.Errorf("%w: length field %q", protocol.ErrMalformedFrame, lengthField)
	}
	declared, _ := strconv.Atoi(string(lengthField))
	if declared != len(frame)-protocol.RequestHeader {
		return 0, "", "", fmt.Errorf("%w: length field %d, frame carries %d", protocol.ErrMalformedFrame, declared, len(frame)-protocol.RequestHeader)
	}
	if err := VerifyFrame(frame); err != nil {
		return 0, "", "", err
	}

	body := string(frame[protocol.RequestHeader : len(frame)-protocol.TrailerSize])
	name, params, err := p.registry.Resolve(body)
	if err != nil {
		return 0, "", "", err
	}
	spec, err := p.registry.Validate(name, params)
	if err != nil {
		return 0, "", "", err
	}
	if spec.Kind != kind {
		return 0, "", "", fmt.Errorf("%w: %s is a %s sent as %s", protocol.ErrMalformedFrame, name, spec.Kind, kind)
	}
	return kind, name, params, nil
}
