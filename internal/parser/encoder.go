package parser

import (
	"fmt"

	"github.com/TheFuji/mpp-solar-v0.9.01/pkg/protocol"
)

// Encode validates params against the command's pattern and builds the
// request frame:
//
//	^ MARKER LEN(3) COMMAND PARAMS CRC_H CRC_L CR
func (p *Parser) Encode(command, params string) ([]byte, error) {
	spec, err := p.registry.Validate(command, params)
	if err != nil {
		return nil, err
	}
	return BuildFrame(spec.Kind.Marker(), command+params)
}

// BuildFrame wraps payload with the caret, marker, length, checksum and
// terminator. The length counts the payload plus checksum and terminator.
func BuildFrame(marker byte, payload string) ([]byte, error) {
	length := len(payload) + protocol.TrailerSize
	if length > protocol.MaxLength {
		return nil, fmt.Errorf("%w: payload of %d bytes does not fit the length field", protocol.ErrValidation, len(payload))
	}

	frame := make([]byte, 0, protocol.RequestHeader+length)
	frame = append(frame, protocol.FrameStart, marker)
	frame = fmt.Appendf(frame, "%03d", length)
	frame = append(frame, payload...)

	high, low := protocol.Checksum(frame)
	frame = append(frame, high, low, protocol.Terminator)
	return frame, nil
}

// BuildResponse builds a data reply frame ("^D...") carrying payload.
func BuildResponse(payload string) ([]byte, error) {
	return BuildFrame(protocol.MarkerData, payload)
}
