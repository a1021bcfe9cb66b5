package protocol

import "github.com/sigurn/crc16"

// CRC-16/XMODEM parameters used by PI18 devices.
const (
	crcPolynomial = 0x1021
	crcInitial    = 0x0000
)

var crcTable = crc16.MakeTable(crc16.Params{
	Poly:   crcPolynomial,
	Init:   crcInitial,
	RefIn:  false,
	RefOut: false,
	XorOut: 0,
})

// CRC returns the raw CRC-16/XMODEM of data, before escaping.
func CRC(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}

// Checksum returns the two checksum bytes placed in a frame.
// Bytes that collide with '(', CR or LF are bumped by one so the
// terminator never appears inside the checksum.
func Checksum(data []byte) (high, low byte) {
	sum := CRC(data)
	return escape(byte(sum >> 8)), escape(byte(sum))
}

func escape(b byte) byte {
	switch b {
	case LegacyStart, Terminator, '\n':
		return b + 1
	default:
		return b
	}
}
