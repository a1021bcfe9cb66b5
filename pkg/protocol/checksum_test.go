package protocol

import "testing"

func TestChecksum(t *testing.T) {
	tests := []struct {
		name string
		data string
		high byte
		low  byte
	}{
		{"ack sentinel", "^1", 0x0b, 0xc2},
		{"nak sentinel", "^0", 0x1b, 0xe3},
		{"legacy ack", "(ACK", 0x39, 0x20},
		{"legacy nak", "(NAK", 0x73, 0x73},
		{"general status query", "^P005GS", 0x58, 0x14},
		{"rated information query", "^P007PIRI", 0xee, 0x38},
		{"charge voltage setter", "^S015MCHGV552,540", 0x88, 0xe8},
		{"escaped carriage return", "^S007POP1", 0x0e, 0x10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			high, low := Checksum([]byte(tt.data))
			if high != tt.high || low != tt.low {
				t.Fatalf("Checksum(%q) = %02x %02x, want %02x %02x", tt.data, high, low, tt.high, tt.low)
			}
		})
	}
}

func TestCRCRaw(t *testing.T) {
	if got := CRC([]byte("^S007POP1")); got != 0x0d10 {
		t.Fatalf("CRC = %04x, want 0d10", got)
	}
	if got := CRC(nil); got != 0 {
		t.Fatalf("CRC(nil) = %04x, want 0", got)
	}
}

func TestChecksumNeverEmitsReservedBytes(t *testing.T) {
	reserved := map[byte]bool{'(': true, '\r': true, '\n': true}
	buf := make([]byte, 2)
	for i := 0; i < 1<<16; i++ {
		buf[0], buf[1] = byte(i>>8), byte(i)
		high, low := Checksum(buf)
		if reserved[high] || reserved[low] {
			t.Fatalf("Checksum(% x) = %02x %02x contains a reserved byte", buf, high, low)
		}
	}
}

func TestChecksumDeterministic(t *testing.T) {
	data := []byte("^P007FLAG")
	h1, l1 := Checksum(data)
	h2, l2 := Checksum(data)
	if h1 != h2 || l1 != l2 {
		t.Fatal("checksum differs between calls")
	}
}
