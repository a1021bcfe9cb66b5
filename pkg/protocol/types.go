package protocol

import (
	"encoding/json"
	"strconv"
)

// FieldType is the decoding rule of one positional response field.
type FieldType uint8

const (
	FieldInt       FieldType = iota + 1 // base-10 integer
	FieldScaledInt                      // base-10 integer carrying one implied decimal
	FieldEnum                           // index into FieldSpec.Options
	FieldAck                            // ACK / NAK marker
	FieldString                         // raw token
)

func (t FieldType) String() string {
	switch t {
	case FieldInt:
		return "int"
	case FieldScaledInt:
		return "scaled_int"
	case FieldEnum:
		return "enum"
	case FieldAck:
		return "ack"
	case FieldString:
		return "string"
	default:
		return "unknown(" + strconv.Itoa(int(t)) + ")"
	}
}

// Kind classifies a command as a read-only query or a setter.
type Kind uint8

const (
	Query Kind = iota + 1
	Setter
)

func (k Kind) String() string {
	switch k {
	case Query:
		return "QUERY"
	case Setter:
		return "SETTER"
	default:
		return "UNKNOWN"
	}
}

// Marker returns the frame-type byte placed after the leading caret.
func (k Kind) Marker() byte {
	if k == Setter {
		return MarkerSetter
	}
	return MarkerQuery
}

// Wire constants.
const (
	FrameStart    = '^'
	MarkerQuery   = 'P'
	MarkerSetter  = 'S'
	MarkerData    = 'D'
	LegacyStart   = '('
	Terminator    = '\r'
	Delimiter     = ','
	ChecksumSize  = 2
	TrailerSize   = ChecksumSize + 1 // checksum + terminator
	LengthDigits  = 3
	RequestHeader = 2 + LengthDigits // "^P" + length
	MaxLength     = 999

	AckMarker = "ACK"
	NakMarker = "NAK"
)

// Sentinel frames, recognised before any schema is consulted.
var (
	AckFrame = []byte("^1\x0b\xc2\r")
	NakFrame = []byte("^0\x1b\xe3\r")
)

// FieldSpec describes one positional slot in a response.
type FieldSpec struct {
	Type    FieldType
	Label   string
	Unit    string
	Options []string
}

// Int declares a plain integer field.
func Int(label, unit string) FieldSpec {
	return FieldSpec{Type: FieldInt, Label: label, Unit: unit}
}

// Scaled declares an integer field transmitted at one-tenth resolution.
func Scaled(label, unit string) FieldSpec {
	return FieldSpec{Type: FieldScaledInt, Label: label, Unit: unit}
}

// Enum declares an indexed field; options are ordered from index 0.
func Enum(label string, options ...string) FieldSpec {
	return FieldSpec{Type: FieldEnum, Label: label, Options: options}
}

// Ack declares a command-execution field with failure and success labels.
func Ack(label, failure, success string) FieldSpec {
	return FieldSpec{Type: FieldAck, Label: label, Options: []string{failure, success}}
}

// String declares a passthrough text field.
func String(label string) FieldSpec {
	return FieldSpec{Type: FieldString, Label: label}
}

func (f FieldSpec) clone() FieldSpec {
	if f.Options != nil {
		f.Options = append([]string(nil), f.Options...)
	}
	return f
}

// CommandSpec is one protocol command.
type CommandSpec struct {
	Name          string
	Description   string
	Help          string
	Kind          Kind
	Pattern       string
	Response      []FieldSpec
	TestResponses [][]byte
}

func (c CommandSpec) clone() CommandSpec {
	resp := make([]FieldSpec, len(c.Response))
	for i, f := range c.Response {
		resp[i] = f.clone()
	}
	c.Response = resp
	vectors := make([][]byte, len(c.TestResponses))
	for i, v := range c.TestResponses {
		vectors[i] = append([]byte(nil), v...)
	}
	c.TestResponses = vectors
	return c
}

// AckState is the symbolic outcome carried by sentinel replies.
type AckState uint8

const (
	AckNone AckState = iota
	AckOK
	AckFailed
)

func (a AckState) String() string {
	switch a {
	case AckOK:
		return AckMarker
	case AckFailed:
		return NakMarker
	default:
		return ""
	}
}

func (a AckState) MarshalJSON() ([]byte, error) {
	if a == AckNone {
		return []byte("null"), nil
	}
	return json.Marshal(a.String())
}

// Value is one coerced token.
type Value struct {
	Kind  FieldType
	Int   int64
	Float float64
	Text  string
	OK    bool
}

// Interface returns the natural Go value for the field type.
func (v Value) Interface() any {
	switch v.Kind {
	case FieldInt:
		return v.Int
	case FieldScaledInt:
		return v.Float
	case FieldAck:
		return v.OK
	default:
		return v.Text
	}
}

// Numeric reports the value as a float when the field type is numeric.
func (v Value) Numeric() (float64, bool) {
	switch v.Kind {
	case FieldInt:
		return float64(v.Int), true
	case FieldScaledInt:
		return v.Float, true
	case FieldEnum:
		return float64(v.Int), true
	default:
		return 0, false
	}
}

func (v Value) String() string {
	switch v.Kind {
	case FieldInt:
		return strconv.FormatInt(v.Int, 10)
	case FieldScaledInt:
		return strconv.FormatFloat(v.Float, 'f', 1, 64)
	default:
		return v.Text
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.Kind == FieldAck {
		return json.Marshal(v.Text)
	}
	return json.Marshal(v.Interface())
}

// Entry is one labelled value of a decoded reading.
type Entry struct {
	Label string `json:"label"`
	Unit  string `json:"unit,omitempty"`
	Value Value  `json:"value"`
}

// Reading is the decoded reply to one command.
type Reading struct {
	Command string   `json:"command"`
	Ack     AckState `json:"ack,omitempty"`
	Entries []Entry  `json:"entries,omitempty"`
}

// IsSentinel reports whether the reply was a bare ACK or NAK frame.
func (r *Reading) IsSentinel() bool {
	return r.Ack != AckNone
}

// Lookup returns the first entry with the given label.
func (r *Reading) Lookup(label string) (Entry, bool) {
	for _, e := range r.Entries {
		if e.Label == label {
			return e, true
		}
	}
	return Entry{}, false
}
