package inverter

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/TheFuji/mpp-solar-v0.9.01/internal/parser"
	"github.com/TheFuji/mpp-solar-v0.9.01/internal/simulator"
	"github.com/TheFuji/mpp-solar-v0.9.01/internal/transport"
	"github.com/TheFuji/mpp-solar-v0.9.01/pkg/protocol"
)

type fakeTransport struct {
	reply []byte
	err   error
	sent  [][]byte
}

func (f *fakeTransport) Exchange(_ context.Context, frame []byte) ([]byte, error) {
	f.sent = append(f.sent, frame)
	return f.reply, f.err
}

func (f *fakeTransport) Close() error { return nil }

// startSimulator serves a simulated inverter and returns a facade wired to
// it over TCP.
func startSimulator(t *testing.T, opts ...Option) (*Protocol, *simulator.Device) {
	t.Helper()
	reg := protocol.MustPI18()
	log, _ := test.NewNullLogger()
	dev := simulator.NewDevice(reg, log)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go dev.Serve(ctx, ln)
	t.Cleanup(cancel)

	tr, err := transport.DialTCP(ctx, transport.TCPConfig{Address: ln.Addr().String(), ReadTimeout: 2 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	p := New(reg, tr, opts...)
	t.Cleanup(func() { p.Close() })
	return p, dev
}

func TestQueryGeneralStatus(t *testing.T) {
	p, _ := startSimulator(t, WithVerify(true))

	reading, err := p.Query(context.Background(), "GS", "")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(reading.Entries) != 28 {
		t.Fatalf("got %d entries", len(reading.Entries))
	}
	if e := reading.Entries[0]; e.Label != "Grid voltage" || e.Value.Float != 223.2 {
		t.Fatalf("first entry = %+v", e)
	}
	if e := reading.Entries[27]; e.Label != "Local parallel ID" || e.Value.Int != 0 {
		t.Fatalf("last entry = %+v", e)
	}
}

func TestRun(t *testing.T) {
	p, _ := startSimulator(t)

	tests := []struct {
		input string
		check func(t *testing.T, r *protocol.Reading)
	}{
		{"POP1", func(t *testing.T, r *protocol.Reading) {
			if r.Ack != protocol.AckOK {
				t.Fatalf("POP1 = %+v", r)
			}
		}},
		{"EY2018", func(t *testing.T, r *protocol.Reading) {
			if r.Entries[0].Value.Int != 4567 || r.Entries[0].Unit != "Wh" {
				t.Fatalf("EY2018 = %+v", r.Entries)
			}
		}},
		{"MOD", func(t *testing.T, r *protocol.Reading) {
			if r.Entries[0].Value.Text != "Hybrid mode(Line mode, Grid mode)" {
				t.Fatalf("MOD = %+v", r.Entries)
			}
		}},
		{"PI", func(t *testing.T, r *protocol.Reading) {
			if r.Entries[0].Value.Text != "18" {
				t.Fatalf("PI = %+v", r.Entries)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			reading, err := p.Run(context.Background(), tt.input)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			tt.check(t, reading)
		})
	}

	for _, input := range []string{"POP7", "POP2", "GSX", "PEZ"} {
		_, err := p.Run(context.Background(), input)
		if !errors.Is(err, protocol.ErrValidation) || protocol.ErrorKind(err) != "validation" {
			t.Fatalf("%s err = %v (kind %s), want validation", input, err, protocol.ErrorKind(err))
		}
	}
	if _, err := p.Run(context.Background(), "HELLO"); !errors.Is(err, protocol.ErrUnknownCommand) {
		t.Fatalf("HELLO err = %v, want ErrUnknownCommand", err)
	}
}

func TestQueryValidationStopsBeforeTransport(t *testing.T) {
	ft := &fakeTransport{}
	p := New(protocol.MustPI18(), ft)

	if _, err := p.Query(context.Background(), "POP", "2"); !errors.Is(err, protocol.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	if _, err := p.Query(context.Background(), "NOPE", ""); !errors.Is(err, protocol.ErrUnknownCommand) {
		t.Fatalf("err = %v, want ErrUnknownCommand", err)
	}
	if len(ft.sent) != 0 {
		t.Fatalf("%d frames reached the transport", len(ft.sent))
	}
}

func TestQueryVerify(t *testing.T) {
	corrupt := []byte("^D00505\xd9\x9e\r")

	ft := &fakeTransport{reply: corrupt}
	if _, err := New(protocol.MustPI18(), ft, WithVerify(true)).Query(context.Background(), "MOD", ""); !errors.Is(err, protocol.ErrChecksum) {
		t.Fatalf("verify on: err = %v, want ErrChecksum", err)
	}

	reading, err := New(protocol.MustPI18(), ft).Query(context.Background(), "MOD", "")
	if err != nil {
		t.Fatalf("verify off: %v", err)
	}
	if reading.Entries[0].Value.Int != 5 {
		t.Fatalf("MOD = %+v", reading.Entries[0])
	}
}

func TestQueryTransportError(t *testing.T) {
	ft := &fakeTransport{err: transport.ErrTimeout}
	_, err := New(protocol.MustPI18(), ft).Query(context.Background(), "GS", "")
	if !errors.Is(err, transport.ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if !strings.Contains(err.Error(), "query GS") {
		t.Fatalf("err lacks context: %v", err)
	}
}

func TestQueryNakReply(t *testing.T) {
	p, dev := startSimulator(t)
	dev.SetReply("GS", protocol.NakFrame)

	reading, err := p.Query(context.Background(), "GS", "")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if reading.Ack != protocol.AckFailed || len(reading.Entries) != 0 {
		t.Fatalf("reading = %+v", reading)
	}
}

func TestQueryBadEnumFromDevice(t *testing.T) {
	p, dev := startSimulator(t, WithVerify(true))
	raw, _ := parser.BuildResponse("6")
	dev.SetReply("MOD", raw)

	_, err := p.Query(context.Background(), "MOD", "")
	var fe *protocol.FieldError
	if !errors.As(err, &fe) || !errors.Is(err, protocol.ErrOutOfRangeEnum) {
		t.Fatalf("err = %v", err)
	}
	if fe.Label != "Working mode" {
		t.Fatalf("field error = %+v", fe)
	}
}

func TestAccessors(t *testing.T) {
	p := New(protocol.MustPI18(), &fakeTransport{})

	if p.DefaultCommand() != "PI" {
		t.Fatalf("DefaultCommand = %q", p.DefaultCommand())
	}
	status := p.StatusCommands()
	want := []string{"PIRI", "MOD", "GS", "ET", "DI", "FLAG"}
	if strings.Join(status, ",") != strings.Join(want, ",") {
		t.Fatalf("StatusCommands = %v", status)
	}
	status[0] = "changed"
	if p.StatusCommands()[0] != "PIRI" {
		t.Fatal("StatusCommands exposes internal slice")
	}
	if got := strings.Join(p.SettingsCommands(), ","); got != "PI,MCHGCR,MUCHGCR" {
		t.Fatalf("SettingsCommands = %v", got)
	}
}

func TestLogging(t *testing.T) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	raw, _ := parser.BuildResponse("03")
	p := New(protocol.MustPI18(), &fakeTransport{reply: raw}, WithLogger(log))
	if _, err := p.Query(context.Background(), "MOD", ""); err != nil {
		t.Fatal(err)
	}

	entries := hook.AllEntries()
	if len(entries) != 2 {
		t.Fatalf("got %d log entries", len(entries))
	}
	if entries[0].Data["command"] != "MOD" || !strings.HasPrefix(entries[0].Message, "sending") {
		t.Fatalf("first entry = %+v", entries[0])
	}
}
