package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/TheFuji/mpp-solar-v0.9.01/internal/inverter"
	"github.com/TheFuji/mpp-solar-v0.9.01/internal/parser"
	"github.com/TheFuji/mpp-solar-v0.9.01/pkg/protocol"
)

func main() {
	cmd := flag.String("cmd", "", "full command, e.g. GS or EY2024 (default: the protocol default command)")
	decode := flag.String("decode", "", "hex encoded reply to decode against -cmd")
	reply := flag.String("reply", "", "payload to wrap as a ^D reply frame")
	list := flag.Bool("list", false, "list known commands")
	flag.Parse()

	reg := protocol.MustPI18()
	p := inverter.New(reg, nil)

	if *list {
		for _, name := range reg.Names() {
			spec, _ := reg.Command(name)
			fmt.Printf("%-8s %-6s %s%s\n", name, spec.Kind, spec.Description, spec.Help)
		}
		return
	}

	input := *cmd
	if input == "" {
		input = p.DefaultCommand()
	}
	name, params, err := reg.Resolve(input)
	if err != nil {
		fail(err)
	}

	switch {
	case *decode != "":
		raw, err := hex.DecodeString(strings.TrimPrefix(*decode, "0x"))
		if err != nil {
			fail(fmt.Errorf("bad hex: %w", err))
		}
		if err := parser.VerifyFrame(raw); err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}
		reading, err := p.Decode(name, raw)
		if err != nil {
			fail(err)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(reading)

	case *reply != "":
		frame, err := parser.BuildResponse(*reply)
		if err != nil {
			fail(err)
		}
		show(frame)

	default:
		frame, err := p.Encode(name, params)
		if err != nil {
			fail(err)
		}
		show(frame)
	}
}

func show(frame []byte) {
	fmt.Printf("  hex:    %s\n", hex.EncodeToString(frame))
	fmt.Printf("  bytes:  % x\n", frame)
	fmt.Printf("  quoted: %q\n", frame)
	fmt.Printf("  Go:     []byte(%q)\n", frame)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
