package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/TheFuji/mpp-solar-v0.9.01/internal/inverter"
	"github.com/TheFuji/mpp-solar-v0.9.01/internal/transport"
	"github.com/TheFuji/mpp-solar-v0.9.01/pkg/protocol"
)

func main() {
	addr := flag.String("addr", "localhost:8899", "serial gateway or simulator address")
	cmds := flag.String("cmd", "", "comma separated commands (default: the protocol default command)")
	count := flag.Int("count", 1, "times to send each command")
	timeout := flag.Duration("timeout", 3*time.Second, "read timeout per command")
	noVerify := flag.Bool("no-verify", false, "skip reply checksum verification")
	debug := flag.Bool("debug", false, "log frames")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *debug {
		log.SetLevel(logrus.DebugLevel)
	}

	ctx := context.Background()
	t, err := transport.DialTCP(ctx, transport.TCPConfig{Address: *addr, ReadTimeout: *timeout})
	if err != nil {
		log.Fatalf("connect: %v", err)
	}

	p := inverter.New(protocol.MustPI18(), t, inverter.WithVerify(!*noVerify), inverter.WithLogger(log))
	defer p.Close()

	inputs := []string{p.DefaultCommand()}
	if *cmds != "" {
		inputs = strings.Split(*cmds, ",")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	failed := 0
	for i := 0; i < *count; i++ {
		for _, input := range inputs {
			reading, err := p.Run(ctx, strings.TrimSpace(input))
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", input, err)
				failed++
				continue
			}
			enc.Encode(reading)
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}
