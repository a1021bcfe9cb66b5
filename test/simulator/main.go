package main

import (
	"context"
	"encoding/hex"
	"flag"
	"net"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/TheFuji/mpp-solar-v0.9.01/internal/simulator"
	"github.com/TheFuji/mpp-solar-v0.9.01/pkg/protocol"
)

func main() {
	listen := flag.String("listen", ":8899", "listen address")
	delay := flag.Duration("delay", 0, "delay before each reply")
	reply := flag.String("reply", "", "override, as COMMAND=hexframe[,COMMAND=hexframe]")
	debug := flag.Bool("debug", false, "log every request")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *debug {
		log.SetLevel(logrus.DebugLevel)
	}

	dev := simulator.NewDevice(protocol.MustPI18(), log)
	dev.SetDelay(*delay)

	if *reply != "" {
		for _, kv := range strings.Split(*reply, ",") {
			cmd, h, ok := strings.Cut(kv, "=")
			if !ok {
				log.Fatalf("bad -reply entry %q", kv)
			}
			raw, err := hex.DecodeString(h)
			if err != nil {
				log.Fatalf("bad -reply frame for %s: %v", cmd, err)
			}
			dev.SetReply(cmd, raw)
		}
	}

	ln, err := net.Listen("tcp", *listen)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Infof("simulated PI18 inverter on %s", ln.Addr())
	start := time.Now()
	if err := dev.Serve(ctx, ln); err != nil {
		log.Errorf("serve: %v", err)
	}

	s := dev.Stats()
	log.Infof("served %d requests (%d rejected) in %s", s.Requests, s.Rejected, time.Since(start).Round(time.Second))
}
