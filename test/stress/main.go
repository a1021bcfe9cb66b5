package main

import (
	"context"
	"flag"
	"math/rand/v2"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/TheFuji/mpp-solar-v0.9.01/internal/inverter"
	"github.com/TheFuji/mpp-solar-v0.9.01/internal/monitor"
	"github.com/TheFuji/mpp-solar-v0.9.01/internal/transport"
	"github.com/TheFuji/mpp-solar-v0.9.01/pkg/protocol"
)

type Stats struct {
	Queries       atomic.Int64
	Failed        atomic.Int64
	Naks          atomic.Int64
	ConnectFailed atomic.Int64
	Active        atomic.Int64
}

// Client is one link to the gateway issuing queries back to back.
type Client struct {
	ID       int
	Addr     string
	Commands []string
	Interval time.Duration
	Timeout  time.Duration
	Stats    *Stats
	Monitor  *monitor.Monitor
	Log      *logrus.Logger
}

func (c *Client) Run(ctx context.Context, wg *sync.WaitGroup, reg *protocol.Registry) {
	defer wg.Done()

	t, err := transport.DialTCP(ctx, transport.TCPConfig{Address: c.Addr, ReadTimeout: c.Timeout})
	if err != nil {
		c.Log.Errorf("client %d connect: %v", c.ID, err)
		c.Stats.ConnectFailed.Add(1)
		return
	}
	p := inverter.New(reg, c.Monitor.WrapTransport(t), inverter.WithVerify(true))
	defer p.Close()

	c.Stats.Active.Add(1)
	defer c.Stats.Active.Add(-1)

	for ctx.Err() == nil {
		input := c.Commands[rand.IntN(len(c.Commands))]
		start := time.Now()
		reading, err := p.Run(ctx, input)
		c.Monitor.ObserveQuery(monitor.CommandLabel(reg, input), reading, err, time.Since(start))

		switch {
		case ctx.Err() != nil:
			return
		case err != nil:
			c.Stats.Failed.Add(1)
			c.Log.Debugf("client %d %s: %v", c.ID, input, err)
		case reading.Ack == protocol.AckFailed:
			c.Stats.Naks.Add(1)
		}
		c.Stats.Queries.Add(1)

		if c.Interval > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.Interval):
			}
		}
	}
}

type StressTest struct {
	Addr        string
	NumClients  int
	Commands    []string
	Interval    time.Duration
	Duration    time.Duration
	Timeout     time.Duration
	MetricsPort int
	Stats       *Stats
	Monitor     *monitor.Monitor
	Log         *logrus.Logger
}

func (st *StressTest) Run(ctx context.Context) {
	st.Log.Infof("========================================")
	st.Log.Infof("gateway:   %s", st.Addr)
	st.Log.Infof("clients:   %d", st.NumClients)
	st.Log.Infof("commands:  %s", strings.Join(st.Commands, ","))
	st.Log.Infof("interval:  %v", st.Interval)
	st.Log.Infof("duration:  %v", st.Duration)
	st.Log.Infof("========================================")

	if st.MetricsPort > 0 {
		st.Monitor.StartMetricsServer(st.MetricsPort)
		defer st.Monitor.Shutdown(context.Background())
	}

	if st.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, st.Duration)
		defer cancel()
	}

	go st.monitorStats(ctx)

	reg := protocol.MustPI18()
	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < st.NumClients; i++ {
		c := &Client{
			ID:       i + 1,
			Addr:     st.Addr,
			Commands: st.Commands,
			Interval: st.Interval,
			Timeout:  st.Timeout,
			Stats:    st.Stats,
			Monitor:  st.Monitor,
			Log:      st.Log,
		}
		wg.Add(1)
		go c.Run(ctx, &wg, reg)
	}
	wg.Wait()

	st.printFinalStats(time.Since(start))
}

func (st *StressTest) monitorStats(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	last := int64(0)
	lastTime := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			current := st.Stats.Queries.Load()
			qps := float64(current-last) / now.Sub(lastTime).Seconds()
			st.Log.Infof("active: %d | queries: %d | failed: %d | nak: %d | QPS: %.0f",
				st.Stats.Active.Load(), current, st.Stats.Failed.Load(), st.Stats.Naks.Load(), qps)
			last, lastTime = current, now
		}
	}
}

func (st *StressTest) printFinalStats(elapsed time.Duration) {
	queries := st.Stats.Queries.Load()
	failed := st.Stats.Failed.Load()

	st.Log.Infof("========================================")
	st.Log.Infof("queries:        %d", queries)
	st.Log.Infof("failed:         %d", failed)
	st.Log.Infof("nak:            %d", st.Stats.Naks.Load())
	st.Log.Infof("connect failed: %d", st.Stats.ConnectFailed.Load())
	if queries > 0 {
		st.Log.Infof("success rate:   %.2f%%", float64(queries-failed)/float64(queries)*100)
		st.Log.Infof("avg QPS:        %.1f", float64(queries)/elapsed.Seconds())
	}
	st.Log.Infof("========================================")
}

func main() {
	addr := flag.String("server", "localhost:8899", "gateway or simulator address")
	clients := flag.Int("clients", 8, "concurrent connections")
	cmds := flag.String("cmd", "", "comma separated commands (default: status commands)")
	interval := flag.Duration("interval", 0, "pause between queries per client")
	duration := flag.Duration("duration", 30*time.Second, "test length (0 runs until interrupted)")
	timeout := flag.Duration("timeout", 2*time.Second, "read timeout per query")
	metricsPort := flag.Int("metrics-port", 0, "serve Prometheus metrics on this port")
	debug := flag.Bool("debug", false, "debug logging")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *debug {
		log.SetLevel(logrus.DebugLevel)
	}

	commands := protocol.MustPI18().StatusCommands()
	if *cmds != "" {
		commands = strings.Split(*cmds, ",")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := &StressTest{
		Addr:        *addr,
		NumClients:  *clients,
		Commands:    commands,
		Interval:    *interval,
		Duration:    *duration,
		Timeout:     *timeout,
		MetricsPort: *metricsPort,
		Stats:       &Stats{},
		Monitor:     monitor.NewMonitor(log),
		Log:         log,
	}
	st.Run(ctx)
}
