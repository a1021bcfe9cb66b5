package server

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/TheFuji/mpp-solar-v0.9.01/internal/config"
	"github.com/TheFuji/mpp-solar-v0.9.01/internal/handler"
	"github.com/TheFuji/mpp-solar-v0.9.01/internal/inverter"
	"github.com/TheFuji/mpp-solar-v0.9.01/internal/monitor"
	"github.com/TheFuji/mpp-solar-v0.9.01/internal/storage"
	"github.com/TheFuji/mpp-solar-v0.9.01/internal/stream"
	"github.com/TheFuji/mpp-solar-v0.9.01/internal/transport"
	"github.com/TheFuji/mpp-solar-v0.9.01/pkg/protocol"
)

const defaultShutdownTimeout = 30 * time.Second

// Poller queries the settings commands once and the status commands on
// every tick, fanning readings out through a QueryHandler.
type Poller struct {
	config   *config.Config
	inverter *inverter.Protocol
	handler  *handler.QueryHandler
	storage  *storage.MessageQueue
	monitor  *monitor.Monitor
	hub      *stream.Hub
	log      *logrus.Logger

	status   []string
	settings []string

	wg              sync.WaitGroup
	busy            atomic.Bool
	shutdownTimeout time.Duration
}

// NewPoller opens the configured link and wires every component.
func NewPoller(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*Poller, error) {
	reg, err := protocol.PI18()
	if err != nil {
		return nil, err
	}
	t, err := OpenTransport(ctx, cfg.Device)
	if err != nil {
		return nil, err
	}
	p, err := newPoller(ctx, cfg, reg, t, log)
	if err != nil {
		t.Close()
		return nil, err
	}
	return p, nil
}

// OpenTransport opens a serial port or dials a gateway per cfg.Transport.
func OpenTransport(ctx context.Context, cfg config.DeviceConfig) (transport.Transport, error) {
	switch cfg.Transport {
	case config.TransportSerial:
		return transport.OpenSerial(transport.SerialConfig{
			Port:        cfg.Port,
			BaudRate:    cfg.BaudRate,
			ReadTimeout: cfg.ReadTimeout,
		})
	case config.TransportTCP:
		return transport.DialTCP(ctx, transport.TCPConfig{
			Address:     cfg.Address,
			ReadTimeout: cfg.ReadTimeout,
		})
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

func newPoller(ctx context.Context, cfg *config.Config, reg *protocol.Registry, t transport.Transport, log *logrus.Logger) (*Poller, error) {
	mon := monitor.NewMonitor(log)
	p := &Poller{
		config:          cfg,
		monitor:         mon,
		log:             log,
		shutdownTimeout: defaultShutdownTimeout,
	}
	p.inverter = inverter.New(reg, mon.WrapTransport(t),
		inverter.WithVerify(cfg.Device.VerifyChecksum),
		inverter.WithLogger(log),
	)

	var err error
	if p.status, err = commandList(reg, cfg.Poller.StatusCommands, reg.StatusCommands()); err != nil {
		return nil, fmt.Errorf("poller.status_commands: %w", err)
	}
	if p.settings, err = commandList(reg, cfg.Poller.SettingsCommands, reg.SettingsCommands()); err != nil {
		return nil, fmt.Errorf("poller.settings_commands: %w", err)
	}

	var publisher handler.Publisher
	if cfg.Redis.Enabled {
		mq, err := storage.NewMessageQueue(ctx, storage.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
			Channel:  cfg.Redis.Channel,
			History:  cfg.Redis.History,
		}, log)
		if err != nil {
			return nil, err
		}
		p.storage = mq
		publisher = mq
		mon.Handle("GET /readings/{command}", p.readingsHandler())
	}

	var broadcaster handler.Broadcaster
	if cfg.Monitor.Stream {
		p.hub = stream.NewHub(log)
		broadcaster = p.hub
		mon.Handle("/ws", p.hub)
	}

	p.handler = handler.NewQueryHandler(cfg.Device.Name, p.inverter, mon, publisher, broadcaster, log)
	return p, nil
}

// commandList checks configured command strings against the registry and
// falls back to def when none are configured.
func commandList(reg *protocol.Registry, configured, def []string) ([]string, error) {
	if len(configured) == 0 {
		return def, nil
	}
	for _, input := range configured {
		name, params, err := reg.Resolve(input)
		if err != nil {
			return nil, err
		}
		if _, err := reg.Validate(name, params); err != nil {
			return nil, err
		}
	}
	return append([]string(nil), configured...), nil
}

// Start runs the poller until SIGINT or SIGTERM.
func (p *Poller) Start() error {
	if p.config.Monitor.Enabled {
		p.monitor.StartMetricsServer(p.config.Monitor.MetricsPort)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p.log.Infof("polling %s every %s: status=%v settings=%v",
		p.config.Device.Name, p.config.Poller.StatusInterval, p.status, p.settings)
	return p.Run(ctx)
}

// Run polls until ctx is cancelled, then lets the in-flight command finish
// and releases the link, storage and stream clients.
func (p *Poller) Run(ctx context.Context) error {
	p.monitor.StartRuntimeMonitor(ctx, 10*time.Second)

	status := p.pollStatus(ctx)
	p.cycle(ctx, func(work context.Context) {
		if p.config.Poller.RunSettingsOnStart {
			if _, err := p.handler.HandleBatch(work, p.settings); err != nil {
				p.log.Warnf("settings fetch incomplete: %v", err)
			}
		}
		status(work)
	})

	ticker := time.NewTicker(p.config.Poller.StatusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info("stopping poller")
			return p.shutdown()
		case <-ticker.C:
			p.cycle(ctx, status)
		}
	}
}

func (p *Poller) pollStatus(stopCtx context.Context) func(context.Context) {
	return func(work context.Context) {
		failed := 0
		for _, input := range p.status {
			if stopCtx.Err() != nil {
				return
			}
			if _, err := p.handler.Handle(work, input); err != nil {
				failed++
			}
		}
		if failed > 0 {
			p.log.Warnf("status cycle: %d of %d commands failed", failed, len(p.status))
		}
	}
}

// cycle runs fn in the background unless a previous cycle is still busy.
// fn receives a context that survives cancellation of ctx so an exchange
// already on the wire is completed.
func (p *Poller) cycle(ctx context.Context, fn func(context.Context)) {
	if !p.busy.CompareAndSwap(false, true) {
		p.log.Warn("previous poll cycle still running, skipping tick")
		return
	}
	p.wg.Add(1)
	go func() {
		defer func() {
			p.busy.Store(false)
			p.wg.Done()
		}()
		fn(context.WithoutCancel(ctx))
	}()
}

func (p *Poller) shutdown() error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.log.Info("poll cycle finished")
	case <-time.After(p.shutdownTimeout):
		p.log.Warn("shutdown timed out waiting for poll cycle")
	}

	var errs []error
	if err := p.inverter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close transport: %w", err))
	}
	if p.storage != nil {
		if err := p.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close storage: %w", err))
		}
	}
	if p.hub != nil {
		p.hub.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.monitor.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop metrics server: %w", err))
	}

	for _, err := range errs {
		p.log.Error(err)
	}
	p.log.Info("poller stopped")
	return errors.Join(errs...)
}

// Monitor exposes the metrics and HTTP surface, mainly for tests.
func (p *Poller) Monitor() *monitor.Monitor { return p.monitor }
