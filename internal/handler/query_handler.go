package handler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/TheFuji/mpp-solar-v0.9.01/internal/monitor"
	"github.com/TheFuji/mpp-solar-v0.9.01/pkg/protocol"
)

// Querier is the part of inverter.Protocol the handler drives.
type Querier interface {
	Run(ctx context.Context, input string) (*protocol.Reading, error)
	Registry() *protocol.Registry
}

// Publisher stores or forwards readings; storage.MessageQueue satisfies it.
type Publisher interface {
	Publish(ctx context.Context, device string, reading *protocol.Reading) error
}

// BatchPublisher is implemented by publishers that can pipeline writes.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, device string, readings []*protocol.Reading) error
}

// Broadcaster pushes readings to live subscribers; stream.Hub satisfies it.
type Broadcaster interface {
	Broadcast(v any) error
}

// QueryHandler runs one command and fans the result out to metrics,
// storage and live subscribers. Publisher and Broadcaster are optional.
type QueryHandler struct {
	device      string
	inverter    Querier
	monitor     *monitor.Monitor
	publisher   Publisher
	broadcaster Broadcaster
	log         *logrus.Logger
}

func NewQueryHandler(
	device string,
	inverter Querier,
	mon *monitor.Monitor,
	publisher Publisher,
	broadcaster Broadcaster,
	log *logrus.Logger,
) *QueryHandler {
	return &QueryHandler{
		device:      device,
		inverter:    inverter,
		monitor:     mon,
		publisher:   publisher,
		broadcaster: broadcaster,
		log:         log,
	}
}

// Handle runs input (a full command string such as "GS" or "EY2024").
func (h *QueryHandler) Handle(ctx context.Context, input string) (*protocol.Reading, error) {
	reading, err := h.query(ctx, input)
	if err != nil {
		return nil, err
	}
	if h.publisher != nil {
		if err := h.publisher.Publish(ctx, h.device, reading); err != nil {
			h.log.Errorf("publish failed [%s] %s: %v", h.device, input, err)
		}
	}
	return reading, nil
}

// HandleBatch runs every input in order and publishes the successful
// readings together. It stops early when ctx is cancelled and returns the
// first query error alongside the readings gathered so far.
func (h *QueryHandler) HandleBatch(ctx context.Context, inputs []string) ([]*protocol.Reading, error) {
	readings := make([]*protocol.Reading, 0, len(inputs))
	var firstErr error
	for _, input := range inputs {
		if err := ctx.Err(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			break
		}
		reading, err := h.query(ctx, input)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		readings = append(readings, reading)
	}

	if h.publisher != nil && len(readings) > 0 {
		var err error
		if bp, ok := h.publisher.(BatchPublisher); ok {
			err = bp.PublishBatch(ctx, h.device, readings)
		} else {
			for _, r := range readings {
				if perr := h.publisher.Publish(ctx, h.device, r); perr != nil && err == nil {
					err = perr
				}
			}
		}
		if err != nil {
			h.log.Errorf("publish batch failed [%s]: %v", h.device, err)
		}
	}
	return readings, firstErr
}

func (h *QueryHandler) query(ctx context.Context, input string) (*protocol.Reading, error) {
	start := time.Now()

	reading, err := h.inverter.Run(ctx, input)
	elapsed := time.Since(start)
	h.monitor.ObserveQuery(monitor.CommandLabel(h.inverter.Registry(), input), reading, err, elapsed)

	if err != nil {
		h.log.Warnf("query failed [%s] %s: %v", h.device, input, err)
		return nil, err
	}
	if reading.Ack == protocol.AckFailed {
		h.log.Warnf("inverter refused [%s] %s", h.device, input)
	}

	if h.broadcaster != nil {
		if err := h.broadcaster.Broadcast(reading); err != nil {
			h.log.Errorf("broadcast failed [%s] %s: %v", h.device, input, err)
		}
	}

	h.log.Debugf("query ok [%s] %s: %d entries in %.3fms",
		h.device,
		input,
		len(reading.Entries),
		float64(elapsed.Microseconds())/1000,
	)
	return reading, nil
}
