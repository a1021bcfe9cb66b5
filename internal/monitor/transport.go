package monitor

import (
	"context"

	"github.com/TheFuji/mpp-solar-v0.9.01/internal/transport"
)

type countingTransport struct {
	transport.Transport
	m *Monitor
}

// WrapTransport counts the bytes that pass through t.
func (m *Monitor) WrapTransport(t transport.Transport) transport.Transport {
	return &countingTransport{Transport: t, m: m}
}

func (c *countingTransport) Exchange(ctx context.Context, frame []byte) ([]byte, error) {
	c.m.BytesSent.Add(float64(len(frame)))
	reply, err := c.Transport.Exchange(ctx, frame)
	c.m.BytesReceived.Add(float64(len(reply)))
	return reply, err
}
