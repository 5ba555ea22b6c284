package main

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
)

var _ NetworkProber = (*dialProber)(nil)

// NetworkProber tells whether the network is currently reachable. It only
// serves to distinguish a network failure from a remote server failure.
type NetworkProber interface {
	Reachable(ctx context.Context) bool
}

type dialProber struct {
	logger  *zap.Logger
	targets []string
	timeout time.Duration
	dial    func(ctx context.Context, network, address string) (net.Conn, error)
}

// NewNetworkProber provides a prober which tries a TCP connection to each
// target in order and reports success on the first established one.
func NewNetworkProber(logger *zap.Logger, config *ProbeConfig) NetworkProber {
	d := &net.Dialer{}
	return &dialProber{
		logger:  logger,
		targets: config.Targets,
		timeout: config.Timeout,
		dial:    d.DialContext,
	}
}

func (p *dialProber) Reachable(ctx context.Context) bool {
	for _, target := range p.targets {
		dctx, cancel := context.WithTimeout(ctx, p.timeout)
		conn, err := p.dial(dctx, "tcp", target)
		cancel()
		if err == nil {
			_ = conn.Close()
			return true
		}
		p.logger.Debug("probe: target unreachable", zap.String("probe.target", target), zap.Error(err))
	}
	return false
}
