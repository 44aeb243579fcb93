package kafka

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"
)

// Pinger is satisfied by the producer.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker checks Kafka broker connectivity.
type HealthChecker struct {
	brokers string
	pinger  Pinger
	timeout time.Duration
}

// NewHealthChecker creates a Kafka health checker. When pinger is nil the
// check falls back to a TCP dial of each broker.
func NewHealthChecker(brokers string, pinger Pinger) *HealthChecker {
	return &HealthChecker{
		brokers: brokers,
		pinger:  pinger,
		timeout: 5 * time.Second,
	}
}

// Check returns nil if at least one broker is reachable.
func (h *HealthChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	if h.pinger != nil {
		if err := h.pinger.Ping(ctx); err != nil {
			return fmt.Errorf("kafka ping: %w", err)
		}
		return nil
	}
	if strings.TrimSpace(h.brokers) == "" {
		return fmt.Errorf("kafka brokers not configured")
	}

	var lastErr error
	for _, broker := range strings.Split(h.brokers, ",") {
		broker = strings.TrimSpace(broker)
		if broker == "" {
			continue
		}
		dialer := net.Dialer{Timeout: h.timeout}
		conn, err := dialer.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		conn.Close()
		return nil
	}

	if lastErr != nil {
		return fmt.Errorf("no kafka brokers reachable: %w", lastErr)
	}
	return fmt.Errorf("no kafka brokers configured")
}

// Name returns the check name for health reporting.
func (h *HealthChecker) Name() string {
	return "kafka"
}
