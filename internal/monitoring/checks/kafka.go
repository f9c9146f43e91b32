package checks

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/charlesng35/tippster/internal/monitoring"
)

const defaultKafkaTimeout = 3 * time.Second

// Kafka returns a readiness probe that dials the first reachable broker. Event delivery is best
// effort, so an unreachable cluster degrades readiness instead of failing it.
func Kafka(brokers []string, timeout time.Duration) monitoring.Check {
	return monitoring.NewCheck("kafka", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if len(brokers) == 0 {
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: "events disabled"}
		}

		probeCtx, cancel := context.WithTimeout(ctx, chooseTimeout(timeout, defaultKafkaTimeout))
		defer cancel()

		var errs []error
		for _, broker := range brokers {
			conn, err := kafka.DialContext(probeCtx, "tcp", broker)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			_ = conn.Close()
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Duration: time.Since(start)}
		}

		return monitoring.ProbeResult{
			Status:   monitoring.StatusDegraded,
			Details:  errors.Join(errs...).Error(),
			Duration: time.Since(start),
		}
	})
}
