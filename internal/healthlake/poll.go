package healthlake

import (
	"context"
	"fmt"
	"time"
)

type describeFunc func(ctx context.Context) (status string, pending bool, err error)

// pollLoop describes, reports the tick, and sleeps until describe says the
// status is no longer pending.
func (c *Client) pollLoop(ctx context.Context, onTick TickFunc, describe describeFunc) (string, error) {
	for iteration := 1; ; iteration++ {
		status, pending, err := describe(ctx)
		if err != nil {
			return "", err
		}
		c.log.Debug("poll", "status", status, "iteration", iteration)

		if onTick != nil {
			if err := onTick(ctx, Tick{Status: status, Iteration: iteration}); err != nil {
				return status, fmt.Errorf("%w: %w", ErrPollAborted, err)
			}
		}
		if !pending {
			return status, nil
		}
		if c.poll.MaxAttempts > 0 && iteration >= c.poll.MaxAttempts {
			return status, fmt.Errorf("%w after %d attempts (last status %s)", ErrPollLimit, iteration, status)
		}
		if err := sleep(ctx, c.poll.Interval); err != nil {
			return status, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
