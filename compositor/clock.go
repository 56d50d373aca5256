package compositor

import (
	"context"
	"time"
)

// tickerClock paces the render loop at the capture frame rate. The
// reference implementation keys off the display refresh; headless there
// is no vsync, so a frame-interval ticker stands in and the loop
// recomputes elapsed time each tick rather than counting frames.
type tickerClock struct {
	interval time.Duration
	ticker   *time.Ticker
}

// NewFrameClock returns a clock ticking once per frame at the given rate.
func NewFrameClock(frameRate int) FrameClock {
	if frameRate <= 0 {
		frameRate = 30
	}
	return &tickerClock{interval: time.Second / time.Duration(frameRate)}
}

func (c *tickerClock) Now() time.Time {
	return time.Now()
}

func (c *tickerClock) Tick(ctx context.Context) (time.Time, error) {
	if c.ticker == nil {
		c.ticker = time.NewTicker(c.interval)
	}
	select {
	case <-ctx.Done():
		c.ticker.Stop()
		return time.Time{}, ctx.Err()
	case t := <-c.ticker.C:
		return t, nil
	}
}
