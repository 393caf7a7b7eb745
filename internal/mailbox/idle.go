package mailbox

import (
	"context"
	"time"
)

// defaultPollInterval is used when the config carries no poll timeout.
// Polling is used instead of protocol-level IDLE; it behaves identically
// from the pipeline's point of view and survives flaky servers better.
const defaultPollInterval = 15 * time.Second

// Idle blocks watching the mailbox and invokes onNewMail whenever new
// messages may have arrived. It returns nil on a graceful stop (context
// cancelled or Stop called) and an error when the connection is lost.
func (c *Client) Idle(ctx context.Context, onNewMail func()) error {
	interval := c.config.PollTimeout
	if interval == 0 {
		interval = defaultPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.stopCh:
			return nil
		case <-ticker.C:
			if err := c.Noop(ctx); err != nil {
				return err
			}
			onNewMail()
		}
	}
}
