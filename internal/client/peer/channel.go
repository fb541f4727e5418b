package peer

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/safeshare/internal/common"
	"github.com/pion/webrtc/v4"
)

const (
	maxBufferedAmount = 1 << 20
	lowBufferedAmount = 256 << 10
	drainPoll         = 20 * time.Millisecond
)

// dcChannel is a transfer.Channel over a pion data channel that stops
// writing while more than maxBufferedAmount bytes are queued.
type dcChannel struct {
	ctx  context.Context
	dc   *webrtc.DataChannel
	gone <-chan struct{}
	low  chan struct{}
}

func newDCChannel(ctx context.Context, dc *webrtc.DataChannel, gone <-chan struct{}) *dcChannel {
	c := &dcChannel{ctx: ctx, dc: dc, gone: gone, low: make(chan struct{}, 1)}
	dc.SetBufferedAmountLowThreshold(lowBufferedAmount)
	dc.OnBufferedAmountLow(func() {
		select {
		case c.low <- struct{}{}:
		default:
		}
	})
	return c
}

func (c *dcChannel) wait() error {
	for c.dc.BufferedAmount() > maxBufferedAmount {
		select {
		case <-c.low:
		case <-c.gone:
			return fmt.Errorf("%w: data channel closed", common.ErrTransport)
		case <-c.ctx.Done():
			return c.ctx.Err()
		case <-time.After(drainPoll):
		}
	}
	return nil
}

func (c *dcChannel) Send(b []byte) error {
	if err := c.wait(); err != nil {
		return err
	}
	if err := c.dc.Send(b); err != nil {
		return fmt.Errorf("%w: %v", common.ErrTransport, err)
	}
	return nil
}

func (c *dcChannel) SendText(s string) error {
	if err := c.wait(); err != nil {
		return err
	}
	if err := c.dc.SendText(s); err != nil {
		return fmt.Errorf("%w: %v", common.ErrTransport, err)
	}
	return nil
}

// drain blocks until everything queued has been handed to the network.
func (c *dcChannel) drain() error {
	t := time.NewTicker(drainPoll)
	defer t.Stop()
	for c.dc.BufferedAmount() > 0 {
		select {
		case <-c.gone:
			return fmt.Errorf("%w: data channel closed before drain", common.ErrTransport)
		case <-c.ctx.Done():
			return c.ctx.Err()
		case <-t.C:
		}
	}
	return nil
}
