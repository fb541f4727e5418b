package cli

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/safeshare/internal/client/peer"
	"github.com/dmitrijs2005/safeshare/internal/client/signaling"
	"github.com/dmitrijs2005/safeshare/internal/common"
)

// statusText turns a transfer error into the line shown to the user and
// stored in history.
func statusText(err error) string {
	var prefix string
	switch {
	case err == nil:
		return "completed"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out"
	case errors.Is(err, signaling.ErrRejected):
		prefix = "rejected by server"
	case errors.Is(err, common.ErrProtocol):
		prefix = "transfer corrupted"
	case errors.Is(err, common.ErrTransport):
		prefix = "connection lost"
	case errors.Is(err, peer.ErrBusy):
		return "another transfer is in progress"
	default:
		return "failed: " + err.Error()
	}
	return prefix + ": " + err.Error()
}
