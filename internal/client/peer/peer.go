// Package peer drives the WebRTC side of a transfer. A Sender offers a file
// under a rendezvous code and a Receiver joins that code; both negotiate a
// pion peer connection through a signaling.Signaler and then run the
// chunked transfer protocol over one ordered data channel.
//
// Every orchestrator owns its state from a single goroutine. Public methods
// and pion callbacks post closures into that goroutine; blocking signaling
// round trips run between those steps, never inside them.
package peer

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/safeshare/internal/common"
	"github.com/dmitrijs2005/safeshare/internal/proto"
	"github.com/pion/webrtc/v4"
)

// ErrBusy is returned when an orchestrator is asked to start while an
// attempt is still in progress.
var ErrBusy = errors.New("transfer already in progress")

// State is the orchestrator lifecycle position.
type State string

const (
	StateIdle State = "idle"

	// sender
	StateCodeRequested  State = "code-requested"
	StateOfferSent      State = "offer-sent"
	StateAwaitingAnswer State = "awaiting-answer"
	StateTransferring   State = "transferring"

	// receiver
	StateJoining       State = "joining"
	StateOfferObtained State = "offer-obtained"
	StateAnswerSent    State = "answer-sent"
	StateReceiving     State = "receiving"

	StateConnected State = "connected"
	StateDone      State = "done"
)

func (s State) busy() bool {
	return s != StateIdle && s != StateDone
}

const (
	DefaultSignalTimeout = 15 * time.Second
	DefaultLingerTimeout = 10 * time.Second

	dataChannelLabel = "file-transfer"
)

// Options configures both orchestrators.
type Options struct {
	ICEServers    []string
	SignalTimeout time.Duration
	LingerTimeout time.Duration

	// IncludeLoopback gathers 127.0.0.1 candidates so two peers on one host
	// can connect without a STUN server.
	IncludeLoopback bool
}

func (o Options) withDefaults() Options {
	if o.SignalTimeout <= 0 {
		o.SignalTimeout = DefaultSignalTimeout
	}
	if o.LingerTimeout < 0 {
		o.LingerTimeout = 0
	}
	return o
}

func (o Options) api() *webrtc.API {
	se := webrtc.SettingEngine{}
	if o.IncludeLoopback {
		se.SetIncludeLoopbackCandidate(true)
	}
	return webrtc.NewAPI(webrtc.WithSettingEngine(se))
}

func (o Options) configuration() webrtc.Configuration {
	var cfg webrtc.Configuration
	if len(o.ICEServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: o.ICEServers}}
	}
	return cfg
}

// ErrClosed is returned by an orchestrator after Close.
var ErrClosed = errors.New("orchestrator closed")

// ErrNotStarted is returned by Sender.Transfer without a pending offer.
var ErrNotStarted = errors.New("no transfer offered")

// pump forwards signaling pushes into the actor until either side stops.
func pump(a *actor, events <-chan *proto.Envelope, handle func(*proto.Envelope)) {
	for {
		select {
		case env, ok := <-events:
			if !ok {
				return
			}
			if !a.post(func() { handle(env) }) {
				return
			}
		case <-a.quit:
			return
		}
	}
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func transportError(what string) error {
	return fmt.Errorf("%w: %s", common.ErrTransport, what)
}
