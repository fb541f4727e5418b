package peer

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/safeshare/internal/common"
	"github.com/pion/webrtc/v4"
)

var errDescriptionSet = errors.New("description already set")

// attempt is one peer connection and its candidate bookkeeping. Apart from
// the open/gone signals it is only touched from the owning actor.
type attempt struct {
	pc   *webrtc.PeerConnection
	dc   *webrtc.DataChannel
	code string

	localReady bool
	heldLocal  []webrtc.ICECandidateInit

	remoteReady bool
	heldRemote  []webrtc.ICECandidateInit
	seenRemote  map[string]struct{}

	open     chan struct{}
	gone     chan struct{}
	result   chan error
	openOnce sync.Once
	goneOnce sync.Once

	closed bool
}

func newAttempt(api *webrtc.API, cfg webrtc.Configuration, code string) (*attempt, error) {
	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: new peer connection: %v", common.ErrTransport, err)
	}
	return &attempt{
		pc:         pc,
		code:       code,
		seenRemote: make(map[string]struct{}),
		open:       make(chan struct{}),
		gone:       make(chan struct{}),
		result:     make(chan error, 1),
	}, nil
}

func (a *attempt) markOpen() { a.openOnce.Do(func() { close(a.open) }) }
func (a *attempt) markGone() { a.goneOnce.Do(func() { close(a.gone) }) }

// finish reports the attempt outcome once; later outcomes are dropped.
func (a *attempt) finish(err error) {
	select {
	case a.result <- err:
	default:
	}
}

// setLocal applies the local description once.
func (a *attempt) setLocal(desc webrtc.SessionDescription) error {
	if a.pc.LocalDescription() != nil {
		return errDescriptionSet
	}
	return a.pc.SetLocalDescription(desc)
}

// releaseLocal marks the local side as announced and returns the held
// candidates, in gathering order.
func (a *attempt) releaseLocal() []webrtc.ICECandidateInit {
	a.localReady = true
	held := a.heldLocal
	a.heldLocal = nil
	return held
}

// localCandidate reports whether c may be emitted now; otherwise it is held.
func (a *attempt) localCandidate(c webrtc.ICECandidateInit) bool {
	if !a.localReady {
		a.heldLocal = append(a.heldLocal, c)
		return false
	}
	return true
}

// setRemote applies the remote description once and flushes buffered
// remote candidates.
func (a *attempt) setRemote(desc webrtc.SessionDescription) error {
	if a.remoteReady {
		return errDescriptionSet
	}
	if err := a.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("%w: set remote description: %v", common.ErrProtocol, err)
	}
	a.remoteReady = true

	held := a.heldRemote
	a.heldRemote = nil
	for _, c := range held {
		if err := a.pc.AddICECandidate(c); err != nil {
			return fmt.Errorf("%w: add candidate: %v", common.ErrProtocol, err)
		}
	}
	return nil
}

// addRemote applies a peer candidate, buffering it until the remote
// description is known. Duplicates are ignored.
func (a *attempt) addRemote(c webrtc.ICECandidateInit) error {
	if _, dup := a.seenRemote[c.Candidate]; dup {
		return nil
	}
	a.seenRemote[c.Candidate] = struct{}{}

	if !a.remoteReady {
		a.heldRemote = append(a.heldRemote, c)
		return nil
	}
	if err := a.pc.AddICECandidate(c); err != nil {
		return fmt.Errorf("%w: add candidate: %v", common.ErrProtocol, err)
	}
	return nil
}

// close detaches every callback and closes the data channel and the peer
// connection. Safe to call more than once.
func (a *attempt) close() error {
	if a.closed {
		return nil
	}
	a.closed = true

	a.pc.OnICECandidate(func(*webrtc.ICECandidate) {})
	a.pc.OnConnectionStateChange(func(webrtc.PeerConnectionState) {})
	a.pc.OnDataChannel(func(*webrtc.DataChannel) {})

	if a.dc != nil {
		a.dc.OnOpen(func() {})
		a.dc.OnClose(func() {})
		a.dc.OnMessage(func(webrtc.DataChannelMessage) {})
		_ = a.dc.Close()
	}

	a.markGone()
	return a.pc.Close()
}

func encodeDescription(d *webrtc.SessionDescription) (json.RawMessage, error) {
	return json.Marshal(d)
}

func decodeDescription(raw json.RawMessage, want webrtc.SDPType) (webrtc.SessionDescription, error) {
	var d webrtc.SessionDescription
	if err := json.Unmarshal(raw, &d); err != nil {
		return d, fmt.Errorf("%w: session description: %v", common.ErrProtocol, err)
	}
	if d.Type != want || d.SDP == "" {
		return d, fmt.Errorf("%w: expected %s description", common.ErrProtocol, want)
	}
	return d, nil
}

func encodeCandidate(c webrtc.ICECandidateInit) (json.RawMessage, error) {
	return json.Marshal(c)
}

func decodeCandidate(raw json.RawMessage) (webrtc.ICECandidateInit, error) {
	var c webrtc.ICECandidateInit
	if err := json.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("%w: candidate: %v", common.ErrProtocol, err)
	}
	if c.Candidate == "" {
		return c, fmt.Errorf("%w: empty candidate", common.ErrProtocol)
	}
	return c, nil
}
