package peer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/dmitrijs2005/safeshare/internal/client/signaling"
	"github.com/dmitrijs2005/safeshare/internal/logging"
	"github.com/dmitrijs2005/safeshare/internal/proto"
	"github.com/dmitrijs2005/safeshare/internal/transfer"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

// Sender offers one file at a time.
//
// Idle → CodeRequested → OfferSent → AwaitingAnswer → Connected →
// Transferring → Done. Any failure tears the attempt down and returns to
// Idle.
type Sender struct {
	sig    signaling.Signaler
	opts   Options
	api    *webrtc.API
	logger logging.Logger
	id     string
	act    *actor

	// owned by act
	state State
	code  string
	meta  transfer.Metadata
	att   *attempt
	err   error
}

func NewSender(sig signaling.Signaler, opts Options, logger logging.Logger) *Sender {
	opts = opts.withDefaults()
	s := &Sender{
		sig:    sig,
		opts:   opts,
		api:    opts.api(),
		logger: logger.With("module", "sender"),
		id:     uuid.NewString(),
		act:    newActor(),
		state:  StateIdle,
	}
	go pump(s.act, sig.Events(), s.onSignal)
	return s
}

// ID is the sender id announced to the server.
func (s *Sender) ID() string { return s.id }

func (s *Sender) State() State {
	st := StateIdle
	s.act.call(func() { st = s.state })
	return st
}

// Err returns the error that last reset the sender to Idle.
func (s *Sender) Err() error {
	var err error
	s.act.call(func() { err = s.err })
	return err
}

// Start registers the file with the signaling server, publishes the offer
// and returns the rendezvous code to hand to the receiver.
func (s *Sender) Start(ctx context.Context, meta transfer.Metadata) (string, error) {
	var busy bool
	if !s.act.call(func() {
		if s.state.busy() {
			busy = true
			return
		}
		s.teardown()
		s.state = StateCodeRequested
		s.meta = meta
		s.code = ""
		s.err = nil
	}) {
		return "", ErrClosed
	}
	if busy {
		return "", ErrBusy
	}

	rctx, cancel := context.WithTimeout(ctx, s.opts.SignalTimeout)
	code, err := s.sig.CreateTransfer(rctx, s.id, proto.FileMetadata{
		Name:      meta.Name,
		SizeBytes: meta.SizeBytes,
		MimeType:  meta.MimeType,
	})
	cancel()
	if err != nil {
		return "", s.abort(nil, err)
	}

	var (
		att   *attempt
		offer json.RawMessage
	)
	if !s.act.call(func() { att, offer, err = s.prepareOffer(code) }) {
		return "", ErrClosed
	}
	if err != nil {
		return "", s.abort(att, err)
	}

	if err := s.sig.SendOffer(ctx, code, s.id, offer); err != nil {
		return "", s.abort(att, err)
	}

	var live bool
	s.act.call(func() {
		if s.att != att {
			return
		}
		live = true
		s.state = StateOfferSent
		for _, c := range att.releaseLocal() {
			s.emitCandidate(c)
		}
		s.state = StateAwaitingAnswer
	})
	if !live {
		if err := s.Err(); err != nil {
			return "", err
		}
		return "", ErrClosed
	}

	s.logger.Info(ctx, "offer published", "code", code, "file", meta.Name)
	return code, nil
}

// Transfer waits for the receiver, streams r and then lingers until the
// receiver hangs up or LingerTimeout passes.
func (s *Sender) Transfer(ctx context.Context, r io.Reader, progress transfer.Progress) error {
	var (
		att   *attempt
		meta  transfer.Metadata
		code  string
		ready bool
	)
	if !s.act.call(func() {
		att, meta, code = s.att, s.meta, s.code
		ready = att != nil && (s.state == StateAwaitingAnswer || s.state == StateConnected)
	}) {
		return ErrClosed
	}
	if !ready {
		return ErrNotStarted
	}

	select {
	case <-att.open:
	case <-att.gone:
		return attemptErr(att)
	case <-ctx.Done():
		return s.abort(att, ctx.Err())
	}

	var ch *dcChannel
	s.act.call(func() {
		if s.att == att {
			s.state = StateTransferring
			ch = newDCChannel(ctx, att.dc, att.gone)
		}
	})
	if ch == nil {
		return attemptErr(att)
	}

	digest, err := transfer.Send(ctx, ch, meta, r, progress)
	if err != nil {
		return s.abort(att, err)
	}
	if err := ch.drain(); err != nil {
		return s.abort(att, err)
	}

	if err := s.sig.TransferCompleted(ctx, code); err != nil {
		s.logger.Warn(ctx, "completion not signalled", "code", code, "error", err)
	}
	s.act.call(func() {
		if s.att == att {
			s.state = StateDone
		}
	})
	s.logger.Info(ctx, "file sent", "code", code, "size", meta.SizeBytes, "digest", digest)

	linger := time.NewTimer(s.opts.LingerTimeout)
	defer linger.Stop()
	select {
	case <-att.gone:
	case <-linger.C:
	case <-ctx.Done():
	}

	s.act.call(func() {
		if s.att == att {
			s.teardown()
		}
	})
	return nil
}

// Close tears down the current attempt and stops the sender. Safe to call
// more than once.
func (s *Sender) Close() error {
	s.act.call(func() {
		s.teardown()
		if s.state.busy() {
			s.state = StateIdle
		}
	})
	s.act.stop()
	return nil
}

func (s *Sender) prepareOffer(code string) (*attempt, json.RawMessage, error) {
	att, err := newAttempt(s.api, s.opts.configuration(), code)
	if err != nil {
		return nil, nil, err
	}
	s.att = att
	s.code = code

	ordered := true
	dc, err := att.pc.CreateDataChannel(dataChannelLabel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return att, nil, transportError("create data channel: " + err.Error())
	}
	att.dc = dc
	s.wire(att)

	offer, err := att.pc.CreateOffer(nil)
	if err != nil {
		return att, nil, transportError("create offer: " + err.Error())
	}
	if err := att.setLocal(offer); err != nil {
		return att, nil, transportError("set local description: " + err.Error())
	}

	raw, err := encodeDescription(att.pc.LocalDescription())
	return att, raw, err
}

func (s *Sender) wire(att *attempt) {
	att.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		s.act.post(func() {
			if s.att == att && att.localCandidate(init) {
				s.emitCandidate(init)
			}
		})
	})
	att.pc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		s.act.post(func() { s.onConnectionState(att, st) })
	})
	att.dc.OnOpen(func() {
		s.act.post(func() {
			if s.att == att {
				att.markOpen()
			}
		})
	})
	att.dc.OnClose(func() {
		s.act.post(func() {
			if s.att == att {
				att.markGone()
			}
		})
	})
}

func (s *Sender) emitCandidate(c webrtc.ICECandidateInit) {
	raw, err := encodeCandidate(c)
	if err == nil {
		err = s.sig.SendCandidate(context.Background(), s.code, proto.SideSender, raw)
	}
	if err != nil {
		s.logger.Warn(context.Background(), "candidate not sent", "code", s.code, "error", err)
	}
}

func (s *Sender) onConnectionState(att *attempt, st webrtc.PeerConnectionState) {
	if s.att != att {
		return
	}
	ctx := context.Background()
	s.logger.Debug(ctx, "connection state", "code", s.code, "state", st.String())

	switch st {
	case webrtc.PeerConnectionStateConnected:
		if s.state == StateAwaitingAnswer {
			s.state = StateConnected
		}
	case webrtc.PeerConnectionStateDisconnected,
		webrtc.PeerConnectionStateFailed,
		webrtc.PeerConnectionStateClosed:
		att.markGone()
		if s.state == StateDone {
			s.teardown()
			s.state = StateIdle
			return
		}
		s.fail(transportError("peer connection " + st.String()))
	}
}

func (s *Sender) onSignal(env *proto.Envelope) {
	att := s.att
	if att == nil {
		return
	}
	ctx := context.Background()

	switch env.Event {
	case proto.EventAnswerReceived:
		var m proto.AnswerReceived
		if err := env.Decode(&m); err != nil || normalizeCode(m.Code) != s.code {
			return
		}
		desc, err := decodeDescription(m.Answer, webrtc.SDPTypeAnswer)
		if err != nil {
			s.fail(err)
			return
		}
		if err := att.setRemote(desc); err != nil {
			if errors.Is(err, errDescriptionSet) {
				s.logger.Debug(ctx, "duplicate answer ignored", "code", s.code)
				return
			}
			s.fail(err)
		}

	case proto.EventCandidateReceived:
		var m proto.Candidate
		if err := env.Decode(&m); err != nil || normalizeCode(m.Code) != s.code || m.Side != proto.SideReceiver {
			return
		}
		c, err := decodeCandidate(m.Candidate)
		if err == nil {
			err = att.addRemote(c)
		}
		if err != nil {
			s.logger.Warn(ctx, "remote candidate rejected", "code", s.code, "error", err)
		}

	case proto.EventReceiverJoined:
		s.logger.Info(ctx, "receiver joined", "code", s.code)
	}
}

// abort fails att if it is still current.
func (s *Sender) abort(att *attempt, err error) error {
	s.act.call(func() {
		if s.att == att {
			s.fail(err)
		}
	})
	return err
}

func (s *Sender) fail(err error) {
	s.logger.Warn(context.Background(), "transfer failed", "code", s.code, "state", string(s.state), "error", err)
	if s.att != nil {
		s.att.finish(err)
	}
	s.teardown()
	s.state = StateIdle
	s.err = err
}

func (s *Sender) teardown() {
	if s.att == nil {
		return
	}
	if err := s.att.close(); err != nil {
		s.logger.Debug(context.Background(), "close peer connection", "error", err)
	}
	s.att = nil
}

// attemptErr returns why att ended; nil when it finished successfully.
func attemptErr(att *attempt) error {
	select {
	case err := <-att.result:
		return err
	default:
		return transportError("connection closed")
	}
}
