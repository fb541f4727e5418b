package peer

import (
	"context"
	"encoding/json"

	"github.com/dmitrijs2005/safeshare/internal/client/signaling"
	"github.com/dmitrijs2005/safeshare/internal/logging"
	"github.com/dmitrijs2005/safeshare/internal/proto"
	"github.com/dmitrijs2005/safeshare/internal/transfer"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

// Receiver joins a code and downloads the offered file.
//
// Idle → Joining → OfferObtained → AnswerSent → Connected → Receiving →
// Done. Any failure tears the attempt down and returns to Idle.
type Receiver struct {
	sig    signaling.Signaler
	opts   Options
	api    *webrtc.API
	logger logging.Logger
	id     string
	act    *actor

	// owned by act
	state State
	code  string
	att   *attempt
	rx    *transfer.Receiver
	err   error

	// sender candidates pushed before the join ack
	early []json.RawMessage
}

func NewReceiver(sig signaling.Signaler, opts Options, logger logging.Logger) *Receiver {
	opts = opts.withDefaults()
	r := &Receiver{
		sig:    sig,
		opts:   opts,
		api:    opts.api(),
		logger: logger.With("module", "receiver"),
		id:     uuid.NewString(),
		act:    newActor(),
		state:  StateIdle,
	}
	go pump(r.act, sig.Events(), r.onSignal)
	return r
}

// ID is the receiver id announced to the server.
func (r *Receiver) ID() string { return r.id }

func (r *Receiver) State() State {
	st := StateIdle
	r.act.call(func() { st = r.state })
	return st
}

// Err returns the error that last reset the receiver to Idle.
func (r *Receiver) Err() error {
	var err error
	r.act.call(func() { err = r.err })
	return err
}

// Receive joins code and blocks until the file has been handed to deliver,
// the attempt fails, or ctx ends. A second call while one is in flight
// returns ErrBusy without touching the running attempt.
func (r *Receiver) Receive(ctx context.Context, code string, deliver func(transfer.File) error, progress transfer.Progress) error {
	code = normalizeCode(code)

	var busy bool
	if !r.act.call(func() {
		if r.state.busy() {
			busy = true
			return
		}
		r.teardown()
		r.state = StateJoining
		r.code = code
		r.err = nil
		r.early = nil
	}) {
		return ErrClosed
	}
	if busy {
		return ErrBusy
	}

	rctx, cancel := context.WithTimeout(ctx, r.opts.SignalTimeout)
	sess, err := r.sig.JoinTransfer(rctx, code, r.id)
	cancel()
	if err != nil {
		return r.abort(nil, err)
	}

	var (
		att    *attempt
		answer json.RawMessage
	)
	if !r.act.call(func() { att, answer, err = r.prepareAnswer(sess, deliver, progress) }) {
		return ErrClosed
	}
	if err != nil {
		return r.abort(att, err)
	}

	if err := r.sig.SendAnswer(ctx, code, r.id, answer); err != nil {
		return r.abort(att, err)
	}

	r.act.call(func() {
		if r.att != att {
			return
		}
		if r.state == StateOfferObtained {
			r.state = StateAnswerSent
		}
		for _, c := range att.releaseLocal() {
			r.emitCandidate(c)
		}
	})

	select {
	case err := <-att.result:
		if err != nil {
			return err
		}
	case <-att.gone:
		if err := attemptErr(att); err != nil {
			return err
		}
	case <-ctx.Done():
		return r.abort(att, ctx.Err())
	}

	// the sender reports completion too; either one is enough
	if err := r.sig.TransferCompleted(ctx, code); err != nil {
		r.logger.Warn(ctx, "completion not signalled", "code", code, "error", err)
	}

	r.act.call(func() {
		if r.att == att {
			r.teardown()
		}
	})
	r.logger.Info(ctx, "file received", "code", code)
	return nil
}

// Close tears down the current attempt and stops the receiver. Safe to call
// more than once.
func (r *Receiver) Close() error {
	r.act.call(func() {
		r.teardown()
		if r.state.busy() {
			r.state = StateIdle
		}
	})
	r.act.stop()
	return nil
}

func (r *Receiver) prepareAnswer(sess *proto.Session, deliver func(transfer.File) error, progress transfer.Progress) (*attempt, json.RawMessage, error) {
	offer, err := decodeDescription(sess.Offer, webrtc.SDPTypeOffer)
	if err != nil {
		return nil, nil, err
	}

	att, err := newAttempt(r.api, r.opts.configuration(), r.code)
	if err != nil {
		return nil, nil, err
	}
	r.att = att
	r.rx = transfer.NewReceiver(deliver, progress)
	r.wire(att)

	if err := att.setRemote(offer); err != nil {
		return att, nil, err
	}
	r.state = StateOfferObtained

	ctx := context.Background()
	stored := append(sess.SenderCandidates, r.early...)
	r.early = nil
	for _, raw := range stored {
		c, err := decodeCandidate(raw)
		if err == nil {
			err = att.addRemote(c)
		}
		if err != nil {
			r.logger.Warn(ctx, "stored candidate rejected", "code", r.code, "error", err)
		}
	}

	answer, err := att.pc.CreateAnswer(nil)
	if err != nil {
		return att, nil, transportError("create answer: " + err.Error())
	}
	if err := att.setLocal(answer); err != nil {
		return att, nil, transportError("set local description: " + err.Error())
	}

	raw, err := encodeDescription(att.pc.LocalDescription())
	return att, raw, err
}

func (r *Receiver) wire(att *attempt) {
	att.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		r.act.post(func() {
			if r.att == att && att.localCandidate(init) {
				r.emitCandidate(init)
			}
		})
	})
	att.pc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		r.act.post(func() { r.onConnectionState(att, st) })
	})

	// Handlers must be attached before this callback returns, pion starts
	// reading the channel right after.
	att.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		dc.OnOpen(func() {
			r.act.post(func() {
				if r.att == att {
					att.markOpen()
				}
			})
		})
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			data := append([]byte(nil), msg.Data...)
			r.act.post(func() { r.onMessage(att, msg.IsString, data) })
		})
		dc.OnClose(func() {
			r.act.post(func() {
				if r.att == att && r.state != StateDone {
					r.fail(transportError("data channel closed"))
				}
			})
		})
		r.act.post(func() {
			if r.att != att || att.dc != nil {
				_ = dc.Close()
				return
			}
			att.dc = dc
		})
	})
}

func (r *Receiver) onMessage(att *attempt, isString bool, data []byte) {
	if r.att != att || r.state == StateDone {
		return
	}
	if r.state == StateAnswerSent || r.state == StateConnected {
		r.state = StateReceiving
	}

	if err := r.rx.Handle(isString, data); err != nil {
		r.fail(err)
		return
	}
	if r.rx.Done() {
		r.state = StateDone
		att.finish(nil)
	}
}

func (r *Receiver) emitCandidate(c webrtc.ICECandidateInit) {
	raw, err := encodeCandidate(c)
	if err == nil {
		err = r.sig.SendCandidate(context.Background(), r.code, proto.SideReceiver, raw)
	}
	if err != nil {
		r.logger.Warn(context.Background(), "candidate not sent", "code", r.code, "error", err)
	}
}

func (r *Receiver) onConnectionState(att *attempt, st webrtc.PeerConnectionState) {
	if r.att != att {
		return
	}
	r.logger.Debug(context.Background(), "connection state", "code", r.code, "state", st.String())

	switch st {
	case webrtc.PeerConnectionStateConnected:
		if r.state == StateAnswerSent {
			r.state = StateConnected
		}
	case webrtc.PeerConnectionStateDisconnected,
		webrtc.PeerConnectionStateFailed,
		webrtc.PeerConnectionStateClosed:
		if r.state == StateDone {
			r.teardown()
			r.state = StateIdle
			return
		}
		r.fail(transportError("peer connection " + st.String()))
	}
}

func (r *Receiver) onSignal(env *proto.Envelope) {
	att := r.att
	ctx := context.Background()

	switch env.Event {
	case proto.EventCandidateReceived:
		var m proto.Candidate
		if err := env.Decode(&m); err != nil || normalizeCode(m.Code) != r.code || m.Side != proto.SideSender {
			return
		}
		if att == nil {
			if r.state == StateJoining {
				r.early = append(r.early, m.Candidate)
			}
			return
		}
		c, err := decodeCandidate(m.Candidate)
		if err == nil {
			err = att.addRemote(c)
		}
		if err != nil {
			r.logger.Warn(ctx, "remote candidate rejected", "code", r.code, "error", err)
		}

	case proto.EventTransferFinalized:
		if att == nil {
			return
		}
		r.logger.Debug(ctx, "transfer finalized by server", "code", r.code)
	}
}

func (r *Receiver) abort(att *attempt, err error) error {
	r.act.call(func() {
		if r.att == att {
			r.fail(err)
		}
	})
	return err
}

func (r *Receiver) fail(err error) {
	r.logger.Warn(context.Background(), "receive failed", "code", r.code, "state", string(r.state), "error", err)
	if r.att != nil {
		r.att.finish(err)
	}
	r.teardown()
	r.state = StateIdle
	r.err = err
}

func (r *Receiver) teardown() {
	if r.att == nil {
		return
	}
	if err := r.att.close(); err != nil {
		r.logger.Debug(context.Background(), "close peer connection", "error", err)
	}
	r.att = nil
	r.rx = nil
}
