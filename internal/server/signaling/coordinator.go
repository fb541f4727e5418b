// Package signaling relays rendezvous messages between the two peers of a
// transfer. The Coordinator turns one inbound envelope plus the stored
// session state into a store mutation and the outbound envelopes; it keeps
// no per-connection state besides Hub membership.
package signaling

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dmitrijs2005/safeshare/internal/common"
	"github.com/dmitrijs2005/safeshare/internal/logging"
	"github.com/dmitrijs2005/safeshare/internal/proto"
	"github.com/dmitrijs2005/safeshare/internal/server/models"
)

// Ack messages sent on failed requests.
const (
	MsgInvalidRequest = "Invalid request."
	MsgCodeExhausted  = "Failed to generate unique share code."
	MsgCreateFailed   = "Failed to create transfer."
	MsgNotFound       = "Transfer not found or offer not ready."
	MsgAlreadyClaimed = "Transfer already has a receiver."
	MsgJoinFailed     = "Failed to join transfer."
	MsgUnknownEvent   = "Unknown event."
)

// SessionService is the part of services.SessionService the coordinator
// drives.
type SessionService interface {
	CreateSession(ctx context.Context, senderID string, meta models.FileMetadata) (string, error)
	SetOffer(ctx context.Context, code, senderID string, offer json.RawMessage) (*models.Session, error)
	AppendCandidate(ctx context.Context, code, side string, candidate json.RawMessage) error
	Join(ctx context.Context, code, receiverID string) (*models.Session, error)
	SetAnswer(ctx context.Context, code, receiverID string, answer json.RawMessage) error
	Complete(ctx context.Context, code string) error
}

type Coordinator struct {
	sessions SessionService
	hub      *Hub
	logger   logging.Logger
}

func NewCoordinator(svc SessionService, hub *Hub, logger logging.Logger) *Coordinator {
	return &Coordinator{
		sessions: svc,
		hub:      hub,
		logger:   logger.With("module", "coordinator"),
	}
}

// Handle processes one envelope received on conn.
func (c *Coordinator) Handle(ctx context.Context, conn Conn, env *proto.Envelope) {
	logger := c.logger.With("conn", conn.ID(), "event", env.Event)

	switch env.Event {
	case proto.EventCreateTransfer:
		c.createTransfer(ctx, logger, conn, env)
	case proto.EventJoinTransfer:
		c.joinTransfer(ctx, logger, conn, env)
	case proto.EventSendOffer:
		c.sendOffer(ctx, logger, conn, env)
	case proto.EventSendCandidate:
		c.sendCandidate(ctx, logger, conn, env)
	case proto.EventSendAnswer:
		c.sendAnswer(ctx, logger, conn, env)
	case proto.EventTransferCompleted:
		c.transferCompleted(ctx, logger, conn, env)
	default:
		logger.Warn(ctx, "unknown event")
		if env.ID != 0 {
			c.ack(ctx, logger, conn, env.ID, proto.Ack{Message: MsgUnknownEvent})
		}
	}
}

// Disconnect drops conn from every group it joined.
func (c *Coordinator) Disconnect(ctx context.Context, conn Conn) {
	c.hub.LeaveAll(conn)
	c.logger.Debug(ctx, "disconnected", "conn", conn.ID())
}

func (c *Coordinator) createTransfer(ctx context.Context, logger logging.Logger, conn Conn, env *proto.Envelope) {
	var req proto.CreateTransfer
	if err := env.Decode(&req); err != nil {
		logger.Warn(ctx, "bad request", "error", err)
		c.ack(ctx, logger, conn, env.ID, proto.Ack{Message: MsgInvalidRequest})
		return
	}

	code, err := c.sessions.CreateSession(ctx, req.SenderID, models.FileMetadata{
		Name:      req.FileMetadata.Name,
		SizeBytes: req.FileMetadata.SizeBytes,
		MimeType:  req.FileMetadata.MimeType,
	})
	if err != nil {
		logger.Warn(ctx, "create failed", "error", err)
		msg := MsgCreateFailed
		switch {
		case errors.Is(err, common.ErrGenerationExhausted):
			msg = MsgCodeExhausted
		case errors.Is(err, common.ErrInvalidArgument), errors.Is(err, common.ErrorIncorrectMetadata):
			msg = MsgInvalidRequest
		}
		c.ack(ctx, logger, conn, env.ID, proto.Ack{Message: msg})
		return
	}

	c.hub.Join(code, conn)
	logger.Info(ctx, "transfer created", "code", code)
	c.ack(ctx, logger, conn, env.ID, proto.Ack{Success: true, Code: code})
}

func (c *Coordinator) joinTransfer(ctx context.Context, logger logging.Logger, conn Conn, env *proto.Envelope) {
	var req proto.JoinTransfer
	if err := env.Decode(&req); err != nil {
		logger.Warn(ctx, "bad request", "error", err)
		c.ack(ctx, logger, conn, env.ID, proto.Ack{Message: MsgInvalidRequest})
		return
	}

	code := normalizeCode(req.Code)
	c.hub.Join(code, conn)

	s, err := c.sessions.Join(ctx, code, req.ReceiverID)
	if err != nil {
		c.hub.Leave(code, conn)
		logger.Warn(ctx, "join failed", "code", code, "error", err)

		msg := MsgJoinFailed
		switch {
		case errors.Is(err, common.ErrorNotFound):
			msg = MsgNotFound
		case errors.Is(err, common.ErrConflict):
			msg = MsgAlreadyClaimed
		case errors.Is(err, common.ErrInvalidArgument):
			msg = MsgInvalidRequest
		}
		c.ack(ctx, logger, conn, env.ID, proto.Ack{Message: msg})
		return
	}

	logger.Info(ctx, "receiver joined", "code", code)
	c.ack(ctx, logger, conn, env.ID, proto.Ack{Success: true, Code: code, Session: toProtoSession(s)})
	c.publish(ctx, logger, code, conn, proto.EventReceiverJoined, proto.ReceiverJoined{Code: code})
}

func (c *Coordinator) sendOffer(ctx context.Context, logger logging.Logger, conn Conn, env *proto.Envelope) {
	var req proto.SendOffer
	if err := env.Decode(&req); err != nil {
		logger.Warn(ctx, "bad message", "error", err)
		return
	}

	code := normalizeCode(req.Code)
	s, err := c.sessions.SetOffer(ctx, code, req.SenderID, req.Offer)
	if err != nil {
		logger.Warn(ctx, "offer rejected", "code", code, "error", err)
		return
	}

	c.hub.Join(code, conn)
	c.publish(ctx, logger, code, conn, proto.EventOfferReceived, proto.OfferReceived{
		Code:         code,
		Offer:        s.Offer,
		FileMetadata: toProtoMetadata(s.FileMetadata),
	})
}

func (c *Coordinator) sendCandidate(ctx context.Context, logger logging.Logger, conn Conn, env *proto.Envelope) {
	var req proto.Candidate
	if err := env.Decode(&req); err != nil {
		logger.Warn(ctx, "bad message", "error", err)
		return
	}

	code := normalizeCode(req.Code)
	if err := c.sessions.AppendCandidate(ctx, code, req.Side, req.Candidate); err != nil {
		logger.Warn(ctx, "candidate rejected", "code", code, "side", req.Side, "error", err)
		return
	}

	c.publish(ctx, logger, code, conn, proto.EventCandidateReceived, proto.Candidate{
		Code:      code,
		Candidate: req.Candidate,
		Side:      req.Side,
	})
}

func (c *Coordinator) sendAnswer(ctx context.Context, logger logging.Logger, conn Conn, env *proto.Envelope) {
	var req proto.SendAnswer
	if err := env.Decode(&req); err != nil {
		logger.Warn(ctx, "bad message", "error", err)
		return
	}

	code := normalizeCode(req.Code)
	if err := c.sessions.SetAnswer(ctx, code, req.ReceiverID, req.Answer); err != nil {
		logger.Warn(ctx, "answer rejected", "code", code, "error", err)
		return
	}

	c.publish(ctx, logger, code, conn, proto.EventAnswerReceived, proto.AnswerReceived{Code: code, Answer: req.Answer})
}

func (c *Coordinator) transferCompleted(ctx context.Context, logger logging.Logger, conn Conn, env *proto.Envelope) {
	var req proto.TransferCompleted
	if err := env.Decode(&req); err != nil {
		logger.Warn(ctx, "bad message", "error", err)
		return
	}

	code := normalizeCode(req.Code)
	if err := c.sessions.Complete(ctx, code); err != nil {
		logger.Warn(ctx, "complete rejected", "code", code, "error", err)
		return
	}

	logger.Info(ctx, "transfer completed", "code", code)
	c.publish(ctx, logger, code, conn, proto.EventTransferFinalized, proto.TransferFinalized{
		Code:   code,
		Status: string(models.StatusCompleted),
	})
	c.hub.Dissolve(code)
}

func (c *Coordinator) ack(ctx context.Context, logger logging.Logger, conn Conn, id uint64, ack proto.Ack) {
	env, err := proto.NewEnvelope(proto.EventAck, id, ack)
	if err != nil {
		logger.Error(ctx, "encode ack", "error", err)
		return
	}
	if err := conn.Send(env); err != nil {
		logger.Warn(ctx, "send ack", "error", err)
	}
}

func (c *Coordinator) publish(ctx context.Context, logger logging.Logger, code string, from Conn, event string, payload any) {
	env, err := proto.NewEnvelope(event, 0, payload)
	if err != nil {
		logger.Error(ctx, "encode event", "event", event, "error", err)
		return
	}
	n := c.hub.Publish(code, from, env)
	logger.Debug(ctx, "relayed", "code", code, "out", event, "recipients", n)
}
