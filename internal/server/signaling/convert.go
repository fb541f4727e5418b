package signaling

import (
	"github.com/dmitrijs2005/safeshare/internal/proto"
	"github.com/dmitrijs2005/safeshare/internal/server/models"
	"github.com/dmitrijs2005/safeshare/internal/server/services"
)

func normalizeCode(code string) string {
	return services.NormalizeCode(code)
}

func toProtoMetadata(m models.FileMetadata) proto.FileMetadata {
	return proto.FileMetadata{Name: m.Name, SizeBytes: m.SizeBytes, MimeType: m.MimeType}
}

func toProtoSession(s *models.Session) *proto.Session {
	return &proto.Session{
		Code:               s.Code,
		Offer:              s.Offer,
		Answer:             s.Answer,
		SenderID:           s.SenderID,
		ReceiverID:         s.ReceiverID,
		FileMetadata:       toProtoMetadata(s.FileMetadata),
		Status:             string(s.Status),
		SenderCandidates:   s.SenderCandidates,
		ReceiverCandidates: s.ReceiverCandidates,
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
	}
}
