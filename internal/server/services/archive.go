package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	sc "github.com/dmitrijs2005/safeshare/internal/server/config"
	"github.com/dmitrijs2005/safeshare/internal/server/models"
)

// Archiver receives sessions removed by the sweeper.
type Archiver interface {
	Archive(ctx context.Context, swept []*models.Session, sweptAt time.Time) error
}

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) objectPutter {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// ArchiveRecord is one line of an archive object. SDP and candidates are
// not kept; only what is needed to audit transfers.
type ArchiveRecord struct {
	Code       string        `json:"code"`
	Status     models.Status `json:"status"`
	LastStatus models.Status `json:"lastStatus"`
	SenderID   string        `json:"senderId"`
	ReceiverID string        `json:"receiverId,omitempty"`
	FileName   string        `json:"fileName"`
	FileSize   int64         `json:"fileSize"`
	MimeType   string        `json:"mimeType"`
	Candidates int           `json:"candidates"`
	CreatedAt  time.Time     `json:"createdAt"`
	UpdatedAt  time.Time     `json:"updatedAt"`
	SweptAt    time.Time     `json:"sweptAt"`
}

// S3Archiver writes each sweep as one zstd-compressed NDJSON object.
type S3Archiver struct {
	client objectPutter
	bucket string
}

func NewS3Archiver(ctx context.Context, cfg *sc.Config) (*S3Archiver, error) {
	awsCfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(cfg.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3RootUser,
			cfg.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3BaseEndpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Archiver{client: client, bucket: cfg.S3Bucket}, nil
}

// ArchiveKey returns a date-partitioned object key.
func ArchiveKey(sweptAt time.Time) string {
	d := sweptAt.UTC()
	return fmt.Sprintf("sessions/%04d/%02d/%02d/%s.ndjson.zst", d.Year(), d.Month(), d.Day(), uuid.NewString())
}

func (a *S3Archiver) Archive(ctx context.Context, swept []*models.Session, sweptAt time.Time) error {
	if len(swept) == 0 {
		return nil
	}

	body, err := EncodeArchive(swept, sweptAt)
	if err != nil {
		return err
	}

	key := ArchiveKey(sweptAt)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(a.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(body),
		ContentType:     aws.String("application/x-ndjson"),
		ContentEncoding: aws.String("zstd"),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// EncodeArchive renders the sessions as zstd-compressed NDJSON.
func EncodeArchive(swept []*models.Session, sweptAt time.Time) ([]byte, error) {
	var buf bytes.Buffer

	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, err
	}

	enc := json.NewEncoder(zw)
	for _, s := range swept {
		rec := ArchiveRecord{
			Code:       s.Code,
			Status:     models.StatusExpired,
			LastStatus: s.Status,
			SenderID:   s.SenderID,
			ReceiverID: s.ReceiverID,
			FileName:   s.FileMetadata.Name,
			FileSize:   s.FileMetadata.SizeBytes,
			MimeType:   s.FileMetadata.MimeType,
			Candidates: len(s.SenderCandidates) + len(s.ReceiverCandidates),
			CreatedAt:  s.CreatedAt,
			UpdatedAt:  s.UpdatedAt,
			SweptAt:    sweptAt.UTC(),
		}
		if err := enc.Encode(rec); err != nil {
			zw.Close()
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
