// Package transfer implements the chunked file protocol that runs over an
// ordered, reliable data channel.
//
// A transfer is one "file-metadata" text frame, then the payload as binary
// frames of at most ChunkSize bytes, then one "file-end" text frame. There are
// no sequence numbers: the channel must be created ordered and without a
// retransmit limit.
package transfer

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"

	"github.com/dmitrijs2005/safeshare/internal/common"
	"golang.org/x/crypto/blake2b"
)

const ChunkSize = 64 * 1024

const (
	TypeFileMetadata = "file-metadata"
	TypeFileEnd      = "file-end"
)

const DefaultMimeType = "application/octet-stream"

// Metadata describes the file being sent.
type Metadata struct {
	Name      string `json:"name"`
	SizeBytes int64  `json:"sizeBytes"`
	MimeType  string `json:"mimeType"`
}

type metadataFrame struct {
	Type string `json:"type"`
	Metadata
}

type endFrame struct {
	Type   string `json:"type"`
	Digest string `json:"digest,omitempty"`
}

// Progress reports bytes transferred so far out of total.
type Progress func(done, total int64)

// ChunkCount returns the number of binary frames needed for size bytes.
func ChunkCount(size int64) int64 {
	if size <= 0 {
		return 0
	}
	n := size / ChunkSize
	if size%ChunkSize != 0 {
		n++
	}
	return n
}

func newDigest() hash.Hash {
	h, err := blake2b.New256(nil)
	if err != nil {
		// only fails for oversized keys
		panic(err)
	}
	return h
}

func digestString(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}

// Digest returns the hex BLAKE2b-256 digest of b.
func Digest(b []byte) string {
	sum := blake2b.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func controlType(b []byte) (string, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(b, &head); err != nil {
		return "", fmt.Errorf("%w: control frame: %v", common.ErrProtocol, err)
	}
	return head.Type, nil
}
