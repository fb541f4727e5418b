package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Channel is the part of a data channel the protocol writes to.
type Channel interface {
	SendText(s string) error
	Send(b []byte) error
}

// Send streams r over ch as one transfer and returns the hex digest carried
// in the file-end frame. meta.SizeBytes must match the number of bytes r
// yields.
func Send(ctx context.Context, ch Channel, meta Metadata, r io.Reader, progress Progress) (string, error) {
	if meta.MimeType == "" {
		meta.MimeType = DefaultMimeType
	}

	head, err := json.Marshal(metadataFrame{Type: TypeFileMetadata, Metadata: meta})
	if err != nil {
		return "", err
	}
	if err := ch.SendText(string(head)); err != nil {
		return "", fmt.Errorf("send metadata: %w", err)
	}

	h := newDigest()
	buf := make([]byte, ChunkSize)
	var sent int64

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		n, readErr := io.ReadFull(r, buf)
		if n > 0 {
			h.Write(buf[:n])
			if err := ch.Send(buf[:n]); err != nil {
				return "", fmt.Errorf("send chunk at %d: %w", sent, err)
			}
			sent += int64(n)
			if progress != nil {
				progress(sent, meta.SizeBytes)
			}
		}

		if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
			break
		}
		if readErr != nil {
			return "", fmt.Errorf("read source: %w", readErr)
		}
	}

	if sent != meta.SizeBytes {
		return "", fmt.Errorf("source yielded %d bytes, declared %d", sent, meta.SizeBytes)
	}

	digest := digestString(h)
	tail, err := json.Marshal(endFrame{Type: TypeFileEnd, Digest: digest})
	if err != nil {
		return "", err
	}
	if err := ch.SendText(string(tail)); err != nil {
		return "", fmt.Errorf("send file-end: %w", err)
	}

	return digest, nil
}
