package transfer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"hash"

	"github.com/dmitrijs2005/safeshare/internal/common"
)

// File is a completely received and verified payload.
type File struct {
	Metadata
	Data   []byte
	Digest string
}

// Receiver reassembles one transfer at a time. It is not safe for concurrent
// use; feed it from the data channel's message callback.
type Receiver struct {
	deliver  func(File) error
	progress Progress

	meta     *Metadata
	buf      bytes.Buffer
	hash     hash.Hash
	received int64
	done     bool
}

func NewReceiver(deliver func(File) error, progress Progress) *Receiver {
	return &Receiver{deliver: deliver, progress: progress}
}

// Handle dispatches one data channel message.
func (r *Receiver) Handle(isString bool, data []byte) error {
	if isString {
		return r.HandleControl(data)
	}
	return r.HandleChunk(data)
}

func (r *Receiver) HandleControl(data []byte) error {
	typ, err := controlType(data)
	if err != nil {
		return err
	}

	switch typ {
	case TypeFileMetadata:
		var f metadataFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("%w: file-metadata: %v", common.ErrProtocol, err)
		}
		if f.SizeBytes < 0 {
			return fmt.Errorf("%w: negative size %d", common.ErrProtocol, f.SizeBytes)
		}
		r.reset()
		meta := f.Metadata
		if meta.MimeType == "" {
			meta.MimeType = DefaultMimeType
		}
		r.meta = &meta
		return nil

	case TypeFileEnd:
		var f endFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("%w: file-end: %v", common.ErrProtocol, err)
		}
		return r.finish(f.Digest)

	default:
		return fmt.Errorf("%w: unknown control frame %q", common.ErrProtocol, typ)
	}
}

func (r *Receiver) HandleChunk(data []byte) error {
	if r.meta == nil {
		return fmt.Errorf("%w: chunk before file-metadata", common.ErrProtocol)
	}
	if r.received+int64(len(data)) > r.meta.SizeBytes {
		return fmt.Errorf("%w: %d bytes exceed declared size %d",
			common.ErrProtocol, r.received+int64(len(data)), r.meta.SizeBytes)
	}

	r.buf.Write(data)
	r.hash.Write(data)
	r.received += int64(len(data))

	if r.progress != nil {
		r.progress(r.received, r.meta.SizeBytes)
	}
	return nil
}

// Done reports whether a transfer has been delivered.
func (r *Receiver) Done() bool {
	return r.done
}

func (r *Receiver) finish(digest string) error {
	if r.meta == nil {
		return fmt.Errorf("%w: file-end before file-metadata", common.ErrProtocol)
	}
	if r.received != r.meta.SizeBytes {
		return fmt.Errorf("%w: received %d bytes, declared %d", common.ErrProtocol, r.received, r.meta.SizeBytes)
	}

	got := digestString(r.hash)
	if digest != "" && digest != got {
		return fmt.Errorf("%w: digest mismatch", common.ErrProtocol)
	}

	file := File{Metadata: *r.meta, Data: bytes.Clone(r.buf.Bytes()), Digest: got}
	r.meta = nil
	r.buf.Reset()
	r.done = true

	if r.deliver == nil {
		return nil
	}
	return r.deliver(file)
}

func (r *Receiver) reset() {
	r.buf.Reset()
	r.hash = newDigest()
	r.received = 0
	r.done = false
}
