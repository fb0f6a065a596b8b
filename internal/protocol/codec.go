package protocol

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"io"

	"github.com/ssargent/distree/internal/peererr"
)

// MaxFrameSize bounds a single length-prefixed frame, mirroring the
// 1_000_000-byte ceiling original_source/src/network.rs passes to
// read_length_prefixed.
const MaxFrameSize = 1_000_000

// WriteFrame JSON-encodes v and writes it as a single length-prefixed
// frame: a varint byte count followed by that many bytes of payload.
func WriteFrame(w io.Writer, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return peererr.Wrap(peererr.Malformed, err, "encoding frame")
	}
	if len(payload) > MaxFrameSize {
		return peererr.Newf(peererr.Malformed, "frame of %d bytes exceeds max %d", len(payload), MaxFrameSize)
	}

	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(payload)))
	if _, err := w.Write(lenBuf[:n]); err != nil {
		return peererr.Wrap(peererr.TransportFailure, err, "writing frame length")
	}
	if _, err := w.Write(payload); err != nil {
		return peererr.Wrap(peererr.TransportFailure, err, "writing frame body")
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from r and JSON-decodes it
// into v. r must be a *bufio.Reader (or similar byte reader) so the
// varint length prefix can be read one byte at a time.
func ReadFrame(r *bufio.Reader, v interface{}) error {
	size, err := binary.ReadUvarint(r)
	if err != nil {
		return peererr.Wrap(peererr.TransportFailure, err, "reading frame length")
	}
	if size == 0 {
		return peererr.New(peererr.Malformed, "empty frame")
	}
	if size > MaxFrameSize {
		return peererr.Newf(peererr.Malformed, "frame of %d bytes exceeds max %d", size, MaxFrameSize)
	}

	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return peererr.Wrap(peererr.TransportFailure, err, "reading frame body")
	}
	if err := json.Unmarshal(buf, v); err != nil {
		return peererr.Wrap(peererr.Malformed, err, "decoding frame")
	}
	return nil
}
