package peer

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"

	"github.com/pkg/errors"
)

// frameDelimiter terminates every framed message, per spec.md §4.4.
var frameDelimiter = []byte("\r\n")

// FrameReader accumulates bytes from an underlying reader until the
// buffer holds a frame delimiter, then splits on it and decodes each
// non-empty chunk, tolerating messages fragmented across reads
// and multiple messages arriving in a single read.
type FrameReader struct {
	r   *bufio.Reader
	buf bytes.Buffer
}

// NewFrameReader wraps r.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: bufio.NewReader(r)}
}

// ReadMessage blocks until a complete, delimited frame is available and
// returns its decoded Message. It returns io.EOF if the underlying
// connection is closed with no further frames pending.
func (f *FrameReader) ReadMessage() (Message, error) {
	for {
		if msg, ok, err := f.popFrame(); err != nil {
			return Message{}, err
		} else if ok {
			return msg, nil
		}

		chunk := make([]byte, 4096)
		n, err := f.r.Read(chunk)
		if n > 0 {
			f.buf.Write(chunk[:n])
		}
		if err != nil {
			return Message{}, err
		}
	}
}

// popFrame extracts and decodes the first complete frame buffered, if
// any. It reports ok=false when no full frame is available yet.
func (f *FrameReader) popFrame() (Message, bool, error) {
	data := f.buf.Bytes()
	idx := bytes.Index(data, frameDelimiter)
	if idx < 0 {
		return Message{}, false, nil
	}

	chunk := make([]byte, idx)
	copy(chunk, data[:idx])
	f.buf.Next(idx + len(frameDelimiter))

	if len(chunk) == 0 {
		// An empty chunk between two delimiters; keep scanning.
		return f.popFrame()
	}

	var msg Message
	if err := json.Unmarshal(chunk, &msg); err != nil {
		return Message{}, false, errors.Wrap(err, "malformed frame")
	}
	return msg, true, nil
}

// EncodeFrame appends the frame delimiter to an encoded message, ready
// to write to a connection.
func EncodeFrame(encoded []byte) []byte {
	framed := make([]byte, 0, len(encoded)+len(frameDelimiter))
	framed = append(framed, encoded...)
	framed = append(framed, frameDelimiter...)
	return framed
}
