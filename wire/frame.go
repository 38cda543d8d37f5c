package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/pithecene-io/tally/types"
)

// Frame size constants for byte-stream transports.
const (
	// MaxFrameSize is the maximum frame size (16 MiB), including length prefix.
	MaxFrameSize = 16 * 1024 * 1024
	// MaxPayloadSize is the maximum message size (MaxFrameSize - 4 bytes).
	MaxPayloadSize = MaxFrameSize - LengthPrefixSize
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4
)

// FrameDecoder reads length-prefixed messages from a byte stream.
type FrameDecoder struct {
	reader io.Reader
}

// NewFrameDecoder creates a new frame decoder.
func NewFrameDecoder(r io.Reader) *FrameDecoder {
	return &FrameDecoder{reader: r}
}

// ReadFrame reads a single frame and returns the encoded message bytes.
//
// Errors:
//   - io.EOF: stream ended cleanly on a frame boundary
//   - *Error with Kind=ErrorPartialFrame: incomplete frame
//   - *Error with Kind=ErrorFrameTooLarge: frame exceeds limit
func (d *FrameDecoder) ReadFrame() ([]byte, error) {
	var lengthBuf [LengthPrefixSize]byte
	_, err := io.ReadFull(d.reader, lengthBuf[:])
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &Error{
			Kind: ErrorPartialFrame,
			Msg:  "failed to read length prefix",
			Err:  err,
		}
	}

	size := binary.BigEndian.Uint32(lengthBuf[:])
	if size > MaxPayloadSize {
		return nil, &Error{
			Kind: ErrorFrameTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", size, MaxPayloadSize),
		}
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(d.reader, payload); err != nil {
		return nil, &Error{
			Kind: ErrorPartialFrame,
			Msg:  "failed to read payload",
			Err:  err,
		}
	}
	return payload, nil
}

// ReadMessage reads and decodes the next message.
func (d *FrameDecoder) ReadMessage() (types.Message, error) {
	payload, err := d.ReadFrame()
	if err != nil {
		return types.Message{}, err
	}
	return Decode(payload)
}

// FrameEncoder writes length-prefixed messages to a byte stream.
// It is safe for concurrent use; each frame is written atomically.
type FrameEncoder struct {
	mu     sync.Mutex
	writer io.Writer
}

// NewFrameEncoder creates a new frame encoder.
func NewFrameEncoder(w io.Writer) *FrameEncoder {
	return &FrameEncoder{writer: w}
}

// WriteFrame writes one length-prefixed frame.
func (e *FrameEncoder) WriteFrame(payload []byte) error {
	if len(payload) > MaxPayloadSize {
		return &Error{
			Kind: ErrorFrameTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", len(payload), MaxPayloadSize),
		}
	}
	buf := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf[:LengthPrefixSize], uint32(len(payload)))
	copy(buf[LengthPrefixSize:], payload)

	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.writer.Write(buf)
	return err
}

// WriteMessage encodes and writes one message.
func (e *FrameEncoder) WriteMessage(m types.Message) error {
	payload, err := Encode(m)
	if err != nil {
		return err
	}
	return e.WriteFrame(payload)
}
