// Package wire implements the producer/collector message codec.
//
// A message is an ASCII header line terminated by '\n' followed by an
// optional binary payload:
//
//	OPEN <producerIndex> <parallelism>\n<descriptor?>
//	REC\n<record payload>
//	CLOSE <producerIndex> <recordCount>\n
//
// A message without '\n' is header-only.
package wire

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/pithecene-io/tally/types"
)

// HeaderSeparator terminates the header line.
const HeaderSeparator = '\n'

// MaxHeaderSize bounds the header line. Headers are three short integers at most.
const MaxHeaderSize = 256

// Decode decodes a single message. Errors are always *Error.
func Decode(data []byte) (types.Message, error) {
	header, payload, _ := bytes.Cut(data, []byte{HeaderSeparator})
	if len(header) > MaxHeaderSize {
		return types.Message{}, malformed("header exceeds %d bytes", MaxHeaderSize)
	}
	for _, b := range header {
		if b >= 0x80 || (b < 0x20 && b != '\t') {
			return types.Message{}, malformed("header contains non-printable byte 0x%02x", b)
		}
	}

	fields := strings.Fields(string(header))
	if len(fields) == 0 {
		return types.Message{}, malformed("empty header")
	}

	kind := types.MessageKind(fields[0])
	if !kind.Valid() {
		return types.Message{}, &Error{
			Kind: ErrorUnknownTag,
			Msg:  "unknown message tag " + strconv.Quote(fields[0]),
		}
	}

	switch kind {
	case types.KindOpen:
		return decodeOpen(fields, payload)
	case types.KindRecord:
		if len(fields) != 1 {
			return types.Message{}, malformed("REC takes no header fields, got %d", len(fields)-1)
		}
		return types.NewRecord(cloneBytes(payload)), nil
	default:
		return decodeClose(fields, payload)
	}
}

func decodeOpen(fields []string, payload []byte) (types.Message, error) {
	if len(fields) != 3 {
		return types.Message{}, malformed("OPEN expects 2 header fields, got %d", len(fields)-1)
	}
	index, err := parseField("producer index", fields[1])
	if err != nil {
		return types.Message{}, err
	}
	parallelism, err := parseField("parallelism", fields[2])
	if err != nil {
		return types.Message{}, err
	}
	if parallelism < 1 {
		return types.Message{}, malformed("parallelism must be >= 1, got %d", parallelism)
	}
	if index >= parallelism {
		return types.Message{}, malformed("producer index %d out of range for parallelism %d", index, parallelism)
	}
	return types.NewOpen(index, parallelism, cloneBytes(payload)), nil
}

func decodeClose(fields []string, payload []byte) (types.Message, error) {
	if len(fields) != 3 {
		return types.Message{}, malformed("CLOSE expects 2 header fields, got %d", len(fields)-1)
	}
	if len(payload) > 0 {
		return types.Message{}, malformed("CLOSE carries no payload, got %d bytes", len(payload))
	}
	index, err := parseField("producer index", fields[1])
	if err != nil {
		return types.Message{}, err
	}
	count, err := parseField("record count", fields[2])
	if err != nil {
		return types.Message{}, err
	}
	return types.NewClose(index, count), nil
}

// parseField parses a non-negative decimal header field.
func parseField(name, s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, &Error{Kind: ErrorMalformedHeader, Msg: "invalid " + name + " " + strconv.Quote(s), Err: err}
	}
	if n < 0 {
		return 0, malformed("%s must be >= 0, got %d", name, n)
	}
	return n, nil
}

// Encode encodes a message. It validates the same constraints Decode
// enforces, so Decode(Encode(m)) reproduces m, except that an empty
// descriptor or record payload always decodes as nil: the wire form has
// no way to tell an empty payload from an absent one.
func Encode(m types.Message) ([]byte, error) {
	var buf bytes.Buffer
	switch m.Kind {
	case types.KindOpen:
		if m.Open == nil {
			return nil, malformed("OPEN message without body")
		}
		o := m.Open
		if o.Parallelism < 1 || o.ProducerIndex < 0 || o.ProducerIndex >= o.Parallelism {
			return nil, malformed("invalid OPEN %d %d", o.ProducerIndex, o.Parallelism)
		}
		buf.Grow(32 + len(o.Descriptor))
		buf.WriteString("OPEN ")
		buf.WriteString(strconv.Itoa(o.ProducerIndex))
		buf.WriteByte(' ')
		buf.WriteString(strconv.Itoa(o.Parallelism))
		buf.WriteByte(HeaderSeparator)
		buf.Write(o.Descriptor)

	case types.KindRecord:
		if m.Record == nil {
			return nil, malformed("REC message without body")
		}
		buf.Grow(4 + len(m.Record.Payload))
		buf.WriteString("REC")
		buf.WriteByte(HeaderSeparator)
		buf.Write(m.Record.Payload)

	case types.KindClose:
		if m.Close == nil {
			return nil, malformed("CLOSE message without body")
		}
		c := m.Close
		if c.ProducerIndex < 0 || c.RecordCount < 0 {
			return nil, malformed("invalid CLOSE %d %d", c.ProducerIndex, c.RecordCount)
		}
		buf.WriteString("CLOSE ")
		buf.WriteString(strconv.Itoa(c.ProducerIndex))
		buf.WriteByte(' ')
		buf.WriteString(strconv.Itoa(c.RecordCount))
		buf.WriteByte(HeaderSeparator)

	default:
		return nil, &Error{Kind: ErrorUnknownTag, Msg: "unknown message tag " + strconv.Quote(string(m.Kind))}
	}
	return buf.Bytes(), nil
}

// cloneBytes copies b, returning nil for an empty payload.
func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
