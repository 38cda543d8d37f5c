// Package types defines core domain types for the tally collector.
//
//nolint:revive // types is a common Go package naming convention
package types

import "fmt"

// MessageKind is the tag of a wire message.
type MessageKind string

// Message kinds emitted by producers.
const (
	KindOpen   MessageKind = "OPEN"
	KindRecord MessageKind = "REC"
	KindClose  MessageKind = "CLOSE"
)

// Valid returns true if k is one of the known message kinds.
func (k MessageKind) Valid() bool {
	switch k {
	case KindOpen, KindRecord, KindClose:
		return true
	default:
		return false
	}
}

// Message is a decoded protocol message. Exactly one of Open, Record or
// Close is set, matching Kind.
type Message struct {
	Kind   MessageKind
	Open   *Open
	Record *Record
	Close  *Close
}

// Open announces a producer instance and the parallelism it belongs to.
type Open struct {
	// ProducerIndex is the zero-based index of the producer instance.
	ProducerIndex int
	// Parallelism is the number of producer instances the producer expects.
	Parallelism int
	// Descriptor is the serializer descriptor. Nil when not shared.
	Descriptor []byte
}

// Record carries one serialized element.
type Record struct {
	// Payload is opaque until handed to the decoder.
	Payload []byte
}

// Close reports that a producer instance finished.
type Close struct {
	// ProducerIndex is the zero-based index of the producer instance.
	ProducerIndex int
	// RecordCount is the number of records the producer emitted.
	RecordCount int
}

// NewOpen builds an OPEN message.
func NewOpen(index, parallelism int, descriptor []byte) Message {
	return Message{Kind: KindOpen, Open: &Open{
		ProducerIndex: index,
		Parallelism:   parallelism,
		Descriptor:    descriptor,
	}}
}

// NewRecord builds a REC message.
func NewRecord(payload []byte) Message {
	return Message{Kind: KindRecord, Record: &Record{Payload: payload}}
}

// NewClose builds a CLOSE message.
func NewClose(index, count int) Message {
	return Message{Kind: KindClose, Close: &Close{ProducerIndex: index, RecordCount: count}}
}

// String renders the message header for logs.
func (m Message) String() string {
	switch m.Kind {
	case KindOpen:
		if m.Open == nil {
			return "OPEN <nil>"
		}
		return fmt.Sprintf("OPEN %d %d (descriptor=%d bytes)", m.Open.ProducerIndex, m.Open.Parallelism, len(m.Open.Descriptor))
	case KindRecord:
		if m.Record == nil {
			return "REC <nil>"
		}
		return fmt.Sprintf("REC (%d bytes)", len(m.Record.Payload))
	case KindClose:
		if m.Close == nil {
			return "CLOSE <nil>"
		}
		return fmt.Sprintf("CLOSE %d %d", m.Close.ProducerIndex, m.Close.RecordCount)
	default:
		return fmt.Sprintf("%s <unknown>", string(m.Kind))
	}
}
