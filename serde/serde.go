// Package serde builds record decoders from serializer descriptors.
//
// Producers share a descriptor (a msgpack-encoded types.Descriptor) in
// their OPEN payload. The collector builds one Decoder from the first
// descriptor it sees and decodes every record payload with it.
package serde

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pithecene-io/tally/types"
)

// Built-in codec names.
const (
	CodecMsgpack = "msgpack"
	CodecJSON    = "json"
	CodecString  = "string"
	CodecBytes   = "bytes"
)

// ErrUnknownCodec is returned when a descriptor names an unregistered codec.
var ErrUnknownCodec = errors.New("unknown codec")

// Decoder turns a record payload into an element.
type Decoder interface {
	Decode(payload []byte) (any, error)
}

// Encoder turns an element into a record payload.
type Encoder interface {
	Encode(elem any) ([]byte, error)
}

// Codec pairs a decoder and an encoder for one wire representation.
type Codec interface {
	Decoder
	Encoder
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Codec{
		CodecMsgpack: msgpackCodec{},
		CodecJSON:    jsonCodec{},
		CodecString:  stringCodec{},
		CodecBytes:   bytesCodec{},
	}
)

// Register adds or replaces a codec under name.
func Register(name string, c Codec) {
	if name == "" || c == nil {
		panic("serde: Register requires a name and a codec")
	}
	registryMu.Lock()
	registry[name] = c
	registryMu.Unlock()
}

// Codecs returns the registered codec names in sorted order.
func Codecs() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookup(name string) (Codec, error) {
	registryMu.RLock()
	c, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
	return c, nil
}

// Describe encodes a descriptor naming codec.
func Describe(codec, typeName string) ([]byte, error) {
	if _, err := lookup(codec); err != nil {
		return nil, err
	}
	return msgpack.Marshal(&types.Descriptor{Codec: codec, TypeName: typeName})
}

// ParseDescriptor decodes descriptor bytes.
func ParseDescriptor(descriptor []byte) (*types.Descriptor, error) {
	if len(descriptor) == 0 {
		return nil, errors.New("empty descriptor")
	}
	var d types.Descriptor
	if err := msgpack.Unmarshal(descriptor, &d); err != nil {
		return nil, fmt.Errorf("invalid descriptor: %w", err)
	}
	if d.Codec == "" {
		return nil, errors.New("descriptor names no codec")
	}
	return &d, nil
}

// NewDecoder builds the record decoder named by descriptor.
func NewDecoder(descriptor []byte) (Decoder, error) {
	d, err := ParseDescriptor(descriptor)
	if err != nil {
		return nil, err
	}
	return lookup(d.Codec)
}

// NewEncoder returns the element encoder for codec.
func NewEncoder(codec string) (Encoder, error) {
	return lookup(codec)
}

type msgpackCodec struct{}

func (msgpackCodec) Decode(payload []byte) (any, error) {
	var v any
	if err := msgpack.Unmarshal(payload, &v); err != nil {
		return nil, fmt.Errorf("msgpack: %w", err)
	}
	return v, nil
}

func (msgpackCodec) Encode(elem any) ([]byte, error) {
	return msgpack.Marshal(elem)
}

type jsonCodec struct{}

func (jsonCodec) Decode(payload []byte) (any, error) {
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, fmt.Errorf("json: %w", err)
	}
	return v, nil
}

func (jsonCodec) Encode(elem any) ([]byte, error) {
	return json.Marshal(elem)
}

type stringCodec struct{}

func (stringCodec) Decode(payload []byte) (any, error) {
	return string(payload), nil
}

func (stringCodec) Encode(elem any) ([]byte, error) {
	switch v := elem.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	case fmt.Stringer:
		return []byte(v.String()), nil
	default:
		return nil, fmt.Errorf("string codec cannot encode %T", elem)
	}
}

type bytesCodec struct{}

func (bytesCodec) Decode(payload []byte) (any, error) {
	out := make([]byte, len(payload))
	copy(out, payload)
	return out, nil
}

func (bytesCodec) Encode(elem any) ([]byte, error) {
	b, ok := elem.([]byte)
	if !ok {
		return nil, fmt.Errorf("bytes codec cannot encode %T", elem)
	}
	return b, nil
}
