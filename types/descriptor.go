package types

// Descriptor is the serializer descriptor shared in OPEN payloads. It names
// the codec the producers used for record payloads.
type Descriptor struct {
	// Codec is the registered codec name (msgpack, json, string, bytes).
	Codec string `msgpack:"codec"`
	// TypeName is an informational label for the element type.
	TypeName string `msgpack:"type_name,omitempty"`
}
