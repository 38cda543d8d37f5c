package serde

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDescribe_RoundTrip(t *testing.T) {
	desc, err := Describe(CodecJSON, "order")
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	d, err := ParseDescriptor(desc)
	if err != nil {
		t.Fatalf("ParseDescriptor failed: %v", err)
	}
	if d.Codec != CodecJSON || d.TypeName != "order" {
		t.Errorf("descriptor = %+v", d)
	}
}

func TestDescribe_UnknownCodec(t *testing.T) {
	_, err := Describe("avro", "")
	if !errors.Is(err, ErrUnknownCodec) {
		t.Errorf("expected ErrUnknownCodec, got %v", err)
	}
}

func TestNewDecoder_Errors(t *testing.T) {
	if _, err := NewDecoder(nil); err == nil {
		t.Error("expected error for empty descriptor")
	}
	if _, err := NewDecoder([]byte{0xc1}); err == nil {
		t.Error("expected error for malformed descriptor")
	}
}

func TestCodecs_EncodeDecode(t *testing.T) {
	tests := []struct {
		codec string
		elem  any
		want  any
	}{
		{CodecMsgpack, map[string]any{"id": "a", "tag": "b"}, map[string]any{"id": "a", "tag": "b"}},
		{CodecJSON, map[string]any{"id": "a", "n": 3}, map[string]any{"id": "a", "n": float64(3)}},
		{CodecString, "hello", "hello"},
		{CodecBytes, []byte{1, 2, 3}, []byte{1, 2, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.codec, func(t *testing.T) {
			desc, err := Describe(tt.codec, "")
			if err != nil {
				t.Fatalf("Describe failed: %v", err)
			}
			dec, err := NewDecoder(desc)
			if err != nil {
				t.Fatalf("NewDecoder failed: %v", err)
			}
			enc, err := NewEncoder(tt.codec)
			if err != nil {
				t.Fatalf("NewEncoder failed: %v", err)
			}

			payload, err := enc.Encode(tt.elem)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			got, err := dec.Decode(payload)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("decoded mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCodecs_DecodeMalformed(t *testing.T) {
	for _, codec := range []string{CodecMsgpack, CodecJSON} {
		enc, _ := NewEncoder(codec)
		dec, ok := enc.(Decoder)
		if !ok {
			t.Fatalf("%s codec is not a Decoder", codec)
		}
		if _, err := dec.Decode([]byte{0xc1, 0x7b}); err == nil {
			t.Errorf("%s: expected decode error", codec)
		}
	}
}

type upperCodec struct{ stringCodec }

func TestRegister_CustomCodec(t *testing.T) {
	Register("upper", upperCodec{})
	t.Cleanup(func() {
		registryMu.Lock()
		delete(registry, "upper")
		registryMu.Unlock()
	})

	found := false
	for _, name := range Codecs() {
		if name == "upper" {
			found = true
		}
	}
	if !found {
		t.Fatalf("Codecs() = %v, missing upper", Codecs())
	}

	desc, err := Describe("upper", "")
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if _, err := NewDecoder(desc); err != nil {
		t.Errorf("NewDecoder failed: %v", err)
	}
}
