package packet

import (
	"bytes"
	"testing"
)

func stringCodec() (Encoder[string], Decoder[string]) {
	enc := func(s string) ([]byte, error) { return []byte(s), nil }
	dec := func(b []byte) (string, error) { return string(b), nil }
	return enc, dec
}

func TestNewIDRejectsZero(t *testing.T) {
	if _, err := NewID(0); err != ErrZeroID {
		t.Fatalf("expected ErrZeroID, got %v", err)
	}
	id, err := NewID(1)
	if err != nil || id.Uint64() != 1 {
		t.Fatalf("unexpected id/err: %v %v", id, err)
	}
}

func TestIDNextOverflow(t *testing.T) {
	max := ID(^uint64(0))
	if _, err := max.Next(); err != ErrIDOverflow {
		t.Fatalf("expected overflow error, got %v", err)
	}
}

func TestOptIDRoundTrip(t *testing.T) {
	absent := NoID()
	if _, ok := absent.Get(); ok {
		t.Fatal("expected absent")
	}
	id, _ := NewID(42)
	present := SomeID(id)
	got, ok := present.Get()
	if !ok || got != id {
		t.Fatalf("expected %v, got %v ok=%v", id, got, ok)
	}
}

func TestEncodeDecodePingPong(t *testing.T) {
	enc, dec := stringCodec()
	id, _ := NewID(7)

	for _, p := range []Packet[string]{Ping[string](SomeID(id)), Ping[string](NoID()), Pong[string](SomeID(id)), Pong[string](NoID())} {
		raw, err := Encode(p, enc)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		got, err := Decode(raw, dec)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Kind != p.Kind || got.LastSentID != p.LastSentID {
			t.Fatalf("round trip mismatch: got %+v want %+v", got, p)
		}
	}
}

func TestEncodeDecodeData(t *testing.T) {
	enc, dec := stringCodec()
	id, _ := NewID(3)

	confirmed := Data[string](SomeID(id), "hello")
	raw, err := Encode(confirmed, enc)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(raw, dec)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Payload != "hello" || got.MessageID != confirmed.MessageID {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	unconfirmed := Data[string](NoID(), "world")
	raw2, err := Encode(unconfirmed, enc)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got2, err := Decode(raw2, dec)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got2.Payload != "world" || got2.MessageID.Present() {
		t.Fatalf("expected unconfirmed payload, got %+v", got2)
	}
}

func TestEncodeDecodeConfirmRequestNotFound(t *testing.T) {
	enc, dec := stringCodec()
	id, _ := NewID(99)

	for _, p := range []Packet[string]{Confirm[string](id), Request[string](id), NotFound[string](id)} {
		raw, err := Encode(p, enc)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		got, err := Decode(raw, dec)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Kind != p.Kind || got.ID != p.ID {
			t.Fatalf("round trip mismatch: got %+v want %+v", got, p)
		}
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	_, dec := stringCodec()
	if _, err := Decode([]byte{250}, dec); err != ErrUnknownKind {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestDecodeTruncated(t *testing.T) {
	_, dec := stringCodec()
	if _, err := Decode([]byte{byte(KindConfirm), 1, 2, 3}, dec); err != ErrTruncated {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
	if _, err := Decode(nil, dec); err != ErrTruncated {
		t.Fatalf("expected ErrTruncated on empty input, got %v", err)
	}
}

func TestDecodeRejectsZeroID(t *testing.T) {
	_, dec := stringCodec()
	raw := []byte{byte(KindConfirm), 0, 0, 0, 0, 0, 0, 0, 0}
	if _, err := Decode(raw, dec); err != ErrZeroID {
		t.Fatalf("expected ErrZeroID, got %v", err)
	}
}

func TestDataEncodingIsLengthPreserving(t *testing.T) {
	enc, dec := stringCodec()
	payload := "the quick brown fox"
	p := Data[string](NoID(), payload)
	raw, err := Encode(p, enc)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !bytes.HasSuffix(raw, []byte(payload)) {
		t.Fatalf("expected payload bytes to be preserved verbatim at the tail")
	}
	got, err := Decode(raw, dec)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Payload != payload {
		t.Fatalf("payload mismatch: %q", got.Payload)
	}
}
