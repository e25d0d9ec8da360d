// ABOUTME: Tests for the text envelope codec
// ABOUTME: Covers encode/decode round trip and a full client/hello payload
package protocol

import "testing"

func TestEncodeDecode_RoundTrip(t *testing.T) {
	hello := ClientHello{
		ClientID:       "c1",
		Name:           "Kitchen",
		Version:        1,
		SupportedRoles: []string{"player"},
	}

	data, err := Encode(TypeClientHello, hello)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	msgType, payload, err := Decode(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if msgType != TypeClientHello {
		t.Errorf("expected type %q, got %q", TypeClientHello, msgType)
	}

	decoded, err := DecodePayload[ClientHello](payload)
	if err != nil {
		t.Fatalf("decode payload failed: %v", err)
	}
	if decoded.ClientID != "c1" || decoded.Name != "Kitchen" {
		t.Errorf("payload mismatch: %+v", decoded)
	}
}

func TestDecode_MalformedJSON(t *testing.T) {
	_, _, err := Decode([]byte(`not json`))
	if err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestDecode_MissingType(t *testing.T) {
	_, _, err := Decode([]byte(`{"payload":{}}`))
	if err == nil {
		t.Fatal("expected error for missing type")
	}
}

func TestStreamEnd_AcceptsAbsentOrEmptyPayload(t *testing.T) {
	// absent payload
	msgType, payload, err := Decode([]byte(`{"type":"stream/end"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != "stream/end" {
		t.Fatalf("unexpected type: %s", msgType)
	}
	end, err := DecodePayload[StreamEnd](payload)
	if err != nil || len(end.Roles) != 0 {
		t.Errorf("expected zero-value StreamEnd from absent payload, got %+v err=%v", end, err)
	}

	// empty-object payload, per the implementer MAY clause
	_, payload2, err := Decode([]byte(`{"type":"stream/end","payload":{}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	end2, err := DecodePayload[StreamEnd](payload2)
	if err != nil || len(end2.Roles) != 0 {
		t.Errorf("expected zero-value StreamEnd from empty object payload, got %+v err=%v", end2, err)
	}
}

func TestTextAllowedBeforeEstablished(t *testing.T) {
	if !TextAllowedBeforeEstablished(TypeClientHello) {
		t.Error("client/hello must be allowed before ESTABLISHED")
	}
	if !TextAllowedBeforeEstablished(TypeServerHello) {
		t.Error("server/hello must be allowed before ESTABLISHED")
	}
	if !TextAllowedBeforeEstablished(TypeServerError) {
		t.Error("server/error must be allowed before ESTABLISHED")
	}
	if TextAllowedBeforeEstablished(TypeClientState) {
		t.Error("client/state must not be allowed before ESTABLISHED")
	}
	if TextAllowedBeforeEstablished(TypeClientGoodbye) {
		t.Error("client/goodbye must not be allowed before ESTABLISHED")
	}
}

func TestEncode_StreamEndOmitsPayload(t *testing.T) {
	data, err := Encode(TypeStreamEnd, nil)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	want := `{"type":"stream/end"}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}
