// ABOUTME: Text envelope encode/decode for the Resonate protocol
// ABOUTME: Wraps typed payloads in the {type, payload} envelope
package protocol

import (
	"encoding/json"

	"github.com/resonateaudio/resonate-core/internal/xerrors"
)

// Encode serializes a typed payload as a {"type": type, "payload": payload}
// text message. Passing a nil payload omits the field entirely, which is
// the encoder-side convention for stream/end.
func Encode(msgType string, payload interface{}) ([]byte, error) {
	msg := Message{Type: msgType, Payload: payload}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindMalformedFrame, "encode message", err)
	}
	return data, nil
}

// Decode parses the top-level envelope, returning the message type and the
// raw payload bytes for the caller to unmarshal into the type-specific
// struct. A missing payload key and an explicit empty object are both
// reported as an empty (nil) payload, satisfying the stream/end decode
// leniency.
func Decode(data []byte) (msgType string, payload json.RawMessage, err error) {
	var envelope struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if jsonErr := json.Unmarshal(data, &envelope); jsonErr != nil {
		return "", nil, xerrors.Wrap(xerrors.KindMalformedFrame, "decode envelope", jsonErr)
	}
	if envelope.Type == "" {
		return "", nil, xerrors.New(xerrors.KindMalformedFrame, "missing type field")
	}
	if len(envelope.Payload) == 0 || string(envelope.Payload) == "null" || string(envelope.Payload) == "{}" {
		return envelope.Type, nil, nil
	}
	return envelope.Type, envelope.Payload, nil
}

// DecodePayload unmarshals raw payload bytes into a concrete message struct.
// A nil/empty payload is treated as a zero-value struct rather than an
// error, since several message types (stream/end, and any payload-less
// notification) are valid with no payload object.
func DecodePayload[T any](payload json.RawMessage) (T, error) {
	var v T
	if len(payload) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, xerrors.Wrap(xerrors.KindMalformedFrame, "decode payload", err)
	}
	return v, nil
}

// Known message type strings.
const (
	TypeClientHello          = "client/hello"
	TypeServerHello          = "server/hello"
	TypeClientTime           = "client/time"
	TypeServerTime           = "server/time"
	TypeClientState          = "client/state"
	TypeServerState          = "server/state"
	TypeClientCommand        = "client/command"
	TypeServerCommand        = "server/command"
	TypeStreamStart          = "stream/start"
	TypeStreamUpdate         = "stream/update"
	TypeStreamEnd            = "stream/end"
	TypeStreamRequestFormat  = "stream/request-format"
	TypeGroupUpdate          = "group/update"
	TypeClientGoodbye        = "client/goodbye"
	TypeServerError          = "server/error"
)

// TextAllowedBeforeEstablished lists the only message types permitted before
// the handshake completes. server/error is included because the server sends
// it when validation fails before the handshake ever completes.
func TextAllowedBeforeEstablished(msgType string) bool {
	return msgType == TypeClientHello || msgType == TypeServerHello || msgType == TypeServerError
}
