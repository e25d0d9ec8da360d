// ABOUTME: Binary frame encode/decode for player/artwork/visualizer chunks
// ABOUTME: Implements the role-slot header byte layout of the binary envelope
package protocol

import (
	"encoding/binary"

	"github.com/resonateaudio/resonate-core/internal/xerrors"
)

// binaryHeaderLen is byte 0 (message type) plus bytes 1..8 (int64 timestamp).
const binaryHeaderLen = 9

// BinaryRole identifies which role family a binary frame targets.
type BinaryRole int

const (
	BinaryRolePlayer BinaryRole = iota
	BinaryRoleArtwork
	BinaryRoleVisualizer
)

// Frame is a decoded binary message: role/slot, target presentation time in
// server-clock microseconds, and the role-specific payload.
type Frame struct {
	Role      BinaryRole
	Slot      int // artwork channel 0..3; 0 for player and visualizer
	Timestamp int64
	Payload   []byte
}

// typeByte packs role (bits 7..2) and slot (bits 1..0) into the message-type byte.
func typeByte(role BinaryRole, slot int) byte {
	var roleBits byte
	switch role {
	case BinaryRolePlayer:
		roleBits = 0
	case BinaryRoleArtwork:
		roleBits = 1
	case BinaryRoleVisualizer:
		roleBits = 2
	}
	return (roleBits << 2) | byte(slot&0x3)
}

// decodeTypeByte unpacks the message-type byte into role and slot. The
// visualizer's role group occupies values 8..11, artwork 4..7, player 0..3;
// since each role only ever has its role bits 7..2 in {0,1,2} in this
// implementation, any other value
// is UnknownMessageType.
func decodeTypeByte(b byte) (BinaryRole, int, bool) {
	roleBits := b >> 2
	slot := int(b & 0x3)
	switch roleBits {
	case 0:
		return BinaryRolePlayer, slot, true
	case 1:
		return BinaryRoleArtwork, slot, true
	case 2:
		return BinaryRoleVisualizer, slot, true
	default:
		return 0, 0, false
	}
}

// EncodeFrame produces one WebSocket binary message: a 1-byte role/slot
// header, an 8-byte big-endian signed timestamp, and the payload.
//
// The timestamp field is formally signed at the wire level; encoders MUST
// NOT produce negative timestamps even though the field is decoded as signed.
func EncodeFrame(role BinaryRole, slot int, timestamp int64, payload []byte) []byte {
	out := make([]byte, binaryHeaderLen+len(payload))
	out[0] = typeByte(role, slot)
	binary.BigEndian.PutUint64(out[1:9], uint64(timestamp))
	copy(out[9:], payload)
	return out
}

// DecodeFrame parses a binary WebSocket message. An empty payload on an
// artwork slot is valid and means "clear the channel"; this
// function returns it as Frame.Payload == nil without error, leaving the
// clear-channel interpretation to the caller.
func DecodeFrame(data []byte) (Frame, error) {
	if len(data) < binaryHeaderLen {
		return Frame{}, xerrors.New(xerrors.KindMalformedFrame, "binary frame shorter than 9 bytes")
	}
	role, slot, ok := decodeTypeByte(data[0])
	if !ok {
		return Frame{}, xerrors.New(xerrors.KindUnknownMessageType, "unrecognized binary message type byte")
	}
	ts := int64(binary.BigEndian.Uint64(data[1:9]))
	var payload []byte
	if len(data) > binaryHeaderLen {
		payload = data[binaryHeaderLen:]
	}
	return Frame{Role: role, Slot: slot, Timestamp: ts, Payload: payload}, nil
}
