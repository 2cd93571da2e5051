package dmxp

import (
	"os"
	"time"

	"github.com/pkg/errors"
)

// MessageMeta is the Go-side view of a slot's 40-byte metadata header
// (spec §3's MessageMeta). MessageID, TimestampNs and SenderPID are
// filled in by Send/SendBatch regardless of what the caller supplies;
// ChannelID and PayloadLen are likewise always derived from the send
// call. MessageType, SenderRuntime and Flags are caller-controlled and
// passed through unchanged.
type MessageMeta struct {
	MessageID     uint64
	TimestampNs   uint64
	ChannelID     uint32
	MessageType   uint32
	SenderPID     uint32
	SenderRuntime uint16
	Flags         uint16
	PayloadLen    uint32
}

// SendItem pairs one SendBatch element's metadata with its payload.
type SendItem struct {
	Meta    MessageMeta
	Payload []byte
}

// validatePayload enforces spec §3 invariant 5 and §4.4's PayloadTooLarge
// rule on the send path.
func validatePayload(payload []byte) error {
	if len(payload) > PayloadCap {
		return newError(CodePayloadTooLarge, "validatePayload",
			errors.Errorf("payload length %d exceeds %d", len(payload), PayloadCap))
	}
	return nil
}

// encodeMeta writes meta and payload into the slot at band[slotOffset:],
// filling TimestampNs, SenderPID and PayloadLen per spec §4.4. It does
// not touch the slot's sequence word; the caller publishes that
// separately once the write is complete.
func encodeMeta(band []byte, slotBase uintptr, meta MessageMeta, payload []byte) {
	meta.TimestampNs = uint64(time.Now().UnixNano())
	meta.SenderPID = uint32(os.Getpid())
	meta.PayloadLen = uint32(len(payload))

	metaBase := slotBase + slotOffMeta
	storeU64(band, metaBase+metaOffMessageID, meta.MessageID)
	storeU64(band, metaBase+metaOffTimestampNs, meta.TimestampNs)
	storeU32(band, metaBase+metaOffChannelID, meta.ChannelID)
	storeU32(band, metaBase+metaOffMessageType, meta.MessageType)
	storeU32(band, metaBase+metaOffSenderPID, meta.SenderPID)
	storeU16(band, metaBase+metaOffSenderRuntime, meta.SenderRuntime)
	storeU16(band, metaBase+metaOffFlags, meta.Flags)
	storeU32(band, metaBase+metaOffPayloadLen, meta.PayloadLen)

	payloadBase := slotBase + slotOffPayload
	copy(band[payloadBase:payloadBase+PayloadCap], payload)
}

// decodeMeta reads a slot's MessageMeta and copies up to PayloadLen
// payload bytes into buf, returning the number of bytes copied. It
// returns Corruption if the decoded payload_len exceeds PayloadCap, per
// spec §4.4 and §7.
func decodeMeta(band []byte, slotBase uintptr, buf []byte) (MessageMeta, int, error) {
	metaBase := slotBase + slotOffMeta
	meta := MessageMeta{
		MessageID:     loadU64(band, metaBase+metaOffMessageID),
		TimestampNs:   loadU64(band, metaBase+metaOffTimestampNs),
		ChannelID:     loadU32(band, metaBase+metaOffChannelID),
		MessageType:   loadU32(band, metaBase+metaOffMessageType),
		SenderPID:     loadU32(band, metaBase+metaOffSenderPID),
		SenderRuntime: loadU16(band, metaBase+metaOffSenderRuntime),
		Flags:         loadU16(band, metaBase+metaOffFlags),
		PayloadLen:    loadU32(band, metaBase+metaOffPayloadLen),
	}

	if meta.PayloadLen > PayloadCap {
		return meta, 0, newError(CodeCorruption, "decodeMeta",
			errors.Errorf("decoded payload_len %d exceeds %d", meta.PayloadLen, PayloadCap))
	}

	n := int(meta.PayloadLen)
	if n > len(buf) {
		n = len(buf)
	}
	payloadBase := slotBase + slotOffPayload
	copy(buf[:n], band[payloadBase:payloadBase+uintptr(n)])

	return meta, n, nil
}
