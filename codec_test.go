package dmxp

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeMeta_RoundTrip(t *testing.T) {
	band := make([]byte, SlotSize)
	payload := []byte("round trip payload")
	meta := MessageMeta{
		MessageID:     42,
		ChannelID:     3,
		MessageType:   7,
		SenderRuntime: 1,
		Flags:         0xBEEF,
	}

	encodeMeta(band, 0, meta, payload)

	buf := make([]byte, PayloadCap)
	got, n, err := decodeMeta(band, 0, buf)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.True(t, bytes.Equal(payload, buf[:n]))
	require.Equal(t, meta.MessageID, got.MessageID)
	require.Equal(t, meta.ChannelID, got.ChannelID)
	require.Equal(t, meta.MessageType, got.MessageType)
	require.Equal(t, meta.SenderRuntime, got.SenderRuntime)
	require.Equal(t, meta.Flags, got.Flags)
	require.Equal(t, uint32(len(payload)), got.PayloadLen)
	require.NotZero(t, got.TimestampNs)
	require.NotZero(t, got.SenderPID)
}

func TestEncodeDecodeMeta_ZeroLengthPayload(t *testing.T) {
	band := make([]byte, SlotSize)
	encodeMeta(band, 0, MessageMeta{}, nil)

	buf := make([]byte, PayloadCap)
	meta, n, err := decodeMeta(band, 0, buf)
	require.NoError(t, err)
	require.Equal(t, 0, n)
	require.Equal(t, uint32(0), meta.PayloadLen)
}

func TestEncodeDecodeMeta_MaxPayload(t *testing.T) {
	band := make([]byte, SlotSize)
	payload := bytes.Repeat([]byte{0x9}, PayloadCap)
	encodeMeta(band, 0, MessageMeta{}, payload)

	buf := make([]byte, PayloadCap)
	meta, n, err := decodeMeta(band, 0, buf)
	require.NoError(t, err)
	require.Equal(t, PayloadCap, n)
	require.Equal(t, uint32(PayloadCap), meta.PayloadLen)
	require.True(t, bytes.Equal(payload, buf[:n]))
}

func TestDecodeMeta_CorruptPayloadLen(t *testing.T) {
	band := make([]byte, SlotSize)
	encodeMeta(band, 0, MessageMeta{}, []byte("ok"))
	// Simulate a corrupted cross-language write: payload_len beyond the
	// slot's actual capacity.
	storeU32(band, slotOffMeta+metaOffPayloadLen, PayloadCap+1)

	buf := make([]byte, PayloadCap)
	_, _, err := decodeMeta(band, 0, buf)
	require.Error(t, err)
	var derr *Error
	require.ErrorAs(t, err, &derr)
	require.Equal(t, CodeCorruption, derr.Code)
}

func TestDecodeMeta_TruncatedCallerBuffer(t *testing.T) {
	band := make([]byte, SlotSize)
	payload := []byte("this is longer than the caller's buffer")
	encodeMeta(band, 0, MessageMeta{}, payload)

	buf := make([]byte, 4)
	meta, n, err := decodeMeta(band, 0, buf)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, uint32(len(payload)), meta.PayloadLen)
	require.True(t, bytes.Equal(payload[:4], buf))
}

// TestDecodeMeta_HandBuiltSlot stands in for spec.md's S6 cross-language
// scenario: a slot assembled byte-by-byte, as a producer in another
// language would write it, with no call into encodeMeta at all. If
// decodeMeta can only read back what this package's own encoder wrote,
// the layout isn't actually cross-language-safe.
func TestDecodeMeta_HandBuiltSlot(t *testing.T) {
	band := make([]byte, SlotSize)
	const base uintptr = 0
	metaBase := base + slotOffMeta

	storeU64(band, metaBase+metaOffMessageID, 0x0102030405060708)
	storeU64(band, metaBase+metaOffTimestampNs, 1700000000000000000)
	storeU32(band, metaBase+metaOffChannelID, 9)
	storeU32(band, metaBase+metaOffMessageType, 4)
	storeU32(band, metaBase+metaOffSenderPID, 4242)
	storeU16(band, metaBase+metaOffSenderRuntime, 2)
	storeU16(band, metaBase+metaOffFlags, 0x0001)
	storeU32(band, metaBase+metaOffPayloadLen, 3)

	payloadBase := base + slotOffPayload
	copy(band[payloadBase:], []byte{0xAA, 0xBB, 0xCC})

	buf := make([]byte, PayloadCap)
	meta, n, err := decodeMeta(band, base, buf)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, []byte{0xAA, 0xBB, 0xCC}, buf[:n])
	require.Equal(t, uint64(0x0102030405060708), meta.MessageID)
	require.Equal(t, uint32(9), meta.ChannelID)
	require.Equal(t, uint32(4), meta.MessageType)
	require.Equal(t, uint32(4242), meta.SenderPID)
	require.Equal(t, uint16(2), meta.SenderRuntime)
	require.Equal(t, uint16(0x0001), meta.Flags)
}

func TestValidatePayload(t *testing.T) {
	require.NoError(t, validatePayload(nil))
	require.NoError(t, validatePayload(make([]byte, PayloadCap)))

	err := validatePayload(make([]byte, PayloadCap+1))
	require.Error(t, err)
	var derr *Error
	require.ErrorAs(t, err, &derr)
	require.Equal(t, CodePayloadTooLarge, derr.Code)
}
