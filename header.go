package dmxp

import (
	"sync/atomic"
	"unsafe"
)

// Byte-exact layout constants from spec §3. These are not Go struct
// definitions with struct tags because cross-language bit-compatibility
// requires addressing the mapped bytes by raw offset, the same approach
// other_examples/a19bd7b3 (a generic shared-memory MPMC queue) takes over
// its mmap'd segment: a []byte plus unsafe.Pointer arithmetic, never a Go
// struct overlaid on foreign memory.
const (
	// Magic is GlobalHeader.magic's constant value.
	Magic uint64 = 0x444D58505F4D454D
	// LayoutVersion is GlobalHeader.version's current value.
	LayoutVersion uint32 = 1
	// MaxChannels is the fixed channel table size.
	MaxChannels = 256

	// ChannelEntrySize is sizeof(ChannelEntry), 128-byte aligned.
	ChannelEntrySize = 384
	// SlotSize is sizeof(Slot), 64-byte aligned.
	SlotSize = 1088
	// PayloadCap is the maximum inline payload length.
	PayloadCap = 960
	// MessageMetaSize is sizeof(MessageMeta) packed with trailing
	// alignment padding (36 logical bytes rounded to 40).
	MessageMetaSize = 40

	// GlobalHeaderSize is sizeof(GlobalHeader): a 128-byte prologue
	// followed by MaxChannels ChannelEntrys.
	GlobalHeaderSize = 128 + MaxChannels*ChannelEntrySize

	// Offsets within GlobalHeader.
	offMagic         = 0
	offVersion       = 8
	offMaxChannels   = 12
	offChannelCount  = 16
	offReserved      = 20
	offChannelsTable = 128

	// Offsets within a ChannelEntry, relative to its own base.
	entryOffChannelID  = 0
	entryOffFlags      = 4
	entryOffCapacity   = 8
	entryOffBandOffset = 16
	entryOffTail       = 128
	entryOffHead       = 256

	// Offsets within a Slot, relative to its own base.
	slotOffSequence = 0
	slotOffMeta     = 8
	slotOffPayload  = 64

	// Offsets within MessageMeta, relative to its own base (slot base + slotOffMeta).
	metaOffMessageID     = 0
	metaOffTimestampNs   = 8
	metaOffChannelID     = 16
	metaOffMessageType   = 20
	metaOffSenderPID     = 24
	metaOffSenderRuntime = 28
	metaOffFlags         = 30
	metaOffPayloadLen    = 32
)

// entryOffset returns the byte offset of channel table slot i's
// ChannelEntry, relative to the region base.
func entryOffset(i int) uintptr {
	return offChannelsTable + uintptr(i)*ChannelEntrySize
}

// slotOffset returns the byte offset of slot idx within a channel's
// band, relative to the band's own base.
func slotOffset(idx uint64) uintptr {
	return uintptr(idx) * SlotSize
}

func ptrAt(data []byte, off uintptr) unsafe.Pointer {
	return unsafe.Pointer(&data[off])
}

func atomicU64At(data []byte, off uintptr) *atomic.Uint64 {
	return (*atomic.Uint64)(ptrAt(data, off))
}

func atomicU32At(data []byte, off uintptr) *atomic.Uint32 {
	return (*atomic.Uint32)(ptrAt(data, off))
}

func loadU32(data []byte, off uintptr) uint32 {
	return *(*uint32)(ptrAt(data, off))
}

func storeU32(data []byte, off uintptr, v uint32) {
	*(*uint32)(ptrAt(data, off)) = v
}

func loadU64(data []byte, off uintptr) uint64 {
	return *(*uint64)(ptrAt(data, off))
}

func storeU64(data []byte, off uintptr, v uint64) {
	*(*uint64)(ptrAt(data, off)) = v
}

func loadU16(data []byte, off uintptr) uint16 {
	return *(*uint16)(ptrAt(data, off))
}

func storeU16(data []byte, off uintptr, v uint16) {
	*(*uint16)(ptrAt(data, off)) = v
}

// channelEntryView is a thin accessor over one ChannelEntry's bytes.
// It does not copy or cache anything: every method reads or writes the
// mapped memory directly, so views taken from different processes that
// share the same mapping observe each other's writes immediately
// (subject to the atomicity/ordering of the individual field access).
type channelEntryView struct {
	data []byte // the full region, not just the entry
	base uintptr
}

func newChannelEntryView(data []byte, index int) channelEntryView {
	return channelEntryView{data: data, base: entryOffset(index)}
}

func (v channelEntryView) channelIDPtr() *atomic.Uint32 {
	return atomicU32At(v.data, v.base+entryOffChannelID)
}

func (v channelEntryView) flagsPtr() *atomic.Uint32 {
	return atomicU32At(v.data, v.base+entryOffFlags)
}

func (v channelEntryView) capacityPtr() *atomic.Uint64 {
	return atomicU64At(v.data, v.base+entryOffCapacity)
}

func (v channelEntryView) bandOffsetPtr() *atomic.Uint64 {
	return atomicU64At(v.data, v.base+entryOffBandOffset)
}

func (v channelEntryView) tailPtr() *atomic.Uint64 {
	return atomicU64At(v.data, v.base+entryOffTail)
}

func (v channelEntryView) headPtr() *atomic.Uint64 {
	return atomicU64At(v.data, v.base+entryOffHead)
}
