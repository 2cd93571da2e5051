package dmxp

import (
	"github.com/pkg/errors"
)

// isPowerOfTwo reports whether v is a power of two and at least 2, the
// capacity requirement spec §4.2 states ("capacity must be a power of
// two ≥ 2") so that idx = cursor & (capacity-1) is equivalent to modulo.
func isPowerOfTwo(v uint64) bool {
	return v >= 2 && v&(v-1) == 0
}

// findChannelEntry linearly scans the 256-entry channel table for a
// matching channel_id with capacity > 0, per spec §4.2. Linear scan
// over 256 small entries is the spec's own stated algorithm; this is
// not a hot path (channel lookup happens once per Channel handle, not
// per message).
func (r *Region) findChannelEntry(id uint32) (int, bool) {
	for i := 0; i < MaxChannels; i++ {
		v := newChannelEntryView(r.data, i)
		if v.capacityPtr().Load() == 0 {
			continue
		}
		if v.channelIDPtr().Load() == id {
			return i, true
		}
	}
	return -1, false
}

// createChannelEntry installs a new channel in the directory, or returns
// the existing entry if one with the same id and capacity already
// exists (the idempotent resolution of spec §9's open question on
// repeated create_channel calls). capacity must be a power of two ≥ 2.
func (r *Region) createChannelEntry(id uint32, capacity uint64) (int, error) {
	if !isPowerOfTwo(capacity) {
		return -1, newError(CodeCapacityInvalid, "createChannelEntry",
			errors.Errorf("capacity %d is not a power of two >= 2", capacity))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	freeIdx := -1
	var nextBandOffset uint64 = GlobalHeaderSize
	for i := 0; i < MaxChannels; i++ {
		v := newChannelEntryView(r.data, i)
		entryCapacity := v.capacityPtr().Load()
		if entryCapacity == 0 {
			if freeIdx == -1 {
				freeIdx = i
			}
			continue
		}
		if v.channelIDPtr().Load() == id {
			if entryCapacity == capacity {
				return i, nil // idempotent: already created with matching capacity
			}
			return -1, newError(CodeCapacityInvalid, "createChannelEntry",
				errors.Errorf("channel %d already exists with capacity %d, requested %d", id, entryCapacity, capacity))
		}
		bandEnd := v.bandOffsetPtr().Load() + entryCapacity*SlotSize
		if bandEnd > nextBandOffset {
			nextBandOffset = bandEnd
		}
	}

	if freeIdx == -1 {
		return -1, newError(CodeDirectoryFull, "createChannelEntry",
			errors.New("all 256 channel entries are in use"))
	}

	bandOffset := nextBandOffset
	bandBytes := capacity * SlotSize
	if bandOffset+bandBytes > uint64(r.size) {
		return -1, newError(CodeInsufficientRegion, "createChannelEntry",
			errors.Errorf("channel band [%d, %d) exceeds region size %d", bandOffset, bandOffset+bandBytes, r.size))
	}

	// Initialize every slot's sequence to its own index before capacity
	// becomes nonzero, per spec invariant 4 ("sequence[i] = i at region
	// creation") and §4.2's requirement that initialization be complete
	// and visible before capacity is published.
	band := r.data[bandOffset : bandOffset+bandBytes]
	for i := uint64(0); i < capacity; i++ {
		storeU64(band, slotOffset(i)+slotOffSequence, i)
	}

	v := newChannelEntryView(r.data, freeIdx)
	v.channelIDPtr().Store(id)
	v.flagsPtr().Store(0)
	v.bandOffsetPtr().Store(bandOffset)
	v.tailPtr().Store(0)
	v.headPtr().Store(0)
	// Release-store capacity last: every prior write (sequence init,
	// channel_id, band_offset, cursors) happens-before any reader that
	// observes capacity != 0 via an acquire-load, matching the magic-
	// publication handshake in region.go.
	v.capacityPtr().Store(capacity)

	atomicU32At(r.data, offChannelCount).Add(1)

	r.logb.channelCreated(id, capacity, bandOffset)
	return freeIdx, nil
}
