package dmxp

import (
	"errors"
	"sync/atomic"
	"time"

	pkgerrors "github.com/pkg/errors"
)

// Channel is a handle to one channel's ring: its slot band plus the
// cache-line-padded tail/head cursors living in the region's
// ChannelEntry. Any number of goroutines in any number of processes
// that have opened the same channel id may call Send/SendBatch/
// TryReceive/ReceiveWithTimeout concurrently (spec §5).
type Channel struct {
	region *Region
	id     uint32
	cfg    Config

	capacity uint64
	mask     uint64
	band     []byte

	tail *atomic.Uint64
	head *atomic.Uint64
}

func newChannel(r *Region, id uint32, index int) *Channel {
	v := newChannelEntryView(r.data, index)
	capacity := v.capacityPtr().Load()
	bandOffset := v.bandOffsetPtr().Load()
	bandBytes := capacity * SlotSize

	return &Channel{
		region:   r,
		id:       id,
		cfg:      r.cfg,
		capacity: capacity,
		mask:     capacity - 1,
		band:     r.data[bandOffset : bandOffset+bandBytes],
		tail:     v.tailPtr(),
		head:     v.headPtr(),
	}
}

// CreateChannel creates channel id with the given power-of-two capacity
// (>= 2), or returns the existing channel if one already exists with a
// matching capacity (spec §9's resolution of repeated create_channel
// calls). Capacity mismatch on an existing channel is CapacityInvalid.
func (r *Region) CreateChannel(id uint32, capacity uint64) (*Channel, error) {
	idx, err := r.createChannelEntry(id, capacity)
	if err != nil {
		return nil, err
	}
	return newChannel(r, id, idx), nil
}

// OpenChannel looks up an already-created channel by id. It returns
// ChannelNotFound if no entry matches.
func (r *Region) OpenChannel(id uint32) (*Channel, error) {
	idx, ok := r.findChannelEntry(id)
	if !ok {
		return nil, newError(CodeChannelNotFound, "OpenChannel",
			pkgerrors.Errorf("no channel with id %d", id))
	}
	return newChannel(r, id, idx), nil
}

// ID returns the channel's id.
func (c *Channel) ID() uint32 { return c.id }

// Capacity returns the channel's fixed slot capacity.
func (c *Channel) Capacity() uint64 { return c.capacity }

// Close is a no-op: a Channel holds no resources beyond views into its
// Region's mapping, which Region.Close releases. It exists so callers
// can treat Channel symmetrically with Region in defer chains.
func (c *Channel) Close() error { return nil }

func (c *Channel) slotSeq(idx uint64) *atomic.Uint64 {
	return atomicU64At(c.band, slotOffset(idx)+slotOffSequence)
}

// ChannelStats reports a channel's current occupancy without consuming
// anything (SPEC_FULL §4.7). Head and Tail are the raw cursor values;
// Len is tail-head; Full is Len >= Capacity (Len can exceed Capacity
// while producers that have claimed tail wait for a slot).
type ChannelStats struct {
	ID       uint32
	Capacity uint64
	Head     uint64
	Tail     uint64
	Len      uint64
	Full     bool
}

// Stats returns a snapshot of the channel's cursors. It costs two
// acquire-loads and does not affect the send/receive protocol.
func (c *Channel) Stats() ChannelStats {
	head := c.head.Load()
	tail := c.tail.Load()
	length := tail - head
	return ChannelStats{
		ID:       c.id,
		Capacity: c.capacity,
		Head:     head,
		Tail:     tail,
		Len:      length,
		Full:     length >= c.capacity,
	}
}

// Send publishes one message, per spec §4.3's producer claim protocol:
// fetch-add tail to claim a slot, spin until that slot's previous
// generation has been drained, write meta+payload, then release-store
// the new sequence. Returns Full if the spin budget is exhausted, and
// PayloadTooLarge if payload exceeds PayloadCap.
func (c *Channel) Send(meta MessageMeta, payload []byte) error {
	if err := validatePayload(payload); err != nil {
		return err
	}

	claimed := c.tail.Add(1) - 1
	idx := claimed & c.mask
	seq := c.slotSeq(idx)

	if err := c.waitForSlot(seq, claimed); err != nil {
		return err
	}

	meta.MessageID = claimed // spec §9 open question: derived from the claimed cursor
	meta.ChannelID = c.id
	encodeMeta(c.band, slotOffset(idx), meta, payload)

	seq.Store(claimed + 1) // release: publishes the write above
	return nil
}

// waitForSlot spins (with bounded backoff) until seq's value equals
// want, returning Full once the configured spin budget is exhausted.
func (c *Channel) waitForSlot(seq *atomic.Uint64, want uint64) error {
	sw := spinWait{}
	for i := 0; i < c.cfg.SpinBudget; i++ {
		if seq.Load() == want {
			return nil
		}
		sw.once(c.cfg.SpinYieldAfter)
	}
	if seq.Load() == want {
		return nil
	}
	return newError(CodeFull, "Send",
		pkgerrors.Errorf("spin budget %d exhausted waiting for slot", c.cfg.SpinBudget))
}

// SendBatch publishes N messages with atomic-batch visibility per spec
// §4.3: fetch-add N on tail to claim a contiguous range, write every
// slot in the range, then release-store their sequences in ascending
// order only after all writes complete. A consumer can only ever
// observe slot k as ready after slot k-1 in the same batch, since no
// other producer can have claimed a slot inside this batch's range.
func (c *Channel) SendBatch(items []SendItem) error {
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		if err := validatePayload(items[i].Payload); err != nil {
			return err
		}
	}

	n := uint64(len(items))
	claimed := c.tail.Add(n) - n

	seqs := make([]*atomic.Uint64, n)
	for k := uint64(0); k < n; k++ {
		idx := (claimed + k) & c.mask
		seq := c.slotSeq(idx)
		seqs[k] = seq
		if err := c.waitForSlot(seq, claimed+k); err != nil {
			return err
		}
		item := items[k]
		item.Meta.MessageID = claimed + k
		item.Meta.ChannelID = c.id
		encodeMeta(c.band, slotOffset(idx), item.Meta, item.Payload)
	}

	for k := uint64(0); k < n; k++ {
		seqs[k].Store(claimed + k + 1)
	}
	return nil
}

// TryReceive attempts to consume one message without blocking. It
// returns Empty if head has already caught up with tail.
//
// Unlike Send's blind fetch-add (safe because a producer that finds its
// slot unready simply keeps waiting — there is always more room to
// wait), a consumer cannot blindly fetch-add head: if the ring is
// empty, an unconditional increment would permanently skip a message
// that had not been produced yet. TryReceive instead checks the
// candidate slot's own sequence for readiness (== head+1) *before*
// touching head at all, and only then claims it with a compare-and-
// swap — exactly the order other_examples/4b3dd5cf (an MPMC
// sequence-protocol queue) uses in its Dequeue. A consumer must never
// advance head past a slot whose producer hasn't published yet: doing
// so loses the message and leaves the slot stuck at claimed+1 forever,
// since no later consumer revisits that head value. So when the slot
// isn't ready, TryReceive spins in place (bounded by the configured
// spin budget) rather than claiming it speculatively; it reports Empty
// only once head has caught up with tail with no ready slot in sight,
// or once the spin budget is exhausted waiting on a stalled producer.
func (c *Channel) TryReceive(buf []byte) (MessageMeta, int, error) {
	sw := spinWait{}
	for i := 0; i < c.cfg.SpinBudget; i++ {
		head := c.head.Load()
		tail := c.tail.Load()
		if head >= tail {
			return MessageMeta{}, 0, newError(CodeEmpty, "TryReceive", nil)
		}

		idx := head & c.mask
		seq := c.slotSeq(idx)
		if seq.Load() != head+1 {
			// Claimed by a producer (tail already passed it) but not
			// yet published. Spin in place; do not touch head.
			sw.once(c.cfg.SpinYieldAfter)
			continue
		}

		if c.head.CompareAndSwap(head, head+1) {
			return c.consume(head, idx, seq, buf)
		}
		// Another consumer claimed first; retry with a fresh head.
	}
	return MessageMeta{}, 0, newError(CodeEmpty, "TryReceive",
		pkgerrors.New("spin budget exhausted waiting for a ready slot"))
}

// consume reads slot `idx` out once its sequence has already been
// confirmed == claimed+1 and this goroutine has won the CAS claiming
// `claimed` as its head value, then re-arms the slot for the next
// producer generation by release-storing sequence = claimed + capacity
// (spec §4.3 step 4). No further wait is needed here: readiness was
// established before the CAS, and winning the CAS is what grants
// exclusive rights to this slot's current contents.
func (c *Channel) consume(claimed, idx uint64, seq *atomic.Uint64, buf []byte) (MessageMeta, int, error) {
	meta, n, err := decodeMeta(c.band, slotOffset(idx), buf)
	if err != nil {
		c.region.logb.corruption("TryReceive", c.id, err)
		return meta, 0, err
	}

	seq.Store(claimed + c.capacity) // release: re-arms slot for next generation
	return meta, n, nil
}

// ReceiveWithTimeout blocks until a message is available or timeout
// elapses, per spec §4.3's receive_with_timeout. It polls TryReceive
// with the same escalating backoff as the spin primitives elsewhere in
// this package, since spec §5 specifies cooperative, timeout-driven
// cancellation rather than a kernel futex.
func (c *Channel) ReceiveWithTimeout(buf []byte, timeout time.Duration) (MessageMeta, int, error) {
	deadline := time.Now().Add(timeout)
	sw := spinWait{}
	sleep := time.Microsecond

	for {
		meta, n, err := c.TryReceive(buf)
		if err == nil {
			return meta, n, nil
		}
		var derr *Error
		if !errors.As(err, &derr) || derr.Code != CodeEmpty {
			return meta, n, err
		}

		if !time.Now().Before(deadline) {
			return MessageMeta{}, 0, newError(CodeTimeout, "ReceiveWithTimeout",
				pkgerrors.Errorf("no message within %s", timeout))
		}

		sw.once(c.cfg.SpinYieldAfter)
		if sw.iterations() >= c.cfg.SpinYieldAfter {
			time.Sleep(sleep)
			if sleep < time.Millisecond {
				sleep *= 2
			}
		}
	}
}
