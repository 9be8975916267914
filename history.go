package rtprtx

import (
	"sort"

	"github.com/pion/rtp"
)

// retainedPacket is one entry of a stream history. The packet is an owned
// copy, the history keeps it until eviction and hands the same pointer to
// the encoder while a request is being serviced. Nothing mutates it after
// insertion.
type retainedPacket struct {
	sequenceNumber uint16
	timestamp      uint32
	packet         *rtp.Packet
}

// streamHistory holds the recently sent packets of one media stream
// together with the state of its retransmission stream. Packets are kept
// ordered by sequence number under circular comparison; new packets arrive
// in transmission order so insertion is a plain append and eviction always
// trims the front.
type streamHistory struct {
	rtxSSRC         uint32
	nextRTXSequence uint16
	clockRate       uint32
	packets         []retainedPacket
}

func newStreamHistory(rtxSSRC uint32, firstSequence uint16) *streamHistory {
	return &streamHistory{
		rtxSSRC:         rtxSSRC,
		nextRTXSequence: firstSequence,
	}
}

// push appends a packet and trims the front until both bounds hold.
// maxPackets and maxTimeMillis are ignored when zero. Time based eviction
// additionally needs a known clock rate to convert ticks to milliseconds.
func (h *streamHistory) push(pkt *rtp.Packet, maxPackets uint16, maxTimeMillis uint32) {
	h.packets = append(h.packets, retainedPacket{
		sequenceNumber: pkt.SequenceNumber,
		timestamp:      pkt.Timestamp,
		packet:         pkt,
	})

	if maxPackets > 0 {
		for len(h.packets) > int(maxPackets) {
			h.packets = h.packets[1:]
		}
	}
	if maxTimeMillis > 0 && h.clockRate > 0 {
		for h.spanMillis() > uint64(maxTimeMillis) {
			h.packets = h.packets[1:]
		}
	}
}

// spanMillis returns the media time distance between the oldest and newest
// retained packet.
func (h *streamHistory) spanMillis() uint64 {
	if len(h.packets) < 2 {
		return 0
	}
	oldest := h.packets[0].timestamp
	newest := h.packets[len(h.packets)-1].timestamp
	return ticksToMillis(timestampDelta(newest, oldest), h.clockRate)
}

// lookup finds the retained packet with the given sequence number. A miss
// means the packet was evicted or never stored, which is a normal outcome.
func (h *streamHistory) lookup(sequenceNumber uint16) (*rtp.Packet, bool) {
	i := sort.Search(len(h.packets), func(i int) bool {
		return seqnumCompare(h.packets[i].sequenceNumber, sequenceNumber) >= 0
	})
	if i < len(h.packets) && h.packets[i].sequenceNumber == sequenceNumber {
		return h.packets[i].packet, true
	}
	return nil, false
}

// nextSequenceNumber returns the RTX stream's private sequence counter and
// advances it. Must be called with the owning unit's lock held.
func (h *streamHistory) nextSequenceNumber() uint16 {
	seq := h.nextRTXSequence
	h.nextRTXSequence++
	return seq
}
