package rtprtx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryBoundedByCount(t *testing.T) {
	h := newStreamHistory(5000, 0)
	for seq := uint16(1); seq <= 4; seq++ {
		h.push(newTestPacket(100, seq, uint32(seq)*3000, 96, []byte{0x01}), 3, 0)
	}

	assert.Len(t, h.packets, 3)

	_, found := h.lookup(1)
	assert.False(t, found, "oldest packet should have been evicted")

	pkt, found := h.lookup(3)
	require.True(t, found)
	assert.Equal(t, uint16(3), pkt.SequenceNumber)
}

func TestHistoryUnboundedWhenZero(t *testing.T) {
	h := newStreamHistory(5000, 0)
	for seq := uint16(0); seq < 500; seq++ {
		h.push(newTestPacket(100, seq, uint32(seq), 96, nil), 0, 0)
	}
	assert.Len(t, h.packets, 500)
}

func TestHistoryLookupAcrossWrap(t *testing.T) {
	h := newStreamHistory(5000, 0)
	for _, seq := range []uint16{65534, 65535, 0, 1} {
		h.push(newTestPacket(100, seq, 0, 96, nil), 0, 0)
	}

	for _, seq := range []uint16{65534, 65535, 0, 1} {
		pkt, found := h.lookup(seq)
		require.True(t, found, "seqnum %d", seq)
		assert.Equal(t, seq, pkt.SequenceNumber)
	}

	_, found := h.lookup(2)
	assert.False(t, found)
}

func TestHistoryBoundedByTimeSpan(t *testing.T) {
	h := newStreamHistory(5000, 0)
	h.clockRate = 90000

	// 9000 ticks at 90kHz are 100ms.
	h.push(newTestPacket(100, 1, 0, 96, nil), 0, 100)
	h.push(newTestPacket(100, 2, 4500, 96, nil), 0, 100)
	h.push(newTestPacket(100, 3, 18000, 96, nil), 0, 100)

	_, found := h.lookup(1)
	assert.False(t, found)
	_, found = h.lookup(2)
	assert.False(t, found)
	_, found = h.lookup(3)
	assert.True(t, found)
}

func TestHistoryTimeSpanAcrossTimestampWrap(t *testing.T) {
	h := newStreamHistory(5000, 0)
	h.clockRate = 90000

	// The timestamp wraps between the two packets; the real span is 512
	// ticks (~5ms), far below the bound, so nothing may be evicted.
	h.push(newTestPacket(100, 1, 0xFFFFFF00, 96, nil), 0, 100)
	h.push(newTestPacket(100, 2, 0x100, 96, nil), 0, 100)

	assert.Len(t, h.packets, 2)
	assert.Equal(t, uint64(5), h.spanMillis())
}

func TestHistoryUnknownClockRateSkipsTimeEviction(t *testing.T) {
	h := newStreamHistory(5000, 0)

	h.push(newTestPacket(100, 1, 0, 96, nil), 0, 1)
	h.push(newTestPacket(100, 2, 1<<30, 96, nil), 0, 1)

	assert.Len(t, h.packets, 2)
}

func TestHistoryNextSequenceNumberWraps(t *testing.T) {
	h := newStreamHistory(5000, 65535)
	assert.Equal(t, uint16(65535), h.nextSequenceNumber())
	assert.Equal(t, uint16(0), h.nextSequenceNumber())
	assert.Equal(t, uint16(1), h.nextSequenceNumber())
}
