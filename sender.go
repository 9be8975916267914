package rtprtx

import (
	"math"
	"sync"

	"github.com/pion/logging"
	"github.com/pion/randutil"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/sirupsen/logrus"
)

// Sender keeps a history of outgoing RTP packets and answers retransmission
// requests by emitting RFC 4588 RTX packets on an auxiliary stream.
//
// All methods are safe for concurrent use. A single mutex guards the whole
// state; RTX packets are constructed after the lock is released, from a
// snapshot taken under it, so a slow downstream writer never extends the
// critical section.
type Sender struct {
	mu         sync.Mutex
	histories  map[uint32]*streamHistory
	assignment *ssrcAssignment
	pending    []*rtp.Packet

	ptMap  map[uint8]uint8
	staged payloadTypeCell

	maxSizeTime    uint32
	maxSizePackets uint16

	requestsReceived     uint32
	packetsRetransmitted uint32

	rand randutil.MathRandomGenerator
	log  logging.LeveledLogger
}

// SenderOption configures a Sender.
type SenderOption func(*Sender)

// SenderMaxSizeTime bounds the history of every stream to the given media
// time span in milliseconds. Zero means unbounded.
func SenderMaxSizeTime(ms uint32) SenderOption {
	return func(s *Sender) {
		s.maxSizeTime = ms
	}
}

// SenderMaxSizePackets bounds the history of every stream to the given
// packet count. Zero means unbounded.
func SenderMaxSizePackets(n uint16) SenderOption {
	return func(s *Sender) {
		s.maxSizePackets = n
	}
}

// SenderSSRCMap supplies fixed RTX SSRCs for the given master SSRCs
// instead of random ones. Overrides are consulted when a master stream is
// first seen and are still validated for uniqueness.
func SenderSSRCMap(m map[uint32]uint32) SenderOption {
	return func(s *Sender) {
		s.SetSSRCMap(m)
	}
}

// SenderPayloadTypeMap sets the map of original payload types to their
// retransmission payload types. Only packets whose payload type is a key of
// the map are retained.
func SenderPayloadTypeMap(m map[uint8]uint8) SenderOption {
	return func(s *Sender) {
		s.SetPayloadTypeMap(m)
	}
}

// SenderLoggerFactory sets the logger factory used by the Sender.
func SenderLoggerFactory(f logging.LoggerFactory) SenderOption {
	return func(s *Sender) {
		s.log = f.NewLogger("rtprtx_sender")
	}
}

// NewSender returns a Sender with an empty history.
func NewSender(opts ...SenderOption) *Sender {
	s := &Sender{
		histories:      map[uint32]*streamHistory{},
		assignment:     newSSRCAssignment(),
		ptMap:          map[uint8]uint8{},
		maxSizeTime:    defaultMaxSizeTime,
		maxSizePackets: defaultMaxSizePackets,
		rand:           randutil.NewMathRandomGenerator(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logging.NewDefaultLoggerFactory().NewLogger("rtprtx_sender")
	}
	return s
}

// rtxJob is the state snapshotted under the lock for one retransmission,
// so encoding can happen after release.
type rtxJob struct {
	original    *rtp.Packet
	ssrc        uint32
	sequence    uint16
	payloadType uint8
}

// Send records pkt in the history of its stream and returns the RTX
// packets that became due since the last call. The caller owns forwarding:
// returned packets should be written out before pkt itself, which always
// travels unmodified.
func (s *Sender) Send(pkt *rtp.Packet) []*rtp.Packet {
	s.mu.Lock()
	s.staged.apply(s.ptMap, false)

	// Packets with an unknown payload type can never be retransmitted, so
	// they are not retained.
	if _, eligible := s.ptMap[pkt.PayloadType]; eligible {
		if history, err := s.historyLocked(pkt.SSRC); err != nil {
			s.log.Warnf("dropping packet from history, ssrc %d: %v", pkt.SSRC, err)
		} else {
			history.push(pkt.Clone(), s.maxSizePackets, s.maxSizeTime)
		}
	}

	var jobs []rtxJob
	if len(s.pending) > 0 {
		jobs = make([]rtxJob, 0, len(s.pending))
		for _, original := range s.pending {
			history, err := s.historyLocked(original.SSRC)
			if err != nil {
				continue
			}
			jobs = append(jobs, rtxJob{
				original:    original,
				ssrc:        history.rtxSSRC,
				sequence:    history.nextSequenceNumber(),
				payloadType: s.rtxPayloadTypeLocked(original.PayloadType),
			})
		}
		s.pending = nil
		s.packetsRetransmitted += uint32(len(jobs))
	}
	s.mu.Unlock()

	if len(jobs) == 0 {
		return nil
	}

	rtxPackets := make([]*rtp.Packet, 0, len(jobs))
	for _, job := range jobs {
		rtxPacket := encodeRTX(job.original, job.ssrc, job.sequence, job.payloadType)
		logrus.WithFields(logrus.Fields{
			"type":           "INTENSIVE",
			"subcomponent":   "rtprtx",
			"ssrc":           rtxPacket.SSRC,
			"sequenceNumber": rtxPacket.SequenceNumber,
			"osn":            job.original.SequenceNumber,
		}).Trace("outgoing rtx..")
		rtxPackets = append(rtxPackets, rtxPacket)
	}
	return rtxPackets
}

// RequestRetransmission queues the packet with the given sequence number
// for retransmission, if this Sender knows the stream and still holds the
// packet. A miss is silent, asking again is the caller's business.
func (s *Sender) RequestRetransmission(ssrc uint32, sequenceNumber uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history, ok := s.histories[ssrc]
	if !ok {
		return
	}
	s.requestsReceived++

	if pkt, found := history.lookup(sequenceNumber); found {
		s.log.Debugf("queueing retransmission, ssrc %d seqnum %d", ssrc, sequenceNumber)
		s.pending = append(s.pending, pkt)
	}
}

// ProcessNack translates a transport layer NACK into retransmission
// requests, one per lost sequence number.
func (s *Sender) ProcessNack(nack *rtcp.TransportLayerNack) {
	for _, pair := range nack.Nacks {
		pair.Range(func(sequenceNumber uint16) bool {
			s.RequestRetransmission(nack.MediaSSRC, sequenceNumber)
			return true
		})
	}
}

// HandleCollision reacts to the session reporting that ssrc is already in
// use elsewhere. A collision with one of our RTX SSRCs is repaired locally
// by drawing a fresh one; a collision with a master SSRC discards that
// stream's state so it can be rebuilt under a renegotiated SSRC. The return
// value reports whether the collision notification still concerns the rest
// of the pipeline and must be propagated.
func (s *Sender) HandleCollision(ssrc uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if master, ok := s.assignment.masterForRTX(ssrc); ok {
		fresh, err := s.assignment.reassign(ssrc)
		if err != nil {
			s.log.Warnf("could not reassign rtx ssrc %d: %v", ssrc, err)
			return false
		}
		if history, ok := s.histories[master]; ok {
			history.rtxSSRC = fresh
		}
		s.log.Debugf("rtx ssrc %d collided, now using %d", ssrc, fresh)
		return false
	}

	if s.assignment.hasMaster(ssrc) {
		s.assignment.removeMaster(ssrc)
		delete(s.histories, ssrc)
	}
	return true
}

// SetClockRate tells the Sender the media clock rate of a stream, needed
// to enforce the time bound on its history. Streams with an unknown clock
// rate are only bounded by packet count.
func (s *Sender) SetClockRate(ssrc, clockRate uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history, err := s.historyLocked(ssrc)
	if err != nil {
		s.log.Warnf("cannot track clock rate for ssrc %d: %v", ssrc, err)
		return
	}
	history.clockRate = clockRate
}

// SetPayloadTypeMap stages a new original to RTX payload type map. It is
// applied atomically before the next packet, never mid-packet.
func (s *Sender) SetPayloadTypeMap(m map[uint8]uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staged.stage(m)
}

// SetSSRCMap replaces the master to RTX SSRC overrides. Entries only take
// effect for master streams not seen yet.
func (s *Sender) SetSSRCMap(m map[uint32]uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	overrides := make(map[uint32]uint32, len(m))
	for master, rtx := range m {
		overrides[master] = rtx
	}
	s.assignment.overrides = overrides
}

// SetMaxSizeTime updates the history time bound in milliseconds, zero
// meaning unbounded.
func (s *Sender) SetMaxSizeTime(ms uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxSizeTime = ms
}

// SetMaxSizePackets updates the history packet count bound, zero meaning
// unbounded.
func (s *Sender) SetMaxSizePackets(n uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxSizePackets = n
}

// SenderStats are the observability counters of a Sender.
type SenderStats struct {
	// RequestsReceived counts retransmission requests addressed to a
	// stream this Sender knows.
	RequestsReceived uint32
	// PacketsRetransmitted counts RTX packets handed to the caller.
	PacketsRetransmitted uint32
}

// Stats returns a snapshot of the counters.
func (s *Sender) Stats() SenderStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SenderStats{
		RequestsReceived:     s.requestsReceived,
		PacketsRetransmitted: s.packetsRetransmitted,
	}
}

// Reset drops all stream state, pending retransmissions and counters.
// Configuration (limits, payload type map, SSRC overrides) survives.
func (s *Sender) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.histories = map[uint32]*streamHistory{}
	s.assignment.clear()
	s.pending = nil
	s.requestsReceived = 0
	s.packetsRetransmitted = 0
}

// historyLocked returns the history of a master stream, creating it and
// assigning an RTX SSRC on first sight. Must be called with s.mu held.
func (s *Sender) historyLocked(master uint32) (*streamHistory, error) {
	if history, ok := s.histories[master]; ok {
		return history, nil
	}
	rtxSSRC, err := s.assignment.resolve(master)
	if err != nil {
		return nil, err
	}
	history := newStreamHistory(rtxSSRC, uint16(s.rand.Intn(math.MaxUint16)))
	s.histories[master] = history
	return history, nil
}

// rtxPayloadTypeLocked resolves the payload type to stamp on an RTX
// packet. When the map carries no usable entry the original type plus one
// is used as a last resort; real deployments are expected to configure the
// map, so this is loud.
func (s *Sender) rtxPayloadTypeLocked(original uint8) uint8 {
	if rtxPT, ok := s.ptMap[original]; ok && rtxPT >= 96 {
		return rtxPT
	}
	fallback := original + 1
	s.log.Warnf("no rtx payload type configured for %d, falling back to %d", original, fallback)
	return fallback
}
