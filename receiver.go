package rtprtx

import (
	"sync"

	"github.com/pion/logging"
	"github.com/pion/rtp"
	"github.com/sirupsen/logrus"
)

// Receiver associates incoming RTX streams with their master streams and
// unwraps RTX packets into original-looking ones.
//
// Association works without signaling beyond the payload type map: every
// accepted retransmission request is remembered as seqnum to master SSRC,
// and the first RTX packet whose original sequence number matches a pending
// request reveals which SSRC carries retransmissions for that master. Once
// made, an association is permanent until Reset.
//
// All methods are safe for concurrent use; one mutex guards the tables and
// counters, decoding happens outside of it.
type Receiver struct {
	mu sync.Mutex

	// pendingRequests maps a requested sequence number to the master SSRC
	// it was requested for. At most one entry may exist per sequence
	// number, see RFC 4588 on outstanding requests.
	pendingRequests map[uint16]uint32

	rtxToMaster map[uint32]uint32
	masterToRTX map[uint32]uint32

	// rtxToOriginalPT is the inverse of the configured payload type map,
	// indexed by the RTX payload type seen on the wire.
	rtxToOriginalPT map[uint8]uint8
	staged          payloadTypeCell

	requestsReceived uint32
	packetsReceived  uint32
	packetsAssoc     uint32

	log logging.LeveledLogger
}

// ReceiverOption configures a Receiver.
type ReceiverOption func(*Receiver)

// ReceiverPayloadTypeMap sets the map of original payload types to their
// retransmission payload types. Packets whose payload type is a value of
// the map are treated as RTX.
func ReceiverPayloadTypeMap(m map[uint8]uint8) ReceiverOption {
	return func(r *Receiver) {
		r.SetPayloadTypeMap(m)
	}
}

// ReceiverLoggerFactory sets the logger factory used by the Receiver.
func ReceiverLoggerFactory(f logging.LoggerFactory) ReceiverOption {
	return func(r *Receiver) {
		r.log = f.NewLogger("rtprtx_receiver")
	}
}

// NewReceiver returns a Receiver with empty tables.
func NewReceiver(opts ...ReceiverOption) *Receiver {
	r := &Receiver{
		pendingRequests: map[uint16]uint32{},
		rtxToMaster:     map[uint32]uint32{},
		masterToRTX:     map[uint32]uint32{},
		rtxToOriginalPT: map[uint8]uint8{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logging.NewDefaultLoggerFactory().NewLogger("rtprtx_receiver")
	}
	return r
}

// RequestRetransmission registers an outgoing retransmission request for
// sequenceNumber of the master stream ssrc. The return value reports
// whether the request may be forwarded to the sender: it is false only
// when an outstanding request for the same sequence number already names a
// different master stream. In that case both requests are discarded,
// because a later RTX packet carrying that sequence number could not be
// attributed to either stream (RFC 4588).
func (r *Receiver) RequestRetransmission(ssrc uint32, sequenceNumber uint16) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.requestsReceived++

	// Once the master already has a known RTX stream there is nothing to
	// remember, the mapping is usable immediately.
	if _, associated := r.masterToRTX[ssrc]; associated {
		return true
	}

	if pendingMaster, ok := r.pendingRequests[sequenceNumber]; ok {
		if pendingMaster == ssrc {
			// Duplicate request, the jitter buffer got impatient or the
			// RTX packet was lost as well. Still worth forwarding.
			r.log.Debugf("duplicate request, seqnum %d ssrc %d", sequenceNumber, ssrc)
			return true
		}
		r.log.Debugf("rejecting request for seqnum %d from ssrc %d, pending for ssrc %d",
			sequenceNumber, ssrc, pendingMaster)
		delete(r.pendingRequests, sequenceNumber)
		return false
	}

	r.pendingRequests[sequenceNumber] = ssrc
	return true
}

// Receive classifies pkt and returns what should travel downstream: pkt
// itself for master stream traffic, a freshly decoded packet for an RTX
// packet that could be attributed to its master stream, or nil when the
// packet must be dropped because no association could be made. A drop is a
// normal outcome of the race between request retries and network delay.
func (r *Receiver) Receive(pkt *rtp.Packet) *rtp.Packet {
	r.mu.Lock()
	r.staged.apply(r.rtxToOriginalPT, true)

	originalPT, isRTX := r.rtxToOriginalPT[pkt.PayloadType]
	if !isRTX {
		r.mu.Unlock()
		return pkt
	}

	r.packetsReceived++

	osn, ok := readOSN(pkt.Payload)
	if !ok {
		r.mu.Unlock()
		r.log.Debugf("dropping rtx packet from ssrc %d, payload too short", pkt.SSRC)
		return nil
	}

	master, associated := r.rtxToMaster[pkt.SSRC]
	if !associated {
		pendingMaster, pending := r.pendingRequests[osn]
		if !pending {
			r.mu.Unlock()
			r.log.Debugf("dropping rtx packet, osn %d is not pending", osn)
			return nil
		}

		// This packet resolves the pending request: from now on pkt.SSRC
		// is known to carry retransmissions for pendingMaster.
		delete(r.pendingRequests, osn)
		if pendingMaster == pkt.SSRC {
			r.log.Warnf("refusing to associate ssrc %d with itself", pkt.SSRC)
			r.mu.Unlock()
			return nil
		}
		r.rtxToMaster[pkt.SSRC] = pendingMaster
		r.masterToRTX[pendingMaster] = pkt.SSRC
		master = pendingMaster
		r.log.Debugf("associated rtx stream %d with master stream %d via seqnum %d",
			pkt.SSRC, master, osn)
	}

	r.packetsAssoc++
	r.mu.Unlock()

	decoded, err := decodeRTX(pkt, master, originalPT)
	if err != nil {
		// Unreachable, the prefix length was checked above.
		r.log.Errorf("decoding rtx packet: %v", err)
		return nil
	}
	logrus.WithFields(logrus.Fields{
		"type":           "INTENSIVE",
		"subcomponent":   "rtprtx",
		"ssrc":           decoded.SSRC,
		"sequenceNumber": decoded.SequenceNumber,
		"rtxSSRC":        pkt.SSRC,
	}).Trace("recovered packet..")
	return decoded
}

// ReceiverStats are the observability counters of a Receiver.
type ReceiverStats struct {
	// RequestsReceived counts retransmission request events seen.
	RequestsReceived uint32
	// PacketsReceived counts packets classified as RTX.
	PacketsReceived uint32
	// PacketsAssociated counts RTX packets successfully attributed to a
	// master stream.
	PacketsAssociated uint32
}

// Stats returns a snapshot of the counters.
func (r *Receiver) Stats() ReceiverStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ReceiverStats{
		RequestsReceived:  r.requestsReceived,
		PacketsReceived:   r.packetsReceived,
		PacketsAssociated: r.packetsAssoc,
	}
}

// SetPayloadTypeMap stages a new original to RTX payload type map. It is
// applied atomically before the next packet, never mid-packet.
func (r *Receiver) SetPayloadTypeMap(m map[uint8]uint8) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.staged.stage(m)
}

// Reset drops all associations, pending requests and counters. The payload
// type map survives.
func (r *Receiver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pendingRequests = map[uint16]uint32{}
	r.rtxToMaster = map[uint32]uint32{}
	r.masterToRTX = map[uint32]uint32{}
	r.requestsReceived = 0
	r.packetsReceived = 0
	r.packetsAssoc = 0
}
