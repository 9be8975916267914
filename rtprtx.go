// Package rtprtx implements RTP retransmission (RFC 4588) for
// SSRC-multiplexed sessions.
//
// The package provides two independent units that share the wire format but
// no state. A Sender keeps a bounded history of outgoing packets and answers
// retransmission requests by repackaging stored packets as RTX packets on an
// auxiliary stream. A Receiver discovers which RTX stream belongs to which
// media stream using only the requested sequence numbers, then unwraps RTX
// packets back into original-looking packets.
//
// An RTX payload is the 2 byte big-endian original sequence number followed
// by the original payload, everything else is ordinary RTP.
package rtprtx

const (
	defaultMaxSizeTime    = 0
	defaultMaxSizePackets = 100
)

// osnSize is the length of the original sequence number prefix carried in
// every RTX payload.
const osnSize = 2
