package rtprtx

import (
	"encoding/binary"

	"github.com/pion/rtp"
)

// encodeRTX builds an RTX packet from a stored original. The fixed header
// and any extension are carried over as-is, the payload becomes the 2 byte
// big-endian original sequence number followed by the original payload.
// The padding flag is cleared, downstream framing re-adds padding if it
// wants any (RFC 4588 section 4).
func encodeRTX(original *rtp.Packet, rtxSSRC uint32, rtxSequence uint16, rtxPayloadType uint8) *rtp.Packet {
	header := original.Header.Clone()
	header.SSRC = rtxSSRC
	header.SequenceNumber = rtxSequence
	header.PayloadType = rtxPayloadType
	header.Padding = false

	payload := make([]byte, osnSize+len(original.Payload))
	binary.BigEndian.PutUint16(payload, original.SequenceNumber)
	copy(payload[osnSize:], original.Payload)

	return &rtp.Packet{Header: header, Payload: payload}
}

// decodeRTX restores the original-looking packet from an RTX packet once
// its master stream is known. The sender never adds padding to RTX packets
// but intermediaries may, so trailing padding is preserved byte for byte.
func decodeRTX(pkt *rtp.Packet, masterSSRC uint32, originalPayloadType uint8) (*rtp.Packet, error) {
	if len(pkt.Payload) < osnSize {
		return nil, ErrShortRTXPayload
	}

	header := pkt.Header.Clone()
	header.SSRC = masterSSRC
	header.SequenceNumber = binary.BigEndian.Uint16(pkt.Payload)
	header.PayloadType = originalPayloadType

	payload := make([]byte, len(pkt.Payload)-osnSize)
	copy(payload, pkt.Payload[osnSize:])

	return &rtp.Packet{Header: header, Payload: payload, PaddingSize: pkt.PaddingSize}, nil
}

// readOSN extracts the original sequence number from an RTX payload.
func readOSN(payload []byte) (uint16, bool) {
	if len(payload) < osnSize {
		return 0, false
	}
	return binary.BigEndian.Uint16(payload), true
}
