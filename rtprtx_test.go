package rtprtx

import "github.com/pion/rtp"

func newTestPacket(ssrc uint32, sequenceNumber uint16, timestamp uint32, payloadType uint8, payload []byte) *rtp.Packet {
	return &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			SSRC:           ssrc,
			SequenceNumber: sequenceNumber,
			Timestamp:      timestamp,
			PayloadType:    payloadType,
		},
		Payload: payload,
	}
}

// scriptedRand replays a fixed sequence of values, so collision handling
// can be exercised deterministically.
type scriptedRand struct {
	values []uint32
	next   int
}

func (s *scriptedRand) Uint32() uint32 {
	v := s.values[s.next%len(s.values)]
	s.next++
	return v
}

func (s *scriptedRand) Uint64() uint64 {
	return uint64(s.Uint32())
}

func (s *scriptedRand) Intn(n int) int {
	return int(s.Uint32() % uint32(n))
}

func (s *scriptedRand) GenerateString(n int, runes string) string {
	out := make([]byte, n)
	for i := range out {
		out[i] = runes[s.Intn(len(runes))]
	}
	return string(out)
}
