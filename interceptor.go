package rtprtx

import (
	"io"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"

	"github.com/reynaldo-samsung/rtprtx/internal/util"
)

// SenderInterceptorFactory is a interceptor.Factory for a SenderInterceptor.
type SenderInterceptorFactory struct {
	opts []SenderOption
}

// NewSenderInterceptor returns a new SenderInterceptorFactory.
func NewSenderInterceptor(opts ...SenderOption) (*SenderInterceptorFactory, error) {
	return &SenderInterceptorFactory{opts: opts}, nil
}

// NewInterceptor constructs a new SenderInterceptor.
func (f *SenderInterceptorFactory) NewInterceptor(_ string) (interceptor.Interceptor, error) {
	return &SenderInterceptor{
		sender:  NewSender(f.opts...),
		ptMap:   map[uint8]uint8{},
		ssrcMap: map[uint32]uint32{},
	}, nil
}

// SenderInterceptor plugs a Sender into a pion interceptor chain. Outgoing
// packets of streams negotiated with an RTX encoding are retained, NACKs
// read from the RTCP stream are answered with RTX packets written right
// before the next outgoing packet of the chain.
type SenderInterceptor struct {
	interceptor.NoOp
	sender *Sender

	mu      sync.Mutex
	ptMap   map[uint8]uint8
	ssrcMap map[uint32]uint32
}

// Sender exposes the underlying Sender, e.g. for statistics or collision
// events delivered out of band.
func (s *SenderInterceptor) Sender() *Sender {
	return s.sender
}

// BindRTCPReader lets the interceptor eavesdrop on incoming RTCP and turn
// transport layer NACKs into retransmission requests.
func (s *SenderInterceptor) BindRTCPReader(reader interceptor.RTCPReader) interceptor.RTCPReader {
	return interceptor.RTCPReaderFunc(func(b []byte, a interceptor.Attributes) (int, interceptor.Attributes, error) {
		n, attr, err := reader.Read(b, a)
		if err != nil {
			return n, attr, err
		}

		pkts, err := rtcp.Unmarshal(b[:n])
		if err != nil {
			return n, attr, err
		}
		for _, pkt := range pkts {
			if nack, ok := pkt.(*rtcp.TransportLayerNack); ok {
				s.sender.ProcessNack(nack)
			}
		}

		return n, attr, nil
	})
}

// BindLocalStream wraps the writer of streams that negotiated an RTX
// encoding. Streams without one are passed through untouched.
func (s *SenderInterceptor) BindLocalStream(info *interceptor.StreamInfo, writer interceptor.RTPWriter) interceptor.RTPWriter {
	if info.SSRCRetransmission == 0 || info.PayloadTypeRetransmission == 0 {
		return writer
	}

	s.mu.Lock()
	s.ptMap[info.PayloadType] = info.PayloadTypeRetransmission
	s.ssrcMap[info.SSRC] = info.SSRCRetransmission
	s.sender.SetSSRCMap(s.ssrcMap)
	s.sender.SetPayloadTypeMap(s.ptMap)
	s.mu.Unlock()
	s.sender.SetClockRate(info.SSRC, info.ClockRate)

	return interceptor.RTPWriterFunc(func(header *rtp.Header, payload []byte, attributes interceptor.Attributes) (int, error) {
		writeErrs := []error{}
		pkt := &rtp.Packet{Header: *header, Payload: payload}
		for _, rtxPacket := range s.sender.Send(pkt) {
			if _, err := writer.Write(&rtxPacket.Header, rtxPacket.Payload, attributes); err != nil {
				writeErrs = append(writeErrs, err)
			}
		}

		n, err := writer.Write(header, payload, attributes)
		writeErrs = append(writeErrs, err)
		return n, util.FlattenErrs(writeErrs)
	})
}

// ReceiverInterceptorFactory is a interceptor.Factory for a
// ReceiverInterceptor.
type ReceiverInterceptorFactory struct {
	opts []ReceiverOption
}

// NewReceiverInterceptor returns a new ReceiverInterceptorFactory.
func NewReceiverInterceptor(opts ...ReceiverOption) (*ReceiverInterceptorFactory, error) {
	return &ReceiverInterceptorFactory{opts: opts}, nil
}

// NewInterceptor constructs a new ReceiverInterceptor.
func (f *ReceiverInterceptorFactory) NewInterceptor(_ string) (interceptor.Interceptor, error) {
	return &ReceiverInterceptor{
		receiver: NewReceiver(f.opts...),
		ptMap:    map[uint8]uint8{},
	}, nil
}

// ReceiverInterceptor plugs a Receiver into a pion interceptor chain. RTX
// packets on the remote stream read path are unwrapped in place, outgoing
// NACKs are registered as pending requests and rejected sequence numbers
// are filtered out before the NACK leaves the chain.
type ReceiverInterceptor struct {
	interceptor.NoOp
	receiver *Receiver

	mu    sync.Mutex
	ptMap map[uint8]uint8
}

// Receiver exposes the underlying Receiver.
func (r *ReceiverInterceptor) Receiver() *Receiver {
	return r.receiver
}

// BindRTCPWriter intercepts outgoing transport layer NACKs. Sequence
// numbers whose request is rejected (conflicting outstanding request, see
// Receiver.RequestRetransmission) are removed; a NACK with nothing left is
// swallowed entirely.
func (r *ReceiverInterceptor) BindRTCPWriter(writer interceptor.RTCPWriter) interceptor.RTCPWriter {
	return interceptor.RTCPWriterFunc(func(pkts []rtcp.Packet, attributes interceptor.Attributes) (int, error) {
		out := make([]rtcp.Packet, 0, len(pkts))
		for _, pkt := range pkts {
			nack, ok := pkt.(*rtcp.TransportLayerNack)
			if !ok {
				out = append(out, pkt)
				continue
			}

			allowed := []uint16{}
			for _, pair := range nack.Nacks {
				pair.Range(func(sequenceNumber uint16) bool {
					if r.receiver.RequestRetransmission(nack.MediaSSRC, sequenceNumber) {
						allowed = append(allowed, sequenceNumber)
					}
					return true
				})
			}
			if len(allowed) == 0 {
				continue
			}

			filtered := *nack
			filtered.Nacks = rtcp.NackPairsFromSequenceNumbers(allowed)
			out = append(out, &filtered)
		}

		if len(out) == 0 {
			return 0, nil
		}
		return writer.Write(out, attributes)
	})
}

// BindRemoteStream wraps the reader of streams that negotiated an RTX
// encoding. Master packets pass through unchanged, RTX packets are either
// rewritten into their original-looking form or skipped when they cannot
// be attributed to a master stream.
func (r *ReceiverInterceptor) BindRemoteStream(info *interceptor.StreamInfo, reader interceptor.RTPReader) interceptor.RTPReader {
	if info.PayloadTypeRetransmission != 0 {
		r.mu.Lock()
		r.ptMap[info.PayloadType] = info.PayloadTypeRetransmission
		r.receiver.SetPayloadTypeMap(r.ptMap)
		r.mu.Unlock()
	}

	return interceptor.RTPReaderFunc(func(b []byte, a interceptor.Attributes) (int, interceptor.Attributes, error) {
		for {
			n, attr, err := reader.Read(b, a)
			if err != nil {
				return n, attr, err
			}

			pkt := &rtp.Packet{}
			if err := pkt.Unmarshal(b[:n]); err != nil {
				return n, attr, err
			}

			out := r.receiver.Receive(pkt)
			if out == nil {
				// Unattributable RTX packet, hand the caller the next one.
				continue
			}
			if out == pkt {
				return n, attr, nil
			}

			decoded, err := out.Marshal()
			if err != nil {
				return n, attr, err
			}
			if len(decoded) > len(b) {
				return n, attr, io.ErrShortBuffer
			}
			copy(b, decoded)
			return len(decoded), attr, nil
		}
	})
}
