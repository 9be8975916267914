package rtprtx

import (
	"testing"

	"github.com/pion/sdp/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseSessionDescription(t *testing.T, raw string) *sdp.SessionDescription {
	t.Helper()
	desc := &sdp.SessionDescription{}
	require.NoError(t, desc.Unmarshal([]byte(raw)))
	return desc
}

func TestRTXPayloadTypes(t *testing.T) {
	desc := parseSessionDescription(t, "v=0\r\n"+
		"o=- 0 0 IN IP4 127.0.0.1\r\n"+
		"s=-\r\n"+
		"t=0 0\r\n"+
		"m=video 9 UDP/TLS/RTP/SAVPF 96 97 98 99\r\n"+
		"c=IN IP4 0.0.0.0\r\n"+
		"a=rtpmap:96 VP8/90000\r\n"+
		"a=rtpmap:97 rtx/90000\r\n"+
		"a=fmtp:97 apt=96\r\n"+
		"a=rtpmap:98 VP9/90000\r\n"+
		"a=rtpmap:99 rtx/90000\r\n"+
		"a=fmtp:99 apt=98\r\n"+
		"m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n"+
		"c=IN IP4 0.0.0.0\r\n"+
		"a=rtpmap:111 opus/48000/2\r\n"+
		"a=fmtp:111 minptime=10;useinbandfec=1\r\n")

	m, err := RTXPayloadTypes(desc)
	require.NoError(t, err)
	assert.Equal(t, map[uint8]uint8{96: 97, 98: 99}, m)
}

func TestRTXPayloadTypesNoRTX(t *testing.T) {
	desc := parseSessionDescription(t, "v=0\r\n"+
		"o=- 0 0 IN IP4 127.0.0.1\r\n"+
		"s=-\r\n"+
		"t=0 0\r\n"+
		"m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n"+
		"c=IN IP4 0.0.0.0\r\n"+
		"a=rtpmap:111 opus/48000/2\r\n")

	m, err := RTXPayloadTypes(desc)
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestRTXPayloadTypesSkipsRTXWithoutAPT(t *testing.T) {
	desc := parseSessionDescription(t, "v=0\r\n"+
		"o=- 0 0 IN IP4 127.0.0.1\r\n"+
		"s=-\r\n"+
		"t=0 0\r\n"+
		"m=video 9 UDP/TLS/RTP/SAVPF 96 97\r\n"+
		"c=IN IP4 0.0.0.0\r\n"+
		"a=rtpmap:96 VP8/90000\r\n"+
		"a=rtpmap:97 rtx/90000\r\n"+
		"a=fmtp:97 rtx-time=3000\r\n")

	m, err := RTXPayloadTypes(desc)
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestParseAPT(t *testing.T) {
	apt, ok := parseAPT("apt=96")
	require.True(t, ok)
	assert.Equal(t, uint8(96), apt)

	apt, ok = parseAPT("rtx-time=3000; apt=127")
	require.True(t, ok)
	assert.Equal(t, uint8(127), apt)

	_, ok = parseAPT("rtx-time=3000")
	assert.False(t, ok)

	_, ok = parseAPT("apt=banana")
	assert.False(t, ok)
}
