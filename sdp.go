package rtprtx

import (
	"strconv"
	"strings"

	"github.com/pion/sdp/v3"
	"github.com/pkg/errors"
)

// RTXPayloadTypes extracts the original to RTX payload type map from a
// session description. An RTX stream is advertised as an rtpmap entry with
// encoding name "rtx" and an fmtp line whose apt parameter names the
// original payload type:
//
//	a=rtpmap:97 rtx/90000
//	a=fmtp:97 apt=96
//
// The returned map is suitable for SenderPayloadTypeMap and
// ReceiverPayloadTypeMap. RTX entries without an apt parameter are skipped.
func RTXPayloadTypes(desc *sdp.SessionDescription) (map[uint8]uint8, error) {
	m := map[uint8]uint8{}

	for _, media := range desc.MediaDescriptions {
		rtxTypes := map[uint8]bool{}

		for _, attr := range media.Attributes {
			if attr.Key != "rtpmap" {
				continue
			}
			fields := strings.Fields(attr.Value)
			if len(fields) != 2 || !strings.HasPrefix(strings.ToLower(fields[1]), "rtx/") {
				continue
			}
			pt, err := strconv.ParseUint(fields[0], 10, 8)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid rtpmap payload type %q", fields[0])
			}
			rtxTypes[uint8(pt)] = true
		}

		for _, attr := range media.Attributes {
			if attr.Key != "fmtp" {
				continue
			}
			fields := strings.SplitN(attr.Value, " ", 2)
			if len(fields) != 2 {
				continue
			}
			pt, err := strconv.ParseUint(fields[0], 10, 8)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid fmtp payload type %q", fields[0])
			}
			if !rtxTypes[uint8(pt)] {
				continue
			}
			apt, ok := parseAPT(fields[1])
			if !ok {
				continue
			}
			m[apt] = uint8(pt)
		}
	}

	return m, nil
}

// parseAPT pulls the associated payload type out of an RTX fmtp parameter
// list, e.g. "apt=96".
func parseAPT(params string) (uint8, bool) {
	for _, param := range strings.Split(params, ";") {
		param = strings.TrimSpace(param)
		if !strings.HasPrefix(param, "apt=") {
			continue
		}
		apt, err := strconv.ParseUint(strings.TrimPrefix(param, "apt="), 10, 8)
		if err != nil {
			return 0, false
		}
		return uint8(apt), true
	}
	return 0, false
}
