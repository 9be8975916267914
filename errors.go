package rtprtx

import "errors"

var (
	// ErrSSRCExhausted is returned when no unique RTX SSRC could be drawn
	// within the retry budget. With 32 bit SSRCs this only happens when the
	// session already holds an absurd number of streams.
	ErrSSRCExhausted = errors.New("rtprtx: could not allocate a unique rtx ssrc")

	// ErrShortRTXPayload is returned when an RTX payload is too short to
	// carry the original sequence number prefix.
	ErrShortRTXPayload = errors.New("rtprtx: rtx payload shorter than the osn prefix")
)
