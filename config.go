package rtprtx

// payloadTypeCell stages payload type map updates so they never apply in
// the middle of a packet. Writers replace the pending map and raise the
// dirty flag, the owning unit swaps the staged value in under its lock at
// the start of the next packet.
type payloadTypeCell struct {
	pending map[uint8]uint8
	dirty   bool
}

func (c *payloadTypeCell) stage(m map[uint8]uint8) {
	staged := make(map[uint8]uint8, len(m))
	for original, rtx := range m {
		staged[original] = rtx
	}
	c.pending = staged
	c.dirty = true
}

// apply copies the staged map into dst when dirty, optionally inverting it
// (the receiver indexes by RTX payload type). Returns whether dst changed.
// Must be called under the owning unit's lock.
func (c *payloadTypeCell) apply(dst map[uint8]uint8, invert bool) bool {
	if !c.dirty {
		return false
	}
	for pt := range dst {
		delete(dst, pt)
	}
	for original, rtx := range c.pending {
		if invert {
			dst[rtx] = original
		} else {
			dst[original] = rtx
		}
	}
	c.dirty = false
	return true
}
