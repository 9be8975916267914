package rtprtx

import "github.com/pion/randutil"

// maxSSRCAttempts bounds the rejection loop when drawing a fresh RTX SSRC.
// The birthday bound makes repeated collisions negligible, the cap only
// exists so the loop cannot spin forever.
const maxSSRCAttempts = 100

// ssrcAssignment maps every master SSRC to a distinct RTX SSRC. Both
// directions are kept as explicit maps so that a value can never silently
// act as a key in both roles. All methods must be called with the owning
// Sender's lock held.
type ssrcAssignment struct {
	byMaster  map[uint32]uint32
	byRTX     map[uint32]uint32
	overrides map[uint32]uint32
	rand      randutil.MathRandomGenerator
}

func newSSRCAssignment() *ssrcAssignment {
	return &ssrcAssignment{
		byMaster: map[uint32]uint32{},
		byRTX:    map[uint32]uint32{},
		rand:     randutil.NewMathRandomGenerator(),
	}
}

// choose returns candidate if it collides with no SSRC in either role,
// otherwise it redraws randomly. When considerCandidate is false the first
// draw is already random.
func (a *ssrcAssignment) choose(candidate uint32, considerCandidate bool) (uint32, error) {
	ssrc := candidate
	if !considerCandidate {
		ssrc = a.rand.Uint32()
	}

	for attempts := 0; ; attempts++ {
		_, usedAsMaster := a.byMaster[ssrc]
		_, usedAsRTX := a.byRTX[ssrc]
		if !usedAsMaster && !usedAsRTX {
			return ssrc, nil
		}
		if attempts >= maxSSRCAttempts {
			return 0, ErrSSRCExhausted
		}
		ssrc = a.rand.Uint32()
	}
}

// resolve returns the RTX SSRC for master, creating the mapping on first
// sight. An externally supplied override is used as the first candidate and
// still validated for uniqueness.
func (a *ssrcAssignment) resolve(master uint32) (uint32, error) {
	if rtx, ok := a.byMaster[master]; ok {
		return rtx, nil
	}

	candidate, considerCandidate := a.overrides[master]
	rtx, err := a.choose(candidate, considerCandidate)
	if err != nil {
		return 0, err
	}
	a.byMaster[master] = rtx
	a.byRTX[rtx] = master
	return rtx, nil
}

// masterForRTX reports the master stream an RTX SSRC belongs to.
func (a *ssrcAssignment) masterForRTX(rtx uint32) (uint32, bool) {
	master, ok := a.byRTX[rtx]
	return master, ok
}

// reassign picks a new RTX SSRC for the master currently served by rtx and
// rewrites both directions. Used when the session reports that rtx is
// already taken by another participant.
func (a *ssrcAssignment) reassign(rtx uint32) (uint32, error) {
	master, ok := a.byRTX[rtx]
	if !ok {
		return 0, nil
	}
	fresh, err := a.choose(0, false)
	if err != nil {
		return 0, err
	}
	delete(a.byRTX, rtx)
	a.byMaster[master] = fresh
	a.byRTX[fresh] = master
	return fresh, nil
}

// removeMaster drops the mapping for a master stream whose SSRC has
// collided. The stream will be mapped again on its first packet under the
// renegotiated SSRC.
func (a *ssrcAssignment) removeMaster(master uint32) {
	if rtx, ok := a.byMaster[master]; ok {
		delete(a.byRTX, rtx)
		delete(a.byMaster, master)
	}
}

// hasMaster reports whether the master stream is known.
func (a *ssrcAssignment) hasMaster(master uint32) bool {
	_, ok := a.byMaster[master]
	return ok
}

func (a *ssrcAssignment) clear() {
	a.byMaster = map[uint32]uint32{}
	a.byRTX = map[uint32]uint32{}
}
