package engine

import "sort"

// Voice is one scheduled note graph. A voice renders nothing before its
// start frame and is dropped by the reaper once the clock passes Expires.
type Voice interface {
	StartFrame() int64
	Expires() int64
	Bus() *TrackBus
	Render(frame int64, out *Frame)
}

// Frame collects one voice's output for a single frame: the dry signal and
// the pre-scaled sends to the reverb and delay buses.
type Frame struct {
	L, R             float64
	ReverbL, ReverbR float64
	DelayL, DelayR   float64
}

// arena owns every voice from registration until expiry.
type arena struct {
	pending []Voice // ordered by start frame, ties in registration order
	active  []Voice
	reaped  int64
}

func (a *arena) add(v Voice) {
	start := v.StartFrame()
	i := sort.Search(len(a.pending), func(i int) bool {
		return a.pending[i].StartFrame() > start
	})
	a.pending = append(a.pending, nil)
	copy(a.pending[i+1:], a.pending[i:])
	a.pending[i] = v
}

// activate moves voices due at or before frame into the active set.
func (a *arena) activate(frame int64) {
	n := 0
	for n < len(a.pending) && a.pending[n].StartFrame() <= frame {
		n++
	}
	if n == 0 {
		return
	}
	a.active = append(a.active, a.pending[:n]...)
	a.pending = append(a.pending[:0], a.pending[n:]...)
}

// reap drops active voices whose expiry is at or before frame.
func (a *arena) reap(frame int64) int {
	kept := a.active[:0]
	dropped := 0
	for _, v := range a.active {
		if v.Expires() > frame {
			kept = append(kept, v)
			continue
		}
		dropped++
	}
	for i := len(kept); i < len(a.active); i++ {
		a.active[i] = nil
	}
	a.active = kept
	a.reaped += int64(dropped)
	return dropped
}

func (a *arena) reset() {
	a.pending = nil
	a.active = nil
}

// lastExpiry returns the latest expiry frame of all live voices.
func (a *arena) lastExpiry() int64 {
	var last int64
	for _, v := range a.pending {
		last = max(last, v.Expires())
	}
	for _, v := range a.active {
		last = max(last, v.Expires())
	}
	return last
}
