package dmxp

import "runtime"

// spinWait is the busy-spin and yield part of this package's bounded
// backoff. It never sleeps itself: the wait loops that escalate to short
// sleeps (waitForFileGrowth, attachHeader, ReceiveWithTimeout) add the
// sleep on top of it. It is a plain struct
// with an Once-style step method, the same shape as the
// code.hybscloud.com/spin helper other_examples/4b3dd5cf uses alongside
// its MPMC sequence protocol; reimplemented locally since that module is
// not reachable from this corpus's dependency set (see DESIGN.md).
type spinWait struct {
	iter int
}

// once advances the spin state by one step. Below yieldAfter iterations
// it busy-spins (the caller's loop body is the "spin"); at and beyond it,
// it calls runtime.Gosched() so the scheduler can run other goroutines
// while this one waits on a slow producer or consumer.
func (s *spinWait) once(yieldAfter int) {
	s.iter++
	if s.iter >= yieldAfter {
		runtime.Gosched()
	}
}

func (s *spinWait) iterations() int { return s.iter }

// reset clears the spin state for reuse across claim attempts.
func (s *spinWait) reset() { s.iter = 0 }
