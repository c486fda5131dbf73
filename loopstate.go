package fuerte

import (
	"runtime"
	"sync/atomic"
)

// loopState packs spec §4.2's three fields into a single atomic word: the
// sole coordination primitive between submitting goroutines and the
// reactor goroutine. Bit 0 is write-loop-active, bit 1 is read-loop-active,
// bits 2..31 are the queued-write count.
type loopState struct {
	word atomic.Uint32
}

const (
	writeLoopActiveBit uint32 = 1 << 0
	readLoopActiveBit  uint32 = 1 << 1
	queueCountShift           = 2
	queueCountInc      uint32 = 1 << queueCountShift
)

func (s *loopState) queueCount() uint32 {
	return s.word.Load() >> queueCountShift
}

func (s *loopState) writeActive() bool {
	return s.word.Load()&writeLoopActiveBit != 0
}

func (s *loopState) readActive() bool {
	return s.word.Load()&readLoopActiveBit != 0
}

// incQueueCount is called by producers when pushing an item onto the write
// queue.
func (s *loopState) incQueueCount() uint32 {
	return (s.word.Add(queueCountInc)) >> queueCountShift
}

// decQueueCount is called by the reactor when it pops an item to write.
func (s *loopState) decQueueCount() uint32 {
	return (s.word.Add(^(queueCountInc - 1))) >> queueCountShift
}

// tryStartWriteLoop implements the half-duplex (HTTP) start rule: if the
// write loop is not active, CAS it on. Exactly one caller wins. Returns
// true if this call won the race and should kick off asyncWrite.
func (s *loopState) tryStartWriteLoop() bool {
	for {
		old := s.word.Load()
		if old&writeLoopActiveBit != 0 {
			return false
		}
		newWord := old | writeLoopActiveBit
		if s.word.CompareAndSwap(old, newWord) {
			return true
		}
		runtime.Gosched()
	}
}

// tryStartReadLoop CASes the read-loop-active bit on; used by the
// full-duplex (VST) driver where read and write loops are independent.
func (s *loopState) tryStartReadLoop() bool {
	for {
		old := s.word.Load()
		if old&readLoopActiveBit != 0 {
			return false
		}
		newWord := old | readLoopActiveBit
		if s.word.CompareAndSwap(old, newWord) {
			return true
		}
		runtime.Gosched()
	}
}

// stopWriteLoopIfEmpty clears the write-active bit iff the queue count is
// zero at the moment of the CAS (spec §4.2 "Stop rule"). Returns true if it
// cleared the bit.
func (s *loopState) stopWriteLoopIfEmpty() bool {
	for {
		old := s.word.Load()
		if old>>queueCountShift != 0 {
			return false
		}
		newWord := old &^ writeLoopActiveBit
		if s.word.CompareAndSwap(old, newWord) {
			return true
		}
		runtime.Gosched()
	}
}

// stopReadLoop clears the read-active bit unconditionally. reset (called
// centrally by restartConnection/Close) is what actually clears it between
// connection generations; this exists as the direct counterpart to
// tryStartReadLoop for callers that need to clear just the one bit.
func (s *loopState) stopReadLoop() {
	for {
		old := s.word.Load()
		newWord := old &^ readLoopActiveBit
		if s.word.CompareAndSwap(old, newWord) {
			return
		}
		runtime.Gosched()
	}
}

func (s *loopState) stopWriteLoop() {
	for {
		old := s.word.Load()
		newWord := old &^ writeLoopActiveBit
		if s.word.CompareAndSwap(old, newWord) {
			return
		}
		runtime.Gosched()
	}
}

// reset clears the whole word, used on shutdown.
func (s *loopState) reset() {
	s.word.Store(0)
}
