package com

import "sync/atomic"

// Slot is a lock-free counter that allows only one reservation at a time.
// It backs every "at most one of X" rule: one backend socket, one publisher.
type Slot int32

// TryReserve takes the slot if it is free and reports whether it did.
func (s *Slot) TryReserve() bool { return atomic.CompareAndSwapInt32((*int32)(s), 0, 1) }

// UnReserve frees the slot, never going below zero.
func (s *Slot) UnReserve() {
	for {
		current := atomic.LoadInt32((*int32)(s))
		if current <= 0 {
			if current < 0 {
				atomic.CompareAndSwapInt32((*int32)(s), current, 0)
				continue
			}
			return
		}
		if atomic.CompareAndSwapInt32((*int32)(s), current, current-1) {
			return
		}
	}
}
