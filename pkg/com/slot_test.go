package com

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestSlot(t *testing.T) {
	t.Run("UnReserve", func(t *testing.T) {
		t.Run("BasicDecrement", testUnReserveBasic)
		t.Run("PreventUnderflow", testUnReserveUnderflow)
		t.Run("ConcurrentDecrement", testUnReserveConcurrent)
	})

	t.Run("TryReserve", func(t *testing.T) {
		t.Run("SuccessWhenZero", testTryReserveSuccess)
		t.Run("FailWhenNonZero", testTryReserveFailure)
		t.Run("ConcurrentReservations", testTryReserveConcurrent)
	})

	t.Run("Integration", func(t *testing.T) {
		t.Run("ReserveUnreserveFlow", testReserveUnreserveFlow)
	})
}

func testUnReserveBasic(t *testing.T) {
	t.Parallel()
	var s Slot

	s.TryReserve()
	s.UnReserve()
	if atomic.LoadInt32((*int32)(&s)) != 0 {
		t.Error("failed to decrement to zero")
	}
}

func testUnReserveUnderflow(t *testing.T) {
	t.Parallel()
	var s Slot

	t.Run("PreventNewUnderflow", func(t *testing.T) {
		s.UnReserve()
		if atomic.LoadInt32((*int32)(&s)) != 0 {
			t.Error("should remain at 0 when unreserving from 0")
		}
	})

	t.Run("FixExistingNegative", func(t *testing.T) {
		atomic.StoreInt32((*int32)(&s), -5)
		s.UnReserve()
		if current := atomic.LoadInt32((*int32)(&s)); current != 0 {
			t.Errorf("should fix negative value to 0, got %d", current)
		}
	})
}

func testUnReserveConcurrent(t *testing.T) {
	t.Parallel()

	var s Slot
	const workers = 100
	var wg sync.WaitGroup

	atomic.StoreInt32((*int32)(&s), int32(workers))
	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			s.UnReserve()
		}()
	}
	wg.Wait()

	if current := atomic.LoadInt32((*int32)(&s)); current != 0 {
		t.Errorf("unexpected final value: %d (want 0)", current)
	}
}

func testTryReserveSuccess(t *testing.T) {
	t.Parallel()
	var s Slot

	if !s.TryReserve() {
		t.Error("should succeed when zero")
	}
	if atomic.LoadInt32((*int32)(&s)) != 1 {
		t.Error("failed to increment")
	}
}

func testTryReserveFailure(t *testing.T) {
	t.Parallel()
	var s Slot

	atomic.StoreInt32((*int32)(&s), 1)
	if s.TryReserve() {
		t.Error("should fail when non-zero")
	}
}

func testTryReserveConcurrent(t *testing.T) {
	t.Parallel()
	var s Slot
	const workers = 100
	var success int32
	var wg sync.WaitGroup

	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			if s.TryReserve() {
				atomic.AddInt32(&success, 1)
			}
		}()
	}
	wg.Wait()

	if success != 1 {
		t.Errorf("unexpected success count: %d (want 1)", success)
	}
}

func testReserveUnreserveFlow(t *testing.T) {
	t.Parallel()
	var s Slot

	if !s.TryReserve() {
		t.Fatal("failed initial reservation")
	}
	if s.TryReserve() {
		t.Error("unexpected successful second reservation")
	}
	s.UnReserve()
	if !s.TryReserve() {
		t.Error("failed reservation after unreserve")
	}
}
