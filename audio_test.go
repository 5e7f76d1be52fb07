package n64core

import "testing"

func newTestAudio(t *testing.T, n, bufLen int) (*Audio, *Controller, RegisterFile, *manualTicksHandle) {
	t.Helper()
	ticks := NewManualTickSource()
	mi := NewSimRegisterFile(0x20)
	ctrl := NewController(mi, NewSimStatusRegister(), ticks)
	ctrl.Init()

	regs := NewSimRegisterFile(0x20)
	hw := NewStaticHardwareInfo(TVStandardNTSC, PlatformVariantBase)
	audio := NewAudio(regs, ctrl, NewHostAllocator(), ticks)
	audio.Init(hw, 44100, n, bufLen)
	return audio, ctrl, regs, ticks
}

func TestAudio_WriteSilenceAdvancesWritingCursor(t *testing.T) {
	audio, _, _, _ := newTestAudio(t, 4, 8)
	if !audio.CanWrite() {
		t.Fatal("expected CanWrite true on a freshly initialized ring")
	}
	audio.WriteSilence()
	audio.WriteSilence()
	if audio.writing != 2 {
		t.Fatalf("writing cursor = %d after two WriteSilence calls, want 2", audio.writing)
	}
	if audio.full&0b11 != 0b11 {
		t.Fatalf("full mask = %b, want low two bits set", audio.full)
	}
}

func TestAudio_WriteRejectsWrongLength(t *testing.T) {
	audio, _, _, _ := newTestAudio(t, 4, 8)
	rec := &RecordingAssertor{}
	SetAssertor(rec)
	defer SetAssertor(nil)

	audio.Write(make([]int16, 4))
	if !rec.Failed() {
		t.Fatal("Write with wrong sample count should assert")
	}
}

func TestAudio_PushFragmentsAcrossBufferBoundary(t *testing.T) {
	audio, _, _, _ := newTestAudio(t, 4, 4) // bufLen=4 -> 8 samples/buffer
	samples := make([]int16, 12)            // 1.5 buffers worth
	for i := range samples {
		samples[i] = int16(i + 1)
	}

	// Enough free ring slots exist to absorb all 12 samples in one call:
	// 8 land in a completed buffer, the remaining 4 in a still-open one.
	n := audio.Push(samples, false)
	if n != 12 {
		t.Fatalf("first Push wrote %d, want 12 (every sample accepted)", n)
	}
	if len(audio.pushRemaining) != 4 {
		t.Fatalf("pushRemaining length = %d, want 4 (half a buffer still open)", len(audio.pushRemaining))
	}
	if audio.writing != 1 {
		t.Fatalf("writing cursor = %d, want 1 (one buffer released, the next still open so not yet advanced)", audio.writing)
	}

	more := make([]int16, 4)
	for i := range more {
		more[i] = int16(100 + i)
	}
	n2 := audio.Push(more, false)
	if n2 != 4 {
		t.Fatalf("second Push (completing the open buffer) wrote %d, want 4", n2)
	}
	if len(audio.pushRemaining) != 0 {
		t.Fatal("pushRemaining should be empty once the partial buffer is completed")
	}
	if audio.writing != 2 {
		t.Fatalf("writing cursor = %d after completing the open buffer, want 2 (the completed buffer released)", audio.writing)
	}
}

func TestAudio_PauseSwapsToSilenceAndRestores(t *testing.T) {
	audio, _, _, _ := newTestAudio(t, 4, 4)
	called := false
	audio.SetFillCallback(func(dst []int16) { called = true })

	audio.Pause(true)
	if fn := audio.activeFill(); fn == nil {
		t.Fatal("activeFill should return the silence generator while paused")
	}
	fn := audio.activeFill()
	dst := make([]int16, 4)
	dst[0] = 99
	fn(dst)
	if dst[0] != 0 {
		t.Fatal("paused fill should write silence")
	}
	if called {
		t.Fatal("the user callback must not run while paused")
	}

	audio.Pause(false)
	audio.activeFill()(make([]int16, 2))
	if !called {
		t.Fatal("unpausing should restore the original user callback")
	}
}

func TestAudio_PauseWithoutCallbackIsNoOp(t *testing.T) {
	audio, _, _, _ := newTestAudio(t, 4, 4)
	audio.Pause(true)
	if audio.fill.kind != fillNone {
		t.Fatal("Pause with no installed callback should not change fill state")
	}
}

// TestAudio_HandleIRQSingleShotRetireThenRefill exercises the scenario S1
// narrative: four consecutive IRQ edges, each doing at most one retire and
// one refill, the queue never exceeding its two-deep hardware limit.
func TestAudio_HandleIRQSingleShotRetireThenRefill(t *testing.T) {
	audio, ctrl, regs, _ := newTestAudio(t, 4, 4)
	submitted := 0
	audio.SetFillCallback(func(dst []int16) { submitted++ })

	// First IRQ: queue is empty, so handleIRQ should submit exactly one
	// buffer, not drain straight to depth 2.
	audio.handleIRQ()
	if audio.queued != 1 {
		t.Fatalf("queued after first IRQ = %d, want 1", audio.queued)
	}
	if submitted != 1 {
		t.Fatalf("fill callback invocations after first IRQ = %d, want 1", submitted)
	}

	// Second IRQ: AI_STATUS still reports full (hardware hasn't drained
	// anything), so this call tops the queue up to 2.
	audio.handleIRQ()
	if audio.queued != 2 {
		t.Fatalf("queued after second IRQ = %d, want 2", audio.queued)
	}

	// Third IRQ with the queue full and nothing drained: no-op.
	audio.handleIRQ()
	if audio.queued != 2 || submitted != 2 {
		t.Fatalf("queued=%d submitted=%d after third IRQ, want queued=2 submitted=2 (queue saturated)", audio.queued, submitted)
	}

	// Simulate the hardware draining the oldest buffer (clears the full bit
	// in AI_STATUS), then the next IRQ retires it and refills exactly one.
	status := regs.Peek32(aiSTATUS)
	regs.Poke32(aiSTATUS, status&^aiStatusFull)
	audio.handleIRQ()
	if audio.queued != 2 {
		t.Fatalf("queued after drain+IRQ = %d, want back to 2", audio.queued)
	}
	if submitted != 3 {
		t.Fatalf("submitted = %d after drain+IRQ, want 3 (one retire, one refill)", submitted)
	}
	_ = ctrl
}

// TestAudio_HandleIRQIdleWithNoFillProgramsNothing covers scenario S2: once
// one buffer has been pushed and nothing else is supplied, a later IRQ that
// finds no full buffer and no fill callback should not program a new DMA.
func TestAudio_HandleIRQIdleWithNoFillProgramsNothing(t *testing.T) {
	audio, _, _, _ := newTestAudio(t, 4, 4)
	audio.WriteSilence() // one buffer released by the producer, no fill callback installed

	audio.handleIRQ()
	if audio.queued != 1 {
		t.Fatalf("queued after first IRQ = %d, want 1 (the one producer-released buffer)", audio.queued)
	}

	queuedBefore := audio.queued
	audio.handleIRQ()
	if audio.queued != queuedBefore {
		t.Fatalf("queued changed from %d to %d on an IRQ with no fill and no released buffer", queuedBefore, audio.queued)
	}
}

func TestAudio_CurrentDMAAndBufferByPhysAddr(t *testing.T) {
	audio, _, _, _ := newTestAudio(t, 4, 4)
	audio.SetFillCallback(func(dst []int16) {})
	audio.handleIRQ()

	addr, length := audio.CurrentDMA()
	if length != uint32(4*4) {
		t.Fatalf("CurrentDMA length = %d, want %d", length, uint32(4*4))
	}
	buf := audio.BufferByPhysAddr(addr)
	if buf == nil {
		t.Fatal("BufferByPhysAddr returned nil for the address just programmed")
	}
	if len(buf) != int(length) {
		t.Fatalf("buffer length = %d, want %d", len(buf), length)
	}
}

func TestAudio_MarkSlotDrainedClearsFullBit(t *testing.T) {
	audio, _, regs, _ := newTestAudio(t, 4, 4)
	audio.SetFillCallback(func(dst []int16) {})
	audio.handleIRQ()

	if regs.Peek32(aiSTATUS)&aiStatusFull == 0 {
		t.Fatal("AI_STATUS full bit should be set after a buffer is enqueued")
	}
	audio.MarkSlotDrained()
	if regs.Peek32(aiSTATUS)&aiStatusFull != 0 {
		t.Fatal("AI_STATUS full bit should be clear after MarkSlotDrained")
	}
}

func TestAudio_ResetGraceWindowHaltsRefill(t *testing.T) {
	audio, ctrl, _, ticks := newTestAudio(t, 4, 4)
	audio.SetFillCallback(func(dst []int16) {})

	ctrl.RegisterReset(func() {})
	ctrl.Dispatch(true, false, nil) // latches the pre-NMI signal at tick 0

	ticks.Advance(audio.bufferPeriodTicks) // grace window fully elapsed

	audio.handleIRQ()
	if audio.queued != 0 {
		t.Fatalf("queued = %d after the reset grace window elapsed, want 0 (feeder should stop refilling)", audio.queued)
	}
}
