package n64core

import "testing"

func newTestController() (*Controller, *manualTicksHandle) {
	ticks := NewManualTickSource()
	mi := NewSimRegisterFile(0x20)
	ctrl := NewController(mi, NewSimStatusRegister(), ticks)
	ctrl.Init()
	return ctrl, ticks
}

func TestController_InitIsIdempotent(t *testing.T) {
	ctrl, _ := newTestController()
	if ctrl.State() != StateEnabled {
		t.Fatalf("state = %v, want StateEnabled", ctrl.State())
	}
	ctrl.Init()
	if ctrl.State() != StateEnabled || ctrl.Depth() != 0 {
		t.Fatalf("second Init changed state: state=%v depth=%d", ctrl.State(), ctrl.Depth())
	}
}

func TestController_DisableEnableNesting(t *testing.T) {
	ctrl, _ := newTestController()

	ctrl.Disable()
	ctrl.Disable()
	if got := ctrl.Depth(); got != 2 {
		t.Fatalf("depth after two Disable calls = %d, want 2", got)
	}
	if ctrl.State() != StateDisabled {
		t.Fatalf("state = %v, want StateDisabled", ctrl.State())
	}

	ctrl.Enable()
	if ctrl.State() != StateDisabled {
		t.Fatalf("state after partial Enable = %v, want still StateDisabled", ctrl.State())
	}
	ctrl.Enable()
	if ctrl.State() != StateEnabled || ctrl.Depth() != 0 {
		t.Fatalf("state after matching Enable = %v depth=%d, want StateEnabled/0", ctrl.State(), ctrl.Depth())
	}
}

func TestController_EnableUnderflowAsserts(t *testing.T) {
	ctrl, _ := newTestController()
	rec := &RecordingAssertor{}
	SetAssertor(rec)
	defer SetAssertor(nil)

	ctrl.Enable()
	if !rec.Failed() {
		t.Fatal("expected Enable without matching Disable to assert")
	}
}

func TestController_RegisterPushesAtHead(t *testing.T) {
	ctrl, _ := newTestController()
	var order []int

	h1 := func() { order = append(order, 1) }
	h2 := func() { order = append(order, 2) }
	ctrl.Register(SourceAudio, h1)
	ctrl.Register(SourceAudio, h2)
	ctrl.SetEnabled(SourceAudio, true)

	ctrl.Dispatch(false, false, nil)
	// Nothing pending yet (MI_INTR is zero), so neither handler ran.
	if len(order) != 0 {
		t.Fatalf("expected no handlers invoked before raising a source, got %v", order)
	}

	ctrl.Raise(SourceAudio)
	ctrl.Dispatch(false, false, map[Source]func(){SourceAudio: func() { ctrl.Acknowledge(SourceAudio) }})
	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Fatalf("expected most-recently-registered handler first, got %v", order)
	}
}

func TestController_UnregisterRemovesOneOccurrence(t *testing.T) {
	ctrl, _ := newTestController()
	calls := 0
	fn := func() { calls++ }

	ctrl.Register(SourceAudio, fn)
	ctrl.Register(SourceAudio, fn)
	ctrl.Unregister(SourceAudio, fn)
	ctrl.SetEnabled(SourceAudio, true)

	ctrl.Raise(SourceAudio)
	ctrl.Dispatch(false, false, map[Source]func(){SourceAudio: func() { ctrl.Acknowledge(SourceAudio) }})
	if calls != 1 {
		t.Fatalf("expected exactly one surviving registration to fire, got %d calls", calls)
	}
}

func TestController_SetEnabledGatesMask(t *testing.T) {
	ctrl, _ := newTestController()
	fired := false
	ctrl.Register(SourceVideo, func() { fired = true })
	ctrl.SetEnabled(SourceVideo, false)

	ctrl.Raise(SourceVideo)
	ctrl.Dispatch(false, false, map[Source]func(){SourceVideo: func() { ctrl.Acknowledge(SourceVideo) }})
	if fired {
		t.Fatal("masked source's handler should not fire")
	}

	ctrl.SetEnabled(SourceVideo, true)
	ctrl.Raise(SourceVideo)
	ctrl.Dispatch(false, false, map[Source]func(){SourceVideo: func() { ctrl.Acknowledge(SourceVideo) }})
	if !fired {
		t.Fatal("unmasked source's handler should fire")
	}
}

func TestController_DispatchTimerInvokesTimerHandlers(t *testing.T) {
	ctrl, _ := newTestController()
	var order []int
	ctrl.Register(SourceTimer, func() { order = append(order, 1) })
	ctrl.Register(SourceTimer, func() { order = append(order, 2) })

	ctrl.Dispatch(false, false, nil)
	if len(order) != 0 {
		t.Fatalf("expected no timer handlers invoked without pendingTimer, got %v", order)
	}

	ctrl.Dispatch(false, true, nil)
	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Fatalf("expected both timer handlers to fire head-first on pendingTimer, got %v", order)
	}
}
