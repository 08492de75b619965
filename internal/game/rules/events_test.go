package rules

import "testing"

func TestEventBusTypedDelivery(t *testing.T) {
	bus := NewEventBus()
	var all, typed int
	bus.Subscribe(func(Event) { all++ })
	bus.SubscribeTyped(EventCardPlayed, func(Event) { typed++ })

	bus.Publish(NewEvent(EventCardPlayed, 1, "alice"))
	bus.Publish(NewEvent(EventCardDrawn, 2, "alice"))

	if all != 2 {
		t.Errorf("untyped listener saw %d events, want 2", all)
	}
	if typed != 1 {
		t.Errorf("typed listener saw %d events, want 1", typed)
	}
}

func TestEventBusUnsubscribe(t *testing.T) {
	bus := NewEventBus()
	var calls int
	h := bus.SubscribeTyped(EventCardPlayed, func(Event) { calls++ })
	bus.Publish(NewEvent(EventCardPlayed, 1, "alice"))
	bus.Unsubscribe(h)
	bus.Publish(NewEvent(EventCardPlayed, 2, "alice"))

	if calls != 1 {
		t.Errorf("listener called %d times after unsubscribe, want 1", calls)
	}
}

func TestEventBusNilListenerRejected(t *testing.T) {
	bus := NewEventBus()
	if h := bus.Subscribe(nil); h != -1 {
		t.Errorf("nil listener accepted with handle %d", h)
	}
}

func TestWasAppliedTo(t *testing.T) {
	ev := NewEvent(EventWouldBeKO, 1, "alice")
	if ev.WasAppliedTo("effect-1") {
		t.Error("fresh event reports an applied effect")
	}
	ev.AppliedEffects = append(ev.AppliedEffects, "effect-1")
	if !ev.WasAppliedTo("effect-1") {
		t.Error("applied effect not recorded")
	}
}

func TestIsBoundary(t *testing.T) {
	boundaries := []EventType{EventBattleEnd, EventTurnEnd, EventRefreshStep}
	for _, et := range boundaries {
		if !et.IsBoundary() {
			t.Errorf("%s should be a boundary", et)
		}
	}
	if EventCharacterKO.IsBoundary() {
		t.Error("CHARACTER_KO is not a boundary")
	}
}
