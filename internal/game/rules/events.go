package rules

import (
	"sync"
)

// EventType indicates the category of a rules event.
type EventType string

const (
	// Turn structure events
	EventTurnBegin    EventType = "TURN_BEGIN"
	EventTurnEnd      EventType = "TURN_END"
	EventPhaseChanged EventType = "PHASE_CHANGED"
	EventRefreshStep  EventType = "REFRESH_STEP"
	EventDrawStep     EventType = "DRAW_STEP"

	// Battle events
	EventAttackDeclared  EventType = "ATTACK_DECLARED"
	EventAttackTargeted  EventType = "ATTACK_TARGETED"
	EventBlockerDeclared EventType = "BLOCKER_DECLARED"
	EventCounterPlayed   EventType = "COUNTER_PLAYED"
	EventBattleDamage    EventType = "BATTLE_DAMAGE"
	EventBattleEnd       EventType = "BATTLE_END"

	// Knockout events
	EventWouldBeKO   EventType = "WOULD_BE_KO"
	EventOnKO        EventType = "ON_KO"
	EventCharacterKO EventType = "CHARACTER_KO"

	// Life / damage events
	EventDealDamage       EventType = "DEAL_DAMAGE"
	EventLifeCardRevealed EventType = "LIFE_CARD_REVEALED"
	EventPlayerDefeated   EventType = "PLAYER_DEFEATED"

	// Card movement events
	EventCardPlayed  EventType = "CARD_PLAYED"
	EventCardMoved   EventType = "CARD_MOVED"
	EventCardDrawn   EventType = "CARD_DRAWN"
	EventCardTrashed EventType = "CARD_TRASHED"

	// Resource token events
	EventResourceGiven    EventType = "RESOURCE_GIVEN"
	EventResourceReturned EventType = "RESOURCE_RETURNED"
)

// IsBoundary returns true for event types that expire duration-scoped
// continuous and replacement effects when they are processed.
func (et EventType) IsBoundary() bool {
	return et == EventBattleEnd || et == EventTurnEnd || et == EventRefreshStep
}

// Event represents a state change that other subsystems may react to. Events
// carry no wall-clock time: resolution is deterministic, and anything that
// wants a timestamp (telemetry, the relay) stamps one at the bus boundary.
type Event struct {
	Type           EventType
	ID             string
	Target         int64  // instance id the event concerns (0 = none)
	Source         int64  // instance id that produced the event (0 = none)
	Player         string // player the event concerns (owner of the target, usually)
	Generator      string // player whose action generated the event
	Amount         int
	Zone           string
	Data           string
	Metadata       map[string]string
	AppliedEffects []string // ids of replacement effects already applied
}

// NewEvent creates an event with common fields populated.
func NewEvent(eventType EventType, target int64, playerID string) Event {
	return Event{
		Type:      eventType,
		Target:    target,
		Player:    playerID,
		Generator: playerID,
		Metadata:  make(map[string]string),
	}
}

// WasAppliedTo reports whether the given replacement effect already applied to
// this event occurrence. Each effect gets one opportunity per event.
func (e Event) WasAppliedTo(effectID string) bool {
	for _, id := range e.AppliedEffects {
		if id == effectID {
			return true
		}
	}
	return false
}

// Listener defines a callback that reacts to incoming events.
type Listener func(Event)

// TypedListener defines a callback that reacts to a specific event type.
type TypedListener struct {
	Handle    int
	EventType EventType
	Callback  func(Event)
}

// EventBus provides a synchronous publish/subscribe implementation with type
// filtering. The engine publishes post-mutation events here for presentation
// and telemetry collaborators; nothing published on the bus feeds back into
// resolution.
type EventBus struct {
	mu             sync.RWMutex
	listeners      map[int]Listener
	typedListeners map[EventType][]TypedListener
	nextHandle     int
}

// NewEventBus constructs a fresh event bus instance.
func NewEventBus() *EventBus {
	return &EventBus{
		listeners:      make(map[int]Listener),
		typedListeners: make(map[EventType][]TypedListener),
	}
}

// Subscribe registers a listener for all events and returns a handle.
func (bus *EventBus) Subscribe(listener Listener) int {
	if listener == nil {
		return -1
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	handle := bus.nextHandle
	bus.nextHandle++
	bus.listeners[handle] = listener
	return handle
}

// SubscribeTyped registers a listener for a specific event type.
func (bus *EventBus) SubscribeTyped(eventType EventType, callback func(Event)) int {
	if callback == nil {
		return -1
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	handle := bus.nextHandle
	bus.nextHandle++
	bus.typedListeners[eventType] = append(bus.typedListeners[eventType], TypedListener{
		Handle:    handle,
		EventType: eventType,
		Callback:  callback,
	})
	return handle
}

// Unsubscribe removes the listener identified by the provided handle.
func (bus *EventBus) Unsubscribe(handle int) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	delete(bus.listeners, handle)
	for eventType, listeners := range bus.typedListeners {
		for i := len(listeners) - 1; i >= 0; i-- {
			if listeners[i].Handle == handle {
				bus.typedListeners[eventType] = append(listeners[:i], listeners[i+1:]...)
				break
			}
		}
	}
}

// Publish delivers the event to all registered listeners synchronously.
func (bus *EventBus) Publish(event Event) {
	bus.mu.RLock()
	defer bus.mu.RUnlock()

	for _, listener := range bus.listeners {
		listener(event)
	}
	if typedListeners, ok := bus.typedListeners[event.Type]; ok {
		for _, listener := range typedListeners {
			listener.Callback(event)
		}
	}
}

// PublishBatch publishes multiple events in order.
func (bus *EventBus) PublishBatch(events []Event) {
	for _, event := range events {
		bus.Publish(event)
	}
}
