package resource

// Handle is an opaque reference to an object in a table.
// Handle 0 is reserved and always invalid.
//
// The low 24 bits select a slot and the high 8 bits carry the slot's
// generation, so a handle to a removed object never resolves to the
// object that later reuses its slot.
type Handle uint32

const (
	indexBits = 24
	indexMask = 1<<indexBits - 1
)

func makeHandle(index uint32, gen uint8) Handle {
	return Handle(uint32(gen)<<indexBits | (index + 1))
}

func (h Handle) index() uint32 { return uint32(h)&indexMask - 1 }
func (h Handle) gen() uint8    { return uint8(uint32(h) >> indexBits) }

// Kind tags table entries so one table can hold several object types.
type Kind uint32

// Event types for lifecycle notifications.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDropped
)

func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventDropped:
		return "dropped"
	}
	return "unknown"
}

// Event represents a lifecycle event.
type Event struct {
	Value  any
	Handle Handle
	Kind   Kind
	Type   EventType
}

// Observer receives notifications about lifecycle events.
type Observer interface {
	OnResourceEvent(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

func (f ObserverFunc) OnResourceEvent(e Event) { f(e) }

// Dropper is optionally implemented by values that need cleanup on removal.
type Dropper interface {
	Drop()
}
