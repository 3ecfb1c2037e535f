package resource

import "github.com/wippyai/tanker-go/native"

// Kind classifies a native handle.
type Kind uint8

const (
	KindCore Kind = iota
	KindEncryptionSession
	KindFuture
	KindStream
	KindBuffer
	kindCount
)

func (k Kind) String() string {
	switch k {
	case KindCore:
		return "core"
	case KindEncryptionSession:
		return "encryption_session"
	case KindFuture:
		return "future"
	case KindStream:
		return "stream"
	case KindBuffer:
		return "buffer"
	default:
		return "unknown"
	}
}

// Kinds lists every handle kind.
func Kinds() []Kind {
	return []Kind{KindCore, KindEncryptionSession, KindFuture, KindStream, KindBuffer}
}

// Destructor is the paired native release call for a handle.
type Destructor func(native.Pointer) error

// Event types for handle lifecycle notifications.
type EventType uint8

const (
	EventRegistered EventType = iota
	EventReleased
	EventCollected
)

// Event represents a handle lifecycle event. Err is set on release events
// whose destructor failed.
type Event struct {
	Err     error
	Pointer native.Pointer
	Key     uint64
	Kind    Kind
	Type    EventType
}

// Observer receives notifications about handle lifecycle events.
// It is called synchronously and must not block.
type Observer interface {
	OnResourceEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnResourceEvent(e Event) { f(e) }
