package event

import (
	"reflect"
	"sync"
)

// Bus is a double-buffered typed event bus. Events emitted during tick N are
// delivered at the start of tick N+1, before any phase runs, so every system
// sees the same snapshot no matter where in the tick the emitter ran.
type Bus struct {
	mu       sync.Mutex // registration only; emit/dispatch stay on the game loop
	front    map[reflect.Type][]any
	back     map[reflect.Type][]any
	handlers map[reflect.Type][]func(any)
}

func NewBus() *Bus {
	return &Bus{
		front:    make(map[reflect.Type][]any),
		back:     make(map[reflect.Type][]any),
		handlers: make(map[reflect.Type][]func(any)),
	}
}

func typeKey[T any]() reflect.Type { return reflect.TypeOf((*T)(nil)).Elem() }

// Emit queues an event for delivery at the start of the next tick.
func Emit[T any](b *Bus, ev T) {
	k := typeKey[T]()
	b.back[k] = append(b.back[k], ev)
}

// Subscribe registers fn for events of type T. The wrapper erases the type
// once at registration so dispatch is a plain call, not reflect.Call.
func Subscribe[T any](b *Bus, fn func(T)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	k := typeKey[T]()
	b.handlers[k] = append(b.handlers[k], func(ev any) { fn(ev.(T)) })
}

// SwapBuffers rotates back to front and clears the new back buffer. Called
// once at tick start.
func (b *Bus) SwapBuffers() {
	b.front, b.back = b.back, b.front
	for k := range b.back {
		b.back[k] = b.back[k][:0]
	}
}

// DispatchAll delivers every front-buffer event to its subscribers.
func (b *Bus) DispatchAll() {
	for k, events := range b.front {
		handlers := b.handlers[k]
		if len(handlers) == 0 {
			continue
		}
		for _, ev := range events {
			for _, h := range handlers {
				h(ev)
			}
		}
	}
}
