package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type testPing struct{ N int }
type testPong struct{ N int }

func TestEmitDeliversAfterSwap(t *testing.T) {
	b := NewBus()
	var got []int
	Subscribe(b, func(ev testPing) { got = append(got, ev.N) })

	Emit(b, testPing{N: 1})
	b.DispatchAll()
	assert.Empty(t, got, "events stay buffered until the swap")

	b.SwapBuffers()
	b.DispatchAll()
	assert.Equal(t, []int{1}, got)

	b.SwapBuffers()
	b.DispatchAll()
	assert.Equal(t, []int{1}, got, "delivered events are not replayed")
}

func TestEmitDuringDispatchLandsNextTick(t *testing.T) {
	b := NewBus()
	var got []int
	Subscribe(b, func(ev testPing) {
		got = append(got, ev.N)
		if ev.N == 1 {
			Emit(b, testPing{N: 2})
		}
	})

	Emit(b, testPing{N: 1})
	b.SwapBuffers()
	b.DispatchAll()
	assert.Equal(t, []int{1}, got)

	b.SwapBuffers()
	b.DispatchAll()
	assert.Equal(t, []int{1, 2}, got)
}

func TestSubscribersSeeOnlyTheirType(t *testing.T) {
	b := NewBus()
	var pings, pongs int
	Subscribe(b, func(testPing) { pings++ })
	Subscribe(b, func(testPong) { pongs++ })

	Emit(b, testPing{})
	Emit(b, testPing{})
	Emit(b, testPong{})
	b.SwapBuffers()
	b.DispatchAll()

	assert.Equal(t, 2, pings)
	assert.Equal(t, 1, pongs)
}

func TestEveryHandlerSeesEveryEvent(t *testing.T) {
	b := NewBus()
	var a, c int
	Subscribe(b, func(testPing) { a++ })
	Subscribe(b, func(testPing) { c++ })

	Emit(b, testPing{})
	b.SwapBuffers()
	b.DispatchAll()

	assert.Equal(t, 1, a)
	assert.Equal(t, 1, c)
}
