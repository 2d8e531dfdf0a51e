package system

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSystem struct {
	phase Phase
	name  string
	calls *[]string
}

func (f *fakeSystem) Phase() Phase { return f.phase }
func (f *fakeSystem) Update(int64) { *f.calls = append(*f.calls, f.name) }

func TestRunnerOrdersByPhaseKeepingRegistrationOrder(t *testing.T) {
	var calls []string
	r := NewRunner()
	r.Register(&fakeSystem{phase: PhasePost, name: "post", calls: &calls})
	r.Register(&fakeSystem{phase: PhaseInput, name: "input-a", calls: &calls})
	r.Register(&fakeSystem{phase: PhaseCombat, name: "combat", calls: &calls})
	r.Register(&fakeSystem{phase: PhaseInput, name: "input-b", calls: &calls})
	r.Register(&fakeSystem{phase: PhaseMovement, name: "movement", calls: &calls})

	r.Tick(1)
	assert.Equal(t, []string{"input-a", "input-b", "movement", "combat", "post"}, calls)

	// Late registration re-sorts before the next tick.
	r.Register(&fakeSystem{phase: PhaseResources, name: "resources", calls: &calls})
	calls = calls[:0]
	r.Tick(2)
	assert.Equal(t, []string{"input-a", "input-b", "movement", "combat", "resources", "post"}, calls)
}

func TestTaskQueueDrainsInPostOrder(t *testing.T) {
	q := NewTaskQueue()
	var got []int
	q.Post(func() { got = append(got, 1) })
	q.Post(func() { got = append(got, 2) })
	q.Post(func() { got = append(got, 3) })

	assert.Equal(t, 3, q.Len())
	assert.Equal(t, 3, q.Drain())
	assert.Equal(t, []int{1, 2, 3}, got)
	assert.Equal(t, 0, q.Len())
}

func TestTaskPostedDuringDrainWaitsForNextDrain(t *testing.T) {
	q := NewTaskQueue()
	var ran []string
	q.Post(func() {
		ran = append(ran, "first")
		q.Post(func() { ran = append(ran, "second") })
	})

	assert.Equal(t, 1, q.Drain())
	assert.Equal(t, []string{"first"}, ran)
	assert.Equal(t, 1, q.Drain())
	assert.Equal(t, []string{"first", "second"}, ran)
}

func TestTaskQueueAcceptsConcurrentPosts(t *testing.T) {
	q := NewTaskQueue()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Post(func() {})
		}()
	}
	wg.Wait()
	assert.Equal(t, 32, q.Drain())
}

func TestSchedulerAdvancesOneTickPerRun(t *testing.T) {
	var mu sync.Mutex
	var seen []int64
	r := NewRunner()
	r.Register(&tickRecorder{mu: &mu, seen: &seen})

	s := NewScheduler(time.Millisecond, r, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return s.CurrentTick() >= 3 }, time.Second, time.Millisecond)
	s.Stop()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(seen), 3)
	for i, tick := range seen {
		assert.Equal(t, int64(i+1), tick, "ticks advance by exactly one")
	}
}

type tickRecorder struct {
	mu   *sync.Mutex
	seen *[]int64
}

func (r *tickRecorder) Phase() Phase { return PhaseInput }
func (r *tickRecorder) Update(tick int64) {
	r.mu.Lock()
	*r.seen = append(*r.seen, tick)
	r.mu.Unlock()
}
