package loop

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoopRunsInOrder(t *testing.T) {
	l := New(0)
	defer l.Stop()

	var (
		mu  sync.Mutex
		got []int
		wg  sync.WaitGroup
	)
	wg.Add(100)
	for i := 0; i < 100; i++ {
		i := i
		require.True(t, l.Post(func() {
			defer wg.Done()
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}
	wg.Wait()

	for i, v := range got {
		require.Equal(t, i, v)
	}
}

func TestLoopPostAfterStop(t *testing.T) {
	l := New(1)
	l.Stop()
	l.Stop()

	select {
	case <-l.Stopped():
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}

	require.False(t, l.Post(func() {}))
}

func TestLoopStopFromTask(t *testing.T) {
	l := New(1)
	require.True(t, l.Post(l.Stop))

	select {
	case <-l.Stopped():
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
}
