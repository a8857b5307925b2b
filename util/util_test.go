package util

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAppendUnique(t *testing.T) {
	s := AppendUnique([]string{"a"}, "b")
	s = AppendUnique(s, "a")
	s = AppendUnique(s, "b")
	require.Equal(t, []string{"a", "b"}, s)
}

func TestJsonEncoderDecoder(t *testing.T) {
	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	encDec := NewJsonEncoderDecoder[payload]()
	data, err := encDec.Encode(payload{Name: "x", Count: 2})
	require.NoError(t, err)
	require.JSONEq(t, `{"name":"x","count":2}`, string(data))

	_, err = encDec.Decode([]byte("{"))
	require.Error(t, err)
}

func TestWorker(t *testing.T) {
	wg := &sync.WaitGroup{}
	var mu sync.Mutex
	var got []int
	w := NewWorker("test", wg, func(v int) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, v)
		return nil
	}, 4)
	w.Start()
	for i := 0; i < 10; i++ {
		require.NoError(t, w.Send(i))
	}
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 10
	}, time.Second, time.Millisecond)
	mu.Lock()
	require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
	mu.Unlock()

	w.Stop()
	w.Stop()
	wg.Wait()
	require.ErrorIs(t, w.Send(11), ErrWorkerStopped)
}

func TestTickWorker(t *testing.T) {
	wg := &sync.WaitGroup{}
	var ticks atomic.Int32
	tw := NewTickWorker("ticker", time.Millisecond, func() {
		ticks.Add(1)
	}, wg)
	tw.Start()
	require.Eventually(t, func() bool {
		return ticks.Load() >= 3
	}, time.Second, time.Millisecond)
	tw.Stop()
	tw.Stop()
	wg.Wait()
}

func TestKeyedMutex(t *testing.T) {
	km := NewKeyedMutex()
	unlockA := km.Lock("a")

	// other keys are not blocked
	unlockB := km.Lock("b")
	unlockB()

	acquired := make(chan struct{})
	go func() {
		unlock := km.Lock("a")
		close(acquired)
		unlock()
	}()
	select {
	case <-acquired:
		t.Fatal("second lock of the same key acquired while held")
	case <-time.After(20 * time.Millisecond):
	}
	unlockA()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("lock not released")
	}

	require.Eventually(t, func() bool {
		km.mu.Lock()
		defer km.mu.Unlock()
		return len(km.locks) == 0
	}, time.Second, time.Millisecond)
}
