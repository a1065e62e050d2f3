package attachment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandle_DataLoadsOnce(t *testing.T) {
	calls := 0
	h := NewHandle(".message.attachment", "a.txt", "text/plain", func() ([]byte, error) {
		calls++
		return []byte("hello"), nil
	})

	assert.False(t, h.Loaded())

	data, err := h.Data(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	data, err = h.Data(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, 1, calls)
	assert.True(t, h.Loaded())
}

func TestHandle_LoadError(t *testing.T) {
	boom := errors.New("boom")
	h := NewHandle("x", "", "", func() ([]byte, error) { return nil, boom })

	_, err := h.Data(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestHandle_Cancel(t *testing.T) {
	h := NewHandle("x", "", "", func() ([]byte, error) {
		t.Fatal("cancelled handle must not load")
		return nil, nil
	})

	h.Cancel()

	_, err := h.Data(context.Background())
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestHandle_WaitHonoursContext(t *testing.T) {
	h := NewHandle("x", "", "", func() ([]byte, error) { return nil, nil })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, h.Wait(ctx), context.DeadlineExceeded)
}

func TestLoader_PriorityOrder(t *testing.T) {
	l := NewLoader(1, nil)
	defer l.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	blocker := NewHandle("blocker", "", "", func() ([]byte, error) {
		close(started)
		<-release
		return nil, nil
	})
	l.Schedule(blocker, PriorityHigh)
	<-started

	var mu sync.Mutex
	var order []string
	record := func(name string) LoadFunc {
		return func() ([]byte, error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return []byte(name), nil
		}
	}

	low := NewHandle("low", "", "", record("low"))
	normal1 := NewHandle("normal1", "", "", record("normal1"))
	high := NewHandle("high", "", "", record("high"))
	normal2 := NewHandle("normal2", "", "", record("normal2"))

	l.Schedule(low, PriorityLow)
	l.Schedule(normal1, PriorityNormal)
	l.Schedule(high, PriorityHigh)
	l.Schedule(normal2, PriorityNormal)
	assert.Equal(t, 4, l.Pending())

	close(release)

	for _, h := range []*Handle{low, normal1, high, normal2} {
		require.NoError(t, h.Wait(context.Background()))
		assert.True(t, h.Scheduled())
	}

	assert.Equal(t, []string{"high", "normal1", "normal2", "low"}, order)
}

func TestLoader_CloseCancelsPending(t *testing.T) {
	l := NewLoader(1, nil)

	release := make(chan struct{})
	started := make(chan struct{})
	blocker := NewHandle("blocker", "", "", func() ([]byte, error) {
		close(started)
		<-release
		return []byte("done"), nil
	})
	l.Schedule(blocker, PriorityNormal)
	<-started

	pending := NewHandle("pending", "", "", func() ([]byte, error) { return []byte("late"), nil })
	l.Schedule(pending, PriorityNormal)

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(release)
	}()
	l.Close()

	_, err := pending.Data(context.Background())
	assert.ErrorIs(t, err, ErrCancelled)

	data, err := blocker.Data(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "done", string(data))

	late := NewHandle("late", "", "", func() ([]byte, error) { return nil, nil })
	l.Schedule(late, PriorityHigh)
	assert.ErrorIs(t, late.Wait(context.Background()), ErrCancelled)
}
