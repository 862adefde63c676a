package actor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"near-intents/pkg/intent"
)

func TestMailboxFIFO(t *testing.T) {
	m := NewMailbox[int]()
	for i := 0; i < 100; i++ {
		require.True(t, m.Send(i))
	}
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		v, ok := m.Receive(ctx)
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
}

func TestMailboxCloseDrains(t *testing.T) {
	m := NewMailbox[string]()
	m.Send("a")
	m.Close()
	assert.False(t, m.Send("b"))

	v, ok := m.Receive(context.Background())
	assert.True(t, ok)
	assert.Equal(t, "a", v)

	_, ok = m.Receive(context.Background())
	assert.False(t, ok)
}

func TestMailboxReceiveHonoursContext(t *testing.T) {
	m := NewMailbox[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, ok := m.Receive(ctx)
	assert.False(t, ok)
}

func TestMailboxConcurrentSenders(t *testing.T) {
	m := NewMailbox[int]()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				m.Send(i)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 400, m.Len())
}

func TestSupervisorRemovesFinishedChildren(t *testing.T) {
	exited := make(chan string, 1)
	s := NewSupervisor[string]("test", func(key string, err error) {
		assert.NoError(t, err)
		exited <- key
	})

	release := make(chan struct{})
	require.NoError(t, s.Spawn(context.Background(), "k1", "child", func(ctx context.Context) error {
		<-release
		return nil
	}))

	c, ok := s.Get("k1")
	require.True(t, ok)
	assert.Equal(t, "child", c)
	assert.Error(t, s.Spawn(context.Background(), "k1", "dup", func(context.Context) error { return nil }))

	close(release)
	assert.Equal(t, "k1", <-exited)
	s.Wait()
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.Keys())
}

func TestSupervisorConvertsPanics(t *testing.T) {
	errs := make(chan error, 1)
	s := NewSupervisor[int]("test", func(_ string, err error) { errs <- err })

	require.NoError(t, s.Spawn(context.Background(), "boom", 1, func(context.Context) error {
		panic("kaboom")
	}))

	err := <-errs
	require.Error(t, err)
	assert.Equal(t, intent.CodeActorCrashed, intent.CodeOf(err))
	assert.True(t, errors.Is(err, intent.NewError(intent.CodeActorCrashed, "")))
}
