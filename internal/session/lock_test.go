package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLock_SerializesSameUser(t *testing.T) {
	s, _ := newTestStore(t)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := s.Lock(context.Background(), "U1")
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()

			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 0, s.locks.len())
}

func TestLock_DifferentUsersIndependent(t *testing.T) {
	s, _ := newTestStore(t)
	unlockA, err := s.Lock(context.Background(), "A")
	require.NoError(t, err)
	defer unlockA()

	unlockB, ok := s.TryLock("B")
	require.True(t, ok)
	unlockB()
}

func TestLock_ContextCancelled(t *testing.T) {
	s, _ := newTestStore(t)
	unlock, err := s.Lock(context.Background(), "U1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.Lock(ctx, "U1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock()
	assert.Equal(t, 0, s.locks.len())
}

func TestTryLock_Busy(t *testing.T) {
	s, _ := newTestStore(t)
	unlock, ok := s.TryLock("U1")
	require.True(t, ok)

	_, ok = s.TryLock("U1")
	assert.False(t, ok)

	unlock()
	unlock2, ok := s.TryLock("U1")
	assert.True(t, ok)
	unlock2()
}
