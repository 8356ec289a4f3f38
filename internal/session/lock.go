package session

import (
	"context"
	"sync"
)

// userLocks serializes work per user. Each lock is a one-slot channel so
// waiters can give up when their context ends. Entries are reference counted
// and dropped once nobody holds or waits on them.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	ch   chan struct{}
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*userLock)}
}

func (u *userLocks) acquireRef(userID string) *userLock {
	u.mu.Lock()
	defer u.mu.Unlock()
	l, ok := u.locks[userID]
	if !ok {
		l = &userLock{ch: make(chan struct{}, 1)}
		u.locks[userID] = l
	}
	l.refs++
	return l
}

func (u *userLocks) releaseRef(userID string, l *userLock) {
	u.mu.Lock()
	defer u.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(u.locks, userID)
	}
}

func (u *userLocks) lock(ctx context.Context, userID string) (func(), error) {
	l := u.acquireRef(userID)
	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		u.releaseRef(userID, l)
		return nil, ctx.Err()
	}
	return u.unlocker(userID, l), nil
}

func (u *userLocks) tryLock(userID string) (func(), bool) {
	l := u.acquireRef(userID)
	select {
	case l.ch <- struct{}{}:
		return u.unlocker(userID, l), true
	default:
		u.releaseRef(userID, l)
		return nil, false
	}
}

func (u *userLocks) unlocker(userID string, l *userLock) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.ch
			u.releaseRef(userID, l)
		})
	}
}

func (u *userLocks) len() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.locks)
}
