package auction

import "sync"

// listingLocks serializes work on a single listing while letting different
// listings proceed in parallel. Entries are dropped once unreferenced.
type listingLocks struct {
	mtx   sync.Mutex
	locks map[uint64]*listingLock
}

type listingLock struct {
	mtx  sync.Mutex
	refs int
}

func newListingLocks() *listingLocks {
	return &listingLocks{
		locks: make(map[uint64]*listingLock),
	}
}

func (l *listingLocks) Lock(listingID uint64) func() {
	l.mtx.Lock()
	lock := l.locks[listingID]
	if lock == nil {
		lock = new(listingLock)
		l.locks[listingID] = lock
	}
	lock.refs++
	l.mtx.Unlock()

	lock.mtx.Lock()
	return func() {
		lock.mtx.Unlock()
		l.mtx.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, listingID)
		}
		l.mtx.Unlock()
	}
}

func (l *listingLocks) size() int {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return len(l.locks)
}
