// internal/services/clock.go
package services

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Clock supplies the current time to the workflow services.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// SolicitudLocks hands out one mutex per application id so unrelated
// applications never contend. Entries are dropped once no goroutine holds or
// waits on them. The state machine and the signature process share one set.
type SolicitudLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func NewSolicitudLocks() *SolicitudLocks {
	return &SolicitudLocks{locks: make(map[uuid.UUID]*keyedLock)}
}

// Lock blocks until the caller owns id and returns the matching unlock.
func (k *SolicitudLocks) Lock(id uuid.UUID) func() {
	k.mu.Lock()
	l, ok := k.locks[id]
	if !ok {
		l = &keyedLock{}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
