package postgresadapter

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SystemClock implements ports.Clock using wall-clock UTC time.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// UUIDGenerator implements ports.IDGenerator with random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

// StoreLocks serializes governance operations per store within this process.
// Deployments run a single writer process per store, so process-local mutexes
// satisfy the exclusive-access-per-operation requirement.
type StoreLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewStoreLocks() *StoreLocks {
	return &StoreLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *StoreLocks) AcquireStore(storeID string) func() {
	l.mu.Lock()
	lock, ok := l.locks[strings.TrimSpace(storeID)]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[strings.TrimSpace(storeID)] = lock
	}
	l.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
