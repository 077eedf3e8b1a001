package scheduling

import (
	"context"
	"fmt"
	"math/rand"
)

// IdentifierAllocator hands out appointment ids that no existing slot uses.
// Allocate runs inside the transaction that inserts the slot.
type IdentifierAllocator interface {
	Allocate(ctx context.Context, tx Tx) (int64, error)
}

// SequenceAllocator draws from a persisted, atomically incremented counter.
type SequenceAllocator struct{}

func NewSequenceAllocator() *SequenceAllocator {
	return &SequenceAllocator{}
}

func (a *SequenceAllocator) Allocate(ctx context.Context, tx Tx) (int64, error) {
	id, err := tx.NextAppointmentID(ctx)
	if err != nil {
		return 0, storageErr("next appointment id", err)
	}
	if id <= 0 {
		return 0, fmt.Errorf("%w: sequence returned %d", ErrStorage, id)
	}
	return id, nil
}

const (
	DefaultIDRangeMax    = 10000
	DefaultIDMaxAttempts = 32
)

// RandomAllocator draws ids uniformly from [1, Max] and retries on collision
// at most MaxAttempts times. The existence check and the caller's insert share
// one locked region.
type RandomAllocator struct {
	max         int64
	maxAttempts int
	intn        func(n int64) int64
}

func NewRandomAllocator(max int64, maxAttempts int) *RandomAllocator {
	if max <= 0 {
		max = DefaultIDRangeMax
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultIDMaxAttempts
	}
	return &RandomAllocator{
		max:         max,
		maxAttempts: maxAttempts,
		intn:        rand.Int63n,
	}
}

func (a *RandomAllocator) Allocate(ctx context.Context, tx Tx) (int64, error) {
	if err := tx.LockAppointmentIDs(ctx); err != nil {
		return 0, storageErr("lock appointment ids", err)
	}

	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		id := a.intn(a.max) + 1
		exists, err := tx.AppointmentIDExists(ctx, id)
		if err != nil {
			return 0, storageErr("check appointment id", err)
		}
		if !exists {
			return id, nil
		}
	}

	return 0, fmt.Errorf("%w: %d attempts in range [1, %d]", ErrAllocationExhausted, a.maxAttempts, a.max)
}
