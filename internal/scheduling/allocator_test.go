package scheduling

import (
	"context"
	"errors"
	"testing"
)

// fakeTx implements only what the allocators call.
type fakeTx struct {
	Tx

	nextID   func(ctx context.Context) (int64, error)
	lockIDs  func(ctx context.Context) error
	idExists func(ctx context.Context, id int64) (bool, error)
}

func (f *fakeTx) NextAppointmentID(ctx context.Context) (int64, error) {
	if f.nextID == nil {
		panic("NextAppointmentID not configured")
	}
	return f.nextID(ctx)
}

func (f *fakeTx) LockAppointmentIDs(ctx context.Context) error {
	if f.lockIDs == nil {
		panic("LockAppointmentIDs not configured")
	}
	return f.lockIDs(ctx)
}

func (f *fakeTx) AppointmentIDExists(ctx context.Context, id int64) (bool, error) {
	if f.idExists == nil {
		panic("AppointmentIDExists not configured")
	}
	return f.idExists(ctx, id)
}

func TestSequenceAllocator(t *testing.T) {
	ctx := context.Background()
	a := NewSequenceAllocator()

	id, err := a.Allocate(ctx, &fakeTx{nextID: func(context.Context) (int64, error) { return 7, nil }})
	if err != nil || id != 7 {
		t.Fatalf("Allocate = %d, %v; want 7", id, err)
	}

	_, err = a.Allocate(ctx, &fakeTx{nextID: func(context.Context) (int64, error) { return 0, nil }})
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("non-positive sequence: %v", err)
	}

	boom := errors.New("connection reset")
	_, err = a.Allocate(ctx, &fakeTx{nextID: func(context.Context) (int64, error) { return 0, boom }})
	if !errors.Is(err, ErrStorage) || !errors.Is(err, boom) {
		t.Fatalf("driver error should match ErrStorage and the cause: %v", err)
	}
}

func TestRandomAllocator_RetriesOnCollision(t *testing.T) {
	draws := []int64{4, 4, 9}
	a := NewRandomAllocator(10, 5)
	a.intn = func(n int64) int64 {
		if n != 10 {
			t.Fatalf("intn bound = %d, want 10", n)
		}
		d := draws[0]
		draws = draws[1:]
		return d
	}

	locked := false
	tx := &fakeTx{
		lockIDs: func(context.Context) error { locked = true; return nil },
		idExists: func(_ context.Context, id int64) (bool, error) {
			if !locked {
				t.Fatal("existence checked before the id lock was taken")
			}
			return id == 5, nil
		},
	}

	id, err := a.Allocate(context.Background(), tx)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if id != 10 {
		t.Fatalf("id = %d, want 10 (third draw, shifted to [1, max])", id)
	}
}

func TestRandomAllocator_Exhausted(t *testing.T) {
	a := NewRandomAllocator(3, 4)
	checks := 0
	tx := &fakeTx{
		lockIDs: func(context.Context) error { return nil },
		idExists: func(context.Context, int64) (bool, error) {
			checks++
			return true, nil
		},
	}

	_, err := a.Allocate(context.Background(), tx)
	if !errors.Is(err, ErrAllocationExhausted) {
		t.Fatalf("error = %v, want ErrAllocationExhausted", err)
	}
	if checks != 4 {
		t.Fatalf("attempts = %d, want 4", checks)
	}
}

func TestRandomAllocator_LockFailure(t *testing.T) {
	a := NewRandomAllocator(0, 0)
	if a.max != DefaultIDRangeMax || a.maxAttempts != DefaultIDMaxAttempts {
		t.Fatalf("defaults not applied: %+v", a)
	}

	_, err := a.Allocate(context.Background(), &fakeTx{
		lockIDs: func(context.Context) error { return errors.New("deadlock detected") },
	})
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("error = %v, want ErrStorage", err)
	}
}
