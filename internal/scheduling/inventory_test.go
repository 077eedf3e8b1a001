package scheduling_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/hackgods/vaccine-reservation-scheduling/internal/scheduling"
	"github.com/hackgods/vaccine-reservation-scheduling/internal/store/memory"
)

func inTx(t *testing.T, store scheduling.Store, fn func(ctx context.Context, tx scheduling.Tx) error) error {
	t.Helper()
	return store.InTx(context.Background(), fn)
}

func TestInventory_IncreaseCreatesThenAdds(t *testing.T) {
	store := memory.New()
	inv := scheduling.NewInventory()

	err := inTx(t, store, func(ctx context.Context, tx scheduling.Tx) error {
		v, err := inv.Increase(ctx, tx, "vaccX", 3)
		if err != nil {
			return err
		}
		if v.Doses != 3 {
			t.Fatalf("created with %d doses, want 3", v.Doses)
		}
		v, err = inv.Increase(ctx, tx, "vaccX", 2)
		if err != nil {
			return err
		}
		if v.Doses != 5 {
			t.Fatalf("after second increase %d doses, want 5", v.Doses)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
}

func TestInventory_IncreaseThenDecreaseRestoresCount(t *testing.T) {
	store := memory.New()
	inv := scheduling.NewInventory()

	for _, n := range []int{1, 2, 7} {
		err := inTx(t, store, func(ctx context.Context, tx scheduling.Tx) error {
			if _, err := inv.Increase(ctx, tx, "vaccX", 4); err != nil {
				return err
			}
			before, err := inv.Get(ctx, tx, "vaccX")
			if err != nil {
				return err
			}
			if _, err := inv.Increase(ctx, tx, "vaccX", n); err != nil {
				return err
			}
			after, err := inv.Decrease(ctx, tx, "vaccX", n)
			if err != nil {
				return err
			}
			if after.Doses != before.Doses {
				t.Fatalf("n=%d: count %d, want %d", n, after.Doses, before.Doses)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("n=%d: %v", n, err)
		}
	}
}

func TestInventory_Errors(t *testing.T) {
	store := memory.New()
	inv := scheduling.NewInventory()

	err := inTx(t, store, func(ctx context.Context, tx scheduling.Tx) error {
		_, err := inv.Increase(ctx, tx, "vaccX", 2)
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	cases := []struct {
		name string
		op   func(ctx context.Context, tx scheduling.Tx) error
		want error
	}{
		{"increase zero", func(ctx context.Context, tx scheduling.Tx) error {
			_, err := inv.Increase(ctx, tx, "vaccX", 0)
			return err
		}, scheduling.ErrInvalidArgument},
		{"increase negative", func(ctx context.Context, tx scheduling.Tx) error {
			_, err := inv.Increase(ctx, tx, "vaccX", -1)
			return err
		}, scheduling.ErrInvalidArgument},
		{"blank name", func(ctx context.Context, tx scheduling.Tx) error {
			_, err := inv.Increase(ctx, tx, "  ", 1)
			return err
		}, scheduling.ErrInvalidArgument},
		{"decrease unknown", func(ctx context.Context, tx scheduling.Tx) error {
			_, err := inv.Decrease(ctx, tx, "vaccY", 1)
			return err
		}, scheduling.ErrNotFound},
		{"decrease too many", func(ctx context.Context, tx scheduling.Tx) error {
			_, err := inv.Decrease(ctx, tx, "vaccX", 3)
			return err
		}, scheduling.ErrInsufficientStock},
		{"get unknown", func(ctx context.Context, tx scheduling.Tx) error {
			_, err := inv.Get(ctx, tx, "vaccY")
			return err
		}, scheduling.ErrNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := inTx(t, store, tc.op); !errors.Is(err, tc.want) {
				t.Fatalf("error = %v, want %v", err, tc.want)
			}
		})
	}

	err = inTx(t, store, func(ctx context.Context, tx scheduling.Tx) error {
		v, err := inv.Get(ctx, tx, "vaccX")
		if err != nil {
			return err
		}
		if v.Doses != 2 {
			t.Fatalf("failed operations changed stock to %d", v.Doses)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
}

func TestInventory_IncreaseRejectsOverflow(t *testing.T) {
	store := memory.New()
	inv := scheduling.NewInventory()

	err := inTx(t, store, func(ctx context.Context, tx scheduling.Tx) error {
		_, err := inv.Increase(ctx, tx, "vaccX", scheduling.MaxDoses)
		return err
	})
	if err != nil {
		t.Fatalf("fill to bound: %v", err)
	}

	cases := []struct {
		name    string
		vaccine string
		n       int
	}{
		{"one past bound", "vaccX", 1},
		{"max int on existing", "vaccX", math.MaxInt},
		{"new product above bound", "vaccY", scheduling.MaxDoses + 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := inTx(t, store, func(ctx context.Context, tx scheduling.Tx) error {
				_, err := inv.Increase(ctx, tx, tc.vaccine, tc.n)
				return err
			})
			if !errors.Is(err, scheduling.ErrInvalidArgument) {
				t.Fatalf("error = %v, want invalid argument", err)
			}
			if errors.Is(err, scheduling.ErrStorage) {
				t.Fatalf("overflow reported as storage failure: %v", err)
			}
		})
	}

	err = inTx(t, store, func(ctx context.Context, tx scheduling.Tx) error {
		v, err := inv.Get(ctx, tx, "vaccX")
		if err != nil {
			return err
		}
		if v.Doses != scheduling.MaxDoses {
			t.Fatalf("rejected increase changed stock to %d", v.Doses)
		}
		_, err = inv.Get(ctx, tx, "vaccY")
		if !errors.Is(err, scheduling.ErrNotFound) {
			t.Fatalf("rejected create left vaccY behind: %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
}
