package scheduling_test

import (
	"context"
	"errors"
	"testing"

	"github.com/hackgods/vaccine-reservation-scheduling/internal/scheduling"
	"github.com/hackgods/vaccine-reservation-scheduling/internal/store/memory"
)

func TestRegistry_PublishAndBook(t *testing.T) {
	store := memory.New()
	reg := scheduling.NewRegistry(nil)

	err := inTx(t, store, func(ctx context.Context, tx scheduling.Tx) error {
		a, err := reg.Publish(ctx, tx, "alice", june1)
		if err != nil {
			return err
		}
		b, err := reg.Publish(ctx, tx, "bob", june1)
		if err != nil {
			return err
		}
		if a.ID == b.ID {
			t.Fatalf("two slots share id %d", a.ID)
		}
		if a.Booked() {
			t.Fatal("new slot should be open")
		}

		if _, err := reg.Publish(ctx, tx, "alice", june1); !errors.Is(err, scheduling.ErrConflict) {
			t.Fatalf("duplicate publish: %v", err)
		}

		open, err := reg.FindOpenSlot(ctx, tx, june1)
		if err != nil {
			return err
		}
		if open.Caregiver != "alice" {
			t.Fatalf("open slot caregiver = %q, want alice", open.Caregiver)
		}

		booked, err := reg.Book(ctx, tx, "alice", june1, "pat", "vaccX")
		if err != nil {
			return err
		}
		if booked.ID != a.ID || !booked.Booked() || *booked.Vaccine != "vaccX" {
			t.Fatalf("unexpected booking: %+v", booked)
		}

		if _, err := reg.Book(ctx, tx, "alice", june1, "other", "vaccX"); !errors.Is(err, scheduling.ErrAlreadyBooked) {
			t.Fatalf("double book: %v", err)
		}
		if _, err := reg.Book(ctx, tx, "nobody", june1, "pat", "vaccX"); !errors.Is(err, scheduling.ErrNotFound) {
			t.Fatalf("book missing slot: %v", err)
		}

		open, err = reg.FindOpenSlot(ctx, tx, june1)
		if err != nil {
			return err
		}
		if open.Caregiver != "bob" {
			t.Fatalf("open slot caregiver = %q, want bob", open.Caregiver)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
}

func TestRegistry_FindOpenSlotNoAvailability(t *testing.T) {
	err := inTx(t, memory.New(), func(ctx context.Context, tx scheduling.Tx) error {
		_, err := scheduling.NewRegistry(nil).FindOpenSlot(ctx, tx, june1)
		return err
	})
	if !errors.Is(err, scheduling.ErrNoAvailability) {
		t.Fatalf("error = %v, want ErrNoAvailability", err)
	}
}

func TestRegistry_CancelTransitions(t *testing.T) {
	store := memory.New()
	reg := scheduling.NewRegistry(nil)

	err := inTx(t, store, func(ctx context.Context, tx scheduling.Tx) error {
		slot, err := reg.Publish(ctx, tx, "alice", june1)
		if err != nil {
			return err
		}

		if _, err := reg.CancelByPatient(ctx, tx, "pat", slot.ID); !errors.Is(err, scheduling.ErrNotFound) {
			t.Fatalf("patient cancel of open slot: %v", err)
		}

		if _, err := reg.Book(ctx, tx, "alice", june1, "pat", "vaccX"); err != nil {
			return err
		}

		before, err := reg.CancelByPatient(ctx, tx, "pat", slot.ID)
		if err != nil {
			return err
		}
		if !before.Booked() || *before.Patient != "pat" {
			t.Fatalf("CancelByPatient should return the booked state: %+v", before)
		}

		reopened, err := tx.GetSlotByID(ctx, slot.ID)
		if err != nil {
			return err
		}
		if reopened.Booked() || reopened.Caregiver != "alice" {
			t.Fatalf("slot not reopened: %+v", reopened)
		}

		if _, err := reg.CancelByCaregiver(ctx, tx, "bob", slot.ID); !errors.Is(err, scheduling.ErrNotFound) {
			t.Fatalf("foreign caregiver cancel: %v", err)
		}
		if _, err := reg.CancelByCaregiver(ctx, tx, "alice", slot.ID); err != nil {
			return err
		}
		if _, err := tx.GetSlotByID(ctx, slot.ID); !errors.Is(err, scheduling.ErrNotFound) {
			t.Fatalf("slot should be destroyed: %v", err)
		}

		republished, err := reg.Publish(ctx, tx, "alice", june1)
		if err != nil {
			return err
		}
		if republished.ID == slot.ID {
			t.Fatalf("republished slot reused id %d", slot.ID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
}
