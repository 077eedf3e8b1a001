package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Registry tracks caregiver availability slots, at most one per caregiver per
// date, and their booking state.
type Registry struct {
	alloc IdentifierAllocator
}

func NewRegistry(alloc IdentifierAllocator) *Registry {
	if alloc == nil {
		alloc = NewSequenceAllocator()
	}
	return &Registry{alloc: alloc}
}

// Publish creates an open slot for caregiver on date. The appointment id is
// allocated here, not at booking time, and stays with the slot for its life.
func (r *Registry) Publish(ctx context.Context, tx Tx, caregiver string, date time.Time) (*Slot, error) {
	if err := requireName("caregiver", caregiver); err != nil {
		return nil, err
	}
	date = DateOf(date)

	existing, err := tx.GetSlot(ctx, caregiver, date)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, storageErr("get slot", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("caregiver %q on %s: %w", caregiver, FormatDate(date), ErrConflict)
	}

	id, err := r.alloc.Allocate(ctx, tx)
	if err != nil {
		return nil, err
	}

	slot, err := tx.InsertSlot(ctx, Slot{ID: id, Caregiver: caregiver, Date: date})
	if err != nil {
		return nil, storageErr("insert slot", err)
	}
	return slot, nil
}

// FindOpenSlot selects one open slot on date.
func (r *Registry) FindOpenSlot(ctx context.Context, tx Tx, date time.Time) (*Slot, error) {
	slot, err := tx.FindOpenSlot(ctx, DateOf(date))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", FormatDate(date), ErrNoAvailability)
		}
		return nil, storageErr("find open slot", err)
	}
	return slot, nil
}

// Book assigns patient and vaccine to the open slot of caregiver on date.
func (r *Registry) Book(ctx context.Context, tx Tx, caregiver string, date time.Time, patient, vaccine string) (*Slot, error) {
	if err := requireName("patient", patient); err != nil {
		return nil, err
	}
	if err := validateVaccineName(vaccine); err != nil {
		return nil, err
	}

	slot, err := tx.GetSlot(ctx, caregiver, DateOf(date))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("slot for caregiver %q on %s: %w", caregiver, FormatDate(date), ErrNotFound)
		}
		return nil, storageErr("get slot", err)
	}
	if slot.Booked() {
		return nil, fmt.Errorf("appointment %d: %w", slot.ID, ErrAlreadyBooked)
	}

	booked, err := tx.SetSlotBooking(ctx, slot.ID, strPtr(patient), strPtr(vaccine))
	if err != nil {
		return nil, storageErr("book slot", err)
	}
	return booked, nil
}

// CancelByCaregiver destroys the caregiver's slot with the given id, booked or
// not. The returned slot is the state before deletion.
func (r *Registry) CancelByCaregiver(ctx context.Context, tx Tx, caregiver string, id int64) (*Slot, error) {
	slot, err := tx.GetSlotByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("appointment %d: %w", id, ErrNotFound)
		}
		return nil, storageErr("get slot", err)
	}
	if slot.Caregiver != caregiver {
		return nil, fmt.Errorf("appointment %d: %w", id, ErrNotFound)
	}

	if err := tx.DeleteSlot(ctx, id); err != nil {
		return nil, storageErr("delete slot", err)
	}
	return slot, nil
}

// CancelByPatient reopens the slot booked to patient. Identifier and caregiver
// stay bound to the slot. The returned slot is the state before reopening.
func (r *Registry) CancelByPatient(ctx context.Context, tx Tx, patient string, id int64) (*Slot, error) {
	slot, err := tx.GetSlotByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("appointment %d: %w", id, ErrNotFound)
		}
		return nil, storageErr("get slot", err)
	}
	if !slot.Booked() || *slot.Patient != patient {
		return nil, fmt.Errorf("appointment %d: %w", id, ErrNotFound)
	}

	if _, err := tx.SetSlotBooking(ctx, id, nil, nil); err != nil {
		return nil, storageErr("reopen slot", err)
	}
	return slot, nil
}

func (r *Registry) ListForCaregiver(ctx context.Context, tx Tx, caregiver string) ([]Slot, error) {
	slots, err := tx.ListBookedSlotsByCaregiver(ctx, caregiver)
	if err != nil {
		return nil, storageErr("list caregiver slots", err)
	}
	return slots, nil
}

// ListForPatient returns only slots currently booked to patient.
func (r *Registry) ListForPatient(ctx context.Context, tx Tx, patient string) ([]Slot, error) {
	slots, err := tx.ListSlotsByPatient(ctx, patient)
	if err != nil {
		return nil, storageErr("list patient slots", err)
	}
	return slots, nil
}

func (r *Registry) OpenCaregivers(ctx context.Context, tx Tx, date time.Time) ([]string, error) {
	names, err := tx.ListOpenCaregivers(ctx, DateOf(date))
	if err != nil {
		return nil, storageErr("list open caregivers", err)
	}
	return names, nil
}

// PurgeOpenBefore deletes open slots dated strictly before date.
func (r *Registry) PurgeOpenBefore(ctx context.Context, tx Tx, date time.Time) ([]int64, error) {
	ids, err := tx.DeleteOpenSlotsBefore(ctx, DateOf(date))
	if err != nil {
		return nil, storageErr("purge open slots", err)
	}
	return ids, nil
}

func requireName(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidArgument, field)
	}
	return nil
}
