package scheduling

import (
	"context"
	"time"
)

// Store is the persistence boundary. Everything the core reads or writes goes
// through a Tx so that a reservation's stock decrement and booking commit or
// roll back together.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx contains all DB interactions needed by the core. Lookups return
// ErrNotFound when the record is absent; row-reading methods lock the rows
// they return until the transaction ends.
type Tx interface {
	// Vaccines
	GetVaccine(ctx context.Context, name string) (*Vaccine, error)
	// CreateVaccineIfAbsent reports whether a new record was written.
	CreateVaccineIfAbsent(ctx context.Context, name string, doses int) (bool, error)
	SetVaccineDoses(ctx context.Context, name string, doses int) error
	ListVaccines(ctx context.Context) ([]Vaccine, error)

	// Appointment identifiers
	NextAppointmentID(ctx context.Context) (int64, error)
	// LockAppointmentIDs serializes check-then-insert id allocation across
	// concurrent transactions.
	LockAppointmentIDs(ctx context.Context) error
	AppointmentIDExists(ctx context.Context, id int64) (bool, error)

	// Availability
	InsertSlot(ctx context.Context, slot Slot) (*Slot, error)
	GetSlot(ctx context.Context, caregiver string, date time.Time) (*Slot, error)
	GetSlotByID(ctx context.Context, id int64) (*Slot, error)
	// FindOpenSlot returns one unbooked slot on date, skipping slots that
	// other transactions hold.
	FindOpenSlot(ctx context.Context, date time.Time) (*Slot, error)
	SetSlotBooking(ctx context.Context, id int64, patient, vaccine *string) (*Slot, error)
	DeleteSlot(ctx context.Context, id int64) error
	ListBookedSlotsByCaregiver(ctx context.Context, caregiver string) ([]Slot, error)
	ListSlotsByPatient(ctx context.Context, patient string) ([]Slot, error)
	ListOpenCaregivers(ctx context.Context, date time.Time) ([]string, error)
	DeleteOpenSlotsBefore(ctx context.Context, date time.Time) ([]int64, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
