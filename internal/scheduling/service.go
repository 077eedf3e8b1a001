package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	EventAvailabilityPublished = "AVAILABILITY_PUBLISHED"
	EventAvailabilityPurged    = "AVAILABILITY_PURGED"
	EventAppointmentReserved   = "APPOINTMENT_RESERVED"
	EventCancelledByPatient    = "APPOINTMENT_CANCELLED_BY_PATIENT"
	EventCancelledByCaregiver  = "APPOINTMENT_CANCELLED_BY_CAREGIVER"
	EventDosesAdded            = "DOSES_ADDED"
)

// Service is the reservation engine. Every call names the acting identity
// explicitly; there is no process-wide "current user".
type Service struct {
	store     Store
	locker    Locker
	inventory *Inventory
	registry  *Registry
	log       *zap.Logger
}

func NewService(store Store, locker Locker, alloc IdentifierAllocator, log *zap.Logger) *Service {
	if locker == nil {
		locker = NewLocalLocker()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:     store,
		locker:    locker,
		inventory: NewInventory(),
		registry:  NewRegistry(alloc),
		log:       log.Named("scheduling"),
	}
}

// Reserve books an open slot on date for the acting patient and takes one
// dose of vaccine. Stock decrement and booking commit together or not at all.
func (s *Service) Reserve(ctx context.Context, actor Actor, date time.Time, vaccine string) (Reservation, error) {
	if err := authorize(actor, RolePatient); err != nil {
		return Reservation{}, err
	}
	if err := validateVaccineName(vaccine); err != nil {
		return Reservation{}, err
	}
	date = DateOf(date)
	day := FormatDate(date)

	var res Reservation

	err := s.locker.WithLock(ctx, reserveLockKey(day), func(ctx context.Context) error {
		return s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
			slot, err := s.registry.FindOpenSlot(ctx, tx, date)
			if err != nil {
				return err
			}

			stock, err := s.inventory.Get(ctx, tx, vaccine)
			if errors.Is(err, ErrNotFound) || (err == nil && stock.Doses == 0) {
				return fmt.Errorf("%q: %w", vaccine, ErrVaccineUnavailable)
			}
			if err != nil {
				return err
			}

			if _, err := s.inventory.Decrease(ctx, tx, vaccine, 1); err != nil {
				if errors.Is(err, ErrInsufficientStock) {
					return fmt.Errorf("%q: %w", vaccine, ErrVaccineUnavailable)
				}
				return err
			}

			booked, err := s.registry.Book(ctx, tx, slot.Caregiver, date, actor.ID, vaccine)
			if err != nil {
				return fmt.Errorf("book slot: %w", err)
			}

			if err := s.logEvent(ctx, tx, &booked.ID, EventAppointmentReserved, map[string]any{
				"caregiver": booked.Caregiver,
				"patient":   actor.ID,
				"vaccine":   vaccine,
				"date":      day,
			}); err != nil {
				return err
			}

			res = Reservation{
				AppointmentID: booked.ID,
				Caregiver:     booked.Caregiver,
				Patient:       actor.ID,
				Vaccine:       vaccine,
				Date:          date,
			}
			return nil
		})
	})
	if err != nil {
		return Reservation{}, s.fail("reserve", err, zap.String("patient", actor.ID), zap.String("date", day), zap.String("vaccine", vaccine))
	}

	s.log.Info("appointment reserved",
		zap.Int64("appointment_id", res.AppointmentID),
		zap.String("caregiver", res.Caregiver),
		zap.String("patient", res.Patient),
		zap.String("vaccine", res.Vaccine),
		zap.String("date", day),
	)
	return res, nil
}

// UploadAvailability publishes an open slot for the acting caregiver.
func (s *Service) UploadAvailability(ctx context.Context, actor Actor, date time.Time) (Slot, error) {
	if err := authorize(actor, RoleCaregiver); err != nil {
		return Slot{}, err
	}
	date = DateOf(date)
	day := FormatDate(date)

	var published Slot

	err := s.locker.WithLock(ctx, availabilityLockKey(actor.ID, day), func(ctx context.Context) error {
		return s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
			slot, err := s.registry.Publish(ctx, tx, actor.ID, date)
			if err != nil {
				return err
			}
			if err := s.logEvent(ctx, tx, &slot.ID, EventAvailabilityPublished, map[string]any{
				"caregiver": actor.ID,
				"date":      day,
			}); err != nil {
				return err
			}
			published = *slot
			return nil
		})
	})
	if err != nil {
		return Slot{}, s.fail("upload availability", err, zap.String("caregiver", actor.ID), zap.String("date", day))
	}

	s.log.Info("availability published",
		zap.Int64("appointment_id", published.ID),
		zap.String("caregiver", actor.ID),
		zap.String("date", day),
	)
	return published, nil
}

// Cancel dispatches on the acting role: a caregiver destroys the slot, a
// patient reopens it. A booked vaccine is credited back exactly once.
func (s *Service) Cancel(ctx context.Context, actor Actor, id int64) (Cancellation, error) {
	if err := actor.validate(); err != nil {
		return Cancellation{}, err
	}
	if id <= 0 {
		return Cancellation{}, fmt.Errorf("%w: appointment id must be positive", ErrInvalidArgument)
	}

	var out Cancellation

	err := s.locker.WithLock(ctx, appointmentLockKey(id), func(ctx context.Context) error {
		return s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
			var (
				slot      *Slot
				err       error
				eventType string
			)
			switch actor.Role {
			case RoleCaregiver:
				slot, err = s.registry.CancelByCaregiver(ctx, tx, actor.ID, id)
				eventType = EventCancelledByCaregiver
			case RolePatient:
				slot, err = s.registry.CancelByPatient(ctx, tx, actor.ID, id)
				eventType = EventCancelledByPatient
			}
			if err != nil {
				return err
			}

			out = Cancellation{
				AppointmentID: slot.ID,
				Caregiver:     slot.Caregiver,
				Date:          slot.Date,
			}
			if slot.Booked() {
				if _, err := s.inventory.Increase(ctx, tx, *slot.Vaccine, 1); err != nil {
					return fmt.Errorf("restock %q: %w", *slot.Vaccine, err)
				}
				out.Vaccine = *slot.Vaccine
			}

			return s.logEvent(ctx, tx, &slot.ID, eventType, map[string]any{
				"actor":     actor.String(),
				"caregiver": slot.Caregiver,
				"date":      FormatDate(slot.Date),
				"restocked": out.Vaccine,
			})
		})
	})
	if err != nil {
		return Cancellation{}, s.fail("cancel", err, zap.String("actor", actor.String()), zap.Int64("appointment_id", id))
	}

	s.log.Info("appointment cancelled",
		zap.Int64("appointment_id", id),
		zap.String("actor", actor.String()),
		zap.String("restocked", out.Vaccine),
	)
	return out, nil
}

// AddDoses restocks vaccine, creating it on first reference.
func (s *Service) AddDoses(ctx context.Context, actor Actor, vaccine string, count int) (Vaccine, error) {
	if err := authorize(actor, RoleCaregiver); err != nil {
		return Vaccine{}, err
	}

	var out Vaccine
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		v, err := s.inventory.Increase(ctx, tx, vaccine, count)
		if err != nil {
			return err
		}
		out = v
		return s.logEvent(ctx, tx, nil, EventDosesAdded, map[string]any{
			"caregiver": actor.ID,
			"vaccine":   vaccine,
			"added":     count,
			"doses":     v.Doses,
		})
	})
	if err != nil {
		return Vaccine{}, s.fail("add doses", err, zap.String("vaccine", vaccine), zap.Int("count", count))
	}

	s.log.Info("doses added", zap.String("vaccine", vaccine), zap.Int("added", count), zap.Int("doses", out.Doses))
	return out, nil
}

// ListAppointments returns the acting caregiver's booked slots or the acting
// patient's booked slots.
func (s *Service) ListAppointments(ctx context.Context, actor Actor) ([]Slot, error) {
	if err := actor.validate(); err != nil {
		return nil, err
	}

	var out []Slot
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		if actor.Role == RoleCaregiver {
			out, err = s.registry.ListForCaregiver(ctx, tx, actor.ID)
		} else {
			out, err = s.registry.ListForPatient(ctx, tx, actor.ID)
		}
		return err
	})
	if err != nil {
		return nil, s.fail("list appointments", err, zap.String("actor", actor.String()))
	}
	return out, nil
}

// SearchSchedule reports which caregivers are free on date and the current
// dose count of every vaccine.
func (s *Service) SearchSchedule(ctx context.Context, actor Actor, date time.Time) (Schedule, error) {
	if err := actor.validate(); err != nil {
		return Schedule{}, err
	}
	out := Schedule{Date: DateOf(date)}

	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		if out.Caregivers, err = s.registry.OpenCaregivers(ctx, tx, out.Date); err != nil {
			return err
		}
		out.Vaccines, err = s.inventory.List(ctx, tx)
		return err
	})
	if err != nil {
		return Schedule{}, s.fail("search schedule", err, zap.String("date", FormatDate(out.Date)))
	}
	return out, nil
}

func (s *Service) ListVaccines(ctx context.Context) ([]Vaccine, error) {
	var out []Vaccine
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		out, err = s.inventory.List(ctx, tx)
		return err
	})
	if err != nil {
		return nil, s.fail("list vaccines", err)
	}
	return out, nil
}

// PurgeExpiredAvailability is intended to be called by the sweeper
// periodically. Booked slots are never removed.
func (s *Service) PurgeExpiredAvailability(ctx context.Context, before time.Time) (int, error) {
	before = DateOf(before)

	var purged []int64
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		ids, err := s.registry.PurgeOpenBefore(ctx, tx, before)
		if err != nil {
			return err
		}
		purged = ids
		if len(ids) == 0 {
			return nil
		}
		return s.logEvent(ctx, tx, nil, EventAvailabilityPurged, map[string]any{
			"before":          FormatDate(before),
			"appointment_ids": ids,
		})
	})
	if err != nil {
		return 0, s.fail("purge availability", err, zap.String("before", FormatDate(before)))
	}

	if len(purged) > 0 {
		s.log.Info("expired availability purged", zap.Int("count", len(purged)), zap.String("before", FormatDate(before)))
	}
	return len(purged), nil
}

// fail tags non-taxonomy errors as storage failures and logs at a level that
// matches the kind.
func (s *Service) fail(op string, err error, fields ...zap.Field) error {
	err = storageErr(op, err)
	fields = append(fields, zap.String("op", op), zap.Error(err))
	if errors.Is(err, ErrStorage) {
		s.log.Error("operation failed", fields...)
	} else {
		s.log.Debug("operation rejected", fields...)
	}
	return err
}

func (s *Service) logEvent(ctx context.Context, tx Tx, appointmentID *int64, eventType string, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn("failed to marshal event payload", zap.String("event_type", eventType), zap.Error(err))
		data = nil
	}

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: appointmentID,
		Payload:       data,
		CreatedAt:     time.Now().UTC(),
	}
	if err := tx.InsertEvent(ctx, ev); err != nil {
		return storageErr("insert event log", err)
	}
	return nil
}

func authorize(actor Actor, role Role) error {
	if err := actor.validate(); err != nil {
		return err
	}
	if actor.Role != role {
		return fmt.Errorf("%w: %s cannot act as %s", ErrPermissionDenied, actor, role)
	}
	return nil
}
