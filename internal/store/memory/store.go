// Package memory is a single-process scheduling.Store. Transactions are
// serialized and run against a private copy of the state, which replaces the
// committed state only when the transaction function succeeds.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hackgods/vaccine-reservation-scheduling/internal/scheduling"
)

type slotKey struct {
	caregiver string
	date      string
}

type state struct {
	vaccines map[string]scheduling.Vaccine
	slots    map[int64]scheduling.Slot
	byKey    map[slotKey]int64
	nextID   int64
	events   []scheduling.EventLog
}

func (s *state) clone() *state {
	out := &state{
		vaccines: make(map[string]scheduling.Vaccine, len(s.vaccines)),
		slots:    make(map[int64]scheduling.Slot, len(s.slots)),
		byKey:    make(map[slotKey]int64, len(s.byKey)),
		nextID:   s.nextID,
		events:   s.events[:len(s.events):len(s.events)],
	}
	for k, v := range s.vaccines {
		out.vaccines[k] = v
	}
	for k, v := range s.slots {
		out.slots[k] = v.Clone()
	}
	for k, v := range s.byKey {
		out.byKey[k] = v
	}
	return out
}

type Store struct {
	mu    sync.Mutex
	state *state
	now   func() time.Time
}

func New() *Store {
	return &Store{
		state: &state{
			vaccines: make(map[string]scheduling.Vaccine),
			slots:    make(map[int64]scheduling.Slot),
			byKey:    make(map[slotKey]int64),
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx scheduling.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.state.clone()
	if err := fn(ctx, &tx{st: working, now: s.now}); err != nil {
		return err
	}
	s.state = working
	return nil
}

// Events returns a copy of the committed event log.
func (s *Store) Events() []scheduling.EventLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]scheduling.EventLog, len(s.state.events))
	copy(out, s.state.events)
	return out
}

type tx struct {
	st  *state
	now func() time.Time
}

func key(caregiver string, date time.Time) slotKey {
	return slotKey{caregiver: caregiver, date: scheduling.FormatDate(date)}
}

func (t *tx) GetVaccine(ctx context.Context, name string) (*scheduling.Vaccine, error) {
	v, ok := t.st.vaccines[name]
	if !ok {
		return nil, scheduling.ErrNotFound
	}
	return &v, nil
}

func (t *tx) CreateVaccineIfAbsent(ctx context.Context, name string, doses int) (bool, error) {
	if _, ok := t.st.vaccines[name]; ok {
		return false, nil
	}
	now := t.now()
	t.st.vaccines[name] = scheduling.Vaccine{Name: name, Doses: doses, CreatedAt: now, UpdatedAt: now}
	return true, nil
}

func (t *tx) SetVaccineDoses(ctx context.Context, name string, doses int) error {
	v, ok := t.st.vaccines[name]
	if !ok {
		return scheduling.ErrNotFound
	}
	if doses < 0 {
		return fmt.Errorf("vaccine %q: negative dose count %d", name, doses)
	}
	v.Doses = doses
	v.UpdatedAt = t.now()
	t.st.vaccines[name] = v
	return nil
}

func (t *tx) ListVaccines(ctx context.Context) ([]scheduling.Vaccine, error) {
	out := make([]scheduling.Vaccine, 0, len(t.st.vaccines))
	for _, v := range t.st.vaccines {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (t *tx) NextAppointmentID(ctx context.Context) (int64, error) {
	t.st.nextID++
	return t.st.nextID, nil
}

// LockAppointmentIDs is a no-op: the whole transaction already holds the
// store mutex.
func (t *tx) LockAppointmentIDs(ctx context.Context) error {
	return nil
}

func (t *tx) AppointmentIDExists(ctx context.Context, id int64) (bool, error) {
	_, ok := t.st.slots[id]
	return ok, nil
}

func (t *tx) InsertSlot(ctx context.Context, slot scheduling.Slot) (*scheduling.Slot, error) {
	k := key(slot.Caregiver, slot.Date)
	if _, ok := t.st.byKey[k]; ok {
		return nil, scheduling.ErrConflict
	}
	if _, ok := t.st.slots[slot.ID]; ok {
		return nil, fmt.Errorf("appointment id %d already in use", slot.ID)
	}

	now := t.now()
	slot.Date = scheduling.DateOf(slot.Date)
	slot.CreatedAt = now
	slot.UpdatedAt = now
	t.st.slots[slot.ID] = slot.Clone()
	t.st.byKey[k] = slot.ID

	out := slot.Clone()
	return &out, nil
}

func (t *tx) GetSlot(ctx context.Context, caregiver string, date time.Time) (*scheduling.Slot, error) {
	id, ok := t.st.byKey[key(caregiver, date)]
	if !ok {
		return nil, scheduling.ErrNotFound
	}
	return t.GetSlotByID(ctx, id)
}

func (t *tx) GetSlotByID(ctx context.Context, id int64) (*scheduling.Slot, error) {
	slot, ok := t.st.slots[id]
	if !ok {
		return nil, scheduling.ErrNotFound
	}
	out := slot.Clone()
	return &out, nil
}

func (t *tx) FindOpenSlot(ctx context.Context, date time.Time) (*scheduling.Slot, error) {
	day := scheduling.FormatDate(date)
	var found *scheduling.Slot
	for _, slot := range t.st.slots {
		if slot.Booked() || scheduling.FormatDate(slot.Date) != day {
			continue
		}
		if found == nil || slot.Caregiver < found.Caregiver {
			s := slot.Clone()
			found = &s
		}
	}
	if found == nil {
		return nil, scheduling.ErrNotFound
	}
	return found, nil
}

func (t *tx) SetSlotBooking(ctx context.Context, id int64, patient, vaccine *string) (*scheduling.Slot, error) {
	slot, ok := t.st.slots[id]
	if !ok {
		return nil, scheduling.ErrNotFound
	}
	if (patient == nil) != (vaccine == nil) {
		return nil, fmt.Errorf("appointment %d: patient and vaccine must be set together", id)
	}
	slot.Patient = patient
	slot.Vaccine = vaccine
	slot.UpdatedAt = t.now()
	t.st.slots[id] = slot.Clone()

	out := slot.Clone()
	return &out, nil
}

func (t *tx) DeleteSlot(ctx context.Context, id int64) error {
	slot, ok := t.st.slots[id]
	if !ok {
		return scheduling.ErrNotFound
	}
	delete(t.st.slots, id)
	delete(t.st.byKey, key(slot.Caregiver, slot.Date))
	return nil
}

func (t *tx) ListBookedSlotsByCaregiver(ctx context.Context, caregiver string) ([]scheduling.Slot, error) {
	return t.filter(func(s scheduling.Slot) bool {
		return s.Caregiver == caregiver && s.Booked()
	}), nil
}

func (t *tx) ListSlotsByPatient(ctx context.Context, patient string) ([]scheduling.Slot, error) {
	return t.filter(func(s scheduling.Slot) bool {
		return s.Booked() && *s.Patient == patient
	}), nil
}

func (t *tx) ListOpenCaregivers(ctx context.Context, date time.Time) ([]string, error) {
	slots := t.filter(func(s scheduling.Slot) bool {
		return !s.Booked() && s.Date.Equal(scheduling.DateOf(date))
	})
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.Caregiver)
	}
	sort.Strings(out)
	return out, nil
}

func (t *tx) DeleteOpenSlotsBefore(ctx context.Context, date time.Time) ([]int64, error) {
	cutoff := scheduling.DateOf(date)
	victims := t.filter(func(s scheduling.Slot) bool {
		return !s.Booked() && s.Date.Before(cutoff)
	})
	ids := make([]int64, 0, len(victims))
	for _, s := range victims {
		delete(t.st.slots, s.ID)
		delete(t.st.byKey, key(s.Caregiver, s.Date))
		ids = append(ids, s.ID)
	}
	return ids, nil
}

func (t *tx) InsertEvent(ctx context.Context, ev scheduling.EventLog) error {
	ev.ID = int64(len(t.st.events)) + 1
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = t.now()
	}
	t.st.events = append(t.st.events, ev)
	return nil
}

// filter returns matching slots ordered by date, then id.
func (t *tx) filter(keep func(scheduling.Slot) bool) []scheduling.Slot {
	var out []scheduling.Slot
	for _, s := range t.st.slots {
		if keep(s) {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
