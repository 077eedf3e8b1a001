package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/vaccine-reservation-scheduling/internal/scheduling"
)

var day = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func TestInTx_RollsBackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.InTx(ctx, func(ctx context.Context, tx scheduling.Tx) error {
		if _, err := tx.CreateVaccineIfAbsent(ctx, "vaccX", 5); err != nil {
			return err
		}
		if _, err := tx.InsertSlot(ctx, scheduling.Slot{ID: 1, Caregiver: "alice", Date: day}); err != nil {
			return err
		}
		if err := tx.InsertEvent(ctx, scheduling.EventLog{EventType: "TEST"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = s.InTx(ctx, func(ctx context.Context, tx scheduling.Tx) error {
		_, err := tx.GetVaccine(ctx, "vaccX")
		assert.ErrorIs(t, err, scheduling.ErrNotFound, "vaccine survived rollback")
		_, err = tx.GetSlotByID(ctx, 1)
		assert.ErrorIs(t, err, scheduling.ErrNotFound, "slot survived rollback")
		return nil
	})
	require.NoError(t, err)
	assert.Empty(t, s.Events())
}

func TestInTx_RollbackDoesNotLeakBookingChanges(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.InTx(ctx, func(ctx context.Context, tx scheduling.Tx) error {
		_, err := tx.InsertSlot(ctx, scheduling.Slot{ID: 1, Caregiver: "alice", Date: day})
		return err
	})
	require.NoError(t, err)

	err = s.InTx(ctx, func(ctx context.Context, tx scheduling.Tx) error {
		if _, err := tx.SetSlotBooking(ctx, 1, strPtr("bob"), strPtr("vaccX")); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.EqualError(t, err, "abort")

	err = s.InTx(ctx, func(ctx context.Context, tx scheduling.Tx) error {
		slot, err := tx.GetSlotByID(ctx, 1)
		if err != nil {
			return err
		}
		assert.False(t, slot.Booked(), "aborted booking leaked: %+v", slot)
		return nil
	})
	require.NoError(t, err)
}

func TestTx_SlotConstraints(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.InTx(ctx, func(ctx context.Context, tx scheduling.Tx) error {
		_, err := tx.InsertSlot(ctx, scheduling.Slot{ID: 1, Caregiver: "alice", Date: day.Add(9 * time.Hour)})
		require.NoError(t, err)

		_, err = tx.InsertSlot(ctx, scheduling.Slot{ID: 2, Caregiver: "alice", Date: day})
		assert.ErrorIs(t, err, scheduling.ErrConflict, "same caregiver and date")

		_, err = tx.InsertSlot(ctx, scheduling.Slot{ID: 1, Caregiver: "bob", Date: day})
		assert.Error(t, err, "duplicate id")

		_, err = tx.SetSlotBooking(ctx, 1, strPtr("bob"), nil)
		assert.Error(t, err, "patient without vaccine")

		assert.ErrorIs(t, tx.SetVaccineDoses(ctx, "nope", 1), scheduling.ErrNotFound)

		_, err = tx.CreateVaccineIfAbsent(ctx, "vaccX", 1)
		require.NoError(t, err)
		assert.Error(t, tx.SetVaccineDoses(ctx, "vaccX", -1), "negative dose count")

		created, err := tx.CreateVaccineIfAbsent(ctx, "vaccX", 7)
		require.NoError(t, err)
		assert.False(t, created)
		v, err := tx.GetVaccine(ctx, "vaccX")
		require.NoError(t, err)
		assert.Equal(t, 1, v.Doses)
		return nil
	})
	require.NoError(t, err)
}

func TestTx_Queries(t *testing.T) {
	s := New()
	ctx := context.Background()
	next := day.AddDate(0, 0, 1)

	err := s.InTx(ctx, func(ctx context.Context, tx scheduling.Tx) error {
		for _, sl := range []scheduling.Slot{
			{ID: 3, Caregiver: "zed", Date: day},
			{ID: 1, Caregiver: "mia", Date: day},
			{ID: 2, Caregiver: "alice", Date: next},
			{ID: 4, Caregiver: "alice", Date: day},
		} {
			_, err := tx.InsertSlot(ctx, sl)
			require.NoError(t, err)
		}
		_, err := tx.SetSlotBooking(ctx, 4, strPtr("pat"), strPtr("vaccX"))
		require.NoError(t, err)
		_, err = tx.SetSlotBooking(ctx, 2, strPtr("pat"), strPtr("vaccY"))
		require.NoError(t, err)

		open, err := tx.FindOpenSlot(ctx, day)
		require.NoError(t, err)
		assert.Equal(t, "mia", open.Caregiver)

		names, err := tx.ListOpenCaregivers(ctx, day)
		require.NoError(t, err)
		assert.Equal(t, []string{"mia", "zed"}, names)

		mine, err := tx.ListSlotsByPatient(ctx, "pat")
		require.NoError(t, err)
		require.Len(t, mine, 2)
		assert.Equal(t, int64(4), mine[0].ID)
		assert.Equal(t, int64(2), mine[1].ID)

		booked, err := tx.ListBookedSlotsByCaregiver(ctx, "alice")
		require.NoError(t, err)
		assert.Len(t, booked, 2)

		purged, err := tx.DeleteOpenSlotsBefore(ctx, next)
		require.NoError(t, err)
		assert.ElementsMatch(t, []int64{1, 3}, purged)

		_, err = tx.FindOpenSlot(ctx, day)
		assert.ErrorIs(t, err, scheduling.ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestTx_SequenceIsMonotonic(t *testing.T) {
	s := New()
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 3; i++ {
		err := s.InTx(ctx, func(ctx context.Context, tx scheduling.Tx) error {
			id, err := tx.NextAppointmentID(ctx)
			ids = append(ids, id)
			return err
		})
		require.NoError(t, err)
	}
	assert.Equal(t, []int64{1, 2, 3}, ids)
}

func TestInTx_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := New().InTx(ctx, func(context.Context, scheduling.Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
