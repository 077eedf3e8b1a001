// Package postgres implements scheduling.Store on PostgreSQL through a pgx
// connection pool. Row locks (FOR UPDATE) are taken on every read that a
// transaction later writes back.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/vaccine-reservation-scheduling/internal/scheduling"
)

const uniqueViolation = "23505"

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx scheduling.Tx) error) error {
	pgTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer pgTx.Rollback(ctx)

	if err := fn(ctx, &tx{tx: pgTx}); err != nil {
		return err
	}

	if err := pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type tx struct {
	tx pgx.Tx
}

// Helpers

const slotColumns = `id, caregiver, slot_date, patient, vaccine, created_at, updated_at`

func scanSlot(row pgx.Row) (*scheduling.Slot, error) {
	var s scheduling.Slot

	err := row.Scan(
		&s.ID,
		&s.Caregiver,
		&s.Date,
		&s.Patient,
		&s.Vaccine,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, scheduling.ErrNotFound
		}
		return nil, err
	}

	s.Date = scheduling.DateOf(s.Date)
	return &s, nil
}

func scanVaccine(row pgx.Row) (*scheduling.Vaccine, error) {
	var v scheduling.Vaccine

	err := row.Scan(&v.Name, &v.Doses, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, scheduling.ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

func collectSlots(rows pgx.Rows) ([]scheduling.Slot, error) {
	defer rows.Close()

	var result []scheduling.Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// Vaccines

func (t *tx) GetVaccine(ctx context.Context, name string) (*scheduling.Vaccine, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT name, doses, created_at, updated_at
		FROM vaccines
		WHERE name = $1
		FOR UPDATE
	`, name)
	return scanVaccine(row)
}

func (t *tx) CreateVaccineIfAbsent(ctx context.Context, name string, doses int) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO vaccines (name, doses, created_at, updated_at)
		VALUES ($1, $2, now(), now())
		ON CONFLICT (name) DO NOTHING
	`, name, doses)
	if err != nil {
		return false, fmt.Errorf("insert vaccine: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *tx) SetVaccineDoses(ctx context.Context, name string, doses int) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE vaccines
		SET doses = $2,
		    updated_at = now()
		WHERE name = $1
	`, name, doses)
	if err != nil {
		return fmt.Errorf("update vaccine doses: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return scheduling.ErrNotFound
	}
	return nil
}

func (t *tx) ListVaccines(ctx context.Context) ([]scheduling.Vaccine, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT name, doses, created_at, updated_at
		FROM vaccines
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []scheduling.Vaccine
	for rows.Next() {
		v, err := scanVaccine(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Appointment ids

func (t *tx) NextAppointmentID(ctx context.Context) (int64, error) {
	var id int64
	if err := t.tx.QueryRow(ctx, `SELECT nextval('appointment_id_seq')`).Scan(&id); err != nil {
		return 0, fmt.Errorf("nextval appointment_id_seq: %w", err)
	}
	return id, nil
}

// LockAppointmentIDs serializes random id draws across connections until the
// transaction ends.
func (t *tx) LockAppointmentIDs(ctx context.Context) error {
	if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('appointment_ids'))`); err != nil {
		return fmt.Errorf("advisory lock: %w", err)
	}
	return nil
}

func (t *tx) AppointmentIDExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM availabilities WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// Slots

func (t *tx) InsertSlot(ctx context.Context, slot scheduling.Slot) (*scheduling.Slot, error) {
	row := t.tx.QueryRow(ctx, `
		INSERT INTO availabilities (id, caregiver, slot_date, patient, vaccine, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		RETURNING `+slotColumns,
		slot.ID, slot.Caregiver, scheduling.DateOf(slot.Date), slot.Patient, slot.Vaccine)

	out, err := scanSlot(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, scheduling.ErrConflict
		}
		return nil, fmt.Errorf("insert availability: %w", err)
	}
	return out, nil
}

func (t *tx) GetSlot(ctx context.Context, caregiver string, date time.Time) (*scheduling.Slot, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM availabilities
		WHERE caregiver = $1 AND slot_date = $2
		FOR UPDATE
	`, caregiver, scheduling.DateOf(date))
	return scanSlot(row)
}

func (t *tx) GetSlotByID(ctx context.Context, id int64) (*scheduling.Slot, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM availabilities
		WHERE id = $1
		FOR UPDATE
	`, id)
	return scanSlot(row)
}

// FindOpenSlot skips rows another transaction already holds, so concurrent
// reservations on one date spread over the open caregivers.
func (t *tx) FindOpenSlot(ctx context.Context, date time.Time) (*scheduling.Slot, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM availabilities
		WHERE slot_date = $1 AND patient IS NULL
		ORDER BY caregiver
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`, scheduling.DateOf(date))
	return scanSlot(row)
}

func (t *tx) SetSlotBooking(ctx context.Context, id int64, patient, vaccine *string) (*scheduling.Slot, error) {
	row := t.tx.QueryRow(ctx, `
		UPDATE availabilities
		SET patient = $2,
		    vaccine = $3,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+slotColumns,
		id, patient, vaccine)
	return scanSlot(row)
}

func (t *tx) DeleteSlot(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM availabilities WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete availability: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return scheduling.ErrNotFound
	}
	return nil
}

func (t *tx) ListBookedSlotsByCaregiver(ctx context.Context, caregiver string) ([]scheduling.Slot, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+slotColumns+`
		FROM availabilities
		WHERE caregiver = $1 AND patient IS NOT NULL
		ORDER BY slot_date, id
	`, caregiver)
	if err != nil {
		return nil, err
	}
	return collectSlots(rows)
}

func (t *tx) ListSlotsByPatient(ctx context.Context, patient string) ([]scheduling.Slot, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+slotColumns+`
		FROM availabilities
		WHERE patient = $1
		ORDER BY slot_date, id
	`, patient)
	if err != nil {
		return nil, err
	}
	return collectSlots(rows)
}

func (t *tx) ListOpenCaregivers(ctx context.Context, date time.Time) ([]string, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT caregiver
		FROM availabilities
		WHERE slot_date = $1 AND patient IS NULL
		ORDER BY caregiver
	`, scheduling.DateOf(date))
	if err != nil {
		return nil, err
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	return names, nil
}

func (t *tx) DeleteOpenSlotsBefore(ctx context.Context, date time.Time) ([]int64, error) {
	rows, err := t.tx.Query(ctx, `
		DELETE FROM availabilities
		WHERE slot_date < $1 AND patient IS NULL
		RETURNING id
	`, scheduling.DateOf(date))
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Events

func (t *tx) InsertEvent(ctx context.Context, ev scheduling.EventLog) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
