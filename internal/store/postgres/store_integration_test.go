package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap/zaptest"

	"github.com/hackgods/vaccine-reservation-scheduling/internal/db"
	"github.com/hackgods/vaccine-reservation-scheduling/internal/scheduling"
)

const testDSNEnv = "VAXSCHED_TEST_DATABASE_URL"

// newTestPool migrates a fresh schema and drops it when the test ends.
func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv(testDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", testDSNEnv)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	admin, err := db.ConnectPostgres(ctx, dsn, db.PoolConfig{MaxConns: 2})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(admin.Close)

	schema := fmt.Sprintf("vaxsched_test_%d", time.Now().UnixNano())
	if _, err := admin.Exec(ctx, "CREATE SCHEMA "+schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		_, _ = admin.Exec(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
	})

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	pool, err := db.ConnectPostgres(ctx, dsn+sep+"search_path="+schema, db.PoolConfig{MaxConns: 16})
	if err != nil {
		t.Fatalf("connect to schema: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := db.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	version, err := db.MigrationVersion(ctx, pool)
	if err != nil || version < 1 {
		t.Fatalf("migration version = %d, %v", version, err)
	}
	return pool
}

var day = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func TestPostgresStore_Scenario(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	svc := scheduling.NewService(New(pool), nil, nil, zaptest.NewLogger(t))

	slot, err := svc.UploadAvailability(ctx, scheduling.Caregiver("alice"), day)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, err := svc.UploadAvailability(ctx, scheduling.Caregiver("alice"), day); !errors.Is(err, scheduling.ErrConflict) {
		t.Fatalf("duplicate upload: %v", err)
	}
	if _, err := svc.AddDoses(ctx, scheduling.Caregiver("alice"), "vaccX", 1); err != nil {
		t.Fatalf("add doses: %v", err)
	}

	res, err := svc.Reserve(ctx, scheduling.Patient("bob"), day, "vaccX")
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if res.AppointmentID != slot.ID || res.Caregiver != "alice" {
		t.Fatalf("unexpected reservation: %+v", res)
	}
	if _, err := svc.Reserve(ctx, scheduling.Patient("carol"), day, "vaccX"); !errors.Is(err, scheduling.ErrNoAvailability) {
		t.Fatalf("carol: %v", err)
	}

	if _, err := svc.Cancel(ctx, scheduling.Patient("bob"), slot.ID); err != nil {
		t.Fatalf("patient cancel: %v", err)
	}
	if _, err := svc.Cancel(ctx, scheduling.Caregiver("alice"), slot.ID); err != nil {
		t.Fatalf("caregiver cancel: %v", err)
	}

	again, err := svc.UploadAvailability(ctx, scheduling.Caregiver("alice"), day)
	if err != nil {
		t.Fatalf("republish: %v", err)
	}
	if again.ID == slot.ID {
		t.Fatalf("republish reused id %d", slot.ID)
	}

	vs, err := svc.ListVaccines(ctx)
	if err != nil || len(vs) != 1 || vs[0].Doses != 1 {
		t.Fatalf("vaccines = %+v, %v", vs, err)
	}

	var events int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM event_logs`).Scan(&events); err != nil {
		t.Fatalf("count events: %v", err)
	}
	if events != 6 {
		t.Fatalf("events = %d, want 6", events)
	}
}

func TestPostgresStore_RollbackOnError(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	store := New(pool)

	boom := errors.New("boom")
	err := store.InTx(ctx, func(ctx context.Context, tx scheduling.Tx) error {
		if _, err := tx.CreateVaccineIfAbsent(ctx, "vaccX", 3); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v", err)
	}

	err = store.InTx(ctx, func(ctx context.Context, tx scheduling.Tx) error {
		_, err := tx.GetVaccine(ctx, "vaccX")
		return err
	})
	if !errors.Is(err, scheduling.ErrNotFound) {
		t.Fatalf("vaccine survived rollback: %v", err)
	}
}

func TestPostgresStore_ConcurrentReservations(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	// Separate services share nothing but the database, like separate processes.
	newSvc := func() *scheduling.Service {
		return scheduling.NewService(New(pool), nil, scheduling.NewRandomAllocator(1000, 64), zaptest.NewLogger(t))
	}
	setup := newSvc()

	for i := 0; i < 6; i++ {
		if _, err := setup.UploadAvailability(ctx, scheduling.Caregiver(fmt.Sprintf("cg-%d", i)), day); err != nil {
			t.Fatalf("upload: %v", err)
		}
	}
	if _, err := setup.AddDoses(ctx, scheduling.Caregiver("cg-0"), "vaccX", 4); err != nil {
		t.Fatalf("add doses: %v", err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := newSvc().Reserve(ctx, scheduling.Patient(fmt.Sprintf("p-%d", i)), day, "vaccX")
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
				return
			}
			if !errors.Is(err, scheduling.ErrVaccineUnavailable) && !errors.Is(err, scheduling.ErrNoAvailability) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if success != 4 {
		t.Fatalf("successful reservations = %d, want 4", success)
	}

	var doses, booked int
	if err := pool.QueryRow(ctx, `SELECT doses FROM vaccines WHERE name = 'vaccX'`).Scan(&doses); err != nil {
		t.Fatalf("doses: %v", err)
	}
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM availabilities WHERE patient IS NOT NULL`).Scan(&booked); err != nil {
		t.Fatalf("booked: %v", err)
	}
	if doses != 0 || booked != 4 {
		t.Fatalf("doses = %d booked = %d, want 0 and 4", doses, booked)
	}
}
