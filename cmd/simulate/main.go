package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/hackgods/vaccine-reservation-scheduling/internal/logging"
	"github.com/hackgods/vaccine-reservation-scheduling/internal/scheduling"
)

type SimConfig struct {
	APIBaseURL    string
	Duration      time.Duration
	Workers       int
	ReserveRatio  float64
	CancelRatio   float64
	ReadRatio     float64
	Caregivers    int
	Patients      int
	Days          int
	DosesPerBatch int
	Vaccines      []string
}

type DataPool struct {
	Patients   []string
	Caregivers []string
	Dates      []string

	mu           sync.Mutex
	appointments map[int64]string // appointment id -> patient holding it
}

func (dp *DataPool) AddAppointment(id int64, patient string) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments[id] = patient
}

// TakeRandomAppointment removes and returns one held appointment.
func (dp *DataPool) TakeRandomAppointment(f *gofakeit.Faker) (int64, string, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.appointments) == 0 {
		return 0, "", false
	}
	skip := f.Number(0, len(dp.appointments)-1)
	for id, patient := range dp.appointments {
		if skip == 0 {
			delete(dp.appointments, id)
			return id, patient, true
		}
		skip--
	}
	return 0, "", false
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]

	return avg, min, max, p50, p95
}

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Reserve  OperationMetrics
	Cancel   OperationMetrics
	Schedule OperationMetrics
	List     OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	log     *zap.Logger
}

func main() {
	_ = godotenv.Load()

	logger := logging.Must(os.Getenv("APP_ENV"), "info")
	defer func() { _ = logger.Sync() }()

	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	logger.Info("simulator starting",
		zap.String("api", cfg.APIBaseURL),
		zap.Duration("duration", cfg.Duration),
		zap.Int("workers", cfg.Workers),
		zap.Float64("reserve", cfg.ReserveRatio),
		zap.Float64("cancel", cfg.CancelRatio),
		zap.Float64("read", cfg.ReadRatio),
	)

	sim := &Simulator{
		config: cfg,
		pool:   newDataPool(cfg),
		client: &http.Client{Timeout: 10 * time.Second},
		log:    logger,
	}

	setupCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := sim.Setup(setupCtx); err != nil {
		logger.Fatal("setup failed", zap.Error(err))
	}

	sim.Run()
	sim.PrintReport()

	verifyCtx, cancelVerify := context.WithTimeout(context.Background(), time.Minute)
	defer cancelVerify()
	if err := sim.VerifyUniqueAppointments(verifyCtx); err != nil {
		logger.Fatal("verification failed", zap.Error(err))
	}
	logger.Info("verification passed: no appointment id is held twice")
}

func loadConfig() (SimConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("SIM")
	v.AutomaticEnv()

	v.SetDefault("API_BASE_URL", "http://localhost:8080")
	v.SetDefault("DURATION", "30s")
	v.SetDefault("WORKERS", 10)
	v.SetDefault("RESERVE_RATIO", 0.5)
	v.SetDefault("CANCEL_RATIO", 0.2)
	v.SetDefault("READ_RATIO", 0.3)
	v.SetDefault("CAREGIVERS", 20)
	v.SetDefault("PATIENTS", 500)
	v.SetDefault("DAYS", 7)
	v.SetDefault("DOSES", 200)
	v.SetDefault("VACCINES", "Pfizer,Moderna")

	duration, err := time.ParseDuration(v.GetString("DURATION"))
	if err != nil {
		return SimConfig{}, fmt.Errorf("SIM_DURATION: %w", err)
	}

	cfg := SimConfig{
		APIBaseURL:    strings.TrimRight(v.GetString("API_BASE_URL"), "/"),
		Duration:      duration,
		Workers:       v.GetInt("WORKERS"),
		ReserveRatio:  v.GetFloat64("RESERVE_RATIO"),
		CancelRatio:   v.GetFloat64("CANCEL_RATIO"),
		ReadRatio:     v.GetFloat64("READ_RATIO"),
		Caregivers:    v.GetInt("CAREGIVERS"),
		Patients:      v.GetInt("PATIENTS"),
		Days:          v.GetInt("DAYS"),
		DosesPerBatch: v.GetInt("DOSES"),
	}
	for _, name := range strings.Split(v.GetString("VACCINES"), ",") {
		if name = strings.TrimSpace(name); name != "" {
			cfg.Vaccines = append(cfg.Vaccines, name)
		}
	}

	total := cfg.ReserveRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.ReserveRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}

	switch {
	case cfg.Workers <= 0:
		return SimConfig{}, fmt.Errorf("SIM_WORKERS must be > 0")
	case cfg.Duration <= 0:
		return SimConfig{}, fmt.Errorf("SIM_DURATION must be > 0")
	case cfg.Caregivers <= 0 || cfg.Patients <= 0 || cfg.Days <= 0:
		return SimConfig{}, fmt.Errorf("SIM_CAREGIVERS, SIM_PATIENTS and SIM_DAYS must be > 0")
	case len(cfg.Vaccines) == 0:
		return SimConfig{}, fmt.Errorf("SIM_VACCINES must name at least one vaccine")
	}
	return cfg, nil
}

func newDataPool(cfg SimConfig) *DataPool {
	faker := gofakeit.New(0)
	run := faker.LetterN(4)

	dp := &DataPool{appointments: make(map[int64]string)}
	for i := 0; i < cfg.Caregivers; i++ {
		dp.Caregivers = append(dp.Caregivers, fmt.Sprintf("%s-%s-%d", faker.LastName(), run, i))
	}
	for i := 0; i < cfg.Patients; i++ {
		dp.Patients = append(dp.Patients, fmt.Sprintf("%s-%s-%d", faker.FirstName(), run, i))
	}

	start := scheduling.DateOf(time.Now()).AddDate(0, 0, 1)
	for d := 0; d < cfg.Days; d++ {
		dp.Dates = append(dp.Dates, scheduling.FormatDate(start.AddDate(0, 0, d)))
	}
	return dp
}

// Setup stocks vaccines and publishes one slot per caregiver per day.
func (s *Simulator) Setup(ctx context.Context) error {
	stocker := s.pool.Caregivers[0]
	for _, v := range s.config.Vaccines {
		status, _, err := s.call(ctx, http.MethodPost, "/vaccines/"+v+"/doses", "caregiver", stocker,
			map[string]int{"count": s.config.DosesPerBatch})
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return fmt.Errorf("stock %s: status %d", v, status)
		}
	}

	for _, c := range s.pool.Caregivers {
		for _, d := range s.pool.Dates {
			status, _, err := s.call(ctx, http.MethodPost, "/availability", "caregiver", c, map[string]string{"date": d})
			if err != nil {
				return err
			}
			if status != http.StatusCreated && status != http.StatusConflict {
				return fmt.Errorf("publish %s on %s: status %d", c, d, status)
			}
		}
	}

	s.log.Info("setup complete",
		zap.Int("caregivers", len(s.pool.Caregivers)),
		zap.Int("days", len(s.pool.Dates)),
		zap.Strings("vaccines", s.config.Vaccines),
	)
	return nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.log.Info("starting simulation", zap.Duration("duration", s.config.Duration), zap.Int("workers", s.config.Workers))

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.worker(ctx)
		}()
	}

	wg.Wait()
	s.log.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context) {
	f := gofakeit.New(0)

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := f.Float64()
			switch {
			case r < s.config.ReserveRatio:
				s.doReserve(ctx, f)
			case r < s.config.ReserveRatio+s.config.CancelRatio:
				s.doCancel(ctx, f)
			case f.Bool():
				s.doSchedule(ctx, f)
			default:
				s.doList(ctx, f)
			}
		}
	}
}

func (s *Simulator) doReserve(ctx context.Context, f *gofakeit.Faker) {
	patient := f.RandomString(s.pool.Patients)
	body := map[string]string{
		"date":    f.RandomString(s.pool.Dates),
		"vaccine": f.RandomString(s.config.Vaccines),
	}

	start := time.Now()
	status, data, err := s.call(ctx, http.MethodPost, "/reservations", "patient", patient, body)
	latency := time.Since(start)
	if ctx.Err() != nil {
		return
	}

	success := err == nil && status == http.StatusCreated
	if success {
		var res struct {
			AppointmentID int64 `json:"appointment_id"`
		}
		if json.Unmarshal(data, &res) == nil && res.AppointmentID > 0 {
			s.pool.AddAppointment(res.AppointmentID, patient)
		}
	}
	s.metrics.Reserve.Record(latency, success, isContention(status))
}

func (s *Simulator) doCancel(ctx context.Context, f *gofakeit.Faker) {
	id, patient, ok := s.pool.TakeRandomAppointment(f)
	if !ok {
		return
	}

	start := time.Now()
	status, _, err := s.call(ctx, http.MethodDelete, "/appointments/"+strconv.FormatInt(id, 10), "patient", patient, nil)
	latency := time.Since(start)
	if ctx.Err() != nil {
		s.pool.AddAppointment(id, patient)
		return
	}

	s.metrics.Cancel.Record(latency, err == nil && status == http.StatusOK, isContention(status))
}

func (s *Simulator) doSchedule(ctx context.Context, f *gofakeit.Faker) {
	start := time.Now()
	status, _, err := s.call(ctx, http.MethodGet, "/schedule?date="+f.RandomString(s.pool.Dates), "patient", f.RandomString(s.pool.Patients), nil)
	if ctx.Err() != nil {
		return
	}
	s.metrics.Schedule.Record(time.Since(start), err == nil && status == http.StatusOK, false)
}

func (s *Simulator) doList(ctx context.Context, f *gofakeit.Faker) {
	start := time.Now()
	status, _, err := s.call(ctx, http.MethodGet, "/appointments", "caregiver", f.RandomString(s.pool.Caregivers), nil)
	if ctx.Err() != nil {
		return
	}
	s.metrics.List.Record(time.Since(start), err == nil && status == http.StatusOK, false)
}

// VerifyUniqueAppointments lists every caregiver's bookings and fails if an
// appointment id shows up twice.
func (s *Simulator) VerifyUniqueAppointments(ctx context.Context) error {
	seen := make(map[int64]string)
	booked := 0

	for _, c := range s.pool.Caregivers {
		status, data, err := s.call(ctx, http.MethodGet, "/appointments", "caregiver", c, nil)
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return fmt.Errorf("list %s: status %d", c, status)
		}

		var appts []struct {
			AppointmentID int64  `json:"appointment_id"`
			Date          string `json:"date"`
		}
		if err := json.Unmarshal(data, &appts); err != nil {
			return fmt.Errorf("decode %s: %w", c, err)
		}
		for _, a := range appts {
			if owner, dup := seen[a.AppointmentID]; dup {
				return fmt.Errorf("appointment %d held by %s and %s", a.AppointmentID, owner, c)
			}
			seen[a.AppointmentID] = c
			booked++
		}
	}

	s.log.Info("bookings verified", zap.Int("booked", booked), zap.Int("caregivers", len(s.pool.Caregivers)))
	return nil
}

func (s *Simulator) call(ctx context.Context, method, path, role, actor string, body any) (int, []byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, &buf)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-Role", role)
	req.Header.Set("X-Actor-ID", actor)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	var out bytes.Buffer
	if _, err := out.ReadFrom(resp.Body); err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, out.Bytes(), nil
}

// isContention covers outcomes that are expected under load: nobody free,
// stock gone, or a lock held elsewhere.
func isContention(status int) bool {
	return status == http.StatusConflict ||
		status == http.StatusUnprocessableEntity ||
		status == http.StatusServiceUnavailable
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Reserve", &s.metrics.Reserve)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Search schedule", &s.metrics.Schedule)
	printOperationReport("List appointments", &s.metrics.List)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Rejected: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}
