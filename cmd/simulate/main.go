package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/hackgods/booking-availability/internal/auth"
	"github.com/hackgods/booking-availability/internal/config"
	"github.com/hackgods/booking-availability/internal/db"
	"github.com/hackgods/booking-availability/internal/logging"
	"github.com/hackgods/booking-availability/internal/schedule"
)

type SimConfig struct {
	APIBaseURL    string
	Duration      time.Duration
	Workers       int
	Racers        int // concurrent requests fired at the same slot
	BookingRatio  float64
	ConfirmRatio  float64
	ReadRatio     float64
	Clients       int
	BusinessLimit int
	HorizonDays   int
	PostgresDSN   string
	JWTSecret     []byte
}

type bookable struct {
	BusinessID uuid.UUID
	OwnerID    uuid.UUID
	ServiceID  uuid.UUID
}

type created struct {
	ID      uuid.UUID
	OwnerID uuid.UUID
	Client  int
}

type DataPool struct {
	Targets      []bookable
	Clients      []uuid.UUID
	tokens       map[uuid.UUID]string
	mu           sync.RWMutex
	appointments []created
}

func (dp *DataPool) AddAppointment(c created) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, c)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (created, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return created{}, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

func (dp *DataPool) Token(userID uuid.UUID) string {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	return dp.tokens[userID]
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
	Availability OperationMetrics
	Booking      OperationMetrics
	Confirm      OperationMetrics
	ListByClient OperationMetrics

	Races         int64
	RaceWinners   int64
	DoubleBooking int64 // races with more than one 201
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
}

func main() {
	logging.Setup("dev")
	log.Info().Msg("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	log.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Int("racers", cfg.Racers).
		Float64("booking", cfg.BookingRatio).
		Float64("confirm", cfg.ConfirmRatio).
		Float64("read", cfg.ReadRatio).
		Msg("config")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("load data pool")
	}

	log.Info().Int("targets", len(dataPool.Targets)).Int("clients", len(dataPool.Clients)).Msg("loaded")

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	sim.Run()
	sim.PrintReport()

	if atomic.LoadInt64(&sim.metrics.DoubleBooking) > 0 {
		os.Exit(1)
	}
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load base config")
	}

	cfg := SimConfig{
		APIBaseURL:    getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:      getDuration("SIM_DURATION", 30*time.Second),
		Workers:       getInt("SIM_WORKERS", 10),
		Racers:        getInt("SIM_RACERS", 5),
		BookingRatio:  getFloat("SIM_BOOKING_RATIO", 0.4),
		ConfirmRatio:  getFloat("SIM_CONFIRM_RATIO", 0.1),
		ReadRatio:     getFloat("SIM_READ_RATIO", 0.5),
		Clients:       getInt("SIM_CLIENTS", 500),
		BusinessLimit: getInt("SIM_BUSINESS_LIMIT", 200),
		HorizonDays:   getInt("SIM_HORIZON_DAYS", 14),
		PostgresDSN:   baseCfg.PostgresDSN,
		JWTSecret:     []byte(baseCfg.JWTSecret),
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.ConfirmRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.ConfirmRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Racers <= 0 {
		return fmt.Errorf("SIM_RACERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Clients < cfg.Racers {
		return fmt.Errorf("SIM_CLIENTS must be >= SIM_RACERS")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{tokens: make(map[uuid.UUID]string)}

	rows, err := pool.Query(ctx, `
		SELECT b.id, b.owner_id, s.id
		FROM businesses b
		JOIN services s ON s.business_id = b.id
		WHERE b.is_active AND s.is_active
		LIMIT $1
	`, cfg.BusinessLimit)
	if err != nil {
		return nil, fmt.Errorf("load services: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t bookable
		if err := rows.Scan(&t.BusinessID, &t.OwnerID, &t.ServiceID); err != nil {
			return nil, err
		}
		dataPool.Targets = append(dataPool.Targets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(dataPool.Targets) == 0 {
		return nil, fmt.Errorf("no active services loaded, run the seed command first")
	}

	issue := func(userID uuid.UUID, role string) error {
		token, err := auth.Issue(cfg.JWTSecret, auth.Claims{UserID: userID.String(), Role: role}, cfg.Duration+time.Hour)
		if err != nil {
			return fmt.Errorf("issue token: %w", err)
		}
		dataPool.tokens[userID] = token
		return nil
	}

	for i := 0; i < cfg.Clients; i++ {
		id := uuid.New()
		if err := issue(id, "client"); err != nil {
			return nil, err
		}
		dataPool.Clients = append(dataPool.Clients, id)
	}
	for _, t := range dataPool.Targets {
		if _, ok := dataPool.tokens[t.OwnerID]; ok {
			continue
		}
		if err := issue(t.OwnerID, "owner"); err != nil {
			return nil, err
		}
	}

	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Info().Dur("duration", s.config.Duration).Int("workers", s.config.Workers).Msg("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	log.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.BookingRatio:
				s.doBookingRace(ctx, rng)
			case r < s.config.BookingRatio+s.config.ConfirmRatio:
				s.doConfirm(ctx, rng)
			case rng.Intn(2) == 0:
				s.doAvailability(ctx, rng)
			default:
				s.doListByClient(ctx, rng)
			}
		}
	}
}

type slotView struct {
	Date      string `json:"date"`
	Available bool   `json:"available"`
	TimeSlots []struct {
		Time      string `json:"time"`
		Available bool   `json:"available"`
	} `json:"timeSlots"`
}

func (s *Simulator) randomDate(rng *rand.Rand) string {
	d := schedule.DateOf(time.Now()).AddDate(0, 0, 1+rng.Intn(s.config.HorizonDays))
	return schedule.FormatDate(d)
}

func (s *Simulator) fetchAvailability(ctx context.Context, t bookable, date string) (*slotView, bool) {
	start := time.Now()

	url := fmt.Sprintf("%s/businesses/%s/availability/%s?service_id=%s", s.config.APIBaseURL, t.BusinessID, date, t.ServiceID)
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)

	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		s.metrics.Availability.Record(latency, false, false)
		return nil, false
	}
	defer resp.Body.Close()

	var view slotView
	ok := resp.StatusCode == http.StatusOK && json.NewDecoder(resp.Body).Decode(&view) == nil
	s.metrics.Availability.Record(latency, ok, false)
	return &view, ok
}

func (s *Simulator) doAvailability(ctx context.Context, rng *rand.Rand) {
	t := s.pool.Targets[rng.Intn(len(s.pool.Targets))]
	s.fetchAvailability(ctx, t, s.randomDate(rng))
}

// doBookingRace picks an available slot and fires several clients at it at once.
// At most one of them may get 201.
func (s *Simulator) doBookingRace(ctx context.Context, rng *rand.Rand) {
	t := s.pool.Targets[rng.Intn(len(s.pool.Targets))]
	date := s.randomDate(rng)

	view, ok := s.fetchAvailability(ctx, t, date)
	if !ok || !view.Available {
		return
	}
	var open []string
	for _, slot := range view.TimeSlots {
		if slot.Available {
			open = append(open, slot.Time)
		}
	}
	if len(open) == 0 {
		return
	}
	startTime := open[rng.Intn(len(open))]

	racers := rng.Perm(len(s.pool.Clients))[:s.config.Racers]
	body, _ := json.Marshal(map[string]string{
		"business_id":      t.BusinessID.String(),
		"service_id":       t.ServiceID.String(),
		"appointment_date": date,
		"start_time":       startTime,
	})

	var (
		wg      sync.WaitGroup
		winners int64
		gate    = make(chan struct{})
	)
	for _, idx := range racers {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			<-gate
			if s.book(ctx, idx, t, body) {
				atomic.AddInt64(&winners, 1)
			}
		}(idx)
	}
	close(gate)
	wg.Wait()

	atomic.AddInt64(&s.metrics.Races, 1)
	atomic.AddInt64(&s.metrics.RaceWinners, winners)
	if winners > 1 {
		atomic.AddInt64(&s.metrics.DoubleBooking, 1)
		log.Error().
			Str("business_id", t.BusinessID.String()).
			Str("date", date).
			Str("start_time", startTime).
			Int64("winners", winners).
			Msg("double booking detected")
	}
}

func (s *Simulator) book(ctx context.Context, clientIdx int, t bookable, body []byte) bool {
	clientID := s.pool.Clients[clientIdx]
	start := time.Now()

	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+"/appointments", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.pool.Token(clientID))

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	conflict := false

	if err == nil {
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusCreated:
			success = true
			var apptResp struct {
				ID uuid.UUID `json:"id"`
			}
			bodyBytes, _ := io.ReadAll(resp.Body)
			if json.Unmarshal(bodyBytes, &apptResp) == nil && apptResp.ID != uuid.Nil {
				s.pool.AddAppointment(created{ID: apptResp.ID, OwnerID: t.OwnerID, Client: clientIdx})
			}
		case http.StatusConflict:
			conflict = true
		}
	}

	s.metrics.Booking.Record(latency, success, conflict)
	return success
}

func (s *Simulator) doConfirm(ctx context.Context, rng *rand.Rand) {
	appt, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()

	body := bytes.NewReader([]byte(`{"status":"confirmed"}`))
	req, _ := http.NewRequestWithContext(ctx, http.MethodPatch,
		fmt.Sprintf("%s/appointments/%s/status", s.config.APIBaseURL, appt.ID), body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.pool.Token(appt.OwnerID))

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	conflict := false

	if err == nil {
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			success = true
		} else if resp.StatusCode == http.StatusConflict {
			conflict = true
		}
	}

	s.metrics.Confirm.Record(latency, success, conflict)
}

func (s *Simulator) doListByClient(ctx context.Context, rng *rand.Rand) {
	clientID := s.pool.Clients[rng.Intn(len(s.pool.Clients))]

	start := time.Now()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, s.config.APIBaseURL+"/appointments/client?limit=20&offset=0", nil)
	req.Header.Set("Authorization", "Bearer "+s.pool.Token(clientID))

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.ListByClient.Record(latency, success, false)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Racers per slot: %d\n", s.config.Racers)
	fmt.Println()

	printOperationReport("Availability", &s.metrics.Availability)
	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Confirm", &s.metrics.Confirm)
	printOperationReport("List by Client", &s.metrics.ListByClient)

	races := atomic.LoadInt64(&s.metrics.Races)
	fmt.Println("Slot races:")
	fmt.Printf("  Races: %d\n", races)
	fmt.Printf("  Winners: %d\n", atomic.LoadInt64(&s.metrics.RaceWinners))
	fmt.Printf("  Double bookings: %d\n", atomic.LoadInt64(&s.metrics.DoubleBooking))
	fmt.Println()
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
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func repeat(s string, n int) string {
	return strings.Repeat(s, n)
}
