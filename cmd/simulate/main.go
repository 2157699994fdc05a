package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Krish-Makadiya/Aroga-sub001/internal/db"
)

type SimConfig struct {
	APIBaseURL  string
	Duration    time.Duration
	Workers     int
	PostgresDSN string
}

type DataPool struct {
	Patients []uuid.UUID
	Doctors  []uuid.UUID
}

type Metrics struct {
	Lifecycles     int64
	LifecycleFails int64
	Conflicts      int64
	MatchWins      int64
	MatchLosses    int64
	DoubleWins     int64 // should stay zero
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}
	if len(dataPool.Patients) == 0 || len(dataPool.Doctors) == 0 {
		log.Fatal("no patients or doctors found, run cmd/seed first")
	}

	log.Printf("loaded: %d patients, %d doctors", len(dataPool.Patients), len(dataPool.Doctors))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	cfg := SimConfig{
		APIBaseURL:  getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:    getDuration("SIM_DURATION", 30*time.Second),
		Workers:     getInt("SIM_WORKERS", 10),
		PostgresDSN: dsn,
	}

	log.Printf("config: base_url=%s duration=%s workers=%d", cfg.APIBaseURL, cfg.Duration, cfg.Workers)
	return cfg
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool) (*DataPool, error) {
	dp := &DataPool{}

	rows, err := pool.Query(ctx, `SELECT id FROM patients LIMIT 2000`)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dp.Patients = append(dp.Patients, id)
	}

	docRows, err := pool.Query(ctx, `SELECT id FROM doctors LIMIT 200`)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}
	defer docRows.Close()
	for docRows.Next() {
		var id uuid.UUID
		if err := docRows.Scan(&id); err != nil {
			return nil, err
		}
		dp.Doctors = append(dp.Doctors, id)
	}

	return dp, nil
}

func (s *Simulator) Run() {
	deadline := time.Now().Add(s.config.Duration)
	var wg sync.WaitGroup

	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for time.Now().Before(deadline) {
				if rand.Intn(10) < 8 {
					s.runLifecycle()
				} else {
					s.runEmergencyRace()
				}
			}
		}(i)
	}

	wg.Wait()
}

// runLifecycle drives one appointment through book, confirm, pay, complete
// and rate end to end.
func (s *Simulator) runLifecycle() {
	patientID := s.pool.Patients[rand.Intn(len(s.pool.Patients))]
	doctorID := s.pool.Doctors[rand.Intn(len(s.pool.Doctors))]

	// next quarter-hour boundary at least 2h out
	slot := time.Now().Add(2 * time.Hour).Truncate(15 * time.Minute).Add(15 * time.Minute)

	var created struct {
		ID uuid.UUID `json:"id"`
	}
	status, err := s.post("/appointments", map[string]any{
		"patient_id":   patientID.String(),
		"doctor_id":    doctorID.String(),
		"scheduled_at": slot.Format(time.RFC3339),
		"type":         "online",
		"symptoms":     []string{"fever"},
	}, nil, &created)
	if err != nil || status != http.StatusCreated {
		atomic.AddInt64(&s.metrics.LifecycleFails, 1)
		return
	}

	doctorHdr := map[string]string{"X-Actor-Id": doctorID.String(), "X-Actor-Role": "doctor"}

	steps := []func() (int, error){
		func() (int, error) {
			return s.post(fmt.Sprintf("/appointments/%s/status", created.ID), map[string]any{"status": "confirmed"}, doctorHdr, nil)
		},
		func() (int, error) {
			return s.post(fmt.Sprintf("/appointments/%s/payment", created.ID), map[string]any{
				"order_ref":   "sim-order-" + created.ID.String()[:8],
				"payment_ref": "sim-pay-" + created.ID.String()[:8],
			}, nil, nil)
		},
		func() (int, error) {
			return s.post(fmt.Sprintf("/appointments/%s/status", created.ID), map[string]any{"status": "completed"}, doctorHdr, nil)
		},
		func() (int, error) {
			return s.post(fmt.Sprintf("/appointments/%s/rating", created.ID), map[string]any{
				"value":  1 + rand.Intn(5),
				"review": "simulated consultation",
			}, nil, nil)
		},
	}

	for _, step := range steps {
		status, err := step()
		if err != nil {
			atomic.AddInt64(&s.metrics.LifecycleFails, 1)
			return
		}
		if status == http.StatusConflict {
			atomic.AddInt64(&s.metrics.Conflicts, 1)
			return
		}
		if status >= 400 {
			atomic.AddInt64(&s.metrics.LifecycleFails, 1)
			return
		}
	}

	atomic.AddInt64(&s.metrics.Lifecycles, 1)
}

// runEmergencyRace raises an SOS and fires two concurrent match calls at it.
// Exactly one should win.
func (s *Simulator) runEmergencyRace() {
	patientID := s.pool.Patients[rand.Intn(len(s.pool.Patients))]

	var created struct {
		ID uuid.UUID `json:"id"`
	}
	status, err := s.post("/emergencies", map[string]any{
		"requester_id": patientID.String(),
		"phone":        "+911234567890",
		"latitude":     19.07 + rand.Float64(),
		"longitude":    72.87 + rand.Float64(),
	}, nil, &created)
	if err != nil || status != http.StatusCreated {
		atomic.AddInt64(&s.metrics.LifecycleFails, 1)
		return
	}

	var wg sync.WaitGroup
	wins := int64(0)
	for i := 0; i < 2; i++ {
		doctorID := s.pool.Doctors[rand.Intn(len(s.pool.Doctors))]
		wg.Add(1)
		go func(docID uuid.UUID) {
			defer wg.Done()
			status, err := s.post(fmt.Sprintf("/emergencies/%s/match", created.ID), map[string]any{
				"doctor_id": docID.String(),
			}, nil, nil)
			if err != nil {
				return
			}
			if status == http.StatusOK {
				atomic.AddInt64(&wins, 1)
				atomic.AddInt64(&s.metrics.MatchWins, 1)
			} else if status == http.StatusConflict {
				atomic.AddInt64(&s.metrics.MatchLosses, 1)
			}
		}(doctorID)
	}
	wg.Wait()

	if atomic.LoadInt64(&wins) > 1 {
		atomic.AddInt64(&s.metrics.DoubleWins, 1)
	}
}

func (s *Simulator) post(path string, body map[string]any, headers map[string]string, out any) (int, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequest(http.MethodPost, s.config.APIBaseURL+path, bytes.NewReader(data))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}

	return resp.StatusCode, nil
}

func (s *Simulator) PrintReport() {
	fmt.Println("==== simulation report ====")
	fmt.Printf("full lifecycles completed: %d\n", s.metrics.Lifecycles)
	fmt.Printf("lifecycle failures:        %d\n", s.metrics.LifecycleFails)
	fmt.Printf("conflicts observed:        %d\n", s.metrics.Conflicts)
	fmt.Printf("emergency match wins:      %d\n", s.metrics.MatchWins)
	fmt.Printf("emergency match losses:    %d\n", s.metrics.MatchLosses)
	fmt.Printf("double wins (MUST be 0):   %d\n", s.metrics.DoubleWins)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
