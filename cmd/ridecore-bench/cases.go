// README: Bench cases: env checks, migrations, dispatch races and an estimate load test.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"ridecore/internal/infra"
	"ridecore/internal/types"
)

const (
	statusPass = "PASS"
	statusFail = "FAIL"
	statusSkip = "SKIP"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client
	runID string
}

type Result struct {
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
		runID: uuid.NewString()[:8],
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))
	for _, tc := range tests {
		res := tc.Run(ctx, r)
		results = append(results, res)
		fmt.Printf("%-5s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}
	return results
}

// Scenario sites sit far enough apart that drivers seeded for one case are
// outside the dispatch radius of the other.
var (
	siteMidtown  = types.Point{Lat: 40.758, Lng: -73.9855}
	siteNewHaven = types.Point{Lat: 41.3083, Lng: -72.9279}
)

const benchDestination = "JFK Airport"

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{Name: "Env: Postgres connect", Run: func(ctx context.Context, r *Runner) Result {
			if r.db == nil {
				return Result{Status: statusFail, Note: "db not configured"}
			}
			ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			if err := r.db.Ping(ctx); err != nil {
				return Result{Status: statusFail, Note: err.Error()}
			}
			return Result{Status: statusPass}
		}},
		{Name: "Env: Redis connect", Run: func(ctx context.Context, r *Runner) Result {
			if r.redis == nil {
				return Result{Status: statusFail, Note: "redis not configured"}
			}
			ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			if err := r.redis.Ping(ctx).Err(); err != nil {
				return Result{Status: statusFail, Note: err.Error()}
			}
			return Result{Status: statusPass}
		}},
		{Name: "Migration: apply (optional)", Run: func(ctx context.Context, r *Runner) Result {
			if !r.cfg.ApplyMigration {
				return Result{Status: statusSkip, Note: "apply-migration=false"}
			}
			if r.db == nil {
				return Result{Status: statusFail, Note: "db not configured"}
			}
			if err := infra.Migrate(ctx, r.db); err != nil {
				return Result{Status: statusFail, Note: err.Error()}
			}
			return Result{Status: statusPass}
		}},
		{Name: "Migration: tables exist", Run: func(ctx context.Context, r *Runner) Result {
			if r.db == nil {
				return Result{Status: statusFail, Note: "db not configured"}
			}
			for _, t := range []string{"drivers", "rides", "ride_events", "surge_zones"} {
				var exists bool
				if err := r.db.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, "public."+t).Scan(&exists); err != nil {
					return Result{Status: statusFail, Note: err.Error()}
				}
				if !exists {
					return Result{Status: statusFail, Note: "missing table " + t}
				}
			}
			return Result{Status: statusPass}
		}},
		{Name: "HTTP: health", Run: func(ctx context.Context, r *Runner) Result {
			start := time.Now()
			status, _, err := r.call(ctx, http.MethodGet, "/health", "", nil)
			if err != nil {
				return Result{Status: statusFail, Note: err.Error()}
			}
			if status != http.StatusOK {
				return Result{Status: statusFail, Note: fmt.Sprintf("status %d", status)}
			}
			return Result{Status: statusPass, Latency: time.Since(start)}
		}},
		{Name: "Dispatch: concurrent match on one ride assigns once", Run: func(ctx context.Context, r *Runner) Result { return r.raceOneRide(ctx) }},
		{Name: "Dispatch: more rides than drivers never double-assigns", Run: func(ctx context.Context, r *Runner) Result { return r.raceManyRides(ctx) }},
		{Name: "Perf: fare estimate throughput", Run: func(ctx context.Context, r *Runner) Result { return r.estimateLoad(ctx) }},
	}
}

// call sends a JSON request with a header-mode dev token ("<uid>:<role>").
func (r *Runner) call(ctx context.Context, method, path, token string, body any) (int, []byte, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, rd)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b, nil
}

type seededDriver struct {
	id    types.ID
	token string
}

// seedDrivers registers n drivers, puts them online and places them a few
// hundred metres from site.
func (r *Runner) seedDrivers(ctx context.Context, tag string, site types.Point, n int) ([]seededDriver, error) {
	out := make([]seededDriver, 0, n)
	for i := 0; i < n; i++ {
		token := fmt.Sprintf("bench-%s-%s-d%d:driver", r.runID, tag, i)
		status, body, err := r.call(ctx, http.MethodPost, "/api/v1/drivers/register", token, map[string]any{
			"name":         fmt.Sprintf("Bench %d", i),
			"vehicleMake":  "Toyota",
			"vehicleModel": "Prius",
			"vehicleColor": "White",
			"licensePlate": fmt.Sprintf("B%s%s%d", r.runID, tag, i),
		})
		if err != nil {
			return nil, err
		}
		if status != http.StatusCreated {
			return nil, fmt.Errorf("register driver: status %d: %s", status, body)
		}
		var d struct {
			ID types.ID `json:"id"`
		}
		if err := json.Unmarshal(body, &d); err != nil {
			return nil, err
		}
		if status, body, err = r.call(ctx, http.MethodPatch, "/api/v1/drivers/me/status", token, map[string]any{"isOnline": true}); err != nil || status != http.StatusOK {
			return nil, fmt.Errorf("driver online: status %d: %s %v", status, body, err)
		}
		loc := map[string]any{"lat": site.Lat + 0.001*float64(i+1), "lng": site.Lng}
		if status, body, err = r.call(ctx, http.MethodPatch, "/api/v1/drivers/me/location", token, loc); err != nil || status != http.StatusOK {
			return nil, fmt.Errorf("driver location: status %d: %s %v", status, body, err)
		}
		out = append(out, seededDriver{id: d.ID, token: token})
	}
	return out, nil
}

// retire takes seeded drivers offline so later runs at the same site start clean.
func (r *Runner) retire(ctx context.Context, drivers []seededDriver) {
	for _, d := range drivers {
		_, _, _ = r.call(ctx, http.MethodPatch, "/api/v1/drivers/me/status", d.token, map[string]any{"isOnline": false})
	}
}

func (r *Runner) createRide(ctx context.Context, riderToken string, site types.Point) (types.ID, error) {
	status, body, err := r.call(ctx, http.MethodPost, "/api/v1/rides", riderToken, map[string]any{
		"pickupLat": site.Lat, "pickupLng": site.Lng, "destinationText": benchDestination,
	})
	if err != nil {
		return "", err
	}
	if status != http.StatusCreated {
		return "", fmt.Errorf("create ride: status %d: %s", status, body)
	}
	var ride struct {
		ID types.ID `json:"id"`
	}
	if err := json.Unmarshal(body, &ride); err != nil {
		return "", err
	}
	return ride.ID, nil
}

// matchAll fires one match per ride id concurrently, released together.
func (r *Runner) matchAll(ctx context.Context, riderToken string, rideIDs []types.ID) map[int]int {
	var (
		mu     sync.Mutex
		counts = map[int]int{}
		wg     sync.WaitGroup
		start  = make(chan struct{})
	)
	for _, id := range rideIDs {
		wg.Add(1)
		go func(id types.ID) {
			defer wg.Done()
			<-start
			status, _, err := r.call(ctx, http.MethodPost, "/api/v1/rides/"+string(id)+"/match", riderToken, nil)
			if err != nil {
				status = -1
			}
			mu.Lock()
			counts[status]++
			mu.Unlock()
		}(id)
	}
	close(start)
	wg.Wait()
	return counts
}

func (r *Runner) raceOneRide(ctx context.Context) Result {
	drivers, err := r.seedDrivers(ctx, "one", siteMidtown, r.cfg.Drivers)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	defer r.retire(ctx, drivers)

	rider := fmt.Sprintf("bench-%s-rider-one:rider", r.runID)
	id, err := r.createRide(ctx, rider, siteMidtown)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	ids := make([]types.ID, r.cfg.Concurrency)
	for i := range ids {
		ids[i] = id
	}

	start := time.Now()
	counts := r.matchAll(ctx, rider, ids)
	latency := time.Since(start)
	if counts[http.StatusOK] != 1 {
		return Result{Status: statusFail, Latency: latency, Note: fmt.Sprintf("expected exactly one success, got %v", counts)}
	}
	return Result{Status: statusPass, Latency: latency, Note: fmt.Sprintf("%v", counts)}
}

func (r *Runner) raceManyRides(ctx context.Context) Result {
	if r.db == nil {
		return Result{Status: statusSkip, Note: "db not configured"}
	}
	drivers, err := r.seedDrivers(ctx, "many", siteNewHaven, r.cfg.Drivers)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	defer r.retire(ctx, drivers)

	rider := fmt.Sprintf("bench-%s-rider-many:rider", r.runID)
	rides := make([]types.ID, r.cfg.Drivers+2)
	for i := range rides {
		if rides[i], err = r.createRide(ctx, rider, siteNewHaven); err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
	}

	start := time.Now()
	counts := r.matchAll(ctx, rider, rides)
	latency := time.Since(start)
	if counts[http.StatusOK] != r.cfg.Drivers {
		return Result{Status: statusFail, Latency: latency, Note: fmt.Sprintf("expected %d successes, got %v", r.cfg.Drivers, counts)}
	}

	driverIDs := make([]string, len(drivers))
	for i, d := range drivers {
		driverIDs[i] = string(d.id)
	}
	var doubled int
	err = r.db.QueryRow(ctx, `
		SELECT count(*) FROM (
			SELECT driver_id FROM rides
			WHERE driver_id = ANY($1) AND status IN ('matched', 'driver_arriving', 'in_progress')
			GROUP BY driver_id HAVING count(*) > 1
		) d`, driverIDs).Scan(&doubled)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if doubled > 0 {
		return Result{Status: statusFail, Latency: latency, Note: fmt.Sprintf("%d drivers hold more than one active ride", doubled)}
	}
	return Result{Status: statusPass, Latency: latency, Note: fmt.Sprintf("%v", counts)}
}

func (r *Runner) estimateLoad(ctx context.Context) Result {
	token := fmt.Sprintf("bench-%s-load:rider", r.runID)
	path := fmt.Sprintf("/api/v1/fares/estimate?pickupLat=%f&pickupLng=%f&destLat=40.6413&destLng=-73.7781", siteMidtown.Lat, siteMidtown.Lng)

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Duration)
	defer cancel()

	var (
		mu        sync.Mutex
		latencies []time.Duration
		failures  int
		wg        sync.WaitGroup
	)
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				t := time.Now()
				status, _, err := r.call(ctx, http.MethodGet, path, token, nil)
				if ctx.Err() != nil {
					return
				}
				mu.Lock()
				if err != nil || status != http.StatusOK {
					failures++
				} else {
					latencies = append(latencies, time.Since(t))
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(latencies) == 0 {
		return Result{Status: statusFail, Note: fmt.Sprintf("no successful requests, %d failures", failures)}
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	p50 := latencies[len(latencies)/2]
	p99 := latencies[len(latencies)*99/100]
	note := fmt.Sprintf("n=%d rps=%.0f p50=%s p99=%s failures=%d",
		len(latencies), float64(len(latencies))/r.cfg.Duration.Seconds(), p50, p99, failures)
	if failures > 0 {
		return Result{Status: statusFail, Latency: p50, Note: note}
	}
	return Result{Status: statusPass, Latency: p50, Note: note}
}
