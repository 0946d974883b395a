package rest

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// HealthChecker reports the health of one dependency.
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) error
}

// HealthService aggregates dependency checks for the readiness probe.
type HealthService struct {
	checkers []HealthChecker
	timeout  time.Duration
}

func NewHealthService(checkers ...HealthChecker) *HealthService {
	return &HealthService{
		checkers: checkers,
		timeout:  5 * time.Second,
	}
}

type healthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LivenessHandler reports process liveness only; no dependency checks,
// or a database outage would get the process restarted for nothing.
func (s *HealthService) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, healthStatus{Status: "alive"})
}

// ReadinessHandler runs all dependency checks concurrently.
func (s *HealthService) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		checks  = make(map[string]string, len(s.checkers))
		healthy = true
	)

	for _, c := range s.checkers {
		wg.Add(1)
		go func(c HealthChecker) {
			defer wg.Done()
			result := "ok"
			if err := c.Check(ctx); err != nil {
				result = err.Error()
			}
			mu.Lock()
			checks[c.Name()] = result
			if result != "ok" {
				healthy = false
			}
			mu.Unlock()
		}(c)
	}
	wg.Wait()

	status := http.StatusOK
	body := healthStatus{Status: "ready", Checks: checks}
	if !healthy {
		status = http.StatusServiceUnavailable
		body.Status = "degraded"
	}
	writeJSON(w, r, status, body)
}

// DatabaseHealthChecker verifies PostgreSQL connectivity.
type DatabaseHealthChecker struct {
	pool *pgxpool.Pool
}

func NewDatabaseHealthChecker(pool *pgxpool.Pool) *DatabaseHealthChecker {
	return &DatabaseHealthChecker{pool: pool}
}

func (c *DatabaseHealthChecker) Name() string { return "postgres" }

func (c *DatabaseHealthChecker) Check(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

// RedisHealthChecker verifies Redis connectivity.
type RedisHealthChecker struct {
	client *redis.Client
}

func NewRedisHealthChecker(client *redis.Client) *RedisHealthChecker {
	return &RedisHealthChecker{client: client}
}

func (c *RedisHealthChecker) Name() string { return "redis" }

func (c *RedisHealthChecker) Check(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
