package monitoring_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/tippster/internal/database/testutil"
	"github.com/charlesng35/tippster/internal/monitoring"
	"github.com/charlesng35/tippster/internal/monitoring/checks"
)

func TestHealthManagerEvaluate(t *testing.T) {
	t.Parallel()

	manager := monitoring.NewHealthManager()
	manager.RegisterReadiness(monitoring.NewCheck("database", func(ctx context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: monitoring.StatusUp}
	}))
	manager.RegisterReadiness(monitoring.NewCheck("redis", func(ctx context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "connection refused"}
	}))

	report := manager.EvaluateReadiness(context.Background())
	require.False(t, report.Success)
	require.Equal(t, monitoring.StatusDown, report.Status)
	require.Len(t, report.Checks, 2)
	require.Equal(t, "redis", report.Checks[1].Component)

	live := manager.EvaluateLiveness(context.Background())
	require.True(t, live.Success)
	require.Empty(t, live.Checks)
}

func TestHealthManagerRecoversPanics(t *testing.T) {
	t.Parallel()

	manager := monitoring.NewHealthManager()
	manager.RegisterLiveness(monitoring.NewCheck("broken", func(ctx context.Context) monitoring.ProbeResult {
		panic("boom")
	}))

	report := manager.EvaluateLiveness(context.Background())
	require.False(t, report.Success)
	require.Equal(t, "broken", report.Checks[0].Component)
	require.Contains(t, report.Checks[0].Details, "boom")
}

func TestResultFromErrorTimeoutDegrades(t *testing.T) {
	result := monitoring.ResultFromError("db", context.DeadlineExceeded, time.Millisecond)
	require.Equal(t, monitoring.StatusDegraded, result.Status)

	result = monitoring.ResultFromError("db", errors.New("refused"), time.Millisecond)
	require.Equal(t, monitoring.StatusDown, result.Status)
}

func TestMaintenanceCheck(t *testing.T) {
	t.Parallel()

	jobs := monitoring.NewJobTracker()
	check := checks.Maintenance(jobs, 0)
	require.Equal(t, monitoring.StatusUp, check.Run(context.Background()).Status)

	jobs.Register("token_reaper")
	result := check.Run(context.Background())
	require.Equal(t, monitoring.StatusUp, result.Status)
	require.Contains(t, result.Details, "pending first run")

	jobs.Record("token_reaper", 3, time.Second, nil)
	jobs.Record("reset_purge", 0, time.Second, errors.New("timeout"))

	result = check.Run(context.Background())
	require.Equal(t, monitoring.StatusDegraded, result.Status)
	require.Contains(t, result.Details, "reset_purge: timeout")

	snapshot := jobs.Snapshot()
	require.Len(t, snapshot, 2)
	require.Equal(t, "reset_purge", snapshot[0].Job)
	require.EqualValues(t, 1, snapshot[0].ConsecutiveFailures)
	require.Equal(t, "token_reaper", snapshot[1].Job)
	require.EqualValues(t, 3, snapshot[1].LastAffected)
}

func TestDatabaseCheck(t *testing.T) {
	db := testutil.MustOpenTestDB(t)

	result := checks.Database(db, 0).Run(context.Background())
	require.Equal(t, monitoring.StatusUp, result.Status)

	result = checks.Database(nil, 0).Run(context.Background())
	require.Equal(t, monitoring.StatusDown, result.Status)
}

func TestRedisCheck(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	require.Equal(t, monitoring.StatusUp, checks.Redis(client, 0).Run(context.Background()).Status)
	require.Equal(t, monitoring.StatusUp, checks.Redis(nil, 0).Run(context.Background()).Status)

	mr.Close()
	require.Equal(t, monitoring.StatusDegraded, checks.Redis(client, time.Second).Run(context.Background()).Status)
}

func TestKafkaCheckDisabled(t *testing.T) {
	result := checks.Kafka(nil, 0).Run(context.Background())
	require.Equal(t, monitoring.StatusUp, result.Status)
	require.Equal(t, "events disabled", result.Details)
}
