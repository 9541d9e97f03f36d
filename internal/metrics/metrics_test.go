package metrics

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRecordRequest(t *testing.T) {
	m := New(zap.NewNop())

	m.RecordRequest(true, 20*time.Millisecond, 200)
	m.RecordRequest(false, 40*time.Millisecond, 503)
	m.RecordRequest(false, 10*time.Millisecond, 503)
	m.RecordRetry()

	stats := m.GetStats()
	assert.Equal(t, uint64(3), stats.TotalRequests)
	assert.Equal(t, uint64(1), stats.SuccessfulRequests)
	assert.Equal(t, uint64(2), stats.FailedRequests)
	assert.Equal(t, uint64(1), stats.RetriedRequests)
	assert.Equal(t, uint64(2), stats.ErrorsByStatus[503])
	assert.Equal(t, 40*time.Millisecond, stats.MaxLatency)
	assert.Equal(t, 10*time.Millisecond, stats.MinLatency)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.promErrorsByStatus.WithLabelValues("503")))
}

func TestMinLatencyWithoutRequests(t *testing.T) {
	assert.Zero(t, New(nil).GetStats().MinLatency)
}

func TestRecordShaping(t *testing.T) {
	m := New(zap.NewNop())

	m.RecordShaping("summary", 150_000)
	m.RecordShaping("summary", 120_000)
	m.RecordShaping("raw", 2_000)

	stats := m.GetStats()
	assert.Equal(t, uint64(2), stats.ShapingModes["summary"])
	assert.Equal(t, uint64(1), stats.ShapingModes["raw"])
	assert.Equal(t, float64(2), testutil.ToFloat64(m.promResponseModes.WithLabelValues("summary")))
}

func TestRecordWorkItemsAndNormalization(t *testing.T) {
	m := New(zap.NewNop())

	m.RecordWorkItemsFetched(200)
	m.RecordWorkItemsFetched(0)
	m.RecordNormalization(3)
	m.RecordNormalization(-1)

	stats := m.GetStats()
	assert.Equal(t, uint64(200), stats.WorkItemsFetched)
	assert.Equal(t, uint64(3), stats.FieldCorrections)
	assert.Equal(t, float64(200), testutil.ToFloat64(m.promWorkItemsFetched))
}

func TestRecordToolExecution(t *testing.T) {
	m := New(zap.NewNop())

	m.RecordToolExecution("query_work_items", true, 100*time.Millisecond)
	m.RecordToolExecution("query_work_items", false, 300*time.Millisecond)

	stats := m.GetStats()
	assert.Equal(t, uint64(2), stats.ToolUsage["query_work_items"])
	assert.Equal(t, uint64(1), stats.ToolErrors["query_work_items"])
	assert.Equal(t, 200*time.Millisecond, stats.ToolLatency["query_work_items"])
}

func TestConcurrentRecording(t *testing.T) {
	m := New(zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				m.RecordRequest(true, time.Millisecond, 200)
				m.RecordToolExecution("get_work_items", true, time.Millisecond)
				m.RecordShaping("raw", 100)
			}
		}()
	}
	wg.Wait()

	stats := m.GetStats()
	assert.Equal(t, uint64(1000), stats.TotalRequests)
	assert.Equal(t, uint64(1000), stats.ToolUsage["get_work_items"])
	assert.Equal(t, uint64(1000), stats.ShapingModes["raw"])
}

func TestInstancesHaveIndependentRegistries(t *testing.T) {
	a := New(zap.NewNop())
	b := New(zap.NewNop())

	a.RecordRateLimitHit()

	assert.Equal(t, float64(1), testutil.ToFloat64(a.promRateLimitHits))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.promRateLimitHits))
	assert.NotSame(t, a.Registry(), b.Registry())
}

func TestHandler(t *testing.T) {
	m := New(zap.NewNop())
	m.RecordShaping("truncated_summary", 260_000)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `devops_mcp_response_mode_total{mode="truncated_summary"} 1`)
}
