package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, metrics *Metrics) string {
	t.Helper()
	recorder := httptest.NewRecorder()
	metrics.HTTPHandler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, recorder.Code)
	return recorder.Body.String()
}

func TestMetrics(t *testing.T) {
	// 每个实例使用独立注册表，可以重复创建
	metrics := NewMetrics()
	_ = NewMetrics()

	metrics.RecordTransition("create-pending", "success")
	metrics.RecordTransition("create-pending", "success")
	metrics.RecordTransition("delete-pending", "failure")
	metrics.RecordReconcileRun("success", 3, 120*time.Millisecond)
	metrics.RecordAction("restart", "success")
	metrics.RecordHTTPRequest("POST", "/api/v1/reconcile", "200", 10*time.Millisecond)

	body := scrape(t, metrics)

	assert.Contains(t, body, `listsync_transitions_total{result="success",status="create-pending"} 2`)
	assert.Contains(t, body, `listsync_transitions_total{result="failure",status="delete-pending"} 1`)
	assert.Contains(t, body, `listsync_pending_lists 3`)
	assert.Contains(t, body, `listsync_reconcile_runs_total{result="success"} 1`)
	assert.Contains(t, body, `listsync_actions_total{kind="restart",result="success"} 1`)
	assert.Contains(t, body, `listsync_http_requests_total{endpoint="/api/v1/reconcile",method="POST",status_code="200"} 1`)
	assert.Contains(t, body, "go_goroutines")
}
