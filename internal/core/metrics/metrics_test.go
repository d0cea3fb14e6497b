package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Counts(t *testing.T) {
	c := NewCollector()
	c.ElementCreated("trace")
	c.ElementCreated("trace")
	c.ElementRemoved("trace")
	c.AnalysisScheduled("stats")
	c.RefreshCompleted("project", 3*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.elementsCreated.WithLabelValues("trace")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.elementsRemoved.WithLabelValues("trace")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.analysesScheduled.WithLabelValues("stats")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.refreshDuration))
}

func TestCollector_NilIsSafe(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ElementCreated("trace")
		c.ElementRemoved("trace")
		c.RefreshCompleted("trace", time.Second)
		c.AnalysisScheduled("stats")
	})
	assert.NotNil(t, c.Handler())
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector()
	c.ElementCreated("experiment")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `trace_project_tree_elements_created_total{kind="experiment"} 1`)
}
