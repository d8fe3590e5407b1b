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

func TestObserveBatch(t *testing.T) {
	before := testutil.ToFloat64(syncBatches.WithLabelValues(http.StatusText(http.StatusMultiStatus)))

	ObserveBatch(http.StatusMultiStatus, 5*time.Millisecond)

	after := testutil.ToFloat64(syncBatches.WithLabelValues(http.StatusText(http.StatusMultiStatus)))
	assert.Equal(t, before+1, after)
}

func TestCounters(t *testing.T) {
	ObserveMutation("task", "conflict")
	ObserveConflict("status_precedence")
	ObservePurged("tombstones", 3)
	SetNudgeSubscribers(2)

	assert.GreaterOrEqual(t, testutil.ToFloat64(mutationOutcomes.WithLabelValues("task", "conflict")), 1.0)
	assert.GreaterOrEqual(t, testutil.ToFloat64(conflictsResolved.WithLabelValues("status_precedence")), 1.0)
	assert.GreaterOrEqual(t, testutil.ToFloat64(purgedRows.WithLabelValues("tombstones")), 3.0)
	assert.Equal(t, 2.0, testutil.ToFloat64(nudgeSubscribers))
}

func TestHandler(t *testing.T) {
	ObserveMutation("event", "applied")

	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "famsync_mutations_total")
}
