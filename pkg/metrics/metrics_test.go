package metrics_test

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProm_Counters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	p := metrics.NewProm("composer", reg)

	p.IncExecutionStarted("F1")
	p.IncExecutionStarted("F1")
	p.IncTransition("F1", "action")
	p.IncExecutionFinished("F1", "completed")
	p.IncTransitionRejected("pending_approval")
	p.ObserveExecutionDuration("F1", 120)

	count, err := testutil.GatherAndCount(reg, "composer_executions_started_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	rec := httptest.NewRecorder()
	metrics.Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `composer_executions_started_total{flow="F1"} 2`)
	assert.Contains(t, string(body), `composer_transitions_rejected_total{reason="pending_approval"} 1`)
}

func TestNoop(t *testing.T) {
	t.Parallel()

	var m metrics.Metrics = metrics.Noop{}

	assert.NotPanics(t, func() {
		m.IncExecutionStarted("F1")
		m.IncExecutionFinished("F1", "failed")
		m.ObserveExecutionDuration("F1", 1)
	})
}
