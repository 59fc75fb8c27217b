package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_CustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)

	m.SpanShrinks.Add(3)
	m.Decisions.WithLabelValues("no_decision").Inc()

	assert.Equal(t, 3.0, testutil.ToFloat64(m.SpanShrinks))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Decisions.WithLabelValues("no_decision")))

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "test_ingestion_span_shrinks_total")
}

func TestRecordDecision_OnlySetsGaugesForDecisions(t *testing.T) {
	before := testutil.ToFloat64(DefaultMetrics.Threshold)

	RecordDecision("no_decision", 9, 9, 9)
	assert.Equal(t, before, testutil.ToFloat64(DefaultMetrics.Threshold))

	RecordDecision("decision", 0.51, 0.6, 0.12)
	assert.Equal(t, 0.51, testutil.ToFloat64(DefaultMetrics.Threshold))
	assert.Equal(t, 0.12, testutil.ToFloat64(DefaultMetrics.Decision))
}

func TestHandler_ServesMetrics(t *testing.T) {
	RecordFetch(FetchStats{Logs: 2, Chunks: 1})

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "supply_controller_ingestion_logs_fetched_total")
}

func TestPush(t *testing.T) {
	var gotPath string
	var gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	require.NoError(t, Push(context.Background(), server.URL, "supply_controller"))
	assert.True(t, strings.HasPrefix(gotPath, "/metrics/job/supply_controller"), gotPath)
	assert.NotEmpty(t, gotBody)
}

func TestPush_NoURL(t *testing.T) {
	assert.NoError(t, Push(context.Background(), "", "job"))
}
