package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersAndServes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Notifications.WithLabelValues("committed", "ack").Inc()
	m.ActiveGroups.Set(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Notifications.WithLabelValues("committed", "ack")))

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `txgroup_notifications_total{outcome="ack",state="committed"} 1`)
	assert.Contains(t, string(body), "txgroup_active_groups 3")
}

func TestNewWithoutRegistry(t *testing.T) {
	assert.NotPanics(t, func() {
		New(nil).Failures.WithLabelValues("business").Inc()
	})
}
