package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := NewPrometheusRecorder(reg)
	require.NoError(t, err)

	r.IncCounter(EventSendSucceeded, map[string]string{"network": "base"})
	r.IncCounter(EventSendSucceeded, map[string]string{"network": "base"})
	r.IncCounter(EventSendFailed, map[string]string{"network": "base", "code": "WRONG_NETWORK"})
	r.ObserveLatency(OpSend, 2*time.Second, map[string]string{"network": "base", "outcome": "succeeded"})

	assert.Equal(t, 2.0, testutil.ToFloat64(r.counters.WithLabelValues(EventSendSucceeded, "base", "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.counters.WithLabelValues(EventSendFailed, "base", "WRONG_NETWORK")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.histogram))

	_, err = NewPrometheusRecorder(reg)
	require.Error(t, err, "collectors cannot be registered twice")
}
