package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/prometheus/prompb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPushRegistry(t *testing.T) {
	tests := []struct {
		name string
		cfg  PushConfig
	}{
		{
			name: "minimal config",
			cfg: PushConfig{
				URL: "http://localhost:9090",
			},
		},
		{
			name: "full config",
			cfg: PushConfig{
				URL:      "http://localhost:9090",
				Prefix:   "test",
				Job:      "testjob",
				Instance: "testinstance",
				Timeout:  5 * time.Second,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := NewPushRegistry(tt.cfg)
			require.NotNil(t, registry)
			require.NotNil(t, registry.pusher)
		})
	}
}

// remoteWriteServer decodes snappy-compressed protobuf write requests and
// forwards the time series to a channel.
func remoteWriteServer(t *testing.T, received chan []prompb.TimeSeries) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "snappy", r.Header.Get("Content-Encoding"))
		assert.Equal(t, "application/x-protobuf", r.Header.Get("Content-Type"))
		assert.Equal(t, "0.1.0", r.Header.Get("X-Prometheus-Remote-Write-Version"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		decoded, err := snappy.Decode(nil, body)
		require.NoError(t, err)

		var writeReq prompb.WriteRequest
		require.NoError(t, proto.Unmarshal(decoded, &writeReq))

		received <- writeReq.Timeseries
		w.WriteHeader(http.StatusOK)
	}))
}

func findLabel(labels []prompb.Label, name string) string {
	for _, l := range labels {
		if l.Name == name {
			return l.Value
		}
	}
	return ""
}

func TestPushGauge_Set(t *testing.T) {
	received := make(chan []prompb.TimeSeries, 1)
	server := remoteWriteServer(t, received)
	defer server.Close()

	registry := NewPushRegistry(PushConfig{
		URL:      server.URL,
		Prefix:   "test",
		Job:      "testjob",
		Instance: "testinstance",
	})

	gauge, err := registry.NewGauge(prometheus.GaugeOpts{
		Name: "test_metric",
		Help: "A test metric",
	})
	require.NoError(t, err)
	gauge.Set(42.0)

	select {
	case series := <-received:
		require.Len(t, series, 1)
		ts := series[0]

		assert.Equal(t, "test_test_metric", findLabel(ts.Labels, "__name__"))
		assert.Equal(t, "testjob", findLabel(ts.Labels, "job"))
		assert.Equal(t, "testinstance", findLabel(ts.Labels, "instance"))

		require.Len(t, ts.Samples, 1)
		assert.Equal(t, 42.0, ts.Samples[0].Value)

	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for metrics to be received")
	}
}

func TestPushGaugeVec_WithLabels(t *testing.T) {
	received := make(chan []prompb.TimeSeries, 1)
	server := remoteWriteServer(t, received)
	defer server.Close()

	registry := NewPushRegistry(PushConfig{URL: server.URL})

	gaugeVec, err := registry.NewGaugeVec(prometheus.GaugeOpts{
		Name: "test_gauge_vec",
		Help: "A test gauge vector",
	}, []string{"status"})
	require.NoError(t, err)

	gaugeVec.With(prometheus.Labels{"status": "completed"}).Set(123.0)

	select {
	case series := <-received:
		require.Len(t, series, 1)
		ts := series[0]

		assert.Equal(t, "test_gauge_vec", findLabel(ts.Labels, "__name__"))
		assert.Equal(t, "completed", findLabel(ts.Labels, "status"))
		require.Len(t, ts.Samples, 1)
		assert.Equal(t, 123.0, ts.Samples[0].Value)

	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for metrics to be received")
	}
}

func TestPushCounter_Inc(t *testing.T) {
	received := make(chan []prompb.TimeSeries, 2)
	server := remoteWriteServer(t, received)
	defer server.Close()

	registry := NewPushRegistry(PushConfig{URL: server.URL})

	counter, err := registry.NewCounter(prometheus.CounterOpts{
		Name: "test_counter",
		Help: "A test counter",
	})
	require.NoError(t, err)

	counter.Inc()
	counter.Inc()

	// Counters accumulate: each push carries the running total.
	for i := 0; i < 2; i++ {
		select {
		case series := <-received:
			require.Len(t, series, 1)
			ts := series[0]
			require.Len(t, ts.Samples, 1)
			assert.Equal(t, float64(i+1), ts.Samples[0].Value)
		case <-time.After(5 * time.Second):
			t.Fatalf("timeout waiting for metric %d", i+1)
		}
	}
}

func TestPushCounterVec_SharesSeriesPerLabelSet(t *testing.T) {
	received := make(chan []prompb.TimeSeries, 2)
	server := remoteWriteServer(t, received)
	defer server.Close()

	registry := NewPushRegistry(PushConfig{URL: server.URL})

	counterVec, err := registry.NewCounterVec(prometheus.CounterOpts{
		Name: "test_counter_vec",
		Help: "A test counter vector",
	}, []string{"status"})
	require.NoError(t, err)

	counterVec.With(prometheus.Labels{"status": "failed"}).Inc()
	counterVec.With(prometheus.Labels{"status": "failed"}).Inc()

	for i := 0; i < 2; i++ {
		select {
		case series := <-received:
			require.Len(t, series, 1)
			ts := series[0]
			assert.Equal(t, "failed", findLabel(ts.Labels, "status"))
			require.Len(t, ts.Samples, 1)
			assert.Equal(t, float64(i+1), ts.Samples[0].Value,
				"With must return the same underlying counter per label set")
		case <-time.After(5 * time.Second):
			t.Fatalf("timeout waiting for metric %d", i+1)
		}
	}
}

func TestPushHistogram_Observe(t *testing.T) {
	// Each observation pushes a _sum and a _count series.
	received := make(chan []prompb.TimeSeries, 2)
	server := remoteWriteServer(t, received)
	defer server.Close()

	registry := NewPushRegistry(PushConfig{URL: server.URL})

	histVec, err := registry.NewHistogramVec(prometheus.HistogramOpts{
		Name: "test_duration_seconds",
		Help: "A test histogram",
	}, []string{"step"})
	require.NoError(t, err)

	histVec.With(prometheus.Labels{"step": "validated"}).Observe(0.5)

	got := make(map[string]float64)
	for i := 0; i < 2; i++ {
		select {
		case series := <-received:
			require.Len(t, series, 1)
			ts := series[0]
			require.Len(t, ts.Samples, 1)
			got[findLabel(ts.Labels, "__name__")] = ts.Samples[0].Value
		case <-time.After(5 * time.Second):
			t.Fatalf("timeout waiting for series %d", i+1)
		}
	}

	assert.Equal(t, 0.5, got["test_duration_seconds_sum"])
	assert.Equal(t, 1.0, got["test_duration_seconds_count"])
}

func TestScrapeRegistry(t *testing.T) {
	registry, err := NewScrapeRegistry()
	require.NoError(t, err)
	require.NotNil(t, registry)

	gauge, err := registry.NewGauge(prometheus.GaugeOpts{
		Name: "test_gauge",
		Help: "A test gauge",
	})
	require.NoError(t, err)
	gauge.Set(42.0)

	counter, err := registry.NewCounter(prometheus.CounterOpts{
		Name: "test_counter",
		Help: "A test counter",
	})
	require.NoError(t, err)
	counter.Inc()

	histVec, err := registry.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "test_duration_seconds",
		Help:    "A test histogram",
		Buckets: prometheus.DefBuckets,
	}, []string{"step"})
	require.NoError(t, err)
	histVec.With(prometheus.Labels{"step": "received"}).Observe(0.25)

	handler := registry.Handler()
	require.NotNil(t, handler)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, "test_gauge 42")
	assert.Contains(t, body, "test_counter 1")
	assert.Contains(t, body, `test_duration_seconds_count{step="received"} 1`)
}

func TestScrapeRegistryDuplicateRegistration(t *testing.T) {
	registry, err := NewScrapeRegistry()
	require.NoError(t, err)

	opts := prometheus.GaugeOpts{Name: "dup_gauge", Help: "dup"}
	_, err = registry.NewGauge(opts)
	require.NoError(t, err)

	_, err = registry.NewGauge(opts)
	assert.Error(t, err)
}
