package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/leapstack-labs/leapcalc/internal/testutil"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := NewRecorder(reg)
	require.NoError(t, err)

	r.ObserveCalculation(OutcomeSuccess, 10*time.Millisecond)
	r.ObserveCalculation(OutcomeSuccess, 20*time.Millisecond)
	r.ObserveCalculation(OutcomeFailed, time.Millisecond)
	r.ObserveSweepCase(OutcomeSuccess)
	r.SweepStarted()

	assert.Equal(t, 2.0, promtest.ToFloat64(r.calculations.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, promtest.ToFloat64(r.calculations.WithLabelValues(OutcomeFailed)))
	assert.Equal(t, 1.0, promtest.ToFloat64(r.sweepCases.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, promtest.ToFloat64(r.sweepsActive))

	r.SweepEnded()
	assert.Equal(t, 0.0, promtest.ToFloat64(r.sweepsActive))
}

func TestRecorder_DoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewRecorder(reg)
	require.NoError(t, err)
	_, err = NewRecorder(reg)
	assert.Error(t, err)
}

func TestRecorder_Nil(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObserveCalculation(OutcomeError, time.Second)
		r.ObserveSweepCase(OutcomeFailed)
		r.SweepStarted()
		r.SweepEnded()
	})
}

func TestRouter(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := NewRecorder(reg)
	require.NoError(t, err)
	r.ObserveSweepCase(OutcomeSuccess)

	srv := httptest.NewServer(Router(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `leapcalc_sweep_cases_total{outcome="success"} 1`)

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_ShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := NewServer(ln.Addr().String(), prometheus.NewRegistry(), testutil.NewTestLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(ctx, ln) }()

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
