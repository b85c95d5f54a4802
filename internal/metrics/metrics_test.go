package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveExchange(t *testing.T) {
	m := New(WithRegistry(prometheus.NewRegistry()))

	m.ObserveExchange("get_state", OutcomeOK, 3*time.Millisecond)
	m.ObserveExchange("get_state", OutcomeOK, 4*time.Millisecond)
	m.ObserveExchange("get_state", OutcomeTimeout, time.Second)

	if got := testutil.ToFloat64(m.exchangesTotal.WithLabelValues("get_state", OutcomeOK)); got != 2 {
		t.Errorf("exchanges_total(ok) = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.exchangesTotal.WithLabelValues("get_state", OutcomeTimeout)); got != 1 {
		t.Errorf("exchanges_total(timeout) = %v, want 1", got)
	}
}

func TestObserveShot(t *testing.T) {
	m := New(WithRegistry(prometheus.NewRegistry()))

	m.ObserveShot("safe", 40)
	m.ObserveShot("safe", 0)
	m.ObserveShot("fast", -1)

	if got := testutil.ToFloat64(m.shotsTotal.WithLabelValues("safe", "accepted")); got != 2 {
		t.Errorf("shots_total(safe, accepted) = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.shotsTotal.WithLabelValues("fast", "rejected")); got != 1 {
		t.Errorf("shots_total(fast, rejected) = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.rewardTotal); got != 40 {
		t.Errorf("reward_total = %v, want 40", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveExchange("x", OutcomeOK, time.Millisecond)
	m.ObserveShot("safe", 1)
	m.ZoomRetry()
	m.Reconnect()
	m.SetConnected(true)
	m.SetLevel(3)
}

func TestClassify(t *testing.T) {
	errTimeout := errors.New("timeout")
	errMalformed := errors.New("malformed")

	tests := []struct {
		err  error
		want string
	}{
		{nil, OutcomeOK},
		{fmt.Errorf("read: %w", errTimeout), OutcomeTimeout},
		{fmt.Errorf("decode: %w", errMalformed), OutcomeMalformed},
		{errors.New("reset by peer"), OutcomeError},
	}
	for _, tt := range tests {
		if got := Classify(tt.err, errTimeout, errMalformed); got != tt.want {
			t.Errorf("Classify(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
