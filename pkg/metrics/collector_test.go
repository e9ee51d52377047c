package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/waliduser3737-spec/api-photo-project/pkg/domain"
)

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ObserveGeneration("replicate", "", 3*time.Second)
	c.ObserveGeneration("replicate", domain.KindPollTimedOut, 90*time.Second)
	c.ObserveGeneration("flux", "", time.Second)
	c.ObservePoll("replicate", 1, nil)
	c.ObservePoll("replicate", 2, errors.New("502"))
	c.ObserveLogin(true)
	c.ObserveLogin(false)
	c.ObserveLogin(false)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.generationsTotal.WithLabelValues("replicate", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.generationsTotal.WithLabelValues("replicate", "poll_timed_out")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.pollAttemptsTotal.WithLabelValues("replicate", "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.loginsTotal.WithLabelValues("failure")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.generationDuration))
}
