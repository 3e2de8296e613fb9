package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveStepCountsByStatus(t *testing.T) {
	ok := StepsTotal.WithLabelValues("metrics-test", StatusSuccess)
	failed := StepsTotal.WithLabelValues("metrics-test", StatusFailure)
	beforeOK, beforeFailed := testutil.ToFloat64(ok), testutil.ToFloat64(failed)

	NewTimer("metrics-test").ObserveStep(nil)
	NewTimer("metrics-test").ObserveStep(errors.New("boom"))
	NewTimer("metrics-test").ObserveStep(nil)

	assert.Equal(t, beforeOK+2, testutil.ToFloat64(ok))
	assert.Equal(t, beforeFailed+1, testutil.ToFloat64(failed))
}

func TestTimerStop(t *testing.T) {
	timer := NewTimer("x")
	time.Sleep(5 * time.Millisecond)
	first := timer.Stop()
	assert.GreaterOrEqual(t, first, 5*time.Millisecond)
	assert.GreaterOrEqual(t, timer.Stop(), first)
}

func TestStatus(t *testing.T) {
	assert.Equal(t, StatusSuccess, Status(nil))
	assert.Equal(t, StatusFailure, Status(errors.New("x")))
}
