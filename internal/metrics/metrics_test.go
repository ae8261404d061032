package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordTaskOp(t *testing.T) {
	before := testutil.ToFloat64(TaskOperations.WithLabelValues("t", "submit", "error"))
	RecordTaskOp("t", "submit", errors.New("x"))
	RecordTaskOp("t", "submit", nil)
	assert.Equal(t, before+1, testutil.ToFloat64(TaskOperations.WithLabelValues("t", "submit", "error")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(TaskOperations.WithLabelValues("t", "submit", "ok")), 1.0)
}

func TestRecordFetch(t *testing.T) {
	RecordFetch("fetch-test", 3, 2)
	assert.Equal(t, 3.0, testutil.ToFloat64(ResultsFetched.WithLabelValues("fetch-test")))
	assert.Equal(t, 2.0, testutil.ToFloat64(DecodeSkipped.WithLabelValues("fetch-test")))
}

func TestHealth(t *testing.T) {
	SetHealthy()
	assert.Equal(t, 1.0, testutil.ToFloat64(HealthStatus))
	SetUnhealthy()
	assert.Equal(t, 0.0, testutil.ToFloat64(HealthStatus))
}
