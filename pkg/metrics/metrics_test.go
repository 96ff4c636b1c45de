package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestDeploymentsTotalIncrements(t *testing.T) {
	DeploymentsTotal.Reset()
	DeploymentsTotal.WithLabelValues("blue-green", "succeeded").Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(DeploymentsTotal.WithLabelValues("blue-green", "succeeded")))
}

func TestHealthCheckPollsTotalByClassification(t *testing.T) {
	HealthCheckPollsTotal.Reset()
	HealthCheckPollsTotal.WithLabelValues("healthy").Inc()
	HealthCheckPollsTotal.WithLabelValues("unhealthy").Inc()
	HealthCheckPollsTotal.WithLabelValues("unhealthy").Inc()

	assert.Equal(t, float64(1), testutil.ToFloat64(HealthCheckPollsTotal.WithLabelValues("healthy")))
	assert.Equal(t, float64(2), testutil.ToFloat64(HealthCheckPollsTotal.WithLabelValues("unhealthy")))
}

func TestHandlerReturnsNonNil(t *testing.T) {
	assert.NotNil(t, Handler())
}
