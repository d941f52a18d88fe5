package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterBreakerStateExposesGauge(t *testing.T) {
	m := New(DefaultConfig("test"))
	m.RegisterBreakerState("mongodb", func() float64 { return 2 })

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(),
		`itemdetail_circuit_breaker_state{breaker="mongodb",service="test"} 2`)
}
