package glue

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aipilotbyjd/lnkflow-core/internal/domain"
)

func TestEstimateSumsByConnectorClass(t *testing.T) {
	e := NewCostEstimator()
	attempts := []domain.ConnectorCallAttempt{
		{ConnectorKey: "openai.chat_completion"},
		{ConnectorKey: "http.request"},
		{ConnectorKey: "unknown_connector"},
	}
	got := e.Estimate(attempts)
	want := 0.02 + 0.001 + genericClassCost
	assert.InDelta(t, want, got, 1e-9)
}

func TestEstimateDiscountsRetries(t *testing.T) {
	e := NewCostEstimator()
	attempts := []domain.ConnectorCallAttempt{
		{ConnectorKey: "slack.post_message", IsRetry: true},
	}
	got := e.Estimate(attempts)
	assert.InDelta(t, 0.001*retryMultiplier, got, 1e-9)
}

func TestEstimateAndApplyStampsExecution(t *testing.T) {
	e := NewCostEstimator()
	execution := &domain.Execution{}
	attempts := []domain.ConnectorCallAttempt{{ConnectorKey: "openai.chat_completion"}}

	got := e.EstimateAndApply(execution, attempts)
	assert.Equal(t, got, execution.EstimatedCostUSD)
	assert.InDelta(t, 0.02, execution.EstimatedCostUSD, 1e-9)
}

func TestEstimateEmptyAttemptsIsZero(t *testing.T) {
	e := NewCostEstimator()
	assert.Equal(t, 0.0, e.Estimate(nil))
}

func TestNewCostEstimatorWithTableOverridesDefaults(t *testing.T) {
	e := NewCostEstimatorWithTable(map[string]float64{"custom": 5.0})
	got := e.Estimate([]domain.ConnectorCallAttempt{{ConnectorKey: "custom.op"}})
	assert.InDelta(t, 5.0, got, 1e-9)
}

func TestNewCostEstimatorWithTableEmptyFallsBackToDefault(t *testing.T) {
	e := NewCostEstimatorWithTable(nil)
	got := e.Estimate([]domain.ConnectorCallAttempt{{ConnectorKey: "openai.chat_completion"}})
	assert.InDelta(t, 0.02, got, 1e-9)
}
