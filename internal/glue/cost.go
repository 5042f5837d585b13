package glue

import "github.com/aipilotbyjd/lnkflow-core/internal/domain"

// defaultConnectorClassCost is the per-attempt base cost (USD) by
// connector class, keyed the same way ConnectorCallAttempt.ConnectorKey
// is namespaced elsewhere in the substrate (e.g. "slack", "http",
// "openai"). Unknown classes fall back to genericClassCost.
var defaultConnectorClassCost = map[string]float64{
	"openai":    0.02,
	"anthropic": 0.02,
	"http":      0.001,
	"slack":     0.001,
	"email":     0.001,
	"database":  0.0005,
}

const genericClassCost = 0.001

// retryMultiplier discounts retried attempts, per spec §4.12
// ("multiplies retries by 0.8").
const retryMultiplier = 0.8

// CostEstimator walks an execution's connector attempts and produces an
// estimated USD cost, per spec §4.12.
type CostEstimator struct {
	classCost map[string]float64
}

// NewCostEstimator returns an estimator using the default per-class base
// costs. Use NewCostEstimatorWithTable to override them (e.g. from
// workspace-specific pricing).
func NewCostEstimator() *CostEstimator {
	return &CostEstimator{classCost: defaultConnectorClassCost}
}

func NewCostEstimatorWithTable(table map[string]float64) *CostEstimator {
	if len(table) == 0 {
		return NewCostEstimator()
	}
	return &CostEstimator{classCost: table}
}

// Estimate sums per-attempt base cost by connector class, discounting
// retried attempts by retryMultiplier.
func (e *CostEstimator) Estimate(attempts []domain.ConnectorCallAttempt) float64 {
	total := 0.0
	for _, a := range attempts {
		cost := e.classCost[connectorClass(a.ConnectorKey)]
		if cost == 0 {
			cost = genericClassCost
		}
		if a.IsRetry {
			cost *= retryMultiplier
		}
		total += cost
	}
	return total
}

// EstimateAndApply estimates cost over attempts and stamps it onto the
// execution's EstimatedCostUSD field.
func (e *CostEstimator) EstimateAndApply(execution *domain.Execution, attempts []domain.ConnectorCallAttempt) float64 {
	cost := e.Estimate(attempts)
	execution.EstimatedCostUSD = cost
	return cost
}

// connectorClass extracts the leading namespace segment of a connector
// key ("openai.chat_completion" -> "openai"); keys with no separator are
// used as-is.
func connectorClass(connectorKey string) string {
	for i := 0; i < len(connectorKey); i++ {
		if connectorKey[i] == '.' {
			return connectorKey[:i]
		}
	}
	return connectorKey
}
