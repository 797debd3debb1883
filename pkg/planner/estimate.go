package planner

// Size units understood by the planner
const (
	UnitBytes  = "bytes"
	UnitTokens = "tokens"
)

// estimator converts byte lengths into the configured size unit.
// Token estimation uses the rough 1 token ~= 4 characters rule, which is
// conservative for source code.
type estimator struct {
	unit string
}

func newEstimator(unit string) estimator {
	if unit == "" {
		unit = UnitTokens
	}
	return estimator{unit: unit}
}

// estimate returns the estimated size of nbytes of content
func (e estimator) estimate(nbytes int) int {
	if e.unit == UnitBytes {
		return nbytes
	}
	return (nbytes + 3) / 4
}

// bytesForBudget returns the largest byte length whose estimate still fits
// the budget
func (e estimator) bytesForBudget(budget int) int {
	if e.unit == UnitBytes {
		return budget
	}
	return budget * 4
}

// EstimateTokens estimates the model token count of a text
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
