package models

// OperationStatus classifies one declared API operation's test coverage.
type OperationStatus string

const (
	OperationCovered  OperationStatus = "COVERED"
	OperationFailing  OperationStatus = "FAILING"
	OperationUntested OperationStatus = "UNTESTED"
)

// Operation identifies one method+path pair declared by the API
// specification under test.
type Operation struct {
	OperationID string
	Method      string
	Path        string
}

// Key returns o's method and path joined by a space, e.g. "GET /pets/{id}".
// Path placeholders are kept as declared, not normalized.
func (o Operation) Key() string { return o.Method + " " + o.Path }

// OperationCoverage is one row of the coverage report.
type OperationCoverage struct {
	OperationID string
	Method      string
	Path        string
	Status      OperationStatus
	ScenarioIDs []ScenarioID
}

// CoverageReport summarizes operation coverage for a package.
type CoverageReport struct {
	TotalOperations    int
	CoveredOperations  int
	CoveragePercentage float64
	Operations         []OperationCoverage
	Gaps               []Operation
}
