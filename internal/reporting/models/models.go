// Package models holds the reporting aggregates. Everything here is computed
// on read, nothing is persisted.
package models

// AssessmentMetrics summarizes a tenant's campaigns.
type AssessmentMetrics struct {
	Total          int            `json:"total_assessments"`
	ByStatus       map[string]int `json:"by_status"`
	CompletionRate float64        `json:"completion_rate"`
	Overdue        int            `json:"overdue"`
}

// FindingMetrics summarizes findings by severity and lifecycle state.
type FindingMetrics struct {
	Total      int            `json:"total_findings"`
	BySeverity map[string]int `json:"by_severity"`
	ByStatus   map[string]int `json:"by_status"`
	Overdue    int            `json:"overdue"`
}

// MaturityMetrics summarizes approved answer scores.
type MaturityMetrics struct {
	AverageMaturity   float64        `json:"average_maturity"`
	TotalResponses    int            `json:"total_responses"`
	ScoreDistribution map[string]int `json:"score_distribution"`
}

// RemediationMetrics summarizes remediation actions and their task progress.
type RemediationMetrics struct {
	TotalActions    int            `json:"total_actions"`
	ByStatus        map[string]int `json:"by_status"`
	AverageProgress float64        `json:"average_progress"`
}

// Overview is the tenant compliance dashboard payload.
type Overview struct {
	Assessments AssessmentMetrics  `json:"assessments"`
	Findings    FindingMetrics     `json:"findings"`
	Maturity    MaturityMetrics    `json:"maturity"`
	Remediation RemediationMetrics `json:"remediation"`
}

// ProgressSummary mirrors an assessment's answering progress.
type ProgressSummary struct {
	TotalQuestions     int     `json:"total_questions"`
	AnsweredQuestions  int     `json:"answered_questions"`
	ApprovedQuestions  int     `json:"approved_questions"`
	CompletionPercent  float64 `json:"completion_percent"`
	MandatoryRemaining int     `json:"mandatory_remaining"`
}

// AssessmentReport is the per-assessment drill-down.
type AssessmentReport struct {
	Status   string          `json:"status"`
	Overdue  bool            `json:"overdue"`
	Progress ProgressSummary `json:"progress"`
	Findings FindingMetrics  `json:"findings"`
	Maturity MaturityMetrics `json:"maturity"`
}
