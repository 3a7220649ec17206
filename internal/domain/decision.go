package domain

import "time"

// RiskPrediction is the external ML scorer's response, consumed
// read-only. A nil prediction means "scorer unavailable" and the
// pipeline substitutes a neutral score.
type RiskPrediction struct {
	TransactionID     string             `json:"transaction_id"`
	RiskScore         float64            `json:"risk_score"` // 0-10
	RiskLevel         string             `json:"risk_level,omitempty"`
	Confidence        float64            `json:"confidence"` // 0-1
	FeatureImportance map[string]float64 `json:"feature_importance,omitempty"`
	ModelVersion      string             `json:"model_version,omitempty"`
}

// Transaction dispositions.
const (
	DispositionClear   = "clear"
	DispositionFlagged = "flagged"
)

// Alert types, in the fixed priority order used for classification.
const (
	AlertTypeStructuring = "structuring"
	AlertTypeVelocity    = "velocity"
	AlertTypeGeographic  = "geographic"
	AlertTypeAnomaly     = "anomaly"
)

// Alert severities.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
)

// AlertStatusOpen is the status every freshly created alert carries.
const AlertStatusOpen = "open"

// Alert is the record synthesized for a flagged transaction. At most
// one alert is created per pipeline pass; deduplication across repeated
// submissions of the same transaction id is left to storage.
type Alert struct {
	ID            string    `json:"id"`
	TransactionID string    `json:"transaction_id"`
	CustomerID    string    `json:"customer_id"`
	Type          string    `json:"alert_type"`
	Severity      string    `json:"severity"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	RiskScore     float64   `json:"risk_score"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// FinalDecision is the pipeline's terminal output for one transaction.
type FinalDecision struct {
	TransactionID  string          `json:"transaction_id"`
	RiskScore      float64         `json:"risk_score"` // 0-10, two decimals
	Disposition    string          `json:"disposition"`
	TriggeredRules []string        `json:"triggered_rules"`
	Prediction     *RiskPrediction `json:"ml_prediction,omitempty"`
	Alert          *Alert          `json:"alert,omitempty"`
	ProcessedAt    time.Time       `json:"processed_at"`
}

// RiskUpdate carries a decision's side effects onto the stored
// transaction record.
type RiskUpdate struct {
	RiskScore   float64         `json:"risk_score"`
	Prediction  *RiskPrediction `json:"ml_prediction,omitempty"`
	RulesHit    []string        `json:"rules_hit"`
	Status      string          `json:"status"`
	ProcessedAt time.Time       `json:"processed_at"`
}
