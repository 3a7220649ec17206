// Package decision combines rule results with the external ML risk
// score into one final disposition per transaction.
package decision

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/amlguard/amlguard/internal/domain"
)

// Score combination weights. A triggered rule set shifts weight toward
// the rules and adds a flat escalation bonus independent of rule score
// magnitude.
const (
	mlWeightTriggered   = 0.6
	ruleWeightTriggered = 0.4
	mlWeightClean       = 0.8
	ruleWeightClean     = 0.2
	triggerBonus        = 1.0
	maxScore            = 10.0
)

// Pipeline turns a rule evaluation and an optional ML prediction into a
// FinalDecision. It holds no per-transaction state.
type Pipeline struct {
	// FlagThreshold is the single global escalation threshold: final
	// scores at or above it are flagged and produce an alert.
	FlagThreshold float64
}

// NewPipeline creates a pipeline with the default 6.0 flag threshold.
func NewPipeline() *Pipeline {
	return &Pipeline{FlagThreshold: 6.0}
}

// alertTypePriority is the fixed classification order over triggered
// rule names, independent of which rule scored highest.
var alertTypePriority = []string{
	domain.AlertTypeStructuring,
	domain.AlertTypeVelocity,
	domain.AlertTypeGeographic,
}

var alertTitles = map[string]string{
	domain.AlertTypeStructuring: "Potential Structuring Pattern Detected",
	domain.AlertTypeVelocity:    "High-Velocity Transaction Pattern",
	domain.AlertTypeGeographic:  "Unusual Geographic Activity",
	domain.AlertTypeAnomaly:     "Anomalous Transaction Detected",
}

// Decide computes the final risk score, assigns the disposition, and
// synthesizes at most one alert. A nil prediction means the scorer was
// unavailable; the pipeline substitutes a neutral ML score of zero and
// proceeds.
func (p *Pipeline) Decide(tx *domain.Transaction, ruleResult *domain.RuleEvaluationResult, pred *domain.RiskPrediction) *domain.FinalDecision {
	mlScore := 0.0
	if pred != nil {
		mlScore = pred.RiskScore
	}

	maxRuleScore := 0.0
	var triggered []string
	if ruleResult != nil {
		maxRuleScore = ruleResult.MaxScore()
		triggered = ruleResult.TriggeredRules
	}

	final := combineScores(mlScore, maxRuleScore, len(triggered) > 0)

	decision := &domain.FinalDecision{
		TransactionID:  tx.ID,
		RiskScore:      final,
		Disposition:    domain.DispositionClear,
		TriggeredRules: triggered,
		Prediction:     pred,
		ProcessedAt:    time.Now().UTC(),
	}

	if final >= p.FlagThreshold {
		decision.Disposition = domain.DispositionFlagged
		decision.Alert = p.buildAlert(tx, triggered, pred, final)
	}

	return decision
}

// combineScores implements the deterministic weighting policy. The
// result is clamped to 10 and rounded to two decimal places.
func combineScores(mlScore, maxRuleScore float64, anyTriggered bool) float64 {
	var final float64
	if anyTriggered {
		final = math.Min(maxScore, mlWeightTriggered*mlScore+ruleWeightTriggered*maxRuleScore*10+triggerBonus)
	} else {
		final = mlWeightClean*mlScore + ruleWeightClean*maxRuleScore*10
	}
	return math.Round(final*100) / 100
}

func (p *Pipeline) buildAlert(tx *domain.Transaction, triggered []string, pred *domain.RiskPrediction, score float64) *domain.Alert {
	alertType := classifyAlert(triggered)

	return &domain.Alert{
		ID:            uuid.New().String(),
		TransactionID: tx.ID,
		CustomerID:    tx.CustomerID,
		Type:          alertType,
		Severity:      alertSeverity(score),
		Title:         alertTitles[alertType],
		Description:   describeAlert(score, triggered, pred),
		RiskScore:     score,
		Status:        domain.AlertStatusOpen,
		CreatedAt:     time.Now().UTC(),
	}
}

// classifyAlert picks the alert type by fixed priority over the
// triggered rule names; anything unrecognized falls back to anomaly.
func classifyAlert(triggered []string) string {
	present := make(map[string]bool, len(triggered))
	for _, name := range triggered {
		present[name] = true
	}
	for _, t := range alertTypePriority {
		if present[t] {
			return t
		}
	}
	return domain.AlertTypeAnomaly
}

// alertSeverity maps a final score to a severity label. The medium
// branch is unreachable while alerts are only created at scores >= 6.0,
// but the full ladder is kept in case the alert-creation threshold ever
// diverges from the flag threshold.
func alertSeverity(score float64) string {
	switch {
	case score >= 8.0:
		return domain.SeverityCritical
	case score >= 6.0:
		return domain.SeverityHigh
	default:
		return domain.SeverityMedium
	}
}

func describeAlert(score float64, triggered []string, pred *domain.RiskPrediction) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Transaction flagged with risk score %.2f. ", score)
	if len(triggered) > 0 {
		fmt.Fprintf(&b, "Rules triggered: %s. ", strings.Join(triggered, ", "))
	}
	if pred != nil {
		fmt.Fprintf(&b, "ML confidence: %.2f", pred.Confidence)
	}
	return strings.TrimSpace(b.String())
}
