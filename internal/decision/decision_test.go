package decision

import (
	"strings"
	"testing"
	"time"

	"github.com/amlguard/amlguard/internal/domain"
)

func testTransaction() *domain.Transaction {
	return &domain.Transaction{
		ID:         "tx-001",
		CustomerID: "cust-001",
		Amount:     9500.0,
		Currency:   "USD",
		Type:       "wire_transfer",
		Timestamp:  time.Now().UTC(),
	}
}

func ruleResult(scores map[string]float64) *domain.RuleEvaluationResult {
	result := &domain.RuleEvaluationResult{
		RuleScores:  scores,
		EvaluatedAt: time.Now().UTC(),
	}
	for name := range scores {
		result.TriggeredRules = append(result.TriggeredRules, name)
	}
	return result
}

func TestDecideCleanTransaction(t *testing.T) {
	pipeline := NewPipeline()

	pred := &domain.RiskPrediction{TransactionID: "tx-001", RiskScore: 7.0, Confidence: 0.9}
	decision := pipeline.Decide(testTransaction(), ruleResult(nil), pred)

	// No rules triggered: 0.8*7.0 + 0.2*0 = 5.6, below the 6.0 threshold.
	if decision.RiskScore != 5.6 {
		t.Errorf("expected score 5.6, got %.2f", decision.RiskScore)
	}
	if decision.Disposition != domain.DispositionClear {
		t.Errorf("expected clear disposition, got %s", decision.Disposition)
	}
	if decision.Alert != nil {
		t.Error("expected no alert for a clear transaction")
	}
}

func TestDecideFlaggedTransaction(t *testing.T) {
	pipeline := NewPipeline()

	pred := &domain.RiskPrediction{TransactionID: "tx-001", RiskScore: 4.5, Confidence: 0.82}
	decision := pipeline.Decide(testTransaction(), ruleResult(map[string]float64{"velocity": 0.7}), pred)

	// Triggered: min(10, 0.6*4.5 + 0.4*0.7*10 + 1.0) = 6.5.
	if decision.RiskScore != 6.5 {
		t.Errorf("expected score 6.5, got %.2f", decision.RiskScore)
	}
	if decision.Disposition != domain.DispositionFlagged {
		t.Errorf("expected flagged disposition, got %s", decision.Disposition)
	}

	alert := decision.Alert
	if alert == nil {
		t.Fatal("expected an alert for a flagged transaction")
	}
	if alert.Type != domain.AlertTypeVelocity {
		t.Errorf("expected velocity alert, got %s", alert.Type)
	}
	if alert.Severity != domain.SeverityHigh {
		t.Errorf("expected high severity, got %s", alert.Severity)
	}
	if alert.Title != "High-Velocity Transaction Pattern" {
		t.Errorf("unexpected alert title: %q", alert.Title)
	}
	if alert.Status != domain.AlertStatusOpen {
		t.Errorf("expected open status, got %s", alert.Status)
	}
	if alert.TransactionID != "tx-001" || alert.CustomerID != "cust-001" {
		t.Errorf("alert not linked to transaction: %+v", alert)
	}
	if !strings.Contains(alert.Description, "velocity") {
		t.Errorf("expected triggered rules in description, got %q", alert.Description)
	}
	if !strings.Contains(alert.Description, "ML confidence: 0.82") {
		t.Errorf("expected ML confidence in description, got %q", alert.Description)
	}
}

func TestDecideCriticalSeverityAndStructuringPriority(t *testing.T) {
	pipeline := NewPipeline()

	pred := &domain.RiskPrediction{TransactionID: "tx-001", RiskScore: 8.0, Confidence: 0.95}
	decision := pipeline.Decide(testTransaction(), ruleResult(map[string]float64{
		"velocity":    0.8,
		"structuring": 0.6,
		"geographic":  0.5,
	}), pred)

	// min(10, 0.6*8.0 + 0.4*0.8*10 + 1.0) = 9.0.
	if decision.RiskScore != 9.0 {
		t.Errorf("expected score 9.0, got %.2f", decision.RiskScore)
	}

	alert := decision.Alert
	if alert == nil {
		t.Fatal("expected an alert")
	}
	// Structuring outranks velocity and geographic regardless of scores.
	if alert.Type != domain.AlertTypeStructuring {
		t.Errorf("expected structuring alert type, got %s", alert.Type)
	}
	if alert.Severity != domain.SeverityCritical {
		t.Errorf("expected critical severity, got %s", alert.Severity)
	}
}

func TestDecideUnrecognizedRulesFallBackToAnomaly(t *testing.T) {
	pipeline := NewPipeline()

	pred := &domain.RiskPrediction{TransactionID: "tx-001", RiskScore: 9.0, Confidence: 0.9}
	decision := pipeline.Decide(testTransaction(), ruleResult(map[string]float64{"round_amount": 0.9}), pred)

	if decision.Alert == nil {
		t.Fatal("expected an alert")
	}
	if decision.Alert.Type != domain.AlertTypeAnomaly {
		t.Errorf("expected anomaly alert type, got %s", decision.Alert.Type)
	}
	if decision.Alert.Title != "Anomalous Transaction Detected" {
		t.Errorf("unexpected title: %q", decision.Alert.Title)
	}
}

func TestDecideWithoutPrediction(t *testing.T) {
	pipeline := NewPipeline()

	decision := pipeline.Decide(testTransaction(), ruleResult(map[string]float64{"high_amount": 0.5}), nil)

	// Scorer unavailable: ML score is 0. min(10, 0 + 0.4*0.5*10 + 1.0) = 3.0.
	if decision.RiskScore != 3.0 {
		t.Errorf("expected score 3.0, got %.2f", decision.RiskScore)
	}
	if decision.Disposition != domain.DispositionClear {
		t.Errorf("expected clear disposition, got %s", decision.Disposition)
	}
	if decision.Prediction != nil {
		t.Error("expected nil prediction to be carried through")
	}
}

func TestDecideScoreIsClamped(t *testing.T) {
	pipeline := NewPipeline()

	pred := &domain.RiskPrediction{TransactionID: "tx-001", RiskScore: 10.0, Confidence: 1.0}
	decision := pipeline.Decide(testTransaction(), ruleResult(map[string]float64{"structuring": 1.0}), pred)

	// 0.6*10 + 0.4*10 + 1.0 = 11, clamped to 10.
	if decision.RiskScore != 10.0 {
		t.Errorf("expected score clamped to 10.0, got %.2f", decision.RiskScore)
	}
}

func TestDecideScoreRounding(t *testing.T) {
	pipeline := NewPipeline()

	pred := &domain.RiskPrediction{TransactionID: "tx-001", RiskScore: 5.554, Confidence: 0.7}
	decision := pipeline.Decide(testTransaction(), ruleResult(nil), pred)

	// 0.8*5.554 = 4.4432, rounds to 4.44.
	if decision.RiskScore != 4.44 {
		t.Errorf("expected score 4.44, got %.2f", decision.RiskScore)
	}
}

func TestCombineScores(t *testing.T) {
	cases := []struct {
		mlScore      float64
		maxRuleScore float64
		triggered    bool
		want         float64
	}{
		{7.0, 0, false, 5.6},
		{7.0, 0.4, true, 6.8}, // 0.6*7 + 0.4*4 + 1
		{0, 0.5, true, 3.0},
		{10.0, 1.0, true, 10.0}, // clamped
		{0, 0, false, 0},
	}

	for _, tc := range cases {
		got := combineScores(tc.mlScore, tc.maxRuleScore, tc.triggered)
		if got != tc.want {
			t.Errorf("combine(ml=%.2f, rule=%.2f, triggered=%v): expected %.2f, got %.2f",
				tc.mlScore, tc.maxRuleScore, tc.triggered, tc.want, got)
		}
	}
}

func TestDecideNilRuleResult(t *testing.T) {
	pipeline := NewPipeline()

	pred := &domain.RiskPrediction{TransactionID: "tx-001", RiskScore: 2.0, Confidence: 0.6}
	decision := pipeline.Decide(testTransaction(), nil, pred)

	if decision.RiskScore != 1.6 {
		t.Errorf("expected score 1.6, got %.2f", decision.RiskScore)
	}
	if len(decision.TriggeredRules) != 0 {
		t.Errorf("expected no triggered rules, got %v", decision.TriggeredRules)
	}
}

func TestAlertSeverityLadder(t *testing.T) {
	cases := []struct {
		score float64
		want  string
	}{
		{9.5, domain.SeverityCritical},
		{8.0, domain.SeverityCritical},
		{7.99, domain.SeverityHigh},
		{6.0, domain.SeverityHigh},
		{5.0, domain.SeverityMedium},
	}

	for _, tc := range cases {
		if got := alertSeverity(tc.score); got != tc.want {
			t.Errorf("severity(%.2f): expected %s, got %s", tc.score, tc.want, got)
		}
	}
}
