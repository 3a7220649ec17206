package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/amlguard/amlguard/internal/domain"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "repo-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return repo
}

func testTransaction(id string) *domain.Transaction {
	return &domain.Transaction{
		ID:            id,
		CustomerID:    "cust-001",
		FromAccountID: "acct-001",
		ToAccountID:   "acct-002",
		Amount:        9500.0,
		Currency:      "USD",
		Type:          "wire_transfer",
		Description:   "invoice 4471",
		Location: &domain.Location{
			Country: "US",
			City:    "Chicago",
		},
		Timestamp: time.Now().UTC().Truncate(time.Second),
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestSaveAndGetTransaction(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	tx := testTransaction("tx-001")
	if err := repo.SaveTransaction(ctx, tx); err != nil {
		t.Fatalf("failed to save transaction: %v", err)
	}

	got, err := repo.GetTransaction(ctx, "tx-001")
	if err != nil {
		t.Fatalf("failed to get transaction: %v", err)
	}

	if got.ID != tx.ID || got.CustomerID != tx.CustomerID {
		t.Errorf("transaction identity mismatch: %+v", got)
	}
	if got.Amount != 9500.0 || got.Currency != "USD" {
		t.Errorf("amount mismatch: %+v", got)
	}
	if got.Type != "wire_transfer" || got.Description != "invoice 4471" {
		t.Errorf("type/description mismatch: %+v", got)
	}
	if got.Location == nil || got.Location.Country != "US" || got.Location.City != "Chicago" {
		t.Errorf("location not round-tripped: %+v", got.Location)
	}
}

func TestSaveTransactionRequiresID(t *testing.T) {
	repo := newTestRepo(t)

	tx := testTransaction("")
	err := repo.SaveTransaction(context.Background(), tx)
	if err == nil {
		t.Error("expected error for missing transaction id")
	}
}

func TestGetTransactionNotFound(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.GetTransaction(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTransactionWithoutLocation(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	tx := testTransaction("tx-002")
	tx.Location = nil
	tx.Description = ""

	if err := repo.SaveTransaction(ctx, tx); err != nil {
		t.Fatalf("failed to save transaction: %v", err)
	}

	got, err := repo.GetTransaction(ctx, "tx-002")
	if err != nil {
		t.Fatalf("failed to get transaction: %v", err)
	}
	if got.Location != nil {
		t.Errorf("expected nil location, got %+v", got.Location)
	}
}

func TestUpdateRiskAssessment(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.SaveTransaction(ctx, testTransaction("tx-003")); err != nil {
		t.Fatalf("failed to save transaction: %v", err)
	}

	update := &domain.RiskUpdate{
		RiskScore: 7.25,
		Prediction: &domain.RiskPrediction{
			TransactionID: "tx-003",
			RiskScore:     6.0,
			Confidence:    0.9,
		},
		RulesHit:    []string{"structuring", "velocity"},
		Status:      domain.DispositionFlagged,
		ProcessedAt: time.Now().UTC(),
	}

	if err := repo.UpdateRiskAssessment(ctx, "tx-003", update); err != nil {
		t.Fatalf("failed to update risk assessment: %v", err)
	}
}

func TestUpdateRiskAssessmentNotFound(t *testing.T) {
	repo := newTestRepo(t)

	update := &domain.RiskUpdate{
		RiskScore:   5.0,
		Status:      domain.DispositionClear,
		ProcessedAt: time.Now().UTC(),
	}

	err := repo.UpdateRiskAssessment(context.Background(), "missing", update)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCountTransactions(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		tx := testTransaction(fmt.Sprintf("tx-%d", i))
		if err := repo.SaveTransaction(ctx, tx); err != nil {
			t.Fatalf("failed to save transaction: %v", err)
		}
	}

	since := time.Now().UTC().Add(-time.Hour)

	count, err := repo.CountTransactionsByCustomer(ctx, "cust-001", since)
	if err != nil {
		t.Fatalf("count by customer failed: %v", err)
	}
	if count != 4 {
		t.Errorf("expected 4 customer transactions, got %d", count)
	}

	count, err = repo.CountTransactionsByAccount(ctx, "acct-001", since)
	if err != nil {
		t.Fatalf("count by account failed: %v", err)
	}
	if count != 4 {
		t.Errorf("expected 4 account transactions, got %d", count)
	}

	// Counting requires an identifier.
	if _, err := repo.CountTransactionsByCustomer(ctx, "", since); err == nil {
		t.Error("expected error for empty customer id")
	}
	if _, err := repo.CountTransactionsByAccount(ctx, "", since); err == nil {
		t.Error("expected error for empty account id")
	}
}

func TestSaveAndGetAlert(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	alert := &domain.Alert{
		ID:            "alert-001",
		TransactionID: "tx-001",
		CustomerID:    "cust-001",
		Type:          domain.AlertTypeStructuring,
		Severity:      domain.SeverityHigh,
		Title:         "Potential Structuring Pattern Detected",
		Description:   "Transaction flagged with risk score 7.25.",
		RiskScore:     7.25,
		Status:        domain.AlertStatusOpen,
		CreatedAt:     time.Now().UTC().Truncate(time.Second),
	}

	if err := repo.SaveAlert(ctx, alert); err != nil {
		t.Fatalf("failed to save alert: %v", err)
	}

	got, err := repo.GetAlert(ctx, "alert-001")
	if err != nil {
		t.Fatalf("failed to get alert: %v", err)
	}
	if got.Type != domain.AlertTypeStructuring || got.Severity != domain.SeverityHigh {
		t.Errorf("alert fields mismatch: %+v", got)
	}
	if got.RiskScore != 7.25 || got.Status != domain.AlertStatusOpen {
		t.Errorf("alert score/status mismatch: %+v", got)
	}
}

func TestGetAlertNotFound(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.GetAlert(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListAlerts(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		status := domain.AlertStatusOpen
		if i%2 == 1 {
			status = "closed"
		}
		alert := &domain.Alert{
			ID:            fmt.Sprintf("alert-%d", i),
			TransactionID: fmt.Sprintf("tx-%d", i),
			CustomerID:    "cust-001",
			Type:          domain.AlertTypeVelocity,
			Severity:      domain.SeverityHigh,
			Title:         "High-Velocity Transaction Pattern",
			RiskScore:     6.5,
			Status:        status,
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.SaveAlert(ctx, alert); err != nil {
			t.Fatalf("failed to save alert: %v", err)
		}
	}

	all, err := repo.ListAlerts(ctx, "", 0)
	if err != nil {
		t.Fatalf("list alerts failed: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 alerts, got %d", len(all))
	}
	// Newest first.
	if all[0].ID != "alert-4" {
		t.Errorf("expected newest alert first, got %s", all[0].ID)
	}

	open, err := repo.ListAlerts(ctx, domain.AlertStatusOpen, 0)
	if err != nil {
		t.Fatalf("list open alerts failed: %v", err)
	}
	if len(open) != 3 {
		t.Errorf("expected 3 open alerts, got %d", len(open))
	}

	limited, err := repo.ListAlerts(ctx, "", 2)
	if err != nil {
		t.Fatalf("list limited alerts failed: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("expected 2 alerts with limit, got %d", len(limited))
	}
}

func TestUnsupportedDriver(t *testing.T) {
	_, err := New(domain.RepositoryConfig{Driver: "oracle"})
	if err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestPing(t *testing.T) {
	repo := newTestRepo(t)
	if err := repo.Ping(context.Background()); err != nil {
		t.Errorf("ping failed: %v", err)
	}
}
