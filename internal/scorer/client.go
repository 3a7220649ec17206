// Package scorer is the client for the external ML risk-scoring
// service. The scorer is a black box: the pipeline consumes only its
// published contract and degrades to no prediction when it is down.
package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/amlguard/amlguard/internal/domain"
)

// ErrUnavailable is returned when the scorer cannot produce a
// prediction: network failure, timeout, or any non-success response.
// Callers substitute a neutral score and continue.
var ErrUnavailable = fmt.Errorf("risk scorer unavailable")

// Client calls the scorer's /predict endpoint.
type Client struct {
	baseURL string
	http    *http.Client
	cache   domain.Cache
	cacheTT time.Duration
}

// NewClient creates a scorer client. The cache is optional; when set,
// predictions are cached by transaction id for cacheTTL.
func NewClient(cfg domain.ScorerConfig, cache domain.Cache) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: cfg.URL,
		http:    &http.Client{Timeout: timeout},
		cache:   cache,
		cacheTT: cfg.PredictionTTL,
	}
}

// predictRequest matches the scorer's request contract.
type predictRequest struct {
	TransactionID string           `json:"transaction_id"`
	CustomerID    string           `json:"customer_id"`
	AccountID     string           `json:"account_id"`
	Amount        float64          `json:"amount"`
	Currency      string           `json:"currency"`
	Type          string           `json:"transaction_type"`
	Description   string           `json:"description,omitempty"`
	Location      *domain.Location `json:"location,omitempty"`
	Timestamp     time.Time        `json:"timestamp"`
}

// Predict requests a risk prediction for the transaction. Any failure
// returns ErrUnavailable (wrapped); it never blocks beyond the
// configured timeout.
func (c *Client) Predict(ctx context.Context, tx *domain.Transaction) (*domain.RiskPrediction, error) {
	if c.cache != nil && c.cacheTT > 0 {
		if pred, err := c.cache.GetPrediction(ctx, tx.ID); err == nil && pred != nil {
			return pred, nil
		}
	}

	body, err := json.Marshal(predictRequest{
		TransactionID: tx.ID,
		CustomerID:    tx.CustomerID,
		AccountID:     tx.FromAccountID,
		Amount:        tx.Amount,
		Currency:      tx.Currency,
		Type:          tx.Type,
		Description:   tx.Description,
		Location:      tx.Location,
		Timestamp:     tx.Timestamp,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var pred domain.RiskPrediction
	if err := json.NewDecoder(resp.Body).Decode(&pred); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}

	if c.cache != nil && c.cacheTT > 0 {
		if err := c.cache.SetPrediction(ctx, tx.ID, &pred, c.cacheTT); err != nil {
			slog.Debug("failed to cache prediction", "transaction_id", tx.ID, "error", err)
		}
	}

	return &pred, nil
}
