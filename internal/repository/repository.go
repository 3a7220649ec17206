// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/amlguard/amlguard/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// StatusPending is the stored status of a transaction that has not yet
// passed through the decision pipeline.
const StatusPending = "pending"

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveTransaction stores a transaction with status "pending".
func (r *SQLRepository) SaveTransaction(ctx context.Context, tx *domain.Transaction) error {
	if tx.ID == "" {
		return fmt.Errorf("%w: transaction id is required", ErrInvalidInput)
	}

	var location []byte
	if tx.Location != nil {
		location, _ = json.Marshal(tx.Location)
	}

	query := `
		INSERT INTO transactions (
			id, customer_id, from_account_id, to_account_id, amount,
			currency, transaction_type, description, location,
			timestamp, created_at, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.ID, tx.CustomerID,
		tx.FromAccountID, tx.ToAccountID,
		tx.Amount, tx.Currency,
		tx.Type, tx.Description, string(location),
		tx.Timestamp, tx.CreatedAt, StatusPending,
	)
	return err
}

// GetTransaction retrieves a transaction by ID.
func (r *SQLRepository) GetTransaction(ctx context.Context, txID string) (*domain.Transaction, error) {
	query := `
		SELECT id, customer_id, from_account_id, to_account_id, amount,
			   currency, transaction_type, description, location,
			   timestamp, created_at
		FROM transactions
		WHERE id = ?
	`

	var tx domain.Transaction
	var description, location sql.NullString

	err := r.db.QueryRowContext(ctx, r.rebind(query), txID).Scan(
		&tx.ID, &tx.CustomerID,
		&tx.FromAccountID, &tx.ToAccountID,
		&tx.Amount, &tx.Currency,
		&tx.Type, &description, &location,
		&tx.Timestamp, &tx.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	tx.Description = description.String
	if location.String != "" {
		var loc domain.Location
		if err := json.Unmarshal([]byte(location.String), &loc); err == nil {
			tx.Location = &loc
		}
	}

	return &tx, nil
}

// UpdateRiskAssessment writes a decision's results onto the stored
// transaction record.
func (r *SQLRepository) UpdateRiskAssessment(ctx context.Context, txID string, update *domain.RiskUpdate) error {
	if txID == "" {
		return fmt.Errorf("%w: transaction id is required", ErrInvalidInput)
	}

	rulesHit, _ := json.Marshal(update.RulesHit)

	var prediction []byte
	if update.Prediction != nil {
		prediction, _ = json.Marshal(update.Prediction)
	}

	query := `
		UPDATE transactions
		SET risk_score = ?, ml_prediction = ?, rules_hit = ?, status = ?, processed_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		update.RiskScore, string(prediction), string(rulesHit),
		update.Status, update.ProcessedAt, txID,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// CountTransactionsByCustomer counts a customer's transactions since
// the given time.
func (r *SQLRepository) CountTransactionsByCustomer(ctx context.Context, customerID string, since time.Time) (int64, error) {
	if customerID == "" {
		return 0, fmt.Errorf("%w: customer id is required", ErrInvalidInput)
	}

	query := `SELECT COUNT(*) FROM transactions WHERE customer_id = ? AND timestamp >= ?`

	var count int64
	if err := r.db.QueryRowContext(ctx, r.rebind(query), customerID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

// CountTransactionsByAccount counts an account's outgoing transactions
// since the given time.
func (r *SQLRepository) CountTransactionsByAccount(ctx context.Context, accountID string, since time.Time) (int64, error) {
	if accountID == "" {
		return 0, fmt.Errorf("%w: account id is required", ErrInvalidInput)
	}

	query := `SELECT COUNT(*) FROM transactions WHERE from_account_id = ? AND timestamp >= ?`

	var count int64
	if err := r.db.QueryRowContext(ctx, r.rebind(query), accountID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

// SaveAlert stores an alert record. Deduplication across repeated
// submissions of the same transaction is handled here, not in the
// pipeline: the primary key is the alert id, so each pipeline pass
// creates at most one row.
func (r *SQLRepository) SaveAlert(ctx context.Context, alert *domain.Alert) error {
	if alert.ID == "" || alert.TransactionID == "" {
		return fmt.Errorf("%w: alert id and transaction id are required", ErrInvalidInput)
	}

	query := `
		INSERT INTO alerts (
			id, transaction_id, customer_id, alert_type, severity,
			title, description, risk_score, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		alert.ID, alert.TransactionID, alert.CustomerID,
		alert.Type, alert.Severity,
		alert.Title, alert.Description,
		alert.RiskScore, alert.Status, alert.CreatedAt,
	)
	return err
}

// GetAlert retrieves an alert by ID.
func (r *SQLRepository) GetAlert(ctx context.Context, alertID string) (*domain.Alert, error) {
	query := `
		SELECT id, transaction_id, customer_id, alert_type, severity,
			   title, description, risk_score, status, created_at
		FROM alerts
		WHERE id = ?
	`

	var alert domain.Alert
	var description sql.NullString

	err := r.db.QueryRowContext(ctx, r.rebind(query), alertID).Scan(
		&alert.ID, &alert.TransactionID, &alert.CustomerID,
		&alert.Type, &alert.Severity,
		&alert.Title, &description,
		&alert.RiskScore, &alert.Status, &alert.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	alert.Description = description.String
	return &alert, nil
}

// ListAlerts retrieves alerts, newest first, optionally filtered by
// status.
func (r *SQLRepository) ListAlerts(ctx context.Context, status string, limit int) ([]*domain.Alert, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, transaction_id, customer_id, alert_type, severity,
			   title, description, risk_score, status, created_at
		FROM alerts
	`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*domain.Alert
	for rows.Next() {
		var alert domain.Alert
		var description sql.NullString

		if err := rows.Scan(
			&alert.ID, &alert.TransactionID, &alert.CustomerID,
			&alert.Type, &alert.Severity,
			&alert.Title, &description,
			&alert.RiskScore, &alert.Status, &alert.CreatedAt,
		); err != nil {
			return nil, err
		}

		alert.Description = description.String
		alerts = append(alerts, &alert)
	}

	return alerts, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
