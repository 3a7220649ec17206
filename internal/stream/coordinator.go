// Package stream drives transactions through the risk decision
// pipeline from a bounded ingest queue.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/amlguard/amlguard/internal/decision"
	"github.com/amlguard/amlguard/internal/domain"
	"github.com/amlguard/amlguard/internal/metrics"
	"github.com/amlguard/amlguard/internal/rules"
	"github.com/amlguard/amlguard/internal/velocity"
)

// ErrQueueFull is returned when the bounded ingest queue cannot accept
// another transaction. The caller decides whether to retry; the
// coordinator has already counted and logged the drop.
var ErrQueueFull = errors.New("transaction queue is full")

// ErrStopped is returned by Enqueue after Stop has been called.
// Accepting a transaction during drain would queue work nothing will
// ever consume.
var ErrStopped = errors.New("stream coordinator is stopped")

var tracer = otel.Tracer("amlguard-stream")

// Scorer is the slice of the ML client the coordinator needs.
type Scorer interface {
	Predict(ctx context.Context, tx *domain.Transaction) (*domain.RiskPrediction, error)
}

// Coordinator pulls transactions from a bounded queue and drives each
// through score → rules → decide → persist → publish. It holds no
// transaction state across calls.
type Coordinator struct {
	registry *rules.Registry
	pipeline *decision.Pipeline
	scorer   Scorer
	velocity *velocity.Service
	repo     domain.Repository
	bus      domain.EventBus
	metrics  *metrics.Collector

	queue          chan *domain.Transaction
	pollTimeout    time.Duration
	velocityWindow time.Duration

	ctx      context.Context
	cancel   context.CancelFunc
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	subscriptions []domain.Subscription
}

// NewCoordinator creates a stream coordinator. Scorer, velocity, repo,
// bus, and metrics are optional; a nil collaborator disables its step.
func NewCoordinator(cfg domain.StreamConfig, registry *rules.Registry, pipeline *decision.Pipeline, scorer Scorer, vel *velocity.Service, repo domain.Repository, bus domain.EventBus, collector *metrics.Collector) *Coordinator {
	capacity := cfg.QueueCapacity
	if capacity <= 0 {
		capacity = 1000
	}
	pollTimeout := cfg.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = time.Second
	}
	velocityWindow := cfg.VelocityWindow
	if velocityWindow <= 0 {
		velocityWindow = time.Hour
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		registry:       registry,
		pipeline:       pipeline,
		scorer:         scorer,
		velocity:       vel,
		repo:           repo,
		bus:            bus,
		metrics:        collector,
		queue:          make(chan *domain.Transaction, capacity),
		pollTimeout:    pollTimeout,
		velocityWindow: velocityWindow,
		ctx:            ctx,
		cancel:         cancel,
		stop:           make(chan struct{}),
	}
}

// Start launches the consumer loop and, when a bus is configured,
// subscribes to the ingest topic so published transactions feed the
// queue as well.
func (c *Coordinator) Start() error {
	if c.bus != nil {
		sub, err := c.bus.Subscribe(c.ctx, domain.TopicTransactionIngested, c.handleIngestMessage)
		if err != nil {
			return fmt.Errorf("subscribe to ingest topic: %w", err)
		}
		c.subscriptions = append(c.subscriptions, sub)
	}

	c.wg.Add(1)
	go c.run()

	slog.Info("stream coordinator started",
		"queue_capacity", cap(c.queue),
		"poll_timeout", c.pollTimeout,
	)
	return nil
}

// Stop signals the loop to exit and waits for the in-flight transaction
// to finish. No transaction is abandoned mid-decision: the stop channel
// only stops the dequeue, while process runs under its own context, so
// the transaction being decided still completes its scoring,
// persistence, and publishing.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
	for _, sub := range c.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe", "topic", sub.Topic(), "error", err)
		}
	}
	c.subscriptions = nil
	c.wg.Wait()
	c.cancel()
	slog.Info("stream coordinator stopped")
}

// Enqueue offers a transaction to the bounded queue. It fails fast when
// the queue is full; the drop is counted and logged, never silent.
func (c *Coordinator) Enqueue(tx *domain.Transaction) error {
	select {
	case <-c.stop:
		return ErrStopped
	default:
	}

	select {
	case c.queue <- tx:
		if c.metrics != nil {
			c.metrics.QueueDepth.Set(float64(len(c.queue)))
		}
		return nil
	default:
		if c.metrics != nil {
			c.metrics.TransactionsDropped.Inc()
		}
		slog.Warn("transaction queue is full, dropping transaction",
			"transaction_id", tx.ID,
		)
		return ErrQueueFull
	}
}

// QueueDepth returns the current number of queued transactions.
func (c *Coordinator) QueueDepth() int {
	return len(c.queue)
}

func (c *Coordinator) handleIngestMessage(ctx context.Context, msg *domain.Message) error {
	var tx domain.Transaction
	if err := json.Unmarshal(msg.Payload, &tx); err != nil {
		slog.Error("failed to parse ingested transaction", "message_id", msg.ID, "error", err)
		return err
	}
	return c.Enqueue(&tx)
}

// run is the single consumer loop. The ticker bounds each dequeue wait
// at pollTimeout so the loop never parks indefinitely on an empty
// queue.
func (c *Coordinator) run() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.pollTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return

		case tx := <-c.queue:
			if c.metrics != nil {
				c.metrics.QueueDepth.Set(float64(len(c.queue)))
			}
			c.process(tx)

		case <-ticker.C:
			// No transaction available within the bounded wait.
		}
	}
}

// process runs one transaction through the pipeline. Any failure here
// drops this transaction and continues the stream; the loop never
// crashes on a bad transaction.
func (c *Coordinator) process(tx *domain.Transaction) {
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			if c.metrics != nil {
				c.metrics.TransactionsFailed.Inc()
			}
			slog.Error("transaction processing panicked",
				"transaction_id", tx.ID,
				"panic", rec,
			)
		}
	}()

	// A fresh root context: shutdown must not cancel the side effects of
	// the transaction already being decided.
	ctx, span := tracer.Start(context.Background(), "process_transaction",
		trace.WithAttributes(attribute.String("transaction.id", tx.ID)),
	)
	defer span.End()

	slog.Info("processing transaction", "transaction_id", tx.ID)

	doc := tx.Document()

	// Velocity enrichment feeds the velocity.* rule fields.
	if c.velocity != nil {
		counts, err := c.velocity.Observe(ctx, tx, c.velocityWindow)
		if err != nil {
			slog.Warn("velocity enrichment failed", "transaction_id", tx.ID, "error", err)
		} else {
			doc["velocity"] = map[string]any{
				"customer_1h": counts.Customer,
				"account_1h":  counts.Account,
			}
		}
	}

	// The ML scorer is best effort: unavailable means no prediction,
	// never a failed transaction.
	var pred *domain.RiskPrediction
	if c.scorer != nil {
		p, err := c.scorer.Predict(ctx, tx)
		if err != nil {
			slog.Warn("ml prediction unavailable", "transaction_id", tx.ID, "error", err)
		} else {
			pred = p
		}
	}

	ruleResult := c.registry.EvaluateAll(doc, tx.ID)

	dec := c.pipeline.Decide(tx, ruleResult, pred)

	c.publish(ctx, tx, dec)

	if c.metrics != nil {
		c.metrics.TransactionsProcessed.Inc()
		c.metrics.ProcessingDuration.Observe(time.Since(start).Seconds())
		c.metrics.FinalScores.Observe(dec.RiskScore)
	}

	slog.Info("transaction processed",
		"transaction_id", tx.ID,
		"risk_score", dec.RiskScore,
		"disposition", dec.Disposition,
		"rules_triggered", len(dec.TriggeredRules),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// publish pushes the decision's side effects to the storage and
// notification collaborators. Collaborator failures are logged and do
// not undo the decision.
func (c *Coordinator) publish(ctx context.Context, tx *domain.Transaction, dec *domain.FinalDecision) {
	if c.repo != nil {
		update := &domain.RiskUpdate{
			RiskScore:   dec.RiskScore,
			Prediction:  dec.Prediction,
			RulesHit:    dec.TriggeredRules,
			Status:      dec.Disposition,
			ProcessedAt: dec.ProcessedAt,
		}
		if err := c.repo.UpdateRiskAssessment(ctx, tx.ID, update); err != nil {
			slog.Error("failed to update transaction", "transaction_id", tx.ID, "error", err)
		}

		if dec.Alert != nil {
			if err := c.repo.SaveAlert(ctx, dec.Alert); err != nil {
				slog.Error("failed to save alert", "transaction_id", tx.ID, "error", err)
			}
		}
	}

	if dec.Alert != nil {
		if c.metrics != nil {
			c.metrics.AlertsCreated.WithLabelValues(dec.Alert.Type, dec.Alert.Severity).Inc()
		}
		slog.Info("alert created",
			"alert_id", dec.Alert.ID,
			"transaction_id", tx.ID,
			"alert_type", dec.Alert.Type,
			"severity", dec.Alert.Severity,
		)
	}

	if c.bus != nil {
		payload, _ := json.Marshal(dec)
		if err := c.bus.Publish(ctx, domain.TopicDecision, payload); err != nil {
			slog.Error("failed to publish decision", "transaction_id", tx.ID, "error", err)
		}

		if dec.Alert != nil {
			alertPayload, _ := json.Marshal(dec.Alert)
			if err := c.bus.Publish(ctx, domain.TopicAlertCreated, alertPayload); err != nil {
				slog.Error("failed to publish alert", "transaction_id", tx.ID, "error", err)
			}
		}
	}
}
