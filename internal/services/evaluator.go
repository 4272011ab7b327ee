package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"spendwatch/internal/core"
)

// TransactionStore is the persisted-transaction storage the evaluator uses.
type TransactionStore interface {
	CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
	SumUSDInWindow(ctx context.Context, category core.Category, start, before time.Time) (decimal.Decimal, error)
	ListExceeded(ctx context.Context, defaultLimit decimal.Decimal) ([]core.ExceededTransaction, error)
}

// RateSource resolves the rate applicable to a currency and calendar date.
type RateSource interface {
	GetOrFetch(ctx context.Context, currency string, date time.Time) (decimal.Decimal, error)
}

// LimitResolver finds the limit version in force at an instant and the
// aggregation window start.
type LimitResolver interface {
	Applicable(ctx context.Context, category core.Category, at time.Time) (*core.Limit, time.Time, error)
}

// Publisher emits exceeded-verdict events.
type Publisher interface {
	PublishExceeded(ctx context.Context, transactionID int64, category string) error
}

// Evaluator produces the verdict for one transaction: normalize the amount
// into the reference currency, resolve the governing limit version, sum
// prior spend over the resolver's window and compare.
//
// Evaluation is synchronous and per-transaction. The window sum is a
// consistent snapshot at read time; concurrent submissions in the same
// window may each miss the other's pending write (read-committed, accepted
// by design). The rate fetch is the only network call and happens before
// any write, never under a storage lock.
type Evaluator struct {
	store        TransactionStore
	rates        RateSource
	resolver     LimitResolver
	publisher    Publisher
	defaultLimit decimal.Decimal
}

func NewEvaluator(store TransactionStore, rates RateSource, resolver LimitResolver, publisher Publisher, defaultLimit decimal.Decimal) *Evaluator {
	return &Evaluator{
		store:        store,
		rates:        rates,
		resolver:     resolver,
		publisher:    publisher,
		defaultLimit: defaultLimit,
	}
}

// Evaluate normalizes, decides and persists the verdict for t. Any rate
// resolution failure aborts the evaluation with nothing persisted. The
// returned transaction carries the stored ID, the normalized amount, the
// applied limit reference and the exceeded flag.
func (e *Evaluator) Evaluate(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	rate, err := e.rates.GetOrFetch(ctx, t.Currency, t.Datetime)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("resolve rate: %w", err)
	}

	t.USDAmount = core.Normalize(t.Amount, rate)

	limit, windowStart, err := e.resolver.Applicable(ctx, t.Category, t.Datetime)
	if err != nil {
		return core.Transaction{}, err
	}

	limitValue := e.defaultLimit
	if limit != nil {
		limitValue = limit.Value
		t.LimitID = &limit.ID
	}

	priorSpend, err := e.store.SumUSDInWindow(ctx, t.Category, windowStart, t.Datetime)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("sum prior spend: %w", err)
	}

	// Strict greater-than: landing exactly on the limit does not exceed.
	t.LimitExceeded = priorSpend.Add(t.USDAmount).GreaterThan(limitValue)

	saved, err := e.store.CreateTransaction(ctx, t)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction evaluated",
		"id", saved.ID,
		"category", saved.Category,
		"usd_amount", saved.USDAmount.String(),
		"prior_spend", priorSpend.String(),
		"limit_value", limitValue.String(),
		"window_start", windowStart.Format(time.RFC3339),
		"exceeded", saved.LimitExceeded)

	if saved.LimitExceeded {
		e.publishExceeded(ctx, saved)
	}

	return saved, nil
}

// ListExceeded returns exceeded transactions with the limit in force at
// evaluation time, for the reporting path.
func (e *Evaluator) ListExceeded(ctx context.Context) ([]core.ExceededTransaction, error) {
	return e.store.ListExceeded(ctx, e.defaultLimit)
}

func (e *Evaluator) publishExceeded(ctx context.Context, t core.Transaction) {
	if e.publisher == nil {
		slog.WarnContext(ctx, "Publisher not available, skipping exceeded event", "id", t.ID)
		return
	}
	// The verdict is already durable; a lost event is recovered by the
	// worker's backup scan.
	if err := e.publisher.PublishExceeded(ctx, t.ID, string(t.Category)); err != nil {
		slog.ErrorContext(ctx, "Failed to publish exceeded event",
			"id", t.ID, "error", err)
	}
}
