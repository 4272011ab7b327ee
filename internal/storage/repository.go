package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"spendwatch/internal/core"

	_ "modernc.org/sqlite"
)

// Export states for exceeded transactions picked up by the report worker.
const (
	ExportPending  = "pending"
	ExportDone     = "exported"
	ExportError    = "error"
	dateLayout     = "2006-01-02"
	datetimeLayout = time.RFC3339Nano
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Instants are stored as RFC3339 UTC strings so that string comparison in
// SQL matches chronological order across input offsets.
func fmtInstant(t time.Time) string {
	return t.UTC().Format(datetimeLayout)
}

func parseInstant(s string) (time.Time, error) {
	return time.Parse(datetimeLayout, s)
}

func centsOf(d decimal.Decimal) int64 {
	return d.Shift(2).IntPart()
}

func fromCents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}

// --- exchange rates ---

// RateOn returns the rate recorded for exactly (base, currency, date).
func (r *SQLiteRepository) RateOn(ctx context.Context, base, currency string, date time.Time) (*core.ExchangeRate, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, base_currency, currency, rate_date, rate, previous_rate, source, created_at
		FROM exchange_rates
		WHERE base_currency = ? AND currency = ? AND rate_date = ?`,
		base, currency, date.Format(dateLayout))
	return scanRate(row)
}

// LatestRateAtOrBefore returns the most recent rate for (base, currency)
// with date <= the requested date.
func (r *SQLiteRepository) LatestRateAtOrBefore(ctx context.Context, base, currency string, date time.Time) (*core.ExchangeRate, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, base_currency, currency, rate_date, rate, previous_rate, source, created_at
		FROM exchange_rates
		WHERE base_currency = ? AND currency = ? AND rate_date <= ?
		ORDER BY rate_date DESC
		LIMIT 1`,
		base, currency, date.Format(dateLayout))
	return scanRate(row)
}

// SaveRate inserts a rate row. (base, currency, date) is a natural key;
// a concurrent duplicate insert is a no-op.
func (r *SQLiteRepository) SaveRate(ctx context.Context, rate core.ExchangeRate) error {
	var prev any
	if rate.PreviousRate != nil {
		prev = rate.PreviousRate.String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO exchange_rates (base_currency, currency, rate_date, rate, previous_rate, source)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (base_currency, currency, rate_date) DO NOTHING`,
		rate.BaseCurrency, rate.Currency, rate.Date.Format(dateLayout), rate.Rate.String(), prev, rate.Source)
	if err != nil {
		return fmt.Errorf("insert exchange rate: %w", err)
	}
	return nil
}

func scanRate(row *sql.Row) (*core.ExchangeRate, error) {
	var (
		rate      core.ExchangeRate
		rateDate  string
		rateStr   string
		prevStr   sql.NullString
		source    sql.NullString
		createdAt string
	)
	err := row.Scan(&rate.ID, &rate.BaseCurrency, &rate.Currency, &rateDate, &rateStr, &prevStr, &source, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan exchange rate: %w", err)
	}
	if rate.Date, err = time.Parse(dateLayout, rateDate); err != nil {
		return nil, fmt.Errorf("parse rate date: %w", err)
	}
	if rate.Rate, err = decimal.NewFromString(rateStr); err != nil {
		return nil, fmt.Errorf("parse rate value: %w", err)
	}
	if prevStr.Valid {
		prev, err := decimal.NewFromString(prevStr.String)
		if err != nil {
			return nil, fmt.Errorf("parse previous rate: %w", err)
		}
		rate.PreviousRate = &prev
	}
	rate.Source = source.String
	if rate.CreatedAt, err = parseInstant(createdAt); err != nil {
		rate.CreatedAt = time.Time{}
	}
	return &rate, nil
}

// --- limits ---

// CreateLimit appends a new limit version. A second version for the same
// category at the same instant violates the natural key and is reported as
// core.ErrDuplicateLimit.
func (r *SQLiteRepository) CreateLimit(ctx context.Context, l core.Limit) (core.Limit, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO limits (category, value_cents, effective_from, currency)
		VALUES (?, ?, ?, ?)`,
		string(l.Category), centsOf(l.Value), fmtInstant(l.EffectiveFrom), l.Currency)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return core.Limit{}, core.ErrDuplicateLimit
		}
		return core.Limit{}, fmt.Errorf("insert limit: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return core.Limit{}, fmt.Errorf("limit insert id: %w", err)
	}
	l.ID = id

	slog.InfoContext(ctx, "Limit version created",
		"id", l.ID,
		"category", l.Category,
		"value", l.Value.String(),
		"effective_from", l.EffectiveFrom.Format(time.RFC3339))

	return l, nil
}

// LimitAtOrBefore returns the limit version for category with the greatest
// effective-from <= at, or nil when none exists.
func (r *SQLiteRepository) LimitAtOrBefore(ctx context.Context, category core.Category, at time.Time) (*core.Limit, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, category, value_cents, effective_from, currency, created_at
		FROM limits
		WHERE category = ? AND effective_from <= ?
		ORDER BY effective_from DESC
		LIMIT 1`,
		string(category), fmtInstant(at))
	return scanLimit(row)
}

// LimitBefore returns the limit version for category with the greatest
// effective-from strictly < before, or nil when none exists.
func (r *SQLiteRepository) LimitBefore(ctx context.Context, category core.Category, before time.Time) (*core.Limit, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, category, value_cents, effective_from, currency, created_at
		FROM limits
		WHERE category = ? AND effective_from < ?
		ORDER BY effective_from DESC
		LIMIT 1`,
		string(category), fmtInstant(before))
	return scanLimit(row)
}

// ListLimits returns the whole limit history, newest first.
func (r *SQLiteRepository) ListLimits(ctx context.Context) ([]core.Limit, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, category, value_cents, effective_from, currency, created_at
		FROM limits
		ORDER BY effective_from DESC`)
	if err != nil {
		return nil, fmt.Errorf("list limits: %w", err)
	}
	defer rows.Close()

	var limits []core.Limit
	for rows.Next() {
		l, err := scanLimitRows(rows)
		if err != nil {
			return nil, err
		}
		limits = append(limits, l)
	}
	return limits, rows.Err()
}

func scanLimit(row *sql.Row) (*core.Limit, error) {
	var (
		l          core.Limit
		valueCents int64
		effective  string
		createdAt  string
	)
	err := row.Scan(&l.ID, &l.Category, &valueCents, &effective, &l.Currency, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan limit: %w", err)
	}
	l.Value = fromCents(valueCents)
	if l.EffectiveFrom, err = parseInstant(effective); err != nil {
		return nil, fmt.Errorf("parse limit effective_from: %w", err)
	}
	if l.CreatedAt, err = parseInstant(createdAt); err != nil {
		l.CreatedAt = time.Time{}
	}
	return &l, nil
}

func scanLimitRows(rows *sql.Rows) (core.Limit, error) {
	var (
		l          core.Limit
		valueCents int64
		effective  string
		createdAt  string
	)
	if err := rows.Scan(&l.ID, &l.Category, &valueCents, &effective, &l.Currency, &createdAt); err != nil {
		return core.Limit{}, fmt.Errorf("scan limit: %w", err)
	}
	l.Value = fromCents(valueCents)
	var err error
	if l.EffectiveFrom, err = parseInstant(effective); err != nil {
		return core.Limit{}, fmt.Errorf("parse limit effective_from: %w", err)
	}
	if l.CreatedAt, err = parseInstant(createdAt); err != nil {
		l.CreatedAt = time.Time{}
	}
	return l, nil
}

// --- transactions ---

// CreateTransaction persists an evaluated transaction together with its
// verdict. Exceeded rows start in the pending export state so the report
// worker can pick them up.
func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	var exportStatus any
	if t.LimitExceeded {
		exportStatus = ExportPending
	}
	var limitID any
	if t.LimitID != nil {
		limitID = *t.LimitID
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions
			(account_from, account_to, currency, amount_cents, category, datetime,
			 usd_cents, limit_id, limit_exceeded, export_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.AccountFrom, t.AccountTo, t.Currency, centsOf(t.Amount), string(t.Category),
		fmtInstant(t.Datetime), centsOf(t.USDAmount), limitID, t.LimitExceeded, exportStatus)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction insert id: %w", err)
	}
	t.ID = id

	slog.InfoContext(ctx, "Transaction saved",
		"id", t.ID,
		"category", t.Category,
		"usd_amount", t.USDAmount.String(),
		"exceeded", t.LimitExceeded)

	return t, nil
}

// SumUSDInWindow sums normalized amounts for category over the half-open
// window [start, before). Returns zero when no rows qualify.
func (r *SQLiteRepository) SumUSDInWindow(ctx context.Context, category core.Category, start, before time.Time) (decimal.Decimal, error) {
	var cents int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(usd_cents), 0)
		FROM transactions
		WHERE category = ? AND datetime >= ? AND datetime < ?`,
		string(category), fmtInstant(start), fmtInstant(before)).Scan(&cents)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum window: %w", err)
	}
	return fromCents(cents), nil
}

const exceededColumns = `
	t.id, t.account_from, t.account_to, t.currency, t.amount_cents, t.category,
	t.datetime, t.usd_cents, t.limit_id, t.limit_exceeded, t.created_at,
	(SELECT l.value_cents FROM limits l
	 WHERE l.category = t.category AND l.effective_from <= t.datetime
	 ORDER BY l.effective_from DESC LIMIT 1),
	(SELECT l.effective_from FROM limits l
	 WHERE l.category = t.category AND l.effective_from <= t.datetime
	 ORDER BY l.effective_from DESC LIMIT 1)`

// ListExceeded returns exceeded transactions, newest first, each joined
// with the limit in force at its instant; rows evaluated against the
// default get defaultLimit anchored at their own month start.
func (r *SQLiteRepository) ListExceeded(ctx context.Context, defaultLimit decimal.Decimal) ([]core.ExceededTransaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+exceededColumns+`
		FROM transactions t
		WHERE t.limit_exceeded = 1
		ORDER BY t.datetime DESC`)
	if err != nil {
		return nil, fmt.Errorf("list exceeded: %w", err)
	}
	defer rows.Close()

	var result []core.ExceededTransaction
	for rows.Next() {
		et, err := scanExceeded(rows, defaultLimit)
		if err != nil {
			return nil, err
		}
		result = append(result, et)
	}
	return result, rows.Err()
}

// GetExceededByID fetches one exceeded transaction with its limit info.
func (r *SQLiteRepository) GetExceededByID(ctx context.Context, id int64, defaultLimit decimal.Decimal) (*core.ExceededTransaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+exceededColumns+`
		FROM transactions t
		WHERE t.id = ? AND t.limit_exceeded = 1`, id)
	if err != nil {
		return nil, fmt.Errorf("get exceeded by id: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	et, err := scanExceeded(rows, defaultLimit)
	if err != nil {
		return nil, err
	}
	return &et, nil
}

func scanExceeded(rows *sql.Rows, defaultLimit decimal.Decimal) (core.ExceededTransaction, error) {
	var (
		et          core.ExceededTransaction
		amountCents int64
		usdCents    int64
		datetime    string
		createdAt   string
		limitID     sql.NullInt64
		limitCents  sql.NullInt64
		limitFrom   sql.NullString
	)
	err := rows.Scan(&et.ID, &et.AccountFrom, &et.AccountTo, &et.Currency, &amountCents,
		&et.Category, &datetime, &usdCents, &limitID, &et.LimitExceeded, &createdAt,
		&limitCents, &limitFrom)
	if err != nil {
		return core.ExceededTransaction{}, fmt.Errorf("scan exceeded transaction: %w", err)
	}

	et.Amount = fromCents(amountCents)
	et.USDAmount = fromCents(usdCents)
	if et.Datetime, err = parseInstant(datetime); err != nil {
		return core.ExceededTransaction{}, fmt.Errorf("parse transaction datetime: %w", err)
	}
	if et.CreatedAt, err = parseInstant(createdAt); err != nil {
		et.CreatedAt = time.Time{}
	}
	if limitID.Valid {
		id := limitID.Int64
		et.LimitID = &id
	}
	et.LimitCurrency = core.ReferenceCurrency
	if limitCents.Valid && limitFrom.Valid {
		et.LimitValue = fromCents(limitCents.Int64)
		if et.LimitEffectiveFrom, err = parseInstant(limitFrom.String); err != nil {
			return core.ExceededTransaction{}, fmt.Errorf("parse limit effective_from: %w", err)
		}
	} else {
		et.LimitValue = defaultLimit
		et.LimitEffectiveFrom = core.MonthStart(et.Datetime)
	}
	return et, nil
}

// --- report export bookkeeping ---

// PendingExports returns ids of exceeded transactions not yet exported.
func (r *SQLiteRepository) PendingExports(ctx context.Context, limit int) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM transactions
		WHERE limit_exceeded = 1 AND export_status = ?
		ORDER BY id
		LIMIT ?`, ExportPending, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending exports: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan pending export id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MarkExported marks an exceeded transaction as successfully exported.
func (r *SQLiteRepository) MarkExported(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE transactions SET export_status = ?, exported_at = ?
		WHERE id = ?`, ExportDone, fmtInstant(time.Now()), id)
	if err != nil {
		return fmt.Errorf("mark exported: %w", err)
	}
	slog.InfoContext(ctx, "Transaction marked as exported", "id", id)
	return nil
}

// MarkExportError marks an exceeded transaction as having export errors.
func (r *SQLiteRepository) MarkExportError(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE transactions SET export_status = ?
		WHERE id = ?`, ExportError, id)
	if err != nil {
		return fmt.Errorf("mark export error: %w", err)
	}
	slog.WarnContext(ctx, "Transaction marked with export error", "id", id)
	return nil
}
