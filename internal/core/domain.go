package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Product Category = "PRODUCT"
	Service Category = "SERVICE"

	// ReferenceCurrency is the single currency all normalized amounts
	// and limits are expressed in.
	ReferenceCurrency = "USD"
)

type (
	// Category is the closed set of expense categories.
	Category string

	// Transaction is one expense operation. Amount is in the origin
	// currency; USDAmount, LimitID and LimitExceeded are filled in by
	// evaluation and never change afterwards.
	Transaction struct {
		ID            int64
		AccountFrom   string
		AccountTo     string
		Currency      string
		Amount        decimal.Decimal
		Category      Category
		Datetime      time.Time
		USDAmount     decimal.Decimal
		LimitID       *int64
		LimitExceeded bool
		CreatedAt     time.Time
	}

	// Limit is one version of a category spending limit. Versions are
	// append-only; (Category, EffectiveFrom) is unique.
	Limit struct {
		ID            int64
		Category      Category
		Value         decimal.Decimal
		EffectiveFrom time.Time
		Currency      string
		CreatedAt     time.Time
	}

	// ExchangeRate is the close rate between the reference currency and
	// an origin currency on a calendar date. Immutable once recorded;
	// PreviousRate is bookkeeping and never written by the engine.
	ExchangeRate struct {
		ID           int64
		BaseCurrency string
		Currency     string
		Date         time.Time
		Rate         decimal.Decimal
		PreviousRate *decimal.Decimal
		Source       string
		CreatedAt    time.Time
	}

	// ExceededTransaction is a transaction that exceeded its limit,
	// joined with the limit that was in force at its instant (or the
	// default when none existed).
	ExceededTransaction struct {
		Transaction
		LimitValue         decimal.Decimal
		LimitEffectiveFrom time.Time
		LimitCurrency      string
	}
)

var (
	ErrUnsupportedCurrency = errors.New("unsupported currency")
	ErrRateProvider        = errors.New("rate provider error")
	ErrNoUsableRate        = errors.New("no usable rate at or before date")
	ErrDuplicateLimit      = errors.New("limit already exists for category at this instant")

	ErrEmptyAccount    = errors.New("empty account")
	ErrAccountTooLong  = errors.New("account too long (max 20 characters)")
	ErrInvalidCurrency = errors.New("currency must be a 3-letter code")
	ErrInvalidAmount   = errors.New("amount must be positive with at most 2 decimals")
	ErrUnknownCategory = errors.New("unknown expense category")
	ErrFutureDatetime  = errors.New("datetime cannot be in the future")
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case Product, Service:
		return true
	}
	return false
}

func (t Transaction) Validate() error {
	if err := validateAccount(t.AccountFrom); err != nil {
		return err
	}
	if err := validateAccount(t.AccountTo); err != nil {
		return err
	}
	if len(t.Currency) != 3 || strings.ToUpper(t.Currency) != t.Currency {
		return ErrInvalidCurrency
	}
	if err := ValidateMoney(t.Amount); err != nil {
		return err
	}
	if !t.Category.Valid() {
		return ErrUnknownCategory
	}
	if t.Datetime.IsZero() {
		return errors.New("datetime is required")
	}
	if t.Datetime.After(time.Now()) {
		return ErrFutureDatetime
	}
	return nil
}

func (l Limit) Validate() error {
	if !l.Category.Valid() {
		return ErrUnknownCategory
	}
	return ValidateMoney(l.Value)
}

func validateAccount(account string) error {
	if strings.TrimSpace(account) == "" {
		return ErrEmptyAccount
	}
	if len(account) > 20 {
		return ErrAccountTooLong
	}
	return nil
}

// MonthStart returns the first instant of the calendar month containing t,
// in t's own offset.
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
