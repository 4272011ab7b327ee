package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"spendwatch/internal/core"
)

type fakeLimitStore struct {
	created []core.Limit
	err     error
}

func (f *fakeLimitStore) CreateLimit(_ context.Context, l core.Limit) (core.Limit, error) {
	if f.err != nil {
		return core.Limit{}, f.err
	}
	l.ID = int64(len(f.created) + 1)
	f.created = append(f.created, l)
	return l, nil
}

func (f *fakeLimitStore) ListLimits(_ context.Context) ([]core.Limit, error) {
	out := make([]core.Limit, len(f.created))
	copy(out, f.created)
	return out, nil
}

func TestLimitCreateAssignsEffectiveFrom(t *testing.T) {
	store := &fakeLimitStore{}
	svc := NewLimitService(store)
	now := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	saved, err := svc.Create(context.Background(), core.Product, d("800.00"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !saved.EffectiveFrom.Equal(now) {
		t.Fatalf("effective-from = %v, want server-assigned %v", saved.EffectiveFrom, now)
	}
	if saved.Currency != core.ReferenceCurrency {
		t.Fatalf("currency = %s, want %s", saved.Currency, core.ReferenceCurrency)
	}
	if saved.ID == 0 {
		t.Fatal("expected assigned id")
	}
}

func TestLimitCreateRejectsInvalidInput(t *testing.T) {
	store := &fakeLimitStore{}
	svc := NewLimitService(store)

	if _, err := svc.Create(context.Background(), "FOOD", d("800.00")); !errors.Is(err, core.ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory, got %v", err)
	}
	if _, err := svc.Create(context.Background(), core.Product, d("-1")); !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if len(store.created) != 0 {
		t.Fatal("invalid limits must not reach the store")
	}
}

func TestLimitCreateDuplicatePassthrough(t *testing.T) {
	svc := NewLimitService(&fakeLimitStore{err: core.ErrDuplicateLimit})

	_, err := svc.Create(context.Background(), core.Product, d("800.00"))
	if !errors.Is(err, core.ErrDuplicateLimit) {
		t.Fatalf("expected ErrDuplicateLimit, got %v", err)
	}
}
