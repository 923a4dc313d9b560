package payment

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/meterly/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPackage(t *testing.T) *CreditPackage {
	t.Helper()
	pkg, err := NewCreditPackage("Starter", 500, decimal.RequireFromString("9.99"), "EUR")
	require.NoError(t, err)
	return pkg
}

func TestCreditPackage(t *testing.T) {
	pkg := newPackage(t)
	assert.Equal(t, "eur", pkg.Currency)
	assert.Equal(t, int64(999), pkg.MinorUnits())

	tests := []struct {
		name     string
		credits  int64
		price    string
		currency string
	}{
		{"zero credits", 0, "1.00", "usd"},
		{"free", 10, "0", "usd"},
		{"sub-cent price", 10, "0.001", "usd"},
		{"bad currency", 10, "1.00", "dollars"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCreditPackage("X", tt.credits, decimal.RequireFromString(tt.price), tt.currency)
			assert.ErrorIs(t, err, shared.ErrInvalidInput)
		})
	}
}

func TestPurchase_Lifecycle(t *testing.T) {
	userID := uuid.New()
	now := time.Now()

	t.Run("snapshots the package", func(t *testing.T) {
		pkg := newPackage(t)
		p, err := NewPurchase(userID, pkg)
		require.NoError(t, err)

		pkg.Credits = 1
		assert.Equal(t, int64(500), p.Credits)
		assert.Equal(t, PurchaseStatusPending, p.Status)
	})

	t.Run("inactive package cannot be bought", func(t *testing.T) {
		pkg := newPackage(t)
		pkg.SetActive(false)

		_, err := NewPurchase(userID, pkg)

		assert.ErrorIs(t, err, shared.ErrInvalidState)
	})

	t.Run("pending to paid once", func(t *testing.T) {
		p, err := NewPurchase(userID, newPackage(t))
		require.NoError(t, err)

		require.NoError(t, p.MarkPaid(now))
		assert.Equal(t, PurchaseStatusPaid, p.Status)
		assert.ErrorIs(t, p.MarkPaid(now), shared.ErrInvalidState)
		assert.ErrorIs(t, p.MarkFailed("late failure"), shared.ErrInvalidState)
	})

	t.Run("failed can still be paid", func(t *testing.T) {
		p, err := NewPurchase(userID, newPackage(t))
		require.NoError(t, err)

		require.NoError(t, p.MarkFailed("card declined"))
		assert.Equal(t, "card declined", p.FailureMsg)
		require.NoError(t, p.MarkPaid(now))
		assert.Empty(t, p.FailureMsg)
	})
}
